package audio

import (
	"fmt"
	log "log/slog"
	"os"
	"sync"
	"time"
)

// VirtualDevice 按时钟驱动的虚拟设备，没有接入真实硬件时使用
type VirtualDevice struct {
	mu       sync.Mutex
	active   bool
	route    Route
	external bool
	denyMic  bool
	tones    []Tone
}

// NewVirtualDevice 创建虚拟设备
func NewVirtualDevice() *VirtualDevice {
	return &VirtualDevice{route: RouteLoudspeaker}
}

func (d *VirtualDevice) Activate(route Route) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.active = true
	d.route = route
	log.Debug("audio session activated", "route", route.String())
	return nil
}

func (d *VirtualDevice) Deactivate() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.active = false
	log.Debug("audio session deactivated")
	return nil
}

func (d *VirtualDevice) SetRoute(route Route) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.route = route
	return nil
}

func (d *VirtualDevice) ExternalConnected() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.external
}

// SetExternalConnected 模拟耳机插拔
func (d *VirtualDevice) SetExternalConnected(connected bool) {
	d.mu.Lock()
	d.external = connected
	d.mu.Unlock()
}

// DenyRecordPermission 模拟拒绝麦克风权限
func (d *VirtualDevice) DenyRecordPermission(deny bool) {
	d.mu.Lock()
	d.denyMic = deny
	d.mu.Unlock()
}

func (d *VirtualDevice) RecordPermission() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return !d.denyMic
}

func (d *VirtualDevice) PlayTone(tone Tone) {
	d.mu.Lock()
	d.tones = append(d.tones, tone)
	d.mu.Unlock()
}

// Active 会话是否处于激活状态
func (d *VirtualDevice) Active() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.active
}

// CurrentRoute 当前路由
func (d *VirtualDevice) CurrentRoute() Route {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.route
}

// Tones 已播放的提示音
func (d *VirtualDevice) Tones() []Tone {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Tone(nil), d.tones...)
}

func (d *VirtualDevice) Open(path string, durationHint time.Duration) (MediaPlayer, error) {
	info, err := os.Stat(path)
	if err != nil || info.Size() == 0 || durationHint <= 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnplayable, path)
	}
	return &virtualPlayer{duration: durationHint, rate: 1}, nil
}

func (d *VirtualDevice) NewRecorder(path string) (Recorder, error) {
	return &virtualRecorder{path: path}, nil
}

type virtualPlayer struct {
	mu       sync.Mutex
	duration time.Duration
	offset   time.Duration
	started  time.Time
	playing  bool
	rate     float64
	timer    *time.Timer
	onFinish func()
	finished bool
}

func (p *virtualPlayer) Play() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.playing {
		return nil
	}
	p.playing = true
	p.started = time.Now()
	p.schedule()
	return nil
}

// schedule 需持有锁
func (p *virtualPlayer) schedule() {
	if p.timer != nil {
		p.timer.Stop()
	}
	remaining := time.Duration(float64(p.duration-p.offset) / p.rate)
	if remaining < 0 {
		remaining = 0
	}
	p.timer = time.AfterFunc(remaining, p.finish)
}

func (p *virtualPlayer) finish() {
	p.mu.Lock()
	if !p.playing || p.finished {
		p.mu.Unlock()
		return
	}
	p.playing = false
	p.finished = true
	p.offset = p.duration
	fn := p.onFinish
	p.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (p *virtualPlayer) elapsed() time.Duration {
	if !p.playing {
		return p.offset
	}
	t := p.offset + time.Duration(float64(time.Since(p.started))*p.rate)
	if t > p.duration {
		t = p.duration
	}
	return t
}

func (p *virtualPlayer) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.offset = p.elapsed()
	p.playing = false
	if p.timer != nil {
		p.timer.Stop()
	}
}

func (p *virtualPlayer) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.playing = false
	p.finished = true
	if p.timer != nil {
		p.timer.Stop()
	}
}

func (p *virtualPlayer) Seek(t time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if t < 0 {
		t = 0
	}
	if t > p.duration {
		t = p.duration
	}
	p.offset = t
	p.finished = false
	if p.playing {
		p.started = time.Now()
		p.schedule()
	}
}

func (p *virtualPlayer) CurrentTime() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.elapsed()
}

func (p *virtualPlayer) Duration() time.Duration { return p.duration }

func (p *virtualPlayer) SetRate(rate float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if rate <= 0 {
		return
	}
	p.offset = p.elapsed()
	p.started = time.Now()
	p.rate = rate
	if p.playing {
		p.schedule()
	}
}

func (p *virtualPlayer) OnFinish(fn func()) {
	p.mu.Lock()
	p.onFinish = fn
	p.mu.Unlock()
}

type virtualRecorder struct {
	path    string
	started time.Time
	file    *os.File
}

func (r *virtualRecorder) Start() error {
	f, err := os.Create(r.path)
	if err != nil {
		return err
	}
	r.file = f
	r.started = time.Now()
	return nil
}

func (r *virtualRecorder) Stop() (time.Duration, error) {
	if r.file == nil {
		return 0, nil
	}
	d := time.Since(r.started)
	// 虚拟录音只写入时长，足以让上传与播放链路跑通
	_, err := fmt.Fprintf(r.file, "virtual-recording %d\n", d.Milliseconds())
	closeErr := r.file.Close()
	r.file = nil
	if err != nil {
		return d, err
	}
	return d, closeErr
}

func (r *virtualRecorder) Path() string { return r.path }
