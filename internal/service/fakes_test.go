package service

import (
	"Roger/internal/pkg/audio"
	"errors"
	"os"
	"sync"
	"time"
)

type fakeMedia struct {
	mu       sync.Mutex
	path     string
	duration time.Duration
	current  time.Duration
	rate     float64
	playing  bool
	stopped  bool
	onFinish func()
}

func (m *fakeMedia) Play() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.playing = true
	return nil
}

func (m *fakeMedia) Pause() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.playing = false
}

func (m *fakeMedia) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.playing = false
	m.stopped = true
}

func (m *fakeMedia) Seek(t time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = t
}

func (m *fakeMedia) CurrentTime() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

func (m *fakeMedia) Duration() time.Duration { return m.duration }

func (m *fakeMedia) SetRate(rate float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rate = rate
}

func (m *fakeMedia) OnFinish(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onFinish = fn
}

// finish 模拟播放到结尾，必须在队列以外调用
func (m *fakeMedia) finish() {
	m.mu.Lock()
	fn := m.onFinish
	m.current = m.duration
	m.playing = false
	m.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (m *fakeMedia) isStopped() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopped
}

type fakeRecorder struct {
	path     string
	duration time.Duration
	started  bool
}

func (r *fakeRecorder) Start() error {
	r.started = true
	return os.WriteFile(r.path, []byte("recording"), 0o644)
}

func (r *fakeRecorder) Stop() (time.Duration, error) {
	if !r.started {
		return 0, errors.New("not started")
	}
	r.started = false
	return r.duration, nil
}

func (r *fakeRecorder) Path() string { return r.path }

type fakeDevice struct {
	mu          sync.Mutex
	active      bool
	route       audio.Route
	activations int
	external    bool
	denyMic     bool
	failSession bool
	unplayable  map[string]bool
	opened      []*fakeMedia
	tones       []audio.Tone
	recorded    time.Duration
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{unplayable: make(map[string]bool), recorded: 3 * time.Second}
}

func (d *fakeDevice) Activate(route audio.Route) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failSession {
		return audio.ErrSessionUnavailable
	}
	d.active = true
	d.route = route
	d.activations++
	return nil
}

func (d *fakeDevice) Deactivate() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.active = false
	return nil
}

func (d *fakeDevice) SetRoute(route audio.Route) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.route = route
	return nil
}

func (d *fakeDevice) ExternalConnected() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.external
}

func (d *fakeDevice) RecordPermission() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return !d.denyMic
}

func (d *fakeDevice) PlayTone(tone audio.Tone) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tones = append(d.tones, tone)
}

func (d *fakeDevice) Open(path string, durationHint time.Duration) (audio.MediaPlayer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.unplayable[path] {
		return nil, audio.ErrUnplayable
	}
	m := &fakeMedia{path: path, duration: durationHint, rate: 1}
	d.opened = append(d.opened, m)
	return m, nil
}

func (d *fakeDevice) NewRecorder(path string) (audio.Recorder, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return &fakeRecorder{path: path, duration: d.recorded}, nil
}

func (d *fakeDevice) lastMedia() *fakeMedia {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.opened) == 0 {
		return nil
	}
	return d.opened[len(d.opened)-1]
}

func (d *fakeDevice) openCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.opened)
}

func (d *fakeDevice) isActive() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.active
}

func (d *fakeDevice) currentRoute() audio.Route {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.route
}

// fakeFiles 以 url 作为本地路径，未标记缓存的 url 视为尚未下载
type fakeFiles struct {
	mu         sync.Mutex
	cached     map[string]bool
	prefetched []string
}

func newFakeFiles(urls ...string) *fakeFiles {
	f := &fakeFiles{cached: make(map[string]bool)}
	for _, u := range urls {
		f.cached[u] = true
	}
	return f
}

func (f *fakeFiles) LocalPath(url string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return url, f.cached[url]
}

func (f *fakeFiles) Prefetch(url string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prefetched = append(f.prefetched, url)
}

func (f *fakeFiles) markCached(url string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cached[url] = true
}

func (f *fakeFiles) prefetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.prefetched)
}
