package service

import (
	"Roger/internal/model"
	"Roger/internal/pkg/audio"
	"Roger/internal/pkg/dispatch"
	"Roger/internal/pkg/event"
	log "log/slog"
	"time"
)

const (
	defaultPollInterval = 100 * time.Millisecond
	// 回退阈值为经验值
	rewindSubtractFactor = 1.6
	rewindRestartFactor  = 0.6
)

// PlayerState 播放器状态
type PlayerState int

const (
	PlayerDone PlayerState = iota
	PlayerLoading
	PlayerPlaying
)

func (s PlayerState) String() string {
	switch s {
	case PlayerLoading:
		return "loading"
	case PlayerPlaying:
		return "playing"
	default:
		return "done"
	}
}

// Player 按顺序播放一组分片。所有方法只能在主队列上调用。
type Player struct {
	queue        *dispatch.Queue
	device       audio.Device
	files        AudioFiles
	pollInterval time.Duration

	chunks        []model.Chunk
	index         int
	rate          float64
	played        time.Duration
	state         PlayerState
	media         audio.MediaPlayer
	pendingOffset time.Duration
	poll          *dispatch.Timer
	generation    uint64
	announced     int64

	// StateChanged 参数为旧状态
	StateChanged event.Event[PlayerState]
	// ChunkChanged 开始处理新的分片
	ChunkChanged event.Event[model.Chunk]
	// ChunkPlayed 分片播放完毕或被跳过
	ChunkPlayed event.Event[model.Chunk]
}

// NewPlayer 创建播放器，调用 Play 之前处于 done 状态
func NewPlayer(queue *dispatch.Queue, device audio.Device, files AudioFiles, chunks []model.Chunk, rate float64, pollInterval time.Duration) *Player {
	if rate <= 0 {
		rate = 1
	}
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	return &Player{
		queue:        queue,
		device:       device,
		files:        files,
		pollInterval: pollInterval,
		chunks:       append([]model.Chunk(nil), chunks...),
		rate:         rate,
		state:        PlayerDone,
	}
}

func (p *Player) State() PlayerState { return p.state }
func (p *Player) Index() int { return p.index }
func (p *Player) Rate() float64 { return p.rate }

// PlayedDuration 已播放完的分片累计时长
func (p *Player) PlayedDuration() time.Duration { return p.played }

// Chunks 播放队列
func (p *Player) Chunks() []model.Chunk {
	return append([]model.Chunk(nil), p.chunks...)
}

// CurrentChunk 当前分片，队列为空时返回 false
func (p *Player) CurrentChunk() (model.Chunk, bool) {
	if p.index < 0 || p.index >= len(p.chunks) {
		return model.Chunk{}, false
	}
	return p.chunks[p.index], true
}

// CurrentTime 当前分片内的播放位置，加载中时为待定位的偏移
func (p *Player) CurrentTime() time.Duration {
	if p.media != nil {
		return p.media.CurrentTime()
	}
	return p.pendingOffset
}

// Play 从 startAt 之后的第一个分片开始播放；startAt <= 0 时从当前分片开头播放
func (p *Player) Play(startAt int64) {
	if len(p.chunks) == 0 {
		p.finish()
		return
	}
	var offset time.Duration
	if startAt > 0 {
		idx := -1
		for i, c := range p.chunks {
			if c.End > startAt {
				idx = i
				break
			}
		}
		if idx < 0 {
			p.finish()
			return
		}
		p.index = idx
		if c := p.chunks[idx]; startAt > c.Start {
			offset = time.Duration(startAt-c.Start) * time.Millisecond
		}
	}
	if p.index >= len(p.chunks) {
		p.index = len(p.chunks) - 1
	}
	p.load(offset)
}

// load 打开当前分片；文件未缓存时进入 loading 并轮询
func (p *Player) load(offset time.Duration) {
	p.release()
	p.generation++
	gen := p.generation
	p.pendingOffset = offset

	chunk := p.chunks[p.index]
	if p.announced != chunk.ID {
		p.announced = chunk.ID
		p.ChunkChanged.Emit(chunk)
	}

	path, ok := p.files.LocalPath(chunk.AudioURL)
	if !ok {
		p.files.Prefetch(chunk.AudioURL)
		p.setState(PlayerLoading)
		p.poll = p.queue.After(p.pollInterval, func() {
			if gen == p.generation {
				p.load(p.pendingOffset)
			}
		})
		return
	}

	media, err := p.device.Open(path, chunk.Duration())
	if err != nil {
		log.Warn("chunk unplayable, skipping", "chunk_id", chunk.ID, "err", err)
		p.next()
		return
	}
	media.SetRate(p.rate)
	if offset > 0 {
		media.Seek(offset)
	}
	media.OnFinish(func() {
		_ = p.queue.Do(func() {
			if gen == p.generation {
				p.SkipNext()
			}
		})
	})
	if err := media.Play(); err != nil {
		log.Warn("chunk playback failed, skipping", "chunk_id", chunk.ID, "err", err)
		media.Stop()
		p.next()
		return
	}
	p.media = media
	p.pendingOffset = 0
	p.setState(PlayerPlaying)
}

// release 取消轮询并停止当前文件
func (p *Player) release() {
	if p.poll != nil {
		p.poll.Stop()
		p.poll = nil
	}
	if p.media != nil {
		p.media.OnFinish(nil)
		p.media.Stop()
		p.media = nil
	}
}

func (p *Player) setState(s PlayerState) {
	if p.state == s {
		return
	}
	old := p.state
	p.state = s
	p.StateChanged.Emit(old)
}

func (p *Player) finish() {
	p.release()
	p.generation++
	p.pendingOffset = 0
	p.announced = 0
	p.setState(PlayerDone)
}

// SkipNext 记录当前分片已播放并前进，已是最后一个时结束
func (p *Player) SkipNext() {
	if p.state == PlayerDone {
		return
	}
	p.next()
}

// next 不检查状态，加载失败时也要前进
func (p *Player) next() {
	chunk := p.chunks[p.index]
	p.played += chunk.Duration()
	gen := p.generation
	p.ChunkPlayed.Emit(chunk)
	if gen != p.generation {
		// 监听者已停止或重新加载
		return
	}
	if p.index >= len(p.chunks)-1 {
		p.finish()
		return
	}
	p.index++
	p.load(0)
}

// SkipPrevious 回到上一个分片开头
func (p *Player) SkipPrevious() {
	if p.state == PlayerDone {
		return
	}
	if p.index > 0 {
		p.index--
	}
	p.load(0)
}

// Rewind 已播放超过 1.6 倍回退量时回退；0.6 到 1.6 倍之间回到分片开头；否则回到上一个分片结尾前 seconds 处
func (p *Player) Rewind(seconds float64) {
	if p.state == PlayerDone {
		return
	}
	amount := time.Duration(seconds * float64(time.Second))
	current := p.CurrentTime()
	switch {
	case current > time.Duration(float64(amount)*rewindSubtractFactor):
		p.seek(current - amount)
	case current >= time.Duration(float64(amount)*rewindRestartFactor):
		p.seek(0)
	case p.index > 0:
		p.index--
		prev := p.chunks[p.index].Duration() - amount
		if prev < 0 {
			prev = 0
		}
		p.load(prev)
	default:
		p.seek(0)
	}
}

// Forward 超出当前分片时直接跳到下一个分片
func (p *Player) Forward(seconds float64) {
	if p.state == PlayerDone {
		return
	}
	amount := time.Duration(seconds * float64(time.Second))
	target := p.CurrentTime() + amount
	if target > p.chunks[p.index].Duration() {
		p.SkipNext()
		return
	}
	p.seek(target)
}

func (p *Player) seek(t time.Duration) {
	if p.media != nil {
		p.media.Seek(t)
		return
	}
	p.pendingOffset = t
}

// SetRate 修改播放速度，对后续分片同样生效
func (p *Player) SetRate(rate float64) {
	if rate <= 0 {
		return
	}
	p.rate = rate
	if p.media != nil {
		p.media.SetRate(rate)
	}
}

// Stop 停止播放并进入 done
func (p *Player) Stop() {
	p.finish()
}

// RemainingPlayDuration 尚未到达的分片时长加上当前分片剩余部分
func (p *Player) RemainingPlayDuration() time.Duration {
	if p.state == PlayerDone || len(p.chunks) == 0 {
		return 0
	}
	remaining := p.chunks[p.index].Duration() - p.CurrentTime()
	if remaining < 0 {
		remaining = 0
	}
	for _, c := range p.chunks[p.index+1:] {
		remaining += c.Duration()
	}
	return remaining
}
