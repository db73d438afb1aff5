package service

import (
	"Roger/internal/api/config"
	"Roger/internal/model"
	"Roger/internal/pkg/audio"
	"Roger/internal/pkg/dispatch"
	"Roger/internal/pkg/event"
	"fmt"
	"io"
	log "log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

const (
	defaultReleaseDelay  = 2 * time.Second
	defaultRewindSeconds = 5
	recordingFilename    = "recording.m4a"
)

// AudioStateKind 顶层音频状态
type AudioStateKind int

const (
	AudioUnknown AudioStateKind = iota
	AudioIdle
	AudioPlaying
	AudioRecording
)

func (k AudioStateKind) String() string {
	switch k {
	case AudioIdle:
		return "idle"
	case AudioPlaying:
		return "playing"
	case AudioRecording:
		return "recording"
	default:
		return "unknown"
	}
}

// AudioState Ready 只在 playing 时有意义，false 表示仍在加载
type AudioState struct {
	Kind  AudioStateKind `json:"kind"`
	Ready bool           `json:"ready"`
}

func (s AudioState) String() string {
	if s.Kind == AudioPlaying && !s.Ready {
		return "playing(loading)"
	}
	return s.Kind.String()
}

// ChunkChange 当前播放的分片
type ChunkChange struct {
	Stream *model.Stream
	Chunk  model.Chunk
}

// AudioService 顶层音频状态机，独占硬件会话、录音器与播放器。所有方法只能在主队列上调用。
type AudioService struct {
	queue   *dispatch.Queue
	device  audio.Device
	streams StreamService
	files   AudioFiles

	tempDir       string
	releaseDelay  time.Duration
	pollInterval  time.Duration
	rewindSeconds float64
	rate          float64

	state AudioState

	player        *Player
	playerRemove  []func()
	playingStream *model.Stream

	recorder        audio.Recorder
	recordingStream *model.Stream
	resumeStream    *model.Stream
	interrupted     *model.Stream

	routes           routePolicy
	usingLoudspeaker bool
	sessionActive    bool
	releaseTimer     *dispatch.Timer

	// StateChanged 参数为旧状态
	StateChanged event.Event[AudioState]
	// CurrentChunkChanged 开始播放新的分片
	CurrentChunkChanged event.Event[ChunkChange]
	// RouteChanged 参数为是否外放
	RouteChanged event.Event[bool]
	// ChunkSent 录音发送完成，err 为 nil 表示成功
	ChunkSent event.Event[error]
}

func NewAudioService(queue *dispatch.Queue, device audio.Device, streams StreamService, files AudioFiles, tempDir string, cfg config.AudioConfig) *AudioService {
	releaseDelay := time.Duration(cfg.ReleaseDelayMs) * time.Millisecond
	if releaseDelay <= 0 {
		releaseDelay = defaultReleaseDelay
	}
	rewind := cfg.RewindSeconds
	if rewind <= 0 {
		rewind = defaultRewindSeconds
	}
	rate := cfg.DefaultRate
	if rate <= 0 {
		rate = 1
	}
	return &AudioService{
		queue:         queue,
		device:        device,
		streams:       streams,
		files:         files,
		tempDir:       tempDir,
		releaseDelay:  releaseDelay,
		pollInterval:  time.Duration(cfg.PollIntervalMs) * time.Millisecond,
		rewindSeconds: rewind,
		rate:          rate,
		state:         AudioState{Kind: AudioUnknown},
	}
}

// Start 进入 idle，并在会话有新分片时预先缓存
func (a *AudioService) Start() (remove func()) {
	a.usingLoudspeaker = a.routes.loudspeaker(a.device, false)
	a.setState(AudioState{Kind: AudioIdle})
	return a.streams.OnStreamChanged(a.prefetch)
}

func (a *AudioService) prefetch(stream *model.Stream) {
	for _, c := range stream.UnplayedChunks() {
		a.files.Prefetch(c.AudioURL)
	}
}

func (a *AudioService) State() AudioState { return a.state }

// PlayingStream 正在播放的会话
func (a *AudioService) PlayingStream() *model.Stream { return a.playingStream }

// RecordingStream 正在录音的会话
func (a *AudioService) RecordingStream() *model.Stream { return a.recordingStream }

// Player 当前播放器，没有播放时为 nil
func (a *AudioService) Player() *Player { return a.player }

func (a *AudioService) setState(s AudioState) {
	if a.state == s {
		return
	}
	old := a.state
	a.state = s
	log.Debug("audio state changed", "from", old.String(), "to", s.String())
	a.StateChanged.Emit(old)
}

// activateSession 取消待执行的释放并按当前路由激活会话
func (a *AudioService) activateSession(recording bool) error {
	if a.releaseTimer != nil {
		a.releaseTimer.Stop()
		a.releaseTimer = nil
	}
	route := a.routes.route(a.device, recording)
	var err error
	if a.sessionActive {
		err = a.device.SetRoute(route)
	} else {
		err = a.device.Activate(route)
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSessionUnavailable, err)
	}
	a.sessionActive = true
	a.setLoudspeaker(route == audio.RouteLoudspeaker)
	return nil
}

// scheduleRelease 延迟释放会话，避免紧接着的操作反复激活
func (a *AudioService) scheduleRelease() {
	if a.releaseTimer != nil {
		a.releaseTimer.Stop()
	}
	a.releaseTimer = a.queue.After(a.releaseDelay, func() {
		a.releaseTimer = nil
		if a.state.Kind != AudioIdle || !a.sessionActive {
			return
		}
		if err := a.device.Deactivate(); err != nil {
			log.Warn("release audio session failed", "err", err)
		}
		a.sessionActive = false
	})
}

// SessionActive 硬件会话是否处于激活状态
func (a *AudioService) SessionActive() bool { return a.sessionActive }

// Play 播放会话中未收听的内容；没有未收听内容时重播最后一个分片。录音中返回 ErrBusy。
func (a *AudioService) Play(stream *model.Stream) error {
	if stream == nil {
		return ErrStreamNotFound
	}
	if a.state.Kind == AudioRecording {
		return ErrBusy
	}
	chunks := stream.PlayableChunks()
	if len(chunks) == 0 {
		return ErrNothingToPlay
	}

	startAt := stream.PlayedUntil()
	if pos, ok := a.streams.PlayPosition(stream.ID()); ok && pos > startAt {
		startAt = pos
	}
	if chunks[len(chunks)-1].End <= startAt {
		chunks = chunks[len(chunks)-1:]
		startAt = 0
	}

	if a.state.Kind == AudioPlaying {
		a.stopPlayback(false, false)
	}
	if err := a.activateSession(false); err != nil {
		log.Error("activate audio session failed", "err", err)
		a.setState(AudioState{Kind: AudioIdle})
		a.scheduleRelease()
		return err
	}

	player := NewPlayer(a.queue, a.device, a.files, chunks, a.rate, a.pollInterval)
	a.player = player
	a.playingStream = stream
	a.interrupted = nil
	a.playerRemove = []func(){
		player.StateChanged.AddListener(func(PlayerState) { a.onPlayerStateChanged(player) }),
		player.ChunkChanged.AddListener(func(c model.Chunk) { a.onChunkChanged(player, c) }),
		player.ChunkPlayed.AddListener(func(c model.Chunk) { a.onChunkPlayed(player, c) }),
	}
	a.setState(AudioState{Kind: AudioPlaying, Ready: false})
	player.Play(startAt)
	return nil
}

func (a *AudioService) onPlayerStateChanged(player *Player) {
	if player != a.player {
		return
	}
	switch player.State() {
	case PlayerLoading:
		a.setState(AudioState{Kind: AudioPlaying, Ready: false})
	case PlayerPlaying:
		a.setState(AudioState{Kind: AudioPlaying, Ready: true})
	case PlayerDone:
		a.stopPlayback(true, true)
	}
}

func (a *AudioService) onChunkChanged(player *Player, c model.Chunk) {
	if player != a.player {
		return
	}
	a.CurrentChunkChanged.Emit(ChunkChange{Stream: a.playingStream, Chunk: c})
	a.streams.ReportStatus(a.playingStream.ID(), model.StatusListening, player.RemainingPlayDuration())
}

func (a *AudioService) onChunkPlayed(player *Player, c model.Chunk) {
	if player != a.player {
		return
	}
	a.streams.SetPlayedUntil(a.playingStream, c.End)
}

// stopPlayback 结束播放并保存进度。completed 表示队列已全部播完，release 表示之后进入 idle 并延迟释放会话。
func (a *AudioService) stopPlayback(completed, release bool) {
	player, stream := a.player, a.playingStream
	if player == nil {
		return
	}
	for _, remove := range a.playerRemove {
		remove()
	}
	a.playerRemove = nil
	a.player = nil
	a.playingStream = nil

	if completed {
		chunks := player.Chunks()
		a.streams.SetPlayedUntil(stream, chunks[len(chunks)-1].End)
		a.streams.ClearPlayPosition(stream.ID())
	} else if c, ok := player.CurrentChunk(); ok {
		a.streams.SavePlayPosition(stream.ID(), c.Start+player.CurrentTime().Milliseconds())
	}
	player.Stop()
	a.streams.ReportStatus(stream.ID(), model.StatusIdle, 0)

	if release {
		a.setState(AudioState{Kind: AudioIdle})
		a.scheduleRelease()
	}
}

// Stop 停止播放；录音中则取消录音
func (a *AudioService) Stop() {
	switch a.state.Kind {
	case AudioPlaying:
		a.stopPlayback(false, true)
	case AudioRecording:
		a.resumeStream = nil
		_ = a.StopRecording(true)
	}
}

// StartRecording 开始录音。正在播放时先停止，录音结束后自动恢复播放。
func (a *AudioService) StartRecording(stream *model.Stream) error {
	if stream == nil {
		return ErrStreamNotFound
	}
	if a.state.Kind == AudioRecording {
		return ErrBusy
	}
	if !a.device.RecordPermission() {
		return ErrPermissionDenied
	}

	if a.state.Kind == AudioPlaying {
		a.resumeStream = a.playingStream
		a.stopPlayback(false, false)
	}
	if err := a.activateSession(true); err != nil {
		log.Error("activate audio session failed", "err", err)
		a.resumeStream = nil
		a.setState(AudioState{Kind: AudioIdle})
		a.scheduleRelease()
		return err
	}

	if err := os.MkdirAll(a.tempDir, 0o755); err != nil {
		a.abortRecording()
		return fmt.Errorf("create temp dir: %w", err)
	}
	recorder, err := a.device.NewRecorder(filepath.Join(a.tempDir, recordingFilename))
	if err == nil {
		err = recorder.Start()
	}
	if err != nil {
		a.abortRecording()
		return fmt.Errorf("start recording: %w", err)
	}

	a.device.PlayTone(audio.ToneStartRecording)
	a.recorder = recorder
	a.recordingStream = stream
	a.setState(AudioState{Kind: AudioRecording})
	a.updateRoute()
	a.streams.ReportStatus(stream.ID(), model.StatusTalking, 0)
	return nil
}

func (a *AudioService) abortRecording() {
	a.resumeStream = nil
	a.setState(AudioState{Kind: AudioIdle})
	a.scheduleRelease()
}

// StopRecording 停止录音。未取消时把文件复制到独立的临时文件再发送，以便立即开始下一段录音。
func (a *AudioService) StopRecording(cancel bool) error {
	if a.state.Kind != AudioRecording || a.recorder == nil {
		return nil
	}
	recorder, stream := a.recorder, a.recordingStream
	a.recorder = nil
	a.recordingStream = nil

	duration, err := recorder.Stop()
	if err != nil {
		log.Error("stop recorder failed", "err", err)
		cancel = true
	}

	if cancel {
		a.device.PlayTone(audio.ToneCancel)
	} else {
		a.device.PlayTone(audio.ToneStopRecording)
		sendPath := filepath.Join(a.tempDir, uuid.NewString()+".m4a")
		if err = copyFile(recorder.Path(), sendPath); err != nil {
			log.Error("copy recording failed", "err", err)
		} else {
			a.streams.SendChunk(stream.ID(), sendPath, duration, func(err error) {
				a.ChunkSent.Emit(err)
			})
		}
	}
	a.streams.ReportStatus(stream.ID(), model.StatusIdle, 0)
	a.setState(AudioState{Kind: AudioIdle})

	if resume := a.resumeStream; resume != nil {
		a.resumeStream = nil
		if playErr := a.Play(resume); playErr == nil {
			return err
		}
	}
	a.updateRoute()
	a.scheduleRelease()
	return err
}

// HandleInterruption 来电等外部中断。开始时停止播放并记住会话，结束时自动恢复。
func (a *AudioService) HandleInterruption(began bool) {
	if began {
		switch a.state.Kind {
		case AudioPlaying:
			a.interrupted = a.playingStream
			a.stopPlayback(false, true)
		case AudioRecording:
			// 中断期间不恢复播放，结束后再续播
			a.interrupted = a.resumeStream
			a.resumeStream = nil
			_ = a.StopRecording(false)
		}
		return
	}
	if stream := a.interrupted; stream != nil && a.state.Kind == AudioIdle {
		a.interrupted = nil
		if err := a.Play(stream); err != nil {
			log.Warn("resume after interruption failed", "stream_id", stream.ID(), "err", err)
		}
	}
}

func (a *AudioService) SkipNext() error {
	if a.player == nil {
		return ErrNothingToPlay
	}
	a.player.SkipNext()
	return nil
}

func (a *AudioService) SkipPrevious() error {
	if a.player == nil {
		return ErrNothingToPlay
	}
	a.player.SkipPrevious()
	return nil
}

// Rewind seconds <= 0 时使用配置的回退量
func (a *AudioService) Rewind(seconds float64) error {
	if a.player == nil {
		return ErrNothingToPlay
	}
	if seconds <= 0 {
		seconds = a.rewindSeconds
	}
	a.player.Rewind(seconds)
	return nil
}

func (a *AudioService) Forward(seconds float64) error {
	if a.player == nil {
		return ErrNothingToPlay
	}
	if seconds <= 0 {
		seconds = a.rewindSeconds
	}
	a.player.Forward(seconds)
	return nil
}

// SetRate 对当前与之后的播放生效
func (a *AudioService) SetRate(rate float64) error {
	if rate <= 0 || rate > 4 {
		return ErrParamInvalid
	}
	a.rate = rate
	if a.player != nil {
		a.player.SetRate(rate)
	}
	return nil
}

func (a *AudioService) Rate() float64 { return a.rate }

// Shutdown 停止一切并立即释放会话
func (a *AudioService) Shutdown() {
	a.interrupted = nil
	a.Stop()
	if a.releaseTimer != nil {
		a.releaseTimer.Stop()
		a.releaseTimer = nil
	}
	if a.sessionActive {
		_ = a.device.Deactivate()
		a.sessionActive = false
	}
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
