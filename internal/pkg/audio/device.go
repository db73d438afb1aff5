// Package audio 抽象硬件音频会话、播放器与录音器，只有 AudioService 直接持有这些对象。
package audio

import (
	"errors"
	"time"
)

var (
	// ErrUnplayable 文件无法打开或解码
	ErrUnplayable = errors.New("audio: media unplayable")
	// ErrSessionUnavailable 无法激活音频会话
	ErrSessionUnavailable = errors.New("audio: session unavailable")
)

// Route 输出路由
type Route int

const (
	RouteLoudspeaker Route = iota
	RouteReceiver
	RouteExternal
)

func (r Route) String() string {
	switch r {
	case RouteLoudspeaker:
		return "loudspeaker"
	case RouteReceiver:
		return "receiver"
	case RouteExternal:
		return "external"
	default:
		return "unknown"
	}
}

// Tone 提示音
type Tone string

const (
	ToneStartRecording Tone = "start-recording"
	ToneStopRecording  Tone = "stop-recording"
	ToneCancel         Tone = "cancel"
)

// Device 硬件音频设备。实现需并发安全，回调可能在任意 goroutine 上触发。
type Device interface {
	// Activate 以指定路由激活音频会话
	Activate(route Route) error
	// Deactivate 释放音频会话
	Deactivate() error
	// SetRoute 会话激活期间切换路由
	SetRoute(route Route) error
	// ExternalConnected 是否连接了有线/蓝牙设备
	ExternalConnected() bool
	// RecordPermission 请求麦克风权限，拒绝时返回 false
	RecordPermission() bool
	// PlayTone 播放提示音，不阻塞
	PlayTone(tone Tone)
	// Open 打开本地音频文件，durationHint 为元数据中的时长
	Open(path string, durationHint time.Duration) (MediaPlayer, error)
	// NewRecorder 创建写入 path 的录音器
	NewRecorder(path string) (Recorder, error)
}

// MediaPlayer 单个文件的播放器
type MediaPlayer interface {
	Play() error
	Pause()
	Stop()
	Seek(t time.Duration)
	CurrentTime() time.Duration
	Duration() time.Duration
	SetRate(rate float64)
	// OnFinish 播放到结尾时回调一次
	OnFinish(fn func())
}

// Recorder 录音器
type Recorder interface {
	Start() error
	// Stop 停止录音并返回录制时长
	Stop() (time.Duration, error)
	Path() string
}
