package dto

// AudioStateDTO 音频状态快照
type AudioStateDTO struct {
	State       string  `json:"state"`
	Ready       bool    `json:"ready"`
	StreamID    int64   `json:"stream_id,omitempty"`
	ChunkID     int64   `json:"chunk_id,omitempty"`
	ChunkIndex  int     `json:"chunk_index"`
	PositionMs  int64   `json:"position_ms"`
	RemainingMs int64   `json:"remaining_ms"`
	Rate        float64 `json:"rate"`
	Loudspeaker bool    `json:"loudspeaker"`
	Recording   int64   `json:"recording_stream_id,omitempty"`
}

type SeekDTO struct {
	Seconds float64 `json:"seconds" binding:"omitempty,gte=0"`
}

type RateDTO struct {
	Rate float64 `json:"rate" binding:"required,gt=0,lte=4"`
}

// LoudspeakerDTO On 为空表示恢复默认路由策略
type LoudspeakerDTO struct {
	On *bool `json:"on"`
}

type ProximityDTO struct {
	Near bool `json:"near"`
}

// RouteDTO External 为空表示只重新评估路由
type RouteDTO struct {
	External *bool `json:"external"`
}

type InterruptionDTO struct {
	Began bool `json:"began"`
}

type StopRecordingDTO struct {
	Cancel bool `json:"cancel"`
}
