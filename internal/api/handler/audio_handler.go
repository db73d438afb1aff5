package handler

import (
	"Roger/internal/api/dto"
	"Roger/internal/pkg/dispatch"
	"Roger/internal/pkg/response"
	"Roger/internal/service"

	"github.com/gin-gonic/gin"
)

// ExternalRoute 模拟耳机/蓝牙接入
type ExternalRoute interface {
	SetExternalConnected(connected bool)
}

type AudioHandler struct {
	queue  *dispatch.Queue
	audio  *service.AudioService
	device ExternalRoute
}

func NewAudioHandler(queue *dispatch.Queue, audio *service.AudioService, device ExternalRoute) *AudioHandler {
	return &AudioHandler{queue: queue, audio: audio, device: device}
}

// audioSnapshot 主队列调用
func audioSnapshot(a *service.AudioService) dto.AudioStateDTO {
	state := a.State()
	out := dto.AudioStateDTO{
		State:       state.Kind.String(),
		Ready:       state.Ready,
		Rate:        a.Rate(),
		Loudspeaker: a.UsingLoudspeaker(),
	}
	if stream := a.PlayingStream(); stream != nil {
		out.StreamID = stream.ID()
	}
	if stream := a.RecordingStream(); stream != nil {
		out.Recording = stream.ID()
	}
	if p := a.Player(); p != nil {
		if c, ok := p.CurrentChunk(); ok {
			out.ChunkID = c.ID
		}
		out.ChunkIndex = p.Index()
		out.PositionMs = p.CurrentTime().Milliseconds()
		out.RemainingMs = p.RemainingPlayDuration().Milliseconds()
	}
	return out
}

// run 在主队列上执行控制操作并返回最新状态
func (s *AudioHandler) run(c *gin.Context, fn func(a *service.AudioService) error) {
	state, err := onMain(s.queue, func() (dto.AudioStateDTO, error) {
		if err := fn(s.audio); err != nil {
			return dto.AudioStateDTO{}, err
		}
		return audioSnapshot(s.audio), nil
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, state)
}

func (s *AudioHandler) State(c *gin.Context) {
	s.run(c, func(*service.AudioService) error { return nil })
}

func (s *AudioHandler) Stop(c *gin.Context) {
	s.run(c, func(a *service.AudioService) error {
		a.Stop()
		return nil
	})
}

func (s *AudioHandler) Next(c *gin.Context) {
	s.run(c, func(a *service.AudioService) error { return a.SkipNext() })
}

func (s *AudioHandler) Previous(c *gin.Context) {
	s.run(c, func(a *service.AudioService) error { return a.SkipPrevious() })
}

func (s *AudioHandler) Rewind(c *gin.Context) {
	var req dto.SeekDTO
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		response.Error(c, err)
		return
	}
	s.run(c, func(a *service.AudioService) error { return a.Rewind(req.Seconds) })
}

func (s *AudioHandler) Forward(c *gin.Context) {
	var req dto.SeekDTO
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		response.Error(c, err)
		return
	}
	s.run(c, func(a *service.AudioService) error { return a.Forward(req.Seconds) })
}

func (s *AudioHandler) Rate(c *gin.Context) {
	var req dto.RateDTO
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, err)
		return
	}
	s.run(c, func(a *service.AudioService) error { return a.SetRate(req.Rate) })
}

func (s *AudioHandler) Loudspeaker(c *gin.Context) {
	var req dto.LoudspeakerDTO
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, err)
		return
	}
	s.run(c, func(a *service.AudioService) error {
		a.RequestLoudspeaker(req.On)
		return nil
	})
}

func (s *AudioHandler) Proximity(c *gin.Context) {
	var req dto.ProximityDTO
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, err)
		return
	}
	s.run(c, func(a *service.AudioService) error {
		a.SetProximity(req.Near)
		return nil
	})
}

// RouteChanged 耳机插拔通知
func (s *AudioHandler) RouteChanged(c *gin.Context) {
	var req dto.RouteDTO
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		response.Error(c, err)
		return
	}
	if req.External != nil && s.device != nil {
		s.device.SetExternalConnected(*req.External)
	}
	s.run(c, func(a *service.AudioService) error {
		a.HandleRouteChange()
		return nil
	})
}

func (s *AudioHandler) Interruption(c *gin.Context) {
	var req dto.InterruptionDTO
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, err)
		return
	}
	s.run(c, func(a *service.AudioService) error {
		a.HandleInterruption(req.Began)
		return nil
	})
}

func (s *AudioHandler) StopRecording(c *gin.Context) {
	var req dto.StopRecordingDTO
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		response.Error(c, err)
		return
	}
	s.run(c, func(a *service.AudioService) error { return a.StopRecording(req.Cancel) })
}
