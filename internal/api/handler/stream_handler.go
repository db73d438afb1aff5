package handler

import (
	"Roger/internal/api/dto"
	"Roger/internal/model"
	"Roger/internal/pkg/dispatch"
	"Roger/internal/pkg/response"
	"Roger/internal/service"
	"context"
	"time"

	"github.com/gin-gonic/gin"
)

type StreamHandler struct {
	queue   *dispatch.Queue
	streams service.StreamService
	audio   *service.AudioService
}

func NewStreamHandler(queue *dispatch.Queue, streams service.StreamService, audio *service.AudioService) *StreamHandler {
	return &StreamHandler{queue: queue, streams: streams, audio: audio}
}

// List 最近会话，refresh=1 时先从后端拉取第一页
func (s *StreamHandler) List(c *gin.Context) {
	ctx := c.Request.Context()
	if c.Query("refresh") == "1" {
		if err := s.streams.LoadStreams(ctx); err != nil {
			response.Error(c, err)
			return
		}
	}
	list, err := onMain(s.queue, func() ([]dto.StreamSummaryDTO, error) {
		now := time.Now()
		recents := s.streams.Recents()
		out := make([]dto.StreamSummaryDTO, 0, len(recents))
		for _, stream := range recents {
			out = append(out, dto.NewStreamSummaryDTO(stream, now))
		}
		return out, nil
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, list)
}

func (s *StreamHandler) LoadMore(c *gin.Context) {
	more, err := s.streams.LoadNextPage(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"has_more": more})
}

// stream 本地没有时从后端拉取
func (s *StreamHandler) stream(ctx context.Context, id int64) (*model.Stream, error) {
	stream, err := onMain(s.queue, func() (*model.Stream, error) {
		return s.streams.GetStream(id), nil
	})
	if err != nil {
		return nil, err
	}
	if stream != nil {
		return stream, nil
	}
	return s.streams.FetchStream(ctx, id)
}

func (s *StreamHandler) Get(c *gin.Context) {
	id, err := paramInt64(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	stream, err := s.stream(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	detail, err := onMain(s.queue, func() (dto.StreamDTO, error) {
		return dto.NewStreamDTO(stream, time.Now()), nil
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, detail)
}

func (s *StreamHandler) Create(c *gin.Context) {
	var req dto.CreateStreamDTO
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, err)
		return
	}
	stream, err := s.streams.CreateStream(c.Request.Context(), req.Identifiers, req.Title)
	if err != nil {
		response.Error(c, err)
		return
	}
	detail, err := onMain(s.queue, func() (dto.StreamDTO, error) {
		return dto.NewStreamDTO(stream, time.Now()), nil
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, detail)
}

func (s *StreamHandler) Hide(c *gin.Context) {
	id, err := paramInt64(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	if err = s.streams.HideStream(c.Request.Context(), id); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}

func (s *StreamHandler) Play(c *gin.Context) {
	s.withStream(c, func(stream *model.Stream) error {
		return s.audio.Play(stream)
	})
}

func (s *StreamHandler) Record(c *gin.Context) {
	s.withStream(c, func(stream *model.Stream) error {
		return s.audio.StartRecording(stream)
	})
}

// withStream 在主队列上对会话执行音频操作并返回最新音频状态
func (s *StreamHandler) withStream(c *gin.Context, fn func(*model.Stream) error) {
	id, err := paramInt64(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	stream, err := s.stream(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	state, err := onMain(s.queue, func() (dto.AudioStateDTO, error) {
		if err := fn(stream); err != nil {
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
