package handler

import (
	"Roger/internal/pkg/response"
	"Roger/internal/service"
	"io"

	"github.com/gin-gonic/gin"
)

const maxPushBody = 1 << 20

// PushHandler 接收本机转发的推送，未启用 redis 推送总线时使用
type PushHandler struct {
	push *service.PushService
}

func NewPushHandler(push *service.PushService) *PushHandler {
	return &PushHandler{push: push}
}

func (s *PushHandler) Deliver(c *gin.Context) {
	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, maxPushBody))
	if err != nil {
		response.Error(c, service.ErrParamInvalid)
		return
	}
	if err = s.push.Handle(c.Request.Context(), raw); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}
