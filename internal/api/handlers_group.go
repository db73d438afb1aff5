package api

import "Roger/internal/api/handler"

// HandlersGroup 封装了所有已初始化的 Handler 实例
type HandlersGroup struct {
	StreamHandler  *handler.StreamHandler
	AudioHandler   *handler.AudioHandler
	ContactHandler *handler.ContactHandler
	SessionHandler *handler.SessionHandler
	PushHandler    *handler.PushHandler
	WsHandler      *handler.WsHandler
}
