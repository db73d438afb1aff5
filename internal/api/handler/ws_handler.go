package handler

import (
	"Roger/internal/api/dto"
	"Roger/internal/model"
	"Roger/internal/pkg/dispatch"
	"Roger/internal/service"
	"errors"
	log "log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
)

const (
	eventBuffer  = 64
	writeTimeout = 10 * time.Second
	pingInterval = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	// 令牌已由中间件校验
	CheckOrigin: func(r *http.Request) bool { return true },
}

// WsHandler 把服务事件推送给本地客户端
type WsHandler struct {
	queue    *dispatch.Queue
	streams  service.StreamService
	audio    *service.AudioService
	contacts *service.ContactService
	session  *service.SessionService
}

func NewWsHandler(queue *dispatch.Queue, streams service.StreamService, audio *service.AudioService,
	contacts *service.ContactService, session *service.SessionService) *WsHandler {
	return &WsHandler{queue: queue, streams: streams, audio: audio, contacts: contacts, session: session}
}

// subscribe 注册全部事件，事件在主队列上被转换为消息。缓冲满时丢弃并记录。
func (s *WsHandler) subscribe(out chan<- []byte, done <-chan struct{}) (unsubscribe func()) {
	send := func(typ string, data interface{}) {
		frame, err := json.Marshal(dto.EventDTO{Type: typ, Data: data})
		if err != nil {
			log.Error("encode event failed", "type", typ, "err", err)
			return
		}
		select {
		case <-done:
		case out <- frame:
		default:
			log.Warn("event client too slow, frame dropped", "type", typ)
		}
	}

	removes := []func(){
		s.streams.OnStreamsChanged(func(d service.StreamsDiff) {
			moved := make([][2]int, 0, len(d.Moved))
			for _, m := range d.Moved {
				moved = append(moved, [2]int{m.From, m.To})
			}
			recents := make([]int64, 0)
			for _, stream := range s.streams.Recents() {
				recents = append(recents, stream.ID())
			}
			send("streams", dto.StreamsDiffDTO{Inserted: d.Inserted, Deleted: d.Deleted, Moved: moved, Recents: recents})
		}),
		s.streams.OnStreamChanged(func(stream *model.Stream) {
			send("stream", dto.NewStreamSummaryDTO(stream, time.Now()))
		}),
		s.audio.StateChanged.AddListener(func(service.AudioState) {
			send("audio", audioSnapshot(s.audio))
		}),
		s.audio.CurrentChunkChanged.AddListener(func(change service.ChunkChange) {
			send("chunk", gin.H{"stream_id": change.Stream.ID(), "chunk_id": change.Chunk.ID})
		}),
		s.audio.RouteChanged.AddListener(func(loud bool) {
			send("route", gin.H{"loudspeaker": loud})
		}),
		s.audio.ChunkSent.AddListener(func(err error) {
			data := gin.H{"ok": err == nil, "queued": errors.Is(err, service.ErrChunkQueued)}
			if err != nil {
				data["error"] = err.Error()
			}
			send("chunk_sent", data)
		}),
		s.contacts.ContactsChanged.AddListener(func(count int) {
			send("contacts", gin.H{"count": count})
		}),
		s.session.SessionChanged.AddListener(func(*model.Session) {
			send("session", gin.H{"account_id": s.session.AccountID()})
		}),
	}
	return func() {
		for _, remove := range removes {
			remove()
		}
	}
}

func (s *WsHandler) Connect(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.ErrorContext(c.Request.Context(), "WS 协议升级失败", "err", err)
		return
	}
	defer func() {
		_ = conn.Close()
	}()

	out := make(chan []byte, eventBuffer)
	stopChan := make(chan struct{})

	unsubscribe, err := onMain(s.queue, func() (func(), error) {
		return s.subscribe(out, stopChan), nil
	})
	if err != nil {
		return
	}
	defer unsubscribe()

	log.InfoContext(c.Request.Context(), "event client connected", "remote", c.Request.RemoteAddr)

	// 读循环：监听客户端主动断开
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				close(stopChan)
				return
			}
		}
	}()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case frame := <-out:
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				log.WarnContext(c.Request.Context(), "WS 推送失败", "err", err)
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				return
			}
		case <-stopChan:
			log.InfoContext(c.Request.Context(), "event client disconnected")
			return
		}
	}
}
