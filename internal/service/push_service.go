package service

import (
	"Roger/internal/model"
	"Roger/internal/pkg/consts"
	"Roger/internal/pkg/dispatch"
	"Roger/internal/pkg/logger"
	"Roger/internal/pkg/redis"
	"context"
	"fmt"
	log "log/slog"
	"strconv"

	"github.com/goccy/go-json"
)

// 推送类型
const (
	PushStreamChunk   = "stream-chunk"
	PushStreamStatus  = "stream-status"
	PushStreamUpdate  = "stream-update"
	PushStreamRemoved = "stream-removed"
)

// PushEnvelope 推送消息
type PushEnvelope struct {
	Type     string          `json:"type"`
	StreamID int64           `json:"stream_id"`
	Chunk    json.RawMessage `json:"chunk,omitempty"`
	Status   json.RawMessage `json:"status,omitempty"`
	Stream   json.RawMessage `json:"stream,omitempty"`
}

// PushChannel 账号的推送频道
func PushChannel(accountID int64) string {
	return consts.PushChannelKey + strconv.FormatInt(accountID, 10)
}

// PushService 把推送数据合并进会话缓存
type PushService struct {
	queue   *dispatch.Queue
	streams StreamService
	session *SessionService
}

func NewPushService(queue *dispatch.Queue, streams StreamService, session *SessionService) *PushService {
	return &PushService{queue: queue, streams: streams, session: session}
}

// Handle 处理一条推送。不能在主队列上调用。
func (s *PushService) Handle(ctx context.Context, raw []byte) error {
	var env PushEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("%w: push: %v", model.ErrMalformedPayload, err)
	}
	ctx = logger.WithStreamID(ctx, env.StreamID)

	switch env.Type {
	case PushStreamChunk:
		chunk, err := model.DecodeChunkPayload(env.Chunk)
		if err != nil {
			return err
		}
		if env.StreamID == 0 {
			return fmt.Errorf("%w: chunk push without stream id", model.ErrMalformedPayload)
		}
		_, err = s.streams.ApplyChunkPush(ctx, env.StreamID, *chunk)
		return err

	case PushStreamStatus:
		var status model.StatusPayload
		if err := json.Unmarshal(env.Status, &status); err != nil {
			return fmt.Errorf("%w: status: %v", model.ErrMalformedPayload, err)
		}
		return s.queue.Sync(func() {
			s.streams.ApplyStatus(env.StreamID, status)
		})

	case PushStreamUpdate:
		p, err := model.DecodeStreamPayload(env.Stream)
		if err != nil {
			return err
		}
		v, err := s.queue.Call(func() (interface{}, error) {
			var stream *model.Stream
			s.streams.Batch(func() {
				stream = s.streams.UpsertFromPayload(p)
				if stream != nil && stream.Visible() {
					s.streams.IncludeInRecents(stream)
				}
			})
			return stream, nil
		})
		if err != nil {
			return err
		}
		if stream, _ := v.(*model.Stream); stream == nil {
			_, err = s.streams.FetchStream(ctx, p.ID)
			return err
		}
		return nil

	case PushStreamRemoved:
		return s.queue.Sync(func() {
			s.streams.RemoveFromRecents(s.streams.GetStream(env.StreamID))
		})

	default:
		log.WarnContext(ctx, "unknown push type ignored", "type", env.Type)
		return nil
	}
}

// Run 订阅当前账号的推送频道直到 ctx 结束。redis 未启用时直接返回。
func (s *PushService) Run(ctx context.Context) error {
	accountID := s.session.AccountID()
	if accountID == 0 {
		return ErrNotLoggedIn
	}
	pubsub, err := redis.Subscribe(ctx, PushChannel(accountID))
	if err != nil {
		if err == redis.ErrNotEnabled {
			log.InfoContext(ctx, "push bus disabled")
			return nil
		}
		return err
	}
	defer func() {
		_ = pubsub.Close()
	}()

	log.InfoContext(ctx, "push bus subscribed", "account_id", accountID)
	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			msgCtx := logger.NewTraceContext(ctx, "push")
			if err := s.Handle(msgCtx, []byte(msg.Payload)); err != nil {
				log.WarnContext(msgCtx, "push rejected", "channel", msg.Channel, "err", err)
			}
		}
	}
}
