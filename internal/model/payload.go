package model

import (
	"Roger/internal/pkg/util"
	"errors"
	"fmt"
	log "log/slog"

	"github.com/goccy/go-json"
)

// ErrMalformedPayload 推送或接口返回的数据缺少必填字段或类型错误
var ErrMalformedPayload = errors.New("malformed payload")

// ChunkPayload 单个音频分片的数据结构
type ChunkPayload struct {
	ID       int64  `json:"id" validate:"required"`
	SenderID int64  `json:"sender_id" validate:"required"`
	Start    int64  `json:"start" validate:"required"`
	End      int64  `json:"end" validate:"required,gtefield=Start"`
	AudioURL string `json:"audio_url" validate:"required"`
}

// ParticipantPayload 会话参与者
type ParticipantPayload struct {
	ID          int64   `json:"id" validate:"required"`
	DisplayName string  `json:"display_name"`
	Username    *string `json:"username,omitempty"`
	ImageURL    *string `json:"image_url,omitempty"`
	Active      bool    `json:"active"`
	PlayedUntil int64   `json:"played_until"`
	Timezone    *string `json:"timezone,omitempty"`
}

// AttachmentPayload 会话附件，按 id 作为 key 存放
type AttachmentPayload struct {
	Type     string  `json:"type" validate:"required"`
	URL      *string `json:"url,omitempty"`
	Title    *string `json:"title,omitempty"`
	SenderID int64   `json:"sender_id"`
}

// StatusPayload 参与者实时状态
type StatusPayload struct {
	AccountID         int64  `json:"account_id" validate:"required"`
	Status            string `json:"status" validate:"required,oneof=idle talking listening viewing-attachment"`
	EstimatedDuration int64  `json:"estimated_duration"`
	AttachmentID      string `json:"attachment_id,omitempty"`
}

// StreamPayload 会话数据。指针字段为空表示本次数据未携带该字段，合并时保留本地值。
// Chunks/Others 为 nil 表示未携带，空切片表示携带了空列表。
type StreamPayload struct {
	ID              int64                        `json:"id" validate:"required"`
	Chunks          []ChunkPayload               `json:"chunks"`
	Others          []ParticipantPayload         `json:"others"`
	Title           *string                      `json:"title,omitempty"`
	ImageURL        *string                      `json:"image_url,omitempty"`
	PlayedUntil     *int64                       `json:"played_until,omitempty"`
	LastInteraction *int64                       `json:"last_interaction,omitempty"`
	Visible         *bool                        `json:"visible,omitempty"`
	Shareable       *bool                        `json:"shareable,omitempty"`
	InviteToken     *string                      `json:"invite_token,omitempty"`
	Attachments     map[string]AttachmentPayload `json:"attachments,omitempty"`
}

// CanCreate 新建会话需要同时携带 chunks 与 others
func (p *StreamPayload) CanCreate() bool {
	return p != nil && p.Chunks != nil && p.Others != nil
}

// DecodeStreamPayload 解析并校验会话数据，非法分片与参与者被丢弃而不是使整条数据失效
func DecodeStreamPayload(data []byte) (*StreamPayload, error) {
	var p StreamPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if err := p.sanitize(); err != nil {
		return nil, err
	}
	return &p, nil
}

// StreamPayloadFromMap 从 RPC 返回的 map 中解析会话
func StreamPayloadFromMap(m map[string]any) (*StreamPayload, error) {
	if m == nil {
		return nil, fmt.Errorf("%w: empty stream", ErrMalformedPayload)
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return DecodeStreamPayload(data)
}

// DecodeChunkPayload 解析并校验单个分片
func DecodeChunkPayload(data []byte) (*ChunkPayload, error) {
	var c ChunkPayload
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate 校验分片必填字段
func (c *ChunkPayload) Validate() error {
	if err := util.ValidateStruct(c); err != nil {
		return fmt.Errorf("%w: chunk: %v", ErrMalformedPayload, err)
	}
	return nil
}

// Validate 校验状态字段
func (s *StatusPayload) Validate() error {
	if err := util.ValidateStruct(s); err != nil {
		return fmt.Errorf("%w: status: %v", ErrMalformedPayload, err)
	}
	return nil
}

func (p *StreamPayload) sanitize() error {
	if err := util.ValidateStruct(p); err != nil {
		return fmt.Errorf("%w: stream: %v", ErrMalformedPayload, err)
	}

	if p.Chunks != nil {
		valid := make([]ChunkPayload, 0, len(p.Chunks))
		for i := range p.Chunks {
			if err := p.Chunks[i].Validate(); err != nil {
				log.Warn("drop invalid chunk", "stream_id", p.ID, "chunk_id", p.Chunks[i].ID, "err", err)
				continue
			}
			valid = append(valid, p.Chunks[i])
		}
		p.Chunks = valid
	}

	if p.Others != nil {
		valid := make([]ParticipantPayload, 0, len(p.Others))
		for i := range p.Others {
			if err := util.ValidateStruct(&p.Others[i]); err != nil {
				log.Warn("drop invalid participant", "stream_id", p.ID, "err", err)
				continue
			}
			valid = append(valid, p.Others[i])
		}
		p.Others = valid
	}

	for id, a := range p.Attachments {
		if err := util.ValidateStruct(&a); err != nil {
			log.Warn("drop invalid attachment", "stream_id", p.ID, "attachment_id", id, "err", err)
			delete(p.Attachments, id)
		}
	}
	return nil
}
