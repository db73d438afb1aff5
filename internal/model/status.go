package model

import "time"

// StatusKind 参与者实时状态
type StatusKind string

const (
	StatusIdle              StatusKind = "idle"
	StatusTalking           StatusKind = "talking"
	StatusListening         StatusKind = "listening"
	StatusViewingAttachment StatusKind = "viewing-attachment"
)

// defaultStatusTTL 推送未给出预计时长时状态的有效期
const defaultStatusTTL = 10 * time.Second

// ParticipantStatus 状态及过期时间，过期后视为 idle
type ParticipantStatus struct {
	Status       StatusKind `json:"status"`
	Until        time.Time  `json:"until"`
	AttachmentID string     `json:"attachment_id,omitempty"`
}

// Current 当前时刻的有效状态
func (s ParticipantStatus) Current(now time.Time) StatusKind {
	if s.Status == "" || !now.Before(s.Until) {
		return StatusIdle
	}
	return s.Status
}

// NewParticipantStatus 由推送数据构造
func NewParticipantStatus(p StatusPayload, now time.Time) ParticipantStatus {
	ttl := time.Duration(p.EstimatedDuration) * time.Millisecond
	if ttl <= 0 {
		ttl = defaultStatusTTL
	}
	return ParticipantStatus{
		Status:       StatusKind(p.Status),
		Until:        now.Add(ttl),
		AttachmentID: p.AttachmentID,
	}
}
