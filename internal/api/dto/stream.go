package dto

import (
	"Roger/internal/model"
	log "log/slog"
	"time"

	"github.com/jinzhu/copier"
)

type ChunkDTO struct {
	ID            int64  `json:"id"`
	SenderID      int64  `json:"sender_id"`
	Start         int64  `json:"start"`
	End           int64  `json:"end"`
	AudioURL      string `json:"audio_url"`
	ByCurrentUser bool   `json:"by_current_user"`
	DurationMs    int64  `json:"duration_ms"`
}

type ParticipantDTO struct {
	ID          int64  `json:"id"`
	DisplayName string `json:"display_name"`
	Username    string `json:"username,omitempty"`
	ImageURL    string `json:"image_url,omitempty"`
	Active      bool   `json:"active"`
	PlayedUntil int64  `json:"played_until"`
	Timezone    string `json:"timezone,omitempty"`
	Status      string `json:"status"`
}

type AttachmentDTO struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	URL      string `json:"url,omitempty"`
	Title    string `json:"title,omitempty"`
	SenderID int64  `json:"sender_id"`
}

// StreamSummaryDTO 列表中的会话
type StreamSummaryDTO struct {
	ID                 int64            `json:"id"`
	Title              string           `json:"title"`
	ImageURL           string           `json:"image_url,omitempty"`
	Group              bool             `json:"group"`
	PlayedUntil        int64            `json:"played_until"`
	LastInteraction    int64            `json:"last_interaction"`
	Unplayed           bool             `json:"unplayed"`
	UnplayedDurationMs int64            `json:"unplayed_duration_ms"`
	Others             []ParticipantDTO `json:"others"`
}

// StreamDTO 会话详情
type StreamDTO struct {
	StreamSummaryDTO
	SelfID      int64           `json:"self_id"`
	Shareable   bool            `json:"shareable"`
	InviteToken string          `json:"invite_token,omitempty"`
	Chunks      []ChunkDTO      `json:"chunks"`
	Attachments []AttachmentDTO `json:"attachments"`
}

type CreateStreamDTO struct {
	Identifiers []string `json:"identifiers" binding:"required,min=1"`
	Title       string   `json:"title"`
}

// StreamsDiffDTO 最近列表变化
type StreamsDiffDTO struct {
	Inserted []int    `json:"inserted"`
	Deleted  []int    `json:"deleted"`
	Moved    [][2]int `json:"moved"`
	Recents  []int64  `json:"recents"`
}

func NewStreamSummaryDTO(s *model.Stream, now time.Time) StreamSummaryDTO {
	out := StreamSummaryDTO{
		ID:                 s.ID(),
		Title:              s.DisplayTitle(),
		ImageURL:           s.ImageURL(),
		Group:              s.Group(),
		PlayedUntil:        s.PlayedUntil(),
		LastInteraction:    s.LastInteraction(),
		Unplayed:           s.Unplayed(),
		UnplayedDurationMs: s.UnplayedDuration().Milliseconds(),
		Others:             make([]ParticipantDTO, 0),
	}
	others := s.Others()
	if err := copier.Copy(&out.Others, &others); err != nil {
		log.Warn("copy participants failed", "stream_id", s.ID(), "err", err)
	}
	for i := range out.Others {
		out.Others[i].Status = string(s.StatusOf(out.Others[i].ID, now))
	}
	return out
}

func NewStreamDTO(s *model.Stream, now time.Time) StreamDTO {
	out := StreamDTO{
		StreamSummaryDTO: NewStreamSummaryDTO(s, now),
		SelfID:           s.CurrentUserID(),
		Shareable:        s.Shareable(),
		InviteToken:      s.InviteToken(),
		Chunks:           make([]ChunkDTO, 0),
		Attachments:      make([]AttachmentDTO, 0),
	}
	chunks := s.Chunks()
	if err := copier.Copy(&out.Chunks, &chunks); err != nil {
		log.Warn("copy chunks failed", "stream_id", s.ID(), "err", err)
	}
	for i := range out.Chunks {
		out.Chunks[i].DurationMs = out.Chunks[i].End - out.Chunks[i].Start
	}
	attachments := s.Attachments()
	if err := copier.Copy(&out.Attachments, &attachments); err != nil {
		log.Warn("copy attachments failed", "stream_id", s.ID(), "err", err)
	}
	return out
}
