package model

// Participant 会话中的其他参与者
type Participant struct {
	ID          int64  `json:"id"`
	DisplayName string `json:"display_name"`
	Username    string `json:"username"`
	ImageURL    string `json:"image_url"`
	Active      bool   `json:"active"`
	PlayedUntil int64  `json:"played_until"`
	Timezone    string `json:"timezone"`
}

func newParticipant(p ParticipantPayload) Participant {
	return Participant{
		ID:          p.ID,
		DisplayName: p.DisplayName,
		Username:    deref(p.Username),
		ImageURL:    deref(p.ImageURL),
		Active:      p.Active,
		PlayedUntil: p.PlayedUntil,
		Timezone:    deref(p.Timezone),
	}
}

func (p Participant) payload() ParticipantPayload {
	return ParticipantPayload{
		ID:          p.ID,
		DisplayName: p.DisplayName,
		Username:    ref(p.Username),
		ImageURL:    ref(p.ImageURL),
		Active:      p.Active,
		PlayedUntil: p.PlayedUntil,
		Timezone:    ref(p.Timezone),
	}
}

// Attachment 会话附件
type Attachment struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	URL      string `json:"url"`
	Title    string `json:"title"`
	SenderID int64  `json:"sender_id"`
}

func newAttachment(id string, p AttachmentPayload) Attachment {
	return Attachment{
		ID:       id,
		Type:     p.Type,
		URL:      deref(p.URL),
		Title:    deref(p.Title),
		SenderID: p.SenderID,
	}
}

func (a Attachment) payload() AttachmentPayload {
	return AttachmentPayload{
		Type:     a.Type,
		URL:      ref(a.URL),
		Title:    ref(a.Title),
		SenderID: a.SenderID,
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func ref(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
