package model

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Stream 一个会话（单聊或群聊）。
//
// 同一 id 在进程内只有一个实例，收到新数据时原地合并而不是替换。
// 除构造外的所有方法只能在主队列上调用。
type Stream struct {
	id     int64
	selfID int64

	chunks          []Chunk
	others          []Participant
	title           string
	imageURL        string
	playedUntil     int64
	lastInteraction int64
	visible         bool
	shareable       bool
	inviteToken     string
	attachments     map[string]Attachment
	statuses        map[int64]ParticipantStatus
}

// NewStream 由完整数据创建会话，必须携带 id、chunks 与 others
func NewStream(selfID int64, p *StreamPayload) (*Stream, error) {
	if p == nil || p.ID == 0 {
		return nil, fmt.Errorf("%w: stream id missing", ErrMalformedPayload)
	}
	if !p.CanCreate() {
		return nil, fmt.Errorf("%w: stream %d lacks chunks or others", ErrMalformedPayload, p.ID)
	}
	s := &Stream{
		id:          p.ID,
		selfID:      selfID,
		visible:     true,
		attachments: make(map[string]Attachment),
		statuses:    make(map[int64]ParticipantStatus),
	}
	s.Merge(p)
	return s, nil
}

// ID 会话 id
func (s *Stream) ID() int64 { return s.id }

// Equal 会话以 id 作为身份，内容不同但 id 相同即视为同一会话
func (s *Stream) Equal(o *Stream) bool {
	if s == nil || o == nil {
		return s == o
	}
	return s.id == o.id
}

// Merge 合并新数据。标量字段以新数据为准，时间戳字段本地更新时保留本地值（本地乐观写入可能先于服务端确认）。
// 返回是否有字段发生变化。
func (s *Stream) Merge(p *StreamPayload) bool {
	if p == nil || p.ID != s.id {
		return false
	}
	changed := false

	if p.Chunks != nil {
		incoming := make([]Chunk, 0, len(p.Chunks))
		for _, c := range p.Chunks {
			incoming = append(incoming, NewChunk(c, s.selfID))
		}
		next := MergeChunks(s.chunks, incoming)
		if !chunksEqual(s.chunks, next) {
			s.chunks = next
			changed = true
		}
		if n := len(s.chunks); n > 0 && s.chunks[n-1].End > s.lastInteraction {
			s.lastInteraction = s.chunks[n-1].End
			changed = true
		}
	}

	if p.Others != nil {
		others := make([]Participant, 0, len(p.Others))
		for _, o := range p.Others {
			others = append(others, newParticipant(o))
		}
		if !participantsEqual(s.others, others) {
			s.others = others
			changed = true
		}
	}

	changed = setString(&s.title, p.Title) || changed
	changed = setString(&s.imageURL, p.ImageURL) || changed
	changed = setString(&s.inviteToken, p.InviteToken) || changed
	changed = setBool(&s.visible, p.Visible) || changed
	changed = setBool(&s.shareable, p.Shareable) || changed

	if p.PlayedUntil != nil && *p.PlayedUntil > s.playedUntil {
		s.playedUntil = *p.PlayedUntil
		changed = true
	}
	if p.LastInteraction != nil && *p.LastInteraction > s.lastInteraction {
		s.lastInteraction = *p.LastInteraction
		changed = true
	}

	if p.Attachments != nil {
		attachments := make(map[string]Attachment, len(p.Attachments))
		for id, a := range p.Attachments {
			attachments[id] = newAttachment(id, a)
		}
		if !attachmentsEqual(s.attachments, attachments) {
			s.attachments = attachments
			changed = true
		}
	}
	return changed
}

// AddChunk 合并单个分片，分片结束时间更晚时同步更新最近互动时间
func (s *Stream) AddChunk(p ChunkPayload) (bool, error) {
	if err := p.Validate(); err != nil {
		return false, err
	}
	c := NewChunk(p, s.selfID)
	next := MergeChunks(s.chunks, []Chunk{c})
	changed := !chunksEqual(s.chunks, next)
	s.chunks = next
	if c.End > s.lastInteraction {
		s.lastInteraction = c.End
		changed = true
	}
	return changed, nil
}

// Chunks 全部分片，按开始时间升序
func (s *Stream) Chunks() []Chunk {
	out := make([]Chunk, len(s.chunks))
	copy(out, s.chunks)
	return out
}

// PlayableChunks 非当前用户发送的分片
func (s *Stream) PlayableChunks() []Chunk {
	out := make([]Chunk, 0, len(s.chunks))
	for _, c := range s.chunks {
		if !c.ByCurrentUser {
			out = append(out, c)
		}
	}
	return out
}

// UnplayedChunks 尚未收听的可播放分片
func (s *Stream) UnplayedChunks() []Chunk {
	out := make([]Chunk, 0)
	for _, c := range s.chunks {
		if !c.ByCurrentUser && c.End > s.playedUntil {
			out = append(out, c)
		}
	}
	return out
}

// Unplayed 是否有未收听内容
func (s *Stream) Unplayed() bool {
	for i := len(s.chunks) - 1; i >= 0; i-- {
		c := s.chunks[i]
		if c.End <= s.playedUntil {
			return false
		}
		if !c.ByCurrentUser {
			return true
		}
	}
	return false
}

// UnplayedDuration 未收听内容总时长
func (s *Stream) UnplayedDuration() time.Duration {
	return TotalDuration(s.UnplayedChunks())
}

// Others 其他参与者
func (s *Stream) Others() []Participant {
	out := make([]Participant, len(s.others))
	copy(out, s.others)
	return out
}

// Group 多于一个其他参与者即为群聊
func (s *Stream) Group() bool { return len(s.others) > 1 }

// Title 原始标题，可能为空
func (s *Stream) Title() string { return s.title }

// DisplayTitle 无标题时使用参与者名称拼接
func (s *Stream) DisplayTitle() string {
	if s.title != "" {
		return s.title
	}
	names := make([]string, 0, len(s.others))
	for _, o := range s.others {
		if o.DisplayName != "" {
			names = append(names, o.DisplayName)
		}
	}
	return strings.Join(names, ", ")
}

func (s *Stream) ImageURL() string { return s.imageURL }
func (s *Stream) PlayedUntil() int64 { return s.playedUntil }
func (s *Stream) LastInteraction() int64 { return s.lastInteraction }
func (s *Stream) Visible() bool { return s.visible }
func (s *Stream) Shareable() bool { return s.shareable }
func (s *Stream) InviteToken() string { return s.inviteToken }
func (s *Stream) CurrentUserID() int64 { return s.selfID }

// SetPlayedUntil 本地乐观更新收听进度，只前进不后退
func (s *Stream) SetPlayedUntil(ts int64) bool {
	if ts <= s.playedUntil {
		return false
	}
	s.playedUntil = ts
	return true
}

// Touch 更新最近互动时间，只前进不后退
func (s *Stream) Touch(ts int64) bool {
	if ts <= s.lastInteraction {
		return false
	}
	s.lastInteraction = ts
	return true
}

// Attachments 附件列表，按 id 排序
func (s *Stream) Attachments() []Attachment {
	out := make([]Attachment, 0, len(s.attachments))
	for _, a := range s.attachments {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// SetStatus 记录参与者状态
func (s *Stream) SetStatus(accountID int64, status ParticipantStatus) {
	if status.Status == StatusIdle {
		delete(s.statuses, accountID)
		return
	}
	s.statuses[accountID] = status
}

// StatusOf 参与者当前状态，过期即为 idle
func (s *Stream) StatusOf(accountID int64, now time.Time) StatusKind {
	st, ok := s.statuses[accountID]
	if !ok {
		return StatusIdle
	}
	return st.Current(now)
}

// ActiveStatuses 未过期的非 idle 状态，同时清理过期项
func (s *Stream) ActiveStatuses(now time.Time) map[int64]StatusKind {
	out := make(map[int64]StatusKind)
	for id, st := range s.statuses {
		cur := st.Current(now)
		if cur == StatusIdle {
			delete(s.statuses, id)
			continue
		}
		out[id] = cur
	}
	return out
}

// Payload 导出完整数据，用于本地缓存
func (s *Stream) Payload() *StreamPayload {
	chunks := make([]ChunkPayload, 0, len(s.chunks))
	for _, c := range s.chunks {
		chunks = append(chunks, c.Payload())
	}
	others := make([]ParticipantPayload, 0, len(s.others))
	for _, o := range s.others {
		others = append(others, o.payload())
	}
	var attachments map[string]AttachmentPayload
	if len(s.attachments) > 0 {
		attachments = make(map[string]AttachmentPayload, len(s.attachments))
		for id, a := range s.attachments {
			attachments[id] = a.payload()
		}
	}
	playedUntil := s.playedUntil
	lastInteraction := s.lastInteraction
	visible := s.visible
	shareable := s.shareable
	return &StreamPayload{
		ID:              s.id,
		Chunks:          chunks,
		Others:          others,
		Title:           ref(s.title),
		ImageURL:        ref(s.imageURL),
		PlayedUntil:     &playedUntil,
		LastInteraction: &lastInteraction,
		Visible:         &visible,
		Shareable:       &shareable,
		InviteToken:     ref(s.inviteToken),
		Attachments:     attachments,
	}
}

func setString(dst *string, v *string) bool {
	if v == nil || *dst == *v {
		return false
	}
	*dst = *v
	return true
}

func setBool(dst *bool, v *bool) bool {
	if v == nil || *dst == *v {
		return false
	}
	*dst = *v
	return true
}

func chunksEqual(a, b []Chunk) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func participantsEqual(a, b []Participant) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func attachmentsEqual(a, b map[string]Attachment) bool {
	if len(a) != len(b) {
		return false
	}
	for id, v := range a {
		if w, ok := b[id]; !ok || v != w {
			return false
		}
	}
	return true
}
