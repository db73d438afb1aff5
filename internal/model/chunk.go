package model

import (
	"sort"
	"time"
)

// Chunk 一段录音。由数据构造后不再修改，同 id 的新数据整体替换旧值。
type Chunk struct {
	ID            int64  `json:"id"`
	SenderID      int64  `json:"sender_id"`
	Start         int64  `json:"start"`
	End           int64  `json:"end"`
	AudioURL      string `json:"audio_url"`
	ByCurrentUser bool   `json:"by_current_user"`
}

// NewChunk 由分片数据构造，selfID 为当前登录账号
func NewChunk(p ChunkPayload, selfID int64) Chunk {
	return Chunk{
		ID:            p.ID,
		SenderID:      p.SenderID,
		Start:         p.Start,
		End:           p.End,
		AudioURL:      p.AudioURL,
		ByCurrentUser: selfID != 0 && p.SenderID == selfID,
	}
}

// Duration 分片时长
func (c Chunk) Duration() time.Duration {
	return time.Duration(c.End-c.Start) * time.Millisecond
}

// Age 距分片结束过去的时间
func (c Chunk) Age(now time.Time) time.Duration {
	return now.Sub(time.UnixMilli(c.End))
}

// Payload 转回分片数据，用于持久化
func (c Chunk) Payload() ChunkPayload {
	return ChunkPayload{
		ID:       c.ID,
		SenderID: c.SenderID,
		Start:    c.Start,
		End:      c.End,
		AudioURL: c.AudioURL,
	}
}

// MergeChunks 按 id 合并：已存在的原位替换，不存在的追加；有追加时整体按开始时间重排。
// 合并结果与输入顺序无关，重复合并同一批数据结果不变。
func MergeChunks(existing []Chunk, incoming []Chunk) []Chunk {
	merged := make([]Chunk, len(existing), len(existing)+len(incoming))
	copy(merged, existing)

	positions := make(map[int64]int, len(merged))
	for i, c := range merged {
		positions[c.ID] = i
	}

	appended := false
	for _, c := range incoming {
		if i, ok := positions[c.ID]; ok {
			merged[i] = c
			continue
		}
		positions[c.ID] = len(merged)
		merged = append(merged, c)
		appended = true
	}

	if appended {
		sortChunks(merged)
	}
	return merged
}

func sortChunks(chunks []Chunk) {
	sort.SliceStable(chunks, func(i, j int) bool {
		if chunks[i].Start != chunks[j].Start {
			return chunks[i].Start < chunks[j].Start
		}
		return chunks[i].ID < chunks[j].ID
	})
}

// TotalDuration 分片时长之和
func TotalDuration(chunks []Chunk) time.Duration {
	var total time.Duration
	for _, c := range chunks {
		total += c.Duration()
	}
	return total
}
