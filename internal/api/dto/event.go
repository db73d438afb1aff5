package dto

// EventDTO 推送到 /api/events 的消息
type EventDTO struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}
