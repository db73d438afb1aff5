package backend

import (
	"fmt"
	"net/http"
	"strconv"
)

// FileUpload multipart 上传的文件
type FileUpload struct {
	Field string
	Path  string
}

// Intent 一次后端操作的描述
type Intent struct {
	Name      string
	Method    string
	Path      string
	Query     map[string]string
	Body      map[string]any
	File      *FileUpload
	Retryable bool
	// OnRetried 排队的请求重发后收到响应时调用
	OnRetried func(Result)
}

func (i Intent) String() string {
	return i.Name
}

// GetStreams 拉取最近会话列表，cursor 为空表示第一页
func GetStreams(cursor string) Intent {
	q := map[string]string{}
	if cursor != "" {
		q["cursor"] = cursor
	}
	return Intent{Name: "get-streams", Method: http.MethodGet, Path: "/v1/streams", Query: q}
}

// GetStream 拉取单个会话完整数据
func GetStream(streamID int64) Intent {
	return Intent{Name: "get-stream", Method: http.MethodGet, Path: fmt.Sprintf("/v1/streams/%d", streamID)}
}

// CreateStream 按参与者标识创建会话
func CreateStream(participants []string, title string) Intent {
	body := map[string]any{"participant": participants}
	if title != "" {
		body["title"] = title
	}
	return Intent{Name: "create-stream", Method: http.MethodPost, Path: "/v1/streams", Body: body}
}

// SendChunk 发送录音。audioURL 非空时表示文件已上传到对象存储，否则以 multipart 上传本地文件。
func SendChunk(streamID int64, audioURL, localPath string, durationMs int64) Intent {
	in := Intent{
		Name:      "send-chunk",
		Method:    http.MethodPost,
		Path:      fmt.Sprintf("/v1/streams/%d/chunks", streamID),
		Body:      map[string]any{"duration": durationMs},
		Retryable: true,
	}
	if audioURL != "" {
		in.Body["audio_url"] = audioURL
	} else {
		in.File = &FileUpload{Field: "audio", Path: localPath}
	}
	return in
}

// SetPlayedUntil 上报收听进度
func SetPlayedUntil(streamID, playedUntil int64) Intent {
	return Intent{
		Name:      "set-played-until",
		Method:    http.MethodPost,
		Path:      fmt.Sprintf("/v1/streams/%d", streamID),
		Body:      map[string]any{"played_until": playedUntil},
		Retryable: true,
	}
}

// SetStatus 上报当前用户在会话中的状态
func SetStatus(streamID int64, status string, estimatedDurationMs int64, attachmentID string) Intent {
	body := map[string]any{"status": status}
	if estimatedDurationMs > 0 {
		body["estimated_duration"] = estimatedDurationMs
	}
	if attachmentID != "" {
		body["attachment_id"] = attachmentID
	}
	return Intent{
		Name:   "set-status",
		Method: http.MethodPost,
		Path:   fmt.Sprintf("/v1/streams/%d/status", streamID),
		Body:   body,
	}
}

// LookupIdentifiers 查询一批电话/邮箱对应的账号，最多 500 个
func LookupIdentifiers(identifiers []string) Intent {
	return Intent{
		Name:   "lookup-identifiers",
		Method: http.MethodPost,
		Path:   "/v1/contacts",
		Body:   map[string]any{"identifier": identifiers},
	}
}

// SendInvite 邀请未注册联系人加入会话
func SendInvite(identifier, name, inviteToken string) Intent {
	return Intent{
		Name:   "send-invite",
		Method: http.MethodPost,
		Path:   "/v1/invite",
		Body: map[string]any{
			"identifier":   identifier,
			"name":         name,
			"invite_token": inviteToken,
		},
	}
}

// RemoveStream 从最近列表中隐藏会话
func RemoveStream(streamID int64) Intent {
	return Intent{
		Name:   "remove-stream",
		Method: http.MethodPost,
		Path:   fmt.Sprintf("/v1/streams/%d", streamID),
		Body:   map[string]any{"visible": false},
	}
}

// ParamInt64 从返回数据中读取整数，JSON 数字解码后为 float64
func ParamInt64(data map[string]any, key string) (int64, bool) {
	switch v := data[key].(type) {
	case float64:
		return int64(v), true
	case int64:
		return v, true
	case int:
		return int64(v), true
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		return n, err == nil
	default:
		return 0, false
	}
}
