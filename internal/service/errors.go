package service

import (
	"Roger/internal/model"
	"errors"
)

const (
	BadRequest          = 400
	Unauthorized        = 401
	Forbidden           = 403
	NotFound            = 404
	Conflict            = 409
	InternalServerError = 500
	ServiceUnavailable  = 503
)

var (
	ErrParamInvalid       = errors.New("参数错误")
	ErrStreamNotFound     = errors.New("会话不存在")
	ErrChunkNotFound      = errors.New("分片不存在")
	ErrContactNotFound    = errors.New("联系人不存在")
	ErrPermissionDenied   = errors.New("没有权限")
	ErrBusy               = errors.New("正在录音或播放")
	ErrNotLoggedIn        = errors.New("未登录")
	ErrSessionUnavailable = errors.New("音频会话不可用")
	ErrNothingToPlay      = errors.New("没有可播放的内容")
	ErrBackend            = errors.New("后端请求失败")
	ErrChunkQueued        = errors.New("录音已排队，网络恢复后发送")
	UnExpectedError       = errors.New("系统异常，请稍后重试")
)

var ErrorMap = map[error]int{
	ErrParamInvalid:       BadRequest,
	ErrStreamNotFound:     NotFound,
	ErrChunkNotFound:      NotFound,
	ErrContactNotFound:    NotFound,
	ErrPermissionDenied:   Forbidden,
	ErrBusy:               Conflict,
	ErrNotLoggedIn:        Unauthorized,
	ErrSessionUnavailable: ServiceUnavailable,
	ErrNothingToPlay:      BadRequest,
	ErrBackend:            ServiceUnavailable,
	ErrChunkQueued:        ServiceUnavailable,
	UnExpectedError:       InternalServerError,

	model.ErrMalformedPayload: BadRequest,
}

// CodeOf 沿错误链查找业务码
func CodeOf(err error) (int, bool) {
	for e, code := range ErrorMap {
		if errors.Is(err, e) {
			return code, true
		}
	}
	return 0, false
}
