package handler

import (
	"Roger/internal/pkg/dispatch"
	"Roger/internal/service"
	"strconv"

	"github.com/gin-gonic/gin"
)

// onMain 在主队列上执行 fn 并等待结果
func onMain[T any](q *dispatch.Queue, fn func() (T, error)) (T, error) {
	v, err := q.Call(func() (interface{}, error) {
		return fn()
	})
	res, _ := v.(T)
	return res, err
}

func paramInt64(c *gin.Context, key string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(key), 10, 64)
	if err != nil || id <= 0 {
		return 0, service.ErrParamInvalid
	}
	return id, nil
}
