// Package dispatch 提供"主线程"队列：所有状态机迁移与索引修改都串行在一个 goroutine 上执行，
// 网络与文件回调通过 Do/Call 投递回来。
package dispatch

import (
	"errors"
	"sync"
	"time"
)

var ErrClosed = errors.New("dispatch queue closed")

const defaultQueueSize = 256

type callResult struct {
	value interface{}
	err   error
}

// Queue 串行执行投递的函数
type Queue struct {
	mu     sync.RWMutex
	q      chan func()
	closed bool
	done   chan struct{}
}

// NewQueue 创建并启动队列
func NewQueue(size int) *Queue {
	if size <= 0 {
		size = defaultQueueSize
	}
	d := &Queue{
		q:    make(chan func(), size),
		done: make(chan struct{}),
	}
	go d.loop()
	return d
}

func (d *Queue) loop() {
	defer close(d.done)
	for fn := range d.q {
		if fn != nil {
			fn()
		}
	}
}

// Do 异步投递
func (d *Queue) Do(fn func()) error {
	if fn == nil {
		return nil
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrClosed
	}
	d.q <- fn
	return nil
}

// Call 投递并等待结果。不能在队列自身的 goroutine 内调用，否则死锁。
func (d *Queue) Call(fn func() (interface{}, error)) (interface{}, error) {
	if fn == nil {
		return nil, nil
	}
	done := make(chan callResult, 1)
	err := d.Do(func() {
		value, err := fn()
		done <- callResult{value: value, err: err}
	})
	if err != nil {
		return nil, err
	}
	res := <-done
	return res.value, res.err
}

// Sync 投递无返回值的函数并等待执行完毕
func (d *Queue) Sync(fn func()) error {
	_, err := d.Call(func() (interface{}, error) {
		fn()
		return nil, nil
	})
	return err
}

// After 延迟 delay 后在队列上执行 fn，返回的 Timer 可取消
func (d *Queue) After(delay time.Duration, fn func()) *Timer {
	t := &Timer{}
	t.timer = time.AfterFunc(delay, func() {
		_ = d.Do(func() {
			if t.stopped() {
				return
			}
			fn()
		})
	})
	return t
}

// Close 停止接收新任务，已投递的任务执行完毕后返回
func (d *Queue) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.q)
	d.mu.Unlock()
	<-d.done
}

// Timer 可取消的延迟任务。Stop 之后即使底层定时器已触发，fn 也不会再执行。
type Timer struct {
	mu        sync.Mutex
	timer     *time.Timer
	cancelled bool
}

// Stop 取消任务
func (t *Timer) Stop() {
	if t == nil {
		return
	}
	t.mu.Lock()
	t.cancelled = true
	t.mu.Unlock()
	t.timer.Stop()
}

func (t *Timer) stopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancelled
}
