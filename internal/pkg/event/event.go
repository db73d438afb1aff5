// Package event 观察者注册表，替代全局通知。
package event

import "sync"

// Listener 事件回调
type Listener[T any] func(T)

// Event 可被多个监听者订阅的事件。
//
// 状态变更类事件约定传递旧值，新值由监听者从服务当前状态读取。
type Event[T any] struct {
	mu        sync.RWMutex
	nextID    uint64
	listeners map[uint64]Listener[T]
	order     []uint64
}

// AddListener 注册监听者，返回取消函数
func (e *Event[T]) AddListener(fn Listener[T]) (remove func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.listeners == nil {
		e.listeners = make(map[uint64]Listener[T])
	}
	e.nextID++
	id := e.nextID
	e.listeners[id] = fn
	e.order = append(e.order, id)

	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		delete(e.listeners, id)
		for i, v := range e.order {
			if v == id {
				e.order = append(e.order[:i], e.order[i+1:]...)
				break
			}
		}
	}
}

// Emit 按注册顺序同步通知所有监听者
func (e *Event[T]) Emit(value T) {
	e.mu.RLock()
	fns := make([]Listener[T], 0, len(e.order))
	for _, id := range e.order {
		fns = append(fns, e.listeners[id])
	}
	e.mu.RUnlock()

	for _, fn := range fns {
		fn(value)
	}
}

// Len 当前监听者数量
func (e *Event[T]) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.listeners)
}
