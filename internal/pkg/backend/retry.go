package backend

import "sync"

// retryQueue 有界的待重试队列，满时丢弃最早的请求
type retryQueue struct {
	mu    sync.Mutex
	items []Intent
	limit int
}

func newRetryQueue(limit int) *retryQueue {
	if limit <= 0 {
		limit = 100
	}
	return &retryQueue{limit: limit}
}

func (q *retryQueue) push(in Intent) (dropped bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) >= q.limit {
		q.items = q.items[1:]
		dropped = true
	}
	q.items = append(q.items, in)
	return dropped
}

func (q *retryQueue) drain() []Intent {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := q.items
	q.items = nil
	return items
}

// prepend 把未能发出的请求放回队头，保持原有顺序
func (q *retryQueue) prepend(items []Intent) {
	if len(items) == 0 {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	merged := append(append([]Intent(nil), items...), q.items...)
	if len(merged) > q.limit {
		merged = merged[len(merged)-q.limit:]
	}
	q.items = merged
}

func (q *retryQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
