package service

import (
	"Roger/internal/model"
	"sort"
	"weak"
)

// Move 同一会话在列表中的位置变化
type Move struct {
	From int `json:"from"`
	To   int `json:"to"`
}

// StreamsDiff 最近列表的增量变化，按会话 id 计算。
// 新列表第 i 项：在 Inserted 中则为新会话；是某个 Move 的 To 则为旧列表的 From 项；否则为旧列表第 i 项。
type StreamsDiff struct {
	Inserted []int  `json:"inserted"`
	Deleted  []int  `json:"deleted"`
	Moved    []Move `json:"moved"`
}

// Empty 没有任何变化
func (d StreamsDiff) Empty() bool {
	return len(d.Inserted) == 0 && len(d.Deleted) == 0 && len(d.Moved) == 0
}

// DiffIDs 计算 before -> after 的变化
func DiffIDs(before, after []int64) StreamsDiff {
	oldPos := make(map[int64]int, len(before))
	for i, id := range before {
		oldPos[id] = i
	}
	newPos := make(map[int64]int, len(after))
	for i, id := range after {
		newPos[id] = i
	}

	diff := StreamsDiff{Inserted: []int{}, Deleted: []int{}, Moved: []Move{}}
	for i, id := range before {
		if _, ok := newPos[id]; !ok {
			diff.Deleted = append(diff.Deleted, i)
		}
	}
	for i, id := range after {
		from, ok := oldPos[id]
		if !ok {
			diff.Inserted = append(diff.Inserted, i)
			continue
		}
		if from != i {
			diff.Moved = append(diff.Moved, Move{From: from, To: i})
		}
	}
	return diff
}

// streamIndex 最近列表（强引用，按最近互动倒序）加上全部内存中会话的弱引用表。
// 只在主队列上访问。
type streamIndex struct {
	recents []*model.Stream
	byID    map[int64]*model.Stream
	weak    map[int64]weak.Pointer[model.Stream]
}

func newStreamIndex() *streamIndex {
	return &streamIndex{
		byID: make(map[int64]*model.Stream),
		weak: make(map[int64]weak.Pointer[model.Stream]),
	}
}

// get 先查最近列表，再查弱引用表
func (x *streamIndex) get(id int64) *model.Stream {
	if s, ok := x.byID[id]; ok {
		return s
	}
	wp, ok := x.weak[id]
	if !ok {
		return nil
	}
	s := wp.Value()
	if s == nil {
		delete(x.weak, id)
	}
	return s
}

func (x *streamIndex) register(s *model.Stream) {
	x.weak[s.ID()] = weak.Make(s)
}

func (x *streamIndex) contains(id int64) bool {
	_, ok := x.byID[id]
	return ok
}

// include 加入最近列表，不排序
func (x *streamIndex) include(s *model.Stream) bool {
	x.register(s)
	if x.contains(s.ID()) {
		return false
	}
	x.byID[s.ID()] = s
	x.recents = append(x.recents, s)
	return true
}

// remove 只从最近列表移除，弱引用保留
func (x *streamIndex) remove(id int64) bool {
	if !x.contains(id) {
		return false
	}
	delete(x.byID, id)
	for i, s := range x.recents {
		if s.ID() == id {
			x.recents = append(x.recents[:i], x.recents[i+1:]...)
			break
		}
	}
	return true
}

// sort 按最近互动时间倒序，相同时按 id 倒序
func (x *streamIndex) sort() {
	sort.SliceStable(x.recents, func(i, j int) bool {
		a, b := x.recents[i], x.recents[j]
		if a.LastInteraction() != b.LastInteraction() {
			return a.LastInteraction() > b.LastInteraction()
		}
		return a.ID() > b.ID()
	})
}

func (x *streamIndex) ids() []int64 {
	out := make([]int64, len(x.recents))
	for i, s := range x.recents {
		out[i] = s.ID()
	}
	return out
}

func (x *streamIndex) list() []*model.Stream {
	out := make([]*model.Stream, len(x.recents))
	copy(out, x.recents)
	return out
}

// prune 清理已被回收的弱引用
func (x *streamIndex) prune() int {
	n := 0
	for id, wp := range x.weak {
		if wp.Value() == nil {
			delete(x.weak, id)
			n++
		}
	}
	return n
}

func (x *streamIndex) reset() {
	x.recents = nil
	x.byID = make(map[int64]*model.Stream)
	x.weak = make(map[int64]weak.Pointer[model.Stream])
}
