// Package util
//
// This file provides the priority queue the engines use to find expired entries.
//
// DeadlineHeap combines a binary min-heap ordered by deadline with a map from key
// to heap slot. That gives:
//   - O(log n) Push, Pop and deadline updates
//   - O(1) lookups by key
//   - O(log n) removal by key
//
// Every key appears at most once. Scheduling a key that is already queued moves it
// to the new deadline instead of adding a second item.
//
// Thread-safety: not safe for concurrent use, callers must synchronize.
//
// Example usage:
//
//	h := NewDeadlineHeap()
//	h.Schedule("session:1", deadline1)
//	h.Schedule("session:2", deadline2)
//
//	for {
//	    key, ok := h.PopDue(now.UnixNano())
//	    if !ok {
//	        break
//	    }
//	    // reclaim key
//	}
package util

import (
	"container/heap"
	"strconv"
)

// deadlineItem is a key scheduled for expiry at Deadline (unix nanos)
type deadlineItem struct {
	Key      string
	Deadline int64
	index    int // maintained by the heap package
}

func (i *deadlineItem) String() string {
	return "{Key: " + i.Key + ", Deadline: " + strconv.FormatInt(i.Deadline, 10) + "}"
}

// deadlineSlice implements heap.Interface
type deadlineSlice struct {
	items []*deadlineItem
	byKey map[string]*deadlineItem
}

func (s *deadlineSlice) Len() int { return len(s.items) }

func (s *deadlineSlice) Less(i, j int) bool {
	return s.items[i].Deadline < s.items[j].Deadline
}

func (s *deadlineSlice) Swap(i, j int) {
	s.items[i], s.items[j] = s.items[j], s.items[i]
	s.items[i].index = i
	s.items[j].index = j
}

func (s *deadlineSlice) Push(x any) {
	it := x.(*deadlineItem)
	it.index = len(s.items)
	s.items = append(s.items, it)
	s.byKey[it.Key] = it
}

func (s *deadlineSlice) Pop() any {
	old := s.items
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	it.index = -1
	s.items = old[:n-1]
	delete(s.byKey, it.Key)
	return it
}

// DeadlineHeap is a min-heap of keys ordered by their expiry deadline.
type DeadlineHeap struct {
	s deadlineSlice
}

// NewDeadlineHeap creates an empty heap
func NewDeadlineHeap() *DeadlineHeap {
	return &DeadlineHeap{s: deadlineSlice{byKey: make(map[string]*deadlineItem)}}
}

// Len returns the number of scheduled keys
func (h *DeadlineHeap) Len() int { return h.s.Len() }

// Schedule queues key for deadline, moving it if it is already queued.
func (h *DeadlineHeap) Schedule(key string, deadline int64) {
	if it, ok := h.s.byKey[key]; ok {
		it.Deadline = deadline
		heap.Fix(&h.s, it.index)
		return
	}
	heap.Push(&h.s, &deadlineItem{Key: key, Deadline: deadline})
}

// Remove unschedules key and returns its deadline.
func (h *DeadlineHeap) Remove(key string) (int64, bool) {
	it, ok := h.s.byKey[key]
	if !ok {
		return 0, false
	}
	heap.Remove(&h.s, it.index)
	return it.Deadline, true
}

// Peek returns the key with the earliest deadline without removing it.
func (h *DeadlineHeap) Peek() (key string, deadline int64, ok bool) {
	if len(h.s.items) == 0 {
		return "", 0, false
	}
	it := h.s.items[0]
	return it.Key, it.Deadline, true
}

// PopDue removes and returns the earliest key if its deadline is <= now.
func (h *DeadlineHeap) PopDue(now int64) (key string, ok bool) {
	if len(h.s.items) == 0 || h.s.items[0].Deadline > now {
		return "", false
	}
	it := heap.Pop(&h.s).(*deadlineItem)
	return it.Key, true
}

// Contains checks if key is scheduled
func (h *DeadlineHeap) Contains(key string) bool {
	_, ok := h.s.byKey[key]
	return ok
}
