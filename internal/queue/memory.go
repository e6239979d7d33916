package queue

import (
	"errors"
	"sync"
	"time"
)

var (
	ErrQueueEmpty    = errors.New("queue is empty")
	ErrQueueClosed   = errors.New("queue is closed")
	ErrQueueCapacity = errors.New("queue at capacity")
)

// MemoryQueue is a thread-safe in-memory FIFO queue. A URL is held at most
// once while it waits.
type MemoryQueue struct {
	mu       sync.RWMutex
	items    []*QueueItem
	head     int
	urlSet   map[string]struct{}
	closed   bool
	capacity int
}

// NewMemoryQueue creates a new in-memory queue. A capacity of 0 is unbounded.
func NewMemoryQueue(capacity int) *MemoryQueue {
	return &MemoryQueue{
		items:    make([]*QueueItem, 0, 64),
		urlSet:   make(map[string]struct{}),
		capacity: capacity,
	}
}

// Push adds an item to the back of the queue. Duplicates of a waiting URL are
// ignored.
func (mq *MemoryQueue) Push(item *QueueItem) error {
	mq.mu.Lock()
	defer mq.mu.Unlock()

	if mq.closed {
		return ErrQueueClosed
	}

	if mq.capacity > 0 && mq.lenLocked() >= mq.capacity {
		return ErrQueueCapacity
	}

	if _, exists := mq.urlSet[item.URL]; exists {
		return nil
	}

	if item.Timestamp.IsZero() {
		item.Timestamp = time.Now()
	}
	mq.urlSet[item.URL] = struct{}{}
	mq.items = append(mq.items, item)
	return nil
}

// Pop removes and returns the oldest item.
func (mq *MemoryQueue) Pop() (*QueueItem, error) {
	mq.mu.Lock()
	defer mq.mu.Unlock()

	if mq.closed {
		return nil, ErrQueueClosed
	}

	if mq.lenLocked() == 0 {
		return nil, ErrQueueEmpty
	}

	item := mq.items[mq.head]
	mq.items[mq.head] = nil
	mq.head++

	// Reclaim the consumed prefix once it dominates the backing array.
	if mq.head > 32 && mq.head*2 >= len(mq.items) {
		mq.items = append(mq.items[:0:0], mq.items[mq.head:]...)
		mq.head = 0
	}

	delete(mq.urlSet, item.URL)
	return item, nil
}

// Peek returns the oldest item without removing it.
func (mq *MemoryQueue) Peek() (*QueueItem, error) {
	mq.mu.RLock()
	defer mq.mu.RUnlock()

	if mq.closed {
		return nil, ErrQueueClosed
	}

	if mq.lenLocked() == 0 {
		return nil, ErrQueueEmpty
	}

	return mq.items[mq.head], nil
}

func (mq *MemoryQueue) lenLocked() int {
	return len(mq.items) - mq.head
}

// Len returns the number of items in the queue.
func (mq *MemoryQueue) Len() int {
	mq.mu.RLock()
	defer mq.mu.RUnlock()
	return mq.lenLocked()
}

// IsEmpty returns true if the queue is empty.
func (mq *MemoryQueue) IsEmpty() bool {
	return mq.Len() == 0
}

// Clear removes all items from the queue.
func (mq *MemoryQueue) Clear() error {
	mq.mu.Lock()
	defer mq.mu.Unlock()

	mq.items = make([]*QueueItem, 0, 64)
	mq.head = 0
	mq.urlSet = make(map[string]struct{})
	return nil
}

// Close closes the queue.
func (mq *MemoryQueue) Close() error {
	mq.mu.Lock()
	defer mq.mu.Unlock()

	mq.closed = true
	return nil
}

// Contains checks if a URL is waiting in the queue.
func (mq *MemoryQueue) Contains(url string) bool {
	mq.mu.RLock()
	defer mq.mu.RUnlock()
	_, exists := mq.urlSet[url]
	return exists
}

// URLs returns the waiting URLs in queue order.
func (mq *MemoryQueue) URLs() []string {
	mq.mu.RLock()
	defer mq.mu.RUnlock()

	urls := make([]string, 0, mq.lenLocked())
	for _, item := range mq.items[mq.head:] {
		urls = append(urls, item.URL)
	}
	return urls
}
