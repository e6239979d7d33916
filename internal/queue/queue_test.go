package queue

import (
	"fmt"
	"reflect"
	"sync"
	"testing"
)

var _ Queue = (*MemoryQueue)(nil)

func TestMemoryQueue_FIFOOrder(t *testing.T) {
	q := NewMemoryQueue(0)

	urls := []string{
		"https://example.com/pages/a.html",
		"https://example.com/pages/b.html",
		"https://example.com/pages/c.html",
	}
	for i, u := range urls {
		if err := q.Push(&QueueItem{URL: u, Depth: len(urls) - i}); err != nil {
			t.Fatalf("Push(%s) error = %v", u, err)
		}
	}

	for _, want := range urls {
		item, err := q.Pop()
		if err != nil {
			t.Fatalf("Pop() error = %v", err)
		}
		if item.URL != want {
			t.Errorf("Pop() = %s, want %s", item.URL, want)
		}
	}

	if _, err := q.Pop(); err != ErrQueueEmpty {
		t.Errorf("Pop() on empty queue error = %v, want ErrQueueEmpty", err)
	}
}

func TestMemoryQueue_Duplicates(t *testing.T) {
	q := NewMemoryQueue(0)

	q.Push(&QueueItem{URL: "https://example.com/a"})
	q.Push(&QueueItem{URL: "https://example.com/a"})

	if q.Len() != 1 {
		t.Errorf("Len() = %d, want 1", q.Len())
	}

	q.Pop()
	q.Push(&QueueItem{URL: "https://example.com/a"})
	if q.Len() != 1 {
		t.Errorf("URL should be accepted again once popped, Len() = %d", q.Len())
	}
}

func TestMemoryQueue_PeekAndContains(t *testing.T) {
	q := NewMemoryQueue(0)

	if _, err := q.Peek(); err != ErrQueueEmpty {
		t.Errorf("Peek() on empty queue error = %v, want ErrQueueEmpty", err)
	}

	q.Push(&QueueItem{URL: "first"})
	q.Push(&QueueItem{URL: "second"})

	item, err := q.Peek()
	if err != nil || item.URL != "first" {
		t.Errorf("Peek() = %v, %v; want first", item, err)
	}
	if q.Len() != 2 {
		t.Errorf("Peek() should not remove, Len() = %d", q.Len())
	}
	if !q.Contains("second") || q.Contains("third") {
		t.Error("Contains() mismatch")
	}
}

func TestMemoryQueue_Timestamp(t *testing.T) {
	q := NewMemoryQueue(0)
	q.Push(&QueueItem{URL: "a"})

	item, _ := q.Pop()
	if item.Timestamp.IsZero() {
		t.Error("Push() should stamp items")
	}
}

func TestMemoryQueue_Capacity(t *testing.T) {
	q := NewMemoryQueue(2)

	q.Push(&QueueItem{URL: "a"})
	q.Push(&QueueItem{URL: "b"})
	if err := q.Push(&QueueItem{URL: "c"}); err != ErrQueueCapacity {
		t.Errorf("Push() over capacity error = %v, want ErrQueueCapacity", err)
	}
}

func TestMemoryQueue_ClearAndClose(t *testing.T) {
	q := NewMemoryQueue(0)
	q.Push(&QueueItem{URL: "a"})
	q.Push(&QueueItem{URL: "b"})

	if err := q.Clear(); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if !q.IsEmpty() || q.Contains("a") {
		t.Error("Clear() should empty the queue")
	}

	q.Close()
	if err := q.Push(&QueueItem{URL: "c"}); err != ErrQueueClosed {
		t.Errorf("Push() after Close error = %v, want ErrQueueClosed", err)
	}
	if _, err := q.Pop(); err != ErrQueueClosed {
		t.Errorf("Pop() after Close error = %v, want ErrQueueClosed", err)
	}
}

func TestMemoryQueue_LongRunCompaction(t *testing.T) {
	q := NewMemoryQueue(0)

	next := 0
	for round := 0; round < 20; round++ {
		for i := 0; i < 10; i++ {
			q.Push(&QueueItem{URL: fmt.Sprintf("u%d", round*10+i)})
		}
		for i := 0; i < 8; i++ {
			item, err := q.Pop()
			if err != nil {
				t.Fatalf("Pop() error = %v", err)
			}
			if want := fmt.Sprintf("u%d", next); item.URL != want {
				t.Fatalf("Pop() = %s, want %s", item.URL, want)
			}
			next++
		}
	}

	if q.Len() != 40 {
		t.Errorf("Len() = %d, want 40", q.Len())
	}
	urls := q.URLs()
	if urls[0] != fmt.Sprintf("u%d", next) {
		t.Errorf("URLs()[0] = %s, want u%d", urls[0], next)
	}
}

func TestMemoryQueue_URLs(t *testing.T) {
	q := NewMemoryQueue(0)
	q.Push(&QueueItem{URL: "a"})
	q.Push(&QueueItem{URL: "b"})
	q.Push(&QueueItem{URL: "c"})
	q.Pop()

	if got := q.URLs(); !reflect.DeepEqual(got, []string{"b", "c"}) {
		t.Errorf("URLs() = %v, want [b c]", got)
	}
}

func TestMemoryQueue_Concurrent(t *testing.T) {
	q := NewMemoryQueue(0)
	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				q.Push(&QueueItem{URL: fmt.Sprintf("u%d-%d", n, j)})
			}
		}(i)
	}
	wg.Wait()

	if q.Len() != 1000 {
		t.Errorf("Len() = %d, want 1000", q.Len())
	}
}
