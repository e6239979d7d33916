// Package queue provides the crawl frontier.
package queue

import "time"

// Queue defines the interface for URL queues.
type Queue interface {
	// Push adds an item to the back of the queue
	Push(item *QueueItem) error

	// Pop removes and returns the item at the front of the queue
	Pop() (*QueueItem, error)

	// Peek returns the front item without removing it
	Peek() (*QueueItem, error)

	// Len returns the number of items in the queue
	Len() int

	// IsEmpty returns true if the queue is empty
	IsEmpty() bool

	// Clear removes all items from the queue
	Clear() error

	// Close closes the queue and releases resources
	Close() error

	// Contains checks if a URL is waiting in the queue
	Contains(url string) bool
}

// QueueItem is one page waiting to be crawled.
type QueueItem struct {
	URL       string
	Depth     int
	ParentURL string
	Timestamp time.Time
}
