// Package queue holds the display queue: scripture passages waiting for an
// operator to confirm, stage, display or dismiss them.
//
// Items arrive from the transcript engine (source "voice") or from an
// operator (source "manual"). The queue owns all later status transitions and
// fans every change out to subscribers such as the websocket feed.
package queue

import (
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/lectern/internal/intent"
	"github.com/MrWong99/lectern/pkg/scripture"
)

// Sentinel errors returned by [Queue] methods.
var (
	ErrNotFound      = errors.New("queue: item not found")
	ErrInvalidStatus = errors.New("queue: invalid status")
)

// Action is the engine's recommendation for an item.
type Action string

const (
	ActionQueue            Action = "QUEUE"
	ActionQueueWithWarning Action = "QUEUE_WITH_WARNING"
	ActionSuggest          Action = "SUGGEST"
	ActionIgnore           Action = "IGNORE"
)

// Status is the lifecycle state of an item.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusIgnored   Status = "ignored"
	StatusStaged    Status = "staged"
	StatusDisplayed Status = "displayed"
)

// IsValid reports whether s is a recognised status.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusIgnored, StatusStaged, StatusDisplayed:
		return true
	}
	return false
}

// Source records where an item came from.
type Source string

const (
	SourceVoice  Source = "voice"
	SourceManual Source = "manual"
)

// Item is one queued passage.
type Item struct {
	ID         string              `json:"id"`
	Reference  scripture.Reference `json:"reference"`
	Display    string              `json:"display"`
	Text       string              `json:"text"`
	Source     Source              `json:"source"`
	Action     Action              `json:"action"`
	Status     Status              `json:"status"`
	CreatedAt  time.Time           `json:"created_at"`
	Confidence float64             `json:"confidence"`
	IntentType intent.Type         `json:"intent_type,omitempty"`
}

// NewManualItem builds a pending, fully confident item for a passage chosen
// by an operator.
func NewManualItem(p scripture.Passage, now time.Time) Item {
	return Item{
		ID:         uuid.NewString(),
		Reference:  p.Reference,
		Display:    p.Display,
		Text:       p.Text,
		Source:     SourceManual,
		Action:     ActionQueue,
		Status:     StatusPending,
		CreatedAt:  now,
		Confidence: 1,
	}
}

// EventType names a queue change.
type EventType string

const (
	EventAdded   EventType = "added"
	EventUpdated EventType = "updated"
	EventRemoved EventType = "removed"
)

// Event is delivered to subscribers for every change.
type Event struct {
	Type EventType `json:"type"`
	Item Item      `json:"item"`
}

// subscriberBuffer is the per-subscriber channel capacity. A subscriber
// that falls this far behind is dropped.
const subscriberBuffer = 64

// Queue is an in-memory, insertion-ordered item list. It is safe for
// concurrent use.
type Queue struct {
	mu    sync.RWMutex
	items []Item
	subs  map[chan Event]struct{}
	limit int
}

// New returns an empty queue. When limit > 0 the oldest items are evicted
// once the queue holds more than limit items.
func New(limit int) *Queue {
	return &Queue{
		subs:  make(map[chan Event]struct{}),
		limit: limit,
	}
}

// Add appends item and notifies subscribers. An item with an empty ID gets a
// fresh one; an empty status becomes pending.
func (q *Queue) Add(item Item) Item {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.Status == "" {
		item.Status = StatusPending
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, item)
	if q.limit > 0 && len(q.items) > q.limit {
		q.items = slices.Delete(q.items, 0, len(q.items)-q.limit)
	}
	q.publish(Event{Type: EventAdded, Item: item})
	return item
}

// List returns a snapshot of all items, oldest first.
func (q *Queue) List() []Item {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return slices.Clone(q.items)
}

// Get returns the item with the given ID.
func (q *Queue) Get(id string) (Item, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if i := q.index(id); i >= 0 {
		return q.items[i], nil
	}
	return Item{}, ErrNotFound
}

// UpdateStatus sets the status of an item.
func (q *Queue) UpdateStatus(id string, status Status) (Item, error) {
	if !status.IsValid() {
		return Item{}, ErrInvalidStatus
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	i := q.index(id)
	if i < 0 {
		return Item{}, ErrNotFound
	}
	q.items[i].Status = status
	q.publish(Event{Type: EventUpdated, Item: q.items[i]})
	return q.items[i], nil
}

// Remove deletes an item.
func (q *Queue) Remove(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	i := q.index(id)
	if i < 0 {
		return ErrNotFound
	}
	item := q.items[i]
	q.items = slices.Delete(q.items, i, i+1)
	q.publish(Event{Type: EventRemoved, Item: item})
	return nil
}

// Clear removes every item without notifying subscribers.
func (q *Queue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = nil
}

// Subscribe registers for change events. The returned cancel function must
// be called to release the subscription; it is safe to call more than once.
// The channel is closed on cancel or when the subscriber falls behind.
func (q *Queue) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)
	q.mu.Lock()
	q.subs[ch] = struct{}{}
	q.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			q.mu.Lock()
			defer q.mu.Unlock()
			if _, ok := q.subs[ch]; ok {
				delete(q.subs, ch)
				close(ch)
			}
		})
	}
}

// publish must be called with q.mu held for writing.
func (q *Queue) publish(ev Event) {
	for ch := range q.subs {
		select {
		case ch <- ev:
		default:
			delete(q.subs, ch)
			close(ch)
		}
	}
}

func (q *Queue) index(id string) int {
	return slices.IndexFunc(q.items, func(it Item) bool { return it.ID == id })
}
