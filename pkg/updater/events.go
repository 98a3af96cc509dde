package updater

import (
	"sync"
	"time"
)

const (
	EventPushIndications      = "esplus_push_indications"
	EventCalculateIndications = "esplus_calculate_indications"
)

const defaultEventLogSize = 100

// Event records the outcome of a submit or calculate action.
type Event struct {
	ID        string             `json:"id"`
	Type      string             `json:"type"`
	EntryID   string             `json:"entryID"`
	AccountID string             `json:"accountID"`
	MeterID   string             `json:"meterID"`
	Success   bool               `json:"success"`
	Values    map[string]float64 `json:"values,omitempty"`
	Error     string             `json:"error,omitempty"`
	Time      time.Time          `json:"time"`
}

// EventLog keeps the most recent events in memory.
type EventLog struct {
	mu     sync.Mutex
	size   int
	events []Event
}

// NewEventLog returns an EventLog holding at most size events. A size of 0
// uses the default of 100.
func NewEventLog(size int) *EventLog {
	if size <= 0 {
		size = defaultEventLogSize
	}
	return &EventLog{size: size}
}

// Add appends an event, dropping the oldest one when full.
func (l *EventLog) Add(e Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
	if over := len(l.events) - l.size; over > 0 {
		l.events = append([]Event(nil), l.events[over:]...)
	}
}

// List returns the events newest first, optionally only those of one entry.
func (l *EventLog) List(entryID string) []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Event, 0, len(l.events))
	for i := len(l.events) - 1; i >= 0; i-- {
		if entryID == "" || l.events[i].EntryID == entryID {
			out = append(out, l.events[i])
		}
	}
	return out
}
