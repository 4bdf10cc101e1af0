package transcript

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Role identifies the author of a transcript item.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Status tracks whether an item is still receiving fragments.
type Status string

const (
	StatusStreaming Status = "streaming"
	StatusFinal     Status = "final"
)

// Source is a grounding reference attached to a model item.
type Source struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// Item is a single entry in the conversation log.
type Item struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
	Sources   []Source  `json:"sources,omitempty"`
	Status    Status    `json:"status"`
}

// UpdateFunc receives a snapshot of the log after every mutation.
type UpdateFunc func(items []Item)

// Log reconciles incremental transcription fragments into conversation
// items. At most one item is open at a time; a fragment appends to the open
// item when the role matches, otherwise it closes the open item and starts
// a new one.
type Log struct {
	mu        sync.Mutex
	items     []Item
	openUser  string
	openModel string
	now       func() time.Time
	onUpdate  UpdateFunc
}

// NewLog creates an empty conversation log.
func NewLog() *Log {
	return &Log{now: time.Now}
}

// SetUpdateFunc registers an observer called with a snapshot after every
// mutation. The callback runs outside the log's lock.
func (l *Log) SetUpdateFunc(fn UpdateFunc) {
	l.mu.Lock()
	l.onUpdate = fn
	l.mu.Unlock()
}

// AppendUser merges a user transcription fragment into the log.
func (l *Log) AppendUser(text string) {
	if text == "" {
		return
	}
	l.mu.Lock()
	l.appendLocked(RoleUser, text, nil)
	l.notifyLocked()
}

// AppendModel merges a model transcription fragment into the log. Sources
// accompany grounding metadata and are deduplicated by URL on the open item.
func (l *Log) AppendModel(text string, sources []Source) {
	if text == "" && len(sources) == 0 {
		return
	}
	l.mu.Lock()
	l.appendLocked(RoleModel, text, sources)
	l.notifyLocked()
}

// appendLocked applies the open-item merge rule for one role. A fragment
// closes the opposite role's open item, so a role switch always starts a
// new item.
func (l *Log) appendLocked(role Role, text string, sources []Source) {
	l.closeOppositeLocked(role)
	open := l.openID(role)
	if open != "" {
		for i := range l.items {
			if l.items[i].ID == open {
				l.items[i].Text += text
				l.mergeSources(&l.items[i], sources)
				return
			}
		}
	}

	item := Item{
		ID:        uuid.NewString(),
		Role:      role,
		Text:      text,
		Timestamp: l.now(),
		Status:    StatusStreaming,
	}
	l.mergeSources(&item, sources)
	l.items = append(l.items, item)
	l.setOpenID(role, item.ID)
}

func (l *Log) mergeSources(item *Item, sources []Source) {
	for _, s := range sources {
		if s.URL == "" {
			continue
		}
		seen := false
		for _, have := range item.Sources {
			if have.URL == s.URL {
				seen = true
				break
			}
		}
		if !seen {
			item.Sources = append(item.Sources, s)
		}
	}
}

// CloseAll finalizes every open item. Called on turn completion,
// interruption and session close.
func (l *Log) CloseAll() {
	l.mu.Lock()
	changed := false
	for i := range l.items {
		if l.items[i].Status == StatusStreaming {
			l.items[i].Status = StatusFinal
			changed = true
		}
	}
	l.openUser = ""
	l.openModel = ""
	if !changed {
		l.mu.Unlock()
		return
	}
	l.notifyLocked()
}

// AddUserMessage appends a complete, already-final user item. Used for
// typed text input, which never streams.
func (l *Log) AddUserMessage(text string) {
	if text == "" {
		return
	}
	l.mu.Lock()
	l.closeOppositeLocked(RoleUser)
	l.openUser = ""
	l.items = append(l.items, Item{
		ID:        uuid.NewString(),
		Role:      RoleUser,
		Text:      text,
		Timestamp: l.now(),
		Status:    StatusFinal,
	})
	l.notifyLocked()
}

// Items returns a snapshot of the log.
func (l *Log) Items() []Item {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.snapshotLocked()
}

// Len returns the number of items.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.items)
}

// Clear discards all items and open-item tracking.
func (l *Log) Clear() {
	l.mu.Lock()
	l.items = nil
	l.openUser = ""
	l.openModel = ""
	l.notifyLocked()
}

// Restore replaces the log contents with a persisted conversation. Restored
// items are final, so no open-item tracking carries over.
func (l *Log) Restore(items []Item) {
	l.mu.Lock()
	l.items = make([]Item, len(items))
	copy(l.items, items)
	for i := range l.items {
		l.items[i].Status = StatusFinal
	}
	l.openUser = ""
	l.openModel = ""
	l.notifyLocked()
}

func (l *Log) closeOppositeLocked(role Role) {
	other := RoleModel
	if role == RoleModel {
		other = RoleUser
	}
	open := l.openID(other)
	if open == "" {
		return
	}
	for i := range l.items {
		if l.items[i].ID == open {
			l.items[i].Status = StatusFinal
			break
		}
	}
	l.setOpenID(other, "")
}

func (l *Log) openID(role Role) string {
	if role == RoleUser {
		return l.openUser
	}
	return l.openModel
}

func (l *Log) setOpenID(role Role, id string) {
	if role == RoleUser {
		l.openUser = id
	} else {
		l.openModel = id
	}
}

func (l *Log) snapshotLocked() []Item {
	out := make([]Item, len(l.items))
	copy(out, l.items)
	for i := range out {
		if len(l.items[i].Sources) > 0 {
			out[i].Sources = append([]Source(nil), l.items[i].Sources...)
		}
	}
	return out
}

// notifyLocked snapshots under the lock, releases it and fires the observer.
func (l *Log) notifyLocked() {
	fn := l.onUpdate
	var snap []Item
	if fn != nil {
		snap = l.snapshotLocked()
	}
	l.mu.Unlock()
	if fn != nil {
		fn(snap)
	}
}
