package main

import (
	"log/slog"
	"sync"
	"time"

	"github.com/CarlosDimare/CHATVOZ/internal/transcript"
)

const autosaveInterval = 5 * time.Second

// autosaver persists the live transcript into the conversation store. It
// observes every transcript mutation and flushes on a timer so streaming
// fragments do not hammer the disk. An empty transcript resets the tracked
// conversation, so the next session is saved as a new one.
type autosaver struct {
	store  *transcript.Store
	logger *slog.Logger

	mu     sync.Mutex
	convID string
	items  []transcript.Item
	dirty  bool
	stop   chan struct{}
	done   chan struct{}
}

func newAutosaver(store *transcript.Store, logger *slog.Logger) *autosaver {
	a := &autosaver{
		store:  store,
		logger: logger,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go a.run()
	return a
}

// onUpdate is the transcript UpdateFunc.
func (a *autosaver) onUpdate(items []transcript.Item) {
	a.mu.Lock()
	a.items = items
	a.dirty = true
	if len(items) == 0 {
		a.convID = ""
		a.dirty = false
	}
	a.mu.Unlock()
}

func (a *autosaver) run() {
	defer close(a.done)
	ticker := time.NewTicker(autosaveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-a.stop:
			a.flush()
			return
		case <-ticker.C:
			a.flush()
		}
	}
}

func (a *autosaver) flush() {
	a.mu.Lock()
	if !a.dirty || len(a.items) == 0 {
		a.mu.Unlock()
		return
	}
	items := a.items
	convID := a.convID
	a.dirty = false
	a.mu.Unlock()

	if convID == "" {
		conv, err := a.store.Save(items)
		if err != nil {
			a.logger.Warn("Failed to save conversation", "error", err)
			return
		}
		a.mu.Lock()
		if a.convID == "" {
			a.convID = conv.ID
		}
		a.mu.Unlock()
		return
	}

	if err := a.store.Update(convID, items); err != nil {
		a.logger.Warn("Failed to update conversation", "error", err)
	}
}

// Stop flushes pending changes and stops the background loop.
func (a *autosaver) Stop() {
	close(a.stop)
	<-a.done
}
