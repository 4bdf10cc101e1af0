package transcript

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Conversation is a persisted transcript with identity and display metadata.
type Conversation struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Messages  []Item    `json:"messages"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Store persists conversations to a single JSON file. A corrupt or missing
// file is treated as an empty store rather than a fatal error.
type Store struct {
	path   string
	logger *slog.Logger

	mu            sync.Mutex
	conversations []Conversation
}

// NewStore loads the store at path, creating parent directories as needed.
func NewStore(path string, logger *slog.Logger) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("store path cannot be empty")
	}
	if logger == nil {
		logger = slog.Default()
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	s := &Store{path: path, logger: logger}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read store file: %w", err)
		}
		return s, nil
	}

	if err := json.Unmarshal(data, &s.conversations); err != nil {
		logger.Warn("Discarding corrupt conversation store", "path", path, "error", err)
		s.conversations = nil
	}

	return s, nil
}

// Save persists a finished transcript as a new conversation and returns it.
// Empty transcripts are not persisted.
func (s *Store) Save(items []Item) (Conversation, error) {
	if len(items) == 0 {
		return Conversation{}, fmt.Errorf("cannot save empty conversation")
	}

	now := time.Now()
	conv := Conversation{
		ID:        uuid.NewString(),
		Title:     titleFor(items),
		Messages:  append([]Item(nil), items...),
		CreatedAt: now,
		UpdatedAt: now,
	}

	s.mu.Lock()
	s.conversations = append(s.conversations, conv)
	err := s.flushLocked()
	s.mu.Unlock()

	if err != nil {
		return Conversation{}, err
	}
	return conv, nil
}

// Update replaces the messages of an existing conversation.
func (s *Store) Update(id string, items []Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.conversations {
		if s.conversations[i].ID == id {
			s.conversations[i].Messages = append([]Item(nil), items...)
			s.conversations[i].UpdatedAt = time.Now()
			return s.flushLocked()
		}
	}
	return fmt.Errorf("conversation %s not found", id)
}

// Get returns a conversation by ID.
func (s *Store) Get(id string) (Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range s.conversations {
		if c.ID == id {
			return c, true
		}
	}
	return Conversation{}, false
}

// List returns all conversations, newest first.
func (s *Store) List() []Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Conversation, len(s.conversations))
	copy(out, s.conversations)
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// Delete removes a conversation by ID.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.conversations {
		if s.conversations[i].ID == id {
			s.conversations = append(s.conversations[:i], s.conversations[i+1:]...)
			return s.flushLocked()
		}
	}
	return fmt.Errorf("conversation %s not found", id)
}

func (s *Store) flushLocked() error {
	data, err := json.MarshalIndent(s.conversations, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode conversations: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write store file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace store file: %w", err)
	}
	return nil
}

const maxTitleRunes = 48

// titleFor derives a conversation title from the first user message.
func titleFor(items []Item) string {
	for _, item := range items {
		if item.Role == RoleUser && item.Text != "" {
			runes := []rune(item.Text)
			if len(runes) > maxTitleRunes {
				return string(runes[:maxTitleRunes])
			}
			return item.Text
		}
	}
	return "Nuevo chat"
}
