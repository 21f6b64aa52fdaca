package chat

import (
	"errors"
	"sync"
	"time"
)

var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrMessageNotFound      = errors.New("message not found")
)

// Store keeps every conversation of the running session in memory,
// newest-first. All mutation funnels through the session controller
// (single logical writer); the lock only protects concurrent readers.
type Store struct {
	mu       sync.RWMutex
	order    []string
	convs    map[string]*Conversation
	activeID string
}

// NewStore bootstraps an empty in-memory conversation store.
func NewStore() *Store {
	return &Store{
		convs: make(map[string]*Conversation),
	}
}

// Insert places the conversation at the head of the list.
func (s *Store) Insert(conv Conversation) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = now
	}
	if conv.UpdatedAt.IsZero() {
		conv.UpdatedAt = now
	}

	s.convs[conv.ID] = &conv
	s.order = append([]string{conv.ID}, s.order...)
}

// Get returns a copy of the conversation, message list included.
func (s *Store) Get(id string) (Conversation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.convs[id]
	if !ok {
		return Conversation{}, false
	}
	return copyConversation(conv), true
}

// List returns all conversations, newest-first.
func (s *Store) List() []Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Conversation, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, copyConversation(s.convs[id]))
	}
	return out
}

// Rename updates the conversation title.
func (s *Store) Rename(id, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.convs[id]
	if !ok {
		return ErrConversationNotFound
	}
	conv.Title = title
	conv.UpdatedAt = time.Now().UTC()
	return nil
}

// Delete removes the conversation. When the active conversation is the one
// deleted, the most recent remaining conversation becomes active and its id
// is returned; an empty next id means the store is now empty and the caller
// must seed a replacement.
func (s *Store) Delete(id string) (next string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.convs[id]; !ok {
		return "", ErrConversationNotFound
	}

	delete(s.convs, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}

	if s.activeID == id {
		s.activeID = ""
		if len(s.order) > 0 {
			s.activeID = s.order[0]
		}
	}
	return s.activeID, nil
}

// AppendMessage adds a message to the tail of the conversation.
func (s *Store) AppendMessage(convID string, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.convs[convID]
	if !ok {
		return ErrConversationNotFound
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	conv.Messages = append(conv.Messages, msg)
	conv.UpdatedAt = time.Now().UTC()
	return nil
}

// AppendContent appends text to an existing message. Message order and
// identity are untouched; content grows append-only.
func (s *Store) AppendContent(convID, msgID, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.convs[convID]
	if !ok {
		return ErrConversationNotFound
	}
	for i := range conv.Messages {
		if conv.Messages[i].ID == msgID {
			conv.Messages[i].Content += text
			conv.UpdatedAt = time.Now().UTC()
			return nil
		}
	}
	return ErrMessageNotFound
}

// SetMessageType marks the terminal rendering state of a message.
func (s *Store) SetMessageType(convID, msgID string, t MessageType) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.convs[convID]
	if !ok {
		return ErrConversationNotFound
	}
	for i := range conv.Messages {
		if conv.Messages[i].ID == msgID {
			conv.Messages[i].Type = t
			conv.UpdatedAt = time.Now().UTC()
			return nil
		}
	}
	return ErrMessageNotFound
}

// ReplaceID rewrites a conversation key, atomically updating the list order
// and the active pointer. Replacing an id with itself is a no-op.
func (s *Store) ReplaceID(oldID, newID string) bool {
	if oldID == newID {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.convs[oldID]
	if !ok {
		return false
	}

	conv.ID = newID
	delete(s.convs, oldID)
	s.convs[newID] = conv
	for i, id := range s.order {
		if id == oldID {
			s.order[i] = newID
			break
		}
	}
	if s.activeID == oldID {
		s.activeID = newID
	}
	return true
}

// ActiveID returns the currently selected conversation id.
func (s *Store) ActiveID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeID
}

// SetActive selects a conversation.
func (s *Store) SetActive(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.convs[id]; !ok {
		return ErrConversationNotFound
	}
	s.activeID = id
	return nil
}

// Len reports the number of stored conversations.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

func copyConversation(conv *Conversation) Conversation {
	out := *conv
	out.Messages = make([]Message, len(conv.Messages))
	copy(out.Messages, conv.Messages)
	return out
}
