package bot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nimasrn/balance-bot/internal/model"
	"github.com/nimasrn/balance-bot/pkg/redis"
	"github.com/shopspring/decimal"
)

type Step string

const (
	StepIdle            Step = "idle"
	StepSelectDirection Step = "select_direction"
	StepEnterAmount     Step = "enter_amount"
	StepConfirm         Step = "confirm"
)

// Conversation is the pending /transfer dialogue of one user in one chat.
type Conversation struct {
	Step      Step             `json:"step"`
	From      model.Identity   `json:"from"`
	To        model.Identity   `json:"to"`
	FromLabel string           `json:"from_label"`
	ToLabel   string           `json:"to_label"`
	Amount    *decimal.Decimal `json:"amount,omitempty"`
}

func conversationKey(chatID, userID int64) string {
	return fmt.Sprintf("conversation:%d:%d", chatID, userID)
}

// ConversationStore keeps dialogue state between updates. Get returns nil
// when nothing is stored or the entry expired.
type ConversationStore interface {
	Get(ctx context.Context, key string) (*Conversation, error)
	Save(ctx context.Context, key string, c *Conversation) error
	Delete(ctx context.Context, key string) error
}

type memoryEntry struct {
	conversation Conversation
	expiresAt    time.Time
}

type MemoryConversationStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]memoryEntry
	now     func() time.Time
}

func NewMemoryConversationStore(ttl time.Duration) *MemoryConversationStore {
	return &MemoryConversationStore{
		ttl:     ttl,
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func (s *MemoryConversationStore) Get(_ context.Context, key string) (*Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return nil, nil
	}
	if !s.now().Before(e.expiresAt) {
		delete(s.entries, key)
		return nil, nil
	}
	c := e.conversation
	return &c, nil
}

func (s *MemoryConversationStore) Save(_ context.Context, key string, c *Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key] = memoryEntry{conversation: *c, expiresAt: s.now().Add(s.ttl)}

	// opportunistic sweep so abandoned dialogues do not pile up
	now := s.now()
	for k, e := range s.entries {
		if !now.Before(e.expiresAt) {
			delete(s.entries, k)
		}
	}
	return nil
}

func (s *MemoryConversationStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

// RedisConversationStore lets any processor instance continue a dialogue.
type RedisConversationStore struct {
	redis redis.RedisAdapter
	ttl   time.Duration
}

func NewRedisConversationStore(adapter redis.RedisAdapter, ttl time.Duration) *RedisConversationStore {
	return &RedisConversationStore{redis: adapter, ttl: ttl}
}

func (s *RedisConversationStore) Get(ctx context.Context, key string) (*Conversation, error) {
	raw, err := s.redis.Get(ctx, key)
	if err != nil {
		if errors.Is(err, redis.NilError) {
			return nil, nil
		}
		return nil, fmt.Errorf("load conversation: %w", err)
	}

	var c Conversation
	if err := json.Unmarshal(raw, &c); err != nil {
		// unreadable state is dropped rather than blocking the user
		_ = s.redis.Del(ctx, key)
		return nil, nil
	}
	return &c, nil
}

func (s *RedisConversationStore) Save(ctx context.Context, key string, c *Conversation) error {
	raw, err := json.Marshal(c)
	if err != nil {
		return err
	}
	if err := s.redis.Set(ctx, key, raw, s.ttl); err != nil {
		return fmt.Errorf("save conversation: %w", err)
	}
	return nil
}

func (s *RedisConversationStore) Delete(ctx context.Context, key string) error {
	return s.redis.Del(ctx, key)
}
