package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kishan11111/GujaratClassified-sub001/internal/model"
	"github.com/redis/go-redis/v9"
)

// TicketStore keeps verified OTP states between verify-otp and the step that consumes them.
// Keys are hashes of the opaque ticket handed to the client.
type TicketStore interface {
	Put(ctx context.Context, ticketHash string, state model.VerifiedState, ttl time.Duration) error
	// Get reads the state without consuming it.
	Get(ctx context.Context, ticketHash string) (model.VerifiedState, error)
	// Take reads and deletes the state atomically; only one caller can take a ticket.
	Take(ctx context.Context, ticketHash string) (model.VerifiedState, error)
}

type redisTicketStore struct {
	client *redis.Client
}

func NewRedisTicketStore(client *redis.Client) TicketStore {
	return &redisTicketStore{client: client}
}

func ticketKey(ticketHash string) string {
	return fmt.Sprintf("verify_ticket:%s", ticketHash)
}

func (s *redisTicketStore) Put(ctx context.Context, ticketHash string, state model.VerifiedState, ttl time.Duration) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal verified state: %w", err)
	}
	if err := s.client.Set(ctx, ticketKey(ticketHash), data, ttl).Err(); err != nil {
		return fmt.Errorf("store ticket: %w", err)
	}
	return nil
}

func (s *redisTicketStore) Get(ctx context.Context, ticketHash string) (model.VerifiedState, error) {
	result, err := s.client.Get(ctx, ticketKey(ticketHash)).Result()
	return decodeTicket(result, err)
}

func (s *redisTicketStore) Take(ctx context.Context, ticketHash string) (model.VerifiedState, error) {
	result, err := s.client.GetDel(ctx, ticketKey(ticketHash)).Result()
	return decodeTicket(result, err)
}

func decodeTicket(raw string, err error) (model.VerifiedState, error) {
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return model.VerifiedState{}, ErrNotFound
		}
		return model.VerifiedState{}, fmt.Errorf("read ticket: %w", err)
	}
	var state model.VerifiedState
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return model.VerifiedState{}, fmt.Errorf("unmarshal verified state: %w", err)
	}
	return state, nil
}

type memoryTicket struct {
	state     model.VerifiedState
	expiresAt time.Time
}

// MemoryTicketStore is used when no Redis is configured (development, tests).
type MemoryTicketStore struct {
	mu      sync.Mutex
	now     func() time.Time
	tickets map[string]memoryTicket
}

func NewMemoryTicketStore(now func() time.Time) *MemoryTicketStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryTicketStore{now: now, tickets: make(map[string]memoryTicket)}
}

func (s *MemoryTicketStore) Put(_ context.Context, ticketHash string, state model.VerifiedState, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tickets[ticketHash] = memoryTicket{state: state, expiresAt: s.now().Add(ttl)}
	return nil
}

func (s *MemoryTicketStore) Get(_ context.Context, ticketHash string) (model.VerifiedState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lookup(ticketHash)
}

func (s *MemoryTicketStore) Take(_ context.Context, ticketHash string) (model.VerifiedState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, err := s.lookup(ticketHash)
	delete(s.tickets, ticketHash)
	return state, err
}

func (s *MemoryTicketStore) lookup(ticketHash string) (model.VerifiedState, error) {
	t, ok := s.tickets[ticketHash]
	if !ok || !s.now().Before(t.expiresAt) {
		return model.VerifiedState{}, ErrNotFound
	}
	return t.state, nil
}
