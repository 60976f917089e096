package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"vpn-shop-bot/internal/domain/model"
	"vpn-shop-bot/internal/domain/ports/repository"
)

var _ repository.StateRepository = (*StateRepo)(nil)

// StateRepo keeps the per-user conversation context in Redis.
// Every write refreshes the TTL, so an abandoned conversation simply expires.
type StateRepo struct {
	client RedisClient
	ttl    time.Duration
}

func NewStateRepo(client RedisClient, ttl time.Duration) *StateRepo {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &StateRepo{client: client, ttl: ttl}
}

func (s *StateRepo) stateKey(tgID int64) string {
	return fmt.Sprintf("conv_state:%d", tgID)
}

func (s *StateRepo) SetState(ctx context.Context, tgID int64, state *model.Conversation) error {
	if state == nil || state.Step == model.StepIdle && state.Intent == nil && state.Broadcast == nil {
		return s.ClearState(ctx, tgID)
	}
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal conversation: %w", err)
	}
	return s.client.Set(ctx, s.stateKey(tgID), data, s.ttl)
}

func (s *StateRepo) GetState(ctx context.Context, tgID int64) (*model.Conversation, error) {
	data, err := s.client.Get(ctx, s.stateKey(tgID))
	if err != nil {
		if IsNil(err) {
			return &model.Conversation{}, nil
		}
		return nil, err
	}

	var state model.Conversation
	if err := json.Unmarshal([]byte(data), &state); err != nil {
		return nil, fmt.Errorf("unmarshal conversation: %w", err)
	}
	return &state, nil
}

func (s *StateRepo) ClearState(ctx context.Context, tgID int64) error {
	return s.client.Del(ctx, s.stateKey(tgID))
}
