package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/gecofarm/farm-session/internal/core/domain"
)

// SessionStore keeps browser sessions in Redis and fans their changes out
// over pub/sub so every replica holding the session re-resolves.
// Key format: session:<sid>; channel: session_events:<sid>
type SessionStore struct {
	client *redis.Client
	log    zerolog.Logger
}

func NewSessionStore(client *redis.Client, log zerolog.Logger) *SessionStore {
	return &SessionStore{client: client, log: log}
}

func (s *SessionStore) Put(ctx context.Context, sessionID string, sess domain.Session, ttl time.Duration) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := s.client.Set(ctx, sessionKey(sessionID), data, ttl).Err(); err != nil {
		return fmt.Errorf("put session: %w", err)
	}
	return nil
}

func (s *SessionStore) Get(ctx context.Context, sessionID string) (*domain.Session, error) {
	data, err := s.client.Get(ctx, sessionKey(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	var sess domain.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &sess, nil
}

func (s *SessionStore) Delete(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, sessionKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (s *SessionStore) Publish(ctx context.Context, sessionID string, ev domain.SessionEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode session event: %w", err)
	}
	if err := s.client.Publish(ctx, eventsChannel(sessionID), data).Err(); err != nil {
		return fmt.Errorf("publish session event: %w", err)
	}
	return nil
}

// Subscribe streams the change notifications of sessionID until the returned
// close function is called. Malformed payloads are dropped.
func (s *SessionStore) Subscribe(ctx context.Context, sessionID string) (<-chan domain.SessionEvent, func() error) {
	sub := s.client.Subscribe(ctx, eventsChannel(sessionID))
	out := make(chan domain.SessionEvent, 8)

	go func() {
		defer close(out)
		for msg := range sub.Channel() {
			var ev domain.SessionEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				s.log.Warn().Err(err).Str("channel", msg.Channel).Msg("dropping malformed session event")
				continue
			}
			out <- ev
		}
	}()

	return out, sub.Close
}

func sessionKey(sessionID string) string {
	return "session:" + sessionID
}

func eventsChannel(sessionID string) string {
	return "session_events:" + sessionID
}
