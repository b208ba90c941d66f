package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/baechuer/real-time-ressys/services/checkout-service/internal/domain"
)

// SessionStore keeps checkout wizard sessions under checkout:session:<id>.
type SessionStore struct {
	Client *redis.Client
}

func NewSessionStore(client *redis.Client) *SessionStore {
	return &SessionStore{Client: client}
}

func sessionKey(id uuid.UUID) string {
	return "checkout:session:" + id.String()
}

func submitLockKey(id uuid.UUID) string {
	return "checkout:session:" + id.String() + ":submit"
}

// releaseLock deletes the lock only while it still holds our token.
var releaseLock = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

func (s *SessionStore) Save(ctx context.Context, sess domain.CheckoutSession, ttl time.Duration) error {
	raw, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	return s.Client.Set(ctx, sessionKey(sess.ID), raw, ttl).Err()
}

// Load reads the session and pushes its expiry out by ttl in one round trip.
func (s *SessionStore) Load(ctx context.Context, id uuid.UUID, ttl time.Duration) (domain.CheckoutSession, error) {
	raw, err := s.Client.GetEx(ctx, sessionKey(id), ttl).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.CheckoutSession{}, domain.ErrSessionNotFound
		}
		return domain.CheckoutSession{}, err
	}
	var sess domain.CheckoutSession
	if err := json.Unmarshal(raw, &sess); err != nil {
		return domain.CheckoutSession{}, err
	}
	return sess, nil
}

func (s *SessionStore) Delete(ctx context.Context, id uuid.UUID) error {
	return s.Client.Del(ctx, sessionKey(id)).Err()
}

// LockSubmit is a SETNX lock with a random token; ttl bounds how long a
// crashed holder can block the session.
func (s *SessionStore) LockSubmit(ctx context.Context, id uuid.UUID, ttl time.Duration) (func(context.Context) error, error) {
	key, token := submitLockKey(id), uuid.NewString()
	ok, err := s.Client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrSubmitInProgress
	}
	return func(ctx context.Context) error {
		return releaseLock.Run(ctx, s.Client, []string{key}, token).Err()
	}, nil
}
