package callerctx

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/flashsale/internal/kvstore"
)

const defaultSessionTTL = 30 * time.Minute

var ErrSessionNotFound = errors.New("session_not_found")

// Caller is the identity attached to a login token.
type Caller struct {
	ID       snowflake.ID
	NickName string
}

// SessionStore resolves login tokens stored as Redis hashes.
type SessionStore struct {
	client redis.UniversalClient
	ttl    time.Duration
}

func NewSessionStore(client redis.UniversalClient) *SessionStore {
	return &SessionStore{client: client, ttl: defaultSessionTTL}
}

func TokenKey(token string) string {
	return kvstore.LoginTokenKey(strings.TrimSpace(token))
}

// Save stores the caller under token with a sliding TTL.
func (s *SessionStore) Save(ctx context.Context, token string, caller Caller) error {
	if strings.TrimSpace(token) == "" {
		return errors.New("session token is empty")
	}
	key := TokenKey(token)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, "id", caller.ID.String(), "nick_name", caller.NickName)
		pipe.Expire(ctx, key, s.ttl)
		return nil
	})
	return err
}

// Resolve loads the caller for token and refreshes the session TTL.
func (s *SessionStore) Resolve(ctx context.Context, token string) (Caller, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Caller{}, ErrSessionNotFound
	}
	key := TokenKey(token)
	values, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return Caller{}, err
	}
	if len(values) == 0 {
		return Caller{}, ErrSessionNotFound
	}
	id, err := snowflake.ParseString(values["id"])
	if err != nil || id == 0 {
		return Caller{}, ErrSessionNotFound
	}
	if err := s.client.Expire(ctx, key, s.ttl).Err(); err != nil {
		return Caller{}, err
	}
	return Caller{ID: id, NickName: values["nick_name"]}, nil
}
