// Package convlog persists chat turns as JSON documents so past
// conversation becomes a searchable recall corpus and a history source
// for the chat surface.
package convlog

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

// Turn is one logged chat message. Field names line up with the
// conversation collection's indexed attributes: kind tags the corpus,
// body carries the text, vector backs similarity recall.
type Turn struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Kind      string    `json:"kind"`
	Role      string    `json:"role"`
	Body      string    `json:"body"`
	Vector    []float32 `json:"vector,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// TurnKind is the corpus tag written on every logged turn.
const TurnKind = "conversation"

type store interface {
	JSONSet(ctx context.Context, key, path string, data []byte) error
	JSONGet(ctx context.Context, key string, paths ...string) ([]byte, error)
	Scan(ctx context.Context, pattern string) ([]string, error)
	Expire(ctx context.Context, key string, ttl time.Duration, nx bool) error
}

// Repo appends and lists conversation turns. Turn ids are ULIDs, so key
// order within a session is creation order.
type Repo struct {
	store  store
	prefix string
	ttl    time.Duration
	logger *zap.Logger

	now func() time.Time
}

// New creates a conversation log. ttl <= 0 keeps turns forever.
func New(store store, keyPrefix string, ttl time.Duration, logger *zap.Logger) *Repo {
	return &Repo{
		store:  store,
		prefix: keyPrefix,
		ttl:    ttl,
		logger: logger,
		now:    time.Now,
	}
}

// Append logs one turn and returns it with its assigned id.
func (r *Repo) Append(
	ctx context.Context, sessionID, role, body string, vector []float32,
) (*Turn, error) {
	now := r.now().UTC()
	turn := &Turn{
		ID:        ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String(),
		SessionID: sessionID,
		Kind:      TurnKind,
		Role:      role,
		Body:      body,
		Vector:    vector,
		CreatedAt: now,
	}

	data, err := json.Marshal(turn)
	if err != nil {
		return nil, fmt.Errorf("marshal turn: %w", err)
	}

	key := r.key(sessionID, turn.ID)
	if err := r.store.JSONSet(ctx, key, "$", data); err != nil {
		return nil, fmt.Errorf("store turn: %w", err)
	}

	if r.ttl > 0 {
		if err := r.store.Expire(ctx, key, r.ttl, false); err != nil {
			// The turn is stored; a missing expiry only delays cleanup.
			r.logger.Warn("Failed to set turn expiry", zap.String("key", key), zap.Error(err))
		}
	}

	return turn, nil
}

// Recent returns the last n turns of a session, oldest first. Turns that
// fail to load are skipped with a warning so one bad document does not
// hide the rest of the history.
func (r *Repo) Recent(ctx context.Context, sessionID string, n int) ([]Turn, error) {
	if n <= 0 {
		return nil, nil
	}

	keys, err := r.store.Scan(ctx, r.key(sessionID, "*"))
	if err != nil {
		return nil, fmt.Errorf("scan session %s: %w", sessionID, err)
	}
	if len(keys) == 0 {
		return nil, nil
	}

	// ULID suffixes make lexicographic key order chronological.
	sort.Strings(keys)
	if len(keys) > n {
		keys = keys[len(keys)-n:]
	}

	turns := make([]Turn, 0, len(keys))
	for _, key := range keys {
		data, err := r.store.JSONGet(ctx, key)
		if err != nil {
			r.logger.Warn("Failed to load turn", zap.String("key", key), zap.Error(err))
			continue
		}
		var turn Turn
		if err := json.Unmarshal(data, &turn); err != nil {
			r.logger.Warn("Malformed turn document", zap.String("key", key), zap.Error(err))
			continue
		}
		turns = append(turns, turn)
	}
	return turns, nil
}

func (r *Repo) key(sessionID, id string) string {
	return r.prefix + "conversation:" + sessionID + ":" + id
}
