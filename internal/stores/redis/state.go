package redis

import (
	"bytes"
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"subgraphx/internal/snapshots"
	"subgraphx/internal/store"
)

// WarmState is the gob blob written to Redis on an interval so a restart can
// resume from the last saved working set instead of replaying history.
type WarmState struct {
	Version int
	TakenAt time.Time

	Store  *store.State
	Roller *snapshots.State

	LastBlock    uint64
	LastLogIndex uint32
}

const warmStateVersion = 1

var ErrNoState = errors.New("no warm state saved")

// SaveState serializes and writes the blob under key, replacing any previous
// one.
func (c *Client) SaveState(ctx context.Context, key string, st *WarmState) error {
	st.Version = warmStateVersion
	st.TakenAt = time.Now().UTC()

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(st); err != nil {
		return fmt.Errorf("failed to encode warm state: %w", err)
	}

	if err := c.Set(ctx, key, buf.Bytes(), 0).Err(); err != nil {
		return fmt.Errorf("failed to save warm state: %w", err)
	}

	return nil
}

// LoadState reads and decodes the blob. ErrNoState when none was saved.
func (c *Client) LoadState(ctx context.Context, key string) (*WarmState, error) {
	data, err := c.Get(ctx, key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, ErrNoState
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read warm state: %w", err)
	}

	var st WarmState
	if err = gob.NewDecoder(bytes.NewReader(data)).Decode(&st); err != nil {
		return nil, fmt.Errorf("failed to decode warm state: %w", err)
	}

	if st.Version != warmStateVersion {
		return nil, fmt.Errorf("unsupported warm state version: %d", st.Version)
	}

	return &st, nil
}
