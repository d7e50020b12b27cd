package store

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/argos/carry-engine/internal/model"
)

func TestCachedStore_MovementsAlwaysFresh(t *testing.T) {
	primary := NewMemoryStore()
	// Nothing listens here; movements must never touch Redis.
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1})
	defer rdb.Close()
	st := NewCachedStore(primary, rdb, time.Hour)
	ctx := context.Background()

	_, err := primary.AddMovement(model.Movement{FundID: "f1", Timestamp: day(0), Kind: model.Subscription, Units: d(10)})
	require.NoError(t, err)
	first, err := st.GetMovements(ctx, "")
	require.NoError(t, err)
	assert.Len(t, first, 1)

	_, err = primary.AddMovement(model.Movement{FundID: "f1", Timestamp: day(1), Kind: model.Subscription, Units: d(5)})
	require.NoError(t, err)
	second, err := st.GetMovements(ctx, "")
	require.NoError(t, err)
	assert.Len(t, second, 2, "new subscription visible without waiting for TTL")
}
