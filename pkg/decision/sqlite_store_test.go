package decision

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteStoreRoundTrip(t *testing.T) {
	store, err := OpenSQLiteStore(":memory:")
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	f := NewFactory(testIdentity(t)).WithClock(func() time.Time {
		return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	})
	e := f.Create(validParams(t))

	res, err := store.PersistDecisionEvent(ctx, e)
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.Equal(t, e.EventID, res.EventID)

	got, err := store.GetDecisionEvent(ctx, "exec-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, e.EventID, got.EventID)
	assert.Equal(t, e.InputsHash, got.InputsHash)
	require.Len(t, got.Signals, 1)
	assert.Equal(t, "credential", got.Signals[0].Category)
}

func TestSQLiteStoreMissIsNotAnError(t *testing.T) {
	store, err := OpenSQLiteStore(":memory:")
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	got, err := store.GetDecisionEvent(context.Background(), "exec-unknown")
	require.NoError(t, err)
	assert.Nil(t, got)
}
