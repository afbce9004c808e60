package decision

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresStorePersist(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewPostgresStore(db)
	f := NewFactory(testIdentity(t)).WithClock(func() time.Time {
		return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	})
	e := f.Create(validParams(t))

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO decision_events")).
		WithArgs(e.EventID, e.ExecutionRef, e.EventType, e.SourceAgent, sqlmock.AnyArg(), e.InputsHash, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	res, err := store.PersistDecisionEvent(context.Background(), e)
	require.NoError(t, err)
	assert.True(t, res.Success)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStorePersistFailureIsSoft(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewPostgresStore(db)
	f := NewFactory(testIdentity(t))
	e := f.Create(validParams(t))

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO decision_events")).
		WillReturnError(assert.AnError)

	res, err := store.PersistDecisionEvent(context.Background(), e)
	require.NoError(t, err, "write failure surfaces in the result, not as an error")
	assert.False(t, res.Success)
	assert.NotEmpty(t, res.Err)
}

func TestPostgresStoreGetMiss(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewPostgresStore(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT payload FROM decision_events")).
		WithArgs("exec-unknown").
		WillReturnRows(sqlmock.NewRows([]string{"payload"}))

	got, err := store.GetDecisionEvent(context.Background(), "exec-unknown")
	require.NoError(t, err)
	assert.Nil(t, got)
}
