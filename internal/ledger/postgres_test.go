package ledger

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newMockPostgres(t *testing.T) (*Postgres, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger: gormlogger.Discard,
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		_ = sqlDB.Close()
	})
	return NewPostgres(db), mock
}

func expectLock(mock sqlmock.Sqlmock, k Key) {
	mock.ExpectExec("pg_advisory_xact_lock").
		WithArgs(advisoryLockID(k)).
		WillReturnResult(sqlmock.NewResult(0, 0))
}

func TestPostgresLockTakesKeysInOrder(t *testing.T) {
	store, mock := newMockPostgres(t)

	mock.ExpectBegin()
	expectLock(mock, AuctionKey(3))
	expectLock(mock, UserKey(2))
	expectLock(mock, UserKey(9))
	mock.ExpectCommit()

	err := store.Update(context.Background(), func(tx Tx) error {
		if err := tx.Lock(UserKey(9), AuctionKey(3), UserKey(2), UserKey(9)); err != nil {
			return err
		}
		// Held keys are not locked again.
		return tx.Lock(UserKey(9), UserKey(2))
	})
	require.NoError(t, err)
}

func TestPostgresLockRejectsOutOfOrderKey(t *testing.T) {
	store, mock := newMockPostgres(t)

	mock.ExpectBegin()
	expectLock(mock, UserKey(5))
	mock.ExpectRollback()

	err := store.Update(context.Background(), func(tx Tx) error {
		if err := tx.Lock(UserKey(5)); err != nil {
			return err
		}
		return tx.Lock(AuctionKey(1))
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lock auction:1 requested after user:5")
}

func TestPostgresUpdateRollsBackOnError(t *testing.T) {
	store, mock := newMockPostgres(t)
	boom := errors.New("boom")

	mock.ExpectBegin()
	expectLock(mock, UserKey(1))
	mock.ExpectRollback()

	err := store.Update(context.Background(), func(tx Tx) error {
		if err := tx.Lock(UserKey(1)); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)
}

func TestPostgresLockFailureAbortsTransaction(t *testing.T) {
	store, mock := newMockPostgres(t)
	dbErr := errors.New("connection reset")

	mock.ExpectBegin()
	mock.ExpectExec("pg_advisory_xact_lock").WillReturnError(dbErr)
	mock.ExpectRollback()

	err := store.Update(context.Background(), func(tx Tx) error {
		return tx.Lock(UserKey(1))
	})
	assert.ErrorIs(t, err, dbErr)
}

func TestPostgresViewWriteRollsBack(t *testing.T) {
	store, mock := newMockPostgres(t)

	mock.ExpectBegin()
	mock.ExpectRollback()

	err := store.View(context.Background(), func(tx Tx) error {
		return tx.SaveAuction(nil)
	})
	assert.ErrorIs(t, err, ErrReadOnly)
}

func TestPostgresViewRejectsEveryWrite(t *testing.T) {
	store, mock := newMockPostgres(t)

	mock.ExpectBegin()
	mock.ExpectCommit()

	err := store.View(context.Background(), func(tx Tx) error {
		writes := []error{
			tx.CreateUser(nil),
			tx.SaveUser(nil),
			tx.CreateFarm(nil),
			tx.SaveFarm(nil),
			tx.CreateNft(nil),
			tx.CreateAuction(nil),
			tx.SaveAuction(nil),
			tx.CreateReferralTransaction(nil),
		}
		for _, err := range writes {
			assert.ErrorIs(t, err, ErrReadOnly)
		}
		return nil
	})
	require.NoError(t, err)
}

func TestPostgresMissingRecordsMapToErrNotFound(t *testing.T) {
	store, mock := newMockPostgres(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "users"`).WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery(`SELECT \* FROM "auctions"`).WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectCommit()

	err := store.View(context.Background(), func(tx Tx) error {
		_, err := tx.GetUser(42)
		assert.ErrorIs(t, err, ErrNotFound)

		_, err = tx.GetAuction(7)
		assert.ErrorIs(t, err, ErrNotFound)
		return nil
	})
	require.NoError(t, err)
}

func TestPostgresGetUserScansRow(t *testing.T) {
	store, mock := newMockPostgres(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "users"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "star_balance", "referral_count"}).AddRow(42, 300, 2))
	mock.ExpectCommit()

	err := store.View(context.Background(), func(tx Tx) error {
		u, err := tx.GetUser(42)
		require.NoError(t, err)
		assert.Equal(t, int64(42), u.ID)
		assert.Equal(t, int64(300), u.StarBalance)
		assert.Equal(t, int64(2), u.ReferralCount)
		return nil
	})
	require.NoError(t, err)
}
