package store

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func notificationRows(ns ...*Notification) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{"id", "user_id", "type", "title", "body", "read", "created_at"})
	for _, n := range ns {
		rows.AddRow(n.ID, n.UserID, n.Type, n.Title, n.Body, n.Read, n.CreatedAt)
	}
	return rows
}

func TestNotificationRepository_Insert(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO `notifications`")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	repo := NewNotificationRepository(db)
	stored, err := repo.Insert(context.Background(), &Notification{
		UserID: "alice", Type: SystemType, Title: "welcome", Body: "hi",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, stored.ID)
	assert.False(t, stored.CreatedAt.IsZero())

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNotificationRepository_RecentFor(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	n := &Notification{ID: "n1", UserID: "alice", Type: SystemType, Title: "t", Body: "b", CreatedAt: time.Now().UTC()}

	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM `notifications` WHERE user_id = ?")).
		WithArgs("alice", 50).
		WillReturnRows(notificationRows(n))

	repo := NewNotificationRepository(db)
	got, err := repo.RecentFor(context.Background(), "alice", 50)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "n1", got[0].ID)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNotificationRepository_ByIDScopedToOwner(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	n := &Notification{ID: "n1", UserID: "alice", Type: SystemType, Title: "t", Body: "b", CreatedAt: time.Now().UTC()}

	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM `notifications` WHERE id = ? AND user_id = ?")).
		WithArgs("n1", "alice", 1).
		WillReturnRows(notificationRows(n))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM `notifications` WHERE id = ? AND user_id = ?")).
		WithArgs("n1", "bob", 1).
		WillReturnRows(notificationRows())

	repo := NewNotificationRepository(db)
	got, err := repo.ByID(context.Background(), "n1", "alice")
	require.NoError(t, err)
	assert.Equal(t, "n1", got.ID)

	_, err = repo.ByID(context.Background(), "n1", "bob")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "notification not found")

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNotificationRepository_MarkRead(t *testing.T) {
	tests := []struct {
		name         string
		rowsAffected int64
		expectError  bool
	}{
		{"own notification", 1, false},
		{"foreign or missing", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, cleanup := setupTestDB(t)
			defer cleanup()

			mock.ExpectBegin()
			mock.ExpectExec(regexp.QuoteMeta("UPDATE `notifications` SET `read`=?")).
				WithArgs(true, "n1", "alice").
				WillReturnResult(sqlmock.NewResult(0, tt.rowsAffected))
			mock.ExpectCommit()

			repo := NewNotificationRepository(db)
			err := repo.MarkRead(context.Background(), "n1", "alice")
			if tt.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestNotificationRepository_DeleteScopedToOwner(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM `notifications` WHERE id = ? AND user_id = ?")).
		WithArgs("n1", "bob").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	repo := NewNotificationRepository(db)
	err := repo.Delete(context.Background(), "n1", "bob")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "notification not found")

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNotificationRepository_DeleteAll(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM `notifications` WHERE user_id = ?")).
		WithArgs("alice").
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectCommit()

	repo := NewNotificationRepository(db)
	require.NoError(t, repo.DeleteAll(context.Background(), "alice"))
	assert.NoError(t, mock.ExpectationsWereMet())
}
