package store

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	gormDB, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      db,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	cleanup := func() {
		db.Close()
	}

	return gormDB, mock, cleanup
}

func messageRows(msgs ...*Message) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{"id", "sender_id", "receiver_id", "content", "read", "edited_at", "created_at"})
	for _, m := range msgs {
		rows.AddRow(m.ID, m.SenderID, m.ReceiverID, m.Content, m.Read, m.EditedAt, m.CreatedAt)
	}
	return rows
}

func TestMessageRepository_Insert(t *testing.T) {
	tests := []struct {
		name        string
		message     *Message
		mockSetup   func(sqlmock.Sqlmock)
		expectError bool
	}{
		{
			name: "successful insert assigns id and timestamp",
			message: &Message{
				SenderID:   "alice",
				ReceiverID: "bob",
				Content:    "hello",
			},
			mockSetup: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectExec(regexp.QuoteMeta("INSERT INTO `messages`")).
					WillReturnResult(sqlmock.NewResult(1, 1))
				mock.ExpectCommit()
			},
			expectError: false,
		},
		{
			name: "database error",
			message: &Message{
				SenderID:   "alice",
				ReceiverID: "bob",
				Content:    "hello",
			},
			mockSetup: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectExec(regexp.QuoteMeta("INSERT INTO `messages`")).
					WillReturnError(assert.AnError)
				mock.ExpectRollback()
			},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, cleanup := setupTestDB(t)
			defer cleanup()

			tt.mockSetup(mock)

			repo := NewMessageRepository(db)
			stored, err := repo.Insert(context.Background(), tt.message)

			if tt.expectError {
				assert.Error(t, err)
			} else {
				require.NoError(t, err)
				assert.NotEmpty(t, stored.ID)
				assert.False(t, stored.CreatedAt.IsZero())
			}

			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestMessageRepository_HistoryFor(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	now := time.Now().UTC()
	newer := &Message{ID: "m2", SenderID: "bob", ReceiverID: "alice", Content: "two", CreatedAt: now}
	older := &Message{ID: "m1", SenderID: "alice", ReceiverID: "bob", Content: "one", CreatedAt: now.Add(-time.Minute)}

	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM `messages` WHERE sender_id = ? OR receiver_id = ?")).
		WithArgs("alice", "alice").
		WillReturnRows(messageRows(newer, older))

	repo := NewMessageRepository(db)
	msgs, err := repo.HistoryFor(context.Background(), "alice")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "m2", msgs[0].ID)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMessageRepository_Between(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM `messages` WHERE (sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)")).
		WithArgs("alice", "bob", "bob", "alice").
		WillReturnRows(messageRows())

	repo := NewMessageRepository(db)
	msgs, err := repo.Between(context.Background(), "alice", "bob")
	require.NoError(t, err)
	assert.Empty(t, msgs)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMessageRepository_UnreadFor(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	unread := &Message{ID: "m1", SenderID: "bob", ReceiverID: "alice", Content: "hi", CreatedAt: time.Now().UTC()}

	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM `messages` WHERE receiver_id = ? AND `read` = ?")).
		WithArgs("alice", false).
		WillReturnRows(messageRows(unread))

	repo := NewMessageRepository(db)
	msgs, err := repo.UnreadFor(context.Background(), "alice")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.False(t, msgs[0].Read)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMessageRepository_MarkRead(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE `messages` SET `read`=?")).
		WithArgs(true, "m1", "m2", "alice").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	repo := NewMessageRepository(db)
	require.NoError(t, repo.MarkRead(context.Background(), []string{"m1", "m2"}, "alice"))
	assert.NoError(t, mock.ExpectationsWereMet())

	// Empty batch never reaches the database.
	require.NoError(t, repo.MarkRead(context.Background(), nil, "alice"))
}

func TestMessageRepository_UpdateContent(t *testing.T) {
	tests := []struct {
		name         string
		rowsAffected int64
		expectError  bool
	}{
		{"existing row", 1, false},
		{"missing row", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, cleanup := setupTestDB(t)
			defer cleanup()

			mock.ExpectBegin()
			mock.ExpectExec(regexp.QuoteMeta("UPDATE `messages` SET")).
				WillReturnResult(sqlmock.NewResult(0, tt.rowsAffected))
			mock.ExpectCommit()

			repo := NewMessageRepository(db)
			err := repo.UpdateContent(context.Background(), "m1", "edited", time.Now().UTC())
			if tt.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestMessageRepository_ByID(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM `messages` WHERE id = ?")).
		WithArgs("missing", 1).
		WillReturnRows(messageRows())

	repo := NewMessageRepository(db)
	_, err := repo.ByID(context.Background(), "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "message not found")

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMessageRepository_Delete(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM `messages` WHERE id = ? AND (sender_id = ? OR receiver_id = ?)")).
		WithArgs("m1", "alice", "alice").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	repo := NewMessageRepository(db)
	// Zero rows affected is still success.
	require.NoError(t, repo.Delete(context.Background(), "m1", "alice"))
	assert.NoError(t, mock.ExpectationsWereMet())
}
