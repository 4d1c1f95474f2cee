package messages

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/nkrylov/cipherchat/internal/common"
	"github.com/nkrylov/cipherchat/internal/models"
)

var cols = []string{"id", "conversation_id", "sender_id", "encrypted_content",
	"initialization_vector", "sequence_number", "deleted", "edited", "edited_at",
	"delivered_at", "read_at", "created_at"}

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db), mock, db
}

func TestInsert_AssignsSequence(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now()
	rows := sqlmock.NewRows(cols).
		AddRow("m-1", "c-1", "u-1", "ct", "iv", int64(7), false, false, nil, nil, nil, now)

	mock.ExpectQuery(`(?s)^\s*INSERT\s+INTO\s+messages`).
		WithArgs("c-1", "u-1", "ct", "iv").
		WillReturnRows(rows)

	got, err := repo.Insert(context.Background(), &models.Message{
		ConversationID: "c-1", SenderID: "u-1",
		EncryptedContent: "ct", InitializationVector: "iv",
	})
	if err != nil {
		t.Fatalf("Insert error: %v", err)
	}
	if got.ID != "m-1" || got.SequenceNumber != 7 {
		t.Fatalf("unexpected message: %+v", got)
	}
}

func TestGet_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`(?s)^\s*SELECT\s+.*FROM\s+messages\s+WHERE\s+id`).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.Get(context.Background(), "missing")
	if !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("expected common.ErrorNotFound, got %v", err)
	}
}

func TestUpdateContent_SetsEditedFlag(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now()
	rows := sqlmock.NewRows(cols).
		AddRow("m-1", "c-1", "u-1", "ct2", "iv2", int64(7), false, true, &now, nil, nil, now)

	mock.ExpectQuery(`(?s)^\s*UPDATE\s+messages\s+SET\s+encrypted_content`).
		WithArgs("m-1", "ct2", "iv2").
		WillReturnRows(rows)

	got, err := repo.UpdateContent(context.Background(), "m-1", "ct2", "iv2")
	if err != nil {
		t.Fatalf("UpdateContent error: %v", err)
	}
	if !got.Edited || got.EncryptedContent != "ct2" {
		t.Fatalf("unexpected message: %+v", got)
	}
}

func TestMarkDeleted(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now()
	rows := sqlmock.NewRows(cols).
		AddRow("m-1", "c-1", "u-1", "ct", "iv", int64(7), true, false, nil, nil, nil, now)

	mock.ExpectQuery(`(?s)^\s*UPDATE\s+messages\s+SET\s+deleted`).
		WithArgs("m-1").
		WillReturnRows(rows)

	got, err := repo.MarkDeleted(context.Background(), "m-1")
	if err != nil {
		t.Fatalf("MarkDeleted error: %v", err)
	}
	if !got.Deleted {
		t.Fatalf("expected deleted flag, got %+v", got)
	}
}

func TestListRecent_NewestFirst(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now()
	rows := sqlmock.NewRows(cols).
		AddRow("m-2", "c-1", "u-1", "ct2", "iv2", int64(2), false, false, nil, nil, nil, now).
		AddRow("m-1", "c-1", "u-2", "ct1", "iv1", int64(1), false, false, nil, nil, nil, now.Add(-time.Minute))

	mock.ExpectQuery(`(?s)^\s*SELECT\s+.*FROM\s+messages\s+WHERE\s+conversation_id.*ORDER\s+BY\s+created_at\s+DESC`).
		WithArgs("c-1", 50).
		WillReturnRows(rows)

	got, err := repo.ListRecent(context.Background(), "c-1", 50)
	if err != nil {
		t.Fatalf("ListRecent error: %v", err)
	}
	if len(got) != 2 || got[0].ID != "m-2" || got[1].ID != "m-1" {
		t.Fatalf("unexpected messages: %+v", got)
	}
}
