package repo

import (
	"Go_Drop/model"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

func newTestStore(t *testing.T) *GormGrantStore {
	t.Helper()
	db, err := OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return NewGrantStore(db)
}

func createTestFile(t *testing.T, s *GormGrantStore, recipients ...string) *model.SharedFile {
	t.Helper()
	file := &model.SharedFile{
		ID:         uuid.NewString(),
		StorageKey: "uploads/report.pdf",
		OwnerID:    1,
		State:      model.FileStateActive,
		GrantCount: len(recipients),
	}
	grants := make([]model.Grant, 0, len(recipients))
	for i, r := range recipients {
		grants = append(grants, model.Grant{
			RecipientEmail: r,
			TokenHash:      file.ID[:8] + string(rune('a'+i)),
		})
	}
	if err := s.CreateFileWithGrants(context.Background(), file, grants); err != nil {
		t.Fatalf("create file: %v", err)
	}
	return file
}

func TestCreateFileWithGrants(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	file := createTestFile(t, s, "a@example.com", "b@example.com")

	got, err := s.GetFile(ctx, file.ID)
	if err != nil {
		t.Fatalf("get file: %v", err)
	}
	if got.GrantCount != 2 || got.AccessedCount != 0 || got.State != model.FileStateActive {
		t.Fatalf("unexpected file: %+v", got)
	}
	grants, err := s.ListGrants(ctx, file.ID)
	if err != nil {
		t.Fatalf("list grants: %v", err)
	}
	if len(grants) != 2 {
		t.Fatalf("expected 2 grants, got %d", len(grants))
	}
	for _, g := range grants {
		if g.FileID != file.ID {
			t.Fatalf("grant bound to wrong file: %s", g.FileID)
		}
	}
}

func TestCreateFileWithDuplicateRecipientRollsBack(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	file := &model.SharedFile{
		ID:         uuid.NewString(),
		StorageKey: "k",
		OwnerID:    1,
		State:      model.FileStateActive,
		GrantCount: 2,
	}
	grants := []model.Grant{
		{RecipientEmail: "a@example.com", TokenHash: "h1"},
		{RecipientEmail: "a@example.com", TokenHash: "h2"},
	}
	if err := s.CreateFileWithGrants(ctx, file, grants); err == nil {
		t.Fatal("expected unique violation")
	}
	if _, err := s.GetFile(ctx, file.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("file must not exist after rollback, got %v", err)
	}
}

func TestGetFileNotFound(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.GetFile(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestLedgerTxAccessEventIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	file := createTestFile(t, s, "a@example.com")

	insert := func() bool {
		var inserted bool
		err := s.InLedgerTx(ctx, func(tx LedgerTx) error {
			var err error
			inserted, err = tx.InsertAccessEvent(&model.AccessEvent{FileID: file.ID, RecipientEmail: "a@example.com"})
			return err
		})
		if err != nil {
			t.Fatalf("insert access event: %v", err)
		}
		return inserted
	}
	if !insert() {
		t.Fatal("first insert should create the event")
	}
	if insert() {
		t.Fatal("second insert should be a no-op")
	}
	events, err := s.ListAccessEvents(ctx, file.ID)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
}

func TestIncrementAccessedStopsAtGrantCount(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	file := createTestFile(t, s, "a@example.com")

	for i, want := range []bool{true, false} {
		var ok bool
		err := s.InLedgerTx(ctx, func(tx LedgerTx) error {
			var err error
			ok, err = tx.IncrementAccessed(file.ID)
			return err
		})
		if err != nil {
			t.Fatalf("increment %d: %v", i, err)
		}
		if ok != want {
			t.Fatalf("increment %d: expected %v, got %v", i, want, ok)
		}
	}
	got, _ := s.GetFile(ctx, file.ID)
	if got.AccessedCount != 1 {
		t.Fatalf("expected accessed_count 1, got %d", got.AccessedCount)
	}
}

func TestLedgerTxRollsBackOnError(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	file := createTestFile(t, s, "a@example.com")
	boom := errors.New("boom")

	err := s.InLedgerTx(ctx, func(tx LedgerTx) error {
		if _, err := tx.InsertAccessEvent(&model.AccessEvent{FileID: file.ID, RecipientEmail: "a@example.com"}); err != nil {
			return err
		}
		if _, err := tx.IncrementAccessed(file.ID); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	got, _ := s.GetFile(ctx, file.ID)
	if got.AccessedCount != 0 {
		t.Fatalf("increment should be rolled back, got %d", got.AccessedCount)
	}
	events, _ := s.ListAccessEvents(ctx, file.ID)
	if len(events) != 0 {
		t.Fatalf("event should be rolled back, got %d", len(events))
	}
}

func completeFile(t *testing.T, s *GormGrantStore, fileID string) {
	t.Helper()
	err := s.InLedgerTx(context.Background(), func(tx LedgerTx) error {
		_, err := tx.IncrementAccessed(fileID)
		return err
	})
	if err != nil {
		t.Fatalf("complete file: %v", err)
	}
}

func TestRetirementStateMachine(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	file := createTestFile(t, s, "a@example.com")

	won, err := s.BeginRetirement(ctx, file.ID, time.Minute)
	if err != nil {
		t.Fatalf("begin retirement: %v", err)
	}
	if won {
		t.Fatal("incomplete file must not enter retiring")
	}

	completeFile(t, s, file.ID)

	won, err = s.BeginRetirement(ctx, file.ID, time.Minute)
	if err != nil || !won {
		t.Fatalf("expected to win retirement, won=%v err=%v", won, err)
	}
	won, err = s.BeginRetirement(ctx, file.ID, time.Minute)
	if err != nil || won {
		t.Fatalf("second caller must lose, won=%v err=%v", won, err)
	}

	claimed, err := s.ClaimRetry(ctx, file.ID, time.Minute)
	if err != nil || claimed {
		t.Fatalf("lease is still held, claimed=%v err=%v", claimed, err)
	}

	if err := s.MarkDeleteFailed(ctx, file.ID, "storage down", time.Now().Add(-time.Second)); err != nil {
		t.Fatalf("mark delete failed: %v", err)
	}
	got, _ := s.GetFile(ctx, file.ID)
	if got.State != model.FileStateRetiring || got.DeleteAttempts != 1 || got.LastDeleteError != "storage down" {
		t.Fatalf("unexpected file after failure: %+v", got)
	}

	due, err := s.ListRetiring(ctx, time.Now(), 10)
	if err != nil {
		t.Fatalf("list retiring: %v", err)
	}
	if len(due) != 1 || due[0].ID != file.ID {
		t.Fatalf("expected file to be due, got %+v", due)
	}

	claimed, err = s.ClaimRetry(ctx, file.ID, time.Minute)
	if err != nil || !claimed {
		t.Fatalf("released lease should be claimable, claimed=%v err=%v", claimed, err)
	}

	retired, err := s.MarkRetired(ctx, file.ID)
	if err != nil || !retired {
		t.Fatalf("mark retired: retired=%v err=%v", retired, err)
	}
	retired, err = s.MarkRetired(ctx, file.ID)
	if err != nil || retired {
		t.Fatalf("second mark retired must be a no-op, retired=%v err=%v", retired, err)
	}
	got, _ = s.GetFile(ctx, file.ID)
	if got.State != model.FileStateRetired || got.RetiredAt == nil {
		t.Fatalf("unexpected retired file: %+v", got)
	}
}

func TestListRetiringSkipsFutureRetries(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	file := createTestFile(t, s, "a@example.com")
	completeFile(t, s, file.ID)
	if _, err := s.BeginRetirement(ctx, file.ID, time.Minute); err != nil {
		t.Fatalf("begin retirement: %v", err)
	}
	if err := s.MarkDeleteFailed(ctx, file.ID, "timeout", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("mark delete failed: %v", err)
	}
	due, err := s.ListRetiring(ctx, time.Now(), 10)
	if err != nil {
		t.Fatalf("list retiring: %v", err)
	}
	if len(due) != 0 {
		t.Fatalf("retry is not due yet, got %d files", len(due))
	}
}
