package service

import (
	"Go_Drop/internal/repo"
	"Go_Drop/internal/storage"
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fakeBlobStore struct {
	mu      sync.Mutex
	deletes map[string]int
	fail    error
}

func newFakeBlobStore() *fakeBlobStore {
	return &fakeBlobStore{deletes: make(map[string]int)}
}

func (f *fakeBlobStore) GetObject(_ context.Context, key string) (io.ReadCloser, storage.ObjectInfo, error) {
	return io.NopCloser(bytes.NewReader([]byte("payload"))), storage.ObjectInfo{Key: key, Size: 7}, nil
}

func (f *fakeBlobStore) RemoveObject(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return f.fail
	}
	f.deletes[key]++
	return nil
}

func (f *fakeBlobStore) PublicURL(_ context.Context, key string) (string, error) {
	return "https://blobs.example.com/" + key, nil
}

func (f *fakeBlobStore) setFail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail = err
}

func (f *fakeBlobStore) deleteCount(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.deletes[key]
}

type scheduledRetry struct {
	fileID  string
	attempt int
}

type fakeScheduler struct {
	mu    sync.Mutex
	calls []scheduledRetry
}

func (f *fakeScheduler) ScheduleRetry(_ context.Context, fileID string, attempt int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, scheduledRetry{fileID: fileID, attempt: attempt})
	return nil
}

var errStorageDown = errors.New("storage unavailable")

type testEnv struct {
	store       *repo.GormGrantStore
	blobs       *fakeBlobStore
	scheduler   *fakeScheduler
	shares      *ShareService
	ledger      *Ledger
	coordinator *Coordinator
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := repo.OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return newTestEnvForDB(t, db)
}

func newTestEnvForDB(t *testing.T, db *gorm.DB) *testEnv {
	t.Helper()
	hasher, err := NewTokenHasher("test-pepper")
	if err != nil {
		t.Fatalf("hasher: %v", err)
	}
	logger := zap.NewNop()
	store := repo.NewGrantStore(db)
	blobs := newFakeBlobStore()
	scheduler := &fakeScheduler{}
	return &testEnv{
		store:     store,
		blobs:     blobs,
		scheduler: scheduler,
		shares:    NewShareService(store, hasher, 50, logger),
		ledger:    NewLedger(store, hasher, logger),
		coordinator: NewCoordinator(store, blobs, scheduler, RetireOptions{
			DeleteTimeout: time.Second,
			Lease:         time.Minute,
			RetryDelays:   []time.Duration{time.Second, 5 * time.Second},
		}, logger),
	}
}

func (e *testEnv) createShare(t *testing.T, recipients ...string) *Share {
	t.Helper()
	share, err := e.shares.CreateShare(context.Background(), 7, "uploads/7/report.pdf", recipients)
	if err != nil {
		t.Fatalf("create share: %v", err)
	}
	return share
}

func (e *testEnv) resolve(t *testing.T, token string) AccessResult {
	t.Helper()
	res, err := e.ledger.ResolveAccess(context.Background(), token, AccessMeta{IP: "203.0.113.9", UserAgent: "test"})
	if err != nil {
		t.Fatalf("resolve access: %v", err)
	}
	return res
}
