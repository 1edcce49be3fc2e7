//go:build integration

package service

import (
	"Go_Drop/config"
	"Go_Drop/internal/repo"
	"Go_Drop/model"
	"context"
	"fmt"
	"os"
	"sync"
	"testing"

	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
	"gorm.io/gorm"
)

func startMySQL(t *testing.T) *gorm.DB {
	t.Helper()
	pool, err := dockertest.NewPool("")
	if err != nil {
		t.Fatalf("could not connect to docker: %v", err)
	}
	tag := os.Getenv("GODROP_MYSQL_TEST_TAG")
	if tag == "" {
		tag = "8.0"
	}
	resource, err := pool.RunWithOptions(&dockertest.RunOptions{
		Repository: "mysql",
		Tag:        tag,
		Env: []string{
			"MYSQL_ROOT_PASSWORD=secret",
			"MYSQL_DATABASE=godrop_it",
		},
	}, func(hc *docker.HostConfig) {
		hc.AutoRemove = true
	})
	if err != nil {
		t.Fatalf("could not start mysql: %v", err)
	}
	t.Cleanup(func() { _ = pool.Purge(resource) })

	cfg := config.Default()
	cfg.DBHost = "localhost"
	cfg.DBPort = resource.GetPort("3306/tcp")
	cfg.DBUser = "root"
	cfg.DBPass = "secret"
	cfg.DBName = "godrop_it"

	var db *gorm.DB
	if err := pool.Retry(func() error {
		var err error
		db, err = repo.OpenMySQL(cfg)
		if err != nil {
			return err
		}
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.Ping()
	}); err != nil {
		t.Fatalf("mysql not ready: %v", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func TestConcurrentFinalAccessOnMySQL(t *testing.T) {
	env := newTestEnvForDB(t, startMySQL(t))
	ctx := context.Background()

	for round := 0; round < 20; round++ {
		share := env.createShare(t,
			fmt.Sprintf("a%d@example.com", round),
			fmt.Sprintf("b%d@example.com", round),
		)

		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			completes int
			errs      []error
		)
		start := make(chan struct{})
		for _, g := range share.Grants {
			wg.Add(1)
			go func(token string) {
				defer wg.Done()
				<-start
				res, err := env.ledger.ResolveAccess(ctx, token, AccessMeta{IP: "203.0.113.9"})
				if err == nil && res.IsNowComplete {
					_, err = env.coordinator.RetireIfComplete(ctx, res.FileID)
				}
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					errs = append(errs, err)
					return
				}
				if res.Status != AccessGranted {
					errs = append(errs, fmt.Errorf("unexpected status %s", res.Status))
				}
				if res.IsNowComplete {
					completes++
				}
			}(g.Token)
		}
		close(start)
		wg.Wait()

		if len(errs) > 0 {
			t.Fatalf("round %d: %v", round, errs)
		}
		if completes != 1 {
			t.Fatalf("round %d: expected exactly one completing access, got %d", round, completes)
		}
		if n := env.blobs.deleteCount(share.File.StorageKey); n != round+1 {
			// Every round shares the same storage key, so deletes accumulate.
			t.Fatalf("round %d: expected one delete per round, total=%d", round, n)
		}
		file, err := env.store.GetFile(ctx, share.File.ID)
		if err != nil {
			t.Fatalf("get file: %v", err)
		}
		if file.AccessedCount != 2 || file.State != model.FileStateRetired {
			t.Fatalf("round %d: accessed=%d state=%s", round, file.AccessedCount, file.State)
		}
	}
}
