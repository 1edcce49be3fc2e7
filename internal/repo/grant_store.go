package repo

import (
	"Go_Drop/model"
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrNotFound is returned when a file or grant does not exist.
var ErrNotFound = errors.New("record not found")

// GrantStore is the durable record of shared files, their grants and the
// access events recorded against them.
type GrantStore interface {
	CreateFileWithGrants(ctx context.Context, file *model.SharedFile, grants []model.Grant) error
	GetFile(ctx context.Context, fileID string) (*model.SharedFile, error)
	ListGrants(ctx context.Context, fileID string) ([]model.Grant, error)
	ListAccessEvents(ctx context.Context, fileID string) ([]model.AccessEvent, error)

	// InLedgerTx runs fn in one transaction bound to ctx. Any error returned
	// by fn rolls the transaction back.
	InLedgerTx(ctx context.Context, fn func(tx LedgerTx) error) error

	// BeginRetirement moves a complete active file to retiring and takes the
	// lease. It reports false when another caller already did.
	BeginRetirement(ctx context.Context, fileID string, lease time.Duration) (bool, error)
	// DeferRetirement moves a complete active file to retiring without a
	// lease, leaving the delete to the sweeper once retryAt has passed.
	DeferRetirement(ctx context.Context, fileID string, retryAt time.Time) (bool, error)
	// ClaimRetry takes the lease of a retiring file whose lease has expired.
	ClaimRetry(ctx context.Context, fileID string, lease time.Duration) (bool, error)
	MarkDeleteFailed(ctx context.Context, fileID string, cause string, nextRetryAt time.Time) error
	MarkRetired(ctx context.Context, fileID string) (bool, error)
	// ListRetiring returns retiring files whose next retry is due.
	ListRetiring(ctx context.Context, dueBefore time.Time, limit int) ([]model.SharedFile, error)
}

// LedgerTx is the set of operations the access ledger performs inside a
// single transaction.
type LedgerTx interface {
	GrantByTokenHash(tokenHash string) (*model.Grant, error)
	File(fileID string) (*model.SharedFile, error)
	// InsertAccessEvent reports false when the recipient already has an event.
	InsertAccessEvent(ev *model.AccessEvent) (bool, error)
	// IncrementAccessed bumps accessed_count of an active, incomplete file.
	// It reports false when the file was closed concurrently.
	IncrementAccessed(fileID string) (bool, error)
	AccessedCount(fileID string) (int, error)
}

type GormGrantStore struct {
	db  *gorm.DB
	now func() time.Time
}

// NewGrantStore returns a GrantStore backed by db.
func NewGrantStore(db *gorm.DB) *GormGrantStore {
	return &GormGrantStore{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// CreateFileWithGrants persists a file and all of its grants atomically.
func (s *GormGrantStore) CreateFileWithGrants(ctx context.Context, file *model.SharedFile, grants []model.Grant) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(file).Error; err != nil {
			return err
		}
		for i := range grants {
			grants[i].FileID = file.ID
		}
		if len(grants) == 0 {
			return nil
		}
		return tx.Create(&grants).Error
	})
}

// GetFile loads a file by id.
func (s *GormGrantStore) GetFile(ctx context.Context, fileID string) (*model.SharedFile, error) {
	var file model.SharedFile
	if err := s.db.WithContext(ctx).Where("id = ?", fileID).First(&file).Error; err != nil {
		return nil, notFound(err)
	}
	return &file, nil
}

// ListGrants returns the grants of a file ordered by creation.
func (s *GormGrantStore) ListGrants(ctx context.Context, fileID string) ([]model.Grant, error) {
	var grants []model.Grant
	err := s.db.WithContext(ctx).
		Where("file_id = ?", fileID).
		Order("id ASC").
		Find(&grants).Error
	return grants, err
}

// ListAccessEvents returns the access events of a file.
func (s *GormGrantStore) ListAccessEvents(ctx context.Context, fileID string) ([]model.AccessEvent, error) {
	var events []model.AccessEvent
	err := s.db.WithContext(ctx).
		Where("file_id = ?", fileID).
		Order("id ASC").
		Find(&events).Error
	return events, err
}

func (s *GormGrantStore) InLedgerTx(ctx context.Context, fn func(tx LedgerTx) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormLedgerTx{tx: tx})
	})
}

func (s *GormGrantStore) BeginRetirement(ctx context.Context, fileID string, lease time.Duration) (bool, error) {
	res := s.db.WithContext(ctx).Model(&model.SharedFile{}).
		Where("id = ? AND state = ? AND accessed_count = grant_count", fileID, model.FileStateActive).
		Updates(map[string]interface{}{
			"state":       model.FileStateRetiring,
			"lease_until": s.now().Add(lease),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (s *GormGrantStore) DeferRetirement(ctx context.Context, fileID string, retryAt time.Time) (bool, error) {
	res := s.db.WithContext(ctx).Model(&model.SharedFile{}).
		Where("id = ? AND state = ? AND accessed_count = grant_count", fileID, model.FileStateActive).
		Updates(map[string]interface{}{
			"state":         model.FileStateRetiring,
			"next_retry_at": retryAt.UTC(),
			"lease_until":   nil,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (s *GormGrantStore) ClaimRetry(ctx context.Context, fileID string, lease time.Duration) (bool, error) {
	now := s.now()
	res := s.db.WithContext(ctx).Model(&model.SharedFile{}).
		Where("id = ? AND state = ? AND (lease_until IS NULL OR lease_until < ?)", fileID, model.FileStateRetiring, now).
		Updates(map[string]interface{}{
			"lease_until": now.Add(lease),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// MarkDeleteFailed records a failed storage delete and releases the lease.
func (s *GormGrantStore) MarkDeleteFailed(ctx context.Context, fileID string, cause string, nextRetryAt time.Time) error {
	return s.db.WithContext(ctx).Model(&model.SharedFile{}).
		Where("id = ? AND state = ?", fileID, model.FileStateRetiring).
		Updates(map[string]interface{}{
			"delete_attempts":   gorm.Expr("delete_attempts + 1"),
			"last_delete_error": cause,
			"next_retry_at":     nextRetryAt.UTC(),
			"lease_until":       nil,
		}).Error
}

func (s *GormGrantStore) MarkRetired(ctx context.Context, fileID string) (bool, error) {
	res := s.db.WithContext(ctx).Model(&model.SharedFile{}).
		Where("id = ? AND state = ?", fileID, model.FileStateRetiring).
		Updates(map[string]interface{}{
			"state":         model.FileStateRetired,
			"retired_at":    s.now(),
			"lease_until":   nil,
			"next_retry_at": nil,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (s *GormGrantStore) ListRetiring(ctx context.Context, dueBefore time.Time, limit int) ([]model.SharedFile, error) {
	var files []model.SharedFile
	err := s.db.WithContext(ctx).
		Where("state = ? AND (next_retry_at IS NULL OR next_retry_at <= ?)", model.FileStateRetiring, dueBefore.UTC()).
		Order("updated_at ASC").
		Limit(limit).
		Find(&files).Error
	return files, err
}

type gormLedgerTx struct {
	tx *gorm.DB
}

func (t *gormLedgerTx) GrantByTokenHash(tokenHash string) (*model.Grant, error) {
	var grant model.Grant
	if err := t.tx.Where("token_hash = ?", tokenHash).First(&grant).Error; err != nil {
		return nil, notFound(err)
	}
	return &grant, nil
}

func (t *gormLedgerTx) File(fileID string) (*model.SharedFile, error) {
	var file model.SharedFile
	if err := t.tx.Where("id = ?", fileID).First(&file).Error; err != nil {
		return nil, notFound(err)
	}
	return &file, nil
}

func (t *gormLedgerTx) InsertAccessEvent(ev *model.AccessEvent) (bool, error) {
	res := t.tx.Clauses(clause.OnConflict{DoNothing: true}).Create(ev)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (t *gormLedgerTx) IncrementAccessed(fileID string) (bool, error) {
	res := t.tx.Model(&model.SharedFile{}).
		Where("id = ? AND state = ? AND accessed_count < grant_count", fileID, model.FileStateActive).
		UpdateColumn("accessed_count", gorm.Expr("accessed_count + ?", 1))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (t *gormLedgerTx) AccessedCount(fileID string) (int, error) {
	var count int
	err := t.tx.Model(&model.SharedFile{}).
		Where("id = ?", fileID).
		Select("accessed_count").
		Scan(&count).Error
	return count, err
}
