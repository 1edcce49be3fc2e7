package service

import (
	"Go_Drop/internal/metrics"
	"Go_Drop/internal/repo"
	"Go_Drop/model"
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

type AccessStatus int

const (
	AccessNotFound AccessStatus = iota
	AccessGranted
	AccessAlreadyComplete
)

func (s AccessStatus) String() string {
	switch s {
	case AccessGranted:
		return "granted"
	case AccessAlreadyComplete:
		return "already_complete"
	default:
		return "not_found"
	}
}

// AccessResult is the outcome of resolving a token. StorageKey and
// IsNowComplete are only meaningful when Status is AccessGranted.
type AccessResult struct {
	Status        AccessStatus
	FileID        string
	StorageKey    string
	IsNowComplete bool
}

// AccessMeta carries request details recorded with the first access.
type AccessMeta struct {
	IP        string
	UserAgent string
}

// errClosedConcurrently aborts the ledger transaction when the file was
// completed or retired between the read and the counter update.
var errClosedConcurrently = errors.New("file closed concurrently")

// Ledger counts distinct recipient accesses per file.
type Ledger struct {
	store  repo.GrantStore
	hasher *TokenHasher
	logger *zap.Logger
}

// NewLedger creates an access ledger.
func NewLedger(store repo.GrantStore, hasher *TokenHasher, logger *zap.Logger) *Ledger {
	return &Ledger{store: store, hasher: hasher, logger: logger}
}

// ResolveAccess validates token and records the recipient's first access.
// Replays by a recipient who already accessed an incomplete file are granted
// again without being counted. Once every grant is consumed all tokens of the
// file, including previously used ones, resolve to AccessAlreadyComplete.
func (l *Ledger) ResolveAccess(ctx context.Context, token string, meta AccessMeta) (AccessResult, error) {
	if token == "" {
		l.observe(AccessNotFound)
		return AccessResult{Status: AccessNotFound}, nil
	}
	tokenHash := l.hasher.Hash(token)

	var result AccessResult
	err := l.store.InLedgerTx(ctx, func(tx repo.LedgerTx) error {
		grant, err := tx.GrantByTokenHash(tokenHash)
		if errors.Is(err, repo.ErrNotFound) {
			result = AccessResult{Status: AccessNotFound}
			return nil
		}
		if err != nil {
			return err
		}

		file, err := tx.File(grant.FileID)
		if errors.Is(err, repo.ErrNotFound) {
			result = AccessResult{Status: AccessNotFound}
			return nil
		}
		if err != nil {
			return err
		}
		result.FileID = file.ID
		if file.State != model.FileStateActive || file.IsComplete() {
			result.Status = AccessAlreadyComplete
			return nil
		}

		inserted, err := tx.InsertAccessEvent(&model.AccessEvent{
			FileID:         file.ID,
			RecipientEmail: grant.RecipientEmail,
			IPAddress:      truncate(meta.IP, 64),
			UserAgent:      truncate(meta.UserAgent, 512),
		})
		if err != nil {
			return err
		}
		if !inserted {
			result.Status = AccessGranted
			result.StorageKey = file.StorageKey
			return nil
		}

		ok, err := tx.IncrementAccessed(file.ID)
		if err != nil {
			return err
		}
		if !ok {
			return errClosedConcurrently
		}
		accessed, err := tx.AccessedCount(file.ID)
		if err != nil {
			return err
		}
		result.Status = AccessGranted
		result.StorageKey = file.StorageKey
		result.IsNowComplete = accessed == file.GrantCount
		return nil
	})
	if errors.Is(err, errClosedConcurrently) {
		result = AccessResult{Status: AccessAlreadyComplete, FileID: result.FileID}
		err = nil
	}
	if err != nil {
		return AccessResult{}, fmt.Errorf("%w: resolve access: %w", ErrPersistence, err)
	}

	l.observe(result.Status)
	if result.IsNowComplete {
		l.logger.Info("all grants consumed", zap.String("file_id", result.FileID))
	}
	return result, nil
}

func (l *Ledger) observe(status AccessStatus) {
	metrics.AccessResults.WithLabelValues(status.String()).Inc()
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return strings.ToValidUTF8(s[:max], "")
}
