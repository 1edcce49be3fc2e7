package service

import (
	"Go_Drop/internal/metrics"
	"Go_Drop/internal/repo"
	"Go_Drop/model"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Share is a newly created file together with its grants. Grant.Token holds
// the plaintext token and is only available here.
type Share struct {
	File   *model.SharedFile
	Grants []model.Grant
}

// RecipientStatus is the per-recipient view of a share shown to its owner.
type RecipientStatus struct {
	Email      string
	Accessed   bool
	AccessedAt *time.Time
}

// ShareStatus is the lifecycle view of a share shown to its owner.
type ShareStatus struct {
	File       *model.SharedFile
	Recipients []RecipientStatus
}

type ShareService struct {
	store         repo.GrantStore
	hasher        *TokenHasher
	maxRecipients int
	logger        *zap.Logger
}

// NewShareService creates the share creation service.
func NewShareService(store repo.GrantStore, hasher *TokenHasher, maxRecipients int, logger *zap.Logger) *ShareService {
	return &ShareService{
		store:         store,
		hasher:        hasher,
		maxRecipients: maxRecipients,
		logger:        logger,
	}
}

// CreateShare records a file and mints one grant per recipient in a single
// transaction. Nothing is persisted when validation fails.
func (s *ShareService) CreateShare(ctx context.Context, ownerID uint64, storageKey string, recipientEmails []string) (*Share, error) {
	if ownerID == 0 {
		return nil, fmt.Errorf("%w: owner is required", ErrInvalidInput)
	}
	key, err := normalizeStorageKey(storageKey)
	if err != nil {
		return nil, err
	}
	recipients, err := normalizeRecipients(recipientEmails, s.maxRecipients)
	if err != nil {
		return nil, err
	}

	file := &model.SharedFile{
		ID:         uuid.NewString(),
		StorageKey: key,
		OwnerID:    ownerID,
		State:      model.FileStateActive,
		GrantCount: len(recipients),
	}
	grants := make([]model.Grant, 0, len(recipients))
	for _, email := range recipients {
		token, err := NewToken()
		if err != nil {
			return nil, fmt.Errorf("generate token: %w", err)
		}
		grants = append(grants, model.Grant{
			FileID:         file.ID,
			RecipientEmail: email,
			TokenHash:      s.hasher.Hash(token),
			Token:          token,
		})
	}

	if err := s.store.CreateFileWithGrants(ctx, file, grants); err != nil {
		return nil, fmt.Errorf("%w: create share: %w", ErrPersistence, err)
	}

	metrics.SharesCreated.Inc()
	metrics.GrantsMinted.Add(float64(len(grants)))
	s.logger.Info("share created",
		zap.String("file_id", file.ID),
		zap.Uint64("owner_id", ownerID),
		zap.Int("grant_count", file.GrantCount),
	)
	return &Share{File: file, Grants: grants}, nil
}

// GetShareStatus returns the lifecycle of a file owned by ownerID. Files of
// other owners are reported as not found.
func (s *ShareService) GetShareStatus(ctx context.Context, ownerID uint64, fileID string) (*ShareStatus, error) {
	file, err := s.store.GetFile(ctx, fileID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrFileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: load file: %w", ErrPersistence, err)
	}
	if file.OwnerID != ownerID {
		return nil, ErrFileNotFound
	}
	grants, err := s.store.ListGrants(ctx, fileID)
	if err != nil {
		return nil, fmt.Errorf("%w: list grants: %w", ErrPersistence, err)
	}
	events, err := s.store.ListAccessEvents(ctx, fileID)
	if err != nil {
		return nil, fmt.Errorf("%w: list access events: %w", ErrPersistence, err)
	}
	accessed := make(map[string]time.Time, len(events))
	for _, ev := range events {
		accessed[ev.RecipientEmail] = ev.CreatedAt
	}
	status := &ShareStatus{File: file, Recipients: make([]RecipientStatus, 0, len(grants))}
	for _, g := range grants {
		rs := RecipientStatus{Email: g.RecipientEmail}
		if at, ok := accessed[g.RecipientEmail]; ok {
			rs.Accessed = true
			rs.AccessedAt = &at
		}
		status.Recipients = append(status.Recipients, rs)
	}
	return status, nil
}
