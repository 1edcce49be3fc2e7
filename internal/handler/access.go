package handler

import (
	"Go_Drop/internal/service"
	"Go_Drop/internal/storage"
	"Go_Drop/utils"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type AccessResolver interface {
	ResolveAccess(ctx context.Context, token string, meta service.AccessMeta) (service.AccessResult, error)
}

type Retirer interface {
	RetireIfComplete(ctx context.Context, fileID string) (service.RetirementOutcome, error)
	DeferRetirement(ctx context.Context, fileID string) (service.RetirementOutcome, error)
}

type AccessHandler struct {
	ledger  AccessResolver
	retirer Retirer
	blobs   storage.Store
	logger  *zap.Logger
}

func NewAccessHandler(ledger AccessResolver, retirer Retirer, blobs storage.Store, logger *zap.Logger) *AccessHandler {
	return &AccessHandler{ledger: ledger, retirer: retirer, blobs: blobs, logger: logger}
}

// Access resolves a recipient token. Ordinary grants redirect to the storage
// URL. The grant that completes the share streams the object through the
// server instead, because the object is deleted right after. When the
// object cannot be opened, that grant is redirected too and the delete is
// postponed by the coordinator's grace period.
func (h *AccessHandler) Access(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		utils.Fail(c, http.StatusBadRequest, "missing token")
		return
	}
	ctx := c.Request.Context()
	res, err := h.ledger.ResolveAccess(ctx, token, service.AccessMeta{
		IP:        c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	})
	if err != nil {
		h.logger.Error("resolve access failed", zap.Error(err))
		utils.Fail(c, http.StatusInternalServerError, "access failed")
		return
	}

	switch res.Status {
	case service.AccessNotFound:
		utils.Fail(c, http.StatusNotFound, "link not found")
		return
	case service.AccessAlreadyComplete:
		utils.Fail(c, http.StatusGone, "file is no longer available")
		return
	}

	if !res.IsNowComplete {
		url, err := h.blobs.PublicURL(ctx, res.StorageKey)
		if err != nil {
			h.logger.Error("build storage url failed", zap.String("file_id", res.FileID), zap.Error(err))
			utils.Fail(c, http.StatusInternalServerError, "access failed")
			return
		}
		c.Redirect(http.StatusFound, url)
		return
	}

	bg := context.WithoutCancel(ctx)
	if h.streamObject(c, res) {
		h.retire(bg, res.FileID)
		return
	}
	// The object could not be opened here. Hand out the storage URL and leave
	// the object in place for the grace period.
	h.deferRetire(bg, res.FileID)
	url, err := h.blobs.PublicURL(ctx, res.StorageKey)
	if err != nil {
		h.logger.Error("build storage url failed", zap.String("file_id", res.FileID), zap.Error(err))
		utils.Fail(c, http.StatusBadGateway, "file could not be read")
		return
	}
	c.Redirect(http.StatusFound, url)
}

// streamObject writes the object to the response. It reports false when the
// object could not be opened and nothing was written.
func (h *AccessHandler) streamObject(c *gin.Context, res service.AccessResult) bool {
	object, info, err := h.blobs.GetObject(c.Request.Context(), res.StorageKey)
	if err != nil {
		h.logger.Warn("open object failed", zap.String("file_id", res.FileID), zap.Error(err))
		return false
	}
	defer object.Close()

	contentType := info.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, utils.FilenameFromKey(res.StorageKey)))
	c.Header("Content-Type", contentType)
	if info.Size > 0 {
		c.Header("Content-Length", strconv.FormatInt(info.Size, 10))
	}
	c.Status(http.StatusOK)
	if _, err := io.Copy(c.Writer, object); err != nil {
		h.logger.Warn("stream object interrupted", zap.String("file_id", res.FileID), zap.Error(err))
	}
	return true
}

func (h *AccessHandler) retire(ctx context.Context, fileID string) {
	outcome, err := h.retirer.RetireIfComplete(ctx, fileID)
	if err != nil {
		h.logger.Warn("retire file failed", zap.String("file_id", fileID), zap.Stringer("outcome", outcome), zap.Error(err))
		return
	}
	h.logger.Info("retire file", zap.String("file_id", fileID), zap.Stringer("outcome", outcome))
}

func (h *AccessHandler) deferRetire(ctx context.Context, fileID string) {
	outcome, err := h.retirer.DeferRetirement(ctx, fileID)
	if err != nil {
		h.logger.Warn("defer retirement failed", zap.String("file_id", fileID), zap.Stringer("outcome", outcome), zap.Error(err))
		return
	}
	h.logger.Info("retire file later", zap.String("file_id", fileID), zap.Stringer("outcome", outcome))
}
