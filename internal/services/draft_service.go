package services

import (
	"context"
	"time"

	"github.com/listhub/editor-backend/internal/models"
)

// DraftService persists edit-session snapshots so a service restart does not
// lose in-progress edits. Snapshots hold field values and image metadata
// only; the submission request is never written anywhere.
type DraftService interface {
	Save(ctx context.Context, draft *models.DraftSnapshot) error
	Get(ctx context.Context, sessionID string) (*models.DraftSnapshot, error)
	Delete(ctx context.Context, sessionID string) error
	ListExpired(ctx context.Context, olderThan time.Time) ([]models.DraftSnapshot, error)
}
