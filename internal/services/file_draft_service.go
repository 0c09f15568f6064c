package services

import (
	"context"
	"sync"
	"time"

	"github.com/listhub/editor-backend/internal/models"
	"github.com/listhub/editor-backend/internal/storage"
)

// FileDraftService keeps draft snapshots in a JSON file on disk. Development
// fallback for running without Mongo.
type FileDraftService struct {
	mu    sync.Mutex
	store *storage.JSONStore
}

func NewFileDraftService(dataDir string) (*FileDraftService, error) {
	store, err := storage.NewJSONStore(dataDir, "drafts.json")
	if err != nil {
		return nil, err
	}
	return &FileDraftService{store: store}, nil
}

func (s *FileDraftService) Save(ctx context.Context, draft *models.DraftSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	drafts, err := s.load()
	if err != nil {
		return err
	}

	if draft.UpdatedAt.IsZero() {
		draft.UpdatedAt = time.Now()
	}
	drafts[draft.SessionID] = *draft
	return s.store.Save(drafts)
}

func (s *FileDraftService) Get(ctx context.Context, sessionID string) (*models.DraftSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	drafts, err := s.load()
	if err != nil {
		return nil, err
	}

	draft, exists := drafts[sessionID]
	if !exists {
		return nil, ErrDraftNotFound
	}
	return &draft, nil
}

func (s *FileDraftService) Delete(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	drafts, err := s.load()
	if err != nil {
		return err
	}

	if _, exists := drafts[sessionID]; !exists {
		return nil
	}
	delete(drafts, sessionID)
	return s.store.Save(drafts)
}

func (s *FileDraftService) ListExpired(ctx context.Context, olderThan time.Time) ([]models.DraftSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	drafts, err := s.load()
	if err != nil {
		return nil, err
	}

	var expired []models.DraftSnapshot
	for _, d := range drafts {
		if d.UpdatedAt.Before(olderThan) {
			expired = append(expired, d)
		}
	}
	return expired, nil
}

func (s *FileDraftService) load() (map[string]models.DraftSnapshot, error) {
	drafts := make(map[string]models.DraftSnapshot)
	if err := s.store.Load(&drafts); err != nil {
		return nil, err
	}
	return drafts, nil
}
