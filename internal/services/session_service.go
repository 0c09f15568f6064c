package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"mime/multipart"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/listhub/editor-backend/internal/models"
)

var (
	ErrSessionNotFound = errors.New("edit session not found")
	ErrSessionNotReady = errors.New("edit session is not ready")
	ErrSubmitInFlight  = errors.New("a submission is already in flight")
	ErrInvalidPrice    = errors.New("price is not a number")
)

// ListingAPI is the upstream collaborator: one call to read the listing,
// one to persist the update.
type ListingAPI interface {
	FetchListing(ctx context.Context, id string) (*models.Listing, error)
	UpdateListing(ctx context.Context, req *models.UpdateListingRequest) error
}

type editSession struct {
	mu         sync.Mutex
	id         string
	listingID  string
	state      models.SessionState
	listing    *models.Listing
	form       *FormState
	images     *ImageSet
	lastError  string
	submitting atomic.Bool
	closeTimer *time.Timer
	updatedAt  time.Time
}

// SessionService owns every open edit session. One session corresponds to
// one open editor dialog; sessions share nothing with each other.
type SessionService struct {
	mu       sync.RWMutex
	sessions map[string]*editSession

	api      ListingAPI
	uploader Uploader
	staging  *StagingService
	drafts   DraftService

	maxImages     int
	maxFileSizeMB int64
	successWait   time.Duration
	sessionTTL    time.Duration

	stopReaper chan struct{}
	reaperOnce sync.Once
}

type SessionConfig struct {
	MaxImages     int
	MaxFileSizeMB int64
	SuccessWait   time.Duration
	SessionTTL    time.Duration
}

func NewSessionService(api ListingAPI, uploader Uploader, staging *StagingService, drafts DraftService, cfg SessionConfig) *SessionService {
	if cfg.SuccessWait <= 0 {
		cfg.SuccessWait = 1200 * time.Millisecond
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 30 * time.Minute
	}

	return &SessionService{
		sessions:      make(map[string]*editSession),
		api:           api,
		uploader:      uploader,
		staging:       staging,
		drafts:        drafts,
		maxImages:     cfg.MaxImages,
		maxFileSizeMB: cfg.MaxFileSizeMB,
		successWait:   cfg.SuccessWait,
		sessionTTL:    cfg.SessionTTL,
		stopReaper:    make(chan struct{}),
	}
}

// Open creates a session for the listing and fetches its current record.
// A failed fetch still yields a session, in the error state, so the client
// can show the error panel and close it.
func (s *SessionService) Open(ctx context.Context, listingID string) (*models.EditSession, error) {
	sess := &editSession{
		id:        uuid.New().String(),
		listingID: listingID,
		state:     models.SessionLoading,
		form:      NewFormState(),
		images:    NewImageSet(s.maxImages, s.maxFileSizeMB),
		updatedAt: time.Now(),
	}

	listing, err := s.api.FetchListing(ctx, listingID)
	if err != nil {
		log.Printf("[OpenSession] fetch failed listing=%s err=%v", listingID, err)
		sess.state = models.SessionError
		sess.lastError = err.Error()
	} else {
		sess.listing = listing
		sess.form.Seed(listing)
		sess.images.Seed(listing)
		sess.state = models.SessionReady
	}

	s.mu.Lock()
	s.sessions[sess.id] = sess
	s.mu.Unlock()

	if sess.state == models.SessionReady {
		s.saveDraft(ctx, sess)
	}
	return sess.view(), nil
}

// Get returns the session state. After a restart the session map is empty,
// so a miss falls back to the draft store and rebuilds the session in place.
func (s *SessionService) Get(ctx context.Context, sessionID string) (*models.EditSession, error) {
	sess, err := s.find(sessionID)
	if err != nil {
		sess, err = s.resumeFromDraft(ctx, sessionID)
		if err != nil {
			return nil, err
		}
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.viewLocked(), nil
}

// Refresh refetches the listing on the caller's explicit request. The form
// seed guard decides whether field values are replaced: the same listing ID
// never clobbers in-progress edits.
func (s *SessionService) Refresh(ctx context.Context, sessionID string) (*models.EditSession, error) {
	sess, err := s.find(sessionID)
	if err != nil {
		return nil, err
	}
	if sess.submitting.Load() {
		return nil, ErrSubmitInFlight
	}

	listing, fetchErr := s.api.FetchListing(ctx, sess.listingID)

	sess.mu.Lock()
	defer sess.mu.Unlock()

	if fetchErr != nil {
		log.Printf("[RefreshSession] fetch failed listing=%s err=%v", sess.listingID, fetchErr)
		sess.lastError = fetchErr.Error()
		if sess.state != models.SessionReady {
			sess.state = models.SessionError
		}
		return sess.viewLocked(), nil
	}

	sess.listing = listing
	if sess.form.Seed(listing) {
		sess.images.Seed(listing)
	}
	sess.state = models.SessionReady
	sess.lastError = ""
	sess.updatedAt = time.Now()

	s.saveDraftLocked(ctx, sess)
	return sess.viewLocked(), nil
}

// UpdateField mutates one form field.
func (s *SessionService) UpdateField(ctx context.Context, sessionID, field, value string) (*models.EditSession, error) {
	sess, err := s.findReady(sessionID)
	if err != nil {
		return nil, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.state != models.SessionReady {
		return nil, ErrSessionNotReady
	}
	if err := sess.form.Update(field, value); err != nil {
		return nil, err
	}
	sess.updatedAt = time.Now()

	s.saveDraftLocked(ctx, sess)
	return sess.viewLocked(), nil
}

// AddImages stages the uploaded files and appends accepted ones as pending
// entries. Per-file rejections (too large, over the image limit) are
// reported without aborting the other files.
func (s *SessionService) AddImages(ctx context.Context, sessionID string, files []*multipart.FileHeader) (*models.EditSession, map[string]string, error) {
	sess, err := s.findReady(sessionID)
	if err != nil {
		return nil, nil, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.state != models.SessionReady {
		return nil, nil, ErrSessionNotReady
	}

	rejected := make(map[string]string)
	for _, header := range files {
		if header.Size > s.maxFileSizeMB*1024*1024 {
			rejected[header.Filename] = fmt.Sprintf("file exceeds %dMB limit", s.maxFileSizeMB)
			continue
		}

		file, err := header.Open()
		if err != nil {
			rejected[header.Filename] = "could not read file"
			continue
		}

		staged, err := s.staging.Save(header.Filename, file)
		file.Close()
		if err != nil {
			log.Printf("[AddImages] staging failed file=%s err=%v", header.Filename, err)
			rejected[header.Filename] = "could not stage file"
			continue
		}

		if _, err := sess.images.Add(staged.Path, staged.PreviewURL, staged.Filename, staged.SizeBytes); err != nil {
			s.staging.Remove(staged.Path)
			rejected[header.Filename] = err.Error()
		}
	}
	sess.updatedAt = time.Now()

	s.saveDraftLocked(ctx, sess)
	return sess.viewLocked(), rejected, nil
}

// RemoveImage deletes one entry. If it was main, the next entry becomes main
// automatically.
func (s *SessionService) RemoveImage(ctx context.Context, sessionID, entryID string) (*models.EditSession, error) {
	sess, err := s.findReady(sessionID)
	if err != nil {
		return nil, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.state != models.SessionReady {
		return nil, ErrSessionNotReady
	}

	removed, err := sess.images.Remove(entryID)
	if err != nil {
		return nil, err
	}
	if removed.Kind == models.ImageKindLocal && removed.StagingPath != "" {
		s.staging.Remove(removed.StagingPath)
	}
	sess.updatedAt = time.Now()

	s.saveDraftLocked(ctx, sess)
	return sess.viewLocked(), nil
}

// SetMainImage promotes one entry to position 0.
func (s *SessionService) SetMainImage(ctx context.Context, sessionID, entryID string) (*models.EditSession, error) {
	return s.mutateImages(ctx, sessionID, func(images *ImageSet) error {
		return images.SetMain(entryID)
	})
}

// ReorderImage moves one entry to a new position.
func (s *SessionService) ReorderImage(ctx context.Context, sessionID, entryID string, position int) (*models.EditSession, error) {
	return s.mutateImages(ctx, sessionID, func(images *ImageSet) error {
		return images.Reorder(entryID, position)
	})
}

// Submit runs the two-phase submit: upload every pending image, then push
// the assembled update upstream. A submission already in flight is rejected
// outright. Either phase failing returns the session to ready with all
// entered state intact; nothing half-done is ever sent upstream.
func (s *SessionService) Submit(ctx context.Context, sessionID string) (*models.EditSession, error) {
	sess, err := s.find(sessionID)
	if err != nil {
		return nil, err
	}

	if !sess.submitting.CompareAndSwap(false, true) {
		return nil, ErrSubmitInFlight
	}
	defer sess.submitting.Store(false)

	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.state != models.SessionReady {
		return nil, ErrSessionNotReady
	}
	sess.state = models.SessionSubmitting
	sess.lastError = ""

	req, err := s.buildRequest(sess)
	if err != nil {
		sess.state = models.SessionReady
		sess.lastError = err.Error()
		return nil, err
	}

	// Phase 1: uploads. Must fully succeed before the update request exists.
	if err := sess.images.UploadPending(ctx, s.uploader); err != nil {
		sess.state = models.SessionReady
		sess.lastError = err.Error()
		return nil, err
	}

	// Phase 2: assemble final image order and push upstream.
	urls := sess.images.URLs()
	req.Images = make([]models.RequestImage, 0, len(urls))
	for i, u := range urls {
		req.Images = append(req.Images, models.RequestImage{
			ImageURL: u,
			ID:       fmt.Sprintf("image-%d", i),
		})
	}

	if err := s.api.UpdateListing(ctx, req); err != nil {
		log.Printf("[SubmitSession] update rejected listing=%s err=%v", sess.listingID, err)
		sess.state = models.SessionReady
		sess.lastError = err.Error()
		return nil, err
	}

	sess.state = models.SessionSuccess
	sess.updatedAt = time.Now()
	s.staging.RemoveAll(sess.images.StagedPaths())
	if err := s.drafts.Delete(ctx, sess.id); err != nil {
		log.Printf("[SubmitSession] draft delete failed session=%s err=%v", sess.id, err)
	}

	// Transient success state: the dialog closes itself after the wait.
	sess.closeTimer = time.AfterFunc(s.successWait, func() {
		s.finalizeClose(sess.id)
	})

	log.Printf("[SubmitSession] listing=%s updated with %d images", sess.listingID, len(req.Images))
	return sess.viewLocked(), nil
}

// Cancel closes the session on explicit user action. Closing is refused
// while a submission is in flight.
func (s *SessionService) Cancel(ctx context.Context, sessionID string) error {
	sess, err := s.find(sessionID)
	if err != nil {
		return err
	}
	if sess.submitting.Load() {
		return ErrSubmitInFlight
	}

	sess.mu.Lock()
	if sess.closeTimer != nil {
		sess.closeTimer.Stop()
	}
	staged := sess.images.StagedPaths()
	sess.state = models.SessionClosed
	sess.mu.Unlock()

	s.staging.RemoveAll(staged)
	if err := s.drafts.Delete(ctx, sessionID); err != nil {
		log.Printf("[CancelSession] draft delete failed session=%s err=%v", sessionID, err)
	}

	s.mu.Lock()
	delete(s.sessions, sessionID)
	s.mu.Unlock()
	return nil
}

// StartReaper launches the idle-session sweep. Sessions untouched for the
// TTL are closed and their staged files released.
func (s *SessionService) StartReaper(interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-s.stopReaper:
				return
			case <-ticker.C:
				s.reapIdle()
			}
		}
	}()
}

// Stop halts the reaper and cancels pending close timers.
func (s *SessionService) Stop() {
	s.reaperOnce.Do(func() { close(s.stopReaper) })

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sess := range s.sessions {
		sess.mu.Lock()
		if sess.closeTimer != nil {
			sess.closeTimer.Stop()
		}
		sess.mu.Unlock()
	}
}

func (s *SessionService) reapIdle() {
	cutoff := time.Now().Add(-s.sessionTTL)

	s.mu.RLock()
	var idle []string
	for id, sess := range s.sessions {
		sess.mu.Lock()
		if sess.updatedAt.Before(cutoff) && !sess.submitting.Load() {
			idle = append(idle, id)
		}
		sess.mu.Unlock()
	}
	s.mu.RUnlock()

	for _, id := range idle {
		log.Printf("[SessionReaper] closing idle session %s", id)
		if err := s.Cancel(context.Background(), id); err != nil {
			log.Printf("[SessionReaper] close failed session=%s err=%v", id, err)
		}
	}
}

func (s *SessionService) mutateImages(ctx context.Context, sessionID string, mutate func(*ImageSet) error) (*models.EditSession, error) {
	sess, err := s.findReady(sessionID)
	if err != nil {
		return nil, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.state != models.SessionReady {
		return nil, ErrSessionNotReady
	}
	if err := mutate(sess.images); err != nil {
		return nil, err
	}
	sess.updatedAt = time.Now()

	s.saveDraftLocked(ctx, sess)
	return sess.viewLocked(), nil
}

// buildRequest assembles the write-only submission projection. Called with
// the session lock held, before the upload phase fills in final URLs.
func (s *SessionService) buildRequest(sess *editSession) (*models.UpdateListingRequest, error) {
	price, err := sess.form.Price()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPrice, err)
	}

	fields := sess.form.Fields()
	req := &models.UpdateListingRequest{
		ID:            sess.listingID,
		Title:         fields.Title,
		Description:   fields.Description,
		Price:         price,
		Location:      fields.Location,
		ContactNumber: fields.ContactNumber,
		IsPromoted:    false,
		Negotiable:    sess.form.Negotiable(),
	}

	if sess.listing != nil {
		req.Category = sess.listing.Category
		req.SubCategory = sess.listing.SubCategory
		if sess.listing.ChildCategory != "" {
			child := sess.listing.ChildCategory
			req.ChildCategory = &child
		}
		req.Attributes = sess.listing.Attributes
	}

	return req, nil
}

// finalizeClose runs when the success timer fires: the transient success
// state is over and the session goes away.
func (s *SessionService) finalizeClose(sessionID string) {
	s.mu.Lock()
	sess, exists := s.sessions[sessionID]
	if exists {
		delete(s.sessions, sessionID)
	}
	s.mu.Unlock()

	if !exists {
		return
	}

	sess.mu.Lock()
	sess.state = models.SessionClosed
	sess.mu.Unlock()
	log.Printf("[SessionClose] session %s closed after success", sessionID)
}

func (s *SessionService) find(sessionID string) (*editSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, exists := s.sessions[sessionID]
	if !exists {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// findReady rejects fast while a submission is in flight instead of queueing
// behind the session lock.
func (s *SessionService) findReady(sessionID string) (*editSession, error) {
	sess, err := s.find(sessionID)
	if err != nil {
		return nil, err
	}
	if sess.submitting.Load() {
		return nil, ErrSubmitInFlight
	}
	return sess, nil
}

// resumeFromDraft rebuilds a session lost to a restart from its persisted
// snapshot, refetching the listing for the submit-time category fields.
func (s *SessionService) resumeFromDraft(ctx context.Context, sessionID string) (*editSession, error) {
	draft, err := s.drafts.Get(ctx, sessionID)
	if err != nil {
		return nil, ErrSessionNotFound
	}

	sess := &editSession{
		id:        draft.SessionID,
		listingID: draft.ListingID,
		state:     models.SessionReady,
		form:      NewFormState(),
		images:    NewImageSet(s.maxImages, s.maxFileSizeMB),
		updatedAt: time.Now(),
	}
	sess.form.Restore(draft.ListingID, draft.Fields)
	sess.images.Restore(draft.Images)

	if listing, err := s.api.FetchListing(ctx, draft.ListingID); err == nil {
		sess.listing = listing
	} else {
		log.Printf("[ResumeSession] listing refetch failed listing=%s err=%v", draft.ListingID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.sessions[sessionID]; ok {
		// Lost the race to another resume; keep the first one.
		return existing, nil
	}
	s.sessions[sessionID] = sess
	log.Printf("[ResumeSession] session %s restored from draft", sessionID)
	return sess, nil
}

func (s *SessionService) saveDraft(ctx context.Context, sess *editSession) {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	s.saveDraftLocked(ctx, sess)
}

// saveDraftLocked persists the snapshot best-effort; editing continues even
// if the draft store is down.
func (s *SessionService) saveDraftLocked(ctx context.Context, sess *editSession) {
	draft := &models.DraftSnapshot{
		SessionID: sess.id,
		ListingID: sess.listingID,
		Fields:    sess.form.Fields(),
		Images:    sess.images.Entries(),
		UpdatedAt: sess.updatedAt,
	}
	if err := s.drafts.Save(ctx, draft); err != nil {
		log.Printf("[SaveDraft] session=%s err=%v", sess.id, err)
	}
}

func (sess *editSession) view() *models.EditSession {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.viewLocked()
}

func (sess *editSession) viewLocked() *models.EditSession {
	images := sess.images.Entries()
	for i := range images {
		// Staging paths are server-side and never leave the process.
		images[i].StagingPath = ""
	}

	return &models.EditSession{
		ID:        sess.id,
		ListingID: sess.listingID,
		State:     sess.state,
		Fields:    sess.form.Fields(),
		Images:    images,
		LastError: sess.lastError,
		UpdatedAt: sess.updatedAt,
	}
}
