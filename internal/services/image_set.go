package services

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/listhub/editor-backend/internal/models"
)

var (
	ErrImageNotFound = errors.New("image entry not found")
	ErrFileTooLarge  = errors.New("image file exceeds the size limit")
	ErrTooManyImages = errors.New("image limit reached")
	ErrUploadFailed  = errors.New("image upload failed")
)

// Uploader turns a staged local file into a hosted URL.
type Uploader interface {
	Upload(ctx context.Context, stagingPath, filename string) (string, error)
}

// ImageSet owns the ordered image entries of one edit session: existing
// remote images plus newly staged files, their upload status, and which
// entry is main (always position 0). Entry positions are a gap-free,
// duplicate-free, zero-based order at all times.
//
// ImageSet is not safe for concurrent use; the session service serializes
// access to it.
type ImageSet struct {
	maxImages     int
	maxFileSizeMB int64
	entries       []models.ImageEntry
}

func NewImageSet(maxImages int, maxFileSizeMB int64) *ImageSet {
	return &ImageSet{
		maxImages:     maxImages,
		maxFileSizeMB: maxFileSizeMB,
	}
}

// Seed replaces all entries with remote references to the listing's current
// images, in listing order.
func (s *ImageSet) Seed(listing *models.Listing) {
	entries := make([]models.ImageEntry, 0, len(listing.Images))
	for i, url := range listing.Images {
		if url == "" {
			continue
		}
		entries = append(entries, models.ImageEntry{
			ID:       uuid.New().String(),
			Kind:     models.ImageKindRemote,
			URL:      url,
			Position: i,
			Status:   models.ImageStatusUploaded,
		})
	}
	s.entries = entries
	s.renumber()
}

// Restore replaces all entries with a previously persisted snapshot.
func (s *ImageSet) Restore(entries []models.ImageEntry) {
	s.entries = append([]models.ImageEntry(nil), entries...)
	s.renumber()
}

// Add validates and appends one staged file as a pending entry at the end of
// the order. A rejected file leaves existing entries untouched.
func (s *ImageSet) Add(stagingPath, previewURL, filename string, sizeBytes int64) (*models.ImageEntry, error) {
	if sizeBytes > s.maxFileSizeMB*1024*1024 {
		return nil, fmt.Errorf("%w: %s is %d bytes (limit %dMB)", ErrFileTooLarge, filename, sizeBytes, s.maxFileSizeMB)
	}
	if len(s.entries) >= s.maxImages {
		return nil, fmt.Errorf("%w: at most %d images per listing", ErrTooManyImages, s.maxImages)
	}

	entry := models.ImageEntry{
		ID:          uuid.New().String(),
		Kind:        models.ImageKindLocal,
		PreviewURL:  previewURL,
		StagingPath: stagingPath,
		Filename:    filename,
		SizeBytes:   sizeBytes,
		Position:    len(s.entries),
		Status:      models.ImageStatusPending,
	}
	s.entries = append(s.entries, entry)
	return &entry, nil
}

// Remove deletes an entry and closes the position gap. Removing the main
// image silently promotes the next entry; no follow-up SetMain is needed.
func (s *ImageSet) Remove(entryID string) (*models.ImageEntry, error) {
	idx := s.indexOf(entryID)
	if idx < 0 {
		return nil, ErrImageNotFound
	}

	removed := s.entries[idx]
	s.entries = append(s.entries[:idx], s.entries[idx+1:]...)
	s.renumber()
	return &removed, nil
}

// SetMain moves the entry to position 0. Everything in front of its old slot
// shifts back by one; relative order of the rest is preserved.
func (s *ImageSet) SetMain(entryID string) error {
	return s.moveTo(entryID, 0)
}

// Reorder moves an entry to targetPos (clamped to the valid range). Entries
// between the old and new slot shift by one.
func (s *ImageSet) Reorder(entryID string, targetPos int) error {
	if targetPos < 0 {
		targetPos = 0
	}
	if targetPos > len(s.entries)-1 {
		targetPos = len(s.entries) - 1
	}
	return s.moveTo(entryID, targetPos)
}

// UploadPending uploads every pending local entry through the uploader, in
// position order. The phase is atomic: on any failure every entry of the
// batch is reset to failed (including ones that had already gone through)
// and no URLs are usable; the session never submits half-uploaded state.
func (s *ImageSet) UploadPending(ctx context.Context, uploader Uploader) error {
	var batch []int
	for i := range s.entries {
		if s.entries[i].Kind == models.ImageKindLocal && s.entries[i].Status != models.ImageStatusUploaded {
			batch = append(batch, i)
		}
	}
	if len(batch) == 0 {
		return nil
	}

	for _, i := range batch {
		s.entries[i].Status = models.ImageStatusUploading
	}

	for _, i := range batch {
		entry := &s.entries[i]
		url, err := uploader.Upload(ctx, entry.StagingPath, entry.Filename)
		if err != nil {
			log.Printf("[UploadPending] upload failed file=%s err=%v", entry.Filename, err)
			for _, j := range batch {
				s.entries[j].Status = models.ImageStatusFailed
				s.entries[j].URL = ""
			}
			return fmt.Errorf("%w: %s: %v", ErrUploadFailed, entry.Filename, err)
		}
		entry.URL = url
		entry.Status = models.ImageStatusUploaded
	}

	return nil
}

// URLs returns the entry URLs in position order. Only meaningful once every
// entry is uploaded.
func (s *ImageSet) URLs() []string {
	urls := make([]string, 0, len(s.entries))
	for _, e := range s.entries {
		urls = append(urls, e.URL)
	}
	return urls
}

// Entries returns a copy of the ordered entry list.
func (s *ImageSet) Entries() []models.ImageEntry {
	return append([]models.ImageEntry(nil), s.entries...)
}

// Len returns the number of entries.
func (s *ImageSet) Len() int {
	return len(s.entries)
}

// StagedPaths returns the staging paths of all local entries, for cleanup
// when a session is cancelled or reaped.
func (s *ImageSet) StagedPaths() []string {
	var paths []string
	for _, e := range s.entries {
		if e.Kind == models.ImageKindLocal && e.StagingPath != "" {
			paths = append(paths, e.StagingPath)
		}
	}
	return paths
}

func (s *ImageSet) moveTo(entryID string, targetPos int) error {
	idx := s.indexOf(entryID)
	if idx < 0 {
		return ErrImageNotFound
	}
	if idx == targetPos {
		return nil
	}

	entry := s.entries[idx]
	rest := append(s.entries[:idx:idx], s.entries[idx+1:]...)
	s.entries = append(rest[:targetPos:targetPos], append([]models.ImageEntry{entry}, rest[targetPos:]...)...)
	s.renumber()
	return nil
}

func (s *ImageSet) indexOf(entryID string) int {
	for i := range s.entries {
		if s.entries[i].ID == entryID {
			return i
		}
	}
	return -1
}

func (s *ImageSet) renumber() {
	for i := range s.entries {
		s.entries[i].Position = i
	}
}
