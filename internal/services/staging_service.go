package services

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
)

// StagedFile describes one selected file saved to the staging area while its
// session is open. The preview URL is served by the /staging/* file route.
type StagedFile struct {
	Path       string
	PreviewURL string
	Filename   string
	SizeBytes  int64
}

// StagingService holds newly selected image files on local disk until the
// submit phase uploads them (or the session is cancelled and they are
// discarded).
type StagingService struct {
	mu         sync.Mutex
	stagingDir string
}

func NewStagingService(stagingDir string) *StagingService {
	// Create staging directory if it doesn't exist
	os.MkdirAll(stagingDir, 0755)

	return &StagingService{
		stagingDir: stagingDir,
	}
}

// Save writes the uploaded file under a fresh name and returns where it
// landed. The caller validates size and count limits before committing the
// file to an image entry.
func (s *StagingService) Save(filename string, file io.Reader) (*StagedFile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ext := filepath.Ext(filename)
	if ext == "" {
		ext = ".jpg"
	}

	stagedName := uuid.New().String() + ext
	stagedPath := filepath.Join(s.stagingDir, stagedName)

	dst, err := os.Create(stagedPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create staged file: %w", err)
	}
	defer dst.Close()

	written, err := io.Copy(dst, file)
	if err != nil {
		os.Remove(stagedPath) // Clean up on error
		return nil, fmt.Errorf("failed to save staged file: %w", err)
	}

	return &StagedFile{
		Path:       stagedPath,
		PreviewURL: "/staging/" + stagedName,
		Filename:   filename,
		SizeBytes:  written,
	}, nil
}

// Open returns a reader over a staged file. The caller closes it.
func (s *StagingService) Open(path string) (io.ReadCloser, error) {
	return os.Open(path)
}

// Remove deletes one staged file. Missing files are not an error; the
// sweeper may have gotten there first.
func (s *StagingService) Remove(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete staged file: %w", err)
	}
	return nil
}

// RemoveAll deletes a batch of staged files, logging rather than failing on
// individual errors.
func (s *StagingService) RemoveAll(paths []string) {
	for _, p := range paths {
		if err := s.Remove(p); err != nil {
			log.Printf("[Staging] cleanup failed path=%s err=%v", p, err)
		}
	}
}

// Dir returns the staging directory, for the file-serving route.
func (s *StagingService) Dir() string {
	return s.stagingDir
}
