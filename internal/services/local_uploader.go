package services

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// LocalUploader copies staged files into the public uploads directory.
// Development fallback for environments without a storage bucket.
type LocalUploader struct {
	uploadDir string
}

func NewLocalUploader(uploadDir string) *LocalUploader {
	os.MkdirAll(uploadDir, 0755)

	return &LocalUploader{
		uploadDir: uploadDir,
	}
}

func (u *LocalUploader) Upload(ctx context.Context, stagingPath, filename string) (string, error) {
	src, err := os.Open(stagingPath)
	if err != nil {
		return "", fmt.Errorf("uploader: open staged file: %w", err)
	}
	defer src.Close()

	ext := filepath.Ext(filename)
	if ext == "" {
		ext = filepath.Ext(stagingPath)
	}
	newFilename := uuid.New().String() + ext
	finalPath := filepath.Join(u.uploadDir, newFilename)

	dst, err := os.Create(finalPath)
	if err != nil {
		return "", fmt.Errorf("uploader: create file: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		os.Remove(finalPath) // Clean up on error
		return "", fmt.Errorf("uploader: save file: %w", err)
	}

	return "/uploads/" + newFilename, nil
}
