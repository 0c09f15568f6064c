package services

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	firebase "firebase.google.com/go/v4"
	"github.com/google/uuid"
	"google.golang.org/api/option"
)

// GCSUploader writes staged files into the Firebase Storage bucket and
// returns tokened download URLs, the same URL shape the marketplace apps
// already consume.
type GCSUploader struct {
	bucketHandle *storage.BucketHandle
	bucket       string
}

// NewGCSUploader creates the storage client once at server startup.
// Credentials come from GOOGLE_APPLICATION_CREDENTIALS (inline JSON or a
// file path) or Application Default Credentials.
func NewGCSUploader(ctx context.Context, bucket string) (*GCSUploader, error) {
	var opts []option.ClientOption
	if cred := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"); cred != "" {
		if strings.HasPrefix(cred, "{") {
			opts = append(opts, option.WithCredentialsJSON([]byte(cred)))
		} else {
			opts = append(opts, option.WithCredentialsFile(cred))
		}
	}

	app, err := firebase.NewApp(ctx, nil, opts...)
	if err != nil {
		return nil, fmt.Errorf("uploader: firebase app: %w", err)
	}
	client, err := app.Storage(ctx)
	if err != nil {
		return nil, fmt.Errorf("uploader: storage client: %w", err)
	}
	handle, err := client.Bucket(bucket)
	if err != nil {
		return nil, fmt.Errorf("uploader: bucket %s: %w", bucket, err)
	}

	return &GCSUploader{
		bucketHandle: handle,
		bucket:       bucket,
	}, nil
}

// Upload streams one staged file to the bucket under listings/ and returns
// its download URL.
func (u *GCSUploader) Upload(ctx context.Context, stagingPath, filename string) (string, error) {
	src, err := os.Open(stagingPath)
	if err != nil {
		return "", fmt.Errorf("uploader: open staged file: %w", err)
	}
	defer src.Close()

	ext := filepath.Ext(filename)
	if ext == "" {
		ext = filepath.Ext(stagingPath)
	}
	objectName := fmt.Sprintf("listings/%s%s", uuid.New().String(), ext)
	token := newDownloadToken()

	obj := u.bucketHandle.Object(objectName)
	wc := obj.NewWriter(ctx)
	wc.Metadata = map[string]string{
		"firebaseStorageDownloadTokens": token,
	}

	if _, err := io.Copy(wc, src); err != nil {
		wc.Close()
		return "", fmt.Errorf("uploader: write object: %w", err)
	}
	if err := wc.Close(); err != nil {
		return "", fmt.Errorf("uploader: finalize object: %w", err)
	}

	return firebaseDownloadURL(u.bucket, objectName, token), nil
}

func newDownloadToken() string {
	return fmt.Sprintf("%d-%d", time.Now().UnixNano(), os.Getpid())
}

func firebaseDownloadURL(bucket, objectName, token string) string {
	return fmt.Sprintf(
		"https://firebasestorage.googleapis.com/v0/b/%s/o/%s?alt=media&token=%s",
		bucket,
		url.PathEscape(objectName),
		url.QueryEscape(token),
	)
}
