package services

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/listhub/editor-backend/internal/models"
)

// fakeUploader hands out deterministic URLs and can be told to fail on a
// specific filename.
type fakeUploader struct {
	calls    int
	failOn   string
	uploaded []string
}

func (f *fakeUploader) Upload(ctx context.Context, stagingPath, filename string) (string, error) {
	if filename == f.failOn {
		return "", errors.New("bucket unavailable")
	}
	f.calls++
	url := fmt.Sprintf("https://cdn.example.com/%s", filename)
	f.uploaded = append(f.uploaded, url)
	return url, nil
}

func assertPositionsAreGapFree(t *testing.T, set *ImageSet) {
	t.Helper()
	entries := set.Entries()
	seen := make(map[int]bool)
	for i, e := range entries {
		assert.Equal(t, i, e.Position, "entry %s out of place", e.ID)
		assert.False(t, seen[e.Position], "duplicate position %d", e.Position)
		seen[e.Position] = true
	}
}

func seededSet(t *testing.T, urls ...string) *ImageSet {
	t.Helper()
	set := NewImageSet(10, 5)
	set.Seed(&models.Listing{ID: "p1", Images: urls})
	return set
}

func TestImageSet_SeedBuildsRemoteEntries(t *testing.T) {
	t.Parallel()

	set := seededSet(t, "a.jpg", "b.jpg", "c.jpg")

	entries := set.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, models.ImageKindRemote, entries[0].Kind)
	assert.Equal(t, models.ImageStatusUploaded, entries[0].Status)
	assert.True(t, entries[0].IsMain())
	assert.Equal(t, []string{"a.jpg", "b.jpg", "c.jpg"}, set.URLs())
	assertPositionsAreGapFree(t, set)
}

func TestImageSet_AddRejectsOversizedFile(t *testing.T) {
	t.Parallel()

	set := NewImageSet(10, 5)
	_, err := set.Add("/staging/x.jpg", "/staging/x.jpg", "x.jpg", 6*1024*1024)
	assert.ErrorIs(t, err, ErrFileTooLarge)
	assert.Equal(t, 0, set.Len())
}

func TestImageSet_AddRejectsBeyondLimit(t *testing.T) {
	t.Parallel()

	set := NewImageSet(3, 5)
	set.Seed(&models.Listing{ID: "p1", Images: []string{"a.jpg", "b.jpg", "c.jpg"}})

	_, err := set.Add("/staging/x.jpg", "/staging/x.jpg", "x.jpg", 100)
	assert.ErrorIs(t, err, ErrTooManyImages)
	assert.Equal(t, 3, set.Len())
	assertPositionsAreGapFree(t, set)
}

func TestImageSet_RemoveMainPromotesNext(t *testing.T) {
	t.Parallel()

	set := seededSet(t, "a.jpg", "b.jpg", "c.jpg")
	entries := set.Entries()

	_, err := set.Remove(entries[0].ID)
	require.NoError(t, err)

	remaining := set.Entries()
	require.Len(t, remaining, 2)
	assert.Equal(t, "b.jpg", remaining[0].URL)
	assert.True(t, remaining[0].IsMain())
	assertPositionsAreGapFree(t, set)
}

func TestImageSet_RemoveUnknownEntry(t *testing.T) {
	t.Parallel()

	set := seededSet(t, "a.jpg")
	_, err := set.Remove("nope")
	assert.ErrorIs(t, err, ErrImageNotFound)
}

func TestImageSet_SetMainPreservesRelativeOrder(t *testing.T) {
	t.Parallel()

	set := seededSet(t, "a.jpg", "b.jpg", "c.jpg", "d.jpg")
	entries := set.Entries()

	require.NoError(t, set.SetMain(entries[2].ID))

	assert.Equal(t, []string{"c.jpg", "a.jpg", "b.jpg", "d.jpg"}, set.URLs())
	assertPositionsAreGapFree(t, set)
}

func TestImageSet_ReorderShiftsBetweenSlots(t *testing.T) {
	t.Parallel()

	set := seededSet(t, "a.jpg", "b.jpg", "c.jpg", "d.jpg")
	entries := set.Entries()

	// Move a.jpg from position 0 to position 2.
	require.NoError(t, set.Reorder(entries[0].ID, 2))
	assert.Equal(t, []string{"b.jpg", "c.jpg", "a.jpg", "d.jpg"}, set.URLs())
	assertPositionsAreGapFree(t, set)

	// And back to the front.
	require.NoError(t, set.Reorder(entries[0].ID, 0))
	assert.Equal(t, []string{"a.jpg", "b.jpg", "c.jpg", "d.jpg"}, set.URLs())
	assertPositionsAreGapFree(t, set)
}

func TestImageSet_ReorderClampsTarget(t *testing.T) {
	t.Parallel()

	set := seededSet(t, "a.jpg", "b.jpg")
	entries := set.Entries()

	require.NoError(t, set.Reorder(entries[0].ID, 99))
	assert.Equal(t, []string{"b.jpg", "a.jpg"}, set.URLs())

	require.NoError(t, set.Reorder(entries[0].ID, -5))
	assert.Equal(t, []string{"a.jpg", "b.jpg"}, set.URLs())
	assertPositionsAreGapFree(t, set)
}

func TestImageSet_InvariantsHoldAcrossMixedOperations(t *testing.T) {
	t.Parallel()

	set := NewImageSet(5, 5)
	set.Seed(&models.Listing{ID: "p1", Images: []string{"a.jpg", "b.jpg"}})

	_, err := set.Add("/staging/1.jpg", "/staging/1.jpg", "new1.jpg", 1024)
	require.NoError(t, err)
	_, err = set.Add("/staging/2.jpg", "/staging/2.jpg", "new2.jpg", 1024)
	require.NoError(t, err)

	entries := set.Entries()
	require.NoError(t, set.SetMain(entries[3].ID))
	_, err = set.Remove(entries[1].ID)
	require.NoError(t, err)
	require.NoError(t, set.Reorder(entries[0].ID, 2))

	assert.LessOrEqual(t, set.Len(), 5)
	assertPositionsAreGapFree(t, set)
}

func TestImageSet_UploadPendingAssignsURLsInOrder(t *testing.T) {
	t.Parallel()

	set := seededSet(t, "a.jpg")
	_, err := set.Add("/staging/1.jpg", "/staging/1.jpg", "b.jpg", 1024)
	require.NoError(t, err)

	uploader := &fakeUploader{}
	require.NoError(t, set.UploadPending(context.Background(), uploader))

	assert.Equal(t, 1, uploader.calls)
	assert.Equal(t, []string{"a.jpg", "https://cdn.example.com/b.jpg"}, set.URLs())
	for _, e := range set.Entries() {
		assert.Equal(t, models.ImageStatusUploaded, e.Status)
	}
}

func TestImageSet_UploadPendingIsAtomic(t *testing.T) {
	t.Parallel()

	set := seededSet(t, "a.jpg")
	_, err := set.Add("/staging/1.jpg", "/staging/1.jpg", "ok.jpg", 1024)
	require.NoError(t, err)
	_, err = set.Add("/staging/2.jpg", "/staging/2.jpg", "bad.jpg", 1024)
	require.NoError(t, err)

	uploader := &fakeUploader{failOn: "bad.jpg"}
	err = set.UploadPending(context.Background(), uploader)
	assert.ErrorIs(t, err, ErrUploadFailed)

	// No entry of the batch may end up uploaded, even the one that had
	// already gone through.
	for _, e := range set.Entries() {
		if e.Kind == models.ImageKindLocal {
			assert.Equal(t, models.ImageStatusFailed, e.Status)
			assert.Empty(t, e.URL)
		}
	}
}

func TestImageSet_UploadPendingNoOpWithoutLocalEntries(t *testing.T) {
	t.Parallel()

	set := seededSet(t, "a.jpg", "b.jpg")
	uploader := &fakeUploader{}
	require.NoError(t, set.UploadPending(context.Background(), uploader))
	assert.Equal(t, 0, uploader.calls)
}
