package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/listhub/editor-backend/internal/config"
	"github.com/listhub/editor-backend/internal/services"
)

// Standalone sweeper for deployments where several editor instances share a
// Mongo draft store: a scheduler hits /sweep and drafts idle past the
// session TTL are removed together with their staged files.
type sweeper struct {
	drafts     services.DraftService
	stagingDir string
	ttl        time.Duration
}

func main() {
	cfg := config.Load()

	var drafts services.DraftService
	if cfg.MongoURI != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		mongoDrafts, err := services.NewMongoDraftService(ctx, cfg.MongoURI, cfg.MongoDatabase)
		cancel()
		if err != nil {
			log.Fatalf("Failed to connect to MongoDB: %v", err)
		}
		defer mongoDrafts.Close(context.Background())
		drafts = mongoDrafts
	} else {
		fileDrafts, err := services.NewFileDraftService(cfg.DataDir)
		if err != nil {
			log.Fatalf("Failed to initialize draft storage: %v", err)
		}
		drafts = fileDrafts
	}

	s := &sweeper{
		drafts:     drafts,
		stagingDir: cfg.StagingDir,
		ttl:        cfg.SessionTTL,
	}

	addr := getEnv("PORT", "8081")

	http.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	http.HandleFunc("/sweep", s.handleSweep)

	log.Printf("draft-sweeper listening on :%s (ttl %s)", addr, s.ttl)
	log.Fatal(http.ListenAndServe(":"+addr, nil))
}

func (s *sweeper) handleSweep(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 60*time.Second)
	defer cancel()

	cutoff := time.Now().Add(-s.ttl)
	expired, err := s.drafts.ListExpired(ctx, cutoff)
	if err != nil {
		log.Printf("[sweep] listing expired drafts failed: %v", err)
		http.Error(w, "sweep failed", http.StatusInternalServerError)
		return
	}

	removed := 0
	for _, draft := range expired {
		for _, entry := range draft.Images {
			if entry.StagingPath == "" {
				continue
			}
			// Only touch files inside our staging dir; drafts written by an
			// instance with a different layout are left alone.
			if filepath.Dir(entry.StagingPath) != filepath.Clean(s.stagingDir) {
				continue
			}
			if err := os.Remove(entry.StagingPath); err != nil && !os.IsNotExist(err) {
				log.Printf("[sweep] staged file cleanup failed path=%s err=%v", entry.StagingPath, err)
			}
		}

		if err := s.drafts.Delete(ctx, draft.SessionID); err != nil {
			log.Printf("[sweep] draft delete failed session=%s err=%v", draft.SessionID, err)
			continue
		}
		removed++
	}

	log.Printf("[sweep] removed %d of %d expired drafts (cutoff %s)", removed, len(expired), cutoff.Format(time.RFC3339))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}
