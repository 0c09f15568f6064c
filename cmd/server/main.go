package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/listhub/editor-backend/internal/config"
	"github.com/listhub/editor-backend/internal/handlers"
	"github.com/listhub/editor-backend/internal/services"
	"github.com/listhub/editor-backend/internal/upstream"
)

func main() {
	cfg := config.Load()

	// Upstream marketplace API (owns the listings being edited)
	listingAPI := upstream.NewClient(cfg.UpstreamBaseURL)

	// Image upload target: storage bucket when configured, local disk otherwise
	var uploader services.Uploader
	if cfg.StorageBucket != "" {
		gcs, err := services.NewGCSUploader(context.Background(), cfg.StorageBucket)
		if err != nil {
			log.Fatalf("Failed to initialize storage uploader: %v", err)
		}
		uploader = gcs
	} else {
		uploader = services.NewLocalUploader(cfg.UploadDir)
	}

	// Draft persistence: Mongo when configured, JSON file otherwise
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
		log.Println("Draft storage: MongoDB")
	} else {
		fileDrafts, err := services.NewFileDraftService(cfg.DataDir)
		if err != nil {
			log.Fatalf("Failed to initialize draft storage: %v", err)
		}
		drafts = fileDrafts
		log.Println("Draft storage: JSON file")
	}

	// Initialize services
	stagingService := services.NewStagingService(cfg.StagingDir)
	sessionService := services.NewSessionService(listingAPI, uploader, stagingService, drafts, services.SessionConfig{
		MaxImages:     cfg.MaxImages,
		MaxFileSizeMB: cfg.MaxFileSizeMB,
		SuccessWait:   cfg.SuccessCloseWait,
		SessionTTL:    cfg.SessionTTL,
	})
	sessionService.StartReaper(5 * time.Minute)
	defer sessionService.Stop()

	// Initialize handlers
	sessionHandler := handlers.NewSessionHandler(sessionService)
	imageHandler := handlers.NewImageHandler(sessionService, cfg.MaxFileSizeMB, cfg.MaxImages)

	// Create router
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Route("/edit-sessions", func(r chi.Router) {
			r.Post("/", sessionHandler.OpenSession)

			r.Route("/{sessionId}", func(r chi.Router) {
				r.Get("/", sessionHandler.GetSession)
				r.Post("/refresh", sessionHandler.RefreshSession)
				r.Patch("/fields", sessionHandler.UpdateField)
				r.Post("/submit", sessionHandler.SubmitSession)
				r.Delete("/", sessionHandler.CancelSession)

				// Images
				r.Post("/images", imageHandler.AddImages)
				r.Route("/images/{entryId}", func(r chi.Router) {
					r.Delete("/", imageHandler.RemoveImage)
					r.Post("/main", imageHandler.SetMainImage)
					r.Post("/position", imageHandler.ReorderImage)
				})
			})
		})
	})

	// Serve staged previews and locally uploaded files
	r.Handle("/staging/*", http.StripPrefix("/staging/", http.FileServer(http.Dir(cfg.StagingDir))))
	r.Handle("/uploads/*", http.StripPrefix("/uploads/", http.FileServer(http.Dir(cfg.UploadDir))))

	srv := &http.Server{
		Addr:    cfg.ServerAddress,
		Handler: r,
	}

	go func() {
		log.Printf("🚀 Listing editor API starting on %s (upstream: %s)", cfg.ServerAddress, cfg.UpstreamBaseURL)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	// Graceful shutdown so open sessions can flush their drafts
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Shutdown error: %v", err)
	}
}
