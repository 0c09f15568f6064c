package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/listhub/editor-backend/internal/models"
	"github.com/listhub/editor-backend/internal/services"
	"github.com/listhub/editor-backend/internal/upstream"
)

// fakeMarketplace serves the upstream listing API: GET hands out the stored
// records, PUT captures updates.
type fakeMarketplace struct {
	mu       sync.Mutex
	listings map[string]map[string]any
	updates  []map[string]any
	failGet  bool
	failPut  bool
}

func (f *fakeMarketplace) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/listing-details", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")

		switch r.Method {
		case http.MethodGet:
			if f.failGet {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			listing, ok := f.listings[r.URL.Query().Get("id")]
			if !ok {
				json.NewEncoder(w).Encode(map[string]any{"success": false, "message": "listing not found"})
				return
			}
			json.NewEncoder(w).Encode(map[string]any{"success": true, "data": listing})
		case http.MethodPut:
			if f.failPut {
				w.WriteHeader(http.StatusUnprocessableEntity)
				json.NewEncoder(w).Encode(map[string]any{"success": false, "message": "validation failed"})
				return
			}
			var body map[string]any
			json.NewDecoder(r.Body).Decode(&body)
			f.updates = append(f.updates, body)
			json.NewEncoder(w).Encode(map[string]any{"success": true})
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})
	return mux
}

type testEnv struct {
	router      *chi.Mux
	marketplace *fakeMarketplace
	service     *services.SessionService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	marketplace := &fakeMarketplace{
		listings: map[string]map[string]any{
			"p1": {
				"id":         "p1",
				"title":      "Vintage Lamp",
				"price":      25.0,
				"category":   "home",
				"negotiable": true,
				"images":     []string{"a.jpg", "b.jpg"},
			},
		},
	}
	upstreamSrv := httptest.NewServer(marketplace.handler())
	t.Cleanup(upstreamSrv.Close)

	dir := t.TempDir()
	drafts, err := services.NewFileDraftService(dir)
	require.NoError(t, err)

	service := services.NewSessionService(
		upstream.NewClient(upstreamSrv.URL),
		services.NewLocalUploader(dir+"/uploads"),
		services.NewStagingService(dir+"/staging"),
		drafts,
		services.SessionConfig{MaxImages: 10, MaxFileSizeMB: 5, SuccessWait: 20 * time.Millisecond},
	)
	t.Cleanup(service.Stop)

	sessionHandler := NewSessionHandler(service)
	imageHandler := NewImageHandler(service, 5, 10)

	router := chi.NewRouter()
	router.Route("/api/edit-sessions", func(r chi.Router) {
		r.Post("/", sessionHandler.OpenSession)
		r.Route("/{sessionId}", func(r chi.Router) {
			r.Get("/", sessionHandler.GetSession)
			r.Post("/refresh", sessionHandler.RefreshSession)
			r.Patch("/fields", sessionHandler.UpdateField)
			r.Post("/submit", sessionHandler.SubmitSession)
			r.Delete("/", sessionHandler.CancelSession)
			r.Post("/images", imageHandler.AddImages)
			r.Route("/images/{entryId}", func(r chi.Router) {
				r.Delete("/", imageHandler.RemoveImage)
				r.Post("/main", imageHandler.SetMainImage)
				r.Post("/position", imageHandler.ReorderImage)
			})
		})
	})

	return &testEnv{router: router, marketplace: marketplace, service: service}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) (*httptest.ResponseRecorder, models.APIResponse) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(encoded)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)

	var resp models.APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return rec, resp
}

func (e *testEnv) openSession(t *testing.T, listingID string) *models.EditSession {
	t.Helper()

	rec, resp := e.do(t, "POST", "/api/edit-sessions", models.OpenSessionRequest{ListingID: listingID})
	require.Equal(t, http.StatusCreated, rec.Code)
	return decodeSession(t, resp)
}

func decodeSession(t *testing.T, resp models.APIResponse) *models.EditSession {
	t.Helper()

	raw, err := json.Marshal(resp.Data)
	require.NoError(t, err)
	var session models.EditSession
	require.NoError(t, json.Unmarshal(raw, &session))
	return &session
}

func TestOpenSession(t *testing.T) {
	env := newTestEnv(t)

	session := env.openSession(t, "p1")
	assert.Equal(t, models.SessionReady, session.State)
	assert.Equal(t, "Vintage Lamp", session.Fields.Title)
	assert.Len(t, session.Images, 2)
}

func TestOpenSession_MissingListingID(t *testing.T) {
	env := newTestEnv(t)

	rec, resp := env.do(t, "POST", "/api/edit-sessions", models.OpenSessionRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Errors, "listingId")
}

func TestOpenSession_UpstreamDownYieldsErrorState(t *testing.T) {
	env := newTestEnv(t)
	env.marketplace.failGet = true

	rec, resp := env.do(t, "POST", "/api/edit-sessions", models.OpenSessionRequest{ListingID: "p1"})
	require.Equal(t, http.StatusCreated, rec.Code)

	session := decodeSession(t, resp)
	assert.Equal(t, models.SessionError, session.State)
	assert.NotEmpty(t, session.LastError)
}

func TestGetSession_NotFound(t *testing.T) {
	env := newTestEnv(t)

	rec, resp := env.do(t, "GET", "/api/edit-sessions/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.False(t, resp.Success)
}

func TestUpdateField(t *testing.T) {
	env := newTestEnv(t)
	session := env.openSession(t, "p1")

	rec, resp := env.do(t, "PATCH", "/api/edit-sessions/"+session.ID+"/fields", models.UpdateFieldRequest{
		Field: "title",
		Value: "Lamp, barely used",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Lamp, barely used", decodeSession(t, resp).Fields.Title)

	// Unknown fields are a client error.
	rec, _ = env.do(t, "PATCH", "/api/edit-sessions/"+session.ID+"/fields", models.UpdateFieldRequest{
		Field: "color",
		Value: "blue",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmitSession(t *testing.T) {
	env := newTestEnv(t)
	session := env.openSession(t, "p1")

	_, _ = env.do(t, "PATCH", "/api/edit-sessions/"+session.ID+"/fields", models.UpdateFieldRequest{
		Field: "price", Value: "19.99",
	})

	rec, resp := env.do(t, "POST", "/api/edit-sessions/"+session.ID+"/submit", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.SessionSuccess, decodeSession(t, resp).State)

	env.marketplace.mu.Lock()
	defer env.marketplace.mu.Unlock()
	require.Len(t, env.marketplace.updates, 1)
	update := env.marketplace.updates[0]
	assert.Equal(t, 19.99, update["price"])
	assert.Equal(t, true, update["negotiable"])

	images, ok := update["images"].([]any)
	require.True(t, ok)
	require.Len(t, images, 2)
	first := images[0].(map[string]any)
	assert.Equal(t, "a.jpg", first["imageUrl"])
	assert.Equal(t, "image-0", first["id"])
}

func TestSubmitSession_UpstreamRejection(t *testing.T) {
	env := newTestEnv(t)
	session := env.openSession(t, "p1")
	env.marketplace.failPut = true

	rec, resp := env.do(t, "POST", "/api/edit-sessions/"+session.ID+"/submit", nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.False(t, resp.Success)

	// The session survives the rejection and stays editable.
	rec, resp = env.do(t, "GET", "/api/edit-sessions/"+session.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.SessionReady, decodeSession(t, resp).State)
}

func TestSubmitSession_BadPrice(t *testing.T) {
	env := newTestEnv(t)
	session := env.openSession(t, "p1")

	_, _ = env.do(t, "PATCH", "/api/edit-sessions/"+session.ID+"/fields", models.UpdateFieldRequest{
		Field: "price", Value: "cheap",
	})

	rec, resp := env.do(t, "POST", "/api/edit-sessions/"+session.ID+"/submit", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, resp.Success)
}

func TestCancelSession(t *testing.T) {
	env := newTestEnv(t)
	session := env.openSession(t, "p1")

	rec, resp := env.do(t, "DELETE", "/api/edit-sessions/"+session.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, resp.Success)

	rec, _ = env.do(t, "GET", "/api/edit-sessions/"+session.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	env.marketplace.mu.Lock()
	defer env.marketplace.mu.Unlock()
	assert.Empty(t, env.marketplace.updates)
}

func TestAddImages(t *testing.T) {
	env := newTestEnv(t)
	session := env.openSession(t, "p1")

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreatePart(map[string][]string{
		"Content-Disposition": {`form-data; name="images"; filename="new.jpg"`},
		"Content-Type":        {"image/jpeg"},
	})
	require.NoError(t, err)
	_, err = part.Write([]byte("jpegbytes"))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest("POST", "/api/edit-sessions/"+session.ID+"/images", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	var resp models.APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, decodeSession(t, resp).Images, 3)
}

func TestAddImages_RejectsNonImageType(t *testing.T) {
	env := newTestEnv(t)
	session := env.openSession(t, "p1")

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreatePart(map[string][]string{
		"Content-Disposition": {`form-data; name="images"; filename="notes.txt"`},
		"Content-Type":        {"text/plain"},
	})
	require.NoError(t, err)
	part.Write([]byte("hello"))
	require.NoError(t, writer.Close())

	req := httptest.NewRequest("POST", "/api/edit-sessions/"+session.ID+"/images", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRemoveAndReorderImages(t *testing.T) {
	env := newTestEnv(t)
	session := env.openSession(t, "p1")
	require.Len(t, session.Images, 2)

	// Promote the second image, then drop the (new) second entry.
	rec, resp := env.do(t, "POST", "/api/edit-sessions/"+session.ID+"/images/"+session.Images[1].ID+"/main", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	updated := decodeSession(t, resp)
	assert.Equal(t, "b.jpg", updated.Images[0].URL)

	rec, resp = env.do(t, "DELETE", "/api/edit-sessions/"+session.ID+"/images/"+updated.Images[1].ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	final := decodeSession(t, resp)
	require.Len(t, final.Images, 1)
	assert.Equal(t, "b.jpg", final.Images[0].URL)

	rec, _ = env.do(t, "DELETE", "/api/edit-sessions/"+session.ID+"/images/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReorderImage_InvalidBody(t *testing.T) {
	env := newTestEnv(t)
	session := env.openSession(t, "p1")

	rec, _ := env.do(t, "POST", "/api/edit-sessions/"+session.ID+"/images/"+session.Images[0].ID+"/position", models.ReorderImageRequest{Position: -1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
