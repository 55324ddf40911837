package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kalaiselvan-arumugam/imagegrep/internal/ingest"
	"github.com/kalaiselvan-arumugam/imagegrep/internal/query"
	"github.com/kalaiselvan-arumugam/imagegrep/internal/store"
	"github.com/kalaiselvan-arumugam/imagegrep/internal/thumbnail"
	"github.com/kalaiselvan-arumugam/imagegrep/internal/vault"
	"github.com/kalaiselvan-arumugam/imagegrep/internal/vectorindex"
	"github.com/kalaiselvan-arumugam/imagegrep/internal/weights"
)

type noopEmbedder struct{}

func (noopEmbedder) IsReady() bool                          { return false }
func (noopEmbedder) EmbedText(string) ([]float32, error)    { return nil, nil }
func (noopEmbedder) EmbedImage(string) ([]float32, error)   { return nil, nil }

type fakeFetcher struct {
	running   bool
	lastError string
	startErr  error
}

func (f *fakeFetcher) IsRunning() bool    { return f.running }
func (f *fakeFetcher) LastError() string  { return f.lastError }
func (f *fakeFetcher) Start(ctx context.Context, repoOverride string) error {
	return f.startErr
}
func (f *fakeFetcher) Subscribe(buf int) (<-chan weights.Event, func()) {
	ch := make(chan weights.Event, buf)
	return ch, func() { close(ch) }
}

func newTestServer(t *testing.T) (*Server, store.Repository) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	repo, err := store.Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	index := vectorindex.New()
	embedder := noopEmbedder{}
	engine := query.New(repo, embedder, index)
	thumbs := thumbnail.New(t.TempDir(), 256)
	pipeline := ingest.New(repo, thumbs, embedder, index, false)
	v, err := vault.New()
	require.NoError(t, err)

	srv := New(repo, engine, pipeline, thumbs, index, &fakeFetcher{}, v, t.TempDir(), func() []string { return nil })
	return srv, repo
}

func TestHandleSearchFallsBackToFilenameSearch(t *testing.T) {
	srv, repo := newTestServer(t)
	require.NoError(t, repo.Save(&store.Image{
		FilePath:     "/photos/sunset.jpg",
		LastModified: time.Now(),
		IndexedAt:    time.Now(),
		Status:       store.StatusIndexed,
	}))

	body, _ := json.Marshal(map[string]any{"query": "sunset", "limit": 10})
	req := httptest.NewRequest(http.MethodPost, "/search", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	srv.Routes().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp searchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "/photos/sunset.jpg", resp.Results[0].FilePath)
}

func TestHandleImageTagsSyncsFavoriteFlag(t *testing.T) {
	srv, repo := newTestServer(t)
	img := &store.Image{FilePath: "/photos/a.jpg", LastModified: time.Now(), IndexedAt: time.Now()}
	require.NoError(t, repo.Save(img))

	body, _ := json.Marshal(map[string]any{"tags": []string{"beach", favoriteTag}})
	req := httptest.NewRequest(http.MethodPatch, "/images/"+strconv.FormatInt(img.ID, 10)+"/tags", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	updated, err := repo.FindByID(img.ID)
	require.NoError(t, err)
	assert.True(t, updated.IsLoved)
	assert.Contains(t, updated.ExtraJSON, "beach")
}

func TestHandleImageDeleteRemovesRecordOnly(t *testing.T) {
	srv, repo := newTestServer(t)
	img := &store.Image{FilePath: "/photos/gone.jpg", LastModified: time.Now(), IndexedAt: time.Now()}
	require.NoError(t, repo.Save(img))

	req := httptest.NewRequest(http.MethodDelete, "/images/"+strconv.FormatInt(img.ID, 10), nil)
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	got, err := repo.FindByID(img.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestHandleImageDeleteUnknownIDReturns404(t *testing.T) {
	srv, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodDelete, "/images/999", nil)
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleReindexRejectsConcurrentRun(t *testing.T) {
	srv, _ := newTestServer(t)
	srv.reindexing = true

	req := httptest.NewRequest(http.MethodPost, "/index/reindex", nil)
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestHandleTokenSetAndStatus(t *testing.T) {
	srv, _ := newTestServer(t)

	body, _ := json.Marshal(map[string]string{"token": "hf_abc123"})
	setReq := httptest.NewRequest(http.MethodPost, "/settings/token", bytes.NewReader(body))
	setRec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(setRec, setReq)
	require.Equal(t, http.StatusOK, setRec.Code)

	statusReq := httptest.NewRequest(http.MethodGet, "/settings/token/status", nil)
	statusRec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(statusRec, statusReq)

	require.Equal(t, http.StatusOK, statusRec.Code)
	var resp map[string]bool
	require.NoError(t, json.Unmarshal(statusRec.Body.Bytes(), &resp))
	assert.True(t, resp["hasToken"])
}

func TestHandleFoldersCreateRejectsEmptyPath(t *testing.T) {
	srv, _ := newTestServer(t)
	body, _ := json.Marshal(map[string]string{"path": ""})
	req := httptest.NewRequest(http.MethodPost, "/settings/folders", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

type fakeWatcherControl struct {
	calls []bool
}

func (f *fakeWatcherControl) SetAutoIndex(enabled bool) {
	f.calls = append(f.calls, enabled)
}

func TestHandleAdvancedSetPropagatesToWatcherAndPipeline(t *testing.T) {
	srv, _ := newTestServer(t)
	watcherCtl := &fakeWatcherControl{}
	srv.SetWatcherControl(watcherCtl)

	body, _ := json.Marshal(advancedSettings{MinScore: 0.3, AutoIndex: false, ExtractExif: false})
	req := httptest.NewRequest(http.MethodPost, "/settings/advanced", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, []bool{false}, watcherCtl.calls)

	getReq := httptest.NewRequest(http.MethodGet, "/settings/advanced", nil)
	getRec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(getRec, getReq)

	var out advancedSettings
	require.NoError(t, json.Unmarshal(getRec.Body.Bytes(), &out))
	assert.False(t, out.AutoIndex)
	assert.False(t, out.ExtractExif)
}

func TestHandleAdvancedSetToleratesNilWatcherControl(t *testing.T) {
	srv, _ := newTestServer(t)

	body, _ := json.Marshal(advancedSettings{MinScore: 0.24, AutoIndex: true, ExtractExif: true})
	req := httptest.NewRequest(http.MethodPost, "/settings/advanced", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleModelsStatusReportsMissingFiles(t *testing.T) {
	srv, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/models/status", nil)
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "idle", resp["status"])
	files := resp["files"].([]any)
	require.Len(t, files, 3)
}
