// Package httpapi implements the HTTP façade (C14): a thin net/http layer
// that deserializes requests, calls into the ingestion, query, weights, and
// repository components, and serializes their results back out as JSON or
// server-sent events. It holds no business logic of its own.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/kalaiselvan-arumugam/imagegrep/internal/apperror"
	"github.com/kalaiselvan-arumugam/imagegrep/internal/ingest"
	"github.com/kalaiselvan-arumugam/imagegrep/internal/query"
	"github.com/kalaiselvan-arumugam/imagegrep/internal/store"
	"github.com/kalaiselvan-arumugam/imagegrep/internal/thumbnail"
	"github.com/kalaiselvan-arumugam/imagegrep/internal/vault"
	"github.com/kalaiselvan-arumugam/imagegrep/internal/vectorindex"
	"github.com/kalaiselvan-arumugam/imagegrep/internal/weights"
)

const favoriteTag = "__sys_favorite__"

// Fetcher is the narrow slice of *weights.Fetcher the façade needs.
type Fetcher interface {
	IsRunning() bool
	LastError() string
	Start(ctx context.Context, repoOverride string) error
	Subscribe(buf int) (<-chan weights.Event, func())
}

// WatcherControl is the narrow slice of *watcher.Watcher the façade needs to
// make the advanced_auto_index setting take effect on the running process
// without a restart. Kept as an interface so the httpapi package doesn't
// depend on the watcher package, and so a server run without a watcher
// (no folders configured, or a test server) can leave it nil.
type WatcherControl interface {
	SetAutoIndex(enabled bool)
}

// Server wires the façade's handlers to the core components. It holds no
// state of its own beyond a single reindexing flag.
type Server struct {
	repo       store.Repository
	engine     *query.Engine
	pipeline   *ingest.Pipeline
	thumbs     *thumbnail.Service
	index      *vectorindex.Index
	fetcher    Fetcher
	vault      *vault.Vault
	modelDir   string
	folders    func() []string
	watcherCtl WatcherControl

	mu         sync.Mutex
	reindexing bool
}

// New returns a Server ready to build routes from. folders returns the
// current set of default/watched roots to scan on a bulk reindex.
func New(
	repo store.Repository,
	engine *query.Engine,
	pipeline *ingest.Pipeline,
	thumbs *thumbnail.Service,
	index *vectorindex.Index,
	fetcher Fetcher,
	v *vault.Vault,
	modelDir string,
	folders func() []string,
) *Server {
	return &Server{
		repo:     repo,
		engine:   engine,
		pipeline: pipeline,
		thumbs:   thumbs,
		index:    index,
		fetcher:  fetcher,
		vault:    v,
		modelDir: modelDir,
		folders:  folders,
	}
}

// SetWatcherControl wires the running folder watcher (if any) so that
// handleAdvancedSet can flip auto-indexing on and off live. Safe to call
// with nil, which is also the default: settings changes then only persist.
func (s *Server) SetWatcherControl(w WatcherControl) {
	s.watcherCtl = w
}

// Routes builds the façade's handler mux using Go 1.22+ method+pattern
// routing. No router library appears anywhere in the retrieval pack for
// this shape, so stdlib net/http is used directly.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /search", s.handleSearch)
	mux.HandleFunc("POST /search/image", s.handleSearchImage)
	mux.HandleFunc("GET /search/tags", s.handleSearchTags)
	mux.HandleFunc("GET /search/browse", s.handleSearchBrowse)

	mux.HandleFunc("GET /images/{id}/thumb", s.handleImageThumb)
	mux.HandleFunc("GET /images/{id}/full", s.handleImageFull)
	mux.HandleFunc("PATCH /images/{id}/tags", s.handleImageTags)
	mux.HandleFunc("PATCH /images/{id}/blur", s.handleImageBlur)
	mux.HandleFunc("DELETE /images/{id}", s.handleImageDelete)

	mux.HandleFunc("POST /index/reindex", s.handleReindex)
	mux.HandleFunc("GET /index/status", s.handleIndexStatus)

	mux.HandleFunc("POST /models/download", s.handleModelsDownload)
	mux.HandleFunc("GET /models/status", s.handleModelsStatus)
	mux.HandleFunc("POST /models/verify", s.handleModelsStatus)
	mux.HandleFunc("GET /models/progress", s.handleModelsProgress)

	mux.HandleFunc("GET /settings/folders", s.handleFoldersList)
	mux.HandleFunc("POST /settings/folders", s.handleFoldersCreate)
	mux.HandleFunc("DELETE /settings/folders/{id}", s.handleFoldersDelete)

	mux.HandleFunc("GET /settings/token/status", s.handleTokenStatus)
	mux.HandleFunc("POST /settings/token", s.handleTokenSet)
	mux.HandleFunc("DELETE /settings/token", s.handleTokenClear)

	mux.HandleFunc("GET /settings/advanced", s.handleAdvancedGet)
	mux.HandleFunc("POST /settings/advanced", s.handleAdvancedSet)

	return mux
}

// --- response helpers -------------------------------------------------

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn("failed to encode response", "err", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if kind, ok := apperror.KindOf(err); ok {
		switch kind {
		case apperror.KindInvalidInput:
			status = http.StatusBadRequest
		case apperror.KindNotFound:
			status = http.StatusNotFound
		case apperror.KindConflict:
			status = http.StatusConflict
		case apperror.KindNotReady:
			status = http.StatusServiceUnavailable
		default:
			status = http.StatusInternalServerError
		}
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func pathID(r *http.Request) (int64, error) {
	return strconv.ParseInt(r.PathValue("id"), 10, 64)
}

// --- search ------------------------------------------------------------

type searchRequest struct {
	Query   string        `json:"query"`
	Filters searchFilters `json:"filters"`
	Limit   int           `json:"limit"`
	Offset  int           `json:"offset"`
}

type searchFilters struct {
	MinScore   *float64 `json:"minScore"`
	FolderPath string   `json:"folderPath"`
	DateFrom   string   `json:"dateFrom"`
	DateTo     string   `json:"dateTo"`
	Tags       []string `json:"tags"`
}

func (f searchFilters) toQueryFilters() query.Filters {
	return query.Filters{
		MinScore:   f.MinScore,
		FolderPath: f.FolderPath,
		DateFrom:   f.DateFrom,
		DateTo:     f.DateTo,
		Tags:       f.Tags,
	}
}

type searchResponse struct {
	Results    []query.Result `json:"results"`
	Count      int            `json:"count"`
	TotalCount int            `json:"totalCount"`
	Query      string         `json:"query"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperror.Wrap(apperror.KindInvalidInput, "malformed request body", err))
		return
	}
	if req.Limit <= 0 {
		req.Limit = 50
	}

	results, err := s.engine.SearchByText(req.Query, req.Filters.toQueryFilters(), req.Limit, req.Offset)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, searchResponse{
		Results:    results,
		Count:      len(results),
		TotalCount: len(results),
		Query:      req.Query,
	})
}

func (s *Server) handleSearchImage(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, apperror.Wrap(apperror.KindInvalidInput, "malformed multipart upload", err))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, apperror.Wrap(apperror.KindInvalidInput, "missing file field", err))
		return
	}
	defer file.Close()

	tmp, err := os.CreateTemp("", "imagegrep-query-*"+filepath.Ext(header.Filename))
	if err != nil {
		writeError(w, apperror.Wrap(apperror.KindIOFailed, "failed to buffer uploaded file", err))
		return
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	if _, err := tmp.ReadFrom(file); err != nil {
		writeError(w, apperror.Wrap(apperror.KindIOFailed, "failed to buffer uploaded file", err))
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	results, err := s.engine.SearchByImage(tmp.Name(), query.Filters{}, limit, 0)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"results": results, "count": len(results)})
}

func (s *Server) handleSearchTags(w http.ResponseWriter, r *http.Request) {
	tag := r.URL.Query().Get("tag")
	limit := parseLimit(r, 50)

	results, err := s.engine.SearchByTag(tag, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results, "count": len(results), "tag": tag})
}

func (s *Server) handleSearchBrowse(w http.ResponseWriter, r *http.Request) {
	folder := r.URL.Query().Get("folder")
	limit := parseLimit(r, 50)

	results, err := s.engine.BrowseFolder(folder, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results, "count": len(results), "folder": folder})
}

func parseLimit(r *http.Request, def int) int {
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}

// --- images --------------------------------------------------------------

func (s *Server) handleImageThumb(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, apperror.New(apperror.KindInvalidInput, "invalid image id"))
		return
	}
	img, err := s.repo.FindByID(id)
	if err != nil {
		writeError(w, err)
		return
	}
	if img == nil {
		writeError(w, apperror.New(apperror.KindNotFound, "image not found"))
		return
	}

	if img.ThumbPath != "" {
		if data, err := os.ReadFile(img.ThumbPath); err == nil {
			w.Header().Set("Content-Type", "image/jpeg")
			w.Write(data)
			return
		}
	}

	http.ServeFile(w, r, img.FilePath)
}

func (s *Server) handleImageFull(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, apperror.New(apperror.KindInvalidInput, "invalid image id"))
		return
	}
	img, err := s.repo.FindByID(id)
	if err != nil {
		writeError(w, err)
		return
	}
	if img == nil {
		writeError(w, apperror.New(apperror.KindNotFound, "image not found"))
		return
	}
	http.ServeFile(w, r, img.FilePath)
}

type tagsPayload struct {
	Tags []string `json:"tags"`
}

// handleImageTags merges the posted tags array into the image's opaque
// metadata blob and keeps the is_loved column in sync with the reserved
// favorite tag (Open Question decision #3).
func (s *Server) handleImageTags(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, apperror.New(apperror.KindInvalidInput, "invalid image id"))
		return
	}
	var payload tagsPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, apperror.Wrap(apperror.KindInvalidInput, "malformed tags payload", err))
		return
	}

	img, err := s.repo.FindByID(id)
	if err != nil {
		writeError(w, err)
		return
	}
	if img == nil {
		writeError(w, apperror.New(apperror.KindNotFound, "image not found"))
		return
	}

	extra := map[string]any{}
	if img.ExtraJSON != "" {
		_ = json.Unmarshal([]byte(img.ExtraJSON), &extra)
	}
	extra["tags"] = payload.Tags

	merged, err := json.Marshal(extra)
	if err != nil {
		writeError(w, apperror.Wrap(apperror.KindIOFailed, "failed to encode tags", err))
		return
	}
	img.ExtraJSON = string(merged)

	for _, t := range payload.Tags {
		if t == favoriteTag {
			img.IsLoved = true
		}
	}
	if !containsTag(payload.Tags, favoriteTag) {
		img.IsLoved = false
	}

	if err := s.repo.Save(img); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func containsTag(tags []string, want string) bool {
	for _, t := range tags {
		if t == want {
			return true
		}
	}
	return false
}

func (s *Server) handleImageBlur(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, apperror.New(apperror.KindInvalidInput, "invalid image id"))
		return
	}
	blurred := r.URL.Query().Get("blurred") == "true"

	img, err := s.repo.FindByID(id)
	if err != nil {
		writeError(w, err)
		return
	}
	if img == nil {
		writeError(w, apperror.New(apperror.KindNotFound, "image not found"))
		return
	}

	img.IsBlurred = blurred
	if err := s.repo.Save(img); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "updated", "blurred": blurred})
}

// handleImageDelete removes the record only — the source file on disk is
// left untouched.
func (s *Server) handleImageDelete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, apperror.New(apperror.KindInvalidInput, "invalid image id"))
		return
	}

	img, err := s.repo.FindByID(id)
	if err != nil {
		writeError(w, err)
		return
	}
	if img == nil {
		writeError(w, apperror.New(apperror.KindNotFound, "image not found"))
		return
	}

	s.index.Remove(id)
	if err := s.thumbs.Delete(img.FilePath); err != nil {
		log.Warn("failed to delete thumbnail", "path", img.FilePath, "err", err)
	}
	if err := s.repo.Delete(id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// --- indexing --------------------------------------------------------------

func (s *Server) handleReindex(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	if s.reindexing {
		s.mu.Unlock()
		writeError(w, apperror.New(apperror.KindConflict, "a reindex is already running"))
		return
	}
	s.reindexing = true
	s.mu.Unlock()

	folders := s.folders()
	go func() {
		defer func() {
			s.mu.Lock()
			s.reindexing = false
			s.mu.Unlock()
		}()

		ctx := context.Background()
		if err := s.pipeline.Reindex(ctx, folders, nil); err != nil {
			log.Error("bulk reindex failed", "err", err)
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

func (s *Server) handleIndexStatus(w http.ResponseWriter, r *http.Request) {
	progress := s.pipeline.Progress()
	favoritesCount, err := s.repo.CountFavorites()
	if err != nil {
		writeError(w, err)
		return
	}
	totalIndexed, err := s.repo.CountWithEmbedding()
	if err != nil {
		writeError(w, err)
		return
	}

	logs, err := s.repo.RecentReindexLogs(1)
	if err != nil {
		writeError(w, err)
		return
	}
	lastRunTime := ""
	if len(logs) > 0 {
		lastRunTime = logs[0].ProcessedAt.Format(time.RFC3339)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"totalIndexed":   totalIndexed,
		"favoritesCount": favoritesCount,
		"processedCount": progress.ProcessedFiles,
		"errorCount":     progress.Errors,
		"currentFile":    progress.CurrentFile,
		"lastRunTime":    lastRunTime,
	})
}

// --- models ----------------------------------------------------------------

type modelsDownloadRequest struct {
	Repo string `json:"repo"`
}

func (s *Server) handleModelsDownload(w http.ResponseWriter, r *http.Request) {
	var req modelsDownloadRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	if err := s.fetcher.Start(r.Context(), req.Repo); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

type modelFileStatus struct {
	Name      string `json:"name"`
	Exists    bool   `json:"exists"`
	SizeBytes int64  `json:"sizeBytes"`
	Path      string `json:"path"`
}

func (s *Server) handleModelsStatus(w http.ResponseWriter, r *http.Request) {
	names := []string{"vision_model.onnx", "text_model.onnx", "tokenizer.json"}
	files := make([]modelFileStatus, 0, len(names))
	allPresent := true
	for _, name := range names {
		p := filepath.Join(s.modelDir, name)
		st := modelFileStatus{Name: name, Path: p}
		if info, err := os.Stat(p); err == nil {
			st.Exists = true
			st.SizeBytes = info.Size()
		}
		if !st.Exists || st.SizeBytes == 0 {
			allPresent = false
		}
		files = append(files, st)
	}

	status := "idle"
	message := ""
	if s.fetcher.IsRunning() {
		status = "downloading"
	} else if errMsg := s.fetcher.LastError(); errMsg != "" {
		status = "error"
		message = errMsg
	} else if allPresent {
		status = "ready"
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":  status,
		"message": message,
		"files":   files,
	})
}

func (s *Server) handleModelsProgress(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, apperror.New(apperror.KindIOFailed, "streaming unsupported"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	ch, unsubscribe := s.fetcher.Subscribe(16)
	defer unsubscribe()

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Minute)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, open := <-ch:
			if !open {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: progress\ndata: %s\n\n", data)
			flusher.Flush()
		}
	}
}

// --- settings: watched folders ---------------------------------------------

func (s *Server) handleFoldersList(w http.ResponseWriter, r *http.Request) {
	folders, err := s.repo.ListWatchedFolders()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"folders": folders})
}

type folderRequest struct {
	Path string `json:"path"`
}

func (s *Server) handleFoldersCreate(w http.ResponseWriter, r *http.Request) {
	var req folderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Path) == "" {
		writeError(w, apperror.New(apperror.KindInvalidInput, "folder path is required"))
		return
	}

	abs, err := filepath.Abs(req.Path)
	if err != nil {
		writeError(w, apperror.Wrap(apperror.KindInvalidInput, "invalid folder path", err))
		return
	}

	wf, err := s.repo.SaveWatchedFolder(abs)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, wf)
}

func (s *Server) handleFoldersDelete(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, apperror.New(apperror.KindInvalidInput, "invalid folder id"))
		return
	}
	if err := s.repo.DeactivateWatchedFolder(id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deactivated"})
}

// --- settings: token ---------------------------------------------------

const settingHFToken = "hf_token"

func (s *Server) handleTokenStatus(w http.ResponseWriter, r *http.Request) {
	sealed, ok, err := s.repo.GetSetting(settingHFToken)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"hasToken": ok && sealed != ""})
}

type tokenRequest struct {
	Token string `json:"token"`
}

func (s *Server) handleTokenSet(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Token) == "" {
		writeError(w, apperror.New(apperror.KindInvalidInput, "token is required"))
		return
	}

	sealed, err := s.vault.Encrypt(req.Token)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.repo.SetSetting(settingHFToken, sealed); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "saved"})
}

func (s *Server) handleTokenClear(w http.ResponseWriter, r *http.Request) {
	if err := s.repo.SetSetting(settingHFToken, ""); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

// --- settings: advanced ----------------------------------------------------

const (
	settingMinScore    = "advanced_min_score"
	settingAutoIndex   = "advanced_auto_index"
	settingExtractExif = "advanced_extract_exif"
)

type advancedSettings struct {
	MinScore    float64 `json:"minScore"`
	AutoIndex   bool    `json:"autoIndex"`
	ExtractExif bool    `json:"extractExif"`
}

func (s *Server) handleAdvancedGet(w http.ResponseWriter, r *http.Request) {
	out := advancedSettings{MinScore: 0.24, AutoIndex: true, ExtractExif: true}

	if v, ok, err := s.repo.GetSetting(settingMinScore); err == nil && ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			out.MinScore = f
		}
	}
	if v, ok, err := s.repo.GetSetting(settingAutoIndex); err == nil && ok {
		out.AutoIndex = v == "true"
	}
	if v, ok, err := s.repo.GetSetting(settingExtractExif); err == nil && ok {
		out.ExtractExif = v == "true"
	}

	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAdvancedSet(w http.ResponseWriter, r *http.Request) {
	var req advancedSettings
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperror.Wrap(apperror.KindInvalidInput, "malformed advanced settings payload", err))
		return
	}

	if err := errors.Join(
		s.repo.SetSetting(settingMinScore, strconv.FormatFloat(req.MinScore, 'f', -1, 64)),
		s.repo.SetSetting(settingAutoIndex, strconv.FormatBool(req.AutoIndex)),
		s.repo.SetSetting(settingExtractExif, strconv.FormatBool(req.ExtractExif)),
	); err != nil {
		writeError(w, err)
		return
	}

	s.pipeline.SetExtractExif(req.ExtractExif)
	if s.watcherCtl != nil {
		s.watcherCtl.SetAutoIndex(req.AutoIndex)
	}

	writeJSON(w, http.StatusOK, req)
}
