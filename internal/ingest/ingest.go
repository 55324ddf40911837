// Package ingest implements the per-file indexing procedure and the bulk
// reindex scan (C9): hash-based change detection, thumbnail generation,
// embedding, EXIF extraction, durable persistence, and keeping the
// in-memory vector index current.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/kalaiselvan-arumugam/imagegrep/internal/apperror"
	"github.com/kalaiselvan-arumugam/imagegrep/internal/imgwalk"
	"github.com/kalaiselvan-arumugam/imagegrep/internal/metadata"
	"github.com/kalaiselvan-arumugam/imagegrep/internal/store"
	"github.com/kalaiselvan-arumugam/imagegrep/internal/thumbnail"
	"github.com/kalaiselvan-arumugam/imagegrep/internal/vecmath"
	"github.com/kalaiselvan-arumugam/imagegrep/internal/vectorindex"
)

// Embedder is the narrow slice of the embedding service the pipeline needs.
// Satisfied by *embed.Service; kept as an interface so tests don't need a
// real ONNX runtime.
type Embedder interface {
	IsReady() bool
	EmbedImage(path string) ([]float32, error)
}

// Progress reports the state of an in-flight bulk reindex.
type Progress struct {
	TotalFiles     int
	ProcessedFiles int
	SkippedFiles   int
	Errors         int
	CurrentFile    string
	StartedAt      time.Time
}

// ProgressFunc receives a Progress snapshot after each processed file.
type ProgressFunc func(Progress)

// Pipeline owns the per-file indexing procedure and the bulk reindex scan.
type Pipeline struct {
	repo        store.Repository
	thumbs      *thumbnail.Service
	embedder    Embedder
	index       *vectorindex.Index
	extractExif bool

	mu       sync.Mutex
	progress Progress
}

// New returns a Pipeline wired to its durable store, thumbnail service,
// embedder, and in-memory vector index. extractExif mirrors the
// advanced_extract_exif toggle: when false, EXIF is never parsed and a file
// already hashed and embedded is skipped regardless of EXIF state.
func New(repo store.Repository, thumbs *thumbnail.Service, embedder Embedder, index *vectorindex.Index, extractExif bool) *Pipeline {
	return &Pipeline{repo: repo, thumbs: thumbs, embedder: embedder, index: index, extractExif: extractExif}
}

// SetExtractExif updates the live EXIF toggle, letting a running pipeline
// pick up a change to the advanced_extract_exif setting without a restart.
func (p *Pipeline) SetExtractExif(enabled bool) {
	p.mu.Lock()
	p.extractExif = enabled
	p.mu.Unlock()
}

// LoadIndex rebuilds the in-memory vector index from every embedded row in
// the durable store. Called at startup and after a full reindex.
func (p *Pipeline) LoadIndex() error {
	rows, err := p.repo.FindAllEmbeddings()
	if err != nil {
		return err
	}

	vrows := make([]vectorindex.Row, len(rows))
	for i, r := range rows {
		vrows[i] = vectorindex.Row{ID: r.ID, Bytes: r.Embedding}
	}
	p.index.LoadAll(vrows)
	log.Info("loaded embeddings into vector index", "count", len(vrows))
	return nil
}

// IndexFile runs the full per-file procedure: hash check, thumbnail,
// dimensions, embedding, metadata, persistence, vector index update, and
// reindex log entry. Returns the resulting reindex status.
func (p *Pipeline) IndexFile(path string) (store.ReindexStatus, error) {
	start := time.Now()
	absPath, err := filepath.Abs(path)
	if err != nil {
		return store.ReindexError, apperror.Wrap(apperror.KindIOFailed, "failed to resolve absolute path", err)
	}

	status, procErr := p.indexFile(absPath)

	entry := &store.ReindexLogEntry{
		FilePath:    absPath,
		Status:      status,
		ProcessedAt: time.Now().UTC(),
		DurationMs:  time.Since(start).Milliseconds(),
	}
	if procErr != nil {
		entry.ErrorMessage = procErr.Error()
	}
	if err := p.repo.AppendReindexLog(entry); err != nil {
		log.Warn("failed to append reindex log entry", "err", err)
	}

	return status, procErr
}

func (p *Pipeline) indexFile(absPath string) (store.ReindexStatus, error) {
	hash, size, modTime, err := hashFile(absPath)
	if err != nil {
		return store.ReindexError, apperror.Wrap(apperror.KindIOFailed, "failed to hash file", err)
	}

	existing, err := p.repo.FindByPath(absPath)
	if err != nil {
		return store.ReindexError, err
	}

	embedNeeded := existing == nil || existing.FileHash != hash || len(existing.Embedding) == 0

	p.mu.Lock()
	extractExif := p.extractExif
	p.mu.Unlock()
	exifNeeded := extractExif && !exifParsed(existing)

	if !embedNeeded && !exifNeeded {
		return store.ReindexSkipped, nil
	}

	img := existing
	if img == nil {
		img = &store.Image{}
	}

	var thumbPath string
	var width, height int
	var embeddingBytes []byte
	if embedNeeded {
		var thumbErr error
		thumbPath, thumbErr = p.thumbs.Create(absPath)
		if thumbErr != nil {
			log.Warn("failed to create thumbnail", "path", absPath, "err", thumbErr)
		}

		width, height = readDimensions(absPath)

		if p.embedder.IsReady() {
			vec, embedErr := p.embedder.EmbedImage(absPath)
			if embedErr != nil {
				log.Warn("failed to embed image", "path", absPath, "err", embedErr)
			} else {
				embeddingBytes = vecmath.ToBytes(vec)
			}
		}
	}

	if exifNeeded {
		applyMetadata(img, metadata.Extract(absPath))
	}

	img.FilePath = absPath
	img.FileSize = size
	img.FileHash = hash
	img.LastModified = modTime
	img.IndexedAt = time.Now().UTC()
	img.Status = store.StatusIndexed
	if embedNeeded {
		img.ThumbPath = thumbPath
		img.Width = width
		img.Height = height
	}
	if embeddingBytes != nil {
		img.Embedding = embeddingBytes
	}

	if err := p.repo.Save(img); err != nil {
		return store.ReindexError, err
	}

	if embeddingBytes != nil {
		p.index.Upsert(img.ID, vecmath.FromBytes(embeddingBytes))
	}

	return store.ReindexSuccess, nil
}

// RemoveDeleted drops an image that no longer exists on disk from the
// durable store, the vector index, and deletes its thumbnail.
func (p *Pipeline) RemoveDeleted(path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return apperror.Wrap(apperror.KindIOFailed, "failed to resolve absolute path", err)
	}

	existing, err := p.repo.FindByPath(absPath)
	if err != nil {
		return err
	}
	if existing == nil {
		return nil
	}

	p.index.Remove(existing.ID)
	if err := p.thumbs.Delete(absPath); err != nil {
		log.Warn("failed to delete thumbnail", "path", absPath, "err", err)
	}
	if err := p.repo.Delete(existing.ID); err != nil {
		return err
	}
	log.Info("removed deleted image from index", "path", absPath)
	return nil
}

// Reindex walks every folder and indexes every supported image found,
// reporting progress after each file, then reloads the vector index from
// the durable store for consistency.
func (p *Pipeline) Reindex(ctx context.Context, folders []string, onProgress ProgressFunc) error {
	p.mu.Lock()
	p.progress = Progress{StartedAt: time.Now()}
	p.mu.Unlock()

	var files []string
	for _, folder := range folders {
		w, err := imgwalk.New(folder)
		if err != nil {
			log.Warn("skipping folder", "folder", folder, "err", err)
			continue
		}
		if err := w.Walk(func(fi imgwalk.FileInfo) error {
			files = append(files, fi.Path)
			return nil
		}); err != nil {
			log.Warn("error walking folder", "folder", folder, "err", err)
		}
	}

	p.mu.Lock()
	p.progress.TotalFiles = len(files)
	p.mu.Unlock()
	log.Info("starting reindex", "files", len(files))

	for _, path := range files {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		p.mu.Lock()
		p.progress.CurrentFile = path
		p.mu.Unlock()

		status, err := p.IndexFile(path)

		p.mu.Lock()
		switch {
		case err != nil:
			p.progress.Errors++
		case status == store.ReindexSkipped:
			p.progress.SkippedFiles++
		default:
			p.progress.ProcessedFiles++
		}
		snapshot := p.progress
		p.mu.Unlock()

		if onProgress != nil {
			onProgress(snapshot)
		}
	}

	if err := p.LoadIndex(); err != nil {
		return err
	}

	log.Info("reindex complete", "processed", p.progress.ProcessedFiles, "skipped", p.progress.SkippedFiles, "errors", p.progress.Errors)
	return nil
}

// Progress returns a snapshot of the most recent (or in-flight) bulk
// reindex's counters.
func (p *Pipeline) Progress() Progress {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.progress
}

func hashFile(path string) (hash string, size int64, modTime time.Time, err error) {
	info, statErr := os.Stat(path)
	if statErr != nil {
		return "", 0, time.Time{}, statErr
	}

	f, openErr := os.Open(path)
	if openErr != nil {
		return "", 0, time.Time{}, openErr
	}
	defer f.Close()

	h := sha256.New()
	// Hash in 64 KiB chunks; the wrapper hides os.File's WriteTo so the
	// buffer is the one actually used.
	if _, copyErr := io.CopyBuffer(h, struct{ io.Reader }{f}, make([]byte, 64*1024)); copyErr != nil {
		return "", 0, time.Time{}, copyErr
	}

	return hex.EncodeToString(h.Sum(nil)), info.Size(), info.ModTime().UTC(), nil
}

func readDimensions(path string) (width, height int) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0
	}
	return cfg.Width, cfg.Height
}

// applyMetadata merges the result of an EXIF extraction into img: the parse
// is merged into ExtraJSON, keeping keys already there (such as user tags),
// and GPS coordinates are additionally copied onto their dedicated columns
// so folder/map-style queries don't need to unmarshal ExtraJSON to filter
// on location.
func applyMetadata(img *store.Image, fields metadata.Fields) {
	img.ExtraJSON = marshalMetadata(img.ExtraJSON, fields)
	if fields.HasGPS {
		img.Latitude = fields.Latitude
		img.Longitude = fields.Longitude
		img.HasGPS = true
	}
}

// marshalMetadata merges m into the existing ExtraJSON blob and always sets
// exif_parsed to true, so a file without readable EXIF is not extracted
// again on later passes.
func marshalMetadata(existing string, m metadata.Fields) string {
	extra := map[string]any{}
	_ = json.Unmarshal([]byte(existing), &extra)
	if m.Parsed {
		b, _ := json.Marshal(m)
		_ = json.Unmarshal(b, &extra)
	}
	extra["exif_parsed"] = true
	b, err := json.Marshal(extra)
	if err != nil {
		return existing
	}
	return string(b)
}

// exifParsed reports whether img's ExtraJSON already carries the
// exif_parsed marker written by marshalMetadata.
func exifParsed(img *store.Image) bool {
	if img == nil || img.ExtraJSON == "" {
		return false
	}
	var fields metadata.Fields
	if err := json.Unmarshal([]byte(img.ExtraJSON), &fields); err != nil {
		return false
	}
	return fields.Parsed
}
