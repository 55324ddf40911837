// Package query implements semantic and fallback image search (C11):
// embed the query, run top-K vector search, hydrate and filter the hits
// against the durable store, and paginate the result.
package query

import (
	"encoding/json"
	"fmt"
	"math"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/kalaiselvan-arumugam/imagegrep/internal/apperror"
	"github.com/kalaiselvan-arumugam/imagegrep/internal/dateparse"
	"github.com/kalaiselvan-arumugam/imagegrep/internal/store"
	"github.com/kalaiselvan-arumugam/imagegrep/internal/vectorindex"
)

// defaultMinScore is the similarity cutoff applied to both text and image
// search when the caller doesn't specify one.
const defaultMinScore = 0.24

// favoriteTag is the reserved tag value that maps to the is_loved column
// instead of the opaque tags JSON array.
const favoriteTag = "__sys_favorite__"

const dateOnlyLayout = "2006-01-02"

// Embedder is the narrow slice of the embedding service the query engine
// needs. Satisfied by *embed.Service.
type Embedder interface {
	IsReady() bool
	EmbedText(text string) ([]float32, error)
	EmbedImage(path string) ([]float32, error)
}

// Filters narrows a vector or browse search after scoring.
type Filters struct {
	MinScore   *float64
	FolderPath string
	DateFrom   string
	DateTo     string
	Tags       []string
}

// Result is a single hydrated, scored search hit ready for the HTTP layer.
type Result struct {
	ID           int64
	FilePath     string
	FileName     string
	ThumbURL     string
	Score        float64
	Width        int
	Height       int
	FileSize     int64
	LastModified string
	IndexedAt    string
	ExtraJSON    string
	Status       store.ImageStatus
	Loved        bool
	Blurred      bool
}

// Engine answers search and browse queries against the durable store and
// the in-memory vector index.
type Engine struct {
	repo     store.Repository
	embedder Embedder
	index    *vectorindex.Index
}

// New returns an Engine wired to its durable store, embedder, and
// in-memory vector index.
func New(repo store.Repository, embedder Embedder, index *vectorindex.Index) *Engine {
	return &Engine{repo: repo, embedder: embedder, index: index}
}

// SearchByText runs a semantic text search, parsing any natural-language
// date phrase out of query first. Falls back to a filename substring match
// when the embedding service isn't ready.
func (e *Engine) SearchByText(query string, filters Filters, limit, offset int) ([]Result, error) {
	parsed := dateparse.Parse(query)
	if filters.DateFrom == "" {
		filters.DateFrom = parsed.DateFrom
	}
	if filters.DateTo == "" {
		filters.DateTo = parsed.DateTo
	}
	cleanQuery := parsed.CleanQuery

	if !e.embedder.IsReady() {
		log.Warn("embedding service not ready, falling back to filename search")
		return e.fallbackFilenameSearch(cleanQuery, filters, limit, offset)
	}

	vec, err := e.embedder.EmbedText(cleanQuery)
	if err != nil {
		log.Warn("failed to embed query, falling back to filename search", "query", cleanQuery, "err", err)
		return e.fallbackFilenameSearch(cleanQuery, filters, limit, offset)
	}

	return e.runVectorSearch(vec, filters, limit, offset)
}

// SearchByImage finds images visually similar to the image at imagePath.
func (e *Engine) SearchByImage(imagePath string, filters Filters, limit, offset int) ([]Result, error) {
	if !e.embedder.IsReady() {
		return nil, apperror.New(apperror.KindNotReady, "embedding models are not loaded yet")
	}

	vec, err := e.embedder.EmbedImage(imagePath)
	if err != nil {
		return nil, apperror.Wrap(apperror.KindInvalidInput, "could not process the uploaded image", err)
	}

	return e.runVectorSearch(vec, filters, limit, offset)
}

// runVectorSearch performs the shared embed→top-K→hydrate→filter pipeline
// for both text and image search.
func (e *Engine) runVectorSearch(queryVec []float32, filters Filters, limit, offset int) ([]Result, error) {
	if filters.MinScore == nil {
		d := defaultMinScore
		filters.MinScore = &d
	}

	fetchK := limit * 4
	if fetchK < 100 {
		fetchK = 100
	}
	if fetchK > 2000 {
		fetchK = 2000
	}

	hits := e.index.TopK(queryVec, fetchK, offset)
	if len(hits) == 0 {
		return []Result{}, nil
	}

	results := make([]Result, 0, limit)
	for _, hit := range hits {
		img, err := e.repo.FindByID(hit.ID)
		if err != nil {
			return nil, err
		}
		if img == nil {
			continue
		}
		if !passesFilters(img, hit.Score, filters) {
			continue
		}

		results = append(results, toResult(img, hit.Score))
		if len(results) >= limit {
			break
		}
	}

	return results, nil
}

// fallbackFilenameSearch answers a query by case-insensitive substring
// match on the file path when semantic search isn't available, returning
// most-recently-indexed images first when query is blank.
func (e *Engine) fallbackFilenameSearch(query string, filters Filters, limit, offset int) ([]Result, error) {
	score := 0.0
	if strings.TrimSpace(query) != "" {
		score = 0.5
	}

	imgs, err := e.repo.FindByFilenameSubstring(query, store.ListImagesOptions{Limit: limit, Offset: offset})
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(imgs))
	for i := range imgs {
		img := &imgs[i]
		if !passesFilters(img, score, filters) {
			continue
		}
		results = append(results, toResult(img, score))
	}
	return results, nil
}

// SearchByTag finds images whose tags array contains tag, or — for the
// reserved favorite tag — whose is_loved flag is set.
func (e *Engine) SearchByTag(tag string, limit int) ([]Result, error) {
	if tag == favoriteTag {
		imgs, err := e.repo.FindFavorites(store.ListImagesOptions{Limit: limit})
		if err != nil {
			return nil, err
		}
		return toResults(imgs, 1.0), nil
	}

	imgs, err := e.repo.FindByTagSubstring(fmt.Sprintf("%q", tag), store.ListImagesOptions{Limit: limit})
	if err != nil {
		return nil, err
	}
	return toResults(imgs, 1.0), nil
}

// BrowseFolder lists images whose path contains folderPath.
func (e *Engine) BrowseFolder(folderPath string, limit int) ([]Result, error) {
	imgs, err := e.repo.FindByFolderSubstring(folderPath, store.ListImagesOptions{Limit: limit})
	if err != nil {
		return nil, err
	}
	return toResults(imgs, 0.0), nil
}

// passesFilters applies the post-scoring predicate set: minimum score,
// folder substring, inclusive date range against last-modified, and tag
// membership (including the reserved favorite tag).
func passesFilters(img *store.Image, score float64, filters Filters) bool {
	if filters.MinScore != nil && score < *filters.MinScore {
		return false
	}

	if filters.FolderPath != "" && !strings.Contains(img.FilePath, filters.FolderPath) {
		return false
	}

	if filters.DateFrom != "" {
		from, err := time.Parse(dateOnlyLayout, filters.DateFrom)
		if err == nil && img.LastModified.Before(from) {
			return false
		}
	}
	if filters.DateTo != "" {
		to, err := time.Parse(dateOnlyLayout, filters.DateTo)
		if err == nil {
			to = to.Add(24*time.Hour - time.Second) // inclusive end-of-day
			if img.LastModified.After(to) {
				return false
			}
		}
	}

	if len(filters.Tags) > 0 {
		wantsFavorite := false
		other := make([]string, 0, len(filters.Tags))
		for _, t := range filters.Tags {
			if t == favoriteTag {
				wantsFavorite = true
				continue
			}
			other = append(other, t)
		}
		if wantsFavorite {
			if !img.IsLoved {
				return false
			}
			if len(other) == 0 {
				return true
			}
		}

		if !hasAllTags(img.ExtraJSON, other) {
			return false
		}
	}

	return true
}

type extraTags struct {
	Tags []string `json:"tags"`
}

func hasAllTags(extraJSON string, required []string) bool {
	if len(required) == 0 {
		return true
	}
	if extraJSON == "" {
		return false
	}

	var parsed extraTags
	if err := json.Unmarshal([]byte(extraJSON), &parsed); err != nil {
		return false
	}

	for _, want := range required {
		found := false
		for _, have := range parsed.Tags {
			if strings.EqualFold(have, want) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func toResult(img *store.Image, score float64) Result {
	return Result{
		ID:           img.ID,
		FilePath:     img.FilePath,
		FileName:     filepath.Base(img.FilePath),
		ThumbURL:     fmt.Sprintf("/images/%d/thumb", img.ID),
		Score:        math.Round(score*10000) / 10000,
		Width:        img.Width,
		Height:       img.Height,
		FileSize:     img.FileSize,
		LastModified: formatTimeOrEmpty(img.LastModified),
		IndexedAt:    formatTimeOrEmpty(img.IndexedAt),
		ExtraJSON:    img.ExtraJSON,
		Status:       img.Status,
		Loved:        img.IsLoved,
		Blurred:      img.IsBlurred,
	}
}

func toResults(imgs []store.Image, score float64) []Result {
	results := make([]Result, len(imgs))
	for i := range imgs {
		results[i] = toResult(&imgs[i], score)
	}
	return results
}

func formatTimeOrEmpty(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}
