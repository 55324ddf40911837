package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	_ "github.com/mattn/go-sqlite3"

	sqlitevec "github.com/asg017/sqlite-vec-go-bindings/cgo"

	"github.com/kalaiselvan-arumugam/imagegrep/internal/apperror"
)

const embeddingDimensions = 512

func init() {
	sqlitevec.Auto()
}

const timeLayout = time.RFC3339

// Repository is the durable storage surface every other component talks
// to. SQLiteStore is its only implementation.
type Repository interface {
	FindByPath(path string) (*Image, error)
	FindByID(id int64) (*Image, error)
	FindAllEmbeddings() ([]EmbeddingRow, error)
	Save(img *Image) error
	Delete(id int64) error
	CountWithEmbedding() (int, error)

	FindByTagSubstring(substr string, opts ListImagesOptions) ([]Image, error)
	FindByFilenameSubstring(substr string, opts ListImagesOptions) ([]Image, error)
	FindByFolderSubstring(substr string, opts ListImagesOptions) ([]Image, error)

	CountFavorites() (int, error)
	FindFavorites(opts ListImagesOptions) ([]Image, error)

	ListWatchedFolders() ([]WatchedFolder, error)
	SaveWatchedFolder(path string) (*WatchedFolder, error)
	DeactivateWatchedFolder(id int64) error

	AppendReindexLog(entry *ReindexLogEntry) error
	RecentReindexLogs(limit int) ([]ReindexLogEntry, error)

	GetSetting(key string) (string, bool, error)
	SetSetting(key, value string) error

	Close() error
}

// SQLiteStore implements Repository using SQLite (mattn/go-sqlite3). It also
// creates an optional sqlite-vec mirror table (image_vectors); Save never
// writes to it, and Delete only removes a matching row if one is there.
type SQLiteStore struct {
	db *sql.DB
	mu sync.RWMutex
}

// Open creates the data directory if needed and returns a ready SQLiteStore
// with schema migrations applied and WAL + foreign keys enabled.
func Open(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, apperror.Wrap(apperror.KindIOFailed, "failed to create database directory", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, apperror.Wrap(apperror.KindIOFailed, "failed to open database", err)
	}

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, apperror.Wrap(apperror.KindIOFailed, "failed to initialize schema", err)
	}
	if err := ensureVectorMirror(db, embeddingDimensions); err != nil {
		log.Warn("failed to create diagnostic vector mirror table", "err", err)
	}

	log.Debug("opened sqlite store", "path", dbPath)
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func scanImage(row rowScanner) (*Image, error) {
	var img Image
	var lastModified, indexedAt string
	var width, height sql.NullInt64
	var thumbPath, extraJSON sql.NullString
	var lat, lon sql.NullFloat64
	var isLoved, isBlurred int

	err := row.Scan(
		&img.ID, &img.FilePath, &thumbPath, &width, &height, &img.FileSize, &img.FileHash,
		&lastModified, &indexedAt, &img.Embedding, &extraJSON, &img.Status,
		&isLoved, &isBlurred, &lat, &lon,
	)
	if err != nil {
		return nil, err
	}

	img.ThumbPath = thumbPath.String
	img.Width = int(width.Int64)
	img.Height = int(height.Int64)
	img.ExtraJSON = extraJSON.String
	img.IsLoved = isLoved != 0
	img.IsBlurred = isBlurred != 0
	img.LastModified, _ = time.Parse(timeLayout, lastModified)
	img.IndexedAt, _ = time.Parse(timeLayout, indexedAt)
	if lat.Valid && lon.Valid {
		img.Latitude, img.Longitude, img.HasGPS = lat.Float64, lon.Float64, true
	}
	return &img, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

const imageColumns = `id, file_path, thumb_path, width, height, file_size, file_hash,
	last_modified, indexed_at, embedding, extra_json, status, is_loved, is_blurred, latitude, longitude`

func (s *SQLiteStore) FindByPath(path string) (*Image, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow("SELECT "+imageColumns+" FROM images WHERE file_path = ?", path)
	img, err := scanImage(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, apperror.Wrap(apperror.KindIOFailed, "failed to find image by path", err)
	}
	return img, nil
}

func (s *SQLiteStore) FindByID(id int64) (*Image, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow("SELECT "+imageColumns+" FROM images WHERE id = ?", id)
	img, err := scanImage(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, apperror.Wrap(apperror.KindIOFailed, "failed to find image by id", err)
	}
	return img, nil
}

func (s *SQLiteStore) FindAllEmbeddings() ([]EmbeddingRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query("SELECT id, embedding FROM images WHERE embedding IS NOT NULL")
	if err != nil {
		return nil, apperror.Wrap(apperror.KindIOFailed, "failed to load embeddings", err)
	}
	defer rows.Close()

	var out []EmbeddingRow
	for rows.Next() {
		var r EmbeddingRow
		if err := rows.Scan(&r.ID, &r.Embedding); err != nil {
			return nil, apperror.Wrap(apperror.KindIOFailed, "failed to scan embedding row", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Save inserts img if ID is zero, otherwise updates the existing row.
func (s *SQLiteStore) Save(img *Image) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var lat, lon any
	if img.HasGPS {
		lat, lon = img.Latitude, img.Longitude
	}

	if img.ID == 0 {
		res, err := s.db.Exec(`
			INSERT INTO images (file_path, thumb_path, width, height, file_size, file_hash,
				last_modified, indexed_at, embedding, extra_json, status, is_loved, is_blurred, latitude, longitude)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, img.FilePath, img.ThumbPath, img.Width, img.Height, img.FileSize, img.FileHash,
			img.LastModified.Format(timeLayout), img.IndexedAt.Format(timeLayout), img.Embedding,
			img.ExtraJSON, img.Status, boolToInt(img.IsLoved), boolToInt(img.IsBlurred), lat, lon)
		if err != nil {
			return apperror.Wrap(apperror.KindIOFailed, "failed to insert image", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return apperror.Wrap(apperror.KindIOFailed, "failed to read inserted image id", err)
		}
		img.ID = id
		return nil
	}

	_, err := s.db.Exec(`
		UPDATE images SET file_path = ?, thumb_path = ?, width = ?, height = ?, file_size = ?,
			file_hash = ?, last_modified = ?, indexed_at = ?, embedding = ?, extra_json = ?,
			status = ?, is_loved = ?, is_blurred = ?, latitude = ?, longitude = ?
		WHERE id = ?
	`, img.FilePath, img.ThumbPath, img.Width, img.Height, img.FileSize, img.FileHash,
		img.LastModified.Format(timeLayout), img.IndexedAt.Format(timeLayout), img.Embedding,
		img.ExtraJSON, img.Status, boolToInt(img.IsLoved), boolToInt(img.IsBlurred), lat, lon, img.ID)
	if err != nil {
		return apperror.Wrap(apperror.KindIOFailed, "failed to update image", err)
	}
	return nil
}

func (s *SQLiteStore) Delete(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec("DELETE FROM image_vectors WHERE image_id = ?", id); err != nil {
		log.Warn("failed to delete diagnostic vector mirror row", "err", err)
	}
	if _, err := s.db.Exec("DELETE FROM images WHERE id = ?", id); err != nil {
		return apperror.Wrap(apperror.KindIOFailed, "failed to delete image", err)
	}
	return nil
}

func (s *SQLiteStore) CountWithEmbedding() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM images WHERE embedding IS NOT NULL").Scan(&count)
	if err != nil {
		return 0, apperror.Wrap(apperror.KindIOFailed, "failed to count embedded images", err)
	}
	return count, nil
}

func (s *SQLiteStore) queryImages(query string, args ...any) ([]Image, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, apperror.Wrap(apperror.KindIOFailed, "failed to query images", err)
	}
	defer rows.Close()

	var out []Image
	for rows.Next() {
		img, err := scanImage(rows)
		if err != nil {
			return nil, apperror.Wrap(apperror.KindIOFailed, "failed to scan image row", err)
		}
		out = append(out, *img)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) FindByTagSubstring(substr string, opts ListImagesOptions) ([]Image, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	query := "SELECT " + imageColumns + " FROM images WHERE extra_json LIKE ? ESCAPE '\\' ORDER BY indexed_at DESC" + paginate(opts)
	return s.queryImages(query, "%"+escapeLike(substr)+"%")
}

func (s *SQLiteStore) FindByFilenameSubstring(substr string, opts ListImagesOptions) ([]Image, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	query := "SELECT " + imageColumns + " FROM images WHERE file_path LIKE ? ESCAPE '\\' ORDER BY indexed_at DESC" + paginate(opts)
	return s.queryImages(query, "%"+escapeLike(substr)+"%")
}

func (s *SQLiteStore) FindByFolderSubstring(substr string, opts ListImagesOptions) ([]Image, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	query := "SELECT " + imageColumns + " FROM images WHERE file_path LIKE ? ESCAPE '\\' ORDER BY indexed_at DESC" + paginate(opts)
	return s.queryImages(query, "%"+escapeLike(substr)+"%")
}

func (s *SQLiteStore) CountFavorites() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM images WHERE is_loved = 1").Scan(&count)
	if err != nil {
		return 0, apperror.Wrap(apperror.KindIOFailed, "failed to count favorites", err)
	}
	return count, nil
}

func (s *SQLiteStore) FindFavorites(opts ListImagesOptions) ([]Image, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	query := "SELECT " + imageColumns + " FROM images WHERE is_loved = 1 ORDER BY indexed_at DESC" + paginate(opts)
	return s.queryImages(query)
}

func (s *SQLiteStore) ListWatchedFolders() ([]WatchedFolder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query("SELECT id, folder_path, active, added_at, image_count FROM watched_folders ORDER BY folder_path")
	if err != nil {
		return nil, apperror.Wrap(apperror.KindIOFailed, "failed to list watched folders", err)
	}
	defer rows.Close()

	var out []WatchedFolder
	for rows.Next() {
		var wf WatchedFolder
		var active int
		var addedAt string
		if err := rows.Scan(&wf.ID, &wf.FolderPath, &active, &addedAt, &wf.ImageCount); err != nil {
			return nil, apperror.Wrap(apperror.KindIOFailed, "failed to scan watched folder", err)
		}
		wf.Active = active != 0
		wf.AddedAt, _ = time.Parse(timeLayout, addedAt)
		out = append(out, wf)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) SaveWatchedFolder(path string) (*WatchedFolder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	res, err := s.db.Exec(`
		INSERT INTO watched_folders (folder_path, active, added_at, image_count)
		VALUES (?, 1, ?, 0)
		ON CONFLICT(folder_path) DO UPDATE SET active = 1
	`, path, now.Format(timeLayout))
	if err != nil {
		return nil, apperror.Wrap(apperror.KindIOFailed, "failed to save watched folder", err)
	}

	id, err := res.LastInsertId()
	if err != nil || id == 0 {
		var existing WatchedFolder
		var active int
		var addedAt string
		err := s.db.QueryRow("SELECT id, folder_path, active, added_at, image_count FROM watched_folders WHERE folder_path = ?", path).
			Scan(&existing.ID, &existing.FolderPath, &active, &addedAt, &existing.ImageCount)
		if err != nil {
			return nil, apperror.Wrap(apperror.KindIOFailed, "failed to reload watched folder", err)
		}
		existing.Active = active != 0
		existing.AddedAt, _ = time.Parse(timeLayout, addedAt)
		return &existing, nil
	}

	return &WatchedFolder{ID: id, FolderPath: path, Active: true, AddedAt: now}, nil
}

func (s *SQLiteStore) DeactivateWatchedFolder(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec("UPDATE watched_folders SET active = 0 WHERE id = ?", id)
	if err != nil {
		return apperror.Wrap(apperror.KindIOFailed, "failed to deactivate watched folder", err)
	}
	return nil
}

func (s *SQLiteStore) AppendReindexLog(entry *ReindexLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var imageID any
	if entry.ImageID != 0 {
		imageID = entry.ImageID
	}

	res, err := s.db.Exec(`
		INSERT INTO reindex_log (image_id, file_path, status, processed_at, error_message, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?)
	`, imageID, entry.FilePath, entry.Status, entry.ProcessedAt.Format(timeLayout), nullableString(entry.ErrorMessage), entry.DurationMs)
	if err != nil {
		return apperror.Wrap(apperror.KindIOFailed, "failed to append reindex log entry", err)
	}
	id, _ := res.LastInsertId()
	entry.ID = id
	return nil
}

func (s *SQLiteStore) RecentReindexLogs(limit int) ([]ReindexLogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(`
		SELECT id, image_id, file_path, status, processed_at, error_message, duration_ms
		FROM reindex_log ORDER BY processed_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, apperror.Wrap(apperror.KindIOFailed, "failed to list reindex log", err)
	}
	defer rows.Close()

	var out []ReindexLogEntry
	for rows.Next() {
		var e ReindexLogEntry
		var imageID sql.NullInt64
		var processedAt string
		var errMsg sql.NullString
		if err := rows.Scan(&e.ID, &imageID, &e.FilePath, &e.Status, &processedAt, &errMsg, &e.DurationMs); err != nil {
			return nil, apperror.Wrap(apperror.KindIOFailed, "failed to scan reindex log entry", err)
		}
		e.ImageID = imageID.Int64
		e.ErrorMessage = errMsg.String
		e.ProcessedAt, _ = time.Parse(timeLayout, processedAt)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) GetSetting(key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var value sql.NullString
	err := s.db.QueryRow("SELECT setting_value FROM settings WHERE setting_key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, apperror.Wrap(apperror.KindIOFailed, "failed to read setting", err)
	}
	return value.String, true, nil
}

func (s *SQLiteStore) SetSetting(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO settings (setting_key, setting_value) VALUES (?, ?)
		ON CONFLICT(setting_key) DO UPDATE SET setting_value = excluded.setting_value
	`, key, value)
	if err != nil {
		return apperror.Wrap(apperror.KindIOFailed, "failed to write setting", err)
	}
	return nil
}

func paginate(opts ListImagesOptions) string {
	if opts.Limit <= 0 {
		return ""
	}
	clause := fmt.Sprintf(" LIMIT %d", opts.Limit)
	if opts.Offset > 0 {
		clause += fmt.Sprintf(" OFFSET %d", opts.Offset)
	}
	return clause
}

func escapeLike(s string) string {
	s = strings.ReplaceAll(s, "%", "\\%")
	s = strings.ReplaceAll(s, "_", "\\_")
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
