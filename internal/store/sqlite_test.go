package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveAndFindByPath(t *testing.T) {
	s := newTestStore(t)

	img := &Image{
		FilePath:     "/photos/a.jpg",
		FileSize:     1024,
		FileHash:     "abc123",
		LastModified: time.Now().UTC(),
		IndexedAt:    time.Now().UTC(),
		Status:       StatusIndexed,
	}
	require.NoError(t, s.Save(img))
	assert.NotZero(t, img.ID)

	found, err := s.FindByPath("/photos/a.jpg")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, img.ID, found.ID)
	assert.Equal(t, StatusIndexed, found.Status)
}

func TestFindByPathMissingReturnsNil(t *testing.T) {
	s := newTestStore(t)
	found, err := s.FindByPath("/does/not/exist.jpg")
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestSaveUpdatesExistingRow(t *testing.T) {
	s := newTestStore(t)
	img := &Image{FilePath: "/photos/b.jpg", FileHash: "h1", LastModified: time.Now().UTC(), IndexedAt: time.Now().UTC(), Status: StatusPending}
	require.NoError(t, s.Save(img))

	img.Status = StatusIndexed
	img.FileHash = "h2"
	require.NoError(t, s.Save(img))

	found, err := s.FindByID(img.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusIndexed, found.Status)
	assert.Equal(t, "h2", found.FileHash)
}

func TestDeleteRemovesImage(t *testing.T) {
	s := newTestStore(t)
	img := &Image{FilePath: "/photos/c.jpg", LastModified: time.Now().UTC(), IndexedAt: time.Now().UTC(), Status: StatusIndexed}
	require.NoError(t, s.Save(img))
	require.NoError(t, s.Delete(img.ID))

	found, err := s.FindByID(img.ID)
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestFindAllEmbeddingsOnlyReturnsEmbedded(t *testing.T) {
	s := newTestStore(t)

	withEmbedding := &Image{FilePath: "/p/1.jpg", Embedding: []byte{1, 2, 3, 4}, LastModified: time.Now().UTC(), IndexedAt: time.Now().UTC(), Status: StatusIndexed}
	withoutEmbedding := &Image{FilePath: "/p/2.jpg", LastModified: time.Now().UTC(), IndexedAt: time.Now().UTC(), Status: StatusPending}
	require.NoError(t, s.Save(withEmbedding))
	require.NoError(t, s.Save(withoutEmbedding))

	rows, err := s.FindAllEmbeddings()
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, withEmbedding.ID, rows[0].ID)
}

func TestCountWithEmbedding(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Save(&Image{FilePath: "/p/1.jpg", Embedding: []byte{1}, LastModified: time.Now().UTC(), IndexedAt: time.Now().UTC(), Status: StatusIndexed}))
	require.NoError(t, s.Save(&Image{FilePath: "/p/2.jpg", LastModified: time.Now().UTC(), IndexedAt: time.Now().UTC(), Status: StatusPending}))

	count, err := s.CountWithEmbedding()
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestFavoritesRoundTrip(t *testing.T) {
	s := newTestStore(t)
	img := &Image{FilePath: "/p/loved.jpg", IsLoved: true, LastModified: time.Now().UTC(), IndexedAt: time.Now().UTC(), Status: StatusIndexed}
	require.NoError(t, s.Save(img))
	require.NoError(t, s.Save(&Image{FilePath: "/p/not-loved.jpg", LastModified: time.Now().UTC(), IndexedAt: time.Now().UTC(), Status: StatusIndexed}))

	count, err := s.CountFavorites()
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	favs, err := s.FindFavorites(ListImagesOptions{})
	require.NoError(t, err)
	require.Len(t, favs, 1)
	assert.Equal(t, "/p/loved.jpg", favs[0].FilePath)
}

func TestWatchedFolderLifecycle(t *testing.T) {
	s := newTestStore(t)

	wf, err := s.SaveWatchedFolder("/photos")
	require.NoError(t, err)
	require.NotNil(t, wf)
	assert.True(t, wf.Active)

	list, err := s.ListWatchedFolders()
	require.NoError(t, err)
	require.Len(t, list, 1)

	require.NoError(t, s.DeactivateWatchedFolder(wf.ID))
	list, err = s.ListWatchedFolders()
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.False(t, list[0].Active)
}

func TestReindexLogRoundTrip(t *testing.T) {
	s := newTestStore(t)

	entry := &ReindexLogEntry{
		FilePath:    "/photos/a.jpg",
		Status:      ReindexSuccess,
		ProcessedAt: time.Now().UTC(),
		DurationMs:  42,
	}
	require.NoError(t, s.AppendReindexLog(entry))
	assert.NotZero(t, entry.ID)

	logs, err := s.RecentReindexLogs(10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, ReindexSuccess, logs[0].Status)
	assert.Equal(t, int64(42), logs[0].DurationMs)
}

func TestSettingsRoundTrip(t *testing.T) {
	s := newTestStore(t)

	_, ok, err := s.GetSetting("hf_token")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.SetSetting("hf_token", "sealed-value"))
	value, ok, err := s.GetSetting("hf_token")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "sealed-value", value)

	require.NoError(t, s.SetSetting("hf_token", "updated-value"))
	value, _, err = s.GetSetting("hf_token")
	require.NoError(t, err)
	assert.Equal(t, "updated-value", value)
}

func TestFindByFilenameSubstring(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Save(&Image{FilePath: "/photos/sunset-beach.jpg", LastModified: time.Now().UTC(), IndexedAt: time.Now().UTC(), Status: StatusIndexed}))
	require.NoError(t, s.Save(&Image{FilePath: "/photos/mountain.jpg", LastModified: time.Now().UTC(), IndexedAt: time.Now().UTC(), Status: StatusIndexed}))

	results, err := s.FindByFilenameSubstring("sunset", ListImagesOptions{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "/photos/sunset-beach.jpg", results[0].FilePath)
}
