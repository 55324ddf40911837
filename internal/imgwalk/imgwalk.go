// Package imgwalk walks a watched folder tree and yields the image files a
// bulk reindex should process, honoring .gitignore files and a default set
// of ignore patterns the way the rest of the stack's file walker does.
package imgwalk

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	gitignore "github.com/sabhiram/go-gitignore"
)

// imageExtensions mirrors the thumbnailer's supported-format list; only
// files with one of these extensions are yielded.
var imageExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true,
	".bmp": true, ".webp": true, ".tiff": true, ".tif": true,
}

// defaultIgnoreDirs are directory names skipped unconditionally during a
// walk, regardless of .gitignore contents.
var defaultIgnoreDirs = map[string]bool{
	".git":         true,
	".svn":         true,
	".hg":          true,
	"node_modules": true,
	"@eaDir":       true, // Synology thumbnail cache
	".thumbnails":  true,
	"$RECYCLE.BIN": true,
	"System Volume Information": true,
}

// IsSupportedImage reports whether path's extension is one this walker
// yields. Exposed for callers (the watcher) that need the same check
// outside of a full directory walk.
func IsSupportedImage(path string) bool {
	return imageExtensions[strings.ToLower(filepath.Ext(path))]
}

// FileInfo is a single discovered image file.
type FileInfo struct {
	Path         string
	RelativePath string
	Size         int64
	ModTime      int64
}

// WalkFunc is called once per discovered image file. Returning an error
// aborts the walk.
type WalkFunc func(FileInfo) error

// Walker enumerates image files under a root directory.
type Walker struct {
	root     string
	ignorer  *gitignore.GitIgnore
}

// New builds a Walker rooted at dir, loading a .gitignore from dir's root
// if one is present.
func New(dir string) (*Walker, error) {
	absRoot, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}

	var ignorer *gitignore.GitIgnore
	gitignorePath := filepath.Join(absRoot, ".gitignore")
	if _, err := os.Stat(gitignorePath); err == nil {
		ignorer, _ = gitignore.CompileIgnoreFile(gitignorePath)
	}

	return &Walker{root: absRoot, ignorer: ignorer}, nil
}

// Walk visits every supported image file under the root, skipping ignored
// directories entirely rather than descending into and filtering them.
func (w *Walker) Walk(fn WalkFunc) error {
	return filepath.WalkDir(w.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // best-effort: skip unreadable entries
		}

		rel, relErr := filepath.Rel(w.root, path)
		if relErr != nil {
			rel = path
		}

		if d.IsDir() {
			if path != w.root && (defaultIgnoreDirs[d.Name()] || strings.HasPrefix(d.Name(), ".")) {
				return filepath.SkipDir
			}
			if w.ignorer != nil && w.ignorer.MatchesPath(rel) {
				return filepath.SkipDir
			}
			return nil
		}

		if !imageExtensions[strings.ToLower(filepath.Ext(path))] {
			return nil
		}
		if w.ignorer != nil && w.ignorer.MatchesPath(rel) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}

		return fn(FileInfo{
			Path:         path,
			RelativePath: rel,
			Size:         info.Size(),
			ModTime:      info.ModTime().Unix(),
		})
	})
}
