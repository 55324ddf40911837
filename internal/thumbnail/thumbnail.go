// Package thumbnail generates and manages the square-ish JPEG previews
// shown in the gallery grid (C6): deterministic MD5-named files, box-fit
// resized while preserving aspect ratio, stored under a single thumb
// directory the service owns outright.
package thumbnail

import (
	"crypto/md5"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"

	"github.com/kalaiselvan-arumugam/imagegrep/internal/apperror"
)

var supportedExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true,
	".bmp": true, ".webp": true, ".tiff": true, ".tif": true,
}

// Service creates and removes thumbnails under a single directory.
type Service struct {
	thumbDir string
	size     int
}

// New returns a Service that stores box-fit JPEG thumbnails no larger than
// size pixels on either side under thumbDir.
func New(thumbDir string, size int) *Service {
	return &Service{thumbDir: thumbDir, size: size}
}

// Init ensures the thumb directory exists.
func (s *Service) Init() error {
	if err := os.MkdirAll(s.thumbDir, 0o755); err != nil {
		return apperror.Wrap(apperror.KindIOFailed, "failed to create thumb directory", err)
	}
	return nil
}

// IsSupportedImage reports whether path's extension is one the thumbnailer
// knows how to decode.
func IsSupportedImage(path string) bool {
	return supportedExtensions[strings.ToLower(filepath.Ext(path))]
}

// FilenameFor returns the deterministic "{md5-hex}.jpg" thumbnail filename
// for an absolute image path.
func FilenameFor(absImagePath string) string {
	sum := md5.Sum([]byte(absImagePath))
	return hex.EncodeToString(sum[:]) + ".jpg"
}

// Create generates (or reuses an existing non-empty) thumbnail for
// imagePath and returns its absolute path on disk.
func (s *Service) Create(imagePath string) (string, error) {
	if !IsSupportedImage(imagePath) {
		return "", apperror.New(apperror.KindInvalidInput, "unsupported image extension: "+imagePath)
	}

	absPath, err := filepath.Abs(imagePath)
	if err != nil {
		return "", apperror.Wrap(apperror.KindIOFailed, "failed to resolve absolute path", err)
	}

	if err := s.Init(); err != nil {
		return "", err
	}

	thumbPath := filepath.Join(s.thumbDir, FilenameFor(absPath))
	if info, err := os.Stat(thumbPath); err == nil && info.Size() > 0 {
		return thumbPath, nil
	}

	img, err := imaging.Open(imagePath, imaging.AutoOrientation(true))
	if err != nil {
		return "", apperror.Wrap(apperror.KindInvalidInput, "failed to open image for thumbnailing", err)
	}

	resized := imaging.Fit(img, s.size, s.size, imaging.Linear)
	if err := imaging.Save(resized, thumbPath, imaging.JPEGQuality(85)); err != nil {
		return "", apperror.Wrap(apperror.KindIOFailed, "failed to write thumbnail", err)
	}
	return thumbPath, nil
}

// Delete removes the thumbnail for imagePath, if any.
func (s *Service) Delete(imagePath string) error {
	absPath, err := filepath.Abs(imagePath)
	if err != nil {
		return apperror.Wrap(apperror.KindIOFailed, "failed to resolve absolute path", err)
	}
	thumbPath := filepath.Join(s.thumbDir, FilenameFor(absPath))
	if err := os.Remove(thumbPath); err != nil && !os.IsNotExist(err) {
		return apperror.Wrap(apperror.KindIOFailed, "failed to delete thumbnail", err)
	}
	return nil
}
