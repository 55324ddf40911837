// Package embed implements the CLIP dual-encoder embedding service (C5): it
// loads the downloaded vision/text ONNX graphs, preprocesses images and
// tokenized queries into the tensors those graphs expect, and returns
// L2-normalized 512-dimensional embeddings.
package embed

import (
	"image"
	"sync"

	"github.com/disintegration/imaging"

	"github.com/kalaiselvan-arumugam/imagegrep/internal/apperror"
	"github.com/kalaiselvan-arumugam/imagegrep/internal/tokenizer"
	"github.com/kalaiselvan-arumugam/imagegrep/internal/vecmath"
)

const (
	imageSize     = 224
	embeddingDim  = 512
	maxSeqLen     = tokenizer.MaxLength
)

// CLIP per-channel normalization constants (R, G, B order).
var (
	clipMean = [3]float32{0.48145466, 0.4578275, 0.40821073}
	clipStd  = [3]float32{0.26862954, 0.26130258, 0.27577711}
)

// VisionSession runs the vision_model.onnx graph on a preprocessed NCHW
// pixel tensor and returns the raw (un-normalized) image_embeds row.
type VisionSession interface {
	Run(pixelValues []float32) ([]float32, error)
	Close() error
}

// TextSession runs the text_model.onnx graph on tokenized input_ids and
// returns the raw (un-normalized) text_embeds row.
type TextSession interface {
	Run(inputIDs []int64) ([]float32, error)
	Close() error
}

// SessionFactory builds the two ONNX sessions from local file paths. The
// production factory is backed by onnxruntime_go; tests supply a fake.
type SessionFactory interface {
	OpenVision(path string) (VisionSession, error)
	OpenText(path string) (TextSession, error)
}

// Service is the embedding core. It is safe for concurrent use.
type Service struct {
	factory   SessionFactory
	tokenizer *tokenizer.Tokenizer

	mu      sync.RWMutex
	vision  VisionSession
	text    TextSession
	ready   bool
}

// New returns a Service that loads models through factory and tokenizes
// queries with tok.
func New(factory SessionFactory, tok *tokenizer.Tokenizer) *Service {
	return &Service{factory: factory, tokenizer: tok}
}

// LoadModels opens both ONNX sessions and the tokenizer vocabulary, closing
// any previously loaded sessions first. Satisfies weights.ModelLoader.
func (s *Service) LoadModels(visionPath, textPath, tokenizerPath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closeSessionsLocked()

	vision, err := s.factory.OpenVision(visionPath)
	if err != nil {
		return apperror.Wrap(apperror.KindIOFailed, "failed to load vision model", err)
	}
	text, err := s.factory.OpenText(textPath)
	if err != nil {
		vision.Close()
		return apperror.Wrap(apperror.KindIOFailed, "failed to load text model", err)
	}
	if err := s.tokenizer.Load(tokenizerPath); err != nil {
		vision.Close()
		text.Close()
		return err
	}

	s.vision = vision
	s.text = text
	s.ready = true
	return nil
}

func (s *Service) closeSessionsLocked() {
	s.ready = false
	if s.vision != nil {
		s.vision.Close()
		s.vision = nil
	}
	if s.text != nil {
		s.text.Close()
		s.text = nil
	}
}

// Close releases both ONNX sessions.
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeSessionsLocked()
	return nil
}

// IsReady reports whether both sessions and the tokenizer are loaded.
func (s *Service) IsReady() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ready && s.tokenizer.IsLoaded()
}

// EmbedImage computes a 512-dim L2-normalized embedding for the image file
// at path. Returns a not-ready error if models aren't loaded.
func (s *Service) EmbedImage(path string) ([]float32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	vision, ready := s.vision, s.ready

	if !ready {
		return nil, apperror.New(apperror.KindNotReady, "embedding service not ready")
	}

	img, err := imaging.Open(path)
	if err != nil {
		return nil, apperror.Wrap(apperror.KindInvalidInput, "could not decode image", err)
	}

	pixels := preprocess(img)
	raw, err := vision.Run(pixels)
	if err != nil {
		return nil, apperror.Wrap(apperror.KindIOFailed, "vision inference failed", err)
	}
	return vecmath.L2Normalize(raw), nil
}

// EmbedText computes a 512-dim L2-normalized embedding for a search query.
func (s *Service) EmbedText(text string) ([]float32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	textSession, ready := s.text, s.ready

	if !ready {
		return nil, apperror.New(apperror.KindNotReady, "embedding service not ready")
	}
	if text == "" {
		return nil, apperror.New(apperror.KindInvalidInput, "cannot embed empty text")
	}

	tokens, err := s.tokenizer.Tokenize(text)
	if err != nil {
		return nil, err
	}

	raw, err := textSession.Run(tokens.InputIDs[:])
	if err != nil {
		return nil, apperror.Wrap(apperror.KindIOFailed, "text inference failed", err)
	}
	return vecmath.L2Normalize(raw), nil
}

// preprocess center-crops img to a square, resizes it to imageSize with
// bilinear interpolation, and packs it into an NCHW (plane-major R,G,B)
// float32 tensor normalized with the CLIP mean/std constants.
func preprocess(img image.Image) []float32 {
	square := centerCropToSquare(img)
	resized := imaging.Resize(square, imageSize, imageSize, imaging.Linear)

	channelSize := imageSize * imageSize
	pixels := make([]float32, 3*channelSize)

	bounds := resized.Bounds()
	for row := 0; row < imageSize; row++ {
		for col := 0; col < imageSize; col++ {
			r, g, b, _ := resized.At(bounds.Min.X+col, bounds.Min.Y+row).RGBA()
			idx := row*imageSize + col
			pixels[idx] = (float32(r>>8)/255.0 - clipMean[0]) / clipStd[0]
			pixels[channelSize+idx] = (float32(g>>8)/255.0 - clipMean[1]) / clipStd[1]
			pixels[2*channelSize+idx] = (float32(b>>8)/255.0 - clipMean[2]) / clipStd[2]
		}
	}
	return pixels
}

func centerCropToSquare(img image.Image) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == h {
		return img
	}
	size := w
	if h < w {
		size = h
	}
	x := b.Min.X + (w-size)/2
	y := b.Min.Y + (h-size)/2
	return imaging.Crop(img, image.Rect(x, y, x+size, y+size))
}
