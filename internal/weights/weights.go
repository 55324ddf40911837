// Package weights implements the model weights fetcher (C3): it downloads
// the CLIP vision/text ONNX graphs and tokenizer vocabulary from a Hugging
// Face repository, verifies them while streaming, and hands the local paths
// to a ModelLoader once every file is in place.
package weights

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"github.com/kalaiselvan-arumugam/imagegrep/internal/apperror"
)

const (
	hfBaseURL = "https://huggingface.co/%s/resolve/main/%s"

	bufferSize     = 512 * 1024
	maxRetries     = 3
	connectTimeout = 30 * time.Second
	readTimeout    = 120 * time.Second
	reportEvery    = 5 * 1024 * 1024

	initialBackoff = 2 * time.Second
	maxBackoff      = 30 * time.Second
)

// modelFile pairs a Hugging Face repo-relative path with the local filename
// it is saved under inside the configured model directory.
type modelFile struct {
	hfPath    string
	localName string
}

// LocalPaths returns the vision model, text model, and tokenizer paths a
// ModelLoader expects once modelDir holds a complete download.
func LocalPaths(modelDir string) (visionPath, textPath, tokenizerPath string) {
	return filepath.Join(modelDir, modelFiles[0].localName),
		filepath.Join(modelDir, modelFiles[1].localName),
		filepath.Join(modelDir, modelFiles[2].localName)
}

var modelFiles = []modelFile{
	{"onnx/vision_model.onnx", "vision_model.onnx"},
	{"onnx/text_model.onnx", "text_model.onnx"},
	{"tokenizer.json", "tokenizer.json"},
}

// Status is a download lifecycle stage, broadcast to progress subscribers.
type Status string

const (
	StatusStarted      Status = "started"
	StatusDownloading  Status = "downloading"
	StatusRetrying     Status = "retrying"
	StatusFileComplete Status = "file-complete"
	StatusSkipped      Status = "skipped"
	StatusLoading      Status = "loading"
	StatusReady        Status = "ready"
	StatusError        Status = "error"
)

// Event is a single progress update.
type Event struct {
	Status     Status
	Message    string
	File       string
	Downloaded int64
	Total      int64
}

// ModelLoader is the narrow surface the embedding service exposes, invoked
// once all model files are on disk. Kept as an interface so the fetcher can
// be tested without a real ONNX runtime.
type ModelLoader interface {
	LoadModels(visionPath, textPath, tokenizerPath string) error
}

// CredentialSource resolves the bearer token used to authenticate against
// the configured Hugging Face repository.
type CredentialSource interface {
	Token() (string, error)
}

// Fetcher coordinates a single non-reentrant download session and fans out
// progress events to any number of subscribers.
type Fetcher struct {
	modelDir   string
	defaultRepo string
	creds      CredentialSource
	loader     ModelLoader
	httpClient *http.Client

	running  atomic.Bool
	lastErrMu sync.Mutex
	lastErr   string

	subMu sync.Mutex
	subs  map[chan Event]struct{}
}

// New returns a Fetcher that saves downloaded files under modelDir and loads
// them via loader once complete.
func New(modelDir, defaultRepo string, creds CredentialSource, loader ModelLoader) *Fetcher {
	return &Fetcher{
		modelDir:    modelDir,
		defaultRepo: defaultRepo,
		creds:       creds,
		loader:      loader,
		httpClient:  &http.Client{Timeout: readTimeout},
		subs:        make(map[chan Event]struct{}),
	}
}

// IsRunning reports whether a download session is currently in flight.
func (f *Fetcher) IsRunning() bool {
	return f.running.Load()
}

// LastError returns the message from the most recently failed session, if
// any session has failed since the process started.
func (f *Fetcher) LastError() string {
	f.lastErrMu.Lock()
	defer f.lastErrMu.Unlock()
	return f.lastErr
}

// Subscribe registers a bounded channel that receives future events; an
// event published while the channel's buffer is full is dropped for that
// subscriber, which stays registered. Callers must call the returned
// unsubscribe function when done listening.
func (f *Fetcher) Subscribe(buf int) (<-chan Event, func()) {
	ch := make(chan Event, buf)
	f.subMu.Lock()
	f.subs[ch] = struct{}{}
	f.subMu.Unlock()

	unsubscribe := func() {
		f.subMu.Lock()
		delete(f.subs, ch)
		f.subMu.Unlock()
		close(ch)
	}
	return ch, unsubscribe
}

func (f *Fetcher) broadcast(ev Event) {
	f.subMu.Lock()
	defer f.subMu.Unlock()
	for ch := range f.subs {
		select {
		case ch <- ev:
		default:
			// Slow subscriber: drop rather than block the download.
		}
	}
}

// Start triggers a download session in the background. repoOverride, if
// non-empty, is used instead of the configured default repository. Returns
// an error immediately if a session is already running.
func (f *Fetcher) Start(ctx context.Context, repoOverride string) error {
	if !f.running.CompareAndSwap(false, true) {
		return apperror.New(apperror.KindConflict, "a model download is already in progress")
	}

	go f.run(ctx, repoOverride)
	return nil
}

func (f *Fetcher) run(ctx context.Context, repoOverride string) {
	defer f.running.Store(false)

	repo := f.defaultRepo
	if s := strings.TrimSpace(repoOverride); s != "" {
		repo = s
	}

	log.Info("starting model download", "repo", repo)
	f.broadcast(Event{Status: StatusStarted, Message: "starting download from " + repo})

	if err := f.download(ctx, repo); err != nil {
		f.lastErrMu.Lock()
		f.lastErr = err.Error()
		f.lastErrMu.Unlock()
		log.Error("model download failed", "err", err)
		f.broadcast(Event{Status: StatusError, Message: "download failed: " + err.Error()})
		return
	}

	f.lastErrMu.Lock()
	f.lastErr = ""
	f.lastErrMu.Unlock()
	log.Info("model download complete")
}

func (f *Fetcher) download(ctx context.Context, repo string) error {
	token, err := f.creds.Token()
	if err != nil {
		return err
	}
	if token == "" {
		return apperror.New(apperror.KindMissingRemote, "no Hugging Face token set; save a token first")
	}

	if err := os.MkdirAll(f.modelDir, 0o755); err != nil {
		return apperror.Wrap(apperror.KindIOFailed, "failed to create model directory", err)
	}

	for _, mf := range modelFiles {
		localPath := filepath.Join(f.modelDir, mf.localName)
		if err := f.downloadWithRetry(ctx, repo, mf.hfPath, localPath, token); err != nil {
			return err
		}
	}

	f.broadcast(Event{Status: StatusLoading, Message: "loading models into memory"})
	visionPath := filepath.Join(f.modelDir, "vision_model.onnx")
	textPath := filepath.Join(f.modelDir, "text_model.onnx")
	tokenizerPath := filepath.Join(f.modelDir, "tokenizer.json")
	if err := f.loader.LoadModels(visionPath, textPath, tokenizerPath); err != nil {
		return apperror.Wrap(apperror.KindIOFailed, "failed to load models", err)
	}

	f.broadcast(Event{Status: StatusReady, Message: "all models downloaded and loaded"})
	return nil
}

func (f *Fetcher) downloadWithRetry(ctx context.Context, repo, hfPath, localPath, token string) error {
	delay := initialBackoff
	var lastErr error

	for attempt := 1; attempt <= maxRetries; attempt++ {
		err := f.downloadFile(ctx, repo, hfPath, localPath, token)
		if err == nil {
			return nil
		}
		lastErr = err

		if !isRetryable(err) {
			return err
		}

		if attempt < maxRetries {
			log.Warn("download attempt failed, retrying", "file", hfPath, "attempt", attempt, "of", maxRetries, "err", err)
			f.broadcast(Event{
				Status:  StatusRetrying,
				Message: fmt.Sprintf("retrying %s (attempt %d/%d)...", hfPath, attempt+1, maxRetries),
				File:    hfPath,
			})
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
			delay *= 2
			if delay > maxBackoff {
				delay = maxBackoff
			}
		}
	}
	return apperror.Wrapf(apperror.KindIOFailed, lastErr, "failed to download %s after %d attempts", hfPath, maxRetries)
}

// nonRetryableError marks a response-code failure the retry loop should not
// retry (auth failure, missing file).
type nonRetryableError struct{ err error }

func (e *nonRetryableError) Error() string { return e.err.Error() }
func (e *nonRetryableError) Unwrap() error { return e.err }

func isRetryable(err error) bool {
	var nr *nonRetryableError
	return !errors.As(err, &nr)
}

func (f *Fetcher) downloadFile(ctx context.Context, repo, hfPath, localPath, token string) error {
	if info, err := os.Stat(localPath); err == nil && info.Size() > 0 {
		log.Info("file already downloaded, skipping", "path", localPath, "bytes", info.Size())
		f.broadcast(Event{
			Status:     StatusSkipped,
			Message:    "already downloaded: " + filepath.Base(localPath),
			File:       hfPath,
			Downloaded: info.Size(),
			Total:      info.Size(),
		})
		return nil
	}

	url := fmt.Sprintf(hfBaseURL, repo, hfPath)
	reqCtx, cancel := context.WithTimeout(ctx, connectTimeout+readTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return apperror.Wrap(apperror.KindIOFailed, "failed to build request", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("User-Agent", "ImageGrep/1.0 (Go)")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return apperror.Wrap(apperror.KindIOFailed, "request failed", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusUnauthorized:
		return &nonRetryableError{apperror.New(apperror.KindAuthFailed, "authentication failed (401): check your Hugging Face token")}
	case http.StatusNotFound:
		return &nonRetryableError{apperror.New(apperror.KindMissingRemote, "file not found on Hugging Face (404): "+hfPath)}
	case http.StatusOK:
		// fall through
	default:
		return apperror.New(apperror.KindIOFailed, fmt.Sprintf("unexpected HTTP response %d for %s", resp.StatusCode, hfPath))
	}

	totalBytes := resp.ContentLength
	fileName := filepath.Base(localPath)
	f.broadcast(Event{Status: StatusDownloading, Message: "downloading " + fileName, File: hfPath, Total: totalBytes})

	tempPath := localPath + ".tmp"
	out, err := os.OpenFile(tempPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return apperror.Wrap(apperror.KindIOFailed, "failed to create temp file", err)
	}

	hasher := sha256.New()
	buf := make([]byte, bufferSize)
	var bytesRead, lastReported int64

	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := out.Write(buf[:n]); werr != nil {
				out.Close()
				os.Remove(tempPath)
				return apperror.Wrap(apperror.KindIOFailed, "failed to write temp file", werr)
			}
			hasher.Write(buf[:n])
			bytesRead += int64(n)

			if bytesRead-lastReported >= reportEvery || bytesRead == totalBytes {
				f.broadcast(Event{Status: StatusDownloading, Message: fileName, File: hfPath, Downloaded: bytesRead, Total: totalBytes})
				lastReported = bytesRead
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			out.Close()
			os.Remove(tempPath)
			return apperror.Wrap(apperror.KindIOFailed, "download stream failed", readErr)
		}
	}
	out.Close()

	if totalBytes > 0 && bytesRead != totalBytes {
		os.Remove(tempPath)
		return apperror.New(apperror.KindIOFailed, fmt.Sprintf("download incomplete: expected %d bytes but got %d", totalBytes, bytesRead))
	}

	if err := os.Rename(tempPath, localPath); err != nil {
		os.Remove(tempPath)
		return apperror.Wrap(apperror.KindIOFailed, "failed to move downloaded file into place", err)
	}

	sha256hex := hex.EncodeToString(hasher.Sum(nil))
	log.Info("downloaded file", "file", fileName, "bytes", bytesRead, "sha256", sha256hex)
	f.broadcast(Event{Status: StatusFileComplete, Message: "completed: " + fileName, File: hfPath, Downloaded: bytesRead, Total: bytesRead})
	return nil
}
