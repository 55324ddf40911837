package weights

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kalaiselvan-arumugam/imagegrep/internal/apperror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCreds struct {
	token string
	err   error
}

func (f fakeCreds) Token() (string, error) { return f.token, f.err }

type fakeLoader struct {
	called  bool
	vision  string
	text    string
	tok     string
	loadErr error
}

func (f *fakeLoader) LoadModels(visionPath, textPath, tokenizerPath string) error {
	f.called = true
	f.vision, f.text, f.tok = visionPath, textPath, tokenizerPath
	return f.loadErr
}

// collectEvents subscribes to f and relays every event it receives onto a
// buffered channel that is closed once the subscription ends.
func collectEvents(t *testing.T, f *Fetcher) (chan Event, func()) {
	ch, unsub := f.Subscribe(64)
	out := make(chan Event, 64)
	go func() {
		for ev := range ch {
			out <- ev
		}
		close(out)
	}()
	return out, unsub
}

func TestIsRunningFalseBeforeAnySession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("data"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	loader := &fakeLoader{}
	f := New(dir, "org/repo", fakeCreds{token: "hf_tok"}, loader)
	f.httpClient = srv.Client()

	assert.False(t, f.IsRunning())
}

func TestStartRejectsConcurrentSession(t *testing.T) {
	dir := t.TempDir()
	loader := &fakeLoader{}
	f := New(dir, "org/repo", fakeCreds{token: "hf_tok"}, loader)
	f.running.Store(true)

	err := f.Start(context.Background(), "")
	assert.Error(t, err)
}

func TestNonRetryableErrorStopsRetryLoop(t *testing.T) {
	base := apperror.New(apperror.KindAuthFailed, "authentication failed")
	wrapped := &nonRetryableError{base}

	assert.False(t, isRetryable(wrapped))
	assert.True(t, isRetryable(apperror.New(apperror.KindIOFailed, "transient")))
}

func TestDownloadSkipsExistingNonEmptyFile(t *testing.T) {
	dir := t.TempDir()
	localPath := filepath.Join(dir, "vision_model.onnx")
	require.NoError(t, os.WriteFile(localPath, []byte("already here"), 0o644))

	f := New(dir, "org/repo", fakeCreds{token: "hf_tok"}, &fakeLoader{})
	events, unsub := collectEvents(t, f)
	defer unsub()

	err := f.downloadFile(context.Background(), "org/repo", "onnx/vision_model.onnx", localPath, "hf_tok")
	require.NoError(t, err)

	select {
	case ev := <-events:
		assert.Equal(t, StatusSkipped, ev.Status)
	case <-time.After(time.Second):
		t.Fatal("expected a skipped event")
	}
}

func TestLastErrorEmptyBeforeAnySession(t *testing.T) {
	f := New(t.TempDir(), "org/repo", fakeCreds{token: "hf_tok"}, &fakeLoader{})
	assert.Equal(t, "", f.LastError())
}
