package speech_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/classtide/omnitutor/pkg/speech"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *openai.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client := openai.NewClient(
		option.WithBaseURL(srv.URL),
		option.WithAPIKey("test-key"),
		option.WithMaxRetries(0),
	)
	return &client
}

func TestWhisperTranscribe(t *testing.T) {
	var gotPath string
	var gotBody []byte
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotBody, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"text":"今天天气怎么样"}`))
	})

	tr := speech.NewWhisper(client, "", nil)
	text, err := tr.Transcribe(context.Background(), "memo.mp3", strings.NewReader("fake-audio-bytes"))
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if text != "今天天气怎么样" {
		t.Fatalf("text = %q", text)
	}
	if !strings.HasSuffix(gotPath, "/audio/transcriptions") {
		t.Fatalf("path = %q", gotPath)
	}
	body := string(gotBody)
	if !strings.Contains(body, "memo.mp3") {
		t.Fatal("multipart body missing the filename")
	}
	if !strings.Contains(body, "whisper-1") {
		t.Fatal("multipart body missing the default model")
	}
}

func TestWhisperEmptyTranscript(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"text":""}`))
	})

	tr := speech.NewWhisper(client, "", nil)
	if _, err := tr.Transcribe(context.Background(), "a.wav", strings.NewReader("x")); err == nil {
		t.Fatal("empty transcript must error")
	}
}

func TestWhisperServerError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"boom"}}`, http.StatusInternalServerError)
	})

	tr := speech.NewWhisper(client, "", nil)
	if _, err := tr.Transcribe(context.Background(), "a.wav", strings.NewReader("x")); err == nil {
		t.Fatal("server error must surface")
	}
}
