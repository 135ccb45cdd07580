package openai

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/MrWong99/learnchars/pkg/provider/stt"
)

func TestNew_EmptyAPIKey(t *testing.T) {
	t.Parallel()

	if _, err := New("", ""); err == nil {
		t.Fatal("expected error for empty API key")
	}
}

func TestNew_DefaultModel(t *testing.T) {
	t.Parallel()

	tr, err := New("sk-test", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tr.Model() != string(DefaultModel) {
		t.Errorf("expected default model %s, got %s", DefaultModel, tr.Model())
	}
}

func TestIsoLanguage(t *testing.T) {
	t.Parallel()

	cases := map[string]string{"zh-CN": "zh", "fr": "fr", "": "", "!!": ""}
	for in, want := range cases {
		if got := isoLanguage(in); got != want {
			t.Errorf("isoLanguage(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestTranscribe_AgainstFakeAPI(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.URL.Path != "/audio/transcriptions" {
			http.NotFound(w, r)
			return
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if got := r.FormValue("language"); got != "zh" {
			http.Error(w, "language "+got, http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"text":" 十四 "}`))
	}))
	defer srv.Close()

	tr, err := New("sk-test", "", WithBaseURL(srv.URL+"/"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	got, err := tr.Transcribe(context.Background(), make([]byte, 320), stt.StreamConfig{Language: "zh-CN", Keywords: []stt.KeywordBoost{{Keyword: "十四"}}})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if got.Text != "十四" || !got.IsFinal {
		t.Errorf("transcript = %+v", got)
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
}

func TestTranscribe_Unauthorized(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"bad key","type":"invalid_request_error"}}`))
	}))
	defer srv.Close()

	tr, _ := New("sk-bad", "", WithBaseURL(srv.URL+"/"))
	_, err := tr.Transcribe(context.Background(), make([]byte, 320), stt.StreamConfig{})
	if !errors.Is(err, stt.ErrNotAuthorized) {
		t.Fatalf("err = %v, want ErrNotAuthorized", err)
	}
}
