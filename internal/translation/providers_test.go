package translation

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/live-translator/internal/resilience"
)

func TestGoogleTranslator_Translate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("client") != "gtx" || q.Get("dt") != "t" {
			t.Errorf("Unexpected query: %s", r.URL.RawQuery)
		}
		if q.Get("sl") != "zh" || q.Get("tl") != "en" {
			t.Errorf("Expected zh>en, got %s>%s", q.Get("sl"), q.Get("tl"))
		}
		if q.Get("q") != "你好。再见。" {
			t.Errorf("Unexpected q: %s", q.Get("q"))
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[[["Hello. ","你好。",null,null,1],["Goodbye.","再见。",null,null,1]],null,"zh-CN"]`))
	}))
	defer server.Close()

	g := NewGoogleTranslator(server.URL, server.Client())
	out, err := g.Translate(context.Background(), "你好。再见。", "zh", "en")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if out != "Hello. Goodbye." {
		t.Errorf("Expected joined sentences, got %q", out)
	}
}

func TestGoogleTranslator_Errors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		retryable bool
	}{
		{"server error", http.StatusServiceUnavailable, "", true},
		{"rate limited", http.StatusTooManyRequests, "", true},
		{"bad request", http.StatusBadRequest, "", false},
		{"invalid json", http.StatusOK, "<html>", false},
		{"empty translation", http.StatusOK, `[[]]`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			_, err := NewGoogleTranslator(server.URL, server.Client()).Translate(context.Background(), "x", "zh", "en")
			if err == nil {
				t.Fatal("Expected error")
			}
			if !errors.Is(err, ErrTransient) {
				t.Errorf("Expected ErrTransient, got %v", err)
			}
			if resilience.IsRetryable(err) != tt.retryable {
				t.Errorf("Expected retryable=%v, got %v", tt.retryable, resilience.IsRetryable(err))
			}
		})
	}
}

func TestGoogleTranslator_NetworkErrorIsRetryable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	_, err := NewGoogleTranslator(url, nil).Translate(context.Background(), "x", "zh", "en")
	if !errors.Is(err, ErrTransient) || !resilience.IsRetryable(err) {
		t.Errorf("Expected retryable transient error, got %v", err)
	}
}

func TestMyMemoryTranslator_Translate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("langpair") != "zh|en" {
			t.Errorf("Expected langpair zh|en, got %s", q.Get("langpair"))
		}
		if q.Get("q") != "你好" {
			t.Errorf("Unexpected q: %s", q.Get("q"))
		}
		w.Write([]byte(`{"responseData":{"translatedText":" Hello ","match":1},"responseStatus":200,"responseDetails":""}`))
	}))
	defer server.Close()

	out, err := NewMyMemoryTranslator(server.URL, server.Client()).Translate(context.Background(), "你好", "zh", "en")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if out != "Hello" {
		t.Errorf("Expected trimmed translation, got %q", out)
	}
}

func TestMyMemoryTranslator_StatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"responseData":{"translatedText":"INVALID LANGUAGE PAIR"},"responseStatus":"403","responseDetails":"INVALID LANGUAGE PAIR"}`))
	}))
	defer server.Close()

	_, err := NewMyMemoryTranslator(server.URL, server.Client()).Translate(context.Background(), "x", "zz", "en")
	if !errors.Is(err, ErrTransient) {
		t.Errorf("Expected ErrTransient, got %v", err)
	}
}

type scriptedTranslator struct {
	calls atomic.Int32
	errs  []error
	out   string
}

func (s *scriptedTranslator) Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error) {
	n := int(s.calls.Add(1)) - 1
	if n < len(s.errs) && s.errs[n] != nil {
		return "", s.errs[n]
	}
	return s.out, nil
}

func fastRetry(attempts int) *resilience.RetryConfig {
	return &resilience.RetryConfig{
		MaxAttempts:       attempts,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        5 * time.Millisecond,
		BackoffMultiplier: 2.0,
	}
}

func TestFallback_RetriesTransientBeforeFallingBack(t *testing.T) {
	transient := resilience.NewRetryableError(ErrTransient)
	primary := &scriptedTranslator{errs: []error{transient}, out: "primary"}
	backup := &scriptedTranslator{out: "backup"}

	f := NewFallback(primary, "google", fastRetry(3), 5, time.Second, zerolog.Nop())
	f.AddFallback("mymemory", backup)

	out, err := f.Translate(context.Background(), "x", "zh", "en")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if out != "primary" {
		t.Errorf("Expected primary after retry, got %q", out)
	}
	if primary.calls.Load() != 2 {
		t.Errorf("Expected 2 primary calls, got %d", primary.calls.Load())
	}
	if backup.calls.Load() != 0 {
		t.Errorf("Expected backup unused, got %d calls", backup.calls.Load())
	}
}

func TestFallback_NonRetryableFallsBackImmediately(t *testing.T) {
	primary := &scriptedTranslator{errs: []error{ErrTransient, ErrTransient}, out: "primary"}
	backup := &scriptedTranslator{out: "backup"}

	f := NewFallback(primary, "google", fastRetry(3), 5, time.Second, zerolog.Nop())
	f.AddFallback("mymemory", backup)

	out, err := f.Translate(context.Background(), "x", "zh", "en")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if out != "backup" {
		t.Errorf("Expected backup result, got %q", out)
	}
	if primary.calls.Load() != 1 {
		t.Errorf("Expected 1 primary call, got %d", primary.calls.Load())
	}
}

func TestFallback_AllFailed(t *testing.T) {
	primary := &scriptedTranslator{errs: []error{ErrTransient}}
	backup := &scriptedTranslator{errs: []error{ErrTransient}}

	f := NewFallback(primary, "google", fastRetry(1), 5, time.Second, zerolog.Nop())
	f.AddFallback("mymemory", backup)

	_, err := f.Translate(context.Background(), "x", "zh", "en")
	if !errors.Is(err, resilience.ErrAllFailed) {
		t.Errorf("Expected ErrAllFailed, got %v", err)
	}
	if !errors.Is(err, ErrTransient) {
		t.Errorf("Expected last provider error to be wrapped, got %v", err)
	}
}

func TestFallback_Ping(t *testing.T) {
	primary := &scriptedTranslator{errs: []error{ErrTransient, ErrTransient}}
	f := NewFallback(primary, "google", fastRetry(1), 1, time.Minute, zerolog.Nop())

	if ok, err := f.Ping(context.Background()); !ok || err != nil {
		t.Fatalf("Expected healthy before failures, got %v %v", ok, err)
	}

	f.Translate(context.Background(), "x", "zh", "en")

	ok, err := f.Ping(context.Background())
	if ok || !errors.Is(err, resilience.ErrAllFailed) {
		t.Errorf("Expected unhealthy with open circuit, got %v %v", ok, err)
	}
}
