package ai

import (
	"LocalTranslator/config"
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// Every job builds its own backend through New, so the generate pool has to
// be process-wide for the concurrency limit to hold across jobs.
func TestNewBackendsShareGeneratePool(t *testing.T) {
	var inFlight int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if n := atomic.AddInt32(&inFlight, 1); n > 1 {
			t.Errorf("%d generate calls in flight, want at most 1", n)
		}
		time.Sleep(50 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		_, _ = w.Write([]byte(`{"results":[{"text":"ok"}]}`))
	}))
	defer srv.Close()
	koboldTestConfig(srv.URL)
	config.TheConfig.AiProvider = config.KoboldProvider
	config.TheConfig.BackendConcurrency = 1

	first, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	second, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	var wg sync.WaitGroup
	for _, backend := range []Backend{first, second} {
		wg.Add(1)
		go func(b Backend) {
			defer wg.Done()
			if _, err := b.Generate(context.Background(), Request{Content: "x", MaxNewTokens: 3}); err != nil {
				t.Errorf("Generate: %v", err)
			}
		}(backend)
	}
	wg.Wait()
}
