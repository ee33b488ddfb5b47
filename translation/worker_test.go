package translation

import (
	"LocalTranslator/ai"
	"LocalTranslator/config"
	"LocalTranslator/srt"
	"context"
	"errors"
	"sync"
	"testing"
	"time"
	"unicode/utf8"
)

type fakeBackend struct {
	mu    sync.Mutex
	calls []ai.Request
	fn    func(call int, req ai.Request) (string, error)
}

func (f *fakeBackend) Generate(_ context.Context, req ai.Request) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	n := len(f.calls)
	f.mu.Unlock()
	return f.fn(n, req)
}

func (f *fakeBackend) Health(context.Context) (string, error) {
	return "fake", nil
}

func (f *fakeBackend) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func workerParams() Params {
	config.TheConfig = &config.Config{TokenBudgetMultiplier: 3}
	return Params{
		Instruction: "Translate",
		BatchSize:   2,
		Sanitize:    true,
		Reconcile:   testOpts(),
	}
}

func collect(t *testing.T, w *Worker) []Event {
	t.Helper()
	events := make([]Event, 0)
	timeout := time.After(5 * time.Second)
	for {
		select {
		case e, ok := <-w.Events():
			if !ok {
				return events
			}
			events = append(events, e)
		case <-timeout:
			t.Fatal("timed out waiting for events")
		}
	}
}

func eventTypes(events []Event) []string {
	types := make([]string, 0, len(events))
	for _, e := range events {
		types = append(types, e.Type)
	}
	return types
}

func TestWorkerSuccess(t *testing.T) {
	entries := batchOf("One", "Two", "Three", "Four").Entries
	fake := &fakeBackend{fn: func(n int, _ ai.Request) (string, error) {
		if n == 1 {
			return "[1] Uno\n\n[2] Dos", nil
		}
		return "[3] Tres\n\n[4] Cuatro", nil
	}}
	w, err := NewSubtitleWorker(fake, entries, workerParams())
	if err != nil {
		t.Fatalf("NewSubtitleWorker: %v", err)
	}
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	events := collect(t, w)

	want := []string{EventBatch, EventProgress, EventBatch, EventProgress, EventFinished}
	got := eventTypes(events)
	if len(got) != len(want) {
		t.Fatalf("event types = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("event types = %v, want %v", got, want)
		}
	}
	if events[1].Progress != 50 || events[3].Progress != 100 {
		t.Errorf("progress = %d, %d, want 50, 100", events[1].Progress, events[3].Progress)
	}
	if events[0].BatchIndex != 1 || len(events[0].Entries) != 2 {
		t.Errorf("first batch event = index %d, %d entries", events[0].BatchIndex, len(events[0].Entries))
	}
	final := events[len(events)-1]
	if final.State != StateCompleted || final.Error != "" {
		t.Errorf("final = %q/%q, want completed", final.State, final.Error)
	}
	if final.Stats == nil || final.Stats.TotalBatches != 2 || final.Stats.CompletedBatches != 2 || final.Stats.GapFilled != 0 {
		t.Errorf("stats = %+v", final.Stats)
	}
	if w.State() != StateCompleted {
		t.Errorf("state = %q", w.State())
	}

	wantOut := "1\n00:00:01,000 --> 00:00:02,000\nUno\n\n" +
		"2\n00:00:01,000 --> 00:00:02,000\nDos\n\n" +
		"3\n00:00:01,000 --> 00:00:02,000\nTres\n\n" +
		"4\n00:00:01,000 --> 00:00:02,000\nCuatro\n"
	if w.Output() != wantOut {
		t.Errorf("Output() = %q, want %q", w.Output(), wantOut)
	}
	if final.Result != wantOut {
		t.Errorf("finished result = %q, want %q", final.Result, wantOut)
	}
}

func TestWorkerFailureKeepsCompletedBatches(t *testing.T) {
	entries := batchOf("One", "Two", "Three", "Four").Entries
	fake := &fakeBackend{fn: func(n int, _ ai.Request) (string, error) {
		if n == 1 {
			return "[1] Uno\n\n[2] Dos", nil
		}
		return "", errors.New("backend exploded")
	}}
	w, err := NewSubtitleWorker(fake, entries, workerParams())
	if err != nil {
		t.Fatalf("NewSubtitleWorker: %v", err)
	}
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	events := collect(t, w)

	final := events[len(events)-1]
	if final.Type != EventFinished || final.State != StateFailed {
		t.Fatalf("final = %+v, want failed", final)
	}
	if final.Error != "backend exploded" {
		t.Errorf("error = %q, want backend message verbatim", final.Error)
	}
	if final.Result != "" {
		t.Errorf("failed job carried result %q", final.Result)
	}
	if w.Err() != "backend exploded" {
		t.Errorf("Err() = %q", w.Err())
	}
	partial := w.Partial()
	if len(partial) != 2 || partial[0].Text != "Uno" {
		t.Errorf("partial = %+v, want first batch preserved", partial)
	}
}

func TestWorkerAbortBeforeStart(t *testing.T) {
	entries := batchOf("One", "Two").Entries
	fake := &fakeBackend{fn: func(int, ai.Request) (string, error) {
		return "[1] x", nil
	}}
	w, err := NewSubtitleWorker(fake, entries, workerParams())
	if err != nil {
		t.Fatalf("NewSubtitleWorker: %v", err)
	}
	w.Abort()
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	events := collect(t, w)

	if fake.callCount() != 0 {
		t.Errorf("backend called %d times, want 0", fake.callCount())
	}
	final := events[len(events)-1]
	if final.State != StateAborted {
		t.Errorf("state = %q, want aborted", final.State)
	}
	if len(w.Partial()) != 0 || w.Output() != "" {
		t.Errorf("aborted-before-start worker has output %q", w.Output())
	}
}

func TestWorkerAbortBetweenBatches(t *testing.T) {
	entries := batchOf("One", "Two", "Three", "Four", "Five", "Six").Entries
	fake := &fakeBackend{}
	w, err := NewSubtitleWorker(fake, entries, workerParams())
	if err != nil {
		t.Fatalf("NewSubtitleWorker: %v", err)
	}
	fake.fn = func(n int, _ ai.Request) (string, error) {
		if n == 1 {
			// Abort lands while the first request is in flight; the batch
			// still completes, the next one never starts.
			w.Abort()
		}
		return "[1] Uno\n\n[2] Dos", nil
	}
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	events := collect(t, w)

	if fake.callCount() != 1 {
		t.Errorf("backend called %d times, want 1", fake.callCount())
	}
	got := eventTypes(events)
	want := []string{EventBatch, EventProgress, EventFinished}
	if len(got) != len(want) {
		t.Fatalf("event types = %v, want %v", got, want)
	}
	if events[1].Progress != 33 {
		t.Errorf("progress = %d, want 33", events[1].Progress)
	}
	final := events[len(events)-1]
	if final.State != StateAborted {
		t.Errorf("state = %q, want aborted", final.State)
	}
	if len(w.Partial()) != 2 {
		t.Errorf("partial = %d entries, want 2", len(w.Partial()))
	}
	if final.Result != w.Output() {
		t.Errorf("aborted result = %q, want the partial document", final.Result)
	}
}

func TestWorkerTextMode(t *testing.T) {
	fake := &fakeBackend{fn: func(int, ai.Request) (string, error) {
		return "Output: Hola mundo<end_of_turn>", nil
	}}
	w := NewTextWorker(fake, "Hello world", workerParams())
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	events := collect(t, w)

	got := eventTypes(events)
	want := []string{EventProgress, EventFinished}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("event types = %v, want %v", got, want)
	}
	if events[0].Progress != 100 {
		t.Errorf("progress = %d, want 100", events[0].Progress)
	}
	if w.Output() != "Hola mundo" {
		t.Errorf("Output() = %q, want cleaned text", w.Output())
	}
	if events[1].Result != "Hola mundo" {
		t.Errorf("finished result = %q, want cleaned text", events[1].Result)
	}

	req := fake.calls[0]
	if req.Instruction != "Translate" || req.Content != "Hello world" {
		t.Errorf("request = %+v", req)
	}
	if req.MaxNewTokens != len("Hello world")*3 {
		t.Errorf("budget = %d, want %d", req.MaxNewTokens, len("Hello world")*3)
	}
}

func TestWorkerRequestShape(t *testing.T) {
	entries := []srt.Entry{
		{Number: 1, Start: "00:00:01,000", End: "00:00:02,000", Text: "Hello"},
		{Number: 2, Start: "00:00:03,000", End: "00:00:04,000", Text: "<i>World</i>"},
	}
	fake := &fakeBackend{fn: func(int, ai.Request) (string, error) {
		return "[1] Hola\n\n[2] Mundo", nil
	}}
	w, err := NewSubtitleWorker(fake, entries, workerParams())
	if err != nil {
		t.Fatalf("NewSubtitleWorker: %v", err)
	}
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	collect(t, w)

	req := fake.calls[0]
	wantContent := "[1] Hello\n\n[2] World\n\n"
	if req.Content != wantContent {
		t.Errorf("content = %q, want %q", req.Content, wantContent)
	}
	if req.MaxNewTokens != utf8.RuneCountInString(wantContent)*3 {
		t.Errorf("budget = %d, want %d", req.MaxNewTokens, utf8.RuneCountInString(wantContent)*3)
	}
}

func TestWorkerDoubleStart(t *testing.T) {
	fake := &fakeBackend{fn: func(int, ai.Request) (string, error) {
		return "x", nil
	}}
	w := NewTextWorker(fake, "hi", workerParams())
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := w.Start(context.Background()); err == nil {
		t.Fatal("second Start did not error")
	}
	collect(t, w)
}

func TestWorkerEmptyEntries(t *testing.T) {
	fake := &fakeBackend{fn: func(int, ai.Request) (string, error) {
		return "x", nil
	}}
	w, err := NewSubtitleWorker(fake, nil, workerParams())
	if err != nil {
		t.Fatalf("NewSubtitleWorker: %v", err)
	}
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	events := collect(t, w)

	if fake.callCount() != 0 {
		t.Errorf("backend called %d times, want 0", fake.callCount())
	}
	final := events[len(events)-1]
	if final.State != StateCompleted {
		t.Errorf("state = %q, want completed", final.State)
	}
	if w.Output() != "" {
		t.Errorf("Output() = %q, want empty", w.Output())
	}
}

func TestNewSubtitleWorkerRejectsBadBatchSize(t *testing.T) {
	params := workerParams()
	params.BatchSize = 0
	_, err := NewSubtitleWorker(&fakeBackend{}, batchOf("One").Entries, params)
	if err == nil {
		t.Fatal("expected error for batch size 0")
	}
}
