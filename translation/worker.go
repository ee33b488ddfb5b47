package translation

import (
	"LocalTranslator/ai"
	"LocalTranslator/config"
	"LocalTranslator/srt"
	"context"
	"fmt"
	"sync"
	"time"
)

const (
	StateIdle      = "idle"
	StateRunning   = "running"
	StateCompleted = "completed"
	StateFailed    = "failed"
	StateAborted   = "aborted"
)

const (
	ModeSubtitles = "subtitles"
	ModeText      = "text"
)

const (
	EventProgress = "progress"
	EventBatch    = "batch"
	EventFinished = "finished"
)

// Event is one observation of a running worker. Per batch the worker emits a
// batch event followed by a progress event; a single finished event carries
// the terminal state and the rendered result, after which the channel closes.
// Failed jobs carry the error instead of a result.
type Event struct {
	Type       string      `json:"type"`
	Progress   int         `json:"progress,omitempty"`
	BatchIndex int         `json:"batchIndex,omitempty"`
	Entries    []srt.Entry `json:"entries,omitempty"`
	State      string      `json:"state,omitempty"`
	Error      string      `json:"error,omitempty"`
	Result     string      `json:"result,omitempty"`
	Stats      *Stats      `json:"stats,omitempty"`
	Timestamp  int64       `json:"timestamp"`
}

type Stats struct {
	TotalEntries     int           `json:"totalEntries"`
	TotalBatches     int           `json:"totalBatches"`
	CompletedBatches int           `json:"completedBatches"`
	GapFilled        int           `json:"gapFilled"`
	Elapsed          time.Duration `json:"elapsed"`
}

// Params carries the translation knobs a worker uses, taken from config at
// construction and injectable in tests.
type Params struct {
	Instruction string
	BatchSize   int
	BatchDelay  time.Duration
	Sanitize    bool
	Reconcile   Options
}

func ParamsFromConfig() Params {
	return Params{
		Instruction: config.GetInstruction("", ""),
		BatchSize:   config.TheConfig.BatchSize,
		BatchDelay:  time.Duration(config.TheConfig.BatchDelaySeconds) * time.Second,
		Sanitize:    config.TheConfig.SanitizeCues,
		Reconcile:   OptionsFromConfig(),
	}
}

// Worker drives one translation job batch by batch. Abort is cooperative:
// it is honored between batches and during the inter-batch delay, never by
// cancelling an in-flight request. A batch that errors fails the whole job
// with the backend's message, no retries.
type Worker struct {
	backend ai.Backend
	params  Params
	mode    string

	entries []srt.Entry
	batches []srt.Batch
	text    string

	events    chan Event
	abort     chan struct{}
	abortOnce sync.Once

	mu         sync.RWMutex
	state      string
	started    bool
	startedAt  time.Time
	translated []srt.Entry
	resultText string
	failure    string
	stats      Stats
}

func NewSubtitleWorker(backend ai.Backend, entries []srt.Entry, params Params) (*Worker, error) {
	batches, err := srt.CreateBatches(entries, params.BatchSize)
	if err != nil {
		return nil, err
	}
	return &Worker{
		backend: backend,
		params:  params,
		mode:    ModeSubtitles,
		entries: entries,
		batches: batches,
		// Sized for every event the run can produce, so emit never blocks
		// when a consumer walks away.
		events: make(chan Event, len(batches)*2+4),
		abort:  make(chan struct{}),
		state:  StateIdle,
	}, nil
}

func NewTextWorker(backend ai.Backend, text string, params Params) *Worker {
	return &Worker{
		backend: backend,
		params:  params,
		mode:    ModeText,
		text:    text,
		events:  make(chan Event, 8),
		abort:   make(chan struct{}),
		state:   StateIdle,
	}
}

// Events is the worker's output stream. It closes after the finished event.
func (w *Worker) Events() <-chan Event {
	return w.events
}

func (w *Worker) TotalBatches() int {
	if w.mode == ModeText {
		return 1
	}
	return len(w.batches)
}

func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return fmt.Errorf("worker already started")
	}
	w.started = true
	w.startedAt = time.Now()
	w.state = StateRunning
	w.stats = Stats{TotalEntries: len(w.entries), TotalBatches: len(w.batches)}
	if w.mode == ModeText {
		w.stats.TotalBatches = 1
	}
	go w.run(ctx)
	return nil
}

// Abort requests a stop. The worker finishes the batch in flight, keeps what
// it has translated so far, and ends in the aborted state.
func (w *Worker) Abort() {
	w.abortOnce.Do(func() { close(w.abort) })
}

func (w *Worker) State() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.state
}

func (w *Worker) Err() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.failure
}

func (w *Worker) Stats() Stats {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.stats
}

// Partial returns a copy of every entry translated so far, in order.
func (w *Worker) Partial() []srt.Entry {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]srt.Entry, len(w.translated))
	copy(out, w.translated)
	return out
}

// Output renders the current result: an SRT document for subtitle jobs,
// plain text for text jobs. Valid mid-run, after an abort, and on completion.
func (w *Worker) Output() string {
	if w.mode == ModeText {
		w.mu.RLock()
		defer w.mu.RUnlock()
		return w.resultText
	}
	return srt.Format(w.Partial())
}

func (w *Worker) run(ctx context.Context) {
	defer close(w.events)
	if w.mode == ModeText {
		w.runText(ctx)
		return
	}
	total := len(w.batches)
	if total == 0 {
		w.emit(Event{Type: EventProgress, Progress: 100})
		w.finish(StateCompleted, "")
		return
	}
	for i, batch := range w.batches {
		if w.aborted(ctx) {
			w.finish(StateAborted, "")
			return
		}
		body := BuildBatchBody(batch.Entries, w.params.Sanitize)
		raw, err := w.backend.Generate(ctx, ai.Request{
			Instruction:  w.params.Instruction,
			Content:      body,
			MaxNewTokens: TokenBudget(body),
		})
		if err != nil {
			w.finish(StateFailed, err.Error())
			return
		}
		entries, gaps := Reconcile(batch, raw, w.params.Reconcile)
		w.mu.Lock()
		w.translated = append(w.translated, entries...)
		w.stats.CompletedBatches = i + 1
		w.stats.GapFilled += gaps
		w.mu.Unlock()
		w.emit(Event{Type: EventBatch, BatchIndex: batch.Index, Entries: entries})
		w.emit(Event{Type: EventProgress, Progress: (i + 1) * 100 / total})
		if w.params.BatchDelay > 0 && i+1 < total {
			select {
			case <-time.After(w.params.BatchDelay):
			case <-w.abort:
			case <-ctx.Done():
			}
		}
	}
	w.finish(StateCompleted, "")
}

func (w *Worker) runText(ctx context.Context) {
	if w.aborted(ctx) {
		w.finish(StateAborted, "")
		return
	}
	raw, err := w.backend.Generate(ctx, ai.Request{
		Instruction:  w.params.Instruction,
		Content:      w.text,
		MaxNewTokens: TokenBudget(w.text),
	})
	if err != nil {
		w.finish(StateFailed, err.Error())
		return
	}
	w.mu.Lock()
	w.resultText = CleanResponse(raw, w.params.Reconcile.StopSequences)
	w.stats.CompletedBatches = 1
	w.mu.Unlock()
	w.emit(Event{Type: EventProgress, Progress: 100})
	w.finish(StateCompleted, "")
}

func (w *Worker) aborted(ctx context.Context) bool {
	select {
	case <-w.abort:
		return true
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

func (w *Worker) finish(state, errMsg string) {
	result := ""
	if state != StateFailed {
		result = w.Output()
	}
	w.mu.Lock()
	w.state = state
	w.failure = errMsg
	w.stats.Elapsed = time.Since(w.startedAt)
	stats := w.stats
	w.mu.Unlock()
	w.emit(Event{Type: EventFinished, State: state, Error: errMsg, Result: result, Stats: &stats})
}

func (w *Worker) emit(e Event) {
	e.Timestamp = time.Now().UnixMilli()
	w.events <- e
}
