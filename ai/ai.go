package ai

import (
	"LocalTranslator/config"
	"LocalTranslator/discord"
	"context"
	"fmt"
	"sync"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"google.golang.org/genai"
)

// Request is the provider-neutral translate call: a fixed instruction, the
// content to translate, and the generation budget for this call. Sampling
// parameters and stop sequences come from config and ride along in each
// adapter's envelope.
type Request struct {
	Instruction  string
	Content      string
	MaxNewTokens int
}

// Backend executes a single generate call and a health probe. Generate
// returns the model's raw text; recovering structure from it is the
// caller's problem. Health returns the model identifier the provider
// reports, or an error when the provider is unreachable.
type Backend interface {
	Generate(ctx context.Context, req Request) (string, error)
	Health(ctx context.Context) (string, error)
}

var OpenAICli openai.Client
var GeminiCli *genai.Client

var openAIReady bool

func Init() {
	slotPool()
	if config.TheConfig.OpenAI != "" || config.TheConfig.OpenAIBaseURL != "" {
		discord.Infof("Initializing OpenAI")
		opts := make([]option.RequestOption, 0, 2)
		if config.TheConfig.OpenAI != "" {
			opts = append(opts, option.WithAPIKey(config.TheConfig.OpenAI))
		}
		if config.TheConfig.OpenAIBaseURL != "" {
			opts = append(opts, option.WithBaseURL(config.TheConfig.OpenAIBaseURL))
		}
		OpenAICli = openai.NewClient(opts...)
		openAIReady = true
	}
	if config.TheConfig.Gemini != "" {
		discord.Infof("Initializing Gemini")
		ctx := context.Background()
		var err error
		GeminiCli, err = genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  config.TheConfig.Gemini,
			Backend: genai.BackendGeminiAPI,
		})
		if err != nil {
			discord.Errorf("Unable to initialize gemini: %v", err)
		}
	}
}

// New returns the configured provider behind the shared concurrency limit.
func New() (Backend, error) {
	var inner Backend
	switch config.TheConfig.AiProvider {
	case config.KoboldProvider:
		inner = NewKobold()
	case config.OpenAIProvider:
		if !openAIReady {
			return nil, fmt.Errorf("openai client not initialized, set OPENAI or OPENAI_BASE_URL")
		}
		inner = NewOpenAI()
	case config.GeminiProvider:
		if GeminiCli == nil {
			return nil, fmt.Errorf("gemini client not initialized, set GEMINI")
		}
		inner = NewGemini(GeminiCli)
	default:
		return nil, fmt.Errorf("unknown AI provider: %s", config.TheConfig.AiProvider)
	}
	return &limited{inner: inner, slots: slotPool()}, nil
}

var slots chan struct{}
var slotsOnce sync.Once

// slotPool returns the process-wide generate pool, sized once from
// BACKEND_CONCURRENCY. Every backend New hands out draws from the same
// pool, so the limit bounds in-flight generate calls across all jobs,
// not per job.
func slotPool() chan struct{} {
	slotsOnce.Do(func() {
		concurrency := config.TheConfig.BackendConcurrency
		if concurrency < 1 {
			concurrency = 1
		}
		slots = make(chan struct{}, concurrency)
	})
	return slots
}

// limited gates Generate calls through the shared slot pool. The default
// single slot keeps one request in flight at a time, which is what a local
// server grinding through a big model can actually absorb. Health is not
// gated: metadata endpoints answer while a generate runs.
type limited struct {
	inner Backend
	slots chan struct{}
}

func (l *limited) Generate(ctx context.Context, req Request) (string, error) {
	select {
	case l.slots <- struct{}{}:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	defer func() { <-l.slots }()
	return l.inner.Generate(ctx, req)
}

func (l *limited) Health(ctx context.Context) (string, error) {
	return l.inner.Health(ctx)
}
