package config

import (
	"github.com/caarlos0/env"
	log "github.com/sirupsen/logrus"
	"time"
)

const (
	ServeMode     = "serve"
	TranslateMode = "translate"
	TextMode      = "text"
	HealthMode    = "health"
)

const (
	KoboldProvider = "kobold"
	OpenAIProvider = "openai"
	GeminiProvider = "gemini"
)

type Config struct {
	Mode   string `env:"MODE" envDefault:"serve"`
	Bind   string `env:"BIND" envDefault:":1323"`
	Host   string `env:"HOST" envDefault:"http://localhost:1323"`
	Output string `env:"OUTPUT" envDefault:"./output"`
	Input  string `env:"INPUT" envDefault:"./input"`

	AiProvider         string        `env:"AI_PROVIDER" envDefault:"kobold"`
	KoboldURL          string        `env:"KOBOLD_URL" envDefault:"http://localhost:5001"`
	OpenAI             string        `env:"OPENAI" envDefault:""`
	OpenAIBaseURL      string        `env:"OPENAI_BASE_URL" envDefault:""`
	OpenAIModel        string        `env:"OPENAI_MODEL" envDefault:"o4-mini"`
	Gemini             string        `env:"GEMINI" envDefault:""`
	GeminiModel        string        `env:"GEMINI_MODEL" envDefault:"gemini-2.5-pro"`
	BackendConcurrency int           `env:"BACKEND_CONCURRENCY" envDefault:"1"`
	GenerateTimeout    time.Duration `env:"GENERATE_TIMEOUT" envDefault:"10m"`
	HealthTimeout      time.Duration `env:"HEALTH_TIMEOUT" envDefault:"5s"`

	SourceLanguage        string `env:"SOURCE_LANGUAGE" envDefault:"English;eng"`
	TargetLanguage        string `env:"TARGET_LANGUAGE" envDefault:"Spanish;spa"`
	BatchSize             int    `env:"BATCH_SIZE" envDefault:"10"`
	BatchDelaySeconds     int    `env:"BATCH_DELAY_SECONDS" envDefault:"0"`
	SanitizeCues          bool   `env:"SANITIZE_CUES" envDefault:"true"`
	TokenBudgetMultiplier int    `env:"TOKEN_BUDGET_MULTIPLIER" envDefault:"3"`

	Temperature   float64  `env:"TEMPERATURE" envDefault:"1.0"`
	TopK          int      `env:"TOP_K" envDefault:"64"`
	TopP          float64  `env:"TOP_P" envDefault:"0.95"`
	StopSequences []string `env:"STOP_SEQUENCES" envDefault:"<end_of_turn>,<start_of_turn>"`

	ReconcileRatioMin float64 `env:"RECONCILE_RATIO_MIN" envDefault:"0.5"`
	ReconcileRatioMax float64 `env:"RECONCILE_RATIO_MAX" envDefault:"2.0"`

	HealthPollInterval time.Duration `env:"HEALTH_POLL_INTERVAL" envDefault:"30s"`
	JobRetention       time.Duration `env:"JOB_RETENTION" envDefault:"24h"`

	DiscordName         string `env:"DISCORD_NAME" envDefault:"Translator"`
	DiscordWebhookError string `env:"DISCORD_WEBHOOK_ERROR" envDefault:""`
	DiscordWebhookInfo  string `env:"DISCORD_WEBHOOK_INFO" envDefault:""`
}

var TheConfig = &Config{}

var gitHash, gitVersion string

func Configure() {
	err := env.Parse(TheConfig)
	if err != nil {
		log.Fatalf("error parsing config: %v", err)
	}
	if TheConfig.BackendConcurrency < 1 {
		TheConfig.BackendConcurrency = 1
	}
	log.Infof("Running: %s, %s", gitVersion, gitHash)
}
