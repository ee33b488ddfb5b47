package main

import (
	"LocalTranslator/ai"
	"LocalTranslator/cleanup"
	"LocalTranslator/config"
	"LocalTranslator/discord"
	"LocalTranslator/srt"
	"LocalTranslator/translation"
	"LocalTranslator/utils"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
)

func main() {
	log.SetLevel(log.InfoLevel)
	config.Configure()
	discord.Init()
	ai.Init()
	blocking := make(chan bool, 1)
	cleanup.InitSignalCallback(blocking)
	switch config.TheConfig.Mode {
	case config.ServeMode:
		REST()
	case config.TranslateMode:
		translateDir()
	case config.TextMode:
		translateText()
	case config.HealthMode:
		checkHealth()
	default:
		log.Fatalf("unknown mode: %s", config.TheConfig.Mode)
	}
}

// translateDir walks the input directory and translates every .srt that does
// not already have a translated counterpart in the output directory.
func translateDir() {
	files, err := os.ReadDir(config.TheConfig.Input)
	if err != nil {
		log.Fatalf("error reading input directory: %v", err)
	}
	if err := os.MkdirAll(config.TheConfig.Output, 0755); err != nil {
		log.Fatalf("error creating output directory: %v", err)
	}
	_, targetCode := config.ParseLanguage(config.TheConfig.TargetLanguage)
	processed := 0
	for _, file := range files {
		if file.IsDir() || !strings.EqualFold(filepath.Ext(file.Name()), ".srt") {
			continue
		}
		dest := translatedName(file.Name(), targetCode)
		if _, err := os.Stat(utils.OutputJoin(dest)); err == nil {
			discord.Infof("Skipping %s, %s exists", file.Name(), dest)
			continue
		}
		if err := translateFile(file.Name(), dest); err != nil {
			discord.Errorf("Failed %s: %v", file.Name(), err)
			continue
		}
		processed++
	}
	discord.Infof("Translated %d files", processed)
}

// translatedName inserts the target language code before the extension:
// movie.srt becomes movie.spa.srt.
func translatedName(name, code string) string {
	ext := filepath.Ext(name)
	return strings.TrimSuffix(name, ext) + "." + code + ext
}

func translateFile(name, dest string) error {
	b, err := os.ReadFile(utils.InputJoin(name))
	if err != nil {
		return err
	}
	parsed := srt.Parse(string(b))
	for _, skipped := range parsed.Skipped {
		log.Warnf("%s: lines %d-%d skipped: %s", name, skipped.StartLine, skipped.EndLine, skipped.Reason)
	}
	if len(parsed.Entries) == 0 {
		discord.Warnf("%s has no translatable entries", name)
		return os.WriteFile(utils.OutputJoin(dest), []byte{}, 0644)
	}
	backend, err := ai.New()
	if err != nil {
		return err
	}
	worker, err := translation.NewSubtitleWorker(backend, parsed.Entries, translation.ParamsFromConfig())
	if err != nil {
		return err
	}
	cleanup.AddOnStopFunc(cleanup.Jobs, func(_ os.Signal) {
		worker.Abort()
	})
	discord.Infof("Translating %s: %d entries in %d batches", name, len(parsed.Entries), worker.TotalBatches())
	if err := worker.Start(context.Background()); err != nil {
		return err
	}
	for ev := range worker.Events() {
		switch ev.Type {
		case translation.EventProgress:
			log.Infof("%s: %d%%", name, ev.Progress)
		case translation.EventFinished:
			if ev.State != translation.StateCompleted {
				return fmt.Errorf("%s: %s", ev.State, ev.Error)
			}
		}
	}
	stats := worker.Stats()
	if stats.GapFilled > 0 {
		discord.Warnf("%s: %d entries kept their original text", name, stats.GapFilled)
	}
	return os.WriteFile(utils.OutputJoin(dest), []byte(worker.Output()), 0644)
}

// translateText reads free text from stdin and writes the translation to
// stdout.
func translateText() {
	b, err := io.ReadAll(os.Stdin)
	if err != nil {
		log.Fatalf("error reading stdin: %v", err)
	}
	if strings.TrimSpace(string(b)) == "" {
		log.Fatal("nothing to translate")
	}
	backend, err := ai.New()
	if err != nil {
		log.Fatalf("backend unavailable: %v", err)
	}
	worker := translation.NewTextWorker(backend, string(b), translation.ParamsFromConfig())
	cleanup.AddOnStopFunc(cleanup.Jobs, func(_ os.Signal) {
		worker.Abort()
	})
	if err := worker.Start(context.Background()); err != nil {
		log.Fatalf("error starting worker: %v", err)
	}
	for ev := range worker.Events() {
		if ev.Type == translation.EventFinished && ev.State != translation.StateCompleted {
			log.Fatalf("translation %s: %s", ev.State, ev.Error)
		}
	}
	fmt.Println(worker.Output())
}

// checkHealth probes the configured backend once and exits non-zero when it
// is unreachable.
func checkHealth() {
	backend, err := ai.New()
	if err != nil {
		log.Fatalf("backend unavailable: %v", err)
	}
	model, err := backend.Health(context.Background())
	if err != nil {
		log.Fatalf("backend unreachable: %v", err)
	}
	log.Infof("Backend %s healthy: %s", config.TheConfig.AiProvider, model)
}
