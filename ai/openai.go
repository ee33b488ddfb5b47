package ai

import (
	"LocalTranslator/config"
	"LocalTranslator/discord"
	"context"
	"fmt"

	"github.com/openai/openai-go"
)

// openaiBackend targets OpenAI proper or any OpenAI-compatible server
// (LM Studio, llama.cpp, KoboldCpp's /v1) via OPENAI_BASE_URL. The chat
// endpoint applies the model's own template, so the instruction goes in as a
// system message instead of a Gemma-wrapped prompt.
type openaiBackend struct{}

func NewOpenAI() Backend {
	return &openaiBackend{}
}

func (o *openaiBackend) Generate(ctx context.Context, req Request) (string, error) {
	discord.Infof("Sending to OpenAI %s", config.TheConfig.OpenAIModel)
	ctx, cancel := context.WithTimeout(ctx, config.TheConfig.GenerateTimeout)
	defer cancel()

	resp, err := OpenAICli.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: config.TheConfig.OpenAIModel,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(req.Instruction),
			openai.UserMessage(req.Content),
		},
		Temperature: openai.Float(config.TheConfig.Temperature),
		TopP:        openai.Float(config.TheConfig.TopP),
		MaxTokens:   openai.Int(int64(req.MaxNewTokens)),
		Stop: openai.ChatCompletionNewParamsStopUnion{
			OfStringArray: config.TheConfig.StopSequences,
		},
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices found in response")
	}
	return resp.Choices[0].Message.Content, nil
}

// Health reports the configured model without a network call. The model
// listing endpoints differ across the compatible servers this adapter
// targets, and a wrong model name surfaces on the first Generate anyway.
func (o *openaiBackend) Health(_ context.Context) (string, error) {
	return config.TheConfig.OpenAIModel, nil
}
