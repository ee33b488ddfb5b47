package ai

import (
	"LocalTranslator/config"
	"LocalTranslator/discord"
	"context"
	"fmt"

	"google.golang.org/genai"
)

// geminiBackend runs one-shot generations against the Gemini API. Each batch
// carries the full instruction again, no chat history.
type geminiBackend struct {
	client *genai.Client
}

func NewGemini(client *genai.Client) Backend {
	return &geminiBackend{client: client}
}

func (g *geminiBackend) Generate(ctx context.Context, req Request) (string, error) {
	discord.Infof("Sending to Gemini %s", config.TheConfig.GeminiModel)
	ctx, cancel := context.WithTimeout(ctx, config.TheConfig.GenerateTimeout)
	defer cancel()

	contents := []*genai.Content{{
		Role:  genai.RoleUser,
		Parts: []*genai.Part{{Text: req.Content}},
	}}
	resp, err := g.client.Models.GenerateContent(ctx, config.TheConfig.GeminiModel, contents,
		&genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(req.Instruction, genai.RoleUser),
			Temperature:       genai.Ptr(float32(config.TheConfig.Temperature)),
			TopK:              genai.Ptr(float32(config.TheConfig.TopK)),
			TopP:              genai.Ptr(float32(config.TheConfig.TopP)),
			MaxOutputTokens:   int32(req.MaxNewTokens),
			StopSequences:     config.TheConfig.StopSequences,
		})
	if err != nil {
		return "", err
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil ||
		len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("no candidates found in response")
	}
	return resp.Text(), nil
}

// Health counts tokens on a throwaway prompt, the cheapest call that proves
// both the key and the model name.
func (g *geminiBackend) Health(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, config.TheConfig.HealthTimeout)
	defer cancel()

	contents := []*genai.Content{{
		Role:  genai.RoleUser,
		Parts: []*genai.Part{{Text: "ping"}},
	}}
	_, err := g.client.Models.CountTokens(ctx, config.TheConfig.GeminiModel, contents, nil)
	if err != nil {
		return "", err
	}
	return config.TheConfig.GeminiModel, nil
}
