package ai

import (
	"LocalTranslator/config"
	"LocalTranslator/discord"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// kobold speaks the native KoboldCpp API. The prompt is wrapped in the Gemma
// chat template before sending because the native endpoint does no templating
// of its own.
type kobold struct{}

func NewKobold() Backend {
	return &kobold{}
}

type koboldGenerateRequest struct {
	Prompt       string   `json:"prompt"`
	MaxNewTokens int      `json:"max_new_tokens"`
	Temperature  float64  `json:"temperature"`
	TopK         int      `json:"top_k"`
	TopP         float64  `json:"top_p"`
	StopSequence []string `json:"stop_sequence"`
}

type koboldGenerateResponse struct {
	Results []struct {
		Text string `json:"text"`
	} `json:"results"`
}

// koboldModelResponse accepts both shapes of /api/v1/model: current servers
// answer {"result": "koboldcpp/<model>"}, older builds {"model": "..."}.
type koboldModelResponse struct {
	Result string `json:"result"`
	Model  string `json:"model"`
}

func (k *kobold) Generate(ctx context.Context, req Request) (string, error) {
	payload := koboldGenerateRequest{
		Prompt:       config.GemmaWrap(req.Instruction + "\n\n" + req.Content),
		MaxNewTokens: req.MaxNewTokens,
		Temperature:  config.TheConfig.Temperature,
		TopK:         config.TheConfig.TopK,
		TopP:         config.TheConfig.TopP,
		StopSequence: config.TheConfig.StopSequences,
	}
	body, err := postKobold(ctx, "/api/v1/generate", payload, config.TheConfig.GenerateTimeout)
	if err != nil {
		return "", err
	}
	var response koboldGenerateResponse
	err = json.Unmarshal(body, &response)
	if err != nil {
		return "", err
	}
	if len(response.Results) == 0 {
		return "", fmt.Errorf("no results in response")
	}
	return response.Results[0].Text, nil
}

func (k *kobold) Health(ctx context.Context) (string, error) {
	body, err := getKobold(ctx, "/api/v1/model", config.TheConfig.HealthTimeout)
	if err != nil {
		return "", err
	}
	var response koboldModelResponse
	err = json.Unmarshal(body, &response)
	if err != nil {
		return "", err
	}
	if response.Result != "" {
		return response.Result, nil
	}
	if response.Model != "" {
		return response.Model, nil
	}
	return "", fmt.Errorf("no model name in response")
}

func postKobold(ctx context.Context, path string, payload interface{}, timeout time.Duration) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return callKobold(ctx, http.MethodPost, path, bytes.NewReader(body), timeout)
}

func getKobold(ctx context.Context, path string, timeout time.Duration) ([]byte, error) {
	return callKobold(ctx, http.MethodGet, path, nil, timeout)
}

func callKobold(ctx context.Context, method, path string, body io.Reader, timeout time.Duration) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	url := strings.TrimSuffix(config.TheConfig.KoboldURL, "/") + path
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	client := &http.Client{}
	resp, err := client.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("kobold request timed out after %s", timeout)
		}
		return nil, err
	}
	defer func(Body io.ReadCloser) {
		err := Body.Close()
		if err != nil {
			discord.Errorf("Error closing response body: %v", err)
		}
	}(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("kobold returned status code: %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
