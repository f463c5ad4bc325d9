package llm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/subauto/subauto/pkg/log"
)

// OpenRouterConfig carries the connection settings for the OpenRouter backend.
type OpenRouterConfig struct {
	APIKey  string
	APIURL  string
	Timeout int // seconds
	SiteURL string
	AppName string
}

// OpenRouterProvider talks to the OpenRouter chat completion API.
type OpenRouterProvider struct {
	config     OpenRouterConfig
	httpClient *http.Client
	baseURL    string
}

func NewOpenRouterProvider(config OpenRouterConfig) *OpenRouterProvider {
	if config.APIURL == "" {
		config.APIURL = "https://openrouter.ai/api/v1"
	}
	if config.Timeout <= 0 {
		config.Timeout = 60
	}
	return &OpenRouterProvider{
		config:  config,
		baseURL: config.APIURL,
		httpClient: &http.Client{
			Timeout: time.Duration(config.Timeout) * time.Second,
		},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Code    any    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (p *OpenRouterProvider) ValidateConnection() (bool, string) {
	if p.config.APIKey == "" {
		return false, "API key is not set"
	}
	if _, err := p.request("GET", "/models", nil); err != nil {
		return false, fmt.Sprintf("Connection failed: %v", err)
	}
	return true, "Connected to OpenRouter"
}

func (p *OpenRouterProvider) ListModels() ([]ModelInfo, error) {
	body, err := p.request("GET", "/models", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list models: %w", err)
	}

	var payload struct {
		Data []struct {
			ID            string            `json:"id"`
			Name          string            `json:"name"`
			Description   string            `json:"description"`
			ContextLength int               `json:"context_length"`
			Pricing       map[string]string `json:"pricing"`
			TopProvider   struct {
				MaxCompletionTokens int `json:"max_completion_tokens"`
			} `json:"top_provider"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("failed to parse model list: %w", err)
	}

	models := make([]ModelInfo, 0, len(payload.Data))
	for _, m := range payload.Data {
		displayName := m.Name
		if displayName == "" {
			displayName = m.ID
		}
		models = append(models, ModelInfo{
			Name:             m.ID,
			DisplayName:      displayName,
			Provider:         "OpenRouter",
			Description:      m.Description,
			InputTokenLimit:  m.ContextLength,
			OutputTokenLimit: m.TopProvider.MaxCompletionTokens,
			// OpenRouter quotes prices per token; normalize to per 1M.
			PromptPrice:     parsePerTokenPrice(m.Pricing["prompt"]),
			CompletionPrice: parsePerTokenPrice(m.Pricing["completion"]),
		})
	}

	sort.Slice(models, func(i, j int) bool { return models[i].Name < models[j].Name })
	return models, nil
}

func (p *OpenRouterProvider) GenerateContent(modelName, prompt string) (string, error) {
	request := chatRequest{
		Model:    modelName,
		Messages: []chatMessage{{Role: "user", Content: prompt}},
		// Low temperature keeps translations stable across retries.
		Temperature: 0.3,
	}

	start := time.Now()
	body, err := p.request("POST", "/chat/completions", request)
	if err != nil {
		if looksLikePolicyViolation(err.Error()) {
			return "", &PolicyViolationError{Model: modelName, Message: err.Error()}
		}
		return "", err
	}
	log.Info("OpenRouter response time: %.2fs (model: %s)", time.Since(start).Seconds(), modelName)

	var response chatResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}

	if response.Error != nil && response.Error.Message != "" {
		if looksLikePolicyViolation(response.Error.Message) {
			return "", &PolicyViolationError{Model: modelName, Message: response.Error.Message}
		}
		return "", fmt.Errorf("API error: %s", response.Error.Message)
	}

	if len(response.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}
	choice := response.Choices[0]
	if choice.FinishReason == "content_filter" {
		return "", &PolicyViolationError{Model: modelName, Message: "response stopped by content filter"}
	}

	return choice.Message.Content, nil
}

// request performs a raw HTTP call and returns the body. Non-2xx responses
// become errors carrying the status code and body so the retry engine can
// classify them.
func (p *OpenRouterProvider) request(method, path string, payload interface{}) ([]byte, error) {
	url := p.baseURL + path

	var body io.Reader
	if payload != nil {
		jsonData, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequest(method, url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.config.APIKey)
	req.Header.Set("Content-Type", "application/json")
	if p.config.SiteURL != "" {
		req.Header.Set("HTTP-Referer", p.config.SiteURL)
	}
	if p.config.AppName != "" {
		req.Header.Set("X-Title", p.config.AppName)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(responseBody))
	}

	return responseBody, nil
}

func parsePerTokenPrice(raw string) float64 {
	perToken, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0
	}
	return perToken * 1_000_000
}
