package llm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"
)

// OllamaProvider talks to a local Ollama instance. Local models have no
// moderation layer, so it never raises policy violations.
type OllamaProvider struct {
	baseURL    string
	httpClient *http.Client
}

func NewOllamaProvider(baseURL string) *OllamaProvider {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	return &OllamaProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		// Local generation can be slow; the connection probe below uses
		// its own short timeout.
		httpClient: &http.Client{Timeout: 10 * time.Minute},
	}
}

func (p *OllamaProvider) ValidateConnection() (bool, string) {
	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(p.baseURL + "/api/version")
	if err != nil {
		return false, fmt.Sprintf("Could not connect to Ollama at %s: %v", p.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Sprintf("Ollama returned status %d", resp.StatusCode)
	}
	return true, "Connected to Ollama"
}

func (p *OllamaProvider) ListModels() ([]ModelInfo, error) {
	resp, err := p.httpClient.Get(p.baseURL + "/api/tags")
	if err != nil {
		return nil, fmt.Errorf("connection failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama returned status %d", resp.StatusCode)
	}

	var payload struct {
		Models []struct {
			Name    string `json:"name"`
			Details struct {
				ParameterSize     string `json:"parameter_size"`
				QuantizationLevel string `json:"quantization_level"`
			} `json:"details"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("invalid response from ollama: %w", err)
	}

	models := make([]ModelInfo, 0, len(payload.Models))
	for _, m := range payload.Models {
		desc := strings.TrimSpace(m.Details.ParameterSize + " " + m.Details.QuantizationLevel)
		models = append(models, ModelInfo{
			Name:        m.Name,
			DisplayName: m.Name,
			Provider:    "Ollama",
			Description: desc,
		})
	}

	sort.Slice(models, func(i, j int) bool { return models[i].Name < models[j].Name })
	return models, nil
}

func (p *OllamaProvider) GenerateContent(modelName, prompt string) (string, error) {
	request := map[string]interface{}{
		"model":  modelName,
		"prompt": prompt,
		"stream": false,
	}
	jsonData, err := json.Marshal(request)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	resp, err := p.httpClient.Post(p.baseURL+"/api/generate", "application/json", bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("ollama generation failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ollama returned status %d: %s", resp.StatusCode, string(body))
	}

	var payload struct {
		Response string `json:"response"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", fmt.Errorf("invalid response from ollama: %w", err)
	}
	return payload.Response, nil
}
