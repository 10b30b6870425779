package aiconnectors

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const defaultOllamaURL = "http://localhost:11434"

// ollamaModel is one entry of the /api/tags listing
type ollamaModel struct {
	Name  string `json:"name"`
	Model string `json:"model"`
}

type ollamaTagsResponse struct {
	Models []ollamaModel `json:"models"`
}

// fetchOllamaModels lists the models installed on an Ollama server
func fetchOllamaModels(ctx context.Context, baseURL string) ([]ollamaModel, error) {
	if baseURL == "" {
		baseURL = defaultOllamaURL
	}
	apiURL := strings.TrimSuffix(baseURL, "/") + "/api/tags"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Ollama at %s: %w", baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("Ollama API returned status %d", resp.StatusCode)
	}

	var tags ollamaTagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return nil, fmt.Errorf("failed to parse Ollama response: %w", err)
	}
	return tags.Models, nil
}

func checkOllamaModel(ctx context.Context, baseURL, model string) error {
	models, err := fetchOllamaModels(ctx, baseURL)
	if err != nil {
		return err
	}
	for _, m := range models {
		// "llama3" matches "llama3:latest"
		if m.Name == model || strings.TrimSuffix(m.Name, ":latest") == model || m.Model == model {
			return nil
		}
	}
	return fmt.Errorf("model %q is not installed on %s", model, baseURL)
}
