package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/opensource-finance/kestrel/internal/domain"
)

const defaultBaseURL = "https://api.openai.com/v1"

// OpenAI classifies descriptions through the OpenAI chat completions API.
type OpenAI struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
}

// NewOpenAI creates a classifier for the given credentials.
func NewOpenAI(cfg domain.ClassifierConfig) *OpenAI {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	model := cfg.Model
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &OpenAI{
		httpClient: &http.Client{},
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     cfg.APIKey,
		model:      model,
	}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Classify asks the model whether the description looks fraudulent.
// The model must answer YES, NO, or POSSIBLE; anything else is no signal.
func (c *OpenAI) Classify(ctx context.Context, description string) (domain.Signal, error) {
	prompt := fmt.Sprintf(`Analyze this transaction description for fraud risk: %q
Is it suspicious? Respond with 'YES', 'NO', or 'POSSIBLE'.`, description)

	body, err := json.Marshal(chatRequest{
		Model:       c.model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		MaxTokens:   10,
		Temperature: 0,
	})
	if err != nil {
		return domain.SignalNone, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return domain.SignalNone, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.SignalNone, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return domain.SignalNone, fmt.Errorf("classifier API status %d", resp.StatusCode)
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return domain.SignalNone, err
	}
	if len(parsed.Choices) == 0 {
		return domain.SignalNone, fmt.Errorf("classifier API returned no choices")
	}

	return parseAnswer(parsed.Choices[0].Message.Content), nil
}

func parseAnswer(text string) domain.Signal {
	answer := strings.ToUpper(strings.Trim(strings.TrimSpace(text), ".'\""))
	switch answer {
	case "YES":
		return domain.SignalSuspicious
	case "POSSIBLE":
		return domain.SignalPossible
	default:
		return domain.SignalNone
	}
}
