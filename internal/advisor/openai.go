package advisor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"stockpilot/internal/config"
	tradeerrors "stockpilot/internal/errors"
	"stockpilot/internal/logger"
	"stockpilot/pkg/types"
)

// Compile-time interface check.
var _ Advisor = (*OpenAIAdvisor)(nil)

// OpenAIAdvisor calls an OpenAI-compatible chat-completions endpoint.
// The primary model is tried first; on a call or parse failure the backup
// model gets exactly one attempt. When both fail the advisor returns no
// orders together with the error: the cycle proceeds with zero decisions
// rather than trading on garbage.
type OpenAIAdvisor struct {
	cfg        config.AdvisorConfig
	httpClient *http.Client
	log        *logger.Logger
}

// NewOpenAIAdvisor creates an advisor from configuration.
func NewOpenAIAdvisor(cfg config.AdvisorConfig, log *logger.Logger) *OpenAIAdvisor {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &OpenAIAdvisor{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
		log:        log,
	}
}

// Propose asks the model for trading decisions.
func (a *OpenAIAdvisor) Propose(ctx context.Context, req Request) ([]types.ProposedOrder, error) {
	prompt := buildDailyPrompt(req)
	model := a.cfg.PrimaryModel
	if req.Research {
		prompt = buildResearchPrompt(req)
		if a.cfg.ResearchModel != "" {
			model = a.cfg.ResearchModel
		}
	}

	orders, err := a.proposeWith(ctx, model, prompt)
	if err == nil {
		return orders, nil
	}
	a.log.LogWarning("Advisor", "model %s failed, retrying with backup %s: %v", model, a.cfg.BackupModel, err)

	orders, backupErr := a.proposeWith(ctx, a.cfg.BackupModel, prompt)
	if backupErr == nil {
		return orders, nil
	}
	return nil, tradeerrors.NewAdvisorError("advisor", "propose",
		fmt.Errorf("primary %s: %v; backup %s: %w", model, err, a.cfg.BackupModel, backupErr))
}

func (a *OpenAIAdvisor) proposeWith(ctx context.Context, model, prompt string) ([]types.ProposedOrder, error) {
	content, err := a.chatCompletion(ctx, model, prompt)
	if err != nil {
		return nil, err
	}

	orders, holds, ok := ParseDecisions(content)
	if !ok {
		return nil, fmt.Errorf("unparseable response from %s (%d bytes)", model, len(content))
	}

	a.log.Info("Advisor %s proposed %d actionable orders (%d holds)", model, len(orders), holds)
	return orders, nil
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
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
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func (a *OpenAIAdvisor) chatCompletion(ctx context.Context, model, prompt string) (string, error) {
	payload, err := json.Marshal(chatRequest{
		Model:       model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		MaxTokens:   a.cfg.MaxTokens,
		Temperature: 0.7,
	})
	if err != nil {
		return "", err
	}

	url := a.cfg.BaseURL + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+a.cfg.APIKey)

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("model API returned status %d with invalid body", resp.StatusCode)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("model API error (%s): %s", parsed.Error.Type, parsed.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("model API returned status %d", resp.StatusCode)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("model API returned no choices")
	}
	return parsed.Choices[0].Message.Content, nil
}
