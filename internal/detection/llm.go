package detection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/nimasrn/balance-bot/internal/model"
	"github.com/nimasrn/balance-bot/pkg/logger"
	"github.com/nimasrn/balance-bot/pkg/prom"
	"github.com/shopspring/decimal"
	"github.com/valyala/fasthttp"
)

const (
	CompletionsPath   = "/v1/chat/completions"
	DefaultHealthPath = "/health"
)

var (
	ErrNoAvailableProviders = errors.New("no available llm providers")
	ErrEmptyCompletion      = errors.New("llm returned no choices")
)

const systemPrompt = `You are a financial transaction detector for a Telegram group.

Your job is to detect when someone announces they have transferred money to another person.

IMPORTANT RULES:
1. Only detect PAST transfers (already completed)
2. Look for patterns like:
   - "I transferred $X to @user"
   - "I sent $X to @user"
   - "I paid @user $X"
   - "Sent $X to @user"
   - "@user I sent you $X"

3. Extract:
   - from_username: The sender (usually the message author)
   - to_username: The receiver (mentioned with @ or by name)
   - amount: The money amount (can be $100, 100, $100.50, etc.)

4. DO NOT detect:
   - Questions ("should I send?")
   - Future plans ("I will send")
   - Requests ("please send me")
   - General chat

5. Confidence scoring:
   - 0.9-1.0: Clear transfer statement with all details
   - 0.7-0.9: Likely transfer but some ambiguity
   - 0.5-0.7: Possible transfer but unclear
   - 0.0-0.5: Not a transfer

Message sender: %s

Respond with a single JSON object with the fields is_transfer (boolean), from_username (string or null, without @), to_username (string or null, without @), amount (number or null), confidence (number 0-1) and reasoning (string).`

const confirmPrompt = `You are a friendly financial bot assistant.

Generate a brief, natural confirmation message for a completed transfer.

Guidelines:
- Be concise (1-2 sentences)
- Use emojis appropriately
- Confirm the transfer
- Show updated balances
- Be professional but friendly`

type ProviderConfig struct {
	Name   string
	URL    string
	Weight int // 1-100

	// Dial overrides the network dialer; nil uses TCP.
	Dial fasthttp.DialFunc
}

type LLMConfig struct {
	Providers               []ProviderConfig
	APIKey                  string
	Model                   string
	Timeout                 time.Duration
	MaxRetries              int
	RetryDelay              time.Duration
	MaxConns                int
	HealthPath              string
	HealthCheckInterval     time.Duration
	CircuitBreakerThreshold int
	CircuitBreakerTimeout   time.Duration
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type ChatCompletionRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type ChatCompletionResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index   int         `json:"index"`
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// transferDetection is the JSON object the model is asked to produce.
type transferDetection struct {
	IsTransfer   bool             `json:"is_transfer"`
	FromUsername *string          `json:"from_username"`
	ToUsername   *string          `json:"to_username"`
	Amount       *decimal.Decimal `json:"amount"`
	Confidence   float64          `json:"confidence"`
	Reasoning    string           `json:"reasoning"`
}

// LLMDetector asks a chat-completions API to classify messages. Requests go
// to the best scoring provider; failing providers are skipped by a
// consecutive-failure circuit breaker until they recover.
type LLMDetector struct {
	config    LLMConfig
	providers []*Provider
	mu        sync.RWMutex
	stopCh    chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup
}

func NewLLMDetector(config *LLMConfig) (*LLMDetector, error) {
	if config == nil {
		return nil, errors.New("config is required")
	}
	if len(config.Providers) == 0 {
		return nil, errors.New("at least one provider is required")
	}

	cfg := *config
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.HealthPath == "" {
		cfg.HealthPath = DefaultHealthPath
	}
	if cfg.CircuitBreakerThreshold <= 0 {
		cfg.CircuitBreakerThreshold = 5
	}
	if cfg.CircuitBreakerTimeout <= 0 {
		cfg.CircuitBreakerTimeout = 30 * time.Second
	}

	d := &LLMDetector{
		config:    cfg,
		providers: make([]*Provider, 0, len(cfg.Providers)),
		stopCh:    make(chan struct{}),
	}

	for _, pc := range cfg.Providers {
		if pc.URL == "" {
			continue
		}
		httpClient := &fasthttp.Client{
			MaxConnsPerHost:     cfg.MaxConns,
			ReadTimeout:         cfg.Timeout,
			WriteTimeout:        cfg.Timeout,
			MaxIdleConnDuration: 60 * time.Second,
			Dial:                pc.Dial,
		}
		d.providers = append(d.providers, NewProvider(pc.Name, strings.TrimRight(pc.URL, "/"), pc.Weight, httpClient))
		logger.Info("LLM provider initialized", "name", pc.Name, "url", pc.URL, "weight", pc.Weight)
	}
	if len(d.providers) == 0 {
		return nil, errors.New("at least one provider is required")
	}

	if cfg.HealthCheckInterval > 0 {
		d.wg.Add(2)
		go d.healthChecker()
		go d.metricsCollector()
	}

	logger.Info("LLM detector initialized", "providers", len(d.providers), "model", cfg.Model, "timeout", cfg.Timeout)
	return d, nil
}

// Detect returns a safe no-transfer result alongside any error.
func (d *LLMDetector) Detect(ctx context.Context, text, senderHint string) (*model.DetectionResult, error) {
	sender := normalizeUsername(senderHint)
	if sender == "" {
		sender = "Unknown"
	}

	body, err := json.Marshal(&ChatCompletionRequest{
		Model: d.config.Model,
		Messages: []chatMessage{
			{Role: "system", Content: fmt.Sprintf(systemPrompt, sender)},
			{Role: "user", Content: "Message: " + text},
		},
		Temperature:    0,
		ResponseFormat: &responseFormat{Type: "json_object"},
	})
	if err != nil {
		return d.fail(fmt.Errorf("failed to marshal request: %w", err))
	}

	raw, err := d.complete(ctx, body)
	if err != nil {
		return d.fail(err)
	}

	var resp ChatCompletionResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return d.fail(fmt.Errorf("failed to unmarshal completion: %w", err))
	}
	if len(resp.Choices) == 0 {
		return d.fail(ErrEmptyCompletion)
	}

	res, err := parseDetection(resp.Choices[0].Message.Content, senderHint)
	if err != nil {
		return d.fail(err)
	}

	logger.Info("Transfer detection",
		"is_transfer", res.IsTransfer,
		"confidence", res.Confidence,
		"from", res.From,
		"to", res.To,
		"complete", res.Complete())

	outcome := outcomeNone
	if res.IsTransfer {
		outcome = outcomePartial
		if res.Complete() {
			outcome = outcomeTransfer
		}
	}
	prom.IncDetection("llm", outcome)
	return res, nil
}

// Confirm asks the model for a short confirmation of a successful transfer.
func (d *LLMDetector) Confirm(ctx context.Context, res *model.TransferResult) (string, error) {
	if res == nil || !res.Success || res.Transaction == nil {
		return "", errors.New("confirmation needs a successful transfer")
	}
	from, to := res.From.DisplayName(), res.To.DisplayName()
	facts := fmt.Sprintf("Transfer completed:\nFrom: %s\nTo: %s\nAmount: %s\nNew balance for %s: %s\nNew balance for %s: %s\n\nGenerate confirmation message:",
		from, to, model.FormatMoney(res.Transaction.Amount),
		from, model.FormatMoney(res.From.Balance),
		to, model.FormatMoney(res.To.Balance))

	body, err := json.Marshal(&ChatCompletionRequest{
		Model: d.config.Model,
		Messages: []chatMessage{
			{Role: "system", Content: confirmPrompt},
			{Role: "user", Content: facts},
		},
		Temperature: 0.7,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	raw, err := d.complete(ctx, body)
	if err != nil {
		return "", err
	}
	var resp ChatCompletionResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", fmt.Errorf("failed to unmarshal completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyCompletion
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", ErrEmptyCompletion
	}
	return text, nil
}

func (d *LLMDetector) fail(err error) (*model.DetectionResult, error) {
	logger.Error("Error detecting transfer", "error", err)
	prom.IncDetection("llm", outcomeError)
	return model.NoTransfer("error: " + err.Error()), err
}

func (d *LLMDetector) complete(ctx context.Context, body []byte) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= d.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(d.config.RetryDelay):
			}
		}

		provider, err := d.SelectBestProvider()
		if err != nil {
			lastErr = err
			continue
		}

		start := time.Now()
		response, err := d.doRequest(ctx, provider, fasthttp.MethodPost, CompletionsPath, body)
		latency := time.Since(start).Milliseconds()

		if err != nil {
			provider.metrics.RecordFailure()
			d.checkCircuitBreaker(provider)
			logger.Warn("Completion request failed", "error", err, "provider", provider.name, "attempt", attempt+1)
			lastErr = err
			continue
		}

		provider.metrics.RecordSuccess(latency)
		logger.Debug("Completion received", "provider", provider.name, "latency_ms", latency)
		return response, nil
	}

	return nil, fmt.Errorf("failed after %d attempts: %w", d.config.MaxRetries+1, lastErr)
}

// parseDetection reads the model's JSON answer. Some models wrap it in a
// markdown fence even in json mode.
func parseDetection(content, senderHint string) (*model.DetectionResult, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")

	var td transferDetection
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &td); err != nil {
		return nil, fmt.Errorf("failed to parse detection: %w", err)
	}

	res := &model.DetectionResult{
		IsTransfer: td.IsTransfer,
		Confidence: clamp(td.Confidence),
		Reasoning:  td.Reasoning,
		From:       normalizeUsername(senderHint),
	}
	if td.FromUsername != nil && normalizeUsername(*td.FromUsername) != "" {
		res.From = normalizeUsername(*td.FromUsername)
	}
	if td.ToUsername != nil {
		res.To = normalizeUsername(*td.ToUsername)
	}
	if td.Amount != nil && td.Amount.IsPositive() && td.Amount.Equal(td.Amount.Round(2)) {
		amount := *td.Amount
		res.Amount = &amount
	}
	return res, nil
}

func clamp(c float64) float64 {
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}

func (d *LLMDetector) SelectBestProvider() (*Provider, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var best *Provider
	var bestScore float64

	for _, provider := range d.providers {
		if !provider.IsAvailable() {
			continue
		}
		score := provider.CalculateScore()
		if score > bestScore {
			bestScore = score
			best = provider
		}
	}

	if best == nil {
		return nil, ErrNoAvailableProviders
	}
	logger.Debug("Selected LLM provider", "provider", best.name, "score", bestScore)
	return best, nil
}

func (d *LLMDetector) doRequest(ctx context.Context, provider *Provider, method, path string, body []byte) ([]byte, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(provider.baseURL + path)
	req.Header.SetMethod(method)
	req.Header.SetContentType("application/json")
	if d.config.APIKey != "" {
		req.Header.Set(fasthttp.HeaderAuthorization, "Bearer "+d.config.APIKey)
	}
	if body != nil {
		req.SetBody(body)
	}

	deadline, ok := ctx.Deadline()
	if !ok || time.Until(deadline) > d.config.Timeout {
		deadline = time.Now().Add(d.config.Timeout)
	}

	if err := provider.client.DoDeadline(req, resp, deadline); err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	if status := resp.StatusCode(); status != fasthttp.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d, body: %s", status, resp.Body())
	}

	result := make([]byte, len(resp.Body()))
	copy(result, resp.Body())
	return result, nil
}

func (d *LLMDetector) checkCircuitBreaker(provider *Provider) {
	fails := provider.metrics.ConsecutiveFails.Load()
	if fails >= int32(d.config.CircuitBreakerThreshold) {
		provider.openCircuit(d.config.CircuitBreakerTimeout)
		logger.Warn("Circuit breaker opened", "provider", provider.name, "consecutive_fails", fails, "timeout", d.config.CircuitBreakerTimeout)
	}
}

func (d *LLMDetector) healthChecker() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			d.performHealthChecks()
		case <-d.stopCh:
			return
		}
	}
}

func (d *LLMDetector) performHealthChecks() {
	ctx, cancel := context.WithTimeout(context.Background(), d.config.Timeout)
	defer cancel()

	d.mu.RLock()
	providers := make([]*Provider, len(d.providers))
	copy(providers, d.providers)
	d.mu.RUnlock()

	for _, provider := range providers {
		_, err := d.doRequest(ctx, provider, fasthttp.MethodGet, d.config.HealthPath, nil)
		provider.lastHealthCheck.Store(time.Now().Unix())

		oldState := provider.GetState()
		newState := oldState
		switch {
		case err != nil:
			newState = StateUnhealthy
		case oldState == StateUnhealthy || oldState == StateDegraded:
			newState = StateHealthy
		}

		if newState != oldState {
			provider.SetState(newState)
			logger.Info("LLM provider state changed", "provider", provider.name, "old_state", oldState.String(), "new_state", newState.String())
		}
	}
}

func (d *LLMDetector) metricsCollector() {
	defer d.wg.Done()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			d.evaluateProviders()
		case <-d.stopCh:
			return
		}
	}
}

func (d *LLMDetector) evaluateProviders() {
	d.mu.RLock()
	defer d.mu.RUnlock()

	for _, provider := range d.providers {
		if provider.GetState() == StateCircuitOpen {
			continue
		}

		successRate := provider.metrics.SuccessRate()
		avgLatency := provider.metrics.AvgLatencyMs()

		if successRate < 0.8 || avgLatency > 8000 {
			if provider.GetState() != StateDegraded {
				provider.SetState(StateDegraded)
				logger.Warn("LLM provider degraded", "provider", provider.name, "success_rate", successRate, "avg_latency_ms", avgLatency)
			}
		} else if successRate > 0.95 && avgLatency < 4000 && provider.GetState() == StateDegraded {
			provider.SetState(StateHealthy)
			logger.Info("LLM provider recovered", "provider", provider.name)
		}
	}
}

// ProviderStats lists providers best first.
func (d *LLMDetector) ProviderStats() []ProviderStats {
	d.mu.RLock()
	defer d.mu.RUnlock()

	stats := make([]ProviderStats, 0, len(d.providers))
	for _, provider := range d.providers {
		stats = append(stats, provider.Stats())
	}
	sort.Slice(stats, func(i, j int) bool {
		return stats[i].Score > stats[j].Score
	})
	return stats
}

func (d *LLMDetector) Close() error {
	d.stopOnce.Do(func() { close(d.stopCh) })
	d.wg.Wait()
	logger.Info("LLM detector closed")
	return nil
}
