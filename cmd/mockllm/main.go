package main

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/nimasrn/balance-bot/internal/detection"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

const (
	senderMarker  = "Message sender:"
	confirmMarker = "confirmation message"
)

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest is the subset of the chat-completions request the mock reads.
type CompletionRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages" binding:"required"`
}

type choice struct {
	Index        int         `json:"index"`
	Message      chatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type CompletionResponse struct {
	ID      string   `json:"id"`
	Object  string   `json:"object"`
	Created int64    `json:"created"`
	Model   string   `json:"model"`
	Choices []choice `json:"choices"`
}

// verdict mirrors the JSON object real models are prompted to answer with.
type verdict struct {
	IsTransfer   bool             `json:"is_transfer"`
	FromUsername *string          `json:"from_username"`
	ToUsername   *string          `json:"to_username"`
	Amount       *decimal.Decimal `json:"amount"`
	Confidence   float64          `json:"confidence"`
	Reasoning    string           `json:"reasoning"`
}

type HealthResponse struct {
	Status      string    `json:"status"`
	ProviderID  string    `json:"provider_id"`
	Timestamp   time.Time `json:"timestamp"`
	FailureRate float64   `json:"failure_rate"`
}

// MockLLM answers chat completions with the rule detector so the LLM
// detection path can be exercised without a real model.
type MockLLM struct {
	mu          sync.Mutex
	failureRate float64
	minDelay    time.Duration
	maxDelay    time.Duration
	providerID  string
	rng         *rand.Rand
	rules       *detection.RuleDetector
}

func NewMockLLM(failureRate float64, minDelay, maxDelay time.Duration) *MockLLM {
	return &MockLLM{
		failureRate: failureRate,
		minDelay:    minDelay,
		maxDelay:    maxDelay,
		providerID:  "MOCK_LLM_" + uuid.New().String()[:8],
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
		rules:       detection.NewRuleDetector(),
	}
}

func (m *MockLLM) randomDelay() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	delta := m.maxDelay - m.minDelay
	if delta <= 0 {
		return m.minDelay
	}
	return m.minDelay + time.Duration(m.rng.Int63n(int64(delta)))
}

func (m *MockLLM) shouldFail() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rng.Float64() < m.failureRate
}

func (m *MockLLM) classify(ctx context.Context, req *CompletionRequest) (*verdict, error) {
	var text, sender string
	for _, msg := range req.Messages {
		switch msg.Role {
		case "system":
			if i := strings.LastIndex(msg.Content, senderMarker); i >= 0 {
				line := msg.Content[i+len(senderMarker):]
				if j := strings.IndexByte(line, '\n'); j >= 0 {
					line = line[:j]
				}
				sender = strings.TrimSpace(line)
			}
		case "user":
			text = strings.TrimPrefix(msg.Content, "Message: ")
		}
	}
	if sender == "Unknown" {
		sender = ""
	}

	res, err := m.rules.Detect(ctx, text, sender)
	if err != nil {
		return nil, err
	}
	v := &verdict{
		IsTransfer: res.IsTransfer,
		Amount:     res.Amount,
		Confidence: res.Confidence,
		Reasoning:  res.Reasoning,
	}
	if res.From != "" {
		v.FromUsername = &res.From
	}
	if res.To != "" {
		v.ToUsername = &res.To
	}
	return v, nil
}

func isConfirmation(req *CompletionRequest) bool {
	for _, msg := range req.Messages {
		if msg.Role == "system" && strings.Contains(msg.Content, confirmMarker) {
			return true
		}
	}
	return false
}

// confirm turns the "Key: value" facts of a confirmation prompt into a
// one-line reply.
func confirm(req *CompletionRequest) string {
	facts := map[string]string{}
	var balances []string
	for _, msg := range req.Messages {
		if msg.Role != "user" {
			continue
		}
		for _, line := range strings.Split(msg.Content, "\n") {
			key, value, ok := strings.Cut(line, ": ")
			if !ok {
				continue
			}
			if strings.HasPrefix(key, "New balance for ") {
				balances = append(balances, strings.TrimPrefix(key, "New balance for ")+" "+value)
				continue
			}
			facts[key] = value
		}
	}
	text := fmt.Sprintf("✅ %s sent %s to %s!", facts["From"], facts["Amount"], facts["To"])
	if len(balances) > 0 {
		text += " Balances: " + strings.Join(balances, ", ") + "."
	}
	return text
}

type Handler struct {
	llm *MockLLM
}

func NewHandler(llm *MockLLM) *Handler {
	return &Handler{llm: llm}
}

func (h *Handler) Completions(c *gin.Context) {
	var req CompletionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request",
			"details": err.Error(),
		})
		return
	}

	time.Sleep(h.llm.randomDelay())

	if h.llm.shouldFail() {
		log.Warn().Str("model", req.Model).Msg("Simulated provider failure")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "model overloaded"})
		return
	}

	var content string
	if isConfirmation(&req) {
		content = confirm(&req)
		log.Info().Msg("Confirmation served")
	} else {
		v, err := h.llm.classify(c.Request.Context(), &req)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		raw, _ := json.Marshal(v)
		content = string(raw)

		log.Info().
			Bool("is_transfer", v.IsTransfer).
			Float64("confidence", v.Confidence).
			Msg("Completion served")
	}

	c.JSON(http.StatusOK, CompletionResponse{
		ID:      "chatcmpl-" + uuid.NewString(),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   req.Model,
		Choices: []choice{{
			Message:      chatMessage{Role: "assistant", Content: content},
			FinishReason: "stop",
		}},
	})
}

func (h *Handler) HealthCheck(c *gin.Context) {
	h.llm.mu.Lock()
	rate := h.llm.failureRate
	h.llm.mu.Unlock()

	c.JSON(http.StatusOK, HealthResponse{
		Status:      "healthy",
		ProviderID:  h.llm.providerID,
		Timestamp:   time.Now(),
		FailureRate: rate,
	})
}

// UpdateConfig changes the simulated failure rate at runtime.
func (h *Handler) UpdateConfig(c *gin.Context) {
	var config struct {
		FailureRate *float64 `json:"failure_rate"`
	}
	if err := c.ShouldBindJSON(&config); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request",
			"details": err.Error(),
		})
		return
	}

	h.llm.mu.Lock()
	if config.FailureRate != nil && *config.FailureRate >= 0 && *config.FailureRate <= 1.0 {
		h.llm.failureRate = *config.FailureRate
		log.Info().Float64("rate", *config.FailureRate).Msg("Updated failure rate")
	}
	rate := h.llm.failureRate
	h.llm.mu.Unlock()

	c.JSON(http.StatusOK, gin.H{
		"message":      "Configuration updated",
		"failure_rate": rate,
	})
}

func SetupRouter(handler *Handler) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.Use(func(c *gin.Context) {
		start := time.Now()
		c.Next()

		log.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("duration", time.Since(start)).
			Msg("Request processed")
	})

	router.POST("/v1/chat/completions", handler.Completions)
	router.PUT("/v1/config", handler.UpdateConfig)
	router.GET("/health", handler.HealthCheck)

	return router
}

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	port := getEnv("PORT", "8082")
	failureRate := getEnvFloat("FAILURE_RATE", 0)
	minDelay := getEnvDuration("MIN_DELAY", 50*time.Millisecond)
	maxDelay := getEnvDuration("MAX_DELAY", 300*time.Millisecond)

	log.Info().
		Str("port", port).
		Float64("failure_rate", failureRate).
		Dur("min_delay", minDelay).
		Dur("max_delay", maxDelay).
		Msg("Starting mock LLM provider")

	router := SetupRouter(NewHandler(NewMockLLM(failureRate, minDelay, maxDelay)))

	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("Server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		var f float64
		if _, err := fmt.Sscanf(value, "%f", &f); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
