package processor

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/nimasrn/balance-bot/pkg/logger"
	"github.com/nimasrn/balance-bot/pkg/redis"
)

var (
	ErrAlreadyProcessed   = errors.New("update already processed")
	ErrLockAcquireFailed  = errors.New("failed to acquire processing lock")
	ErrMaxRetriesExceeded = errors.New("maximum retries exceeded")
)

type IdempotencyConfig struct {
	LockTTL time.Duration

	ProcessedTTL time.Duration

	MaxRetries int

	RetryKeyPrefix string

	LockKeyPrefix string

	ProcessedKeyPrefix string
}

func DefaultIdempotencyConfig() IdempotencyConfig {
	return IdempotencyConfig{
		LockTTL:            30 * time.Second,
		ProcessedTTL:       24 * time.Hour,
		MaxRetries:         3,
		RetryKeyPrefix:     "update:retry:",
		LockKeyPrefix:      "update:lock:",
		ProcessedKeyPrefix: "update:",
	}
}

// IdempotencyService guarantees a chat update is handled to completion at
// most once, even when the stream redelivers it.
type IdempotencyService struct {
	redis  redis.RedisAdapter
	config IdempotencyConfig
}

func NewIdempotencyService(redisAdapter redis.RedisAdapter, config IdempotencyConfig) *IdempotencyService {
	return &IdempotencyService{
		redis:  redisAdapter,
		config: config,
	}
}

type ProcessingContext struct {
	UpdateID     string
	RetryCount   int
	IsRetry      bool
	lockAcquired bool
}

func (s *IdempotencyService) AcquireProcessingLock(ctx context.Context, updateID string) (*ProcessingContext, error) {
	exists, err := s.redis.Exist(ctx, s.config.ProcessedKeyPrefix+updateID)
	if err != nil {
		// a failed lookup falls through to the lock, which still prevents concurrent handling
		logger.Warn("Failed to check processed status", "update_id", updateID, "error", err)
	} else if exists > 0 {
		logger.Info("Update already processed, skipping", "update_id", updateID)
		return nil, ErrAlreadyProcessed
	}

	retryCount, err := s.GetRetryCount(ctx, updateID)
	if err != nil {
		logger.Warn("Failed to read retry counter", "update_id", updateID, "error", err)
	}

	if retryCount >= s.config.MaxRetries {
		logger.Error("Max retries exceeded for update", "update_id", updateID, "retry_count", retryCount)
		return nil, fmt.Errorf("%w: update_id=%s, retries=%d", ErrMaxRetriesExceeded, updateID, retryCount)
	}

	lockValue := []byte(strconv.FormatInt(time.Now().UnixNano(), 10))
	acquired, err := s.redis.SetNX(ctx, s.config.LockKeyPrefix+updateID, lockValue, s.config.LockTTL)
	if err != nil {
		logger.Error("Failed to acquire lock", "update_id", updateID, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrLockAcquireFailed, err)
	}

	if !acquired {
		logger.Info("Lock already held by another consumer", "update_id", updateID)
		return nil, ErrLockAcquireFailed
	}

	logger.Debug("Processing lock acquired",
		"update_id", updateID,
		"retry_count", retryCount,
		"lock_ttl", s.config.LockTTL)

	return &ProcessingContext{
		UpdateID:     updateID,
		RetryCount:   retryCount,
		IsRetry:      retryCount > 0,
		lockAcquired: true,
	}, nil
}

func (s *IdempotencyService) MarkSuccess(ctx context.Context, pc *ProcessingContext) error {
	err := s.redis.Set(ctx, s.config.ProcessedKeyPrefix+pc.UpdateID, []byte("1"), s.config.ProcessedTTL)
	if err != nil {
		logger.Error("Failed to mark update as processed", "update_id", pc.UpdateID, "error", err)
		return fmt.Errorf("failed to mark as processed: %w", err)
	}

	s.cleanup(ctx, pc)

	logger.Debug("Update marked as processed",
		"update_id", pc.UpdateID,
		"retry_count", pc.RetryCount)

	return nil
}

func (s *IdempotencyService) MarkFailure(ctx context.Context, pc *ProcessingContext, reason error) error {
	newRetryCount := pc.RetryCount + 1
	retryValue := []byte(strconv.Itoa(newRetryCount))

	if err := s.redis.Set(ctx, s.config.RetryKeyPrefix+pc.UpdateID, retryValue, s.config.ProcessedTTL); err != nil {
		logger.Error("Failed to increment retry counter", "update_id", pc.UpdateID, "error", err)
	}

	if err := s.redis.Del(ctx, s.config.LockKeyPrefix+pc.UpdateID); err != nil {
		logger.Warn("Failed to remove lock", "update_id", pc.UpdateID, "error", err)
	}
	pc.lockAcquired = false

	logger.Warn("Update processing failed, will retry",
		"update_id", pc.UpdateID,
		"retry_count", newRetryCount,
		"max_retries", s.config.MaxRetries,
		"reason", reason)

	return nil
}

func (s *IdempotencyService) ReleaseLock(ctx context.Context, pc *ProcessingContext) error {
	if pc == nil || !pc.lockAcquired {
		return nil
	}

	if err := s.redis.Del(ctx, s.config.LockKeyPrefix+pc.UpdateID); err != nil {
		logger.Warn("Failed to release lock", "update_id", pc.UpdateID, "error", err)
		return err
	}

	pc.lockAcquired = false
	return nil
}

func (s *IdempotencyService) cleanup(ctx context.Context, pc *ProcessingContext) {
	err := s.redis.Del(ctx, s.config.LockKeyPrefix+pc.UpdateID, s.config.RetryKeyPrefix+pc.UpdateID)
	if err != nil {
		logger.Warn("Failed to cleanup lock", "update_id", pc.UpdateID, "error", err)
	}
	pc.lockAcquired = false
}

func (s *IdempotencyService) GetRetryCount(ctx context.Context, updateID string) (int, error) {
	raw, err := s.redis.Get(ctx, s.config.RetryKeyPrefix+updateID)
	if err != nil {
		if errors.Is(err, redis.NilError) {
			return 0, nil
		}
		return 0, err
	}

	retryCount, err := strconv.Atoi(string(raw))
	if err != nil {
		return 0, nil
	}
	return retryCount, nil
}

func (s *IdempotencyService) IsProcessed(ctx context.Context, updateID string) (bool, error) {
	exists, err := s.redis.Exist(ctx, s.config.ProcessedKeyPrefix+updateID)
	if err != nil {
		return false, err
	}
	return exists > 0, nil
}
