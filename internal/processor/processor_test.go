package processor

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProcessorService_Run(t *testing.T) {
	ctx := context.Background()

	newService := func(handler *fakeUpdateHandler) *ProcessorService {
		s := &ProcessorService{metrics: NewServiceMetrics()}
		s.RegisterProcessor(NewUpdateProcessor(handler, NewIdempotencyService(newMockRedisAdapter(), DefaultIdempotencyConfig())))
		return s
	}

	t.Run("panic is recovered and acked", func(t *testing.T) {
		s := newService(&fakeUpdateHandler{panic: true})
		err := s.run(0, &jobResult{msg: updateMessage(t, 20), ctx: ctx})
		assert.NoError(t, err)

		stats := s.metrics.Snapshot()
		assert.Equal(t, int64(1), stats.Failed)
		assert.Equal(t, int64(1), stats.Panicked)
	})

	t.Run("retryable error is returned", func(t *testing.T) {
		s := newService(&fakeUpdateHandler{err: errors.New("timeout")})
		err := s.run(0, &jobResult{msg: updateMessage(t, 21), ctx: ctx})
		assert.Error(t, err)
	})

	t.Run("success is recorded", func(t *testing.T) {
		s := newService(&fakeUpdateHandler{})
		err := s.run(0, &jobResult{msg: updateMessage(t, 22), ctx: ctx})
		assert.NoError(t, err)

		stats := s.metrics.Snapshot()
		assert.Equal(t, int64(1), stats.Processed)
		assert.Zero(t, stats.Failed)
	})

	t.Run("missing processor acks", func(t *testing.T) {
		s := &ProcessorService{metrics: NewServiceMetrics()}
		assert.NoError(t, s.run(0, &jobResult{msg: updateMessage(t, 23), ctx: ctx}))
	})
}
