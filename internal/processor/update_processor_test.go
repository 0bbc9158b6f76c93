package processor

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/nimasrn/balance-bot/internal/bot"
	"github.com/nimasrn/balance-bot/internal/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeUpdateHandler struct {
	calls []int
	err   error
	panic bool
}

func (h *fakeUpdateHandler) HandleUpdate(_ context.Context, update tgbotapi.Update) error {
	h.calls = append(h.calls, update.UpdateID)
	if h.panic {
		panic("handler exploded")
	}
	return h.err
}

func updateMessage(t *testing.T, updateID int) *queue.Message {
	t.Helper()
	data, err := json.Marshal(tgbotapi.Update{
		UpdateID: updateID,
		Message: &tgbotapi.Message{
			MessageID: 1,
			Text:      "/balance",
			Chat:      &tgbotapi.Chat{ID: 42, Type: "private"},
		},
	})
	require.NoError(t, err)
	return &queue.Message{
		ID:       "1-0",
		Data:     data,
		Metadata: map[string]string{"update_id": "1", MetadataChatID: "42", "trace_id": "t-1"},
	}
}

func TestUpdateProcessor_Process(t *testing.T) {
	ctx := context.Background()

	t.Run("handled update is acked and marked", func(t *testing.T) {
		adapter := newMockRedisAdapter()
		idem := NewIdempotencyService(adapter, DefaultIdempotencyConfig())
		handler := &fakeUpdateHandler{}
		p := NewUpdateProcessor(handler, idem)

		require.NoError(t, p.Process(ctx, updateMessage(t, 10)))

		processed, err := idem.IsProcessed(ctx, "10")
		require.NoError(t, err)
		assert.True(t, processed)
		assert.Equal(t, []int{10}, handler.calls)
	})

	t.Run("redelivered update is not handled twice", func(t *testing.T) {
		adapter := newMockRedisAdapter()
		idem := NewIdempotencyService(adapter, DefaultIdempotencyConfig())
		handler := &fakeUpdateHandler{}
		p := NewUpdateProcessor(handler, idem)

		require.NoError(t, p.Process(ctx, updateMessage(t, 11)))
		require.NoError(t, p.Process(ctx, updateMessage(t, 11)))

		assert.Len(t, handler.calls, 1)
	})

	t.Run("retryable failure is nacked and counted", func(t *testing.T) {
		adapter := newMockRedisAdapter()
		idem := NewIdempotencyService(adapter, DefaultIdempotencyConfig())
		handler := &fakeUpdateHandler{err: errors.New("telegram unreachable")}
		p := NewUpdateProcessor(handler, idem)

		err := p.Process(ctx, updateMessage(t, 12))
		assert.Error(t, err)

		retries, err := idem.GetRetryCount(ctx, "12")
		require.NoError(t, err)
		assert.Equal(t, 1, retries)

		processed, _ := idem.IsProcessed(ctx, "12")
		assert.False(t, processed)

		// lock was released so the redelivery can run
		exists, _ := adapter.Exist(ctx, "update:lock:12")
		assert.Zero(t, exists)
	})

	t.Run("non-retryable failure is acked", func(t *testing.T) {
		adapter := newMockRedisAdapter()
		idem := NewIdempotencyService(adapter, DefaultIdempotencyConfig())
		handler := &fakeUpdateHandler{err: bot.Permanent(errors.New("reply failed after commit"))}
		p := NewUpdateProcessor(handler, idem)

		require.NoError(t, p.Process(ctx, updateMessage(t, 13)))

		processed, _ := idem.IsProcessed(ctx, "13")
		assert.True(t, processed)
	})

	t.Run("exhausted update is acked without handling", func(t *testing.T) {
		adapter := newMockRedisAdapter()
		idem := NewIdempotencyService(adapter, DefaultIdempotencyConfig())
		require.NoError(t, adapter.Set(ctx, "update:retry:14", []byte("3"), 0))
		handler := &fakeUpdateHandler{}
		p := NewUpdateProcessor(handler, idem)

		require.NoError(t, p.Process(ctx, updateMessage(t, 14)))
		assert.Empty(t, handler.calls)
	})

	t.Run("locked update is nacked", func(t *testing.T) {
		adapter := newMockRedisAdapter()
		idem := NewIdempotencyService(adapter, DefaultIdempotencyConfig())
		_, err := adapter.SetNX(ctx, "update:lock:15", []byte("other"), 0)
		require.NoError(t, err)
		handler := &fakeUpdateHandler{}
		p := NewUpdateProcessor(handler, idem)

		assert.Error(t, p.Process(ctx, updateMessage(t, 15)))
		assert.Empty(t, handler.calls)
	})

	t.Run("malformed payload is dropped", func(t *testing.T) {
		adapter := newMockRedisAdapter()
		idem := NewIdempotencyService(adapter, DefaultIdempotencyConfig())
		handler := &fakeUpdateHandler{}
		p := NewUpdateProcessor(handler, idem)

		assert.NoError(t, p.Process(ctx, &queue.Message{ID: "1-0", Data: []byte("{not json")}))
		assert.Empty(t, handler.calls)
	})
}

func TestUpdateProcessor_GetType(t *testing.T) {
	p := NewUpdateProcessor(&fakeUpdateHandler{}, nil)
	assert.Equal(t, "update", p.GetType())
}
