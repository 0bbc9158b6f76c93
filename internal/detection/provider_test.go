package detection

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/valyala/fasthttp"
)

func TestProviderMetrics(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		m := NewProviderMetrics()
		m.RecordSuccess(100)
		m.RecordSuccess(200)

		assert.Equal(t, int64(2), m.TotalRequests.Load())
		assert.Equal(t, 1.0, m.SuccessRate())
		assert.Equal(t, int64(150), m.AvgLatencyMs())
	})

	t.Run("failures reset on success", func(t *testing.T) {
		m := NewProviderMetrics()
		m.RecordFailure()
		m.RecordFailure()
		assert.Equal(t, int32(2), m.ConsecutiveFails.Load())
		assert.Equal(t, int64(0), m.AvgLatencyMs())

		m.RecordSuccess(300)
		assert.Zero(t, m.ConsecutiveFails.Load())
		assert.InDelta(t, 0.333, m.SuccessRate(), 0.01)
		assert.Equal(t, int64(300), m.AvgLatencyMs())
	})

	t.Run("p95", func(t *testing.T) {
		m := NewProviderMetrics()
		for i := int64(0); i < 100; i++ {
			m.RecordSuccess(i * 10)
		}
		p95 := m.P95LatencyMs()
		assert.GreaterOrEqual(t, p95, int64(900))
		assert.LessOrEqual(t, p95, int64(990))
	})
}

func TestProvider_Availability(t *testing.T) {
	p := NewProvider("test", "http://llm", 100, &fasthttp.Client{})

	p.SetState(StateDegraded)
	assert.True(t, p.IsAvailable())

	p.SetState(StateUnhealthy)
	assert.False(t, p.IsAvailable())
	assert.Zero(t, p.CalculateScore())

	p.openCircuit(time.Minute)
	assert.False(t, p.IsAvailable())

	p.openCircuit(-time.Second)
	assert.True(t, p.IsAvailable())
	assert.Equal(t, StateDegraded, p.GetState())
}

func TestProvider_CalculateScore(t *testing.T) {
	healthy := NewProvider("a", "http://a", 100, &fasthttp.Client{})
	degraded := NewProvider("b", "http://b", 100, &fasthttp.Client{})
	degraded.SetState(StateDegraded)
	failing := NewProvider("c", "http://c", 100, &fasthttp.Client{})
	failing.metrics.RecordFailure()

	assert.Greater(t, healthy.CalculateScore(), degraded.CalculateScore())
	assert.Greater(t, healthy.CalculateScore(), failing.CalculateScore())
	assert.Greater(t, failing.CalculateScore(), 0.0)
}

func TestProviderState_String(t *testing.T) {
	assert.Equal(t, "HEALTHY", StateHealthy.String())
	assert.Equal(t, "CIRCUIT_OPEN", StateCircuitOpen.String())
	assert.Equal(t, "UNKNOWN", ProviderState(42).String())
}
