package relay

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pitwall/livetiming/internal/metrics"
	"github.com/pitwall/livetiming/internal/store"
)

func TestTimingLapTimesCoalesced(t *testing.T) {
	st := store.NewMemory()
	h := NewTimingHandler(st, 50*time.Millisecond, metrics.NewForTest(), zap.NewNop())
	ctx := context.Background()

	h.HandleFrame(ctx, parseFrame(t, `{"R":{"TimingDataF1":{"Lines":{"44":{"Position":"1"}}}}}`))

	h.HandleFrame(ctx, deltaFrame(t, "TimingDataF1",
		`{"Lines":{"44":{"LastLapTime":{"Value":"1:31.2"}}}}`,
	))
	h.HandleFrame(ctx, deltaFrame(t, "TimingDataF1",
		`{"Lines":{"44":{"LastLapTime":{"OverallFastest":true}}}}`,
	))

	require.Eventually(t, func() bool {
		return len(st.Published()) == 1
	}, time.Second, 10*time.Millisecond)

	published := st.Published()
	assert.Equal(t, "TimingDataF1", published[0].Topic)
	assert.Equal(t, map[string]any{
		"Lines": map[string]any{
			"44": map[string]any{
				"LastLapTime": map[string]any{
					"Value":          "1:31.2",
					"OverallFastest": true,
				},
			},
		},
	}, published[0].Payload)

	// The merged canonical state still carries the lap time.
	state := st.State("TimingDataF1")
	line := state["Lines"].(map[string]any)["44"].(map[string]any)
	assert.Contains(t, line, "LastLapTime")
	assert.Equal(t, "1", line["Position"])

	h.Shutdown()
}

func TestTimingRemainderPublishedImmediately(t *testing.T) {
	st := store.NewMemory()
	h := NewTimingHandler(st, time.Minute, metrics.NewForTest(), zap.NewNop())
	ctx := context.Background()

	h.HandleFrame(ctx, deltaFrame(t, "TimingDataF1",
		`{"Lines":{"44":{"Position":"2","LastLapTime":{"Value":"1:30.0"}}},"SessionPart":2}`,
	))
	h.processor.Wait()

	published := st.Published()
	require.Len(t, published, 1)
	assert.Equal(t, map[string]any{
		"Lines":       map[string]any{"44": map[string]any{"Position": "2"}},
		"SessionPart": float64(2),
	}, published[0].Payload)

	h.Shutdown()
}

func TestTimingLapOnlyDeltaPublishesNothingImmediately(t *testing.T) {
	st := store.NewMemory()
	h := NewTimingHandler(st, time.Minute, metrics.NewForTest(), zap.NewNop())

	h.HandleFrame(context.Background(), deltaFrame(t, "TimingDataF1",
		`{"Lines":{"44":{"LastLapTime":{"Value":"1:30.0"}}}}`,
	))
	h.processor.Wait()

	assert.Empty(t, st.Published())

	h.Shutdown()
}

func TestTimingShutdownDiscardsPendingLaps(t *testing.T) {
	st := store.NewMemory()
	h := NewTimingHandler(st, time.Minute, metrics.NewForTest(), zap.NewNop())

	h.HandleFrame(context.Background(), deltaFrame(t, "TimingDataF1",
		`{"Lines":{"44":{"LastLapTime":{"Value":"1:30.0"}}}}`,
	))
	h.processor.Wait()
	h.Shutdown()

	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, st.Published())
}

func TestExtractLastLapTimes(t *testing.T) {
	delta := map[string]any{
		"Lines": map[string]any{
			"44": map[string]any{"LastLapTime": map[string]any{"Value": "1:31.2"}, "Position": "1"},
			"63": map[string]any{"LastLapTime": map[string]any{"Value": "1:31.9"}},
			"1":  map[string]any{"Position": "3"},
		},
	}

	extracted := extractLastLapTimes(delta)

	assert.Len(t, extracted, 2)
	assert.Contains(t, extracted, "44")
	assert.Contains(t, extracted, "63")

	lines := delta["Lines"].(map[string]any)
	assert.Equal(t, map[string]any{"Position": "1"}, lines["44"])
	assert.NotContains(t, lines, "63")
	assert.Equal(t, map[string]any{"Position": "3"}, lines["1"])
}

func TestExtractLastLapTimesEmptiesDelta(t *testing.T) {
	delta := map[string]any{
		"Lines": map[string]any{
			"44": map[string]any{"LastLapTime": map[string]any{"Value": "1:31.2"}},
		},
	}

	extracted := extractLastLapTimes(delta)

	assert.Len(t, extracted, 1)
	assert.Empty(t, delta)
}
