package binanceclient

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradejournal/internal/ports"
)

type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

func TestNew_RequiresCredentials(t *testing.T) {
	_, err := New(Config{Logger: &mockLogger{}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ports.ErrConfigurationError))

	_, err = New(Config{APIKey: "key", Logger: &mockLogger{}})
	require.Error(t, err)

	client, err := New(Config{APIKey: "key", SecretKey: "secret", Logger: &mockLogger{}})
	require.NoError(t, err)
	assert.Equal(t, baseURLProduction, client.futuresClient.BaseURL)
}

func TestNew_TestnetBaseURL(t *testing.T) {
	client, err := New(Config{APIKey: "key", SecretKey: "secret", UseTestnet: true, Logger: &mockLogger{}})
	require.NoError(t, err)
	assert.Equal(t, baseURLTestnet, client.futuresClient.BaseURL)
}

func TestAnchorSlices_CapsSpan(t *testing.T) {
	start := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	// Window plus trailing context at defaults spans 8 days, which the trade
	// endpoint would reject as a single time-anchored request.
	end := start.Add(8 * 24 * time.Hour)

	slices := anchorSlices(start, end, maxAnchorSpan)
	require.Len(t, slices, 2)
	assert.True(t, slices[0].start.Equal(start))
	assert.True(t, slices[0].end.Equal(start.Add(7*24*time.Hour)))
	assert.True(t, slices[1].start.Equal(slices[0].end), "slices must be contiguous")
	assert.True(t, slices[1].end.Equal(end))
	for i, s := range slices {
		assert.LessOrEqual(t, s.end.Sub(s.start), maxAnchorSpan, "slice %d exceeds the cap", i)
	}
}

func TestAnchorSlices_ShortWindow(t *testing.T) {
	start := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(36 * time.Hour)

	slices := anchorSlices(start, end, maxAnchorSpan)
	require.Len(t, slices, 1)
	assert.True(t, slices[0].start.Equal(start))
	assert.True(t, slices[0].end.Equal(end))
}

func TestAnchorSlices_EmptyWindow(t *testing.T) {
	start := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	assert.Empty(t, anchorSlices(start, start, maxAnchorSpan))
	assert.Empty(t, anchorSlices(start, start.Add(-time.Hour), maxAnchorSpan))
}
