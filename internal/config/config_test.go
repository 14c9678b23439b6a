package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Setenv("POSTGRES_USER", "studio")
	t.Setenv("POSTGRES_PASSWORD", "secret")
	t.Setenv("POSTGRES_DB", "rehearsal")
}

func TestNew_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := New()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 9*60, cfg.Studio.OpenMinute)
	assert.Equal(t, 22*60, cfg.Studio.CloseMinute)
	assert.Equal(t, 60, cfg.Studio.MinDurationMinutes)
	assert.Equal(t, 45*time.Minute, cfg.Redis.SnapshotTTL)
	assert.Equal(t, 24*time.Hour, cfg.Sweep.Interval)
	assert.Equal(t, "booking-lifecycle", cfg.Kafka.Topic)
	assert.Empty(t, cfg.Kafka.Brokers)
}

func TestNew_Overrides(t *testing.T) {
	setRequired(t)
	t.Setenv("APP_ENV", "test")
	t.Setenv("STUDIO_TIMEZONE", "Europe/Berlin")
	t.Setenv("BUFFER_MINUTES", "15")
	t.Setenv("OPEN_AT", "08:30")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("SWEEP_INTERVAL", "1h")

	cfg, err := New()
	require.NoError(t, err)

	assert.True(t, cfg.IsTest())
	assert.Equal(t, "Europe/Berlin", cfg.Studio.Location.String())
	assert.Equal(t, 15, cfg.Studio.BufferMinutes)
	assert.Equal(t, 8*60+30, cfg.Studio.OpenMinute)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, time.Hour, cfg.Sweep.Interval)
}

func TestNew_Errors(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"bad port", "SERVER_PORT", "http"},
		{"bad zone", "STUDIO_TIMEZONE", "Mars/Olympus"},
		{"bad clock", "CLOSE_AT", "25:00"},
		{"close before open", "CLOSE_AT", "08:00"},
		{"negative buffer", "BUFFER_MINUTES", "-5"},
		{"zero ttl", "SNAPSHOT_TTL", "0s"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequired(t)
			t.Setenv(tt.key, tt.val)

			_, err := New()
			assert.Error(t, err)
		})
	}

	t.Run("missing user", func(t *testing.T) {
		setRequired(t)
		t.Setenv("POSTGRES_USER", "")

		_, err := New()
		assert.ErrorContains(t, err, "POSTGRES_USER")
	})
}
