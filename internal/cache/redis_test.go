package cache

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryCache struct {
	values map[string]string
	ttls   map[string]time.Duration
	err    error
}

func newMemoryCache() *memoryCache {
	return &memoryCache{values: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (m *memoryCache) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	if m.err != nil {
		return m.err
	}
	m.values[key] = fmt.Sprint(value)
	m.ttls[key] = ttl
	return nil
}

func (m *memoryCache) Get(_ context.Context, key string) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	return m.values[key], nil
}

func (m *memoryCache) GenerateKey(operation, key string) string {
	return "storefront:" + operation + ":" + key
}

func TestEventLog(t *testing.T) {
	ctx := context.Background()
	mc := newMemoryCache()
	log := NewEventLog(mc, 0)

	seen, err := log.Seen(ctx, "evt_1")
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, log.Remember(ctx, "evt_1"))

	seen, err = log.Seen(ctx, "evt_1")
	require.NoError(t, err)
	assert.True(t, seen)

	seen, err = log.Seen(ctx, "evt_2")
	require.NoError(t, err)
	assert.False(t, seen)

	assert.Equal(t, DefaultEventTTL, mc.ttls["storefront:webhook-event:evt_1"])
}

func TestEventLog_Errors(t *testing.T) {
	ctx := context.Background()
	mc := newMemoryCache()
	mc.err = errors.New("connection refused")
	log := NewEventLog(mc, time.Hour)

	_, err := log.Seen(ctx, "evt_1")
	assert.ErrorIs(t, err, mc.err)

	assert.ErrorIs(t, log.Remember(ctx, "evt_1"), mc.err)
}
