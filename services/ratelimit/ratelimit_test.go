package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/madrasa/core"
)

func TestMemoryLimiter_Allow(t *testing.T) {
	now := time.Date(2024, time.March, 1, 10, 0, 0, 0, time.UTC)
	nowFunc = func() time.Time { return now }
	defer func() { nowFunc = time.Now }()

	ctx := context.Background()
	l := NewMemoryLimiter(2, time.Minute)

	tests := []struct {
		name    string
		key     string
		advance time.Duration
		want    bool
	}{
		{name: "first attempt", key: "1.1.1.1", want: true},
		{name: "second attempt", key: "1.1.1.1", want: true},
		{name: "third attempt blocked", key: "1.1.1.1", want: false},
		{name: "other key unaffected", key: "2.2.2.2", want: true},
		{name: "still blocked within window", key: "1.1.1.1", advance: 30 * time.Second, want: false},
		{name: "window expired", key: "1.1.1.1", advance: 30 * time.Second, want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			now = now.Add(tt.advance)
			ok, err := l.Allow(ctx, tt.key)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
		})
	}
}

func TestMemoryLimiter_prunesExpiredWindows(t *testing.T) {
	now := time.Date(2024, time.March, 1, 10, 0, 0, 0, time.UTC)
	nowFunc = func() time.Time { return now }
	defer func() { nowFunc = time.Now }()

	l := NewMemoryLimiter(5, time.Minute)
	for _, k := range []string{"a", "b", "c"} {
		_, _ = l.Allow(context.Background(), k)
	}
	now = now.Add(2 * time.Minute)
	_, _ = l.Allow(context.Background(), "d")
	assert.Len(t, l.windows, 1)
}

func TestNew(t *testing.T) {
	conf := core.NewTestConfig()
	assert.IsType(t, &MemoryLimiter{}, New(conf))

	conf.Redis.Addr = "localhost:6379"
	assert.IsType(t, &RedisLimiter{}, New(conf))
}
