package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func targetAngle(t *testing.T, svc CaptchaService, id string) int {
	t.Helper()
	store, ok := svc.(*captchaServiceImpl).store.(*localChallengeStore)
	require.True(t, ok)
	store.mu.Lock()
	defer store.mu.Unlock()
	entry, ok := store.entries[id]
	require.True(t, ok)
	return entry.angle
}

func TestCaptchaServiceRoundTrip(t *testing.T) {
	ctx := context.Background()
	svc := NewCaptchaService(nil, time.Minute, 10, 120)

	challenge, err := svc.Generate(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, challenge.ID)
	assert.NotEmpty(t, challenge.MasterImage)
	assert.NotEmpty(t, challenge.ThumbImage)

	angle := targetAngle(t, svc, challenge.ID)
	assert.True(t, svc.Verify(ctx, challenge.ID, float64(angle)+0.4))
	assert.False(t, svc.Verify(ctx, challenge.ID, float64(angle)), "a challenge is single use")
}

func TestCaptchaServiceRejects(t *testing.T) {
	ctx := context.Background()
	svc := NewCaptchaService(nil, time.Minute, 10, 120)

	challenge, err := svc.Generate(ctx)
	require.NoError(t, err)
	angle := targetAngle(t, svc, challenge.ID)

	assert.False(t, svc.Verify(ctx, challenge.ID, float64((angle+180)%360)))
	assert.False(t, svc.Verify(ctx, "", 0))
	assert.False(t, svc.Verify(ctx, "unknown", 0))
}

func TestCaptchaServiceExpiry(t *testing.T) {
	ctx := context.Background()
	svc := NewCaptchaService(nil, time.Minute, 10, 120)
	impl := svc.(*captchaServiceImpl)
	impl.ttl = time.Millisecond

	challenge, err := svc.Generate(ctx)
	require.NoError(t, err)
	angle := targetAngle(t, svc, challenge.ID)

	time.Sleep(5 * time.Millisecond)
	assert.False(t, svc.Verify(ctx, challenge.ID, float64(angle)))
}

func TestMemoryRevocationStore_CaptchaSuite(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryRevocationStore()

	require.NoError(t, store.Revoke(ctx, "live", time.Now().Add(time.Hour)))
	require.NoError(t, store.Revoke(ctx, "already-expired", time.Now().Add(-time.Second)))

	revoked, err := store.IsRevoked(ctx, "live")
	require.NoError(t, err)
	assert.True(t, revoked)

	revoked, err = store.IsRevoked(ctx, "already-expired")
	require.NoError(t, err)
	assert.False(t, revoked)

	revoked, err = store.IsRevoked(ctx, "never-seen")
	require.NoError(t, err)
	assert.False(t, revoked)
}
