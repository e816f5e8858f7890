package worker

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testLockKey = "fr:warmer:leader"

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func newElector(client redis.UniversalClient, ttl, renew time.Duration, onWin, onLose func()) *LeaderElector {
	return NewLeaderElector(client, testLockKey, ttl, renew, onWin, onLose, nil)
}

func TestLeaderElector_LockPrimitives(t *testing.T) {
	ctx := context.Background()
	const self, other = "self", "other-instance"

	tests := []struct {
		name     string
		holder   string // "" means no lock
		op       func(le *LeaderElector) bool
		wantOK   bool
		wantHeld string // "" means the key is gone
	}{
		{"acquire free lock", "", func(le *LeaderElector) bool { return le.tryAcquireLock(ctx) }, true, self},
		{"acquire held lock", other, func(le *LeaderElector) bool { return le.tryAcquireLock(ctx) }, false, other},
		{"renew own lock", self, func(le *LeaderElector) bool { return le.renewLock(ctx) }, true, self},
		{"renew taken-over lock", other, func(le *LeaderElector) bool { return le.renewLock(ctx) }, false, other},
		{"release own lock", self, func(le *LeaderElector) bool { le.releaseLock(ctx); return true }, true, ""},
		{"release foreign lock", other, func(le *LeaderElector) bool { le.releaseLock(ctx); return true }, true, other},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mr, client := setupTestRedis(t)
			le := newElector(client, 30*time.Second, 10*time.Second, nil, nil)
			le.instanceID = self
			if tt.holder != "" {
				require.NoError(t, mr.Set(testLockKey, tt.holder))
			}

			assert.Equal(t, tt.wantOK, tt.op(le))

			if tt.wantHeld == "" {
				assert.False(t, mr.Exists(testLockKey))
				return
			}
			got, err := mr.Get(testLockKey)
			require.NoError(t, err)
			assert.Equal(t, tt.wantHeld, got)
			if tt.wantHeld == self {
				assert.Greater(t, mr.TTL(testLockKey), time.Duration(0), "an owned lock always expires")
			}
		})
	}
}

func TestLeaderElector_GainAndLoseLeadership(t *testing.T) {
	mr, client := setupTestRedis(t)
	var won, lost atomic.Bool

	le := newElector(client, 100*time.Millisecond, 50*time.Millisecond,
		func() { won.Store(true) }, func() { lost.Store(true) })
	le.Start()
	defer le.Stop()

	require.Eventually(t, le.IsLeader, time.Second, 10*time.Millisecond)
	assert.True(t, won.Load())

	require.NoError(t, mr.Set(testLockKey, "another-instance-took-over"))
	require.Eventually(t, func() bool { return !le.IsLeader() }, time.Second, 10*time.Millisecond)
	assert.True(t, lost.Load())
}

func TestLeaderElector_StopReleasesLock(t *testing.T) {
	mr, client := setupTestRedis(t)
	le := newElector(client, 30*time.Second, 10*time.Second, nil, nil)

	le.Start()
	require.Eventually(t, le.IsLeader, time.Second, 10*time.Millisecond)
	le.Stop()

	assert.False(t, le.IsLeader())
	assert.False(t, mr.Exists(testLockKey))
}

func TestLeaderElector_InstanceIDsAreUnique(t *testing.T) {
	_, client := setupTestRedis(t)
	a := newElector(client, time.Minute, time.Second, nil, nil)
	b := newElector(client, time.Minute, time.Second, nil, nil)

	assert.Contains(t, a.InstanceID(), "-")
	assert.NotEqual(t, a.InstanceID(), b.InstanceID())
}

func TestLeaderElector_SingleLeader(t *testing.T) {
	_, client := setupTestRedis(t)
	var secondWon atomic.Bool

	first := newElector(client, 100*time.Millisecond, 30*time.Millisecond, nil, nil)
	second := newElector(client, 100*time.Millisecond, 30*time.Millisecond, func() { secondWon.Store(true) }, nil)

	first.Start()
	defer first.Stop()
	require.Eventually(t, first.IsLeader, time.Second, 10*time.Millisecond)

	second.Start()
	defer second.Stop()
	time.Sleep(150 * time.Millisecond)

	assert.True(t, first.IsLeader(), "renewals keep the lock with the first instance")
	assert.False(t, second.IsLeader())
	assert.False(t, secondWon.Load())
}
