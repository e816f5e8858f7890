package worker

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gilby125/flight-radius/pkg/logger"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// LeaderElector holds a Redis lock so that only one instance runs the
// cache warmer when several share a Redis.
type LeaderElector struct {
	redisClient    redis.UniversalClient
	lockKey        string
	lockTTL        time.Duration
	renewInterval  time.Duration
	instanceID     string
	isLeader       atomic.Bool
	stopChan       chan struct{}
	wg             sync.WaitGroup
	onBecomeLeader func()
	onLoseLeader   func()
	log            *logger.Logger
}

// NewLeaderElector creates a new leader elector. Either callback may be nil.
func NewLeaderElector(
	redisClient redis.UniversalClient,
	lockKey string,
	lockTTL time.Duration,
	renewInterval time.Duration,
	onBecomeLeader func(),
	onLoseLeader func(),
	log *logger.Logger,
) *LeaderElector {
	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		hostname = "flight-radius"
	}
	if log == nil {
		log = logger.Nop()
	}
	instanceID := hostname + "-" + uuid.NewString()[:8]

	return &LeaderElector{
		redisClient:    redisClient,
		lockKey:        lockKey,
		lockTTL:        lockTTL,
		renewInterval:  renewInterval,
		instanceID:     instanceID,
		stopChan:       make(chan struct{}),
		onBecomeLeader: onBecomeLeader,
		onLoseLeader:   onLoseLeader,
		log:            log.WithFields(map[string]interface{}{"component": "leader", "instance": instanceID}),
	}
}

// Start begins the election loop in a goroutine.
func (le *LeaderElector) Start() {
	le.wg.Add(1)
	go le.electionLoop()
	le.log.Info("Leader election started", "key", le.lockKey, "ttl", le.lockTTL, "renew", le.renewInterval)
}

// Stop releases leadership (if held) and stops the election loop.
func (le *LeaderElector) Stop() {
	close(le.stopChan)
	le.wg.Wait()

	if le.isLeader.Load() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		le.releaseLock(ctx)
		le.isLeader.Store(false)
	}
	le.log.Info("Leader election stopped")
}

// IsLeader returns whether this instance currently holds leadership.
func (le *LeaderElector) IsLeader() bool {
	return le.isLeader.Load()
}

// InstanceID returns the unique identifier for this instance.
func (le *LeaderElector) InstanceID() string {
	return le.instanceID
}

func (le *LeaderElector) electionLoop() {
	defer le.wg.Done()

	le.tryMaintainLeadership()

	ticker := time.NewTicker(le.renewInterval)
	defer ticker.Stop()

	for {
		select {
		case <-le.stopChan:
			return
		case <-ticker.C:
			le.tryMaintainLeadership()
		}
	}
}

func (le *LeaderElector) tryMaintainLeadership() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if le.isLeader.Load() {
		if !le.renewLock(ctx) {
			le.log.Warn("Lost leadership: failed to renew lock")
			le.isLeader.Store(false)
			if le.onLoseLeader != nil {
				le.onLoseLeader()
			}
		}
		return
	}

	if le.tryAcquireLock(ctx) {
		le.log.Info("Acquired leadership")
		le.isLeader.Store(true)
		if le.onBecomeLeader != nil {
			le.onBecomeLeader()
		}
	}
}

func (le *LeaderElector) tryAcquireLock(ctx context.Context) bool {
	ok, err := le.redisClient.SetNX(ctx, le.lockKey, le.instanceID, le.lockTTL).Result()
	if err != nil {
		le.log.Error(err, "Error acquiring leader lock")
		return false
	}
	return ok
}

// renewScript extends the lock only while this instance still owns it.
var renewScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("PEXPIRE", KEYS[1], ARGV[2])
	else
		return 0
	end
`)

func (le *LeaderElector) renewLock(ctx context.Context) bool {
	result, err := renewScript.Run(ctx, le.redisClient,
		[]string{le.lockKey},
		le.instanceID,
		le.lockTTL.Milliseconds(),
	).Int()
	if err != nil {
		le.log.Error(err, "Error renewing leader lock")
		return false
	}
	return result == 1
}

// releaseScript deletes the lock only if this instance owns it.
var releaseScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	else
		return 0
	end
`)

func (le *LeaderElector) releaseLock(ctx context.Context) {
	result, err := releaseScript.Run(ctx, le.redisClient,
		[]string{le.lockKey},
		le.instanceID,
	).Int()

	switch {
	case err != nil:
		le.log.Error(err, "Error releasing leader lock")
	case result == 1:
		le.log.Info("Released leader lock")
	default:
		le.log.Debug("Leader lock held by another instance or already expired")
	}
}
