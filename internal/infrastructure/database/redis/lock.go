package redis

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/aman-ankur/labextract/internal/infrastructure/monitoring/logging"
	"github.com/aman-ankur/labextract/pkg/errors"
)

var (
	ErrLockNotAcquired = errors.New(errors.ErrCodeCache, "document lock not acquired")
	ErrLockNotHeld     = errors.New(errors.ErrCodeCache, "document lock not held by this owner")
)

// DocumentLock keeps two workers from extracting the same document at the
// same time when the broker redelivers a job. Each instance owns a random
// token; only the holder can release or extend.
type DocumentLock interface {
	// Lock blocks until the lock is acquired or retries run out.
	Lock(ctx context.Context) error
	// TryLock attempts a single acquisition.
	TryLock(ctx context.Context) (bool, error)
	Unlock(ctx context.Context) error
	// Extend pushes the expiry out; the watchdog calls this while a long
	// extraction runs.
	Extend(ctx context.Context, ttl time.Duration) (bool, error)
	TTL(ctx context.Context) (time.Duration, error)
}

type LockOption func(*lockConfig)

func WithLockTTL(ttl time.Duration) LockOption {
	return func(c *lockConfig) { c.ttl = ttl }
}

func WithRetryDelay(delay time.Duration) LockOption {
	return func(c *lockConfig) { c.retryDelay = delay }
}

func WithRetryCount(count int) LockOption {
	return func(c *lockConfig) { c.retryCount = count }
}

func WithWatchdog(enabled bool) LockOption {
	return func(c *lockConfig) { c.watchdogEnabled = enabled }
}

type lockConfig struct {
	ttl              time.Duration
	retryDelay       time.Duration
	retryCount       int
	watchdogEnabled  bool
	watchdogInterval time.Duration
}

type documentLock struct {
	client *Client
	key    string
	token  string
	config lockConfig
	logger logging.Logger

	watchdogCancel context.CancelFunc
	watchdogDone   chan struct{}
}

var _ DocumentLock = (*documentLock)(nil)

// NewDocumentLock builds a lock for one document ID. Defaults suit worker
// handlers: a short TTL kept alive by the watchdog, so a crashed worker
// frees the document quickly.
func NewDocumentLock(client *Client, documentID string, log logging.Logger, opts ...LockOption) DocumentLock {
	cfg := lockConfig{
		ttl:             30 * time.Second,
		retryDelay:      100 * time.Millisecond,
		retryCount:      30,
		watchdogEnabled: true,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.watchdogInterval == 0 {
		cfg.watchdogInterval = cfg.ttl / 3
	}

	return &documentLock{
		client: client,
		key:    "labx:lock:document:" + documentID,
		token:  uuid.New().String(),
		config: cfg,
		logger: logging.OrNop(log).Named("doclock"),
	}
}

var unlockScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	else
		return 0
	end
`)

var extendScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("PEXPIRE", KEYS[1], ARGV[2])
	else
		return 0
	end
`)

func (l *documentLock) Lock(ctx context.Context) error {
	for i := 0; i < l.config.retryCount; i++ {
		ok, err := l.TryLock(ctx)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return errors.Wrap(ctx.Err(), errors.ErrCodeCancelled, "lock wait cancelled")
		case <-time.After(l.config.retryDelay):
		}
	}
	return ErrLockNotAcquired
}

func (l *documentLock) TryLock(ctx context.Context) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key, l.token, l.config.ttl).Result()
	if err != nil {
		return false, errors.Wrap(err, errors.ErrCodeCache, "lock acquire")
	}
	if ok && l.config.watchdogEnabled {
		l.startWatchdog()
	}
	return ok, nil
}

func (l *documentLock) Unlock(ctx context.Context) error {
	l.stopWatchdog()
	res, err := unlockScript.Run(ctx, l.client.Underlying(), []string{l.key}, l.token).Result()
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeCache, "lock release")
	}
	if res.(int64) == 0 {
		return ErrLockNotHeld
	}
	return nil
}

func (l *documentLock) Extend(ctx context.Context, ttl time.Duration) (bool, error) {
	res, err := extendScript.Run(ctx, l.client.Underlying(), []string{l.key}, l.token, ttl.Milliseconds()).Result()
	if err != nil {
		return false, errors.Wrap(err, errors.ErrCodeCache, "lock extend")
	}
	return res.(int64) == 1, nil
}

func (l *documentLock) TTL(ctx context.Context) (time.Duration, error) {
	return l.client.Underlying().PTTL(ctx, l.key).Result()
}

func (l *documentLock) startWatchdog() {
	ctx, cancel := context.WithCancel(context.Background())
	l.watchdogCancel = cancel
	l.watchdogDone = make(chan struct{})

	go func() {
		defer close(l.watchdogDone)
		ticker := time.NewTicker(l.config.watchdogInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				ok, err := l.Extend(ctx, l.config.ttl)
				if err != nil {
					l.logger.Error("lock extend failed", logging.Err(err))
					return
				}
				if !ok {
					l.logger.Warn("lock lost before release", logging.String("key", l.key))
					return
				}
			}
		}
	}()
}

func (l *documentLock) stopWatchdog() {
	if l.watchdogCancel != nil {
		l.watchdogCancel()
		<-l.watchdogDone
		l.watchdogCancel = nil
	}
}
