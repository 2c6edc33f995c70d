package authkit

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ramppy/authkit/internal"
	"github.com/ramppy/authkit/internal/audit"
	"github.com/ramppy/authkit/internal/rate"
	"github.com/ramppy/authkit/password"
	"github.com/ramppy/authkit/record"
	"github.com/ramppy/authkit/session"
)

// Builder assembles an Engine. A Builder is single-use: Build fails on the
// second call.
type Builder struct {
	config Config

	records     record.Store
	redis       redis.UniversalClient
	sessionTier session.Tier
	profileTier session.Tier

	auditSink AuditSink
	notifier  Notifier
	logger    *slog.Logger
	now       func() time.Time
	sleep     func(context.Context, time.Duration) error

	built bool
}

// New returns a Builder preloaded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRecordStore sets the credential store. Required.
func (b *Builder) WithRecordStore(store record.Store) *Builder {
	b.records = store
	return b
}

// WithRedis backs sessions, profiles and rate-limit buckets with Redis.
// Without it the engine keeps that state in process memory.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithSessionTiers overrides the session and profile storage tiers. It takes
// precedence over WithRedis for session state only.
func (b *Builder) WithSessionTiers(sessions, profiles session.Tier) *Builder {
	b.sessionTier = sessions
	b.profileTier = profiles
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

func (b *Builder) WithNotifier(n Notifier) *Builder {
	b.notifier = n
	return b
}

func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithClock replaces time.Now for every expiry, lock and window decision.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// WithSleeper replaces the wait used for failed-login response delays.
func (b *Builder) WithSleeper(sleep func(context.Context, time.Duration) error) *Builder {
	b.sleep = sleep
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// Build validates the configuration and starts the engine's background
// work: the audit dispatcher and, for in-memory limiting, the bucket sweep.
// Call Engine.Close to stop them.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.records == nil {
		return nil, errors.New("record store required")
	}

	hasher, err := password.NewPBKDF2(password.Config{
		Iterations: cfg.Password.Iterations,
		SaltLength: cfg.Password.SaltLength,
		KeyLength:  cfg.Password.KeyLength,
	})
	if err != nil {
		return nil, err
	}

	now := b.now
	if now == nil {
		now = time.Now
	}
	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}
	sleep := b.sleep
	if sleep == nil {
		sleep = sleepContext
	}
	notifier := b.notifier
	if notifier == nil {
		notifier = NoOpNotifier{}
	}

	// -------- SESSION STORE --------
	sessionTier, profileTier := b.sessionTier, b.profileTier
	if sessionTier == nil || profileTier == nil {
		if b.redis != nil {
			sessionTier = session.NewRedisTier(b.redis)
			profileTier = sessionTier
		} else {
			sessionTier = session.NewMemoryTier(now)
			profileTier = session.NewMemoryTier(now)
		}
	}
	sessions := session.NewStore(sessionTier, profileTier, session.StoreConfig{
		SessionPrefix: cfg.Session.SessionPrefix,
		ProfilePrefix: cfg.Session.ProfilePrefix,
		ProfileTTL:    cfg.Session.ProfileTTL,
	}, now)

	e := &Engine{
		config:      cfg,
		records:     b.records,
		sessions:    sessions,
		hasher:      hasher,
		notifier:    notifier,
		metrics:     NewMetrics(cfg.Metrics),
		logger:      logger,
		now:         now,
		sleep:       sleep,
		accountLock: internal.NewKeyLock(64),
		clientLock:  internal.NewKeyLock(64),
	}

	// -------- RATE LIMITER --------
	if b.redis != nil {
		e.limiter = rate.NewRedis(b.redis, cfg.RateLimit.RedisPrefix, now)
	} else {
		mem := rate.NewMemory(now, cfg.RateLimit.Retention)
		sweepCtx, cancel := context.WithCancel(context.Background())
		e.stopSweep = cancel
		e.sweepDone = make(chan struct{})
		go func() {
			defer close(e.sweepDone)
			mem.Run(sweepCtx, cfg.RateLimit.SweepInterval)
		}()
		e.limiter = mem
	}

	// -------- AUDIT --------
	sink := b.auditSink
	if sink == nil {
		sink = audit.NewLogSink(logger)
	}
	if cfg.Audit.PersistIncidents {
		sink = audit.MultiSink{sink, incidentSink{store: b.records}}
	}
	e.audit = audit.NewDispatcher(audit.Config{
		Enabled:         cfg.Audit.Enabled,
		BufferSize:      cfg.Audit.BufferSize,
		DropIfFull:      cfg.Audit.DropIfFull,
		DeliveryTimeout: cfg.Store.Timeout,
	}, sink, logger)

	b.built = true
	return e, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
