package consolidation

import (
	"context"
	"errors"
	"time"

	"github.com/Gobusters/ectologger"

	clovererrors "github.com/Ramsey-B/clover/pkg/errors"
	"github.com/Ramsey-B/clover/pkg/metrics"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/viewstore"
)

const rebuildLockKey = "rebuild"

// ErrRebuildInProgress is returned when another rebuild holds the rebuild lock.
var ErrRebuildInProgress = errors.New("a rebuild is already in progress")

// Rebuilder runs one rebuild.
type Rebuilder interface {
	Rebuild(ctx context.Context) (*models.RebuildResult, error)
}

// Locker serializes rebuilds across processes.
type Locker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(ctx context.Context) error) error
}

// EventPublisher announces finished rebuilds.
type EventPublisher interface {
	PublishRebuildCompleted(ctx context.Context, result *models.RebuildResult) error
}

// Coordinator is the single entry point for triggering rebuilds from the API, the CLI and the
// Kafka trigger.
type Coordinator struct {
	engine    Rebuilder
	locker    Locker
	publisher EventPublisher
	lockTTL   time.Duration
	logger    ectologger.Logger
}

// NewCoordinator builds a coordinator. publisher may be nil.
func NewCoordinator(engine Rebuilder, locker Locker, publisher EventPublisher, lockTTL time.Duration, logger ectologger.Logger) *Coordinator {
	return &Coordinator{
		engine:    engine,
		locker:    locker,
		publisher: publisher,
		lockTTL:   lockTTL,
		logger:    logger,
	}
}

// Rebuild runs the engine under the rebuild lock. It returns ErrRebuildInProgress when the lock
// is held elsewhere, and the engine's error when the rebuild aborted.
func (c *Coordinator) Rebuild(ctx context.Context) (*models.RebuildResult, error) {
	var result *models.RebuildResult
	err := c.locker.WithLock(ctx, rebuildLockKey, c.lockTTL, func(ctx context.Context) error {
		var rebuildErr error
		result, rebuildErr = c.engine.Rebuild(ctx)
		return rebuildErr
	})

	if result == nil {
		if errors.Is(err, viewstore.ErrLockNotAcquired) {
			metrics.RecordRebuildRejected()
			c.logger.WithContext(ctx).Info("Rebuild requested while another rebuild is running")
			return nil, ErrRebuildInProgress
		}
		if err == nil {
			return nil, errors.New("rebuild produced no result")
		}
		return nil, clovererrors.NewConnectivityError("viewstore", "acquire_lock", rebuildLockKey, err)
	}

	metrics.RecordRebuild(result)

	if c.publisher != nil {
		if pubErr := c.publisher.PublishRebuildCompleted(context.WithoutCancel(ctx), result); pubErr != nil {
			c.logger.WithContext(ctx).WithError(pubErr).Warn("Failed to publish rebuild completed event")
		}
	}

	return result, err
}

// RebuildErr adapts Rebuild to callers that only care whether the rebuild ran.
func (c *Coordinator) RebuildErr(ctx context.Context) error {
	_, err := c.Rebuild(ctx)
	return err
}

// RetryWhileInProgress calls fn until it returns something other than ErrRebuildInProgress,
// waiting retryDelay between calls and giving up after maxAttempts. The last error is returned.
func RetryWhileInProgress(ctx context.Context, retryDelay time.Duration, maxAttempts int, fn func(ctx context.Context, attempt int) error) error {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err = fn(ctx, attempt)
		if !errors.Is(err, ErrRebuildInProgress) || attempt == maxAttempts {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryDelay):
		}
	}
	return err
}
