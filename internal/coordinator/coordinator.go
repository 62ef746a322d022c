package coordinator

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/switchd/internal/adapter"
	"github.com/fyrsmithlabs/switchd/internal/cache"
	"github.com/fyrsmithlabs/switchd/internal/conversation"
	"github.com/fyrsmithlabs/switchd/internal/resource"
	"github.com/fyrsmithlabs/switchd/internal/vectorstore"
)

const instrumentationName = "github.com/fyrsmithlabs/switchd/internal/coordinator"

// Common errors.
var (
	ErrEmptyProjectID = errors.New("project id cannot be empty")
	ErrInvalidKind    = errors.New("invalid resource kind")
)

// Caches bundles the three resource caches the coordinator owns.
type Caches struct {
	Adapters     *cache.Cache[*adapter.Adapter]
	VectorStores *cache.Cache[*vectorstore.Store]
	Contexts     *cache.Cache[*conversation.Context]
}

// Coordinator owns the three resource caches and the single source of
// truth for the active project.
type Coordinator struct {
	adapters *cache.Cache[*adapter.Adapter]
	stores   *cache.Cache[*vectorstore.Store]
	contexts *cache.Cache[*conversation.Context]
	ctxStore *conversation.Store
	logger   *zap.Logger

	// Telemetry
	tracer          trace.Tracer
	meter           metric.Meter
	switchCounter   metric.Int64Counter
	degradedCounter metric.Int64Counter
	switchDuration  metric.Float64Histogram

	mu            sync.Mutex
	active        string
	nextSeq       uint64
	lastCompleted uint64 // sequence of the switch that last wrote the pointer
	state         State
	lastFailure   *Failure
}

// New creates a coordinator over the given caches. ctxStore persists
// outgoing conversation contexts on successful switches.
func New(caches Caches, ctxStore *conversation.Store, logger *zap.Logger) (*Coordinator, error) {
	if caches.Adapters == nil || caches.VectorStores == nil || caches.Contexts == nil {
		return nil, errors.New("all three resource caches are required")
	}
	if ctxStore == nil {
		return nil, errors.New("context store is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &Coordinator{
		adapters: caches.Adapters,
		stores:   caches.VectorStores,
		contexts: caches.Contexts,
		ctxStore: ctxStore,
		logger:   logger,
		tracer:   otel.Tracer(instrumentationName),
		meter:    otel.Meter(instrumentationName),
		state:    StateIdle,
	}

	c.initMetrics()

	return c, nil
}

// initMetrics initializes OpenTelemetry metrics.
func (c *Coordinator) initMetrics() {
	var err error

	c.switchCounter, err = c.meter.Int64Counter(
		"switchd.coordinator.switches_total",
		metric.WithDescription("Total number of project switches"),
		metric.WithUnit("{switch}"),
	)
	if err != nil {
		c.logger.Warn("failed to create switch counter", zap.Error(err))
	}

	c.degradedCounter, err = c.meter.Int64Counter(
		"switchd.coordinator.degraded_total",
		metric.WithDescription("Total number of degraded switches by failed resource kind"),
		metric.WithUnit("{switch}"),
	)
	if err != nil {
		c.logger.Warn("failed to create degraded counter", zap.Error(err))
	}

	c.switchDuration, err = c.meter.Float64Histogram(
		"switchd.coordinator.switch_duration_seconds",
		metric.WithDescription("Duration of project switches in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		c.logger.Warn("failed to create switch duration histogram", zap.Error(err))
	}
}

// Activate makes projectID the active project.
//
// Handles are acquired in fixed order: adapter, vector store, context.
// On full success the active-project pointer swaps to projectID and
// the outgoing project's context is persisted best-effort. On partial
// failure nothing already acquired is rolled back (it stays cached for
// the next attempt), the pointer is unchanged, and the returned error
// names the resource kind that failed.
//
// Concurrent Activate calls race safely: the last one to complete its
// acquisitions wins the pointer; earlier completions that were
// superseded still warm their caches but do not stomp the pointer.
func (c *Coordinator) Activate(ctx context.Context, projectID string) (*ActivationResult, error) {
	if projectID == "" {
		return nil, ErrEmptyProjectID
	}

	ctx, span := c.tracer.Start(ctx, "coordinator.activate",
		trace.WithAttributes(attribute.String("project_id", projectID)))
	defer span.End()

	start := time.Now()

	c.mu.Lock()
	fromID := c.active
	c.nextSeq++
	seq := c.nextSeq
	c.state = StateSwitching
	c.lastFailure = nil
	c.mu.Unlock()

	// Re-activating the active project is a read: refresh recency on
	// all three handles and return. If any handle went missing
	// (evicted or invalidated underneath us), reacquire below.
	if projectID == fromID {
		a := c.adapters.Touch(projectID)
		v := c.stores.Touch(projectID)
		x := c.contexts.Touch(projectID)
		if a && v && x {
			c.mu.Lock()
			if seq > c.lastCompleted {
				c.lastCompleted = seq
				c.state = StateIdle
			}
			c.mu.Unlock()
			span.SetStatus(codes.Ok, "already active")
			return c.successResult(ctx, projectID, false, start)
		}
	}

	// Fixed acquisition order: adapter, vector store, context. This
	// ordering is the sole cross-cache lock ordering in the process.
	adapterHandle, err := c.adapters.Get(ctx, projectID)
	if err != nil {
		return c.failResult(ctx, span, projectID, resource.KindAdapter, err, start)
	}
	if _, err := c.stores.Get(ctx, projectID); err != nil {
		return c.failResult(ctx, span, projectID, resource.KindVectorStore, err, start)
	}
	if _, err := c.contexts.Get(ctx, projectID); err != nil {
		return c.failResult(ctx, span, projectID, resource.KindContext, err, start)
	}

	// Pointer write: last completion wins, guarded by the sequence
	// number taken at call start.
	c.mu.Lock()
	superseded := seq <= c.lastCompleted
	if !superseded {
		c.active = projectID
		c.lastCompleted = seq
		c.state = StateIdle
	}
	c.mu.Unlock()

	if superseded {
		c.logger.Debug("switch superseded by a newer completion",
			zap.String("project_id", projectID))
		span.SetStatus(codes.Ok, "superseded")
		res, err := c.successResult(ctx, projectID, adapterHandle.Value().Base, start)
		if res != nil {
			res.Superseded = true
		}
		return res, err
	}

	// Persist the outgoing project's context. Best-effort: losing
	// unsaved conversation state is preferable to blocking a switch.
	if fromID != "" && fromID != projectID {
		c.persistOutgoing(ctx, fromID)
	}

	c.logger.Info("project activated",
		zap.String("project_id", projectID),
		zap.String("previous", fromID),
		zap.Bool("adapter_fallback", adapterHandle.Value().Base),
		zap.Duration("took", time.Since(start)))
	span.SetStatus(codes.Ok, "activated")

	return c.successResult(ctx, projectID, adapterHandle.Value().Base, start)
}

// Active returns the currently active project ID, or empty if none.
func (c *Coordinator) Active() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Status returns a point-in-time view of the coordinator and its
// caches.
func (c *Coordinator) Status() *Status {
	c.mu.Lock()
	active := c.active
	state := c.state
	var failure *Failure
	if c.lastFailure != nil {
		f := *c.lastFailure
		failure = &f
	}
	c.mu.Unlock()

	_, adapterOK := c.adapters.Peek(active)
	_, storeOK := c.stores.Peek(active)
	_, ctxOK := c.contexts.Peek(active)

	return &Status{
		Active:      active,
		State:       state,
		LastFailure: failure,
		Caches: map[resource.Kind]CacheStats{
			resource.KindAdapter: {
				Entries:        c.adapters.Len(),
				Bytes:          c.adapters.Bytes(),
				ActiveResident: active != "" && adapterOK,
			},
			resource.KindVectorStore: {
				Entries:        c.stores.Len(),
				Bytes:          c.stores.Bytes(),
				ActiveResident: active != "" && storeOK,
			},
			resource.KindContext: {
				Entries:        c.contexts.Len(),
				Bytes:          c.contexts.Bytes(),
				ActiveResident: active != "" && ctxOK,
			},
		},
	}
}

// Invalidate force-evicts a project's cached resource of the given
// kind. KindUnknown invalidates all three. Called when an external
// event (adapter retrained, project deleted) makes a cached resource
// stale.
func (c *Coordinator) Invalidate(projectID string, kind resource.Kind) error {
	if projectID == "" {
		return ErrEmptyProjectID
	}

	switch kind {
	case resource.KindAdapter:
		c.adapters.Invalidate(projectID)
	case resource.KindVectorStore:
		c.stores.Invalidate(projectID)
	case resource.KindContext:
		c.contexts.Invalidate(projectID)
	case resource.KindUnknown:
		c.adapters.Invalidate(projectID)
		c.stores.Invalidate(projectID)
		c.contexts.Invalidate(projectID)
	default:
		return ErrInvalidKind
	}

	c.logger.Info("resources invalidated",
		zap.String("project_id", projectID),
		zap.String("kind", kind.String()))
	return nil
}

// Close releases every cached resource.
func (c *Coordinator) Close() {
	c.contexts.Close()
	c.stores.Close()
	c.adapters.Close()
}

// persistOutgoing saves a project's context if it is still cached.
// Failures are logged, never propagated.
func (c *Coordinator) persistOutgoing(ctx context.Context, projectID string) {
	handle, ok := c.contexts.Peek(projectID)
	if !ok {
		return
	}
	if err := c.ctxStore.Persist(ctx, handle.Value()); err != nil {
		c.logger.Warn("failed to persist outgoing context; unsaved conversation state may be lost",
			zap.String("project_id", projectID),
			zap.Error(err))
	}
}

// successResult records success metrics and builds the result.
func (c *Coordinator) successResult(ctx context.Context, projectID string, adapterFallback bool, start time.Time) (*ActivationResult, error) {
	c.recordSwitch(ctx, "success", resource.KindUnknown, start)

	c.mu.Lock()
	active := c.active
	c.mu.Unlock()

	return &ActivationResult{
		ProjectID:       projectID,
		Active:          active,
		AdapterFallback: adapterFallback,
	}, nil
}

// failResult records a degraded switch: pointer unchanged, acquired
// resources kept, typed error returned.
func (c *Coordinator) failResult(ctx context.Context, span trace.Span, projectID string, kind resource.Kind, err error, start time.Time) (*ActivationResult, error) {
	kerr := resource.NewKindError(kind, err)

	c.mu.Lock()
	c.state = StateDegraded
	c.lastFailure = &Failure{
		ProjectID: projectID,
		Kind:      kind,
		Error:     kerr.Error(),
		At:        time.Now(),
	}
	active := c.active
	c.mu.Unlock()

	c.logger.Warn("degraded switch",
		zap.String("project_id", projectID),
		zap.String("failed_kind", kind.String()),
		zap.String("active", active),
		zap.Error(err))
	span.RecordError(kerr)
	span.SetStatus(codes.Error, kerr.Error())

	c.recordSwitch(ctx, "degraded", kind, start)

	return &ActivationResult{
		ProjectID:  projectID,
		Active:     active,
		Degraded:   true,
		FailedKind: kind,
	}, kerr
}

// recordSwitch updates switch metrics.
func (c *Coordinator) recordSwitch(ctx context.Context, result string, kind resource.Kind, start time.Time) {
	if c.switchCounter != nil {
		c.switchCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
	}
	if result == "degraded" && c.degradedCounter != nil {
		c.degradedCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind.String())))
	}
	if c.switchDuration != nil {
		c.switchDuration.Record(ctx, time.Since(start).Seconds(),
			metric.WithAttributes(attribute.String("result", result)))
	}
}
