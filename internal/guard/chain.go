package guard

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Observer is notified of every chain decision.
type Observer interface {
	Observe(ctx context.Context, d Decision)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, d Decision)

func (f ObserverFunc) Observe(ctx context.Context, d Decision) { f(ctx, d) }

// Chain runs guards in order and stops at the first one that does not allow.
type Chain struct {
	guards    []Guard
	observers []Observer
	decisions metric.Int64Counter
}

// Option configures a Chain.
type Option func(*Chain)

// WithObserver adds an observer.
func WithObserver(o Observer) Option {
	return func(c *Chain) {
		if o != nil {
			c.observers = append(c.observers, o)
		}
	}
}

// WithMeter records decisions on m instead of the global meter provider.
func WithMeter(m metric.Meter) Option {
	return func(c *Chain) { c.decisions = newDecisionCounter(m) }
}

// NewChain returns a chain over guards, evaluated in the given order.
func NewChain(guards []Guard, opts ...Option) *Chain {
	c := &Chain{guards: guards}
	for _, o := range opts {
		o(c)
	}
	if c.decisions == nil {
		c.decisions = newDecisionCounter(otel.Meter("orgscope/guard"))
	}
	return c
}

// Standard returns the auth, tenant, permission chain.
func Standard(auth AuthGuard, tenant TenantGuard, perm PermissionGuard, opts ...Option) *Chain {
	return NewChain([]Guard{auth, tenant, perm}, opts...)
}

func newDecisionCounter(m metric.Meter) metric.Int64Counter {
	counter, err := m.Int64Counter("orgscope.guard.decisions",
		metric.WithDescription("Access guard chain decisions by stage, outcome and reason."))
	if err != nil {
		otel.Handle(err)
	}
	return counter
}

// Evaluate returns the first non-allow decision, or an allow decision from the last guard.
// An empty chain allows.
func (c *Chain) Evaluate(ctx context.Context) Decision {
	d := c.evaluate(ctx)
	c.record(ctx, d)
	return d
}

func (c *Chain) evaluate(ctx context.Context) Decision {
	d := allow(StagePermission)
	for _, g := range c.guards {
		d = g.Evaluate(ctx)
		if d.Outcome != OutcomeAllow {
			break
		}
	}
	return d
}

// Await re-evaluates every interval until the chain no longer reports Loading or ctx is done.
// On ctx expiry the last Loading decision is returned with ctx.Err(). Only the returned
// decision is recorded.
func (c *Chain) Await(ctx context.Context, interval time.Duration) (d Decision, err error) {
	if interval <= 0 {
		interval = 50 * time.Millisecond
	}
	defer func() { c.record(ctx, d) }()
	d = c.evaluate(ctx)
	if d.Outcome != OutcomeLoading {
		return d, nil
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return d, ctx.Err()
		case <-ticker.C:
			d = c.evaluate(ctx)
			if d.Outcome != OutcomeLoading {
				return d, nil
			}
		}
	}
}

// Do runs fn only when the chain allows. The returned error is fn's own; denials and
// Loading are reported through the Decision alone.
func (c *Chain) Do(ctx context.Context, fn func(context.Context) error) (Decision, error) {
	d := c.Evaluate(ctx)
	if !d.Allowed() {
		return d, nil
	}
	return d, fn(ctx)
}

func (c *Chain) record(ctx context.Context, d Decision) {
	if c.decisions != nil {
		c.decisions.Add(ctx, 1, metric.WithAttributes(
			attribute.String("stage", d.Stage.String()),
			attribute.String("outcome", d.Outcome.String()),
			attribute.String("reason", string(d.Reason)),
		))
	}
	for _, o := range c.observers {
		o.Observe(ctx, d)
	}
}
