// Copyright (c) 2024 Bryan Frimin <bryan@frimin.fr>.
//
// Permission to use, copy, modify, and/or distribute this software
// for any purpose with or without fee is hereby granted, provided
// that the above copyright notice and this permission notice appear
// in all copies.
//
// THE SOFTWARE IS PROVIDED "AS IS" AND THE AUTHOR DISCLAIMS ALL
// WARRANTIES WITH REGARD TO THIS SOFTWARE INCLUDING ALL IMPLIED
// WARRANTIES OF MERCHANTABILITY AND FITNESS. IN NO EVENT SHALL THE
// AUTHOR BE LIABLE FOR ANY SPECIAL, DIRECT, INDIRECT, OR
// CONSEQUENTIAL DAMAGES OR ANY DAMAGES WHATSOEVER RESULTING FROM LOSS
// OF USE, DATA OR PROFITS, WHETHER IN AN ACTION OF CONTRACT,
// NEGLIGENCE OR OTHER TORTIOUS ACTION, ARISING OUT OF OR IN
// CONNECTION WITH THE USE OR PERFORMANCE OF THIS SOFTWARE.

package ratelimit

import (
	"context"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"go.tevex.dev/storefront/log"
)

type (
	// Option is a function that configures the Limiter during
	// initialization.
	Option func(l *Limiter)

	// Category is the coarse route classification selecting a
	// quota policy, independent of the specific endpoint.
	Category string

	// Rate defines the rate limit parameters for one category.
	Rate struct {
		// Limit is the maximum number of requests allowed within
		// the Window duration.
		Limit int

		// Window is the time duration for the rate limit window.
		Window time.Duration
	}

	// Policy maps each category to its rate.
	Policy map[Category]Rate

	// Result contains the outcome of a rate limit check.
	Result struct {
		// Allowed indicates whether the request is permitted.
		Allowed bool

		// Limit is the maximum number of requests allowed in the window.
		Limit int

		// Remaining is the number of requests remaining in the current window.
		Remaining int

		// ResetAt is the time when the current window resets.
		ResetAt time.Time

		// RetryAfter is how long a denied client should back off.
		// Zero when the request is allowed.
		RetryAfter time.Duration
	}

	// Limiter checks requests against per category fixed window
	// counters held in a Store.
	Limiter struct {
		store  Store
		policy Policy
		logger *log.Logger
		tracer trace.Tracer
		now    func() time.Time

		requestsTotal *prometheus.CounterVec
		checkDuration *prometheus.HistogramVec
	}
)

const (
	CategoryPublic Category = "public"
	CategoryLogin  Category = "login"
	CategoryAdmin  Category = "admin"

	tracerName = "go.tevex.dev/storefront/ratelimit"
)

// DefaultPolicy returns the stock quota policy. Login and admin are
// materially stricter than public; brute-force resistance is the
// point of the login category.
func DefaultPolicy() Policy {
	return Policy{
		CategoryPublic: {Limit: 100, Window: time.Minute},
		CategoryLogin:  {Limit: 10, Window: time.Minute},
		CategoryAdmin:  {Limit: 30, Window: time.Minute},
	}
}

// WithLogger sets a custom logger for the limiter.
func WithLogger(l *log.Logger) Option {
	return func(lim *Limiter) {
		lim.logger = l.Named("ratelimit")
	}
}

// WithTracerProvider configures OpenTelemetry tracing with the
// provided tracer provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(l *Limiter) {
		l.tracer = tp.Tracer(tracerName)
	}
}

// WithRegisterer sets a custom Prometheus registerer for metrics.
func WithRegisterer(r prometheus.Registerer) Option {
	return func(l *Limiter) {
		l.registerMetrics(r)
	}
}

// WithClock overrides the limiter's time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		l.now = now
	}
}

// NewLimiter creates a rate limiter over the given store. Categories
// missing from policy fall back to the default policy's rates.
func NewLimiter(store Store, policy Policy, options ...Option) *Limiter {
	defaults := DefaultPolicy()
	for category, rate := range policy {
		defaults[category] = rate
	}

	l := &Limiter{
		store:  store,
		policy: defaults,
		logger: log.NewLogger(log.WithOutput(io.Discard)),
		tracer: otel.GetTracerProvider().Tracer(tracerName),
		now:    time.Now,
	}

	l.registerMetrics(prometheus.DefaultRegisterer)

	for _, o := range options {
		o(l)
	}

	return l
}

func (l *Limiter) registerMetrics(r prometheus.Registerer) {
	l.requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Subsystem: "ratelimit",
			Name:      "requests_total",
			Help:      "Total number of rate limit checks.",
		},
		[]string{"category", "allowed"},
	)
	if err := r.Register(l.requestsTotal); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			l.requestsTotal = are.ExistingCollector.(*prometheus.CounterVec)
		}
	}

	l.checkDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Subsystem: "ratelimit",
			Name:      "check_duration_seconds",
			Help:      "Duration of rate limit checks in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"category"},
	)
	if err := r.Register(l.checkDuration); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			l.checkDuration = are.ExistingCollector.(*prometheus.HistogramVec)
		}
	}
}

// Check records one request for the given client identity and
// category, and reports whether it is admitted. A denied request
// still counts against the window. Store failures fail closed for
// login and admin, open for public.
func (l *Limiter) Check(ctx context.Context, identity string, category Category) Result {
	start := time.Now()
	defer func() {
		l.checkDuration.WithLabelValues(string(category)).Observe(time.Since(start).Seconds())
	}()

	var (
		rootSpan = trace.SpanFromContext(ctx)
		span     trace.Span
	)

	if rootSpan.IsRecording() {
		ctx, span = l.tracer.Start(
			ctx,
			"ratelimit.Check",
			trace.WithSpanKind(trace.SpanKindInternal),
			trace.WithAttributes(
				attribute.String("ratelimit.category", string(category)),
			),
		)
		defer span.End()
	}

	rate, ok := l.policy[category]
	if !ok {
		rate = l.policy[CategoryPublic]
	}

	now := l.now()
	key := string(category) + ":" + identity

	window, err := l.store.Incr(ctx, key, rate.Window, now)
	if err != nil {
		l.logger.ErrorCtx(ctx, "rate limit store failure",
			log.Error(err),
			log.String("category", string(category)),
		)

		allowed := category == CategoryPublic
		result := Result{
			Allowed:   allowed,
			Limit:     rate.Limit,
			Remaining: 0,
			ResetAt:   now.Add(rate.Window),
		}
		if !allowed {
			result.RetryAfter = rate.Window
		}

		l.record(category, allowed, rootSpan.IsRecording(), span)
		return result
	}

	resetAt := window.Start.Add(rate.Window)

	if window.Count > rate.Limit {
		retryAfter := resetAt.Sub(now)
		if retryAfter < time.Second {
			retryAfter = time.Second
		}

		l.record(category, false, rootSpan.IsRecording(), span)
		return Result{
			Allowed:    false,
			Limit:      rate.Limit,
			Remaining:  0,
			ResetAt:    resetAt,
			RetryAfter: retryAfter,
		}
	}

	l.record(category, true, rootSpan.IsRecording(), span)
	return Result{
		Allowed:   true,
		Limit:     rate.Limit,
		Remaining: rate.Limit - window.Count,
		ResetAt:   resetAt,
	}
}

func (l *Limiter) record(category Category, allowed bool, recording bool, span trace.Span) {
	allowedStr := "true"
	if !allowed {
		allowedStr = "false"
	}

	l.requestsTotal.WithLabelValues(string(category), allowedStr).Inc()

	if recording {
		span.SetAttributes(attribute.Bool("ratelimit.allowed", allowed))
	}
}
