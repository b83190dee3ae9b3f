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

package token

import (
	"context"
	"crypto/subtle"
	"fmt"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"go.tevex.dev/storefront/log"
	"go.tevex.dev/storefront/order"
	"go.tevex.dev/storefront/sanitize"
)

type (
	// Option is a function that configures the Service during
	// initialization.
	Option func(s *Service)

	// Service is the credential issuer and verifier.
	Service struct {
		tokens Store
		orders order.Store
		logger *log.Logger
		tracer trace.Tracer
		now    func() time.Time

		operationsTotal *prometheus.CounterVec
	}
)

const tracerName = "go.tevex.dev/storefront/token"

// dummyDigits keeps the comparison work identical when the order does
// not exist, so a probe cannot time the difference.
const dummyDigits = "0000"

// WithLogger sets a custom logger for the service.
func WithLogger(l *log.Logger) Option {
	return func(s *Service) {
		s.logger = l.Named("token")
	}
}

// WithTracerProvider configures OpenTelemetry tracing with the
// provided tracer provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Service) {
		s.tracer = tp.Tracer(tracerName)
	}
}

// WithRegisterer sets a custom Prometheus registerer for metrics.
func WithRegisterer(r prometheus.Registerer) Option {
	return func(s *Service) {
		s.registerMetrics(r)
	}
}

// WithClock overrides the service's time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// NewService creates the credential service over the given stores.
func NewService(tokens Store, orders order.Store, options ...Option) *Service {
	s := &Service{
		tokens: tokens,
		orders: orders,
		logger: log.NewLogger(log.WithOutput(io.Discard)),
		tracer: otel.GetTracerProvider().Tracer(tracerName),
		now:    time.Now,
	}

	s.registerMetrics(prometheus.DefaultRegisterer)

	for _, o := range options {
		o(s)
	}

	return s
}

func (s *Service) registerMetrics(r prometheus.Registerer) {
	s.operationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Subsystem: "token",
			Name:      "operations_total",
			Help:      "Total number of credential operations.",
		},
		[]string{"operation", "outcome"},
	)
	if err := r.Register(s.operationsTotal); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			s.operationsTotal = are.ExistingCollector.(*prometheus.CounterVec)
		}
	}
}

// VerifyTrackingAccess checks the supplied last four phone digits
// against the order's stored phone number and, on match, mints a
// tracking session bound to that order.
//
// Unknown order and wrong digits produce the same error, the same
// response shape, and the same amount of comparison work. Storage
// faults fail closed into the same rejection.
func (s *Service) VerifyTrackingAccess(ctx context.Context, orderNumber, lastFour string) (order.Order, string, error) {
	ctx, span := s.startSpan(ctx, "token.VerifyTrackingAccess")
	defer span.End()

	o, found, err := s.orders.Lookup(ctx, orderNumber)
	if err != nil {
		s.logger.ErrorCtx(ctx, "cannot lookup order for verification", log.Error(err))
		s.count("verify", "error")
		return order.Order{}, "", ErrVerificationFailed
	}

	stored := dummyDigits
	if found {
		digits := sanitize.DigitsOnly(o.CustomerPhone)
		if len(digits) >= 4 {
			stored = digits[len(digits)-4:]
		}
	}

	match := subtle.ConstantTimeCompare([]byte(stored), []byte(lastFour)) == 1
	if !found || !match {
		s.count("verify", "rejected")
		return order.Order{}, "", ErrVerificationFailed
	}

	tok, err := Generate()
	if err != nil {
		s.logger.ErrorCtx(ctx, "cannot generate session token", log.Error(err))
		s.count("verify", "error")
		return order.Order{}, "", ErrVerificationFailed
	}

	session := TrackingSession{
		Token:       tok,
		OrderNumber: o.Number,
		ExpiresAt:   s.now().Add(SessionTTL),
	}
	if err := s.tokens.CreateSession(ctx, session); err != nil {
		s.logger.ErrorCtx(ctx, "cannot persist tracking session", log.Error(err))
		s.count("verify", "error")
		return order.Order{}, "", ErrVerificationFailed
	}

	s.count("verify", "ok")
	return o, tok, nil
}

// ValidateTrackingSession re-checks an existing session: it must
// exist, be unexpired, and be bound to the requested order. Expired
// sessions are rejected but not deleted; deletion is housekeeping,
// not correctness.
func (s *Service) ValidateTrackingSession(ctx context.Context, tok, orderNumber string) (order.Order, error) {
	ctx, span := s.startSpan(ctx, "token.ValidateTrackingSession")
	defer span.End()

	session, found, err := s.tokens.GetSession(ctx, tok)
	if err != nil {
		s.logger.ErrorCtx(ctx, "cannot fetch tracking session", log.Error(err))
		s.count("validate", "error")
		return order.Order{}, ErrSessionInvalid
	}

	if !found || s.now().After(session.ExpiresAt) || session.OrderNumber != orderNumber {
		s.count("validate", "rejected")
		return order.Order{}, ErrSessionInvalid
	}

	o, found, err := s.orders.Lookup(ctx, session.OrderNumber)
	if err != nil {
		s.logger.ErrorCtx(ctx, "cannot lookup order for session", log.Error(err))
		s.count("validate", "error")
		return order.Order{}, ErrSessionInvalid
	}
	if !found {
		s.count("validate", "rejected")
		return order.Order{}, ErrSessionInvalid
	}

	s.count("validate", "ok")
	return o, nil
}

// IssueDownloadToken mints a one-time invoice or receipt token. A
// valid tracking session for the order is required even though the
// caller already passed the session check once: minting a download
// credential re-proves order ownership.
func (s *Service) IssueDownloadToken(ctx context.Context, sessionToken, orderNumber string, kind Kind) (string, error) {
	ctx, span := s.startSpan(ctx, "token.IssueDownloadToken")
	defer span.End()

	if kind != KindInvoice && kind != KindReceipt {
		return "", fmt.Errorf("kind %q is not issuable through a session", kind)
	}

	if _, err := s.ValidateTrackingSession(ctx, sessionToken, orderNumber); err != nil {
		s.count("issue_"+string(kind), "rejected")
		return "", err
	}

	tok, err := s.mint(ctx, orderNumber, kind)
	if err != nil {
		s.count("issue_"+string(kind), "error")
		return "", err
	}

	s.count("issue_"+string(kind), "ok")
	return tok, nil
}

// IssueConfirmationToken mints the one-time confirmation token during
// order creation. No session gates it: the customer has no session
// yet at that point. The confirmation page is viewable exactly once.
func (s *Service) IssueConfirmationToken(ctx context.Context, orderNumber string) (string, error) {
	ctx, span := s.startSpan(ctx, "token.IssueConfirmationToken")
	defer span.End()

	tok, err := s.mint(ctx, orderNumber, KindConfirmation)
	if err != nil {
		s.count("issue_confirmation", "error")
		return "", err
	}

	s.count("issue_confirmation", "ok")
	return tok, nil
}

// Consume atomically uses a one-time token and returns the order it
// was bound to. Exactly one concurrent caller wins; everyone else,
// and every later caller, gets ErrTokenInvalid, the same error an
// unknown token gets.
func (s *Service) Consume(ctx context.Context, rawToken string, kind Kind) (order.Order, error) {
	ctx, span := s.startSpan(ctx, "token.Consume",
		attribute.String("token.kind", string(kind)),
	)
	defer span.End()

	number, ok, err := s.tokens.ConsumeToken(ctx, rawToken, kind)
	if err != nil {
		s.logger.ErrorCtx(ctx, "cannot consume token", log.Error(err))
		s.count("consume_"+string(kind), "error")
		return order.Order{}, ErrTokenInvalid
	}
	if !ok {
		s.count("consume_"+string(kind), "rejected")
		return order.Order{}, ErrTokenInvalid
	}

	o, found, err := s.orders.Lookup(ctx, number)
	if err != nil {
		s.logger.ErrorCtx(ctx, "cannot lookup order for token", log.Error(err))
		s.count("consume_"+string(kind), "error")
		return order.Order{}, ErrTokenInvalid
	}
	if !found {
		s.count("consume_"+string(kind), "rejected")
		return order.Order{}, ErrTokenInvalid
	}

	s.count("consume_"+string(kind), "ok")
	return o, nil
}

func (s *Service) mint(ctx context.Context, orderNumber string, kind Kind) (string, error) {
	tok, err := Generate()
	if err != nil {
		return "", err
	}

	t := OneTimeToken{
		Token:       tok,
		OrderNumber: orderNumber,
		Kind:        kind,
		CreatedAt:   s.now(),
	}
	if err := s.tokens.CreateToken(ctx, t); err != nil {
		return "", fmt.Errorf("cannot persist %s token: %w", kind, err)
	}

	return tok, nil
}

func (s *Service) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if !trace.SpanFromContext(ctx).IsRecording() {
		return ctx, trace.SpanFromContext(ctx)
	}

	return s.tracer.Start(
		ctx,
		name,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...),
	)
}

func (s *Service) count(operation, outcome string) {
	s.operationsTotal.WithLabelValues(operation, outcome).Inc()
}
