package server

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/openkcm/common-sdk/pkg/commoncfg"
	"github.com/openkcm/common-sdk/pkg/otlp"
	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	slogctx "github.com/veqryn/slog-context"

	"github.com/finledger/auth-callback/internal/config"
)

var (
	counter metric.Int64Counter
	hist    metric.Int64Histogram
)

func initMeters(ctx context.Context, cfg *config.Config) error {
	meter := otel.Meter(
		"auth-callback/"+cfg.Application.Name,
		metric.WithInstrumentationVersion(otel.Version()),
		metric.WithInstrumentationAttributes(otlp.CreateAttributesFrom(cfg.Application)...),
	)

	var err error

	counter, err = meter.Int64Counter(
		"http.request_count",
		metric.WithDescription("Incoming request count"),
		metric.WithUnit("request"),
	)
	if err != nil {
		return oops.In("HTTP Server").
			WithContext(ctx).
			Wrapf(err, "creating request_count meter")
	}

	hist, err = meter.Int64Histogram(
		"http.duration",
		metric.WithDescription("Incoming end to end duration"),
		metric.WithUnit("milliseconds"),
	)
	if err != nil {
		return oops.In("HTTP Server").
			WithContext(ctx).
			Wrapf(err, "creating duration meter")
	}

	return nil
}

// newTraceMiddleware covers every route with a span, a request id in the
// logging context and the request metrics. The operation is the route
// pattern.
func newTraceMiddleware(cfg *config.Config) gin.HandlerFunc {
	traceAttrs := otlp.CreateAttributesFrom(cfg.Application)
	tracer := otel.Tracer("auth-callback/http", trace.WithInstrumentationAttributes(traceAttrs...))

	return func(c *gin.Context) {
		operationID := c.FullPath()
		if operationID == "" {
			operationID = "unmatched"
		}

		ctx := slogctx.With(c.Request.Context(),
			commoncfg.AttrRequestID, uuid.NewString(),
			commoncfg.AttrOperation, operationID,
		)

		parentCtx := otel.GetTextMapPropagator().Extract(ctx, propagation.HeaderCarrier(c.Request.Header))

		ctx, span := tracer.Start(parentCtx, operationID+"-span",
			trace.WithAttributes(attribute.String(commoncfg.AttrOperation, operationID)),
		)
		defer span.End()

		c.Request = c.Request.WithContext(ctx)

		requestStartTime := time.Now()

		slogctx.Debug(ctx, "Processing request", "method", c.Request.Method)
		c.Next()

		elapsedTime := time.Since(requestStartTime)
		status := c.Writer.Status()

		span.SetAttributes(attribute.Int("http.status_code", status))

		if counter != nil && hist != nil {
			attrs := metric.WithAttributes(
				otlp.CreateAttributesFrom(cfg.Application,
					attribute.String("userAgent", c.Request.UserAgent()),
					attribute.String(commoncfg.AttrOperation, operationID),
					attribute.Int("status", status),
				)...,
			)

			counter.Add(ctx, 1, attrs)
			hist.Record(ctx, elapsedTime.Milliseconds(), attrs)
		}

		slogctx.Info(ctx, "Finished request", "status", status, "duration", elapsedTime)
	}
}
