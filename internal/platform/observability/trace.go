package observability

import (
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/Fawaz-003/Restaurant-Frontend-sub001/internal/platform/requestctx"
)

const tracerName = "github.com/Fawaz-003/Restaurant-Frontend-sub001/internal/platform/observability"

var propagator = propagation.TraceContext{}

// TraceMiddleware continues an incoming W3C trace, starts a server span and records trace ids on the context.
func TraceMiddleware() func(http.Handler) http.Handler {
	tracer := otel.Tracer(tracerName)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := propagator.Extract(r.Context(), propagation.HeaderCarrier(r.Header))
			ctx, span := tracer.Start(ctx, r.Method+" "+pathAttr(r.URL.Path), trace.WithSpanKind(trace.SpanKindServer))
			defer span.End()
			span.SetAttributes(
				semconv.HTTPRequestMethodKey.String(methodAttr(r.Method)),
				semconv.URLPath(pathAttr(r.URL.Path)),
			)

			spanCtx := span.SpanContext()
			ctx = requestctx.WithTrace(ctx, requestctx.TraceInfo{
				TraceID: spanCtx.TraceID().String(),
				SpanID:  spanCtx.SpanID().String(),
				Sampled: spanCtx.IsSampled(),
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
