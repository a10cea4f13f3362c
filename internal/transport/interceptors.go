package transport

import (
	"context"
	"path"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

var (
	rpcRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reporting_client_rpc_requests_total",
		Help: "RPCs issued by method and status code",
	}, []string{"method", "code"})
	rpcLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "reporting_client_rpc_duration_seconds",
		Help:    "RPC latency by method",
		Buckets: prometheus.DefBuckets,
	}, []string{"method"})
)

// LoggingInterceptor logs every outgoing RPC with a per-call ID, its
// duration, and its outcome.
func LoggingInterceptor(logger *logrus.Logger) grpc.UnaryClientInterceptor {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	log := logger.WithField("component", "transport")
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		callID := uuid.NewString()
		start := time.Now()

		err := invoker(ctx, method, req, reply, cc, opts...)

		entry := log.WithFields(logrus.Fields{
			"call_id":  callID,
			"method":   path.Base(method),
			"duration": time.Since(start).String(),
		})
		if err != nil {
			entry.WithError(err).Warn("rpc failed")
		} else {
			entry.Debug("rpc completed")
		}
		return err
	}
}

// MetricsInterceptor records request counts and latency per method.
func MetricsInterceptor() grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		start := time.Now()

		err := invoker(ctx, method, req, reply, cc, opts...)

		m := path.Base(method)
		rpcRequests.WithLabelValues(m, status.Code(err).String()).Inc()
		rpcLatency.WithLabelValues(m).Observe(time.Since(start).Seconds())
		return err
	}
}

// RateLimitInterceptor paces outgoing page fetches. Unlike a server-side
// limiter it waits instead of rejecting: the caller asked for the data, so
// shedding the call would only come back as a retry.
func RateLimitInterceptor(rps float64, burst int) grpc.UnaryClientInterceptor {
	if rps <= 0 {
		return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
			return invoker(ctx, method, req, reply, cc, opts...)
		}
	}
	if burst < 1 {
		burst = 1
	}
	limiter := rate.NewLimiter(rate.Limit(rps), burst)
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		if err := limiter.Wait(ctx); err != nil {
			return err
		}
		return invoker(ctx, method, req, reply, cc, opts...)
	}
}
