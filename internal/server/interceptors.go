package server

import (
	"context"
	"errors"
	"strings"
	"time"

	"connectrpc.com/connect"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"
)

var (
	errMissingToken = errors.New("missing bearer token")
	errBadToken     = errors.New("invalid admin token")
	errAdminOff     = errors.New("admin access is not configured")
)

// AdminAuth verifies admin bearer tokens against a bcrypt hash
type AdminAuth struct {
	hash []byte
}

// NewAdminAuth creates a verifier for the bcrypt hash. An empty hash locks
// the admin surface.
func NewAdminAuth(hash string) *AdminAuth {
	return &AdminAuth{hash: []byte(hash)}
}

// Verify checks an Authorization header value
func (a *AdminAuth) Verify(header string) error {
	if len(a.hash) == 0 {
		return errAdminOff
	}
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return errMissingToken
	}
	if err := bcrypt.CompareHashAndPassword(a.hash, []byte(token)); err != nil {
		return errBadToken
	}
	return nil
}

// Interceptor rejects admin calls without a valid bearer token
func (a *AdminAuth) Interceptor() connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			if err := a.Verify(req.Header().Get("Authorization")); err != nil {
				return nil, connect.NewError(connect.CodeUnauthenticated, err)
			}
			return next(ctx, req)
		}
	}
}

// NewRateLimitInterceptor sheds calls beyond a token bucket of rps with the
// given burst. A non-positive rps disables the limit.
func NewRateLimitInterceptor(rps float64, burst int) connect.UnaryInterceptorFunc {
	limit := rate.Limit(rps)
	if rps <= 0 {
		limit = rate.Inf
	}
	limiter := rate.NewLimiter(limit, burst)

	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			if !limiter.Allow() {
				return nil, connect.NewError(connect.CodeResourceExhausted, errors.New("rate limit exceeded"))
			}
			return next(ctx, req)
		}
	}
}

// NewLoggingInterceptor logs every call with its outcome
func NewLoggingInterceptor(logger *zap.Logger) connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			start := time.Now()
			res, err := next(ctx, req)

			fields := []zap.Field{
				zap.String("procedure", req.Spec().Procedure),
				zap.String("peer", req.Peer().Addr),
				zap.Duration("duration", time.Since(start)),
			}
			if err != nil {
				code := connect.CodeOf(err)
				fields = append(fields, zap.String("code", code.String()), zap.Error(err))
				if code == connect.CodeInternal || code == connect.CodeUnavailable {
					logger.Error("rpc failed", fields...)
				} else {
					logger.Info("rpc rejected", fields...)
				}
				return nil, err
			}
			logger.Debug("rpc served", fields...)
			return res, nil
		}
	}
}
