package api

import (
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/yakoovad/pr-daemon/internal/auth"
	"github.com/yakoovad/pr-daemon/internal/service"
	"github.com/yakoovad/pr-daemon/pkg/logger"
	"go.uber.org/zap"
)

const claimsKey = "claims"

func ZapLoggerMiddleware(l *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			req := c.Request()
			res := c.Response()

			requestID := c.Response().Header().Get(echo.HeaderXRequestID)

			reqLogger := l.With(
				zap.String("request_id", requestID),
			)

			ctx := logger.WithLogger(req.Context(), reqLogger)
			c.SetRequest(req.WithContext(ctx))

			err := next(c)

			latency := time.Since(start)

			fields := []zap.Field{
				zap.String("method", req.Method),
				zap.String("uri", req.RequestURI),
				zap.String("remote_ip", c.RealIP()),
				zap.Int("status", res.Status),
				zap.Duration("latency", latency),
				zap.Int64("bytes_in", req.ContentLength),
				zap.Int64("bytes_out", res.Size),
			}

			if err != nil {
				fields = append(fields, zap.Error(err))
				reqLogger.Error("request failed", fields...)
			} else {
				reqLogger.Info("request completed", fields...)
			}

			return err
		}
	}
}

// AuthMiddleware accepts bearer tokens of the given types and stores their claims in the context.
func AuthMiddleware(signer *auth.Signer, types ...auth.TokenType) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			l := logger.FromContext(c.Request().Context())

			header := c.Request().Header.Get(echo.HeaderAuthorization)
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				return c.JSON(http.StatusUnauthorized, errorResponse{
					Error: service.NewError(service.ErrorCodeForbidden, "missing bearer token"),
				})
			}

			claims, err := signer.VerifyToken(token)
			if err != nil {
				l.Warn("rejected token", zap.Error(err))
				return c.JSON(http.StatusUnauthorized, errorResponse{
					Error: service.NewError(service.ErrorCodeForbidden, "invalid token"),
				})
			}

			if !slices.Contains(types, claims.Type) {
				return c.JSON(http.StatusForbidden, errorResponse{
					Error: service.NewError(service.ErrorCodeForbidden, "token not allowed"),
				})
			}

			c.Set(claimsKey, claims)
			return next(c)
		}
	}
}

func claimsFromContext(c echo.Context) *auth.TokenClaims {
	if claims, ok := c.Get(claimsKey).(*auth.TokenClaims); ok {
		return claims
	}
	return &auth.TokenClaims{}
}
