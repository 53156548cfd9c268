// Package middleware holds echo middleware shared by the API groups.
package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"
)

const (
	rateLimitExpiry = 3 * time.Minute
	maxPeekBytes    = 64 << 10
)

// RateLimit limits requests per caller to perMinute, with a burst of the
// same size. Callers are keyed by the user_id query parameter or the user_id
// field of a JSON body, falling back to the client IP. A non-positive perMinute disables the limiter.
func RateLimit(perMinute int) echo.MiddlewareFunc {
	if perMinute <= 0 {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}

	store := echomiddleware.NewRateLimiterMemoryStoreWithConfig(echomiddleware.RateLimiterMemoryStoreConfig{
		Rate:      rate.Limit(float64(perMinute) / 60),
		Burst:     perMinute,
		ExpiresIn: rateLimitExpiry,
	})
	return echomiddleware.RateLimiterWithConfig(echomiddleware.RateLimiterConfig{
		Store:               store,
		IdentifierExtractor: callerID,
		ErrorHandler: func(c echo.Context, err error) error {
			return echo.NewHTTPError(http.StatusForbidden, map[string]string{"error": "unable to identify caller"})
		},
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			return echo.NewHTTPError(http.StatusTooManyRequests, map[string]string{"error": "Too many requests. Please slow down."})
		},
	})
}

func callerID(c echo.Context) (string, error) {
	if id := strings.TrimSpace(c.QueryParam("user_id")); id != "" {
		return "user:" + id, nil
	}
	if id := bodyUserID(c.Request()); id != "" {
		return "user:" + id, nil
	}
	return "ip:" + c.RealIP(), nil
}

// bodyUserID reads user_id from a JSON body and puts the bytes back for the
// handler. Bodies larger than maxPeekBytes are not inspected.
func bodyUserID(req *http.Request) string {
	if req.Body == nil || !strings.HasPrefix(req.Header.Get(echo.HeaderContentType), echo.MIMEApplicationJSON) {
		return ""
	}
	peeked, err := io.ReadAll(io.LimitReader(req.Body, maxPeekBytes+1))
	req.Body = struct {
		io.Reader
		io.Closer
	}{io.MultiReader(bytes.NewReader(peeked), req.Body), req.Body}
	if err != nil || len(peeked) > maxPeekBytes {
		return ""
	}

	var body struct {
		UserID string `json:"user_id"`
	}
	if json.Unmarshal(peeked, &body) != nil {
		return ""
	}
	return strings.TrimSpace(body.UserID)
}
