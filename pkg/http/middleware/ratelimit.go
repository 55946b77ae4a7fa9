package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// Allower is a keyed token bucket.
type Allower interface {
	Allow(key string, capacity, refillPerSec float64) bool
}

// RateLimitConfig limits mutating requests per client IP.
type RateLimitConfig struct {
	Limiter      Allower
	Capacity     float64
	RefillPerSec float64
	// Methods to limit; GET requests pass untouched by default.
	Methods []string
}

// RateLimit rejects requests over budget with 429.
func RateLimit(cfg RateLimitConfig) echo.MiddlewareFunc {
	methods := map[string]bool{http.MethodPost: true, http.MethodDelete: true}
	if len(cfg.Methods) > 0 {
		methods = make(map[string]bool, len(cfg.Methods))
		for _, m := range cfg.Methods {
			methods[m] = true
		}
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if cfg.Limiter == nil || cfg.Capacity <= 0 || !methods[c.Request().Method] {
				return next(c)
			}
			if !cfg.Limiter.Allow(c.RealIP(), cfg.Capacity, cfg.RefillPerSec) {
				return c.JSON(http.StatusTooManyRequests, map[string]interface{}{
					"status":  http.StatusTooManyRequests,
					"message": http.StatusText(http.StatusTooManyRequests),
				})
			}
			return next(c)
		}
	}
}
