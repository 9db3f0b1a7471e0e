package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/campsite-reservation/internal/config"
	"github.com/iliyamo/campsite-reservation/internal/handler"
	"github.com/iliyamo/campsite-reservation/internal/middleware"
)

// RegisterRoutes registers routes that only report on the process itself.
func RegisterRoutes(e *echo.Echo, h *handler.HealthHandler) {
	e.GET("/healthz", h.Health)
}

// RegisterReservations registers the public reservation API under /v1.
// No authentication is applied: a reservation is identified by its id
// together with the holder's email.  The availability route may be
// wrapped by the Redis response cache; rdb may be nil, which disables it.
func RegisterReservations(e *echo.Echo, h *handler.ReservationHandler, cacheCfg config.CacheConfig, rdb *redis.Client) {
	v1 := e.Group("/v1")

	v1.GET("/availability", h.GetAvailability, middleware.NewRedisCache(cacheCfg, rdb))

	v1.POST("/reservations", h.CreateReservation)
	v1.GET("/reservations", h.ListReservations)
	v1.GET("/reservations/:id", h.GetReservation)
	v1.PUT("/reservations/:id", h.ModifyReservation)
	v1.DELETE("/reservations/:id", h.CancelReservation)
}
