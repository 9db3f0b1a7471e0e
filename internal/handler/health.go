package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// VersionSource reports the latest committed ledger version.
type VersionSource interface {
	Version() uint64
}

// DirtySource reports whether the availability index lost an update that
// has not been repaired yet.
type DirtySource interface {
	Dirty() bool
}

// HealthHandler answers load balancer and monitoring probes.
type HealthHandler struct {
	ledger VersionSource
	cache  DirtySource
}

// NewHealthHandler returns a HealthHandler.  Either source may be nil.
func NewHealthHandler(ledger VersionSource, cache DirtySource) *HealthHandler {
	return &HealthHandler{ledger: ledger, cache: cache}
}

// Health always returns 200 while the process serves requests.  A dirty
// availability index is reported but does not fail the probe: bookings
// are unaffected and the index repairs itself.
func (h *HealthHandler) Health(c echo.Context) error {
	body := echo.Map{"status": "ok"}
	if h.ledger != nil {
		body["ledger_version"] = h.ledger.Version()
	}
	if h.cache != nil {
		body["availability_dirty"] = h.cache.Dirty()
	}
	return c.JSON(http.StatusOK, body)
}
