package handler

import (
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/predictrack/predictrack-go/internal/hybrid"
	"github.com/predictrack/predictrack-go/internal/middleware"
)

type SyncHandler struct {
	resolver *hybrid.Resolver
}

func NewSyncHandler(resolver *hybrid.Resolver) *SyncHandler {
	return &SyncHandler{resolver: resolver}
}

// Merge handles POST /api/sync/merge — runs a merge pass immediately.
// Safe to call while the background worker is running; merge passes are
// serialized inside the resolver.
func (h *SyncHandler) Merge(c fiber.Ctx) error {
	start := time.Now()
	err := h.resolver.Merge(c.Context())
	if Metrics.MergeDuration != nil {
		Metrics.MergeDuration.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		return middleware.ErrorResponse(c, fiber.StatusServiceUnavailable, "MERGE_FAILED", "Merge pass failed; local store remains authoritative")
	}

	return c.JSON(fiber.Map{
		"success":     true,
		"duration_ms": time.Since(start).Milliseconds(),
	})
}

// Status handles GET /api/sync/status
func (h *SyncHandler) Status(c fiber.Ctx) error {
	return c.JSON(h.resolver.Status(c.Context()))
}
