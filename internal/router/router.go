package router

import (
	"github.com/gofiber/fiber/v3"
	recoverer "github.com/gofiber/fiber/v3/middleware/recover"

	"github.com/predictrack/predictrack-go/internal/handler"
	"github.com/predictrack/predictrack-go/internal/middleware"
)

// Handlers holds all handler instances needed by the router.
type Handlers struct {
	Poll   *handler.PollHandler
	Vote   *handler.VoteHandler
	Stake  *handler.StakeHandler
	Sync   *handler.SyncHandler
	Health *handler.HealthHandler
}

// Setup configures the middleware stack and all API routes on the given Fiber app.
func Setup(app *fiber.App, h *Handlers, corsOrigins string) {
	// Middleware stack (order matters)
	app.Use(recoverer.New())
	app.Use(middleware.NewRequestLogger())
	app.Use(middleware.NewCORS(corsOrigins))
	app.Use(handler.MetricsMiddleware())

	// Health and metrics (before API group)
	app.Get("/health/live", h.Health.Live)
	app.Get("/health/ready", h.Health.Ready)
	app.Get("/metrics", handler.MetricsHandler())

	readLimit := middleware.NewPollReadRateLimiter()
	createLimit := middleware.NewPollCreateRateLimiter()
	voteLimit := middleware.NewVoteRateLimiter()
	stakeLimit := middleware.NewStakeRateLimiter()
	syncLimit := middleware.NewSyncRateLimiter()

	// API routes
	api := app.Group("/api")

	// Poll routes
	api.Get("/polls", h.Poll.List, readLimit.Handler())
	api.Post("/polls", h.Poll.Create, createLimit.Handler())
	api.Get("/polls/:pollId", h.Poll.Get, readLimit.Handler())
	api.Get("/polls/:pollId/staking", h.Poll.StakingInfo, readLimit.Handler())

	// Vote and stake routes
	api.Post("/polls/:pollId/vote", h.Vote.Submit, voteLimit.Handler())
	api.Post("/polls/:pollId/stake", h.Stake.Submit, stakeLimit.Handler())
	api.Post("/polls/:pollId/resolve", h.Stake.Resolve, stakeLimit.Handler())
	api.Post("/polls/:pollId/claim", h.Stake.Claim, stakeLimit.Handler())

	// User routes
	api.Get("/users/:address/positions", h.Stake.Positions, readLimit.Handler())

	// Sync routes
	api.Post("/sync/merge", h.Sync.Merge, syncLimit.Handler())
	api.Get("/sync/status", h.Sync.Status, readLimit.Handler())
}
