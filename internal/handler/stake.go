package handler

import (
	"github.com/gofiber/fiber/v3"

	"github.com/predictrack/predictrack-go/internal/ledger"
	"github.com/predictrack/predictrack-go/internal/middleware"
	"github.com/predictrack/predictrack-go/internal/model"
)

type StakeHandler struct {
	engine *ledger.Engine
}

func NewStakeHandler(engine *ledger.Engine) *StakeHandler {
	return &StakeHandler{engine: engine}
}

// Submit handles POST /api/polls/:pollId/stake
func (h *StakeHandler) Submit(c fiber.Ctx) error {
	pollID, errMsg := middleware.ValidatePollID(c.Params("pollId"))
	if errMsg != "" {
		return middleware.ErrorResponse(c, fiber.StatusBadRequest, "INVALID_FIELD", errMsg)
	}

	var req model.StakeRequest
	if err := c.Bind().JSON(&req); err != nil {
		return middleware.ErrorResponse(c, fiber.StatusBadRequest, "INVALID_BODY", "Invalid request body")
	}

	user, errMsg := middleware.ValidateAddress(req.User)
	if errMsg != "" {
		return middleware.ErrorResponse(c, fiber.StatusBadRequest, "INVALID_FIELD", errMsg)
	}

	amount, errMsg := middleware.ValidateAmount(req.Amount)
	if errMsg != "" {
		return middleware.ErrorResponse(c, fiber.StatusBadRequest, "INVALID_FIELD", errMsg)
	}

	pos, err := h.engine.Stake(c.Context(), pollID, user, req.Option, amount)
	if err != nil {
		return ledgerError(c, err)
	}

	if Metrics.StakesTotal != nil {
		Metrics.StakesTotal.Inc()
	}

	info, err := h.engine.StakingInfo(c.Context(), pollID)
	if err != nil {
		return ledgerError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(model.StakeResponse{
		Success:  true,
		Position: *pos,
		NewTotal: info.TotalStaked,
	})
}

// Resolve handles POST /api/polls/:pollId/resolve
func (h *StakeHandler) Resolve(c fiber.Ctx) error {
	pollID, errMsg := middleware.ValidatePollID(c.Params("pollId"))
	if errMsg != "" {
		return middleware.ErrorResponse(c, fiber.StatusBadRequest, "INVALID_FIELD", errMsg)
	}

	var req model.ResolveRequest
	if err := c.Bind().JSON(&req); err != nil {
		return middleware.ErrorResponse(c, fiber.StatusBadRequest, "INVALID_BODY", "Invalid request body")
	}

	if err := h.engine.Resolve(c.Context(), pollID, req.CorrectOption); err != nil {
		return ledgerError(c, err)
	}

	return c.JSON(fiber.Map{"success": true})
}

// Claim handles POST /api/polls/:pollId/claim
func (h *StakeHandler) Claim(c fiber.Ctx) error {
	pollID, errMsg := middleware.ValidatePollID(c.Params("pollId"))
	if errMsg != "" {
		return middleware.ErrorResponse(c, fiber.StatusBadRequest, "INVALID_FIELD", errMsg)
	}

	var req model.ClaimRequest
	if err := c.Bind().JSON(&req); err != nil {
		return middleware.ErrorResponse(c, fiber.StatusBadRequest, "INVALID_BODY", "Invalid request body")
	}

	user, errMsg := middleware.ValidateAddress(req.User)
	if errMsg != "" {
		return middleware.ErrorResponse(c, fiber.StatusBadRequest, "INVALID_FIELD", errMsg)
	}

	amount, err := h.engine.Claim(c.Context(), pollID, user, req.PositionIndex)
	if err != nil {
		return ledgerError(c, err)
	}

	if Metrics.ClaimsTotal != nil {
		Metrics.ClaimsTotal.Inc()
	}

	return c.JSON(model.ClaimResponse{
		Success: true,
		Amount:  amount,
	})
}

// Positions handles GET /api/users/:address/positions?pollId=ID
func (h *StakeHandler) Positions(c fiber.Ctx) error {
	user, errMsg := middleware.ValidateAddress(c.Params("address"))
	if errMsg != "" {
		return middleware.ErrorResponse(c, fiber.StatusBadRequest, "INVALID_FIELD", errMsg)
	}

	pollID, errMsg := middleware.ValidatePollID(fiber.Query[string](c, "pollId"))
	if errMsg != "" {
		return middleware.ErrorResponse(c, fiber.StatusBadRequest, "INVALID_FIELD", errMsg)
	}

	positions, err := h.engine.UserPositions(c.Context(), user, pollID)
	if err != nil {
		return ledgerError(c, err)
	}

	return c.JSON(fiber.Map{
		"address":   user,
		"pollId":    pollID,
		"positions": positions,
	})
}
