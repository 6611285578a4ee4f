package handler

import (
	"errors"

	"github.com/gofiber/fiber/v3"

	"github.com/predictrack/predictrack-go/internal/ledger"
	"github.com/predictrack/predictrack-go/internal/middleware"
	"github.com/predictrack/predictrack-go/internal/store"
)

// ledgerError maps the ledger's sentinel errors to API error responses.
func ledgerError(c fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, ledger.ErrNotFound):
		return middleware.ErrorResponse(c, fiber.StatusNotFound, "NOT_FOUND", "Poll not found")
	case errors.Is(err, ledger.ErrPositionNotFound):
		return middleware.ErrorResponse(c, fiber.StatusNotFound, "POSITION_NOT_FOUND", "Staking position not found")
	case errors.Is(err, ledger.ErrInvalidOption):
		return middleware.ErrorResponse(c, fiber.StatusBadRequest, "INVALID_OPTION", "Option index is out of range")
	case errors.Is(err, ledger.ErrInvalidAmount):
		return middleware.ErrorResponse(c, fiber.StatusBadRequest, "INVALID_AMOUNT", "Stake amount must be positive")
	case errors.Is(err, ledger.ErrInsufficientBalance):
		return middleware.ErrorResponse(c, fiber.StatusUnprocessableEntity, "INSUFFICIENT_BALANCE", "Balance is too low for this stake")
	case errors.Is(err, ledger.ErrAlreadyVoted):
		return middleware.ErrorResponse(c, fiber.StatusConflict, "ALREADY_VOTED", "User already voted on this poll")
	case errors.Is(err, ledger.ErrPollClosed):
		return middleware.ErrorResponse(c, fiber.StatusConflict, "POLL_CLOSED", "Poll deadline has passed")
	case errors.Is(err, ledger.ErrAlreadyResolved):
		return middleware.ErrorResponse(c, fiber.StatusConflict, "ALREADY_RESOLVED", "Poll is already resolved")
	case errors.Is(err, ledger.ErrNotResolved):
		return middleware.ErrorResponse(c, fiber.StatusConflict, "NOT_RESOLVED", "Poll is not resolved yet")
	case errors.Is(err, ledger.ErrAlreadyClaimed):
		return middleware.ErrorResponse(c, fiber.StatusConflict, "ALREADY_CLAIMED", "Reward already claimed for this position")
	case errors.Is(err, ledger.ErrWrongOption):
		return middleware.ErrorResponse(c, fiber.StatusConflict, "WRONG_OPTION", "Position is not on the winning option")
	case errors.Is(err, ledger.ErrNoReward):
		return middleware.ErrorResponse(c, fiber.StatusConflict, "NO_REWARD", "Position has no reward to claim")
	case errors.Is(err, ledger.ErrStakingDisabled):
		return middleware.ErrorResponse(c, fiber.StatusConflict, "STAKING_DISABLED", "Staking is not enabled for this poll")
	case errors.Is(err, store.ErrUnavailable):
		return middleware.ErrorResponse(c, fiber.StatusServiceUnavailable, "STORE_UNAVAILABLE", "No store could commit the operation")
	default:
		return middleware.ErrorResponse(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "Operation failed")
	}
}
