package middleware

import (
	"regexp"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/shopspring/decimal"

	"github.com/predictrack/predictrack-go/pkg/addr"
)

// Field length limits matching database schema constraints.
const (
	MaxAddressLen     = 64  // polls.creator / staking_positions.user_address VARCHAR(64)
	MaxPollIDLen      = 64  // polls.id VARCHAR(64)
	MaxTitleLen       = 200 // polls.title VARCHAR(200)
	MaxDescriptionLen = 1000
	MaxOptionLen      = 100
	MaxOptions        = 10
	MinOptions        = 2
)

var (
	// addressRe matches user addresses: alphanumeric plus dash and underscore.
	addressRe = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
	// pollIDRe matches remote UUIDs and local counter ids ("local-N").
	pollIDRe = regexp.MustCompile(`^[A-Za-z0-9-]+$`)
)

// MaxStakeAmount caps a single stake so aggregate columns never overflow.
var MaxStakeAmount = decimal.RequireFromString("1000000000")

// ErrorResponse is a helper that returns a standard API error response.
func ErrorResponse(c fiber.Ctx, status int, code, message string) error {
	return c.Status(status).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    code,
			"message": message,
		},
	})
}

// ValidateAddress checks that a user address is well-formed and within DB
// limits, and normalizes it so the same caller always hits the same account.
func ValidateAddress(address string) (string, string) {
	address = addr.Normalize(address)
	if address == "" {
		return "", "user address is required"
	}
	if len(address) > MaxAddressLen {
		return "", "user address must be at most 64 characters"
	}
	if !addressRe.MatchString(address) {
		return "", "user address contains invalid characters"
	}
	return address, ""
}

// ValidatePollID checks that a poll id is well-formed. Underscores are
// rejected: position keys join user and poll id with one.
func ValidatePollID(id string) (string, string) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", "pollId is required"
	}
	if len(id) > MaxPollIDLen {
		return "", "pollId must be at most 64 characters"
	}
	if !pollIDRe.MatchString(id) {
		return "", "pollId contains invalid characters"
	}
	return id, ""
}

// ValidateTitle trims and bounds a poll title.
func ValidateTitle(title string) (string, string) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", "title is required"
	}
	if len(title) > MaxTitleLen {
		return "", "title must be at most 200 characters"
	}
	return title, ""
}

// ValidateDescription trims and truncates an optional description.
func ValidateDescription(desc string) string {
	desc = strings.TrimSpace(desc)
	if len(desc) > MaxDescriptionLen {
		desc = desc[:MaxDescriptionLen]
	}
	return desc
}

// ValidateOptions checks the option list: between 2 and 10 non-empty entries.
func ValidateOptions(options []string) ([]string, string) {
	if len(options) < MinOptions {
		return nil, "at least 2 options are required"
	}
	if len(options) > MaxOptions {
		return nil, "at most 10 options are allowed"
	}
	out := make([]string, len(options))
	for i, o := range options {
		o = strings.TrimSpace(o)
		if o == "" {
			return nil, "options must not be empty"
		}
		if len(o) > MaxOptionLen {
			return nil, "options must be at most 100 characters"
		}
		out[i] = o
	}
	return out, ""
}

// ValidateAmount checks that a stake amount is positive and within bounds.
func ValidateAmount(amount decimal.Decimal) (decimal.Decimal, string) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, "amount must be greater than zero"
	}
	if amount.GreaterThan(MaxStakeAmount) {
		return decimal.Zero, "amount exceeds the maximum stake"
	}
	return amount, ""
}

// ValidateDeadline checks that a poll deadline lies in the future.
func ValidateDeadline(deadline time.Time) (time.Time, string) {
	if deadline.IsZero() {
		return time.Time{}, "deadline is required"
	}
	if !deadline.After(time.Now()) {
		return time.Time{}, "deadline must be in the future"
	}
	return deadline, ""
}
