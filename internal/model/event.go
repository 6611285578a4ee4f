package model

import "time"

// EventType identifies the kind of ledger mutation an event announces.
type EventType string

const (
	EventVote          EventType = "vote"
	EventPollCreated   EventType = "poll_created"
	EventPollResolved  EventType = "poll_resolved"
	EventRewardClaimed EventType = "reward_claimed"
)

// Event is published on the update bus after each successful mutation.
// Consumers re-fetch through the resolution service instead of applying the
// payload, so duplicate delivery is harmless.
type Event struct {
	Type      EventType         `json:"type"`
	PollID    string            `json:"pollId"`
	Payload   map[string]string `json:"payload,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}
