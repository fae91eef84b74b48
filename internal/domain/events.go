package domain

import (
	"strconv"
	"time"
)

// ─── Events ─────────────────────────────────────────────────────────────────
// Every state change emits one Event for off-chain observers. Emission is a
// side effect; nothing inside the ledger reads events back.

// EventType identifies what happened.
type EventType string

const (
	EventRankProposed     EventType = "rank.proposed"
	EventRankVoted        EventType = "rank.voted"
	EventRankClosed       EventType = "rank.closed"
	EventListingProposed  EventType = "listing.proposed"
	EventListingVoted     EventType = "listing.voted"
	EventListingClosed    EventType = "listing.closed"
	EventListingPenalized EventType = "listing.penalized"
	EventOpinion          EventType = "listing.opinion"
	EventRemovalProposed  EventType = "removal.proposed"
	EventRemovalVoted     EventType = "removal.voted"
	EventRemovalClosed    EventType = "removal.closed"
	EventRankChanged      EventType = "rank.changed"
	EventPollPeriodSet    EventType = "admin.poll_period"

	EventStaked          EventType = "staking.staked"
	EventUnstaked        EventType = "staking.unstaked"
	EventStakeExtended   EventType = "staking.extended"
	EventRewardDeposited EventType = "staking.reward_deposited"
	EventRewardClaimed   EventType = "staking.reward_claimed"
	EventPenalized       EventType = "staking.penalized"

	EventSharingSet     EventType = "sharing.set"
	EventSharingStopped EventType = "sharing.stopped"
)

// Event is a structured record of a state change.
type Event struct {
	ID      string            `json:"id"`
	Type    EventType         `json:"type"`
	Height  uint64            `json:"height"`
	Account Account           `json:"account,omitempty"`
	Attrs   map[string]string `json:"attrs,omitempty"`
	Time    time.Time         `json:"time"`
}

// NewEvent builds an event. ID and Time are filled in by the emitter.
func NewEvent(typ EventType, height uint64, account Account) Event {
	return Event{Type: typ, Height: height, Account: account, Attrs: map[string]string{}}
}

// With sets a string attribute and returns the event for chaining.
func (e Event) With(key, value string) Event {
	if e.Attrs == nil {
		e.Attrs = map[string]string{}
	}
	e.Attrs[key] = value
	return e
}

// WithUint sets a numeric attribute.
func (e Event) WithUint(key string, v uint64) Event {
	return e.With(key, strconv.FormatUint(v, 10))
}

// WithBool sets a boolean attribute.
func (e Event) WithBool(key string, v bool) Event {
	return e.With(key, strconv.FormatBool(v))
}

// EventSink receives emitted events.
type EventSink interface {
	Emit(ev Event)
}

// DiscardEvents is an EventSink that drops everything.
var DiscardEvents EventSink = discard{}

type discard struct{}

func (discard) Emit(Event) {}
