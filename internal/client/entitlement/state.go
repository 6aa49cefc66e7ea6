// Package entitlement keeps the device-local plan and daily usage record that
// gates conversions: a fixed daily upload quota on the free plan, one
// ad-unlocked AI conversion per day, and no limits on PRO.
//
// The record is never reconciled with a server; reinstalling the client
// resets it.
package entitlement

import (
	"fmt"
	"time"
)

// PlanTier is the subscription plan.
type PlanTier string

const (
	PlanFree PlanTier = "FREE"
	PlanPro  PlanTier = "PRO"
)

const dateLayout = "2006-01-02"

// State is the persisted record. Date is the local calendar day the daily
// fields belong to.
type State struct {
	PlanTier           PlanTier  `json:"plan_tier"`
	Date               string    `json:"date"`
	DailyUploadCount   int       `json:"daily_upload_count"`
	DailyAIUploadCount int       `json:"daily_ai_upload_count"`
	AdWatchedToday     bool      `json:"ad_watched_today"`
	AIFreeUsedToday    bool      `json:"ai_free_used_today"`
	UpdatedAt          time.Time `json:"updated_at"`
}

func defaultState(today string, now time.Time) State {
	return State{PlanTier: PlanFree, Date: today, UpdatedAt: now}
}

// rollover clears the daily fields when s belongs to another day.
func (s *State) rollover(today string) bool {
	if s.Date == today {
		return false
	}
	s.Date = today
	s.DailyUploadCount = 0
	s.DailyAIUploadCount = 0
	s.AdWatchedToday = false
	s.AIFreeUsedToday = false
	return true
}

// AIAvailability is the outcome of the AI gate.
type AIAvailability int

const (
	AIProUnlimited AIAvailability = iota
	AIFreeAvailable
	AINeedAd
	AINeedSubscription
)

func (a AIAvailability) String() string {
	switch a {
	case AIProUnlimited:
		return "pro_unlimited"
	case AIFreeAvailable:
		return "free_available"
	case AINeedAd:
		return "need_ad"
	case AINeedSubscription:
		return "need_subscription"
	}
	panic(fmt.Sprintf("entitlement: unknown AIAvailability %d", int(a)))
}

// Allowed reports whether an AI conversion may start.
func (a AIAvailability) Allowed() bool {
	switch a {
	case AIProUnlimited, AIFreeAvailable:
		return true
	case AINeedAd, AINeedSubscription:
		return false
	}
	panic(fmt.Sprintf("entitlement: unknown AIAvailability %d", int(a)))
}

// AIDecision is returned by Store.AIAvailability. NextAvailable is set for
// AINeedSubscription to the next local midnight.
type AIDecision struct {
	Availability  AIAvailability
	NextAvailable time.Time
}

func (d AIDecision) Allowed() bool { return d.Availability.Allowed() }

// DenyReason tells why CanUpload refused.
type DenyReason int

const (
	ReasonNone DenyReason = iota
	ReasonDailyLimit
	ReasonAIGate
)

func (r DenyReason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonDailyLimit:
		return "daily_limit"
	case ReasonAIGate:
		return "ai_gate"
	}
	panic(fmt.Sprintf("entitlement: unknown DenyReason %d", int(r)))
}

// Decision is the result of CanUpload. AI is only meaningful when the
// request wanted AI.
type Decision struct {
	Allowed bool
	Reason  DenyReason
	AI      AIDecision
	Message string
}

// Unlimited marks a remaining count with no bound.
const Unlimited = -1

// Usage summarises the current day for display.
type Usage struct {
	Plan               PlanTier
	Uploads            int
	AIUploads          int
	RemainingUploads   int
	RemainingAIUploads int
	NextReset          time.Time
}
