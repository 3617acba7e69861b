package models

import "time"

// LeadFilter narrows a lead query. Zero values mean "no constraint".
type LeadFilter struct {
	OrganizationID string     `json:"organization_id,omitempty"`
	AgentID        string     `json:"agent_id,omitempty"`
	FollowUpFrom   *time.Time `json:"follow_up_from,omitempty"`
	FollowUpTo     *time.Time `json:"follow_up_to,omitempty"`
	RequireAgent   bool       `json:"require_agent,omitempty"`
	Snoozed        *bool      `json:"snoozed,omitempty"`
	// SnoozeEndsBefore selects leads whose snooze_until is strictly earlier.
	SnoozeEndsBefore *time.Time `json:"snooze_ends_before,omitempty"`
}

// Match applies the filter to a single lead. Range bounds are inclusive
// except SnoozeEndsBefore.
func (f LeadFilter) Match(l *Lead) bool {
	if f.OrganizationID != "" && l.OrganizationID != f.OrganizationID {
		return false
	}
	if f.AgentID != "" && l.AgentID != f.AgentID {
		return false
	}
	if f.RequireAgent && !l.AgentAssigned() {
		return false
	}
	if f.Snoozed != nil && l.IsSnoozed != *f.Snoozed {
		return false
	}
	if f.FollowUpFrom != nil || f.FollowUpTo != nil {
		if l.FollowUpAt == nil {
			return false
		}
		if f.FollowUpFrom != nil && l.FollowUpAt.Before(*f.FollowUpFrom) {
			return false
		}
		if f.FollowUpTo != nil && l.FollowUpAt.After(*f.FollowUpTo) {
			return false
		}
	}
	if f.SnoozeEndsBefore != nil {
		if l.SnoozeUntil == nil || !l.SnoozeUntil.Before(*f.SnoozeEndsBefore) {
			return false
		}
	}
	return true
}

// LeadUpdate lists the time-driven fields the pipeline may change.
type LeadUpdate struct {
	LeadScore *float64 `json:"lead_score,omitempty"`
	// Unsnooze clears is_snoozed and snooze_until together.
	Unsnooze bool `json:"unsnooze,omitempty"`
}

// Empty reports whether the update changes nothing.
func (u LeadUpdate) Empty() bool {
	return u.LeadScore == nil && !u.Unsnooze
}

// Apply mutates lead in place; scores are clamped.
func (u LeadUpdate) Apply(l *Lead) {
	if u.LeadScore != nil {
		l.LeadScore = ClampScore(*u.LeadScore)
	}
	if u.Unsnooze {
		l.IsSnoozed = false
		l.SnoozeUntil = nil
	}
}
