package models

import (
	"testing"
	"time"
)

func TestClampScore(t *testing.T) {
	cases := map[float64]float64{-5: 0, 0: 0, 42.5: 42.5, 100: 100, 130: 100}
	for in, want := range cases {
		if got := ClampScore(in); got != want {
			t.Errorf("ClampScore(%v) = %v, want %v", in, got, want)
		}
	}
}

func TestIsConvertedCategory(t *testing.T) {
	for _, name := range []string{"Converted", "CONVERTED - paid", "Unconverted"} {
		if !IsConvertedCategory(name) {
			t.Errorf("expected %q to match", name)
		}
	}
	for _, name := range []string{"", "New", "Contacted", "Won"} {
		if IsConvertedCategory(name) {
			t.Errorf("expected %q not to match", name)
		}
	}
}

func TestPerformanceRecord_ComputeRates(t *testing.T) {
	r := PerformanceRecord{LeadsAssigned: 0, LeadsContacted: 3, LeadsConverted: 1}
	r.ComputeRates()
	if r.ConversionRate != 0 || r.ContactRate != 0 {
		t.Errorf("expected zero rates without assignments, got %v/%v", r.ConversionRate, r.ContactRate)
	}

	r = PerformanceRecord{LeadsAssigned: 4, LeadsContacted: 3, LeadsConverted: 1}
	r.ComputeRates()
	if r.ConversionRate != 25 {
		t.Errorf("expected conversion rate 25, got %v", r.ConversionRate)
	}
	if r.ContactRate != 75 {
		t.Errorf("expected contact rate 75, got %v", r.ContactRate)
	}
}

func TestSummarizePerformance(t *testing.T) {
	from := time.Date(2026, 3, 1, 15, 0, 0, 0, time.UTC)
	to := time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC)
	records := []PerformanceRecord{
		{LeadsAssigned: 3, LeadsContacted: 3, LeadsConverted: 1, TotalInteractions: 5, ConversionRate: 33.3},
		{LeadsAssigned: 1, LeadsContacted: 0, LeadsConverted: 1, TotalInteractions: 2, ConversionRate: 100},
	}
	sum := SummarizePerformance("ag", from, to, records)
	if sum.LeadsAssigned != 4 || sum.LeadsConverted != 2 || sum.TotalInteractions != 7 {
		t.Errorf("unexpected totals: %+v", sum)
	}
	if sum.ConversionRate != 50 || sum.ContactRate != 75 {
		t.Errorf("rates must come from totals, got %v/%v", sum.ConversionRate, sum.ContactRate)
	}
	if !sum.From.Equal(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("From = %v, want day start", sum.From)
	}

	empty := SummarizePerformance("ag", from, to, nil)
	if empty.Records == nil || empty.ConversionRate != 0 {
		t.Errorf("empty summary = %+v", empty)
	}
}

func TestDayStart(t *testing.T) {
	loc := time.FixedZone("UTC+5", 5*3600)
	in := time.Date(2026, 4, 2, 2, 30, 0, 0, loc) // 2026-04-01 21:30 UTC
	want := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	if got := DayStart(in); !got.Equal(want) {
		t.Errorf("DayStart = %v, want %v", got, want)
	}
}

func TestLeadFilter_Match(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	from := now.Add(-7 * 24 * time.Hour)
	to := now.Add(24 * time.Hour)
	notSnoozed := false
	f := LeadFilter{FollowUpFrom: &from, FollowUpTo: &to, RequireAgent: true, Snoozed: &notSnoozed}

	due := now.Add(-2 * time.Hour)
	stale := now.Add(-10 * 24 * time.Hour)

	tests := []struct {
		name string
		lead Lead
		want bool
	}{
		{"due and assigned", Lead{AgentID: "a", FollowUpAt: &due}, true},
		{"stale", Lead{AgentID: "a", FollowUpAt: &stale}, false},
		{"unassigned", Lead{FollowUpAt: &due}, false},
		{"snoozed", Lead{AgentID: "a", FollowUpAt: &due, IsSnoozed: true, SnoozeUntil: &to}, false},
		{"no follow up", Lead{AgentID: "a"}, false},
		{"lower bound inclusive", Lead{AgentID: "a", FollowUpAt: &from}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := f.Match(&tt.lead); got != tt.want {
				t.Errorf("Match() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLeadUpdate_Apply(t *testing.T) {
	until := time.Now()
	l := &Lead{IsSnoozed: true, SnoozeUntil: &until, LeadScore: 10}
	score := 140.0
	LeadUpdate{LeadScore: &score, Unsnooze: true}.Apply(l)
	if l.IsSnoozed || l.SnoozeUntil != nil {
		t.Error("expected lead to be unsnoozed")
	}
	if l.LeadScore != 100 {
		t.Errorf("expected clamped score 100, got %v", l.LeadScore)
	}
	if !(LeadUpdate{}).Empty() {
		t.Error("zero update should be empty")
	}
}

func TestJobRun_Transition(t *testing.T) {
	r := &JobRun{Status: JobPending}
	if err := r.Transition(JobSucceeded); err == nil {
		t.Fatal("pending -> succeeded must be rejected")
	}
	if err := r.Transition(JobRunning); err != nil {
		t.Fatalf("pending -> running: %v", err)
	}
	if err := r.Transition(JobPartiallyFailed); err != nil {
		t.Fatalf("running -> partially_failed: %v", err)
	}
	if !r.Status.Terminal() {
		t.Error("partially_failed should be terminal")
	}
	if err := r.Transition(JobRunning); err == nil {
		t.Fatal("terminal states must not transition")
	}
}
