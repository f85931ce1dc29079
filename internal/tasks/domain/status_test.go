package domain

import "testing"

func TestCanTransitionTable(t *testing.T) {
	allowed := []struct{ from, to Status }{
		{StatusScheduled, StatusAssigned},
		{StatusScheduled, StatusCanceled},
		{StatusAssigned, StatusInProgress},
		{StatusAssigned, StatusCanceled},
		{StatusAssigned, StatusFailed},
		{StatusAssigned, StatusScheduled},
		{StatusInProgress, StatusCompleted},
		{StatusInProgress, StatusFailed},
	}

	for _, tc := range allowed {
		if !CanTransition(tc.from, tc.to) {
			t.Errorf("expected %s -> %s to be allowed", tc.from, tc.to)
		}
	}
}

func TestTerminalStatusesHaveNoOutgoingTransitions(t *testing.T) {
	all := []Status{
		StatusScheduled, StatusAssigned, StatusInProgress,
		StatusCompleted, StatusCanceled, StatusFailed,
	}

	for _, terminal := range []Status{StatusCompleted, StatusCanceled, StatusFailed} {
		if !IsTerminal(terminal) {
			t.Errorf("expected %s to be terminal", terminal)
		}
		for _, to := range all {
			if CanTransition(terminal, to) {
				t.Errorf("terminal status %s must not transition to %s", terminal, to)
			}
		}
	}
}

func TestRejectedTransitions(t *testing.T) {
	rejected := []struct{ from, to Status }{
		{StatusScheduled, StatusInProgress},
		{StatusScheduled, StatusCompleted},
		{StatusScheduled, StatusFailed},
		{StatusAssigned, StatusCompleted},
		{StatusInProgress, StatusScheduled},
		{StatusInProgress, StatusAssigned},
		{StatusInProgress, StatusCanceled},
	}

	for _, tc := range rejected {
		if CanTransition(tc.from, tc.to) {
			t.Errorf("expected %s -> %s to be rejected", tc.from, tc.to)
		}
	}
}

func TestIsKnown(t *testing.T) {
	if !IsKnown(StatusScheduled) {
		t.Error("scheduled must be a known status")
	}
	if IsKnown(Status("paused")) {
		t.Error("paused must not be a known status")
	}
	if IsTerminal(Status("paused")) {
		t.Error("unknown status must not be reported terminal")
	}
}
