package task

import "testing"

func TestStatusIsTerminal(t *testing.T) {
	tests := []struct {
		status   Status
		terminal bool
	}{
		{StatusQueued, false},
		{StatusRunning, false},
		{StatusBlocked, false},
		{StatusCompleted, true},
		{StatusFailed, true},
		{StatusCancelled, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			if got := tt.status.IsTerminal(); got != tt.terminal {
				t.Errorf("Status(%q).IsTerminal() = %v, want %v", tt.status, got, tt.terminal)
			}
		})
	}
}

func TestParseStatus(t *testing.T) {
	tests := []struct {
		raw  string
		want Status
		ok   bool
	}{
		{"queued", StatusQueued, true},
		{"Running", StatusRunning, true},
		{"  blocked  ", StatusBlocked, true},
		{"COMPLETED", StatusCompleted, true},
		{"failed", StatusFailed, true},
		{"cancelled", StatusCancelled, true},
		{"mystery", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, ok := ParseStatus(tt.raw)
			if ok != tt.ok || got != tt.want {
				t.Errorf("ParseStatus(%q) = (%q, %v), want (%q, %v)", tt.raw, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusQueued, StatusRunning, true},
		{StatusQueued, StatusCancelled, true},
		{StatusQueued, StatusBlocked, false},
		{StatusQueued, StatusCompleted, false},
		{StatusRunning, StatusRunning, true},
		{StatusRunning, StatusBlocked, true},
		{StatusRunning, StatusCompleted, true},
		{StatusRunning, StatusFailed, true},
		{StatusRunning, StatusCancelled, true},
		{StatusRunning, StatusQueued, false},
		{StatusBlocked, StatusRunning, true},
		{StatusBlocked, StatusFailed, true},
		{StatusBlocked, StatusCancelled, true},
		{StatusBlocked, StatusCompleted, false},
		{StatusFailed, StatusRunning, true},
		{StatusFailed, StatusFailed, true},
		{StatusFailed, StatusCompleted, false},
		{StatusCompleted, StatusRunning, false},
		{StatusCompleted, StatusCompleted, false},
		{StatusCancelled, StatusRunning, false},
	}

	for _, tt := range tests {
		name := string(tt.from) + "->" + string(tt.to)
		t.Run(name, func(t *testing.T) {
			if got := CanTransition(tt.from, tt.to); got != tt.want {
				t.Errorf("CanTransition(%q, %q) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestIsRecoverable(t *testing.T) {
	tests := []struct {
		status Status
		want   bool
	}{
		{StatusQueued, true},
		{StatusRunning, true},
		{StatusBlocked, true},
		{StatusCompleted, false},
		{StatusFailed, false},
		{StatusCancelled, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			if got := IsRecoverable(tt.status); got != tt.want {
				t.Errorf("IsRecoverable(%q) = %v, want %v", tt.status, got, tt.want)
			}
		})
	}
}
