package model

import "testing"

func TestApprovalStateTerminal(t *testing.T) {
	tests := []struct {
		state ApprovalState
		want  bool
	}{
		{ApprovalPending, false},
		{ApprovalApproved, true},
		{ApprovalRejected, true},
		{ApprovalTimedOut, true},
		{ApprovalCanceled, true},
	}
	for _, tt := range tests {
		if got := tt.state.Terminal(); got != tt.want {
			t.Errorf("%s.Terminal() = %v, want %v", tt.state, got, tt.want)
		}
	}
}

func TestHasApprover(t *testing.T) {
	req := ApprovalRequest{
		Approvers: []string{"slack:#eng-leads", "email:sre@example.com", "dana"},
	}

	tests := []struct {
		id   string
		want bool
	}{
		{"slack:#eng-leads", true},
		{"#eng-leads", true}, // bare identity matches after the channel prefix
		{"sre@example.com", true},
		{"dana", true},
		{"eng-leads", false},
		{"mallory", false},
	}
	for _, tt := range tests {
		if got := req.HasApprover(tt.id); got != tt.want {
			t.Errorf("HasApprover(%q) = %v, want %v", tt.id, got, tt.want)
		}
	}
}

func TestAlreadyApproved(t *testing.T) {
	req := ApprovalRequest{ApprovedBy: []string{"dana", "erin"}}

	if !req.AlreadyApproved("dana") {
		t.Error("dana has voted and should read as already approved")
	}
	if req.AlreadyApproved("frank") {
		t.Error("frank has not voted")
	}
}
