package ingest

import "testing"

func TestAcceptsBranch(t *testing.T) {
	tests := []struct {
		name       string
		configured string
		ref        string
		want       bool
	}{
		{"configured match", "develop", "refs/heads/develop", true},
		{"configured mismatch", "main", "refs/heads/feature/x", false},
		{"configured overrides defaults", "develop", "refs/heads/main", false},
		{"default main", "", "refs/heads/main", true},
		{"default master", "", "refs/heads/master", true},
		{"default other", "", "refs/heads/trunk", false},
		{"tag ref", "", "refs/tags/main", false},
		{"nested branch", "release/1.0", "refs/heads/release/1.0", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := AcceptsBranch(tt.configured, BranchFromRef(tt.ref)); got != tt.want {
				t.Errorf("AcceptsBranch(%q, %q) = %v, want %v", tt.configured, tt.ref, got, tt.want)
			}
		})
	}
}
