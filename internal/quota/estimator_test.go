package quota

import (
	"strings"
	"testing"
)

func TestEstimateTokensRoundsUp(t *testing.T) {
	est := NewEstimator(20, 3, 100)

	cases := []struct {
		text string
		want int64
	}{
		{"", 20},
		{"hi", 21},
		{"abcd", 21},
		{"abcde", 22},
		{strings.Repeat("x", 400), 120},
	}
	for _, tc := range cases {
		if got := est.EstimateTokens(tc.text); got != tc.want {
			t.Errorf("EstimateTokens(%q) = %d, want %d", tc.text, got, tc.want)
		}
	}
}

func TestEstimateForSearchAppliesMultiplier(t *testing.T) {
	est := NewEstimator(20, 3, 100)
	plain := est.EstimateTokens("find my onboarding doc")
	if got := est.EstimateForSearch("find my onboarding doc"); got != plain*3 {
		t.Fatalf("search estimate = %d, want %d", got, plain*3)
	}
}

func TestReserveEnforcesFloor(t *testing.T) {
	est := NewEstimator(20, 3, 100)
	if got := est.Reserve(30); got != 100 {
		t.Fatalf("Reserve(30) = %d, want floor 100", got)
	}
	if got := est.Reserve(250); got != 250 {
		t.Fatalf("Reserve(250) = %d, want 250", got)
	}
}

func TestNewEstimatorDefaults(t *testing.T) {
	est := NewEstimator(0, 0, 0)
	if est.OverheadTokens != 20 || est.SearchMultiplier != 3 || est.MinReserveTokens != 100 {
		t.Fatalf("unexpected defaults: %+v", est)
	}
}
