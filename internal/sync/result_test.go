package sync

import (
	"errors"
	"testing"

	"github.com/intentmail/intentmail/internal/apperrors"
)

func TestClassifyMapsKindsToOutcomes(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want Outcome
	}{
		{"nil", nil, OutcomeOK},
		{"auth", apperrors.AuthFailed("bad token"), OutcomeFatal},
		{"rateLimited", apperrors.RateLimited("slow down"), OutcomeTransient},
		{"transient", apperrors.Transient("network blip", errors.New("timeout")), OutcomeTransient},
		{"notFound", apperrors.NotFound("gone"), OutcomeSkippable},
		{"plain", errors.New("boom"), OutcomeSkippable},
	}
	for _, c := range cases {
		if got := classify(c.err).Outcome; got != c.want {
			t.Errorf("classify(%v) = %v, want %v", c.err, got, c.want)
		}
	}
}

func TestDedupeAgainstFiltersSeenAndMarksNew(t *testing.T) {
	seen := map[string]bool{"a": true}
	got := dedupeAgainst([]string{"a", "b", "b", "c"}, seen)

	if len(got) != 2 || got[0] != "b" || got[1] != "c" {
		t.Fatalf("dedupeAgainst = %v, want [b c]", got)
	}
	if !seen["b"] || !seen["c"] {
		t.Errorf("expected b and c to be marked seen: %v", seen)
	}
}
