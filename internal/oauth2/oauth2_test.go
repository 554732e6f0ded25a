package oauth2

import (
	"strings"
	"testing"
)

func TestNewAttemptIsUnique(t *testing.T) {
	a := NewAttempt()
	b := NewAttempt()
	if a.State == "" || a.Verifier == "" {
		t.Fatalf("expected non-empty state and verifier")
	}
	if a.State == b.State || a.Verifier == b.Verifier {
		t.Fatalf("expected distinct attempts, got %+v and %+v", a, b)
	}
}

func TestAuthCodeURLCarriesPKCEAndState(t *testing.T) {
	f := NewGmailFlow("client-id", "client-secret", "https://localhost/callback")
	a := NewAttempt()

	url := f.AuthCodeURL(a)
	if !strings.Contains(url, "code_challenge=") {
		t.Fatalf("expected code_challenge in auth URL, got %s", url)
	}
	if !strings.Contains(url, "code_challenge_method=S256") {
		t.Fatalf("expected S256 challenge method, got %s", url)
	}
	if !strings.Contains(url, "state="+a.State) {
		t.Fatalf("expected state %s in auth URL, got %s", a.State, url)
	}
}

func TestVerifyStateRejectsMismatch(t *testing.T) {
	a := NewAttempt()
	if err := VerifyState(a, a.State); err != nil {
		t.Fatalf("expected matching state to verify, got %v", err)
	}
	if err := VerifyState(a, "forged-state"); err == nil {
		t.Fatalf("expected mismatched state to fail verification")
	}
	if err := VerifyState(a, ""); err == nil {
		t.Fatalf("expected empty callback state to fail verification")
	}
}

func TestOutlookFlowDefaultsTenant(t *testing.T) {
	f := NewOutlookFlow("client-id", "client-secret", "https://localhost/callback", "")
	if !strings.Contains(f.cfg.Endpoint.AuthURL, "/common/") {
		t.Fatalf("expected default tenant 'common' in endpoint, got %s", f.cfg.Endpoint.AuthURL)
	}
}
