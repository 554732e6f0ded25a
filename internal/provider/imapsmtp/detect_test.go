package imapsmtp

import "testing"

func TestDetectSettingsKnownProvider(t *testing.T) {
	settings, ok := DetectSettings("user@gmail.com")
	if !ok {
		t.Fatal("expected gmail.com to be a known provider")
	}
	if settings.IMAPHost != "imap.gmail.com" || settings.SMTPHost != "smtp.gmail.com" {
		t.Fatalf("unexpected settings: %+v", settings)
	}
	if settings.Security != SecurityTLS {
		t.Fatalf("expected implicit TLS for gmail, got %v", settings.Security)
	}
}

func TestDetectSettingsCaseInsensitive(t *testing.T) {
	_, ok := DetectSettings("USER@ICLOUD.COM")
	if !ok {
		t.Fatal("expected domain matching to be case-insensitive")
	}
}

func TestDetectSettingsUnknownDomain(t *testing.T) {
	if _, ok := DetectSettings("user@example.net"); ok {
		t.Fatal("expected unknown domain to report ok=false")
	}
}

func TestDetectSettingsMalformedEmail(t *testing.T) {
	if _, ok := DetectSettings("not-an-email"); ok {
		t.Fatal("expected malformed email to report ok=false")
	}
}
