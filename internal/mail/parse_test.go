package mail

import (
	"strings"
	"testing"

	"github.com/intentmail/intentmail/internal/provider"
)

const rawMultipart = "From: a@example.com\r\n" +
	"To: b@example.com\r\n" +
	"Subject: hi\r\n" +
	"MIME-Version: 1.0\r\n" +
	"Content-Type: multipart/alternative; boundary=\"BOUND\"\r\n" +
	"\r\n" +
	"--BOUND\r\n" +
	"Content-Type: text/plain; charset=utf-8\r\n" +
	"\r\n" +
	"hello there\r\nplease pay the invoice\r\n" +
	"--BOUND\r\n" +
	"Content-Type: text/html; charset=utf-8\r\n" +
	"\r\n" +
	"<p>hello <script>alert(1)</script>there</p>\r\n" +
	"--BOUND--\r\n"

func TestParseMessageExtractsBothBodiesAndSanitizesHTML(t *testing.T) {
	parsed, err := ParseMessage([]byte(rawMultipart))
	if err != nil {
		t.Fatalf("ParseMessage: %v", err)
	}
	if !strings.Contains(parsed.BodyText, "hello there") {
		t.Fatalf("expected plain text body, got %q", parsed.BodyText)
	}
	if strings.Contains(parsed.BodyHTML, "<script") {
		t.Fatalf("expected sanitized HTML to strip <script>, got %q", parsed.BodyHTML)
	}
	if parsed.Snippet == "" {
		t.Fatalf("expected a non-empty snippet")
	}
}

func TestSanitizeHTMLStripsScripts(t *testing.T) {
	out := SanitizeHTML(`<p onclick="evil()">hi</p><script>bad()</script>`)
	if strings.Contains(out, "script") || strings.Contains(out, "onclick") {
		t.Fatalf("expected script/onclick stripped, got %q", out)
	}
	if !strings.Contains(out, "hi") {
		t.Fatalf("expected safe content preserved, got %q", out)
	}
}

func TestComposeRFC822PlainTextOnly(t *testing.T) {
	raw, err := ComposeRFC822(provider.OutgoingMessage{
		From:     "a@example.com",
		To:       []string{"b@example.com"},
		Subject:  "test",
		TextBody: "just text",
	})
	if err != nil {
		t.Fatalf("ComposeRFC822: %v", err)
	}
	s := string(raw)
	if !strings.Contains(s, "Subject: test") || !strings.Contains(s, "just text") {
		t.Fatalf("expected subject and body in output, got %q", s)
	}
}

func TestComposeRFC822WithAttachment(t *testing.T) {
	raw, err := ComposeRFC822(provider.OutgoingMessage{
		From:     "a@example.com",
		To:       []string{"b@example.com"},
		Subject:  "with attachment",
		TextBody: "see attached",
		Attachments: []provider.OutgoingAttachment{
			{Filename: "note.txt", MimeType: "text/plain", Content: []byte("contents")},
		},
	})
	if err != nil {
		t.Fatalf("ComposeRFC822: %v", err)
	}
	s := string(raw)
	if !strings.Contains(s, "multipart/mixed") {
		t.Fatalf("expected multipart/mixed for attachment message, got %q", s)
	}
	if !strings.Contains(s, `filename="note.txt"`) {
		t.Fatalf("expected attachment filename header, got %q", s)
	}
}
