package imapsmtp

import "strings"

// Settings are the default connection parameters for one well-known IMAP
// provider, looked up by the account email's domain suffix.
type Settings struct {
	IMAPHost            string
	IMAPPort            int
	SMTPHost            string
	SMTPPort            int
	Security            SecurityType
	AppPasswordRequired bool
}

// knownProviders maps an email domain suffix to its default connection
// settings. Custom/self-hosted IMAP accounts fall back to whatever the
// account record has saved explicitly.
var knownProviders = map[string]Settings{
	"gmail.com":     {IMAPHost: "imap.gmail.com", IMAPPort: 993, SMTPHost: "smtp.gmail.com", SMTPPort: 465, Security: SecurityTLS, AppPasswordRequired: true},
	"outlook.com":   {IMAPHost: "outlook.office365.com", IMAPPort: 993, SMTPHost: "smtp.office365.com", SMTPPort: 587, Security: SecurityStartTLS},
	"hotmail.com":   {IMAPHost: "outlook.office365.com", IMAPPort: 993, SMTPHost: "smtp.office365.com", SMTPPort: 587, Security: SecurityStartTLS},
	"live.com":      {IMAPHost: "outlook.office365.com", IMAPPort: 993, SMTPHost: "smtp.office365.com", SMTPPort: 587, Security: SecurityStartTLS},
	"yahoo.com":     {IMAPHost: "imap.mail.yahoo.com", IMAPPort: 993, SMTPHost: "smtp.mail.yahoo.com", SMTPPort: 465, Security: SecurityTLS, AppPasswordRequired: true},
	"icloud.com":    {IMAPHost: "imap.mail.me.com", IMAPPort: 993, SMTPHost: "smtp.mail.me.com", SMTPPort: 587, Security: SecurityStartTLS, AppPasswordRequired: true},
	"me.com":        {IMAPHost: "imap.mail.me.com", IMAPPort: 993, SMTPHost: "smtp.mail.me.com", SMTPPort: 587, Security: SecurityStartTLS, AppPasswordRequired: true},
	"fastmail.com":  {IMAPHost: "imap.fastmail.com", IMAPPort: 993, SMTPHost: "smtp.fastmail.com", SMTPPort: 465, Security: SecurityTLS, AppPasswordRequired: true},
	"protonmail.com": {IMAPHost: "127.0.0.1", IMAPPort: 1143, SMTPHost: "127.0.0.1", SMTPPort: 1025, Security: SecurityStartTLS},
}

// DetectSettings returns the known connection defaults for email's domain,
// if any. ok is false for custom/unrecognized domains, in which case the
// caller must supply explicit host/port settings.
func DetectSettings(email string) (settings Settings, ok bool) {
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return Settings{}, false
	}
	domain := strings.ToLower(email[at+1:])
	s, ok := knownProviders[domain]
	return s, ok
}
