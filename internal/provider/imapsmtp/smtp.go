package imapsmtp

import (
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"time"

	"github.com/intentmail/intentmail/internal/provider"
)

// sendSMTP delivers raw, an already-composed RFC 5322 message, over SMTP
// with implicit TLS (port 465) or STARTTLS (port 587), authenticating with
// password or XOAUTH2 depending on creds.
func sendSMTP(host string, port int, creds provider.Credentials, from string, recipients []string, raw []byte) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	dialer := &net.Dialer{Timeout: 30 * time.Second}

	var conn net.Conn
	var err error
	if port == 465 {
		conn, err = tls.DialWithDialer(dialer, "tcp", addr, &tls.Config{ServerName: host})
	} else {
		conn, err = dialer.Dial("tcp", addr)
	}
	if err != nil {
		return fmt.Errorf("imapsmtp: dial smtp: %w", err)
	}

	client, err := smtp.NewClient(conn, host)
	if err != nil {
		return fmt.Errorf("imapsmtp: smtp handshake: %w", err)
	}
	defer client.Close()

	if port != 465 {
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(&tls.Config{ServerName: host}); err != nil {
				return fmt.Errorf("imapsmtp: starttls: %w", err)
			}
		}
	}

	var auth smtp.Auth
	if creds.AccessToken != "" {
		auth = newSMTPXOAuth2Auth(creds.Username, creds.AccessToken)
	} else {
		auth = smtp.PlainAuth("", creds.Username, creds.IMAPPassword, host)
	}
	if ok, _ := client.Extension("AUTH"); ok {
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("imapsmtp: smtp auth: %w", err)
		}
	}

	if err := client.Mail(from); err != nil {
		return fmt.Errorf("imapsmtp: MAIL FROM: %w", err)
	}
	for _, rcpt := range recipients {
		if err := client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("imapsmtp: RCPT TO %s: %w", rcpt, err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("imapsmtp: DATA: %w", err)
	}
	if _, err := w.Write(raw); err != nil {
		return fmt.Errorf("imapsmtp: write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("imapsmtp: close message: %w", err)
	}

	return client.Quit()
}
