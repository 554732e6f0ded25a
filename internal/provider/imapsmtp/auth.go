package imapsmtp

import (
	"errors"
	"fmt"
	"net/smtp"

	"github.com/emersion/go-sasl"
)

// xoauth2Client implements the SASL XOAUTH2 mechanism (RFC shared by
// Gmail and Microsoft IMAP/SMTP endpoints) for go-sasl's Client interface.
type xoauth2Client struct {
	username    string
	accessToken string
}

// NewXOAuth2Client builds a SASL client authenticating an IMAP session via
// an OAuth2 access token instead of a password.
func NewXOAuth2Client(username, accessToken string) sasl.Client {
	return &xoauth2Client{username: username, accessToken: accessToken}
}

func (c *xoauth2Client) Start() (mech string, ir []byte, err error) {
	ir = []byte(fmt.Sprintf("user=%s\x01auth=Bearer %s\x01\x01", c.username, c.accessToken))
	return "XOAUTH2", ir, nil
}

func (c *xoauth2Client) Next(challenge []byte) ([]byte, error) {
	// A non-empty challenge here is the server reporting an auth failure
	// as a base64 JSON error blob; there is nothing more to send back.
	return nil, errors.New("imapsmtp: xoauth2 challenge rejected")
}

// smtpXOAuth2Auth implements net/smtp's Auth interface for XOAUTH2, since
// the standard library only ships PLAIN and CRAM-MD5.
type smtpXOAuth2Auth struct {
	username    string
	accessToken string
}

func newSMTPXOAuth2Auth(username, accessToken string) smtp.Auth {
	return &smtpXOAuth2Auth{username: username, accessToken: accessToken}
}

func (a *smtpXOAuth2Auth) Start(server *smtp.ServerInfo) (proto string, toServer []byte, err error) {
	resp := fmt.Sprintf("user=%s\x01auth=Bearer %s\x01\x01", a.username, a.accessToken)
	return "XOAUTH2", []byte(resp), nil
}

func (a *smtpXOAuth2Auth) Next(fromServer []byte, more bool) ([]byte, error) {
	if more {
		return nil, errors.New("imapsmtp: xoauth2 challenge rejected")
	}
	return nil, nil
}
