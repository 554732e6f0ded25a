// Package imapsmtp adapts a generic IMAP/SMTP mailbox to the provider
// interface, for accounts that aren't Gmail or Microsoft Graph: Yahoo,
// iCloud, Fastmail, ProtonMail Bridge, and custom/self-hosted IMAP.
package imapsmtp

import (
	"crypto/tls"
	"fmt"
	"net"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/emersion/go-sasl"
	"github.com/intentmail/intentmail/internal/logging"
	"github.com/rs/zerolog"
)

// deadlineConn wraps a net.Conn to set read/write deadlines before each
// operation, since go-imap v2 does not enforce its own I/O timeouts.
type deadlineConn struct {
	net.Conn
	readTimeout  time.Duration
	writeTimeout time.Duration
}

func (c *deadlineConn) Read(b []byte) (int, error) {
	if c.readTimeout > 0 {
		if err := c.Conn.SetReadDeadline(time.Now().Add(c.readTimeout)); err != nil {
			return 0, err
		}
	}
	return c.Conn.Read(b)
}

func (c *deadlineConn) Write(b []byte) (int, error) {
	if c.writeTimeout > 0 {
		if err := c.Conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
			return 0, err
		}
	}
	return c.Conn.Write(b)
}

// SecurityType is the connection security method for one mailbox host.
type SecurityType string

const (
	SecurityTLS      SecurityType = "tls"
	SecurityStartTLS SecurityType = "starttls"
	SecurityNone     SecurityType = "none"
)

// AuthType selects how Client.Login authenticates.
type AuthType string

const (
	AuthTypePassword AuthType = "password"
	AuthTypeOAuth2   AuthType = "oauth2"
)

// ClientConfig configures one IMAP connection attempt.
type ClientConfig struct {
	Host     string
	Port     int
	Security SecurityType
	Username string
	Password string

	AuthType    AuthType
	AccessToken string

	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
}

// DefaultClientConfig returns sensible connection timeouts.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Port:           993,
		Security:       SecurityTLS,
		ConnectTimeout: 30 * time.Second,
		ReadTimeout:    3 * time.Minute,
		WriteTimeout:   30 * time.Second,
	}
}

// Client wraps an imapclient.Client with deadline enforcement and
// capability-aware login.
type Client struct {
	config ClientConfig
	client *imapclient.Client
	caps   imap.CapSet
	log    zerolog.Logger
}

// NewClient builds a Client but does not connect.
func NewClient(config ClientConfig) *Client {
	return &Client{config: config, log: logging.WithComponent("imapsmtp")}
}

// Connect dials the server per config.Security and waits for the greeting.
func (c *Client) Connect() error {
	addr := fmt.Sprintf("%s:%d", c.config.Host, c.config.Port)
	dialer := &net.Dialer{Timeout: c.config.ConnectTimeout}
	options := &imapclient.Options{}

	var err error
	switch c.config.Security {
	case SecurityTLS:
		rawConn, dialErr := tls.DialWithDialer(dialer, "tcp", addr, &tls.Config{ServerName: c.config.Host})
		if dialErr != nil {
			return fmt.Errorf("imapsmtp: dial tls: %w", dialErr)
		}
		c.client = imapclient.New(c.wrapDeadline(rawConn), options)

	case SecurityStartTLS:
		c.client, err = imapclient.DialStartTLS(addr, options)
		if err != nil {
			return fmt.Errorf("imapsmtp: dial starttls: %w", err)
		}

	default:
		rawConn, dialErr := dialer.Dial("tcp", addr)
		if dialErr != nil {
			return fmt.Errorf("imapsmtp: dial: %w", dialErr)
		}
		c.client = imapclient.New(c.wrapDeadline(rawConn), options)
	}

	if err := c.client.WaitGreeting(); err != nil {
		c.client.Close()
		return fmt.Errorf("imapsmtp: greeting: %w", err)
	}
	c.caps = c.client.Caps()
	return nil
}

func (c *Client) wrapDeadline(conn net.Conn) net.Conn {
	return &deadlineConn{Conn: conn, readTimeout: c.config.ReadTimeout, writeTimeout: c.config.WriteTimeout}
}

// Login authenticates using config.AuthType: XOAUTH2 for AuthTypeOAuth2;
// otherwise LOGIN, falling back to AUTHENTICATE PLAIN when LOGIN fails
// (or using AUTHENTICATE PLAIN directly when the server advertises
// LOGINDISABLED).
func (c *Client) Login() error {
	if c.client == nil {
		return fmt.Errorf("imapsmtp: not connected")
	}

	authType := c.config.AuthType
	if authType == "" {
		authType = AuthTypePassword
	}

	var err error
	switch authType {
	case AuthTypeOAuth2:
		err = c.client.Authenticate(NewXOAuth2Client(c.config.Username, c.config.AccessToken))
		if err != nil {
			return fmt.Errorf("imapsmtp: xoauth2 login: %w", err)
		}
	default:
		if c.caps.Has(imap.CapLoginDisabled) {
			err = c.client.Authenticate(sasl.NewPlainClient("", c.config.Username, c.config.Password))
		} else if err = c.client.Login(c.config.Username, c.config.Password).Wait(); err != nil {
			err = c.client.Authenticate(sasl.NewPlainClient("", c.config.Username, c.config.Password))
		}
		if err != nil {
			return fmt.Errorf("imapsmtp: password login: %w", err)
		}
	}

	c.caps = c.client.Caps()
	return nil
}

// Close logs out and closes the connection.
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}
	c.client.Logout().Wait()
	return c.client.Close()
}

// ForceClose closes the underlying connection without a graceful logout,
// for connections already known to be dead.
func (c *Client) ForceClose() error {
	if c.client == nil {
		return nil
	}
	return c.client.Close()
}

func (c *Client) HasCap(capability imap.Cap) bool { return c.caps.Has(capability) }

func (c *Client) Raw() *imapclient.Client { return c.client }
