// Package store implements the durable entity stores over the SQLite
// engine in internal/database: accounts, emails, attachments, rules,
// audit log entries, and sync metrics.
package store

import "time"

// Account is one mailbox at one provider.
type Account struct {
	ID           int64
	Provider     string // gmail, outlook, yahoo, icloud, fastmail, protonmail, custom
	Email        string
	AuthType     string // oauth, imap
	DisplayName  string
	IsActive     bool

	AccessToken  string
	RefreshToken string
	TokenExpiry  *time.Time

	IMAPHost        string
	IMAPPort        int
	SMTPHost        string
	SMTPPort        int
	IMAPPasswordEnc string

	SyncCursor    string
	UIDValidity   int64
	HighestModseq int64
	LastSyncAt    *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Email is one stored message.
type Email struct {
	ID                int64
	AccountID         int64
	ProviderMessageID string
	ThreadID          string

	FromAddress string
	FromName    string
	To          []string
	CC          []string
	BCC         []string

	Subject  string
	BodyText string
	BodyHTML string
	Snippet  string

	Date       *time.Time
	ReceivedAt *time.Time

	Flags  []string // SEEN, FLAGGED, DRAFT, ANSWERED, DELETED
	Labels []string

	InReplyTo  string
	References []string
	Headers    map[string]string

	SizeBytes      int64
	HasAttachments bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// HasFlag reports whether the email currently carries flag f.
func (e *Email) HasFlag(f string) bool {
	for _, v := range e.Flags {
		if v == f {
			return true
		}
	}
	return false
}

// HasLabel reports whether the email currently carries label l.
func (e *Email) HasLabel(l string) bool {
	for _, v := range e.Labels {
		if v == l {
			return true
		}
	}
	return false
}

// Attachment is a metadata pointer to a provider blob, optionally cached
// locally under internal/attachment's cache directory.
type Attachment struct {
	ID                   int64
	EmailID              int64
	Filename             string
	MimeType             string
	SizeBytes            int64
	ContentID            string
	ProviderAttachmentID string
	LocalPath            string
	CreatedAt            time.Time
}

// Condition is one (field, operator, value) triple evaluated against an
// email by the rules engine.
type Condition struct {
	Field    string `json:"field"`
	Operator string `json:"operator"`
	Value    string `json:"value"`
}

// Action is one (type, optional parameter) step applied to a matched
// email by the rules engine.
type Action struct {
	Type      string `json:"type"`
	Parameter string `json:"parameter,omitempty"`
}

// Rule is declarative automation attached to one account.
type Rule struct {
	ID          int64
	AccountID   int64
	Name        string
	Description string
	Trigger     string // onNewEmail, manual, scheduled
	Conditions  []Condition
	Actions     []Action
	IsActive    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// EmailState is a snapshot of the mutable parts of an email, captured
// before and after a rule application for audit/rollback purposes.
type EmailState struct {
	Labels       []string  `json:"labels"`
	Flags        []string  `json:"flags"`
	LastModified time.Time `json:"lastModified"`
}

// AuditLogEntry is one rule execution against one email.
type AuditLogEntry struct {
	ID              int64
	RuleID          int64
	EmailID         int64
	Matched         bool
	AppliedActions  []string
	DryRun          bool
	ExecutedAt      time.Time
	Error           string
	StateBefore     *EmailState
	StateAfter      *EmailState
	RolledBack      bool
	RolledBackAt    *time.Time
}

// SyncMetric is one sync attempt for one account.
type SyncMetric struct {
	ID            int64
	AccountID     int64
	Provider      string
	SyncType      string // initial, delta
	Added         int
	Deleted       int
	LabelsChanged int
	DurationMs    int64
	Success       bool
	Error         string
	SyncedAt      time.Time
}

// SearchFilter composes structured predicates for EmailStore.Search; all
// non-zero fields are ANDed together.
type SearchFilter struct {
	AccountID          int64
	FromPrefix         string
	SubjectContains    string
	HasAttachments     *bool
	FlagsAll           []string
	LabelsAll          []string
	ThreadID           string
	DateFrom           *time.Time
	DateTo             *time.Time
	Query              string // free-text, intersected via FTS
	Limit              int
	Offset             int
}

// SearchResult is a page of results with pagination metadata.
type SearchResult[T any] struct {
	Items   []T
	Total   int
	HasMore bool
}
