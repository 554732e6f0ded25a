package facade

import (
	"time"

	"github.com/intentmail/intentmail/internal/store"
)

// AccountView is the façade's external representation of an account,
// omitting secrets (tokens, encrypted password column).
type AccountView struct {
	ID          int64      `json:"id"`
	Provider    string     `json:"provider"`
	Email       string     `json:"email"`
	DisplayName string     `json:"displayName"`
	AuthType    string     `json:"authType"`
	IsActive    bool       `json:"isActive"`
	LastSyncAt  *time.Time `json:"lastSyncAt,omitempty"`
}

func accountView(a *store.Account) AccountView {
	return AccountView{
		ID:          a.ID,
		Provider:    a.Provider,
		Email:       a.Email,
		DisplayName: a.DisplayName,
		AuthType:    a.AuthType,
		IsActive:    a.IsActive,
		LastSyncAt:  a.LastSyncAt,
	}
}

// EmailSummary is the list/search row shape: no body, just enough to
// render a message list.
type EmailSummary struct {
	ID             int64      `json:"id"`
	AccountID      int64      `json:"accountId"`
	ThreadID       string     `json:"threadId"`
	FromAddress    string     `json:"fromAddress"`
	FromName       string     `json:"fromName"`
	Subject        string     `json:"subject"`
	Snippet        string     `json:"snippet"`
	Date           *time.Time `json:"date,omitempty"`
	Flags          []string   `json:"flags"`
	Labels         []string   `json:"labels"`
	HasAttachments bool       `json:"hasAttachments"`
}

func emailSummary(e *store.Email) EmailSummary {
	return EmailSummary{
		ID:             e.ID,
		AccountID:      e.AccountID,
		ThreadID:       e.ThreadID,
		FromAddress:    e.FromAddress,
		FromName:       e.FromName,
		Subject:        e.Subject,
		Snippet:        e.Snippet,
		Date:           e.Date,
		Flags:          e.Flags,
		Labels:         e.Labels,
		HasAttachments: e.HasAttachments,
	}
}

// EmailView is the full single-message shape, used for thread reads.
type EmailView struct {
	EmailSummary
	To, CC, BCC []string `json:"to,omitempty"`
	BodyText    string   `json:"bodyText,omitempty"`
	BodyHTML    string   `json:"bodyHtml,omitempty"`
	InReplyTo   string   `json:"inReplyTo,omitempty"`
}

func emailView(e *store.Email) EmailView {
	return EmailView{
		EmailSummary: emailSummary(e),
		To:           e.To,
		CC:           e.CC,
		BCC:          e.BCC,
		BodyText:     e.BodyText,
		BodyHTML:     e.BodyHTML,
		InReplyTo:    e.InReplyTo,
	}
}

// AttachmentView is the metadata shape returned by listAttachments.
type AttachmentView struct {
	ID        int64  `json:"id"`
	EmailID   int64  `json:"emailId"`
	Filename  string `json:"filename"`
	MimeType  string `json:"mimeType"`
	SizeBytes int64  `json:"sizeBytes"`
	Cached    bool   `json:"cached"`
}

func attachmentView(a *store.Attachment) AttachmentView {
	return AttachmentView{
		ID:        a.ID,
		EmailID:   a.EmailID,
		Filename:  a.Filename,
		MimeType:  a.MimeType,
		SizeBytes: a.SizeBytes,
		Cached:    a.LocalPath != "",
	}
}

// RuleView is the external shape of a stored rule.
type RuleView struct {
	ID         int64            `json:"id"`
	AccountID  int64            `json:"accountId"`
	Name       string           `json:"name"`
	Trigger    string           `json:"trigger"`
	Conditions []store.Condition `json:"conditions"`
	Actions    []store.Action    `json:"actions"`
	IsActive   bool             `json:"isActive"`
}

func ruleView(r *store.Rule) RuleView {
	return RuleView{
		ID:         r.ID,
		AccountID:  r.AccountID,
		Name:       r.Name,
		Trigger:    r.Trigger,
		Conditions: r.Conditions,
		Actions:    r.Actions,
		IsActive:   r.IsActive,
	}
}

// AuditEntryView is the external shape of one audit log row.
type AuditEntryView struct {
	ID             int64     `json:"id"`
	RuleID         int64     `json:"ruleId"`
	EmailID        int64     `json:"emailId"`
	Matched        bool      `json:"matched"`
	AppliedActions []string  `json:"appliedActions"`
	DryRun         bool      `json:"dryRun"`
	ExecutedAt     time.Time `json:"executedAt"`
	Error          string    `json:"error,omitempty"`
	RolledBack     bool      `json:"rolledBack"`
}

func auditEntryView(e *store.AuditLogEntry) AuditEntryView {
	return AuditEntryView{
		ID:             e.ID,
		RuleID:         e.RuleID,
		EmailID:        e.EmailID,
		Matched:        e.Matched,
		AppliedActions: e.AppliedActions,
		DryRun:         e.DryRun,
		ExecutedAt:     e.ExecutedAt,
		Error:          e.Error,
		RolledBack:     e.RolledBack,
	}
}

// SyncMetricView is the external shape of one sync run's metrics.
type SyncMetricView struct {
	ID            int64     `json:"id"`
	AccountID     int64     `json:"accountId"`
	Provider      string    `json:"provider"`
	SyncType      string    `json:"syncType"`
	Added         int       `json:"added"`
	Deleted       int       `json:"deleted"`
	LabelsChanged int       `json:"labelsChanged"`
	DurationMs    int64     `json:"durationMs"`
	Success       bool      `json:"success"`
	Error         string    `json:"error,omitempty"`
	SyncedAt      time.Time `json:"syncedAt"`
}

func syncMetricView(m *store.SyncMetric) SyncMetricView {
	return SyncMetricView{
		ID:            m.ID,
		AccountID:     m.AccountID,
		Provider:      m.Provider,
		SyncType:      m.SyncType,
		Added:         m.Added,
		Deleted:       m.Deleted,
		LabelsChanged: m.LabelsChanged,
		DurationMs:    m.DurationMs,
		Success:       m.Success,
		Error:         m.Error,
		SyncedAt:      m.SyncedAt,
	}
}
