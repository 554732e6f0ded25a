package facade

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/intentmail/intentmail/internal/apperrors"
	"github.com/intentmail/intentmail/internal/provider"
	"github.com/intentmail/intentmail/internal/search"
	"github.com/intentmail/intentmail/internal/store"
)

// SearchRequest mirrors search.Query one-for-one so it can be decoded
// straight from an external driver's JSON payload.
type SearchRequest struct {
	AccountID       int64    `json:"accountId"`
	FromPrefix      string   `json:"fromPrefix"`
	SubjectContains string   `json:"subjectContains"`
	HasAttachments  *bool    `json:"hasAttachments"`
	FlagsAll        []string `json:"flagsAll"`
	LabelsAll       []string `json:"labelsAll"`
	ThreadID        string   `json:"threadId"`
	DateFrom        *int64   `json:"dateFrom"`
	DateTo          *int64   `json:"dateTo"`
	Query           string   `json:"query"`
	Limit           int      `json:"limit"`
	Offset          int      `json:"offset"`
}

// SearchResponse is search's output: a page of matching emails.
type SearchResponse struct {
	Result
	Emails  []EmailSummary `json:"emails,omitempty"`
	Total   int            `json:"total"`
	HasMore bool           `json:"hasMore"`
}

// Search runs a structured+free-text search over the mailbox.
// AccountID of 0 searches the unified inbox across every account.
func (f *Facade) Search(req SearchRequest) SearchResponse {
	res, err := f.searchSvc.Search(search.Query{
		AccountID:       req.AccountID,
		FromPrefix:      req.FromPrefix,
		SubjectContains: req.SubjectContains,
		HasAttachments:  req.HasAttachments,
		FlagsAll:        req.FlagsAll,
		LabelsAll:       req.LabelsAll,
		ThreadID:        req.ThreadID,
		DateFrom:        req.DateFrom,
		DateTo:          req.DateTo,
		Text:            req.Query,
		Limit:           req.Limit,
		Offset:          req.Offset,
	})
	if err != nil {
		return SearchResponse{Result: fail(err)}
	}
	emails := make([]EmailSummary, 0, len(res.Items))
	for _, e := range res.Items {
		emails = append(emails, emailSummary(e))
	}
	return SearchResponse{Result: ok(""), Emails: emails, Total: res.Total, HasMore: res.HasMore}
}

// GetThreadRequest identifies one thread within one account.
type GetThreadRequest struct {
	AccountID int64  `json:"accountId"`
	ThreadID  string `json:"threadId"`
}

// GetThreadResponse is every message in the thread, oldest first (the
// store's date-desc ordering is reversed here for thread reading).
type GetThreadResponse struct {
	Result
	Emails []EmailView `json:"emails,omitempty"`
}

// GetThread returns every message sharing req.ThreadID for the account.
func (f *Facade) GetThread(req GetThreadRequest) GetThreadResponse {
	q := search.Query{AccountID: req.AccountID, ThreadID: req.ThreadID, Limit: 500}
	res, err := f.searchSvc.Search(q)
	if err != nil {
		return GetThreadResponse{Result: fail(err)}
	}
	items := res.Items
	for res.HasMore && len(res.Items) > 0 {
		q.Offset = len(items)
		if res, err = f.searchSvc.Search(q); err != nil {
			return GetThreadResponse{Result: fail(err)}
		}
		items = append(items, res.Items...)
	}
	views := make([]EmailView, len(items))
	for i, e := range items {
		views[len(items)-1-i] = emailView(e)
	}
	return GetThreadResponse{Result: ok(""), Emails: views}
}

// SendRequest composes an outgoing message from accountId.
type SendRequest struct {
	AccountID   int64                      `json:"accountId"`
	To, CC, BCC []string                   `json:"to,omitempty"`
	Subject     string                     `json:"subject"`
	BodyText    string                     `json:"bodyText"`
	BodyHTML    string                     `json:"bodyHtml,omitempty"`
	InReplyTo   string                     `json:"inReplyTo,omitempty"`
	References  []string                   `json:"references,omitempty"`
	Attachments []OutgoingAttachmentRequest `json:"attachments,omitempty"`
}

// OutgoingAttachmentRequest is one file to attach, base64-encoded.
type OutgoingAttachmentRequest struct {
	Filename      string `json:"filename"`
	MimeType      string `json:"mimeType"`
	ContentBase64 string `json:"contentBase64"`
}

// SendResponse reports the provider-assigned message id of the sent mail.
type SendResponse struct {
	Result
	ProviderMessageID string `json:"providerMessageId,omitempty"`
}

// Send composes and sends req through accountId's provider.
func (f *Facade) Send(ctx context.Context, req SendRequest) SendResponse {
	if len(req.To) == 0 {
		return SendResponse{Result: fail(apperrors.New(apperrors.KindValidationError, "facade: send requires at least one recipient"))}
	}

	account, err := f.accounts.Get(req.AccountID)
	if err != nil {
		return SendResponse{Result: fail(err)}
	}
	adapter, err := providerFor(account)
	if err != nil {
		return SendResponse{Result: fail(err)}
	}

	attachments := make([]provider.OutgoingAttachment, 0, len(req.Attachments))
	for _, a := range req.Attachments {
		content, decodeErr := decodeBase64(a.ContentBase64)
		if decodeErr != nil {
			return SendResponse{Result: fail(decodeErr)}
		}
		attachments = append(attachments, provider.OutgoingAttachment{Filename: a.Filename, MimeType: a.MimeType, Content: content})
	}

	creds := credentialsForAccount(account, f.creds)
	result, refreshed, err := adapter.SendMessage(ctx, creds, provider.OutgoingMessage{
		From:        account.Email,
		To:          req.To,
		CC:          req.CC,
		BCC:         req.BCC,
		Subject:     req.Subject,
		TextBody:    req.BodyText,
		HTMLBody:    req.BodyHTML,
		InReplyTo:   req.InReplyTo,
		References:  req.References,
		Attachments: attachments,
	})
	persistRefresh(f.accounts, account, refreshed)
	if err != nil {
		return SendResponse{Result: fail(err)}
	}
	return SendResponse{Result: ok(""), ProviderMessageID: result.ProviderMessageID}
}

// ApplyLabelRequest adds and/or removes labels on one stored email.
type ApplyLabelRequest struct {
	EmailID      int64    `json:"emailId"`
	AddLabels    []string `json:"addLabels,omitempty"`
	RemoveLabels []string `json:"removeLabels,omitempty"`
}

// ApplyLabelResponse is the email's resulting label set.
type ApplyLabelResponse struct {
	Result
	Email EmailView `json:"email,omitempty"`
}

// ApplyLabel mutates one email's labels directly, independent of the
// rules engine (which has its own label-mutation path for rule-driven
// changes that need an audit trail).
func (f *Facade) ApplyLabel(req ApplyLabelRequest) ApplyLabelResponse {
	var (
		email *store.Email
		err   error
	)
	if len(req.AddLabels) > 0 {
		if email, err = f.emails.AddLabels(req.EmailID, req.AddLabels); err != nil {
			return ApplyLabelResponse{Result: fail(err)}
		}
	}
	if len(req.RemoveLabels) > 0 {
		if email, err = f.emails.RemoveLabels(req.EmailID, req.RemoveLabels); err != nil {
			return ApplyLabelResponse{Result: fail(err)}
		}
	}
	if email == nil {
		if email, err = f.emails.Get(req.EmailID); err != nil {
			return ApplyLabelResponse{Result: fail(err)}
		}
	}
	return ApplyLabelResponse{Result: ok(""), Email: emailView(email)}
}

// ListFoldersRequest identifies the account whose folders to list.
type ListFoldersRequest struct {
	AccountID int64 `json:"accountId"`
}

// ListFoldersResponse is the account's folder/label list.
type ListFoldersResponse struct {
	Result
	Folders []provider.Folder `json:"folders,omitempty"`
}

// ListFolders returns accountId's folders (or labels, for Gmail).
func (f *Facade) ListFolders(ctx context.Context, req ListFoldersRequest) ListFoldersResponse {
	account, err := f.accounts.Get(req.AccountID)
	if err != nil {
		return ListFoldersResponse{Result: fail(err)}
	}
	adapter, err := providerFor(account)
	if err != nil {
		return ListFoldersResponse{Result: fail(err)}
	}
	creds := credentialsForAccount(account, f.creds)
	folders, refreshed, err := adapter.ListFolders(ctx, creds)
	persistRefresh(f.accounts, account, refreshed)
	if err != nil {
		return ListFoldersResponse{Result: fail(err)}
	}
	return ListFoldersResponse{Result: ok(""), Folders: folders}
}

// ListAttachmentsRequest identifies the email whose attachments to list.
type ListAttachmentsRequest struct {
	EmailID int64 `json:"emailId"`
}

// ListAttachmentsResponse is the email's attachment metadata.
type ListAttachmentsResponse struct {
	Result
	Attachments []AttachmentView `json:"attachments,omitempty"`
}

// ListAttachments returns metadata for every attachment on emailId.
func (f *Facade) ListAttachments(req ListAttachmentsRequest) ListAttachmentsResponse {
	list, err := f.attachments.ListForEmail(req.EmailID)
	if err != nil {
		return ListAttachmentsResponse{Result: fail(err)}
	}
	views := make([]AttachmentView, 0, len(list))
	for _, a := range list {
		views = append(views, attachmentView(a))
	}
	return ListAttachmentsResponse{Result: ok(""), Attachments: views}
}

// GetAttachmentRequest identifies one attachment to fetch.
type GetAttachmentRequest struct {
	AttachmentID int64 `json:"attachmentId"`
}

// GetAttachmentResponse carries the attachment's base64 content, served
// from the on-disk cache when present and fetched from the provider
// (and cached) otherwise.
type GetAttachmentResponse struct {
	Result
	ContentBase64 string `json:"contentBase64,omitempty"`
	MimeType      string `json:"mimeType,omitempty"`
	Filename      string `json:"filename,omitempty"`
}

// GetAttachment returns attachmentId's content.
func (f *Facade) GetAttachment(ctx context.Context, req GetAttachmentRequest) GetAttachmentResponse {
	att, err := f.attachments.Get(req.AttachmentID)
	if err != nil {
		return GetAttachmentResponse{Result: fail(err)}
	}

	if content, err := f.cache.Read(att.ID); err == nil {
		return GetAttachmentResponse{Result: ok(""), ContentBase64: content, MimeType: att.MimeType, Filename: att.Filename}
	} else if !apperrors.Is(err, apperrors.KindNotFound) {
		return GetAttachmentResponse{Result: fail(err)}
	}

	email, err := f.emails.Get(att.EmailID)
	if err != nil {
		return GetAttachmentResponse{Result: fail(err)}
	}
	account, err := f.accounts.Get(email.AccountID)
	if err != nil {
		return GetAttachmentResponse{Result: fail(err)}
	}
	adapter, err := providerFor(account)
	if err != nil {
		return GetAttachmentResponse{Result: fail(err)}
	}

	creds := credentialsForAccount(account, f.creds)
	content, refreshed, err := adapter.GetAttachment(ctx, creds, email.ProviderMessageID, att.ProviderAttachmentID)
	persistRefresh(f.accounts, account, refreshed)
	if err != nil {
		return GetAttachmentResponse{Result: fail(err)}
	}

	if err := f.cache.Cache(att.ID, content.Base64); err != nil {
		f.log.Warn().Err(err).Int64("attachment", att.ID).Msg("failed to cache fetched attachment")
	}

	return GetAttachmentResponse{Result: ok(""), ContentBase64: content.Base64, MimeType: att.MimeType, Filename: att.Filename}
}

func decodeBase64(s string) ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("facade: decode attachment content: %w", err)
	}
	return b, nil
}
