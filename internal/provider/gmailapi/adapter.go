package gmailapi

import (
	"context"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/intentmail/intentmail/internal/apperrors"
	"github.com/intentmail/intentmail/internal/mail"
	"github.com/intentmail/intentmail/internal/provider"
)

func init() {
	provider.Register("gmail", New)
}

// Adapter implements provider.Provider over the Gmail REST v1 API.
type Adapter struct{}

// New constructs the Gmail adapter. Registered under tag "gmail".
func New() provider.Provider { return &Adapter{} }

func (a *Adapter) UserProfile(ctx context.Context, creds provider.Credentials) (provider.Profile, *provider.RefreshedTokens, error) {
	c, err := newClient(ctx, creds)
	if err != nil {
		return provider.Profile{}, nil, wrapAuthErr(err)
	}
	var profile gmailProfileResponse
	if err := c.get("/profile", &profile); err != nil {
		return provider.Profile{}, c.refreshed, translateErr(err)
	}
	return provider.Profile{Email: profile.EmailAddress}, c.refreshed, nil
}

func (a *Adapter) ListMessages(ctx context.Context, creds provider.Credentials, cursor string, maxResults int) (provider.ListPage, *provider.RefreshedTokens, error) {
	if maxResults <= 0 || maxResults > 500 {
		maxResults = 100
	}

	c, err := newClient(ctx, creds)
	if err != nil {
		return provider.ListPage{}, nil, wrapAuthErr(err)
	}

	path := fmt.Sprintf("/messages?maxResults=%d", maxResults)
	if cursor != "" {
		path += "&pageToken=" + cursor
	}

	var listResp gmailMessageListResponse
	if err := c.get(path, &listResp); err != nil {
		return provider.ListPage{}, c.refreshed, translateErr(err)
	}

	envelopes := make([]provider.Envelope, 0, len(listResp.Messages))
	for _, ref := range listResp.Messages {
		var msg gmailMessage
		metaPath := fmt.Sprintf("/messages/%s?format=metadata&metadataHeaders=Subject", ref.ID)
		if err := c.get(metaPath, &msg); err != nil {
			continue
		}
		_, labels := folderTypeForLabels(msg.LabelIDs)
		envelopes = append(envelopes, provider.Envelope{
			ProviderMessageID: msg.ID,
			ThreadID:          msg.ThreadID,
			Snippet:           msg.Snippet,
			Labels:            labels,
			Date:              parseInternalDate(msg.InternalDate),
		})
	}

	return provider.ListPage{Envelopes: envelopes, NextCursor: listResp.NextPageToken}, c.refreshed, nil
}

func parseInternalDate(ms string) time.Time {
	n, err := strconv.ParseInt(ms, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(n).UTC()
}

func (a *Adapter) GetMessage(ctx context.Context, creds provider.Credentials, providerMessageID string) (provider.Message, *provider.RefreshedTokens, error) {
	c, err := newClient(ctx, creds)
	if err != nil {
		return provider.Message{}, nil, wrapAuthErr(err)
	}

	var msg gmailMessage
	path := fmt.Sprintf("/messages/%s?format=full", providerMessageID)
	if err := c.get(path, &msg); err != nil {
		return provider.Message{}, c.refreshed, translateErr(err)
	}

	folderType, labels := folderTypeForLabels(msg.LabelIDs)
	headers := msg.Payload.Headers
	bodyText, bodyHTML, attachments := bodyTextAndHTML(msg.Payload)

	out := provider.Message{
		ProviderMessageID: msg.ID,
		ThreadID:          msg.ThreadID,
		FromAddress:       headerValue(headers, "From"),
		Subject:           headerValue(headers, "Subject"),
		BodyText:          bodyText,
		BodyHTML:          bodyHTML,
		Date:              parseInternalDate(msg.InternalDate),
		Flags:             flagsFromLabels(msg.LabelIDs),
		Labels:            append(labels, folderType),
		InReplyTo:         headerValue(headers, "In-Reply-To"),
		SizeBytes:         msg.SizeEstimate,
		Attachments:       attachments,
	}
	if to := headerValue(headers, "To"); to != "" {
		out.To = splitAddressList(to)
	}
	if cc := headerValue(headers, "Cc"); cc != "" {
		out.CC = splitAddressList(cc)
	}
	if refs := headerValue(headers, "References"); refs != "" {
		out.References = strings.Fields(refs)
	}
	return out, c.refreshed, nil
}

func splitAddressList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func flagsFromLabels(labelIDs []string) []string {
	var flags []string
	hasUnread := false
	for _, id := range labelIDs {
		switch id {
		case "UNREAD":
			hasUnread = true
		case "STARRED":
			flags = append(flags, "\\Flagged")
		}
	}
	if !hasUnread {
		flags = append(flags, "\\Seen")
	}
	return flags
}

func (a *Adapter) BatchGetMessages(ctx context.Context, creds provider.Credentials, ids []string) ([]provider.Message, *provider.RefreshedTokens, error) {
	out := make([]provider.Message, 0, len(ids))
	var refreshed *provider.RefreshedTokens
	for _, id := range ids {
		msg, r, err := a.GetMessage(ctx, creds, id)
		if r != nil {
			refreshed = r
		}
		if err != nil {
			if apperrors.Is(err, apperrors.KindNotFound) {
				continue
			}
			return out, refreshed, err
		}
		out = append(out, msg)
	}
	return out, refreshed, nil
}

func (a *Adapter) ListDelta(ctx context.Context, creds provider.Credentials, cursor string) (provider.DeltaResult, *provider.RefreshedTokens, error) {
	c, err := newClient(ctx, creds)
	if err != nil {
		return provider.DeltaResult{}, nil, wrapAuthErr(err)
	}

	if cursor == "" {
		var profile gmailProfileResponse
		if err := c.get("/profile", &profile); err != nil {
			return provider.DeltaResult{}, c.refreshed, translateErr(err)
		}
		return provider.DeltaResult{NewCursor: profile.HistoryID}, c.refreshed, nil
	}

	result := provider.DeltaResult{NewCursor: cursor}
	pageToken := ""
	for {
		path := fmt.Sprintf("/history?startHistoryId=%s&historyTypes=messageAdded&historyTypes=messageDeleted&historyTypes=labelAdded&historyTypes=labelRemoved", cursor)
		if pageToken != "" {
			path += "&pageToken=" + pageToken
		}

		var resp gmailHistoryResponse
		if err := c.get(path, &resp); err != nil {
			if apiErr, ok := asAPIError(err); ok && apiErr.status == 404 {
				// historyId too old (expired); caller must fall back to a full resync.
				return provider.DeltaResult{}, c.refreshed, apperrors.New(apperrors.KindPermanent, "gmailapi: historyId expired, full resync required")
			}
			return provider.DeltaResult{}, c.refreshed, translateErr(err)
		}

		for _, rec := range resp.History {
			for _, ref := range rec.MessagesAdded {
				result.Additions = append(result.Additions, ref.Message.ID)
			}
			for _, ref := range rec.MessagesDeleted {
				result.Deletions = append(result.Deletions, ref.Message.ID)
			}
			for _, ref := range rec.LabelsAdded {
				result.LabelChanges = append(result.LabelChanges, ref.Message.ID)
			}
			for _, ref := range rec.LabelsRemoved {
				result.LabelChanges = append(result.LabelChanges, ref.Message.ID)
			}
		}
		if resp.HistoryID != "" {
			result.NewCursor = resp.HistoryID
		}
		if resp.NextPageToken == "" {
			break
		}
		pageToken = resp.NextPageToken
	}

	return result, c.refreshed, nil
}

func asAPIError(err error) (apiError, bool) {
	apiErr, ok := err.(apiError)
	return apiErr, ok
}

func (a *Adapter) SendMessage(ctx context.Context, creds provider.Credentials, msg provider.OutgoingMessage) (provider.SendResult, *provider.RefreshedTokens, error) {
	c, err := newClient(ctx, creds)
	if err != nil {
		return provider.SendResult{}, nil, wrapAuthErr(err)
	}

	raw, err := mail.ComposeRFC822(msg)
	if err != nil {
		return provider.SendResult{}, c.refreshed, fmt.Errorf("gmailapi: compose: %w", err)
	}

	encoded := base64.URLEncoding.WithPadding(base64.NoPadding).EncodeToString(raw)
	var resp gmailMessageRef
	if err := c.post("/messages/send", gmailSendRequest{Raw: encoded}, &resp); err != nil {
		return provider.SendResult{}, c.refreshed, translateErr(err)
	}

	return provider.SendResult{ProviderMessageID: resp.ID, ThreadID: resp.ThreadID}, c.refreshed, nil
}

func (a *Adapter) ModifyLabels(ctx context.Context, creds provider.Credentials, providerMessageID string, add, remove []string) (*provider.RefreshedTokens, error) {
	c, err := newClient(ctx, creds)
	if err != nil {
		return nil, wrapAuthErr(err)
	}
	path := fmt.Sprintf("/messages/%s/modify", providerMessageID)
	body := gmailModifyRequest{AddLabelIDs: add, RemoveLabelIDs: remove}
	if err := c.post(path, body, nil); err != nil {
		return c.refreshed, translateErr(err)
	}
	return c.refreshed, nil
}

func (a *Adapter) Trash(ctx context.Context, creds provider.Credentials, providerMessageID string) (*provider.RefreshedTokens, error) {
	c, err := newClient(ctx, creds)
	if err != nil {
		return nil, wrapAuthErr(err)
	}
	path := fmt.Sprintf("/messages/%s/trash", providerMessageID)
	if err := c.post(path, nil, nil); err != nil {
		return c.refreshed, translateErr(err)
	}
	return c.refreshed, nil
}

func (a *Adapter) Untrash(ctx context.Context, creds provider.Credentials, providerMessageID string) (*provider.RefreshedTokens, error) {
	c, err := newClient(ctx, creds)
	if err != nil {
		return nil, wrapAuthErr(err)
	}
	path := fmt.Sprintf("/messages/%s/untrash", providerMessageID)
	if err := c.post(path, nil, nil); err != nil {
		return c.refreshed, translateErr(err)
	}
	return c.refreshed, nil
}

func (a *Adapter) Delete(ctx context.Context, creds provider.Credentials, providerMessageID string) (*provider.RefreshedTokens, error) {
	c, err := newClient(ctx, creds)
	if err != nil {
		return nil, wrapAuthErr(err)
	}
	if err := c.delete(fmt.Sprintf("/messages/%s", providerMessageID)); err != nil {
		return c.refreshed, translateErr(err)
	}
	return c.refreshed, nil
}

func (a *Adapter) GetAttachment(ctx context.Context, creds provider.Credentials, providerMessageID, attachmentID string) (provider.AttachmentContent, *provider.RefreshedTokens, error) {
	ref, err := decodeAttachmentRef(attachmentID)
	if err != nil {
		return provider.AttachmentContent{}, nil, apperrors.New(apperrors.KindValidationError, err.Error())
	}

	c, err := newClient(ctx, creds)
	if err != nil {
		return provider.AttachmentContent{}, nil, wrapAuthErr(err)
	}

	var body gmailMessagePartBody
	path := fmt.Sprintf("/messages/%s/attachments/%s", providerMessageID, ref.AttachmentID)
	if err := c.get(path, &body); err != nil {
		return provider.AttachmentContent{}, c.refreshed, translateErr(err)
	}

	decoded, decodeErr := base64.URLEncoding.WithPadding(base64.NoPadding).DecodeString(body.Data)
	if decodeErr != nil {
		return provider.AttachmentContent{}, c.refreshed, fmt.Errorf("gmailapi: decode attachment: %w", decodeErr)
	}

	return provider.AttachmentContent{
		Base64: base64.StdEncoding.EncodeToString(decoded),
		Size:   body.Size,
	}, c.refreshed, nil
}

func (a *Adapter) ListFolders(ctx context.Context, creds provider.Credentials) ([]provider.Folder, *provider.RefreshedTokens, error) {
	c, err := newClient(ctx, creds)
	if err != nil {
		return nil, nil, wrapAuthErr(err)
	}

	var resp gmailLabelListResponse
	if err := c.get("/labels", &resp); err != nil {
		return nil, c.refreshed, translateErr(err)
	}

	out := make([]provider.Folder, 0, len(resp.Labels))
	for _, l := range resp.Labels {
		folderType, _ := folderTypeForLabels([]string{l.ID})
		out = append(out, provider.Folder{
			Name:        l.Name,
			Path:        l.ID,
			Type:        folderType,
			TotalCount:  l.MessagesTotal,
			UnreadCount: l.MessagesUnread,
		})
	}
	return out, c.refreshed, nil
}

func wrapAuthErr(err error) error {
	return apperrors.Wrap(apperrors.KindAuthFailed, "gmailapi: authenticate", err)
}

func translateErr(err error) error {
	if apiErr, ok := asAPIError(err); ok {
		switch {
		case apiErr.status == 404:
			return apperrors.NotFound(apiErr.Error())
		case apiErr.status == 401:
			return apperrors.AuthFailed(apiErr.Error())
		case apiErr.RateLimited():
			return apperrors.RateLimited(apiErr.Error())
		case apiErr.status >= 500:
			return apperrors.Transient("gmailapi: server error", apiErr)
		}
	}
	return err
}
