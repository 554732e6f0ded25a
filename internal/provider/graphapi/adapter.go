package graphapi

import (
	"context"
	"fmt"
	"net/http"

	"github.com/intentmail/intentmail/internal/apperrors"
	"github.com/intentmail/intentmail/internal/provider"
)

func init() {
	provider.Register("outlook", New)
}

// Adapter implements provider.Provider over the Microsoft Graph v1.0 API.
type Adapter struct{}

// New constructs the Graph adapter. Registered under tag "outlook".
func New() provider.Provider { return &Adapter{} }

func (a *Adapter) UserProfile(ctx context.Context, creds provider.Credentials) (provider.Profile, *provider.RefreshedTokens, error) {
	c, err := newClient(ctx, creds)
	if err != nil {
		return provider.Profile{}, nil, wrapAuthErr(err)
	}
	var profile graphProfile
	if err := c.get("", &profile); err != nil {
		return provider.Profile{}, c.refreshed, translateErr(err)
	}
	email := profile.Mail
	if email == "" {
		email = profile.UserPrincipalName
	}
	return provider.Profile{Email: email, DisplayName: profile.DisplayName}, c.refreshed, nil
}

func (a *Adapter) ListMessages(ctx context.Context, creds provider.Credentials, cursor string, maxResults int) (provider.ListPage, *provider.RefreshedTokens, error) {
	if maxResults <= 0 || maxResults > 500 {
		maxResults = 100
	}

	c, err := newClient(ctx, creds)
	if err != nil {
		return provider.ListPage{}, nil, wrapAuthErr(err)
	}

	var resp graphMessageListResponse
	if cursor != "" {
		if err := c.get(cursor, &resp); err != nil {
			return provider.ListPage{}, c.refreshed, translateErr(err)
		}
	} else {
		path := fmt.Sprintf("/messages?$top=%d&$orderby=receivedDateTime desc", maxResults)
		if err := c.get(path, &resp); err != nil {
			return provider.ListPage{}, c.refreshed, translateErr(err)
		}
	}

	envelopes := make([]provider.Envelope, 0, len(resp.Value))
	for _, msg := range resp.Value {
		envelopes = append(envelopes, provider.Envelope{
			ProviderMessageID: msg.ID,
			ThreadID:          msg.ConversationID,
			Snippet:           msg.BodyPreview,
			Labels:            msg.Categories,
			Date:              msg.ReceivedDateTime,
		})
	}

	return provider.ListPage{Envelopes: envelopes, NextCursor: resp.NextLink}, c.refreshed, nil
}

func (a *Adapter) GetMessage(ctx context.Context, creds provider.Credentials, providerMessageID string) (provider.Message, *provider.RefreshedTokens, error) {
	c, err := newClient(ctx, creds)
	if err != nil {
		return provider.Message{}, nil, wrapAuthErr(err)
	}

	var msg graphMessage
	path := fmt.Sprintf("/messages/%s?$expand=attachments", providerMessageID)
	if err := c.get(path, &msg); err != nil {
		return provider.Message{}, c.refreshed, translateErr(err)
	}

	bodyText, bodyHTML := bodyTextAndHTML(msg.Body)
	out := provider.Message{
		ProviderMessageID: msg.ID,
		ThreadID:          msg.ConversationID,
		FromAddress:       msg.From.EmailAddress.Address,
		FromName:          msg.From.EmailAddress.Name,
		To:                addressList(msg.ToRecipients),
		CC:                addressList(msg.CcRecipients),
		BCC:               addressList(msg.BccRecipients),
		Subject:           msg.Subject,
		BodyText:          bodyText,
		BodyHTML:          bodyHTML,
		Date:              msg.ReceivedDateTime,
		ReceivedAt:        msg.ReceivedDateTime,
		Flags:             flagsFor(msg),
		Labels:            msg.Categories,
		InReplyTo:         messageHeader(msg.InternetMessageHeaders, "In-Reply-To"),
		Attachments:       toMessageParts(msg.Attachments),
	}
	return out, c.refreshed, nil
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

	result := provider.DeltaResult{}
	link := cursor
	if link == "" {
		link = "/messages/delta"
	}

	for {
		var resp graphDeltaResponse
		if err := c.get(link, &resp); err != nil {
			return provider.DeltaResult{}, c.refreshed, translateErr(err)
		}

		for _, msg := range resp.Value {
			if msg.Removed != nil {
				result.Deletions = append(result.Deletions, msg.ID)
				continue
			}
			result.Additions = append(result.Additions, msg.ID)
		}

		if resp.DeltaLink != "" {
			result.NewCursor = resp.DeltaLink
			break
		}
		if resp.NextLink == "" {
			break
		}
		link = resp.NextLink
	}

	return result, c.refreshed, nil
}

func (a *Adapter) SendMessage(ctx context.Context, creds provider.Credentials, msg provider.OutgoingMessage) (provider.SendResult, *provider.RefreshedTokens, error) {
	c, err := newClient(ctx, creds)
	if err != nil {
		return provider.SendResult{}, nil, wrapAuthErr(err)
	}

	contentType := "Text"
	content := msg.TextBody
	if msg.HTMLBody != "" {
		contentType = "HTML"
		content = msg.HTMLBody
	}

	req := sendMailRequest{
		Message: graphOutgoingMessage{
			Subject:       msg.Subject,
			Body:          graphItemBody{ContentType: contentType, Content: content},
			ToRecipients:  toGraphRecipients(msg.To),
			CcRecipients:  toGraphRecipients(msg.CC),
			BccRecipients: toGraphRecipients(msg.BCC),
			Attachments:   toGraphAttachments(msg.Attachments),
		},
		SaveToSentItems: true,
	}

	// sendMail returns 202 Accepted with no body and no message id; Graph
	// only assigns one once the message lands in Sent Items, so the
	// caller must resolve the sent copy via a subsequent listMessages/
	// search rather than from this call's result.
	if err := c.post("/sendMail", req, nil); err != nil {
		return provider.SendResult{}, c.refreshed, translateErr(err)
	}

	return provider.SendResult{}, c.refreshed, nil
}

func toGraphAttachments(atts []provider.OutgoingAttachment) []graphAttachment {
	if len(atts) == 0 {
		return nil
	}
	out := make([]graphAttachment, 0, len(atts))
	for _, a := range atts {
		out = append(out, graphAttachment{
			ODataType:    "#microsoft.graph.fileAttachment",
			Name:         a.Filename,
			ContentType:  a.MimeType,
			ContentBytes: encodeStdBase64(a.Content),
		})
	}
	return out
}

func (a *Adapter) ModifyLabels(ctx context.Context, creds provider.Credentials, providerMessageID string, add, remove []string) (*provider.RefreshedTokens, error) {
	c, err := newClient(ctx, creds)
	if err != nil {
		return nil, wrapAuthErr(err)
	}

	var current graphMessage
	if err := c.get(fmt.Sprintf("/messages/%s?$select=categories", providerMessageID), &current); err != nil {
		return c.refreshed, translateErr(err)
	}

	next := mergeCategories(current.Categories, add, remove)
	path := fmt.Sprintf("/messages/%s", providerMessageID)
	if err := c.do(http.MethodPatch, path, updateCategoriesRequest{Categories: next}, nil); err != nil {
		return c.refreshed, translateErr(err)
	}
	return c.refreshed, nil
}

func mergeCategories(current, add, remove []string) []string {
	removeSet := make(map[string]bool, len(remove))
	for _, r := range remove {
		removeSet[r] = true
	}
	seen := make(map[string]bool, len(current)+len(add))
	var out []string
	for _, c := range current {
		if removeSet[c] || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	for _, a := range add {
		if removeSet[a] || seen[a] {
			continue
		}
		seen[a] = true
		out = append(out, a)
	}
	return out
}

func (a *Adapter) Trash(ctx context.Context, creds provider.Credentials, providerMessageID string) (*provider.RefreshedTokens, error) {
	return a.move(ctx, creds, providerMessageID, "deleteditems")
}

func (a *Adapter) Untrash(ctx context.Context, creds provider.Credentials, providerMessageID string) (*provider.RefreshedTokens, error) {
	return a.move(ctx, creds, providerMessageID, "inbox")
}

func (a *Adapter) move(ctx context.Context, creds provider.Credentials, providerMessageID, destinationID string) (*provider.RefreshedTokens, error) {
	c, err := newClient(ctx, creds)
	if err != nil {
		return nil, wrapAuthErr(err)
	}
	path := fmt.Sprintf("/messages/%s/move", providerMessageID)
	if err := c.post(path, moveRequest{DestinationID: destinationID}, nil); err != nil {
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
	c, err := newClient(ctx, creds)
	if err != nil {
		return provider.AttachmentContent{}, nil, wrapAuthErr(err)
	}

	var att graphAttachment
	path := fmt.Sprintf("/messages/%s/attachments/%s", providerMessageID, attachmentID)
	if err := c.get(path, &att); err != nil {
		return provider.AttachmentContent{}, c.refreshed, translateErr(err)
	}
	if att.ContentBytes == "" {
		return provider.AttachmentContent{}, c.refreshed, attachmentNotFoundErr(attachmentID)
	}

	return provider.AttachmentContent{Base64: att.ContentBytes, Size: att.Size}, c.refreshed, nil
}

func (a *Adapter) ListFolders(ctx context.Context, creds provider.Credentials) ([]provider.Folder, *provider.RefreshedTokens, error) {
	c, err := newClient(ctx, creds)
	if err != nil {
		return nil, nil, wrapAuthErr(err)
	}

	var resp graphFolderListResponse
	if err := c.get("/mailFolders?$top=100", &resp); err != nil {
		return nil, c.refreshed, translateErr(err)
	}

	out := make([]provider.Folder, 0, len(resp.Value))
	for _, f := range resp.Value {
		out = append(out, provider.Folder{
			Name:        f.DisplayName,
			Path:        f.ID,
			Type:        folderTypeFor(f),
			TotalCount:  f.TotalItemCount,
			UnreadCount: f.UnreadItemCount,
		})
	}
	return out, c.refreshed, nil
}

func wrapAuthErr(err error) error {
	return apperrors.Wrap(apperrors.KindAuthFailed, "graphapi: authenticate", err)
}

func translateErr(err error) error {
	if apiErr, ok := err.(apiError); ok {
		switch {
		case apiErr.status == 404:
			return apperrors.NotFound(apiErr.Error())
		case apiErr.status == 401:
			return apperrors.AuthFailed(apiErr.Error())
		case apiErr.RateLimited():
			return apperrors.RateLimited(apiErr.Error())
		case apiErr.status >= 500:
			return apperrors.Transient("graphapi: server error", apiErr)
		}
	}
	return err
}
