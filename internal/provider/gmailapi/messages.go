package gmailapi

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"github.com/intentmail/intentmail/internal/mail"
	"github.com/intentmail/intentmail/internal/provider"
)

// gmailFolderTypes maps the Gmail system labels onto
// provider.Folder's Type enum; every other labelId is a user label and
// surfaces as a custom folder/tag instead.
var gmailFolderTypes = map[string]string{
	"INBOX":  "inbox",
	"SENT":   "sent",
	"DRAFT":  "drafts",
	"TRASH":  "trash",
	"SPAM":   "spam",
}

type gmailLabel struct {
	ID                    string `json:"id"`
	Name                  string `json:"name"`
	Type                  string `json:"type"`
	MessagesTotal         int    `json:"messagesTotal"`
	MessagesUnread        int    `json:"messagesUnread"`
}

type gmailLabelListResponse struct {
	Labels []gmailLabel `json:"labels"`
}

type gmailMessageListResponse struct {
	Messages           []gmailMessageRef `json:"messages"`
	NextPageToken      string            `json:"nextPageToken"`
	ResultSizeEstimate int               `json:"resultSizeEstimate"`
}

type gmailMessageRef struct {
	ID       string `json:"id"`
	ThreadID string `json:"threadId"`
}

type gmailHeader struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type gmailMessagePart struct {
	PartID   string             `json:"partId"`
	MimeType string             `json:"mimeType"`
	Filename string             `json:"filename"`
	Headers  []gmailHeader      `json:"headers"`
	Body     gmailMessagePartBody `json:"body"`
	Parts    []gmailMessagePart `json:"parts"`
}

type gmailMessagePartBody struct {
	AttachmentID string `json:"attachmentId"`
	Size         int64  `json:"size"`
	Data         string `json:"data"` // base64url
}

type gmailMessage struct {
	ID           string           `json:"id"`
	ThreadID     string           `json:"threadId"`
	LabelIDs     []string         `json:"labelIds"`
	Snippet      string           `json:"snippet"`
	SizeEstimate int64            `json:"sizeEstimate"`
	Payload      gmailMessagePart `json:"payload"`
	Raw          string           `json:"raw"`
	InternalDate string           `json:"internalDate"`
}

type gmailSendRequest struct {
	Raw string `json:"raw"`
}

type gmailModifyRequest struct {
	AddLabelIDs    []string `json:"addLabelIds,omitempty"`
	RemoveLabelIDs []string `json:"removeLabelIds,omitempty"`
}

type gmailHistoryResponse struct {
	History        []gmailHistoryRecord `json:"history"`
	NextPageToken  string               `json:"nextPageToken"`
	HistoryID      string               `json:"historyId"`
}

type gmailHistoryRecord struct {
	ID              string            `json:"id"`
	MessagesAdded   []gmailHistoryRef `json:"messagesAdded"`
	MessagesDeleted []gmailHistoryRef `json:"messagesDeleted"`
	LabelsAdded     []gmailHistoryRef `json:"labelsAdded"`
	LabelsRemoved   []gmailHistoryRef `json:"labelsRemoved"`
}

type gmailHistoryRef struct {
	Message gmailMessageRef `json:"message"`
}

type gmailProfileResponse struct {
	EmailAddress  string `json:"emailAddress"`
	HistoryID     string `json:"historyId"`
	MessagesTotal int    `json:"messagesTotal"`
}

// headerValue returns the value of the first header named name
// (case-insensitive), matching RFC 5322's one-value-wins convention for
// singleton headers like Subject/Date.
func headerValue(headers []gmailHeader, name string) string {
	for _, h := range headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

func folderTypeForLabels(labelIDs []string) (folderType string, labels []string) {
	labels = append(labels, labelIDs...)
	for _, id := range labelIDs {
		if t, ok := gmailFolderTypes[id]; ok {
			folderType = t
		}
	}
	if folderType == "" {
		folderType = "custom"
	}
	return folderType, labels
}

// attachmentRef packs the Gmail partId/attachmentId pair needed for a
// later attachments.get call into the opaque ProviderAttachmentID.
type attachmentRef struct {
	PartID       string
	AttachmentID string
}

func (r attachmentRef) encode(seq string) string {
	return fmt.Sprintf("%s|%s|%s", seq, r.PartID, r.AttachmentID)
}

func decodeAttachmentRef(s string) (attachmentRef, error) {
	parts := strings.SplitN(s, "|", 3)
	if len(parts) != 3 {
		return attachmentRef{}, fmt.Errorf("gmailapi: malformed attachment ref %q", s)
	}
	return attachmentRef{PartID: parts[1], AttachmentID: parts[2]}, nil
}

func bodyTextAndHTML(payload gmailMessagePart) (text, html string, attachments []provider.MessagePart) {
	idx := 0
	flatten(payload, &text, &html, &attachments, &idx)
	return text, html, attachments
}

func flatten(part gmailMessagePart, text, html *string, attachments *[]provider.MessagePart, idx *int) {
	if len(part.Parts) == 0 {
		switch part.MimeType {
		case "text/plain":
			if part.Body.Data != "" && *text == "" {
				decoded, _ := base64.URLEncoding.WithPadding(base64.NoPadding).DecodeString(part.Body.Data)
				*text = string(decoded)
			}
		case "text/html":
			if part.Body.Data != "" && *html == "" {
				decoded, _ := base64.URLEncoding.WithPadding(base64.NoPadding).DecodeString(part.Body.Data)
				*html = mail.SanitizeHTML(string(decoded))
			}
		default:
			if part.Filename != "" {
				seq := strconv.Itoa(*idx)
				*idx++
				*attachments = append(*attachments, provider.MessagePart{
					MimeType:             part.MimeType,
					Filename:             part.Filename,
					ProviderAttachmentID: attachmentRef{PartID: part.PartID, AttachmentID: part.Body.AttachmentID}.encode(seq),
					SizeBytes:            part.Body.Size,
					IsAttachment:         true,
				})
			}
		}
		return
	}
	for _, child := range part.Parts {
		flatten(child, text, html, attachments, idx)
	}
}
