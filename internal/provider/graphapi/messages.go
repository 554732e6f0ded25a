package graphapi

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/intentmail/intentmail/internal/mail"
	"github.com/intentmail/intentmail/internal/provider"
)

// graphWellKnownFolders maps a mailFolder's wellKnownName (or, failing
// that, its displayName) onto provider.Folder's Type enum.
var graphWellKnownFolders = map[string]string{
	"inbox":       "inbox",
	"sentitems":   "sent",
	"drafts":      "drafts",
	"deleteditems": "trash",
	"junkemail":   "spam",
	"archive":     "archive",
}

var graphDisplayNameFolders = map[string]string{
	"inbox":           "inbox",
	"sent items":      "sent",
	"drafts":          "drafts",
	"deleted items":   "trash",
	"junk email":      "spam",
	"archive":         "archive",
}

type graphEmailAddress struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

type graphRecipient struct {
	EmailAddress graphEmailAddress `json:"emailAddress"`
}

type graphItemBody struct {
	ContentType string `json:"contentType"` // "text" or "html"
	Content     string `json:"content"`
}

type graphAttachment struct {
	ODataType    string `json:"@odata.type,omitempty"`
	ID           string `json:"id,omitempty"`
	Name         string `json:"name"`
	ContentType  string `json:"contentType"`
	Size         int64  `json:"size,omitempty"`
	IsInline     bool   `json:"isInline,omitempty"`
	ContentID    string `json:"contentId,omitempty"`
	ContentBytes string `json:"contentBytes"` // standard base64, fileAttachment only
}

type graphMessage struct {
	ID                   string            `json:"id"`
	ConversationID       string            `json:"conversationId"`
	Subject              string            `json:"subject"`
	BodyPreview          string            `json:"bodyPreview"`
	Body                 graphItemBody     `json:"body"`
	From                 graphRecipient    `json:"from"`
	ToRecipients         []graphRecipient  `json:"toRecipients"`
	CcRecipients         []graphRecipient  `json:"ccRecipients"`
	BccRecipients        []graphRecipient  `json:"bccRecipients"`
	ReceivedDateTime     time.Time         `json:"receivedDateTime"`
	SentDateTime         time.Time         `json:"sentDateTime"`
	IsRead               bool              `json:"isRead"`
	Flag                 graphFollowupFlag `json:"flag"`
	Categories           []string          `json:"categories"`
	ParentFolderID       string            `json:"parentFolderId"`
	InternetMessageID    string            `json:"internetMessageId"`
	HasAttachments       bool              `json:"hasAttachments"`
	Attachments          []graphAttachment `json:"attachments"`
	InternetMessageHeaders []graphHeader   `json:"internetMessageHeaders"`
	Removed              *graphRemoved    `json:"@removed"`
}

type graphRemoved struct {
	Reason string `json:"reason"`
}

type graphFollowupFlag struct {
	FlagStatus string `json:"flagStatus"`
}

type graphHeader struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type graphMessageListResponse struct {
	Value    []graphMessage `json:"value"`
	NextLink string         `json:"@odata.nextLink"`
}

type graphDeltaResponse struct {
	Value     []graphMessage `json:"value"`
	NextLink  string         `json:"@odata.nextLink"`
	DeltaLink string         `json:"@odata.deltaLink"`
}

type graphFolder struct {
	ID               string `json:"id"`
	DisplayName      string `json:"displayName"`
	WellKnownName    string `json:"wellKnownName"`
	TotalItemCount   int    `json:"totalItemCount"`
	UnreadItemCount  int    `json:"unreadItemCount"`
}

type graphFolderListResponse struct {
	Value []graphFolder `json:"value"`
}

type graphProfile struct {
	Mail              string `json:"mail"`
	UserPrincipalName string `json:"userPrincipalName"`
	DisplayName       string `json:"displayName"`
}

// sendMailRequest wraps the outgoing message per Graph's sendMail action
// contract (a Message resource plus a saveToSentItems flag).
type sendMailRequest struct {
	Message         graphOutgoingMessage `json:"message"`
	SaveToSentItems bool                 `json:"saveToSentItems"`
}

type graphOutgoingMessage struct {
	Subject       string            `json:"subject"`
	Body          graphItemBody     `json:"body"`
	ToRecipients  []graphRecipient  `json:"toRecipients,omitempty"`
	CcRecipients  []graphRecipient  `json:"ccRecipients,omitempty"`
	BccRecipients []graphRecipient  `json:"bccRecipients,omitempty"`
	Attachments   []graphAttachment `json:"attachments,omitempty"`
}

type moveRequest struct {
	DestinationID string `json:"destinationId"`
}

type updateCategoriesRequest struct {
	Categories []string `json:"categories"`
}

func folderTypeFor(f graphFolder) string {
	if t, ok := graphWellKnownFolders[strings.ToLower(f.WellKnownName)]; ok {
		return t
	}
	if t, ok := graphDisplayNameFolders[strings.ToLower(f.DisplayName)]; ok {
		return t
	}
	return "custom"
}

func addressList(recipients []graphRecipient) []string {
	out := make([]string, 0, len(recipients))
	for _, r := range recipients {
		out = append(out, r.EmailAddress.Address)
	}
	return out
}

func toGraphRecipients(addrs []string) []graphRecipient {
	out := make([]graphRecipient, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, graphRecipient{EmailAddress: graphEmailAddress{Address: a}})
	}
	return out
}

func flagsFor(msg graphMessage) []string {
	var flags []string
	if msg.IsRead {
		flags = append(flags, "\\Seen")
	}
	if msg.Flag.FlagStatus == "flagged" {
		flags = append(flags, "\\Flagged")
	}
	return flags
}

func messageHeader(headers []graphHeader, name string) string {
	for _, h := range headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

func bodyTextAndHTML(body graphItemBody) (text, html string) {
	if strings.EqualFold(body.ContentType, "html") {
		return "", mail.SanitizeHTML(body.Content)
	}
	return body.Content, ""
}

func toMessageParts(attachments []graphAttachment) []provider.MessagePart {
	out := make([]provider.MessagePart, 0, len(attachments))
	for _, a := range attachments {
		out = append(out, provider.MessagePart{
			MimeType:             a.ContentType,
			Filename:             a.Name,
			ContentID:            a.ContentID,
			ProviderAttachmentID: a.ID,
			SizeBytes:            a.Size,
			IsAttachment:         !a.IsInline,
		})
	}
	return out
}

func attachmentNotFoundErr(id string) error {
	return fmt.Errorf("graphapi: attachment %q not found on message", id)
}

func encodeStdBase64(content []byte) string {
	return base64.StdEncoding.EncodeToString(content)
}
