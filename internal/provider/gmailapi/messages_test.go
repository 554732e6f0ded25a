package gmailapi

import "testing"

func TestAttachmentRefRoundTrip(t *testing.T) {
	ref := attachmentRef{PartID: "2.1", AttachmentID: "ANGjdJ_abc123"}
	encoded := ref.encode("3")

	decoded, err := decodeAttachmentRef(encoded)
	if err != nil {
		t.Fatalf("decodeAttachmentRef(%q) error: %v", encoded, err)
	}
	if decoded.PartID != ref.PartID || decoded.AttachmentID != ref.AttachmentID {
		t.Fatalf("decodeAttachmentRef(%q) = %+v, want %+v", encoded, decoded, ref)
	}
}

func TestDecodeAttachmentRefMalformed(t *testing.T) {
	cases := []string{"", "no-delimiters", "only|one-pipe"}
	for _, c := range cases {
		if _, err := decodeAttachmentRef(c); err == nil {
			t.Errorf("decodeAttachmentRef(%q) expected error, got nil", c)
		}
	}
}

func TestHeaderValueCaseInsensitive(t *testing.T) {
	headers := []gmailHeader{{Name: "Subject", Value: "hello"}, {Name: "from", Value: "a@b.com"}}
	if got := headerValue(headers, "SUBJECT"); got != "hello" {
		t.Errorf("headerValue(SUBJECT) = %q, want %q", got, "hello")
	}
	if got := headerValue(headers, "From"); got != "a@b.com" {
		t.Errorf("headerValue(From) = %q, want %q", got, "a@b.com")
	}
	if got := headerValue(headers, "Missing"); got != "" {
		t.Errorf("headerValue(Missing) = %q, want empty", got)
	}
}

func TestFolderTypeForLabelsKnownAndCustom(t *testing.T) {
	folderType, labels := folderTypeForLabels([]string{"INBOX", "IMPORTANT"})
	if folderType != "inbox" {
		t.Errorf("folderType = %q, want inbox", folderType)
	}
	if len(labels) != 2 {
		t.Errorf("labels = %v, want 2 entries", labels)
	}

	folderType, _ = folderTypeForLabels([]string{"Label_17"})
	if folderType != "custom" {
		t.Errorf("folderType = %q, want custom", folderType)
	}
}

func TestBodyTextAndHTMLFlattensNestedParts(t *testing.T) {
	payload := gmailMessagePart{
		MimeType: "multipart/mixed",
		Parts: []gmailMessagePart{
			{
				MimeType: "multipart/alternative",
				Parts: []gmailMessagePart{
					{MimeType: "text/plain", Body: gmailMessagePartBody{Data: "aGVsbG8"}},
					{MimeType: "text/html", Body: gmailMessagePartBody{Data: "PHA-aGVsbG88L3A-"}},
				},
			},
			{
				MimeType: "application/pdf",
				Filename: "invoice.pdf",
				PartID:   "2",
				Body:     gmailMessagePartBody{AttachmentID: "ANGjdJ_xyz", Size: 4096},
			},
		},
	}

	text, html, attachments := bodyTextAndHTML(payload)
	if text != "hello" {
		t.Errorf("text = %q, want %q", text, "hello")
	}
	if html == "" {
		t.Error("html: want non-empty sanitized body")
	}
	if len(attachments) != 1 {
		t.Fatalf("attachments = %+v, want 1 entry", attachments)
	}
	if attachments[0].Filename != "invoice.pdf" || !attachments[0].IsAttachment {
		t.Errorf("attachments[0] = %+v", attachments[0])
	}
}
