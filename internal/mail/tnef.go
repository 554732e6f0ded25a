package mail

import (
	"bytes"
	"strings"

	"github.com/teamwork/tnef"
)

// IsTNEF reports whether an attachment is a TNEF (winmail.dat) container
// that needs expansion before its real attachments are usable.
func IsTNEF(filename, contentType string) bool {
	if strings.EqualFold(filename, "winmail.dat") {
		return true
	}
	return strings.EqualFold(contentType, "application/ms-tnef") ||
		strings.EqualFold(contentType, "application/vnd.ms-tnef")
}

// ExpandTNEF decodes a winmail.dat payload into its contained attachments,
// replacing Outlook's rich-text envelope with the files a recipient
// actually expects to see.
func ExpandTNEF(data []byte) ([]ParsedAttachment, error) {
	data = bytes.TrimSpace(data)
	decoded, err := tnef.Decode(data)
	if err != nil {
		return nil, err
	}

	out := make([]ParsedAttachment, 0, len(decoded.Attachments))
	for _, att := range decoded.Attachments {
		out = append(out, ParsedAttachment{
			Filename:    att.Title,
			ContentType: "application/octet-stream",
			SizeBytes:   int64(len(att.Data)),
			Content:     att.Data,
		})
	}
	return out, nil
}
