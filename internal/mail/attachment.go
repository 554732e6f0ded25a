package mail

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"strings"

	emessage "github.com/emersion/go-message"
)

// ExtractAttachmentContent walks raw again looking for the attachment part
// at the given zero-based index (parts are counted in the same depth-first
// order, and by the same tests, that ParseMessage uses to record
// Attachments), and returns its bytes, read up to maxPartSize. ParseMessage
// itself only
// retains content for small inline images, fetching the rest is deferred
// to this on-demand path so a full sync doesn't hold every attachment in
// memory.
func ExtractAttachmentContent(raw []byte, index int) ([]byte, string, error) {
	entity, err := emessage.Read(bytes.NewReader(raw))
	if err != nil && entity == nil {
		return nil, "", fmt.Errorf("mail: read message: %w", err)
	}

	counter := 0
	var content []byte
	var contentType string
	var found bool

	var walk func(e *emessage.Entity)
	walk = func(e *emessage.Entity) {
		if found {
			return
		}
		mr := e.MultipartReader()
		if mr == nil {
			return
		}
		for {
			part, err := mr.NextPart()
			if err != nil {
				return
			}
			ct, _, _ := mime.ParseMediaType(part.Header.Get("Content-Type"))
			disposition, _, _ := mime.ParseMediaType(part.Header.Get("Content-Disposition"))
			contentID := strings.Trim(part.Header.Get("Content-ID"), "<>")

			if strings.HasPrefix(ct, "multipart/") {
				walk(part)
				if found {
					return
				}
				continue
			}

			isAttachment := disposition == "attachment"
			isInlineImage := (disposition == "inline" || contentID != "") && strings.HasPrefix(ct, "image/")
			isOther := ct != "" && !strings.HasPrefix(ct, "text/")
			if !isAttachment && !isInlineImage && !isOther {
				continue
			}

			if counter == index {
				data, _ := io.ReadAll(io.LimitReader(part.Body, maxPartSize))
				content = data
				contentType = ct
				found = true
				return
			}
			counter++
		}
	}
	walk(entity)

	if !found {
		return nil, "", fmt.Errorf("mail: no attachment at index %d", index)
	}
	return content, contentType, nil
}
