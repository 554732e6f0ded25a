// Package mail provides the MIME parsing and composition helpers shared by
// the sync engine and the IMAP/SMTP provider adapter: multipart body
// extraction, charset transcoding, HTML sanitization and snippet
// derivation, and outgoing message composition.
package mail

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"strings"
	"unicode/utf8"

	emessage "github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding/htmlindex"
)

const maxPartSize = 32 << 20 // 32MiB, guards against pathological single parts

// ParsedAttachment is one attachment or inline-image part discovered while
// walking a message body.
type ParsedAttachment struct {
	Filename    string
	ContentType string
	ContentID   string
	Inline      bool
	SizeBytes   int64
	Content     []byte // populated only for inline images under inlineCaptureLimit
}

// ParsedBody is the outcome of walking a raw RFC 5322 message.
type ParsedBody struct {
	BodyText    string
	BodyHTML    string
	Snippet     string
	Attachments []ParsedAttachment
}

const inlineCaptureLimit = 256 << 10 // capture inline images up to 256KiB inline, else metadata only

var sanitizerPolicy = bluemonday.UGCPolicy().AllowAttrs("style").Globally()

// SanitizeHTML strips scripts and dangerous markup from an HTML body before
// it is persisted or rendered, using the same UGC allowlist as any other
// untrusted-HTML consumer in the stack.
func SanitizeHTML(html string) string {
	return sanitizerPolicy.Sanitize(html)
}

// ParseMessage walks raw, a full RFC 5322 message, extracting text/html
// bodies, attachment metadata, and a plaintext preview snippet. It mirrors
// the provider adapters' GetMessage paths so sync and on-demand fetch
// produce identical ParsedBody shapes.
func ParseMessage(raw []byte) (*ParsedBody, error) {
	entity, err := emessage.Read(bytes.NewReader(raw))
	if err != nil && entity == nil {
		return nil, fmt.Errorf("mail: read message: %w", err)
	}

	result := &ParsedBody{}
	if mr := entity.MultipartReader(); mr != nil {
		walkMultipart(mr, result)
	} else {
		walkSinglePart(entity, result)
	}

	if result.BodyHTML != "" {
		result.BodyHTML = SanitizeHTML(result.BodyHTML)
	}

	if result.BodyText != "" {
		result.Snippet = generateSnippet(result.BodyText, 200)
	} else if result.BodyHTML != "" {
		result.Snippet = generateSnippet(stripHTMLTags(result.BodyHTML), 200)
	}

	return result, nil
}

func walkMultipart(mr emessage.MultipartReader, result *ParsedBody) {
	for {
		part, err := mr.NextPart()
		if err != nil {
			break
		}

		contentType, params, _ := mime.ParseMediaType(part.Header.Get("Content-Type"))
		disposition, dispParams, _ := mime.ParseMediaType(part.Header.Get("Content-Disposition"))
		contentID := strings.Trim(part.Header.Get("Content-ID"), "<>")

		if strings.HasPrefix(contentType, "multipart/") {
			if nested := part.MultipartReader(); nested != nil {
				walkMultipart(nested, result)
			}
			continue
		}

		isAttachment := disposition == "attachment"
		isInlineImage := (disposition == "inline" || contentID != "") && strings.HasPrefix(contentType, "image/")

		if isAttachment || isInlineImage {
			att := extractAttachment(part, contentType, dispParams, contentID, isInlineImage)
			if att != nil {
				result.Attachments = append(result.Attachments, *att)
			}
			continue
		}

		body, _ := io.ReadAll(io.LimitReader(part.Body, maxPartSize))
		decoded := decodeCharset(body, resolveCharset(params["charset"], contentType, body))

		switch contentType {
		case "text/plain":
			if result.BodyText == "" {
				result.BodyText = decoded
			}
		case "text/html":
			if result.BodyHTML == "" {
				result.BodyHTML = decoded
			}
		default:
			if contentType != "" && !strings.HasPrefix(contentType, "text/") {
				result.Attachments = append(result.Attachments, ParsedAttachment{
					Filename:    dispParams["filename"],
					ContentType: contentType,
					SizeBytes:   int64(len(body)),
				})
			}
		}
	}
}

func walkSinglePart(entity *emessage.Entity, result *ParsedBody) {
	contentType, params, _ := mime.ParseMediaType(entity.Header.Get("Content-Type"))
	body, _ := io.ReadAll(io.LimitReader(entity.Body, maxPartSize))
	decoded := decodeCharset(body, resolveCharset(params["charset"], contentType, body))

	if contentType == "text/html" {
		result.BodyHTML = decoded
	} else {
		result.BodyText = decoded
	}
}

func extractAttachment(part *emessage.Entity, contentType string, dispParams map[string]string, contentID string, inline bool) *ParsedAttachment {
	filename := decodeMIMEWord(dispParams["filename"])
	if filename == "" {
		filename = "attachment"
	}

	att := &ParsedAttachment{
		Filename:    filename,
		ContentType: contentType,
		ContentID:   contentID,
		Inline:      inline,
	}

	if inline {
		data, _ := io.ReadAll(io.LimitReader(part.Body, inlineCaptureLimit+1))
		att.SizeBytes = int64(len(data))
		if int64(len(data)) <= inlineCaptureLimit {
			att.Content = data
		}
		return att
	}

	// Regular attachments: size only, content fetched on demand via the
	// provider's GetAttachment call, per the attachment cache's lazy-fetch
	// contract.
	n, _ := io.Copy(io.Discard, io.LimitReader(part.Body, maxPartSize))
	att.SizeBytes = n
	return att
}

func resolveCharset(declared, contentType string, body []byte) string {
	if declared == "" && contentType == "text/html" {
		return extractCharsetFromHTML(body)
	}
	return declared
}

// decodeCharset converts content from declaredCharset to UTF-8, falling
// back to auto-detection when the declared charset is empty, already
// UTF-8/ASCII but invalid, or unrecognized.
func decodeCharset(content []byte, declaredCharset string) string {
	if declaredCharset == "" || strings.EqualFold(declaredCharset, "utf-8") || strings.EqualFold(declaredCharset, "us-ascii") {
		if utf8.Valid(content) {
			return string(content)
		}
		enc, _, _ := charset.DetermineEncoding(content, "text/html")
		if decoded, err := enc.NewDecoder().Bytes(content); err == nil {
			return string(decoded)
		}
		return string(content)
	}

	enc, err := htmlindex.Get(declaredCharset)
	if err != nil {
		return decodeCharset(content, "")
	}
	decoded, err := enc.NewDecoder().Bytes(content)
	if err != nil {
		return string(content)
	}
	return string(decoded)
}

// extractCharsetFromHTML looks for a charset declaration in the first
// kilobyte of an HTML body, as a fallback for parts with no Content-Type
// charset parameter.
func extractCharsetFromHTML(html []byte) string {
	head := html
	if len(head) > 1024 {
		head = head[:1024]
	}
	lower := strings.ToLower(string(head))
	if idx := strings.Index(lower, "charset="); idx != -1 {
		rest := string(head)[idx+len("charset="):]
		rest = strings.Trim(rest, `"' `)
		end := strings.IndexAny(rest, `"' ;>`)
		if end == -1 {
			end = len(rest)
		}
		return rest[:end]
	}
	return ""
}

// decodeMIMEWord decodes RFC 2047 encoded words in attachment filenames and
// other header parameters.
func decodeMIMEWord(s string) string {
	if s == "" {
		return s
	}
	dec := &mime.WordDecoder{
		CharsetReader: func(name string, r io.Reader) (io.Reader, error) {
			enc, err := htmlindex.Get(name)
			if err != nil {
				return nil, fmt.Errorf("unknown charset: %s", name)
			}
			return enc.NewDecoder().Reader(r), nil
		},
	}
	decoded, err := dec.DecodeHeader(s)
	if err != nil {
		return s
	}
	return decoded
}

func stripHTMLTags(s string) string {
	var b strings.Builder
	inTag := false
	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func generateSnippet(body string, maxLen int) string {
	var parts []string
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if line != "" && !strings.HasPrefix(line, ">") {
			parts = append(parts, line)
		}
	}
	text := strings.Join(parts, " ")
	if len(text) > maxLen {
		text = text[:maxLen] + "..."
	}
	return text
}
