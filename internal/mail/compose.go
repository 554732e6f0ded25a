package mail

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/textproto"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/intentmail/intentmail/internal/provider"
)

// ComposeRFC822 renders an OutgoingMessage as an RFC 5322 byte stream,
// choosing multipart/mixed, multipart/alternative, or a single part
// depending on what the message carries. Attachments are always
// base64/quoted-printable encoded; no part is ever sent undeclared.
func ComposeRFC822(msg provider.OutgoingMessage) ([]byte, error) {
	var buf bytes.Buffer

	messageID := fmt.Sprintf("<%s@intentmail>", uuid.New().String())

	writeHeader(&buf, "From", msg.From)
	writeHeader(&buf, "To", strings.Join(msg.To, ", "))
	if len(msg.CC) > 0 {
		writeHeader(&buf, "Cc", strings.Join(msg.CC, ", "))
	}
	writeHeader(&buf, "Subject", encodeSubject(msg.Subject))
	writeHeader(&buf, "Date", time.Now().Format(time.RFC1123Z))
	writeHeader(&buf, "Message-ID", messageID)
	writeHeader(&buf, "MIME-Version", "1.0")

	if msg.InReplyTo != "" {
		writeHeader(&buf, "In-Reply-To", msg.InReplyTo)
	}
	if len(msg.References) > 0 {
		writeHeader(&buf, "References", strings.Join(msg.References, " "))
	}

	hasHTML := msg.HTMLBody != ""
	hasText := msg.TextBody != ""
	hasAttachments := len(msg.Attachments) > 0

	switch {
	case hasAttachments:
		if err := writeMultipartMixed(&buf, msg); err != nil {
			return nil, err
		}
	case hasHTML && hasText:
		if err := writeMultipartAlternative(&buf, msg.TextBody, msg.HTMLBody); err != nil {
			return nil, err
		}
	case hasHTML:
		writeHeader(&buf, "Content-Type", "text/html; charset=utf-8")
		writeHeader(&buf, "Content-Transfer-Encoding", "quoted-printable")
		buf.WriteString("\r\n")
		writeQuotedPrintable(&buf, msg.HTMLBody)
	default:
		writeHeader(&buf, "Content-Type", "text/plain; charset=utf-8")
		writeHeader(&buf, "Content-Transfer-Encoding", "quoted-printable")
		buf.WriteString("\r\n")
		writeQuotedPrintable(&buf, msg.TextBody)
	}

	return buf.Bytes(), nil
}

func writeHeader(buf *bytes.Buffer, name, value string) {
	fmt.Fprintf(buf, "%s: %s\r\n", name, value)
}

func encodeSubject(subject string) string {
	for _, r := range subject {
		if r > 127 {
			return mime.QEncoding.Encode("utf-8", subject)
		}
	}
	return subject
}

func writeQuotedPrintable(w io.Writer, content string) {
	qp := quotedprintable.NewWriter(w)
	qp.Write([]byte(content))
	qp.Close()
}

func writeMultipartAlternative(buf *bytes.Buffer, text, html string) error {
	mw := multipart.NewWriter(buf)
	writeHeader(buf, "Content-Type", fmt.Sprintf("multipart/alternative; boundary=%q", mw.Boundary()))
	buf.WriteString("\r\n")

	textHeader := textproto.MIMEHeader{}
	textHeader.Set("Content-Type", "text/plain; charset=utf-8")
	textHeader.Set("Content-Transfer-Encoding", "quoted-printable")
	textPart, err := mw.CreatePart(textHeader)
	if err != nil {
		return err
	}
	writeQuotedPrintable(textPart, text)

	htmlHeader := textproto.MIMEHeader{}
	htmlHeader.Set("Content-Type", "text/html; charset=utf-8")
	htmlHeader.Set("Content-Transfer-Encoding", "quoted-printable")
	htmlPart, err := mw.CreatePart(htmlHeader)
	if err != nil {
		return err
	}
	writeQuotedPrintable(htmlPart, html)

	return mw.Close()
}

func writeMultipartMixed(buf *bytes.Buffer, msg provider.OutgoingMessage) error {
	mw := multipart.NewWriter(buf)
	writeHeader(buf, "Content-Type", fmt.Sprintf("multipart/mixed; boundary=%q", mw.Boundary()))
	buf.WriteString("\r\n")

	hasHTML := msg.HTMLBody != ""
	hasText := msg.TextBody != ""

	switch {
	case hasHTML && hasText:
		altBoundary := uuid.New().String()
		altHeader := textproto.MIMEHeader{}
		altHeader.Set("Content-Type", fmt.Sprintf("multipart/alternative; boundary=%q", altBoundary))
		bodyPart, err := mw.CreatePart(altHeader)
		if err != nil {
			return err
		}
		altWriter := multipart.NewWriter(bodyPart)
		if err := altWriter.SetBoundary(altBoundary); err != nil {
			return err
		}

		textHeader := textproto.MIMEHeader{}
		textHeader.Set("Content-Type", "text/plain; charset=utf-8")
		textHeader.Set("Content-Transfer-Encoding", "quoted-printable")
		textPart, err := altWriter.CreatePart(textHeader)
		if err != nil {
			return err
		}
		writeQuotedPrintable(textPart, msg.TextBody)

		htmlHeader := textproto.MIMEHeader{}
		htmlHeader.Set("Content-Type", "text/html; charset=utf-8")
		htmlHeader.Set("Content-Transfer-Encoding", "quoted-printable")
		htmlPart, err := altWriter.CreatePart(htmlHeader)
		if err != nil {
			return err
		}
		writeQuotedPrintable(htmlPart, msg.HTMLBody)

		if err := altWriter.Close(); err != nil {
			return err
		}
	case hasHTML:
		htmlHeader := textproto.MIMEHeader{}
		htmlHeader.Set("Content-Type", "text/html; charset=utf-8")
		htmlHeader.Set("Content-Transfer-Encoding", "quoted-printable")
		part, err := mw.CreatePart(htmlHeader)
		if err != nil {
			return err
		}
		writeQuotedPrintable(part, msg.HTMLBody)
	case hasText:
		textHeader := textproto.MIMEHeader{}
		textHeader.Set("Content-Type", "text/plain; charset=utf-8")
		textHeader.Set("Content-Transfer-Encoding", "quoted-printable")
		part, err := mw.CreatePart(textHeader)
		if err != nil {
			return err
		}
		writeQuotedPrintable(part, msg.TextBody)
	}

	for _, att := range msg.Attachments {
		if err := writeAttachmentPart(mw, att); err != nil {
			return err
		}
	}

	return mw.Close()
}

func writeAttachmentPart(mw *multipart.Writer, att provider.OutgoingAttachment) error {
	contentType := att.MimeType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	header := textproto.MIMEHeader{}
	header.Set("Content-Type", contentType)
	header.Set("Content-Transfer-Encoding", "base64")
	header.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", att.Filename))

	part, err := mw.CreatePart(header)
	if err != nil {
		return err
	}

	enc := newBase64LineEncoder(part)
	if _, err := enc.Write(att.Content); err != nil {
		return err
	}
	return enc.Close()
}
