package imapsmtp

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/intentmail/intentmail/internal/apperrors"
	"github.com/intentmail/intentmail/internal/logging"
	"github.com/intentmail/intentmail/internal/mail"
	"github.com/intentmail/intentmail/internal/provider"
	"github.com/rs/zerolog"
)

func init() {
	provider.Register("imap", New)
}

// Adapter implements provider.Provider over a generic IMAP4rev1+SMTP
// mailbox. Every method opens and closes its own connection: the adapter
// holds no account handle between calls, per the stateless-adapter
// contract shared by every provider package.
type Adapter struct {
	log zerolog.Logger
}

// New constructs the IMAP/SMTP adapter. Registered under tag "imap".
func New() provider.Provider {
	return &Adapter{log: logging.WithComponent("provider.imap")}
}

func (a *Adapter) connect(ctx context.Context, creds provider.Credentials) (*Client, error) {
	cfg := DefaultClientConfig()
	cfg.Host = creds.IMAPHost
	if creds.IMAPPort != 0 {
		cfg.Port = creds.IMAPPort
	}
	cfg.Username = creds.Username
	cfg.Password = creds.IMAPPassword
	if creds.AccessToken != "" {
		cfg.AuthType = AuthTypeOAuth2
		cfg.AccessToken = creds.AccessToken
	}
	if cfg.Port == 143 {
		cfg.Security = SecurityStartTLS
	}

	c := NewClient(cfg)
	if err := c.Connect(); err != nil {
		return nil, apperrors.Transient("imapsmtp: connect", err)
	}
	if err := c.Login(); err != nil {
		c.ForceClose()
		return nil, apperrors.AuthFailed("imapsmtp: login: " + err.Error())
	}
	return c, nil
}

func (a *Adapter) UserProfile(ctx context.Context, creds provider.Credentials) (provider.Profile, *provider.RefreshedTokens, error) {
	c, err := a.connect(ctx, creds)
	if err != nil {
		return provider.Profile{}, nil, err
	}
	defer c.Close()
	return provider.Profile{Email: creds.Username}, nil, nil
}

func (a *Adapter) ListMessages(ctx context.Context, creds provider.Credentials, cursor string, maxResults int) (provider.ListPage, *provider.RefreshedTokens, error) {
	if maxResults <= 0 || maxResults > 200 {
		maxResults = 100
	}

	c, err := a.connect(ctx, creds)
	if err != nil {
		return provider.ListPage{}, nil, err
	}
	defer c.Close()

	boxes, err := listMailboxesOrdered(ctx, c)
	if err != nil {
		return provider.ListPage{}, nil, fmt.Errorf("imapsmtp: list mailboxes: %w", err)
	}
	if len(boxes) == 0 {
		return provider.ListPage{}, nil, nil
	}

	lc := decodeListCursor(cursor)
	if lc.Folder == "" {
		lc.Folder = boxes[0].name
		lc.FolderIndex = 0
	}

	for lc.FolderIndex < len(boxes) {
		folder := boxes[lc.FolderIndex].name
		selectData, err := c.client.Select(folder, &imap.SelectOptions{ReadOnly: true}).Wait()
		if err != nil {
			lc.FolderIndex++
			lc.LastUID = 0
			continue
		}

		criteria := &imap.SearchCriteria{}
		if lc.LastUID > 0 {
			criteria.UID = []imap.UIDSet{{imap.UIDRange{Start: imap.UID(lc.LastUID + 1), Stop: 0}}}
		}
		uids, err := searchUIDs(c, criteria)
		if err != nil {
			return provider.ListPage{}, nil, fmt.Errorf("imapsmtp: search: %w", err)
		}
		sort.Slice(uids, func(i, j int) bool { return uids[i] < uids[j] })

		if len(uids) > maxResults {
			uids = uids[:maxResults]
		}

		envelopes, err := fetchEnvelopes(c, folder, selectData.UIDValidity, uids)
		if err != nil {
			return provider.ListPage{}, nil, err
		}

		if len(envelopes) > 0 {
			lc.LastUID = uids[len(uids)-1]
			lc.Folder = folder
			next := encodeListCursor(lc)
			if len(envelopes) < maxResults {
				// folder exhausted; advance for the next page
				lc.FolderIndex++
				lc.LastUID = 0
				if lc.FolderIndex >= len(boxes) {
					next = "" // no more folders
				} else {
					next = encodeListCursor(lc)
				}
			}
			return provider.ListPage{Envelopes: envelopes, NextCursor: next}, nil, nil
		}

		lc.FolderIndex++
		lc.LastUID = 0
	}

	return provider.ListPage{}, nil, nil
}

func searchUIDs(c *Client, criteria *imap.SearchCriteria) ([]uint32, error) {
	data, err := c.client.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return nil, err
	}
	all := data.AllUIDs()
	out := make([]uint32, len(all))
	for i, u := range all {
		out[i] = uint32(u)
	}
	return out, nil
}

func fetchEnvelopes(c *Client, folder string, uidValidity uint32, uids []uint32) ([]provider.Envelope, error) {
	if len(uids) == 0 {
		return nil, nil
	}
	uidSet := imap.UIDSet{}
	for _, uid := range uids {
		uidSet.AddNum(imap.UID(uid))
	}

	fetchCmd := c.client.Fetch(uidSet, &imap.FetchOptions{Envelope: true, Flags: true, UID: true})
	defer fetchCmd.Close()

	var out []provider.Envelope
	for {
		msg := fetchCmd.Next()
		if msg == nil {
			break
		}
		var uid imap.UID
		var envelope *imap.Envelope
		for {
			item := msg.Next()
			if item == nil {
				break
			}
			switch data := item.(type) {
			case imapclient.FetchItemDataUID:
				uid = data.UID
			case imapclient.FetchItemDataEnvelope:
				envelope = data.Envelope
			}
		}
		if uid == 0 || envelope == nil {
			continue
		}
		ref := messageRef{Folder: folder, UIDValidity: uidValidity, UID: uint32(uid)}
		out = append(out, provider.Envelope{
			ProviderMessageID: ref.String(),
			Snippet:           envelope.Subject,
			Date:              envelope.Date,
		})
	}
	return out, fetchCmd.Close()
}

func (a *Adapter) GetMessage(ctx context.Context, creds provider.Credentials, providerMessageID string) (provider.Message, *provider.RefreshedTokens, error) {
	ref, err := parseMessageRef(providerMessageID)
	if err != nil {
		return provider.Message{}, nil, apperrors.New(apperrors.KindValidationError, err.Error())
	}

	c, err := a.connect(ctx, creds)
	if err != nil {
		return provider.Message{}, nil, err
	}
	defer c.Close()

	if _, err := c.client.Select(ref.Folder, &imap.SelectOptions{ReadOnly: true}).Wait(); err != nil {
		return provider.Message{}, nil, fmt.Errorf("imapsmtp: select %s: %w", ref.Folder, err)
	}

	raw, envelope, flags, err := fetchFullMessage(c, ref.UID)
	if err != nil {
		return provider.Message{}, nil, err
	}

	parsed, err := mail.ParseMessage(raw)
	if err != nil {
		return provider.Message{}, nil, fmt.Errorf("imapsmtp: parse message: %w", err)
	}

	msg := provider.Message{
		ProviderMessageID: providerMessageID,
		Subject:           envelope.Subject,
		BodyText:          parsed.BodyText,
		BodyHTML:          parsed.BodyHTML,
		Date:              envelope.Date,
		SizeBytes:         int64(len(raw)),
	}
	if len(envelope.From) > 0 {
		msg.FromAddress = envelope.From[0].Addr()
		msg.FromName = envelope.From[0].Name
	}
	msg.To = addrStrings(envelope.To)
	msg.CC = addrStrings(envelope.Cc)
	msg.BCC = addrStrings(envelope.Bcc)
	for _, f := range flags {
		msg.Flags = append(msg.Flags, string(f))
	}
	msg.Labels = []string{ref.Folder}

	for i, att := range parsed.Attachments {
		msg.Attachments = append(msg.Attachments, provider.MessagePart{
			MimeType:             att.ContentType,
			Filename:             att.Filename,
			ContentID:            att.ContentID,
			ProviderAttachmentID: strconv.Itoa(i),
			SizeBytes:            att.SizeBytes,
			IsAttachment:         true,
		})
	}

	return msg, nil, nil
}

func addrStrings(addrs []imap.Address) []string {
	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, a.Addr())
	}
	return out
}

func fetchFullMessage(c *Client, uid uint32) ([]byte, *imap.Envelope, []imap.Flag, error) {
	uidSet := imap.UIDSet{}
	uidSet.AddNum(imap.UID(uid))

	fetchCmd := c.client.Fetch(uidSet, &imap.FetchOptions{
		Envelope: true,
		Flags:    true,
		UID:      true,
		BodySection: []*imap.FetchItemBodySection{
			{Specifier: imap.PartSpecifierNone, Peek: true},
		},
	})
	defer fetchCmd.Close()

	msg := fetchCmd.Next()
	if msg == nil {
		return nil, nil, nil, apperrors.NotFound("imapsmtp: message not found")
	}

	var raw []byte
	var envelope *imap.Envelope
	var flags []imap.Flag
	for {
		item := msg.Next()
		if item == nil {
			break
		}
		switch data := item.(type) {
		case imapclient.FetchItemDataEnvelope:
			envelope = data.Envelope
		case imapclient.FetchItemDataFlags:
			flags = data.Flags
		case imapclient.FetchItemDataBodySection:
			if data.Literal != nil {
				raw, _ = io.ReadAll(data.Literal)
			}
		}
	}
	if envelope == nil {
		envelope = &imap.Envelope{}
	}
	return raw, envelope, flags, nil
}

func (a *Adapter) BatchGetMessages(ctx context.Context, creds provider.Credentials, ids []string) ([]provider.Message, *provider.RefreshedTokens, error) {
	out := make([]provider.Message, 0, len(ids))
	for _, id := range ids {
		msg, _, err := a.GetMessage(ctx, creds, id)
		if err != nil {
			if apperrors.Is(err, apperrors.KindNotFound) {
				continue
			}
			return out, nil, err
		}
		out = append(out, msg)
	}
	return out, nil, nil
}

func (a *Adapter) ListDelta(ctx context.Context, creds provider.Credentials, cursor string) (provider.DeltaResult, *provider.RefreshedTokens, error) {
	c, err := a.connect(ctx, creds)
	if err != nil {
		return provider.DeltaResult{}, nil, err
	}
	defer c.Close()

	boxes, err := listMailboxesOrdered(ctx, c)
	if err != nil {
		return provider.DeltaResult{}, nil, fmt.Errorf("imapsmtp: list mailboxes: %w", err)
	}

	dc := decodeDeltaCursor(cursor)
	result := provider.DeltaResult{}

	for _, box := range boxes {
		selectData, err := c.client.Select(box.name, &imap.SelectOptions{ReadOnly: true}).Wait()
		if err != nil {
			continue
		}

		current, err := searchUIDs(c, &imap.SearchCriteria{})
		if err != nil {
			continue
		}
		currentSet := make(map[uint32]bool, len(current))
		for _, u := range current {
			currentSet[u] = true
		}

		prev := dc.Folders[box.name]
		uidValidityChanged := prev.UIDValidity != 0 && prev.UIDValidity != selectData.UIDValidity

		if !uidValidityChanged {
			prevSet := make(map[uint32]bool, len(prev.UIDs))
			for _, u := range prev.UIDs {
				prevSet[u] = true
			}
			for _, u := range current {
				if !prevSet[u] {
					ref := messageRef{Folder: box.name, UIDValidity: selectData.UIDValidity, UID: u}
					result.Additions = append(result.Additions, ref.String())
				}
			}
			for _, u := range prev.UIDs {
				if !currentSet[u] {
					ref := messageRef{Folder: box.name, UIDValidity: prev.UIDValidity, UID: u}
					result.Deletions = append(result.Deletions, ref.String())
				}
			}
		} else {
			// UIDVALIDITY changed under us: every previously-known UID is
			// meaningless now, so treat every current message as new.
			for _, u := range current {
				ref := messageRef{Folder: box.name, UIDValidity: selectData.UIDValidity, UID: u}
				result.Additions = append(result.Additions, ref.String())
			}
		}

		dc.Folders[box.name] = folderDeltaState{UIDValidity: selectData.UIDValidity, UIDs: current}
	}

	result.NewCursor = encodeDeltaCursor(dc)
	return result, nil, nil
}

func (a *Adapter) SendMessage(ctx context.Context, creds provider.Credentials, msg provider.OutgoingMessage) (provider.SendResult, *provider.RefreshedTokens, error) {
	raw, err := mail.ComposeRFC822(msg)
	if err != nil {
		return provider.SendResult{}, nil, fmt.Errorf("imapsmtp: compose: %w", err)
	}

	recipients := append(append(append([]string{}, msg.To...), msg.CC...), msg.BCC...)
	smtpPort := creds.SMTPPort
	if smtpPort == 0 {
		smtpPort = 587
	}
	if err := sendSMTP(creds.SMTPHost, smtpPort, creds, msg.From, recipients, raw); err != nil {
		return provider.SendResult{}, nil, apperrors.Transient("imapsmtp: send", err)
	}

	return provider.SendResult{}, nil, nil
}

func (a *Adapter) ModifyLabels(ctx context.Context, creds provider.Credentials, providerMessageID string, add, remove []string) (*provider.RefreshedTokens, error) {
	// IMAP has no label concept beyond flags and folder membership; the
	// only labels the sync engine asks this adapter to modify are flag
	// names (\Seen, \Flagged, ...). Folder moves go through Trash/Untrash.
	ref, err := parseMessageRef(providerMessageID)
	if err != nil {
		return nil, apperrors.New(apperrors.KindValidationError, err.Error())
	}

	c, err := a.connect(ctx, creds)
	if err != nil {
		return nil, err
	}
	defer c.Close()

	if _, err := c.client.Select(ref.Folder, nil).Wait(); err != nil {
		return nil, fmt.Errorf("imapsmtp: select %s: %w", ref.Folder, err)
	}

	uidSet := imap.UIDSet{}
	uidSet.AddNum(imap.UID(ref.UID))

	if len(add) > 0 {
		flags := toFlags(add)
		if err := c.client.Store(uidSet, &imap.StoreFlags{Op: imap.StoreFlagsAdd, Flags: flags, Silent: true}, nil).Close(); err != nil {
			return nil, fmt.Errorf("imapsmtp: add flags: %w", err)
		}
	}
	if len(remove) > 0 {
		flags := toFlags(remove)
		if err := c.client.Store(uidSet, &imap.StoreFlags{Op: imap.StoreFlagsDel, Flags: flags, Silent: true}, nil).Close(); err != nil {
			return nil, fmt.Errorf("imapsmtp: remove flags: %w", err)
		}
	}
	return nil, nil
}

func toFlags(names []string) []imap.Flag {
	out := make([]imap.Flag, len(names))
	for i, n := range names {
		out[i] = imap.Flag(n)
	}
	return out
}

func (a *Adapter) Trash(ctx context.Context, creds provider.Credentials, providerMessageID string) (*provider.RefreshedTokens, error) {
	return a.moveToFolder(ctx, creds, providerMessageID, "Trash")
}

func (a *Adapter) Untrash(ctx context.Context, creds provider.Credentials, providerMessageID string) (*provider.RefreshedTokens, error) {
	return a.moveToFolder(ctx, creds, providerMessageID, "INBOX")
}

func (a *Adapter) moveToFolder(ctx context.Context, creds provider.Credentials, providerMessageID, destFolder string) (*provider.RefreshedTokens, error) {
	ref, err := parseMessageRef(providerMessageID)
	if err != nil {
		return nil, apperrors.New(apperrors.KindValidationError, err.Error())
	}

	c, err := a.connect(ctx, creds)
	if err != nil {
		return nil, err
	}
	defer c.Close()

	if _, err := c.client.Select(ref.Folder, nil).Wait(); err != nil {
		return nil, fmt.Errorf("imapsmtp: select %s: %w", ref.Folder, err)
	}

	uidSet := imap.UIDSet{}
	uidSet.AddNum(imap.UID(ref.UID))

	if _, err := c.client.Move(uidSet, destFolder).Wait(); err != nil {
		return nil, fmt.Errorf("imapsmtp: move to %s: %w", destFolder, err)
	}
	return nil, nil
}

func (a *Adapter) Delete(ctx context.Context, creds provider.Credentials, providerMessageID string) (*provider.RefreshedTokens, error) {
	ref, err := parseMessageRef(providerMessageID)
	if err != nil {
		return nil, apperrors.New(apperrors.KindValidationError, err.Error())
	}

	c, err := a.connect(ctx, creds)
	if err != nil {
		return nil, err
	}
	defer c.Close()

	if _, err := c.client.Select(ref.Folder, nil).Wait(); err != nil {
		return nil, fmt.Errorf("imapsmtp: select %s: %w", ref.Folder, err)
	}

	uidSet := imap.UIDSet{}
	uidSet.AddNum(imap.UID(ref.UID))

	if err := c.client.Store(uidSet, &imap.StoreFlags{Op: imap.StoreFlagsAdd, Flags: []imap.Flag{imap.FlagDeleted}, Silent: true}, nil).Close(); err != nil {
		return nil, fmt.Errorf("imapsmtp: mark deleted: %w", err)
	}

	if c.HasCap(imap.CapUIDPlus) {
		if err := c.client.UIDExpunge(uidSet).Close(); err != nil {
			return nil, fmt.Errorf("imapsmtp: uid expunge: %w", err)
		}
	} else if err := c.client.Expunge().Close(); err != nil {
		return nil, fmt.Errorf("imapsmtp: expunge: %w", err)
	}
	return nil, nil
}

func (a *Adapter) GetAttachment(ctx context.Context, creds provider.Credentials, providerMessageID, attachmentID string) (provider.AttachmentContent, *provider.RefreshedTokens, error) {
	ref, err := parseMessageRef(providerMessageID)
	if err != nil {
		return provider.AttachmentContent{}, nil, apperrors.New(apperrors.KindValidationError, err.Error())
	}
	index, err := strconv.Atoi(attachmentID)
	if err != nil {
		return provider.AttachmentContent{}, nil, apperrors.New(apperrors.KindValidationError, "imapsmtp: malformed attachment id")
	}

	c, err := a.connect(ctx, creds)
	if err != nil {
		return provider.AttachmentContent{}, nil, err
	}
	defer c.Close()

	if _, err := c.client.Select(ref.Folder, &imap.SelectOptions{ReadOnly: true}).Wait(); err != nil {
		return provider.AttachmentContent{}, nil, fmt.Errorf("imapsmtp: select %s: %w", ref.Folder, err)
	}

	raw, _, _, err := fetchFullMessage(c, ref.UID)
	if err != nil {
		return provider.AttachmentContent{}, nil, err
	}

	content, contentType, err := mail.ExtractAttachmentContent(raw, index)
	if err != nil {
		return provider.AttachmentContent{}, nil, apperrors.NotFound(err.Error())
	}

	if mail.IsTNEF("winmail.dat", contentType) {
		if expanded, expErr := mail.ExpandTNEF(content); expErr == nil && len(expanded) > 0 {
			content = expanded[0].Content
		}
	}

	return provider.AttachmentContent{
		Base64: base64.StdEncoding.EncodeToString(content),
		Size:   int64(len(content)),
	}, nil, nil
}

