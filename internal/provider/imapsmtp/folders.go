package imapsmtp

import (
	"context"
	"sort"
	"strings"

	"github.com/emersion/go-imap/v2"
	"github.com/intentmail/intentmail/internal/provider"
)

// folderPriority orders inbox, sent, drafts and archive ahead of every
// other folder (trash, spam and custom folders alike), which are then
// listed alphabetically — the same traversal
// order the sync engine uses for IMAP initial sync.
var folderPriority = map[string]int{
	"inbox":   0,
	"sent":    1,
	"drafts":  2,
	"archive": 3,
}

type mailboxInfo struct {
	name     string
	folType  string
	priority int
}

// listMailboxesOrdered lists all mailboxes and sorts them INBOX, Sent,
// Drafts, Archive, then alphabetically, per the teacher's folder priority.
func listMailboxesOrdered(ctx context.Context, c *Client) ([]mailboxInfo, error) {
	listCmd := c.client.List("", "*", nil)

	var boxes []mailboxInfo
	for {
		mbox := listCmd.Next()
		if mbox == nil {
			break
		}
		typ := determineFolderType(mbox.Mailbox, mbox.Attrs)
		prio, known := folderPriority[typ]
		if !known {
			prio = 100
		}
		boxes = append(boxes, mailboxInfo{name: mbox.Mailbox, folType: typ, priority: prio})
	}
	if err := listCmd.Close(); err != nil {
		return nil, err
	}

	sort.SliceStable(boxes, func(i, j int) bool {
		if boxes[i].priority != boxes[j].priority {
			return boxes[i].priority < boxes[j].priority
		}
		return boxes[i].name < boxes[j].name
	})
	return boxes, nil
}

func determineFolderType(name string, attrs []imap.MailboxAttr) string {
	for _, attr := range attrs {
		switch attr {
		case imap.MailboxAttrArchive:
			return "archive"
		case imap.MailboxAttrDrafts:
			return "drafts"
		case imap.MailboxAttrJunk:
			return "spam"
		case imap.MailboxAttrSent:
			return "sent"
		case imap.MailboxAttrTrash:
			return "trash"
		}
	}
	lower := strings.ToLower(name)
	switch {
	case name == "INBOX":
		return "inbox"
	case strings.Contains(lower, "sent"):
		return "sent"
	case strings.Contains(lower, "draft"):
		return "drafts"
	case strings.Contains(lower, "trash") || strings.Contains(lower, "deleted"):
		return "trash"
	case strings.Contains(lower, "spam") || strings.Contains(lower, "junk"):
		return "spam"
	case strings.Contains(lower, "archive"):
		return "archive"
	}
	return "custom"
}

// ListFolders connects, lists all mailboxes with their message counts, and
// disconnects.
func (a *Adapter) ListFolders(ctx context.Context, creds provider.Credentials) ([]provider.Folder, *provider.RefreshedTokens, error) {
	c, err := a.connect(ctx, creds)
	if err != nil {
		return nil, nil, err
	}
	defer c.Close()

	boxes, err := listMailboxesOrdered(ctx, c)
	if err != nil {
		return nil, nil, err
	}

	out := make([]provider.Folder, 0, len(boxes))
	for _, b := range boxes {
		status, err := c.client.Status(b.name, &imap.StatusOptions{NumMessages: true, NumUnseen: true}).Wait()
		folder := provider.Folder{Name: b.name, Path: b.name, Type: b.folType}
		if err == nil {
			if status.NumMessages != nil {
				folder.TotalCount = int(*status.NumMessages)
			}
			if status.NumUnseen != nil {
				folder.UnreadCount = int(*status.NumUnseen)
			}
		}
		out = append(out, folder)
	}
	return out, nil, nil
}
