package imapsmtp

import (
	"sort"
	"testing"

	"github.com/emersion/go-imap/v2"
)

func TestDetermineFolderTypeBySpecialUse(t *testing.T) {
	cases := []struct {
		name  string
		attrs []imap.MailboxAttr
		want  string
	}{
		{"Archivio", []imap.MailboxAttr{imap.MailboxAttrArchive}, "archive"},
		{"Bozze", []imap.MailboxAttr{imap.MailboxAttrDrafts}, "drafts"},
		{"Posta indesiderata", []imap.MailboxAttr{imap.MailboxAttrJunk}, "spam"},
		{"Inviati", []imap.MailboxAttr{imap.MailboxAttrSent}, "sent"},
		{"Cestino", []imap.MailboxAttr{imap.MailboxAttrTrash}, "trash"},
	}
	for _, c := range cases {
		if got := determineFolderType(c.name, c.attrs); got != c.want {
			t.Errorf("determineFolderType(%q, %v) = %q, want %q", c.name, c.attrs, got, c.want)
		}
	}
}

func TestDetermineFolderTypeByNameFallback(t *testing.T) {
	cases := []struct {
		name string
		want string
	}{
		{"INBOX", "inbox"},
		{"Sent Items", "sent"},
		{"Drafts", "drafts"},
		{"Deleted Items", "trash"},
		{"Junk Email", "spam"},
		{"Archive", "archive"},
		{"Projects/2026", "custom"},
	}
	for _, c := range cases {
		if got := determineFolderType(c.name, nil); got != c.want {
			t.Errorf("determineFolderType(%q, nil) = %q, want %q", c.name, got, c.want)
		}
	}
}

func TestFolderPriorityOrdersWellKnownFoldersFirst(t *testing.T) {
	boxes := []mailboxInfo{
		{name: "Zzz", folType: "custom", priority: 100},
		{name: "Archive", folType: "archive", priority: folderPriority["archive"]},
		{name: "INBOX", folType: "inbox", priority: folderPriority["inbox"]},
		{name: "Sent", folType: "sent", priority: folderPriority["sent"]},
		{name: "Drafts", folType: "drafts", priority: folderPriority["drafts"]},
		{name: "Aaa", folType: "custom", priority: 100},
	}

	sort.SliceStable(boxes, func(i, j int) bool {
		if boxes[i].priority != boxes[j].priority {
			return boxes[i].priority < boxes[j].priority
		}
		return boxes[i].name < boxes[j].name
	})

	wantOrder := []string{"INBOX", "Sent", "Drafts", "Archive", "Aaa", "Zzz"}
	for i, name := range wantOrder {
		if boxes[i].name != name {
			t.Fatalf("position %d: got %q, want %q (full order: %+v)", i, boxes[i].name, name, boxes)
		}
	}
}
