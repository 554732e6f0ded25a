package imapsmtp

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// messageRef identifies one message uniquely across UIDVALIDITY changes:
// "<folder>/<uidvalidity>/<uid>".
type messageRef struct {
	Folder      string
	UIDValidity uint32
	UID         uint32
}

func (r messageRef) String() string {
	return fmt.Sprintf("%s/%d/%d", r.Folder, r.UIDValidity, r.UID)
}

func parseMessageRef(id string) (messageRef, error) {
	parts := strings.Split(id, "/")
	if len(parts) != 3 {
		return messageRef{}, fmt.Errorf("imapsmtp: malformed message ref %q", id)
	}
	uidValidity, err := strconv.ParseUint(parts[1], 10, 32)
	if err != nil {
		return messageRef{}, fmt.Errorf("imapsmtp: malformed uidvalidity in %q: %w", id, err)
	}
	uid, err := strconv.ParseUint(parts[2], 10, 32)
	if err != nil {
		return messageRef{}, fmt.Errorf("imapsmtp: malformed uid in %q: %w", id, err)
	}
	return messageRef{Folder: parts[0], UIDValidity: uint32(uidValidity), UID: uint32(uid)}, nil
}

// listCursor walks the folder-priority ordering across successive
// ListMessages calls: one folder is paged to exhaustion via lastUID before
// advancing to the next.
type listCursor struct {
	FolderIndex int    `json:"folderIndex"`
	Folder      string `json:"folder"`
	LastUID     uint32 `json:"lastUID"`
}

func encodeListCursor(c listCursor) string {
	b, _ := json.Marshal(c)
	return string(b)
}

func decodeListCursor(s string) listCursor {
	if s == "" {
		return listCursor{}
	}
	var c listCursor
	if err := json.Unmarshal([]byte(s), &c); err != nil {
		return listCursor{}
	}
	return c
}

// deltaCursor carries the last-seen UID set per folder so ListDelta can
// compute additions and deletions without server-side history. Kept as a
// flat per-folder list; mailboxes are expected to be small enough for this
// to be practical for the generic-IMAP tier the adapter targets.
type deltaCursor struct {
	Folders map[string]folderDeltaState `json:"folders"`
}

type folderDeltaState struct {
	UIDValidity   uint32   `json:"uidValidity"`
	UIDs          []uint32 `json:"uids"`
	HighestModSeq uint64   `json:"highestModSeq"`
}

func encodeDeltaCursor(c deltaCursor) string {
	b, _ := json.Marshal(c)
	return string(b)
}

func decodeDeltaCursor(s string) deltaCursor {
	c := deltaCursor{Folders: map[string]folderDeltaState{}}
	if s == "" {
		return c
	}
	if err := json.Unmarshal([]byte(s), &c); err != nil {
		return deltaCursor{Folders: map[string]folderDeltaState{}}
	}
	if c.Folders == nil {
		c.Folders = map[string]folderDeltaState{}
	}
	return c
}
