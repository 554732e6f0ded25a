package imapsmtp

import "testing"

func TestMessageRefRoundTrip(t *testing.T) {
	ref := messageRef{Folder: "INBOX", UIDValidity: 12345, UID: 987}
	s := ref.String()

	got, err := parseMessageRef(s)
	if err != nil {
		t.Fatalf("parseMessageRef(%q): %v", s, err)
	}
	if got != ref {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, ref)
	}
}

func TestParseMessageRefMalformed(t *testing.T) {
	cases := []string{"", "INBOX", "INBOX/12345", "INBOX/abc/1", "INBOX/1/abc"}
	for _, c := range cases {
		if _, err := parseMessageRef(c); err == nil {
			t.Errorf("parseMessageRef(%q): expected error, got nil", c)
		}
	}
}

func TestListCursorRoundTrip(t *testing.T) {
	c := listCursor{FolderIndex: 2, Folder: "Archive", LastUID: 42}
	encoded := encodeListCursor(c)
	decoded := decodeListCursor(encoded)
	if decoded != c {
		t.Fatalf("got %+v, want %+v", decoded, c)
	}
}

func TestDecodeListCursorEmptyOrBad(t *testing.T) {
	if c := decodeListCursor(""); c != (listCursor{}) {
		t.Fatalf("empty cursor should decode to zero value, got %+v", c)
	}
	if c := decodeListCursor("not json"); c != (listCursor{}) {
		t.Fatalf("malformed cursor should decode to zero value, got %+v", c)
	}
}

func TestDeltaCursorRoundTrip(t *testing.T) {
	c := deltaCursor{Folders: map[string]folderDeltaState{
		"INBOX": {UIDValidity: 100, UIDs: []uint32{1, 2, 3}, HighestModSeq: 55},
	}}
	encoded := encodeDeltaCursor(c)
	decoded := decodeDeltaCursor(encoded)

	got := decoded.Folders["INBOX"]
	want := c.Folders["INBOX"]
	if got.UIDValidity != want.UIDValidity || len(got.UIDs) != len(want.UIDs) || got.HighestModSeq != want.HighestModSeq {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestDecodeDeltaCursorEmpty(t *testing.T) {
	c := decodeDeltaCursor("")
	if c.Folders == nil {
		t.Fatal("expected non-nil Folders map for empty cursor")
	}
	if len(c.Folders) != 0 {
		t.Fatalf("expected empty map, got %v", c.Folders)
	}
}
