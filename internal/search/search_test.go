package search

import (
	"testing"
	"time"
)

func TestUnixPtrRoundTrip(t *testing.T) {
	now := time.Now().Unix()
	got := unixPtr(now)
	if got.Unix() != now {
		t.Errorf("unixPtr(%d).Unix() = %d, want %d", now, got.Unix(), now)
	}
	if got.Location() != time.UTC {
		t.Errorf("unixPtr should normalize to UTC, got %v", got.Location())
	}
}
