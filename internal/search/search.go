// Package search is a thin query layer over internal/store's structured
// filters and full-text index, evaluating free-text first (a small,
// FTS-bounded candidate set) and intersecting it with structured
// predicates, never the reverse.
package search

import (
	"time"

	"github.com/intentmail/intentmail/internal/store"
)

func unixPtr(sec int64) *time.Time {
	t := time.Unix(sec, 0).UTC()
	return &t
}

// Service executes searches against one account's (or the unified)
// mailbox.
type Service struct {
	emails *store.EmailStore
}

// NewService builds a search Service over the given EmailStore.
func NewService(emails *store.EmailStore) *Service {
	return &Service{emails: emails}
}

// Query is the structured+free-text search request, mirroring
// store.SearchFilter one-for-one so the façade's search operation can
// accept untyped JSON and decode straight into this struct.
type Query struct {
	AccountID       int64
	FromPrefix      string
	SubjectContains string
	HasAttachments  *bool
	FlagsAll        []string
	LabelsAll       []string
	ThreadID        string
	DateFrom        *int64 // unix seconds, converted by the caller
	DateTo          *int64
	Text            string
	Limit           int
	Offset          int
}

// Search runs q against the store and returns a page of matching emails.
// AccountID of 0 searches across every account (the unified inbox).
func (s *Service) Search(q Query) (*store.SearchResult[*store.Email], error) {
	filter := store.SearchFilter{
		AccountID:       q.AccountID,
		FromPrefix:      q.FromPrefix,
		SubjectContains: q.SubjectContains,
		HasAttachments:  q.HasAttachments,
		FlagsAll:        q.FlagsAll,
		LabelsAll:       q.LabelsAll,
		ThreadID:        q.ThreadID,
		Query:           q.Text,
		Limit:           q.Limit,
		Offset:          q.Offset,
	}
	if q.DateFrom != nil {
		filter.DateFrom = unixPtr(*q.DateFrom)
	}
	if q.DateTo != nil {
		filter.DateTo = unixPtr(*q.DateTo)
	}
	return s.emails.Search(filter)
}
