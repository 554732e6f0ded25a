package store

import (
	"database/sql"
	"encoding/json"
	"strings"
	"time"
)

const timeLayout = time.RFC3339

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(timeLayout), Valid: true}
}

func parseTimeString(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t, err := time.Parse(timeLayout, s.String)
	if err != nil {
		// SQLite CURRENT_TIMESTAMP columns come back as "2006-01-02 15:04:05".
		if t2, err2 := time.Parse("2006-01-02 15:04:05", s.String); err2 == nil {
			return &t2
		}
		return nil
	}
	return &t
}

func mustTimeString(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	if t, err := time.Parse(timeLayout, s); err == nil {
		return t
	}
	if t, err := time.Parse("2006-01-02 15:04:05", s); err == nil {
		return t
	}
	return time.Time{}
}

func toJSON(v any) string {
	if v == nil {
		return "null"
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(b)
}

func fromJSONSlice(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil
	}
	return out
}

func fromJSONMap(s string) map[string]string {
	if s == "" {
		return nil
	}
	var out map[string]string
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil
	}
	return out
}

// joinTags renders a set of short tokens as the comma-separated form used
// for the flags column.
func joinTags(tags []string) string {
	return strings.Join(dedupe(tags), ",")
}

func splitTags(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// dedupe collapses duplicate entries while preserving first-seen order,
// giving addLabels/setFlags idempotent-set semantics.
func dedupe(items []string) []string {
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, it := range items {
		if _, ok := seen[it]; ok {
			continue
		}
		seen[it] = struct{}{}
		out = append(out, it)
	}
	return out
}

// unionSet merges b into a, deduped.
func unionSet(a, b []string) []string {
	return dedupe(append(append([]string{}, a...), b...))
}

// subtractSet removes every element of b from a.
func subtractSet(a, b []string) []string {
	remove := make(map[string]struct{}, len(b))
	for _, v := range b {
		remove[v] = struct{}{}
	}
	out := make([]string, 0, len(a))
	for _, v := range a {
		if _, ok := remove[v]; !ok {
			out = append(out, v)
		}
	}
	return out
}
