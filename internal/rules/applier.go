package rules

import (
	"context"
	"fmt"

	"github.com/intentmail/intentmail/internal/apperrors"
	"github.com/intentmail/intentmail/internal/provider"
	"github.com/intentmail/intentmail/internal/store"
)

// emailState is the mutable in-memory projection actions are applied to;
// it starts as a copy of the email's current labels/flags and is
// committed to the store once, after every action in the rule has run,
// rather than once per action.
type emailState struct {
	labels []string
	flags  []string
}

func stateFromEmail(e *store.Email) emailState {
	return emailState{labels: append([]string(nil), e.Labels...), flags: append([]string(nil), e.Flags...)}
}

func (st *emailState) addLabel(l string) {
	if l == "" || st.hasLabel(l) {
		return
	}
	st.labels = append(st.labels, l)
}

func (st *emailState) removeLabel(l string) {
	out := st.labels[:0]
	for _, v := range st.labels {
		if v != l {
			out = append(out, v)
		}
	}
	st.labels = out
}

func (st *emailState) hasLabel(l string) bool {
	for _, v := range st.labels {
		if v == l {
			return true
		}
	}
	return false
}

func (st *emailState) addFlag(f string) {
	for _, v := range st.flags {
		if v == f {
			return
		}
	}
	st.flags = append(st.flags, f)
}

func (st *emailState) removeFlag(f string) {
	out := st.flags[:0]
	for _, v := range st.flags {
		if v != f {
			out = append(out, v)
		}
	}
	st.flags = out
}

// gmailFolderCapable reports whether providerTag has folders rather than
// labels; gmail exposes only labels, so applyAction downgrades moveFolder
// to applyLabel there.
func gmailFolderCapable(providerTag string) bool {
	return providerTag != "gmail"
}

// applyAction mutates st in place and returns a description of the action
// in the same "type(parameter)" form a dry run reports, or sends the one
// side-effecting action (forward) directly. forward is the only action
// that calls the provider; every other action is a label/flag transform
// deferred to the caller's single commit. moveFolder on a non-gmail
// account changes neither st nor the server folder: it only returns its
// description.
func applyAction(ctx context.Context, a store.Action, email *store.Email, st *emailState, p provider.Provider, creds provider.Credentials, providerTag string) (string, error) {
	switch a.Type {
	case "addLabel", "applyLabel":
		st.addLabel(a.Parameter)
		return fmt.Sprintf("%s(%s)", a.Type, a.Parameter), nil
	case "removeLabel":
		st.removeLabel(a.Parameter)
		return fmt.Sprintf("removeLabel(%s)", a.Parameter), nil
	case "markRead":
		st.addFlag("SEEN")
		return "markRead", nil
	case "markUnread":
		st.removeFlag("SEEN")
		return "markUnread", nil
	case "archive":
		st.removeLabel("INBOX")
		return "archive", nil
	case "moveToTrash":
		st.addLabel("TRASH")
		st.removeLabel("INBOX")
		return "moveToTrash", nil
	case "delete":
		// Hard delete is aliased to trash: the store never drops an email
		// row except on a provider-driven tombstone or account cascade.
		st.addLabel("TRASH")
		st.removeLabel("INBOX")
		return "delete", nil
	case "moveFolder":
		if !gmailFolderCapable(providerTag) {
			st.addLabel(a.Parameter)
			return fmt.Sprintf("moveFolder(%s)", a.Parameter), nil
		}
		return fmt.Sprintf("moveFolder(%s)", a.Parameter), nil
	case "forward":
		if p == nil {
			return "", apperrors.New(apperrors.KindPermanent, "rules: forward requires a provider")
		}
		msg := provider.OutgoingMessage{
			From:    creds.Username,
			To:      []string{a.Parameter},
			Subject: "Fwd: " + email.Subject,
			TextBody: "---------- Forwarded message ----------\n" +
				"From: " + email.FromAddress + "\n" +
				"Subject: " + email.Subject + "\n\n" + email.BodyText,
			HTMLBody: email.BodyHTML,
		}
		if _, _, err := p.SendMessage(ctx, creds, msg); err != nil {
			return "", fmt.Errorf("rules: forward: %w", err)
		}
		return fmt.Sprintf("forward(%s)", a.Parameter), nil
	default:
		return "", apperrors.New(apperrors.KindValidationError, fmt.Sprintf("rules: unknown action %q", a.Type))
	}
}
