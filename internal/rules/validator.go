package rules

import (
	"fmt"
	"net/mail"

	"github.com/intentmail/intentmail/internal/apperrors"
	"github.com/intentmail/intentmail/internal/store"
)

var actionTypes = map[string]bool{
	"addLabel": true, "removeLabel": true, "markRead": true, "markUnread": true,
	"archive": true, "moveToTrash": true, "delete": true, "forward": true,
	"moveFolder": true, "applyLabel": true,
}

var triggers = map[string]bool{"onNewEmail": true, "manual": true, "scheduled": true}

// Validate checks a Rule's shape before it is written, returning a
// structured ValidationError (never a bare error) when it fails. A rule
// that passes Validate can still fail at evaluation: matchesRegex patterns
// and greaterThan/lessThan operands are checked only by Matches.
func Validate(r *store.Rule) *apperrors.ValidationError {
	var issues []apperrors.ValidationIssue

	if r.Name == "" {
		issues = append(issues, apperrors.Issue("REQUIRED", "name"))
	}
	if !triggers[r.Trigger] {
		issues = append(issues, apperrors.Issue("INVALID_TRIGGER", "trigger"))
	}
	if len(r.Conditions) == 0 {
		issues = append(issues, apperrors.Issue("REQUIRED", "conditions"))
	}
	if len(r.Actions) == 0 {
		issues = append(issues, apperrors.Issue("REQUIRED", "actions"))
	}

	for i, c := range r.Conditions {
		if !conditionFields[c.Field] {
			issues = append(issues, apperrors.Issue("INVALID_FIELD", fmt.Sprintf("conditions[%d].field", i)))
		}
		if !conditionOperators[c.Operator] {
			issues = append(issues, apperrors.Issue("INVALID_OPERATOR", fmt.Sprintf("conditions[%d].operator", i)))
		}
	}

	issues = append(issues, validateActions(r.Actions)...)

	if len(issues) == 0 {
		return nil
	}
	return apperrors.NewValidationError(issues...)
}

func validateActions(actions []store.Action) []apperrors.ValidationIssue {
	var issues []apperrors.ValidationIssue

	var hasMarkRead, hasMarkUnread bool
	labelsSeen := make(map[string]bool)

	for i, a := range actions {
		field := fmt.Sprintf("actions[%d]", i)

		if !actionTypes[a.Type] {
			issues = append(issues, apperrors.Issue("INVALID_ACTION", field))
			continue
		}

		switch a.Type {
		case "forward":
			if a.Parameter == "" {
				issues = append(issues, apperrors.Issue("REQUIRED_PARAMETER", field))
			} else if _, err := mail.ParseAddress(a.Parameter); err != nil {
				issues = append(issues, apperrors.Issue("INVALID_EMAIL_ADDRESS", field))
			}
		case "addLabel", "removeLabel", "applyLabel":
			if a.Parameter == "" {
				issues = append(issues, apperrors.Issue("REQUIRED_PARAMETER", field))
			}
			if a.Type == "applyLabel" && a.Parameter != "" {
				if labelsSeen[a.Parameter] {
					issues = append(issues, apperrors.Issue("DUPLICATE_ACTION", field))
				}
				labelsSeen[a.Parameter] = true
			}
		case "moveFolder":
			if a.Parameter == "" {
				issues = append(issues, apperrors.Issue("REQUIRED_PARAMETER", field))
			}
		case "markRead":
			hasMarkRead = true
		case "markUnread":
			hasMarkUnread = true
		case "delete":
			if i != len(actions)-1 {
				issues = append(issues, apperrors.Issue("DELETE_NOT_LAST", field))
			}
		}
	}

	if hasMarkRead && hasMarkUnread {
		issues = append(issues, apperrors.Issue("CONFLICTING_ACTIONS", "actions"))
	}

	return issues
}
