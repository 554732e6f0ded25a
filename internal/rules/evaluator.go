// Package rules implements the automation engine: evaluating a Rule's
// conditions against an Email, applying its actions, and recording every
// execution to the audit log so it can be previewed and rolled back.
package rules

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/intentmail/intentmail/internal/apperrors"
	"github.com/intentmail/intentmail/internal/store"
)

// conditionFields enumerates the fields a Condition may reference.
var conditionFields = map[string]bool{
	"from": true, "to": true, "cc": true, "subject": true, "body": true,
	"label": true, "hasAttachment": true, "threadSize": true, "date": true, "ageDays": true,
}

// conditionOperators enumerates the operators a Condition may use.
var conditionOperators = map[string]bool{
	"equals": true, "notEquals": true, "contains": true, "notContains": true,
	"matchesRegex": true, "greaterThan": true, "lessThan": true, "in": true, "notIn": true,
}

// Matches reports whether every condition in conditions matches email, evaluated
// with AND-only semantics: a rule with zero matching power (empty
// conditions, rejected by the validator before this point) never
// reaches here.
func Matches(conditions []store.Condition, email *store.Email) (bool, error) {
	for _, c := range conditions {
		ok, err := evalCondition(c, email)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func evalCondition(c store.Condition, email *store.Email) (bool, error) {
	actual, isList, err := fieldValue(c.Field, email)
	if err != nil {
		return false, err
	}

	switch c.Operator {
	case "equals":
		return compareAny(actual, isList, c.Value, strings.EqualFold), nil
	case "notEquals":
		return !compareAny(actual, isList, c.Value, strings.EqualFold), nil
	case "contains":
		return compareAny(actual, isList, c.Value, containsFold), nil
	case "notContains":
		return !compareAny(actual, isList, c.Value, containsFold), nil
	case "matchesRegex":
		re, err := regexp.Compile(c.Value)
		if err != nil {
			return false, apperrors.New(apperrors.KindValidationError, fmt.Sprintf("rules: invalid regex %q: %v", c.Value, err))
		}
		return compareAny(actual, isList, "", func(a, _ string) bool { return re.MatchString(a) }), nil
	case "greaterThan":
		return numericCompare(c.Field, actual, c.Value, func(a, b float64) bool { return a > b })
	case "lessThan":
		return numericCompare(c.Field, actual, c.Value, func(a, b float64) bool { return a < b })
	case "in":
		wanted := splitCSV(c.Value)
		return compareAnyList(actual, isList, wanted, strings.EqualFold), nil
	case "notIn":
		wanted := splitCSV(c.Value)
		return !compareAnyList(actual, isList, wanted, strings.EqualFold), nil
	default:
		return false, apperrors.New(apperrors.KindValidationError, fmt.Sprintf("rules: unknown operator %q", c.Operator))
	}
}

// fieldValue extracts the field's value(s) from email. isList is true
// when the field is naturally multi-valued (to, cc, label), in which
// case actual holds every value and a comparison matches if any of them
// matches; single-valued fields return a one-element slice.
func fieldValue(field string, email *store.Email) (actual []string, isList bool, err error) {
	switch field {
	case "from":
		return []string{email.FromAddress}, false, nil
	case "to":
		return email.To, true, nil
	case "cc":
		return email.CC, true, nil
	case "subject":
		return []string{email.Subject}, false, nil
	case "body":
		return []string{email.BodyText}, false, nil
	case "label":
		return email.Labels, true, nil
	case "hasAttachment":
		return []string{strconv.FormatBool(email.HasAttachments)}, false, nil
	case "threadSize":
		// threadSize is not tracked per-email; callers resolve it to "1"
		// in the absence of thread aggregation in the store.
		return []string{"1"}, false, nil
	case "date":
		if email.Date == nil {
			return []string{""}, false, nil
		}
		return []string{email.Date.UTC().Format(time.RFC3339)}, false, nil
	case "ageDays":
		if email.Date == nil {
			return []string{"0"}, false, nil
		}
		days := int(time.Since(*email.Date).Hours() / 24)
		return []string{strconv.Itoa(days)}, false, nil
	default:
		return nil, false, apperrors.New(apperrors.KindValidationError, fmt.Sprintf("rules: unknown field %q", field))
	}
}

func containsFold(a, b string) bool {
	return strings.Contains(strings.ToLower(a), strings.ToLower(b))
}

func compareAny(actual []string, isList bool, want string, cmp func(a, b string) bool) bool {
	if !isList {
		if len(actual) == 0 {
			return cmp("", want)
		}
		return cmp(actual[0], want)
	}
	for _, v := range actual {
		if cmp(v, want) {
			return true
		}
	}
	return false
}

func compareAnyList(actual []string, isList bool, wanted []string, cmp func(a, b string) bool) bool {
	for _, w := range wanted {
		if compareAny(actual, isList, w, cmp) {
			return true
		}
	}
	return false
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func numericCompare(field string, actual []string, want string, cmp func(a, b float64) bool) (bool, error) {
	if len(actual) == 0 {
		return false, nil
	}
	a, err := strconv.ParseFloat(actual[0], 64)
	if err != nil {
		return false, apperrors.New(apperrors.KindValidationError, fmt.Sprintf("rules: field %q is not numeric (%q)", field, actual[0]))
	}
	b, err := strconv.ParseFloat(want, 64)
	if err != nil {
		return false, apperrors.New(apperrors.KindValidationError, fmt.Sprintf("rules: value %q is not numeric", want))
	}
	return cmp(a, b), nil
}
