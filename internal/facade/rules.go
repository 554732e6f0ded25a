package facade

import (
	"context"

	"github.com/intentmail/intentmail/internal/rules"
	"github.com/intentmail/intentmail/internal/store"
)

// CreateRuleRequest describes a rule to persist.
type CreateRuleRequest struct {
	AccountID  int64             `json:"accountId"`
	Name       string            `json:"name"`
	Trigger    string            `json:"trigger"`
	Conditions []store.Condition `json:"conditions"`
	Actions    []store.Action    `json:"actions"`
	IsActive   bool              `json:"isActive"`
}

// CreateRuleResponse is the newly persisted rule.
type CreateRuleResponse struct {
	Result
	Rule RuleView `json:"rule,omitempty"`
}

// CreateRule validates and persists a new rule for an account. Per §7,
// validation runs before any store write; a shape violation (conflicting
// markRead/markUnread, a delete not last, a forward without an address,
// ...) never reaches the database.
func (f *Facade) CreateRule(req CreateRuleRequest) CreateRuleResponse {
	candidate := &store.Rule{
		AccountID:  req.AccountID,
		Name:       req.Name,
		Trigger:    req.Trigger,
		Conditions: req.Conditions,
		Actions:    req.Actions,
		IsActive:   req.IsActive,
	}
	if verr := rules.Validate(candidate); verr != nil {
		return CreateRuleResponse{Result: fail(verr)}
	}

	rule, err := f.rules.Create(candidate)
	if err != nil {
		return CreateRuleResponse{Result: fail(err)}
	}
	return CreateRuleResponse{Result: ok(""), Rule: ruleView(rule)}
}

// ListRulesRequest identifies the account whose rules to list.
type ListRulesRequest struct {
	AccountID int64 `json:"accountId"`
}

// ListRulesResponse is every rule configured for the account, in
// creation order — the same order RunTrigger evaluates them in.
type ListRulesResponse struct {
	Result
	Rules []RuleView `json:"rules,omitempty"`
}

// ListRules returns every rule configured for an account.
func (f *Facade) ListRules(req ListRulesRequest) ListRulesResponse {
	rules, err := f.rules.ListForAccount(req.AccountID)
	if err != nil {
		return ListRulesResponse{Result: fail(err)}
	}
	views := make([]RuleView, 0, len(rules))
	for _, r := range rules {
		views = append(views, ruleView(r))
	}
	return ListRulesResponse{Result: ok(""), Rules: views}
}

// DeleteRuleRequest identifies the rule to delete.
type DeleteRuleRequest struct {
	RuleID int64 `json:"ruleId"`
}

// DeleteRuleResponse confirms the deletion. Deleting a rule never rolls
// back its past executions; those remain individually rollbackable via
// rollback/auditLog.
type DeleteRuleResponse struct {
	Result
}

// DeleteRule removes a rule. Its audit history is left intact.
func (f *Facade) DeleteRule(req DeleteRuleRequest) DeleteRuleResponse {
	if err := f.rules.Delete(req.RuleID); err != nil {
		return DeleteRuleResponse{Result: fail(err)}
	}
	return DeleteRuleResponse{Result: ok("")}
}

// ApplyRuleRequest applies one rule against one email, optionally as a
// dry run that reports what would happen without mutating anything.
type ApplyRuleRequest struct {
	RuleID  int64 `json:"ruleId"`
	EmailID int64 `json:"emailId"`
	DryRun  bool  `json:"dryRun"`
}

// ApplyRuleResponse reports whether the rule matched and, when it did,
// the ordered list of action descriptions that ran (or would run).
type ApplyRuleResponse struct {
	Result
	Matched bool     `json:"matched"`
	Actions []string `json:"actions,omitempty"`
	AuditID int64    `json:"auditId,omitempty"`
}

// ApplyRule evaluates ruleId against emailId and, unless dryRun,
// applies its actions and records an audit entry.
func (f *Facade) ApplyRule(ctx context.Context, req ApplyRuleRequest) ApplyRuleResponse {
	rule, err := f.rules.Get(req.RuleID)
	if err != nil {
		return ApplyRuleResponse{Result: fail(err)}
	}
	email, err := f.emails.Get(req.EmailID)
	if err != nil {
		return ApplyRuleResponse{Result: fail(err)}
	}
	account, err := f.accounts.Get(email.AccountID)
	if err != nil {
		return ApplyRuleResponse{Result: fail(err)}
	}

	res, err := f.rulesEngine.Apply(ctx, account, rule, email, req.DryRun)
	if err != nil {
		return ApplyRuleResponse{Result: fail(err)}
	}

	resp := ApplyRuleResponse{Result: ok(""), Matched: res.Matched, Actions: res.Actions}
	if res.Entry != nil {
		resp.AuditID = res.Entry.ID
	}
	return resp
}

// PreviewRollbackRequest identifies the audit entry whose inverse diff
// to compute, without applying it.
type PreviewRollbackRequest struct {
	AuditID int64 `json:"auditId"`
}

// PreviewRollbackResponse is the label/flag diff rollback would apply.
type PreviewRollbackResponse struct {
	Result
	AddLabels    []string `json:"addLabels,omitempty"`
	RemoveLabels []string `json:"removeLabels,omitempty"`
	Flags        []string `json:"flags,omitempty"`
}

// PreviewRollback computes, without applying, the diff that rollback
// would make to restore an audit entry's email to its pre-rule state.
func (f *Facade) PreviewRollback(req PreviewRollbackRequest) PreviewRollbackResponse {
	diff, err := f.rulesEngine.PreviewRollback(req.AuditID)
	if err != nil {
		return PreviewRollbackResponse{Result: fail(err)}
	}
	return PreviewRollbackResponse{Result: ok(""), AddLabels: diff.AddLabels, RemoveLabels: diff.RemoveLabels, Flags: diff.Flags}
}

// RollbackRequest identifies the audit entry to roll back.
type RollbackRequest struct {
	AuditID int64 `json:"auditId"`
}

// RollbackResponse confirms the restore.
type RollbackResponse struct {
	Result
}

// Rollback restores an audit entry's email to its pre-rule state. An
// already-rolled-back entry fails rather than silently no-opping.
func (f *Facade) Rollback(req RollbackRequest) RollbackResponse {
	if err := f.rulesEngine.Rollback(req.AuditID); err != nil {
		return RollbackResponse{Result: fail(err)}
	}
	return RollbackResponse{Result: ok("")}
}

// AuditLogRequest pages through one account's audit history.
type AuditLogRequest struct {
	AccountID int64 `json:"accountId"`
	Limit     int   `json:"limit"`
	Offset    int   `json:"offset"`
}

// AuditLogResponse is a page of audit entries, newest first.
type AuditLogResponse struct {
	Result
	Entries []AuditEntryView `json:"entries,omitempty"`
}

// AuditLog returns accountId's rule-execution history.
func (f *Facade) AuditLog(req AuditLogRequest) AuditLogResponse {
	entries, err := f.audit.ListForAccount(req.AccountID, req.Limit, req.Offset)
	if err != nil {
		return AuditLogResponse{Result: fail(err)}
	}
	views := make([]AuditEntryView, 0, len(entries))
	for _, e := range entries {
		views = append(views, auditEntryView(e))
	}
	return AuditLogResponse{Result: ok(""), Entries: views}
}
