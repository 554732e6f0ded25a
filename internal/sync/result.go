package sync

import "github.com/intentmail/intentmail/internal/apperrors"

// Outcome classifies what happened during one unit of sync work, replacing
// exception-style control flow with an explicit result value the caller
// branches on.
type Outcome int

const (
	// OutcomeOK means the unit of work completed normally.
	OutcomeOK Outcome = iota
	// OutcomeTransient means the work failed in a way worth retrying on
	// the next scheduled run (network blip, rate limit); the run
	// continues with the next item and the cursor is not advanced past it.
	OutcomeTransient
	// OutcomeSkippable means one item failed in a way that will never
	// succeed on retry (malformed message, missing remote object); the
	// run logs it and moves on, treating it as handled.
	OutcomeSkippable
	// OutcomeFatal means the whole run must stop (auth failure, paging
	// broke); the cursor is not advanced.
	OutcomeFatal
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeTransient:
		return "transient"
	case OutcomeSkippable:
		return "skippable"
	case OutcomeFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Result pairs an Outcome with the error that produced it, if any.
type Result struct {
	Outcome Outcome
	Err     error
}

func ok() Result                    { return Result{Outcome: OutcomeOK} }
func transient(err error) Result    { return Result{Outcome: OutcomeTransient, Err: err} }
func skippable(err error) Result    { return Result{Outcome: OutcomeSkippable, Err: err} }
func fatal(err error) Result        { return Result{Outcome: OutcomeFatal, Err: err} }

// classify maps an apperrors.Kind (surfaced through a provider call) onto a
// Result, per §9's retry-tier mapping: auth failures abort the run,
// rate limits and transient network errors retry on the next scheduled
// run, everything else about a single message is skippable.
func classify(err error) Result {
	if err == nil {
		return ok()
	}
	switch {
	case apperrors.Is(err, apperrors.KindAuthFailed):
		return fatal(err)
	case apperrors.Is(err, apperrors.KindTransient), apperrors.Is(err, apperrors.KindRateLimited):
		return transient(err)
	default:
		return skippable(err)
	}
}
