package facade

import "context"

// SyncRequest triggers a sync pass for one account. forceInitial forces
// a full re-listing even when a sync cursor is already recorded.
type SyncRequest struct {
	AccountID    int64 `json:"accountId"`
	ForceInitial bool  `json:"forceInitial"`
}

// SyncResponse reports the completed run's metrics.
type SyncResponse struct {
	Result
	Metric SyncMetricView `json:"metric,omitempty"`
}

// Sync runs one synchronous sync pass against accountId's provider,
// through the scheduler's already-syncing guard so an on-demand sync
// never races a scheduled sweep of the same account.
func (f *Facade) Sync(ctx context.Context, req SyncRequest) SyncResponse {
	account, err := f.accounts.Get(req.AccountID)
	if err != nil {
		return SyncResponse{Result: fail(err)}
	}
	metric, err := f.scheduler.TriggerOne(ctx, account, req.ForceInitial)
	if err != nil {
		return SyncResponse{Result: fail(err)}
	}
	return SyncResponse{Result: ok(""), Metric: syncMetricView(metric)}
}

// SyncStatsRequest pages through one account's sync history.
type SyncStatsRequest struct {
	AccountID int64 `json:"accountId"`
	Limit     int   `json:"limit"`
}

// SyncStatsResponse is the account's most recent sync runs, newest
// first.
type SyncStatsResponse struct {
	Result
	Metrics []SyncMetricView `json:"metrics,omitempty"`
}

// SyncStats returns accountId's recent sync metrics.
func (f *Facade) SyncStats(req SyncStatsRequest) SyncStatsResponse {
	metrics, err := f.metrics.ListForAccount(req.AccountID, req.Limit)
	if err != nil {
		return SyncStatsResponse{Result: fail(err)}
	}
	views := make([]SyncMetricView, 0, len(metrics))
	for _, m := range metrics {
		views = append(views, syncMetricView(m))
	}
	return SyncStatsResponse{Result: ok(""), Metrics: views}
}
