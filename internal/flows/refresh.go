package flows

import "context"

type RefreshMetrics struct {
	RefreshSuccess int
	RefreshFailure int
}

type RefreshEvents struct {
	RefreshSuccess string
	RefreshFailure string
}

type RefreshErrors struct {
	EngineNotReady error
	UserNotFound   error
}

type RefreshDeps struct {
	FindByID      func(context.Context, string) (UserRecord, error)
	IsNotFound    func(error) bool
	MapStoreError func(error) error
	IssuePair     func(UserRecord) (TokenPair, error)

	MetricInc func(int)
	EmitAudit AuditFunc

	Metrics RefreshMetrics
	Events  RefreshEvents
	Errors  RefreshErrors
}

// RunRefresh re-issues tokens for userID. The presented refresh token has
// already been verified by the caller; the user is reloaded so the new
// claims carry current profile data.
func RunRefresh(ctx context.Context, userID string, deps RefreshDeps) (UserRecord, TokenPair, error) {
	normalizeRefreshDeps(&deps)

	if deps.FindByID == nil || deps.IssuePair == nil {
		return UserRecord{}, TokenPair{}, deps.Errors.EngineNotReady
	}
	if userID == "" {
		deps.MetricInc(deps.Metrics.RefreshFailure)
		deps.EmitAudit(ctx, deps.Events.RefreshFailure, false, "", deps.Errors.UserNotFound, nil)
		return UserRecord{}, TokenPair{}, deps.Errors.UserNotFound
	}

	user, err := deps.FindByID(ctx, userID)
	if err != nil {
		if isContextError(err) {
			return UserRecord{}, TokenPair{}, err
		}
		if !deps.IsNotFound(err) {
			return UserRecord{}, TokenPair{}, deps.MapStoreError(err)
		}
		deps.MetricInc(deps.Metrics.RefreshFailure)
		deps.EmitAudit(ctx, deps.Events.RefreshFailure, false, userID, deps.Errors.UserNotFound, nil)
		return UserRecord{}, TokenPair{}, deps.Errors.UserNotFound
	}

	pair, err := deps.IssuePair(user)
	if err != nil {
		deps.MetricInc(deps.Metrics.RefreshFailure)
		deps.EmitAudit(ctx, deps.Events.RefreshFailure, false, user.ID, err, nil)
		return UserRecord{}, TokenPair{}, err
	}

	deps.MetricInc(deps.Metrics.RefreshSuccess)
	deps.EmitAudit(ctx, deps.Events.RefreshSuccess, true, user.ID, nil, nil)
	return user, pair, nil
}

func normalizeRefreshDeps(deps *RefreshDeps) {
	if deps.IsNotFound == nil {
		deps.IsNotFound = func(error) bool { return false }
	}
	if deps.MapStoreError == nil {
		deps.MapStoreError = func(err error) error { return err }
	}
	if deps.MetricInc == nil {
		deps.MetricInc = noopMetric
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = noopAudit
	}
}
