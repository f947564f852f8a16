package authcore

import (
	"context"
	"errors"
	"time"

	internalflows "github.com/MrEthical07/authcore/internal/flows"
	"github.com/MrEthical07/authcore/jwt"
)

// RefreshToken re-issues tokens for userID. The presented refresh token is
// not re-checked here; guards call ValidateRefresh first.
func (e *Engine) RefreshToken(ctx context.Context, userID string) (*RefreshResult, error) {
	user, pair, err := internalflows.RunRefresh(ctx, userID, e.flows.Refresh)
	if err != nil {
		return nil, err
	}
	return &RefreshResult{
		User:   fromFlowUser(user),
		Tokens: fromFlowPair(pair),
	}, nil
}

// ValidateAccess verifies an access token. Refresh tokens are rejected.
func (e *Engine) ValidateAccess(ctx context.Context, token string) (*Claims, error) {
	return e.validate(ctx, token, jwt.KindAccess)
}

// ValidateRefresh verifies a refresh token. Access tokens are rejected.
func (e *Engine) ValidateRefresh(ctx context.Context, token string) (*Claims, error) {
	return e.validate(ctx, token, jwt.KindRefresh)
}

func (e *Engine) validate(_ context.Context, token string, kind jwt.Kind) (*Claims, error) {
	if e == nil || e.jwtManager == nil {
		return nil, ErrEngineNotReady
	}

	var start time.Time
	if kind == jwt.KindAccess && e.metrics.LatencyEnabled() {
		start = time.Now()
		defer func() {
			e.metrics.Observe(MetricValidateLatency, time.Since(start))
		}()
	}

	claims, err := e.jwtManager.Verify(token, kind)
	if err != nil {
		e.metricInc(MetricTokenInvalid)
		if errors.Is(err, jwt.ErrInvalidToken) {
			return nil, ErrInvalidToken
		}
		return nil, errors.Join(ErrInvalidToken, err)
	}
	return claims, nil
}

func (e *Engine) refreshFlowDeps() internalflows.RefreshDeps {
	return internalflows.RefreshDeps{
		FindByID:      e.findByID,
		IsNotFound:    isUserNotFound,
		MapStoreError: mapStoreError,
		IssuePair:     e.issuePair,
		MetricInc: func(id int) {
			e.metricInc(MetricID(id))
		},
		EmitAudit: e.emitAudit,
		Metrics: internalflows.RefreshMetrics{
			RefreshSuccess: int(MetricRefreshSuccess),
			RefreshFailure: int(MetricRefreshFailure),
		},
		Events: internalflows.RefreshEvents{
			RefreshSuccess: auditEventRefreshSuccess,
			RefreshFailure: auditEventRefreshFailure,
		},
		Errors: internalflows.RefreshErrors{
			EngineNotReady: ErrEngineNotReady,
			UserNotFound:   ErrUserNotFound,
		},
	}
}
