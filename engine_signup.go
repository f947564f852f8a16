package authcore

import (
	"context"

	internalflows "github.com/MrEthical07/authcore/internal/flows"
)

const signupMessage = "User registered successfully"

// Signup creates an account and returns its first token pair. A taken
// email fails with ErrAccountExists and leaves the existing account alone.
// Password length policy is the caller's concern; only emptiness is
// rejected here.
func (e *Engine) Signup(ctx context.Context, in SignupInput) (*SignupResult, error) {
	user, pair, err := internalflows.RunSignup(ctx, internalflows.SignupInput{
		Email:    in.Email,
		Password: in.Password,
		Name:     in.Name,
	}, e.flows.Signup)
	if err != nil {
		return nil, err
	}
	return &SignupResult{
		User:    fromFlowUser(user),
		Tokens:  fromFlowPair(pair),
		Message: signupMessage,
	}, nil
}

func (e *Engine) signupFlowDeps() internalflows.SignupDeps {
	return internalflows.SignupDeps{
		FindByEmail:   e.findByEmail,
		IsNotFound:    isUserNotFound,
		MapStoreError: mapStoreError,
		HashPassword:  e.passwordHash.Hash,
		CreateUser:    e.createUser,
		IssuePair:     e.issuePair,
		MetricInc: func(id int) {
			e.metricInc(MetricID(id))
		},
		EmitAudit: e.emitAudit,
		Metrics: internalflows.SignupMetrics{
			SignupSuccess:   int(MetricSignupSuccess),
			SignupFailure:   int(MetricSignupFailure),
			SignupDuplicate: int(MetricSignupDuplicate),
		},
		Events: internalflows.SignupEvents{
			SignupSuccess:   auditEventSignupSuccess,
			SignupFailure:   auditEventSignupFailure,
			SignupDuplicate: auditEventSignupDuplicate,
		},
		Errors: internalflows.SignupErrors{
			EngineNotReady: ErrEngineNotReady,
			InvalidInput:   ErrInvalidInput,
			AccountExists:  ErrAccountExists,
		},
	}
}
