package authcore

import "github.com/MrEthical07/authcore/internal/security"

type SecurityReport = security.Report

type PasswordConfigReport = security.PasswordReport

// SecurityReport describes the effective configuration, with warnings for
// settings that weaken it. Nothing secret is included.
func (e *Engine) SecurityReport() SecurityReport {
	if e == nil {
		return SecurityReport{}
	}

	return security.BuildReport(security.ReportInput{
		AccessSigningAlgorithm:  e.config.JWT.Access.SigningMethod,
		RefreshSigningAlgorithm: e.config.JWT.Refresh.SigningMethod,
		AccessTTL:               e.config.JWT.Access.TTL,
		RefreshTTL:              e.config.JWT.Refresh.TTL,
		Password: PasswordConfigReport{
			Memory:      e.config.Password.Memory,
			Time:        e.config.Password.Time,
			Parallelism: e.config.Password.Parallelism,
			SaltLength:  e.config.Password.SaltLength,
			KeyLength:   e.config.Password.KeyLength,
		},
		UpgradeOnLogin:   e.config.Password.UpgradeOnLogin,
		TOTPAlgorithm:    e.config.TOTP.Algorithm,
		TOTPDigits:       e.config.TOTP.Digits,
		TOTPSkew:         e.config.TOTP.Skew,
		AuthCodeTTL:      e.config.AuthCode.TTL,
		PasswordResetTTL: e.config.PasswordReset.TTL,
		HasRedis:         e.rateLimiter != nil,
		RateLimitEnabled: e.config.RateLimit.Enabled,
		AuditEnabled:     e.config.Audit.Enabled,
		MetricsEnabled:   e.config.Metrics.Enabled,
	})
}
