package security

import "time"

type PasswordReport struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

type Report struct {
	AccessSigningAlgorithm  string
	RefreshSigningAlgorithm string
	AccessTTL               time.Duration
	RefreshTTL              time.Duration
	Argon2                  PasswordReport
	LegacyHashUpgrade       bool
	TOTPAlgorithm           string
	TOTPDigits              int
	TOTPSkew                int
	AuthCodeTTL             time.Duration
	PasswordResetTTL        time.Duration
	RedisBacked             bool
	RateLimitingActive      bool
	AuditActive             bool
	MetricsActive           bool
	Warnings                []string
}

type ReportInput struct {
	AccessSigningAlgorithm  string
	RefreshSigningAlgorithm string
	AccessTTL               time.Duration
	RefreshTTL              time.Duration
	Password                PasswordReport
	UpgradeOnLogin          bool
	TOTPAlgorithm           string
	TOTPDigits              int
	TOTPSkew                int
	AuthCodeTTL             time.Duration
	PasswordResetTTL        time.Duration
	HasRedis                bool
	RateLimitEnabled        bool
	AuditEnabled            bool
	MetricsEnabled          bool
}

// BuildReport summarizes a configuration. Rate limits only count as active
// when a Redis client backs them.
func BuildReport(input ReportInput) Report {
	report := Report{
		AccessSigningAlgorithm:  input.AccessSigningAlgorithm,
		RefreshSigningAlgorithm: input.RefreshSigningAlgorithm,
		AccessTTL:               input.AccessTTL,
		RefreshTTL:              input.RefreshTTL,
		Argon2:                  input.Password,
		LegacyHashUpgrade:       input.UpgradeOnLogin,
		TOTPAlgorithm:           input.TOTPAlgorithm,
		TOTPDigits:              input.TOTPDigits,
		TOTPSkew:                input.TOTPSkew,
		AuthCodeTTL:             input.AuthCodeTTL,
		PasswordResetTTL:        input.PasswordResetTTL,
		RedisBacked:             input.HasRedis,
		RateLimitingActive:      input.HasRedis && input.RateLimitEnabled,
		AuditActive:             input.AuditEnabled,
		MetricsActive:           input.MetricsEnabled,
	}

	if !input.HasRedis {
		report.Warnings = append(report.Warnings, "no redis: rate limits are off and auth codes and 2FA login challenges live in process memory")
	} else if !input.RateLimitEnabled {
		report.Warnings = append(report.Warnings, "rate limiting disabled")
	}
	if input.AccessSigningAlgorithm == "hs256" || input.RefreshSigningAlgorithm == "hs256" {
		report.Warnings = append(report.Warnings, "hs256 signing: every verifier holds the signing secret")
	}
	if input.RefreshTTL > 0 && input.AccessTTL >= input.RefreshTTL {
		report.Warnings = append(report.Warnings, "access tokens outlive refresh tokens")
	}
	return report
}
