package authcore

import (
	"errors"
	"log/slog"

	internalaudit "github.com/MrEthical07/authcore/internal/audit"
	"github.com/MrEthical07/authcore/internal/rate"
	"github.com/MrEthical07/authcore/internal/stores"
	"github.com/MrEthical07/authcore/jwt"
	"github.com/MrEthical07/authcore/password"
	"github.com/MrEthical07/authcore/totp"
	"github.com/redis/go-redis/v9"
)

// Builder assembles an [Engine]. A Builder is single-use.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	userStore UserStore
	mailer    MailDispatcher
	codeStore CodeStore
	auditSink AuditSink
	logger    *slog.Logger

	built bool
}

func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis enables rate limiting, Redis-held 2FA login challenges and,
// unless WithCodeStore is used, the Redis authorization code store.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

func (b *Builder) WithUserStore(store UserStore) *Builder {
	b.userStore = store
	return b
}

// WithMailer sets the dispatcher used for password reset mail. Without one,
// ForgetPassword returns ErrEngineNotReady.
func (b *Builder) WithMailer(mailer MailDispatcher) *Builder {
	b.mailer = mailer
	return b
}

func (b *Builder) WithCodeStore(store CodeStore) *Builder {
	b.codeStore = store
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires the Engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.userStore == nil {
		return nil, errors.New("user store required")
	}

	engine := &Engine{
		config:    cloneConfig(cfg),
		userStore: b.userStore,
		mailer:    b.mailer,
		codeStore: b.codeStore,
		logger:    b.logger,
	}
	if engine.logger == nil {
		engine.logger = slog.New(slog.DiscardHandler)
	}

	if b.redis != nil {
		engine.rateLimiter = rate.New(b.redis)
		engine.challenges = stores.NewLoginChallengeStore(b.redis, cfg.TOTP.ChallengeRedisPrefix)
		if engine.codeStore == nil {
			engine.codeStore = NewRedisCodeStore(b.redis, cfg.AuthCode.RedisPrefix)
		}
	} else {
		engine.challenges = stores.NewMemoryLoginChallengeStore()
	}
	if engine.codeStore == nil {
		engine.codeStore = NewMemoryCodeStore()
	}

	engine.audit = internalaudit.NewDispatcher(internalaudit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
	}, b.auditSink)
	engine.metrics = NewMetrics(cfg.Metrics)

	ph, err := password.NewArgon2(cfg.passwordConfig())
	if err != nil {
		return nil, err
	}
	engine.passwordHash = ph

	te, err := totp.New(cfg.totpConfig())
	if err != nil {
		return nil, err
	}
	engine.totp = te

	jm, err := jwt.NewManager(cfg.signerConfig(cfg.JWT.Access), cfg.signerConfig(cfg.JWT.Refresh))
	if err != nil {
		return nil, err
	}
	engine.jwtManager = jm

	engine.flows = engine.buildFlowDeps()

	b.built = true

	return engine, nil
}
