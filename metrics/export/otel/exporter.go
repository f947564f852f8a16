package otel

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/metrics/export/internaldefs"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil metrics source")
)

const (
	outcomeKey = attribute.Key("outcome")
	boundKey   = attribute.Key("le")

	latencyBucketName = "authcore.token.validate.latency.bucket"
	latencyCountName  = "authcore.token.validate.latency.count"
	auditDroppedName  = "authcore.audit.dropped"
)

type metricsSource interface {
	MetricsSnapshot() authcore.MetricsSnapshot
	AuditDropped() uint64
}

type outcome struct {
	id    authcore.MetricID
	value string
}

// flow is one instrument; each engine counter in it is an outcome.
type flow struct {
	name     string
	help     string
	outcomes []outcome
}

var flows = []flow{
	{name: "authcore.signup", help: "Signups by outcome.", outcomes: []outcome{
		{authcore.MetricSignupSuccess, "success"},
		{authcore.MetricSignupFailure, "failure"},
		{authcore.MetricSignupDuplicate, "duplicate"},
		{authcore.MetricFederatedSignup, "federated"},
	}},
	{name: "authcore.login", help: "Password logins by outcome.", outcomes: []outcome{
		{authcore.MetricLoginSuccess, "success"},
		{authcore.MetricLoginFailure, "failure"},
		{authcore.MetricLoginRateLimited, "rate_limited"},
		{authcore.MetricLoginTwoFactorRequired, "two_factor_required"},
	}},
	{name: "authcore.two_factor", help: "TOTP enrollment and verification by outcome.", outcomes: []outcome{
		{authcore.MetricTwoFactorEnabled, "enabled"},
		{authcore.MetricTwoFactorDisabled, "disabled"},
		{authcore.MetricTwoFactorSuccess, "success"},
		{authcore.MetricTwoFactorFailure, "failure"},
		{authcore.MetricTwoFactorRateLimited, "rate_limited"},
	}},
	{name: "authcore.token", help: "Refresh and bearer checks by outcome.", outcomes: []outcome{
		{authcore.MetricRefreshSuccess, "refreshed"},
		{authcore.MetricRefreshFailure, "refresh_failed"},
		{authcore.MetricTokenInvalid, "invalid"},
	}},
	{name: "authcore.code", help: "Authorization codes by outcome.", outcomes: []outcome{
		{authcore.MetricCodeIssued, "issued"},
		{authcore.MetricCodeExchanged, "exchanged"},
		{authcore.MetricCodeInvalid, "invalid"},
		{authcore.MetricCodeRateLimited, "rate_limited"},
	}},
	{name: "authcore.password", help: "Password rehashes and resets by outcome.", outcomes: []outcome{
		{authcore.MetricPasswordUpgraded, "upgraded"},
		{authcore.MetricPasswordResetRequest, "reset_requested"},
		{authcore.MetricPasswordResetMailFailure, "reset_mail_failed"},
		{authcore.MetricPasswordResetRateLimited, "reset_rate_limited"},
		{authcore.MetricPasswordResetConfirmSuccess, "reset_confirmed"},
		{authcore.MetricPasswordResetConfirmFailure, "reset_rejected"},
	}},
	{name: "authcore.rate_limit", help: "Requests denied by any rate limit.", outcomes: []outcome{
		{authcore.MetricRateLimitHit, "denied"},
	}},
}

type observedFlow struct {
	instrument metric.Int64ObservableCounter
	ids        []authcore.MetricID
	attrs      []metric.ObserveOption
}

// OTelExporter observes engine metrics through a single registered callback.
type OTelExporter struct {
	source       metricsSource
	registration metric.Registration
	flows        []observedFlow
	bucketAttrs  []metric.ObserveOption
	latency      metric.Int64ObservableGauge
	latencyCount metric.Int64ObservableGauge
	auditDropped metric.Int64ObservableCounter
}

// NewOTelExporter registers one counter per engine flow, the validation
// latency gauges and the dropped audit counter on meter.
func NewOTelExporter(meter metric.Meter, engine *authcore.Engine) (*OTelExporter, error) {
	return NewOTelExporterFromSource(meter, engine)
}

func NewOTelExporterFromSource(meter metric.Meter, source metricsSource) (*OTelExporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	exporter := &OTelExporter{source: source}
	observables := make([]metric.Observable, 0, len(flows)+3)

	for _, f := range flows {
		ins, err := meter.Int64ObservableCounter(f.name, metric.WithDescription(f.help))
		if err != nil {
			return nil, fmt.Errorf("create flow counter %s: %w", f.name, err)
		}
		observed := observedFlow{instrument: ins}
		for _, o := range f.outcomes {
			observed.ids = append(observed.ids, o.id)
			observed.attrs = append(observed.attrs, metric.WithAttributes(outcomeKey.String(o.value)))
		}
		exporter.flows = append(exporter.flows, observed)
		observables = append(observables, ins)
	}

	for _, suffix := range internaldefs.HistogramBoundSuffix {
		exporter.bucketAttrs = append(exporter.bucketAttrs, metric.WithAttributes(boundKey.String(suffix)))
	}

	var err error
	if exporter.latency, err = meter.Int64ObservableGauge(latencyBucketName,
		metric.WithDescription("Cumulative access token validations at or under each bound."),
	); err != nil {
		return nil, fmt.Errorf("create latency bucket gauge: %w", err)
	}
	if exporter.latencyCount, err = meter.Int64ObservableGauge(latencyCountName,
		metric.WithDescription("Access token validations timed."),
	); err != nil {
		return nil, fmt.Errorf("create latency count gauge: %w", err)
	}
	if exporter.auditDropped, err = meter.Int64ObservableCounter(auditDroppedName,
		metric.WithDescription(internaldefs.AuditDroppedHelp),
	); err != nil {
		return nil, fmt.Errorf("create audit dropped counter: %w", err)
	}
	observables = append(observables, exporter.latency, exporter.latencyCount, exporter.auditDropped)

	exporter.registration, err = meter.RegisterCallback(exporter.observe, observables...)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}
	return exporter, nil
}

func (e *OTelExporter) observe(_ context.Context, observer metric.Observer) error {
	snapshot := e.source.MetricsSnapshot()

	for _, f := range e.flows {
		for i, id := range f.ids {
			observer.ObserveInt64(f.instrument, int64(snapshot.Counters[id]), f.attrs[i])
		}
	}

	buckets := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(snapshot.Histograms[authcore.MetricValidateLatency]))
	for i, count := range buckets {
		observer.ObserveInt64(e.latency, int64(count), e.bucketAttrs[i])
	}
	observer.ObserveInt64(e.latencyCount, int64(buckets[len(buckets)-1]))

	observer.ObserveInt64(e.auditDropped, int64(e.source.AuditDropped()))
	return nil
}

// Close unregisters the callback; instruments stay with the meter.
func (e *OTelExporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
