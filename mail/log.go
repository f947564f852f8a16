package mail

import (
	"context"
	"log/slog"

	"github.com/MrEthical07/authcore"
	"github.com/google/uuid"
)

// LogDispatcher writes mails to a logger instead of sending them. The body
// is logged in full, reset links included, so keep it out of production.
type LogDispatcher struct {
	logger *slog.Logger
}

var _ authcore.MailDispatcher = (*LogDispatcher)(nil)

func NewLogDispatcher(logger *slog.Logger) *LogDispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogDispatcher{logger: logger}
}

func (d *LogDispatcher) Send(ctx context.Context, to, subject, htmlBody string) (authcore.MailResult, error) {
	if to == "" {
		return authcore.MailResult{}, ErrNoRecipient
	}
	id := uuid.NewString()
	d.logger.InfoContext(ctx, "mail",
		slog.String("message_id", id),
		slog.String("to", to),
		slog.String("subject", subject),
		slog.String("body", htmlBody),
	)
	return authcore.MailResult{MessageID: id, Accepted: []string{to}}, nil
}
