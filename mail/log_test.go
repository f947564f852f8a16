package mail

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogDispatcher(t *testing.T) {
	var buf bytes.Buffer
	d := NewLogDispatcher(slog.New(slog.NewJSONHandler(&buf, nil)))

	res, err := d.Send(context.Background(), "a@x.com", "Reset Password", "<a href=\"x\">x</a>")
	require.NoError(t, err)
	assert.True(t, res.Delivered())
	assert.Contains(t, buf.String(), `"subject":"Reset Password"`)
	assert.Contains(t, buf.String(), res.MessageID)

	_, err = d.Send(context.Background(), "", "s", "b")
	assert.ErrorIs(t, err, ErrNoRecipient)
}
