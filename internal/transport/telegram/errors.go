package telegram

import (
	"context"
	"errors"
	"strings"

	tele "gopkg.in/telebot.v4"

	"castbot/internal/broadcast"
)

// permanentMarkers are Bot API descriptions that no retry will fix for the
// target in question.
var permanentMarkers = []string{
	"chat not found",
	"bot was blocked",
	"bot was kicked",
	"user is deactivated",
	"not enough rights",
	"have no rights",
	"need administrator rights",
	"chat_write_forbidden",
	"group chat was upgraded",
	"peer_id_invalid",
	"message thread not found",
}

// Classify maps a Bot API failure onto the broadcast engine's error classes:
// a rejected token stops the whole dispatch, target-specific rejections are
// not retried, everything else is left transient.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	code := 0
	var te *tele.Error
	if errors.As(err, &te) {
		code = te.Code
	}
	msg := strings.ToLower(err.Error())

	switch {
	case code == 401 || strings.Contains(msg, "unauthorized"):
		return broadcast.Unrecoverable(err)
	case code == 429 || strings.Contains(msg, "too many requests") || strings.Contains(msg, "retry after"):
		return err
	case code == 403 || strings.Contains(msg, "forbidden"):
		return broadcast.Permanent(err)
	}
	for _, m := range permanentMarkers {
		if strings.Contains(msg, m) {
			return broadcast.Permanent(err)
		}
	}
	return err
}
