package notifier

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// CommandHandler answers an operator command such as "/status". An empty reply sends nothing.
type CommandHandler func(command string) string

const (
	pollTimeout    = 30 * time.Second
	maxPollBackoff = time.Minute
)

type update struct {
	UpdateID int64 `json:"update_id"`
	Message  *struct {
		MessageID int64  `json:"message_id"`
		Text      string `json:"text"`
		Chat      struct {
			ID int64 `json:"id"`
		} `json:"chat"`
	} `json:"message"`
}

type getUpdates struct {
	Offset         int64    `json:"offset"`
	Timeout        int      `json:"timeout"`
	AllowedUpdates []string `json:"allowed_updates"`
}

// StartPolling long-polls for commands until ctx is cancelled. Only messages from the
// configured chat are handled: commands such as /claim move reserve funds.
func (b *Bot) StartPolling(ctx context.Context, handler CommandHandler) {
	client := &http.Client{Timeout: pollTimeout + 5*time.Second, Transport: b.client.Transport}
	var offset int64
	backoff := b.backoff

	for ctx.Err() == nil {
		var updates []update
		err := b.call(ctx, client, "getUpdates", getUpdates{
			Offset:         offset,
			Timeout:        int(pollTimeout / time.Second),
			AllowedUpdates: []string{"message"},
		}, &updates)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			b.log.Warn("poll failed", zap.Duration("retry_in", backoff), zap.Error(err))
			if sleep(ctx, backoff) != nil {
				break
			}
			backoff *= 2
			if backoff > maxPollBackoff {
				backoff = maxPollBackoff
			}
			continue
		}
		backoff = b.backoff

		for _, u := range updates {
			offset = u.UpdateID + 1
			b.dispatch(ctx, u, handler)
		}
	}
	b.log.Info("polling stopped")
}

func (b *Bot) dispatch(ctx context.Context, u update, handler CommandHandler) {
	msg := u.Message
	if msg == nil || !strings.HasPrefix(msg.Text, "/") {
		return
	}
	if strconv.FormatInt(msg.Chat.ID, 10) != b.chatID {
		b.log.Warn("ignoring command from foreign chat", zap.Int64("chat", msg.Chat.ID), zap.String("text", msg.Text))
		return
	}
	command := normalizeCommand(msg.Text)
	b.log.Info("received command", zap.String("command", command))
	if reply := handler(command); reply != "" {
		if err := b.send(ctx, reply, msg.MessageID); err != nil {
			b.log.Error("send reply", zap.String("command", command), zap.Error(err))
		}
	}
}

// normalizeCommand strips the "@botname" suffix group chats add to the command word.
func normalizeCommand(text string) string {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return ""
	}
	if i := strings.IndexByte(fields[0], '@'); i > 0 {
		fields[0] = fields[0][:i]
	}
	return strings.Join(fields, " ")
}
