package bot

import (
	"context"
	"errors"
	"sync/atomic"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/funnelbot/core/telegram/sender"
)

// ErrNotAttached is returned when a send is attempted before the bot
// runtime is up.
var ErrNotAttached = errors.New("bot: gateway not attached")

// Gateway delivers funnel messages by user id. Postbacks and follow-up
// timers send outside of any update context, so the gateway holds the
// bot handle set once the runtime starts. Sends go through the async
// dispatcher when one is attached.
type Gateway struct {
	bot  atomic.Pointer[tele.Bot]
	disp atomic.Pointer[sender.Dispatcher]
}

// NewGateway creates a detached gateway. Attach must be called from the
// runtime start hook before the first send.
func NewGateway() *Gateway {
	return &Gateway{}
}

// Attach wires the live bot and dispatcher.
func (g *Gateway) Attach(b *tele.Bot, d *sender.Dispatcher) {
	g.bot.Store(b)
	if d != nil {
		g.disp.Store(d)
	}
}

// Send delivers text with an optional markup to the user's private chat.
func (g *Gateway) Send(ctx context.Context, userID int64, text string, markup *tele.ReplyMarkup) error {
	b := g.bot.Load()
	if b == nil {
		return ErrNotAttached
	}

	run := func() error {
		to := &tele.User{ID: userID}
		var err error
		if markup != nil {
			_, err = b.Send(to, text, markup)
		} else {
			_, err = b.Send(to, text)
		}
		return err
	}

	d := g.disp.Load()
	if d == nil {
		return run()
	}
	if err := d.Enqueue(ctx, "send.text", "sendMessage", run); err != nil {
		if errors.Is(err, sender.ErrQueueFull) || errors.Is(err, sender.ErrQueueClosed) {
			return run()
		}
		return err
	}
	return nil
}
