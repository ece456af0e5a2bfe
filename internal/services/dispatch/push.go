package dispatch

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"golang.org/x/time/rate"
	tb "gopkg.in/telebot.v4"

	"billwatch/internal/domain"
	"billwatch/pkg/logx"
)

// PushGateway abstracts the bot transport behind the push channel. It
// returns the provider message id for the dispatch result.
type PushGateway interface {
	Push(ctx context.Context, chatID int64, text string, obligationID string) (string, error)
}

// TelegramGateway delivers push reminders as Telegram messages. The routing
// tag is the user's chat id; the attached button lets the client deep-link
// back to the obligation.
type TelegramGateway struct {
	bot *tb.Bot
}

func NewTelegramGateway(token string) (*TelegramGateway, error) {
	bot, err := tb.NewBot(tb.Settings{
		Token:  token,
		Poller: &tb.LongPoller{Timeout: 10 * time.Second},
	})
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	return &TelegramGateway{bot: bot}, nil
}

func (g *TelegramGateway) Push(ctx context.Context, chatID int64, text string, obligationID string) (string, error) {
	markup := &tb.ReplyMarkup{
		InlineKeyboard: [][]tb.InlineButton{{
			{Text: "View", Data: "obligation:" + obligationID},
		}},
	}
	msg, err := g.bot.Send(tb.ChatID(chatID), text, markup)
	if err != nil {
		return "", err
	}
	return strconv.Itoa(msg.ID), nil
}

type PushSender struct {
	log     logx.Logger
	gw      PushGateway
	fmt     *Formatter
	limiter *rate.Limiter
	now     func() time.Time
}

func NewPushSender(log logx.Logger, gw PushGateway, f *Formatter, perSec float64) *PushSender {
	var lim *rate.Limiter
	if perSec > 0 {
		lim = rate.NewLimiter(rate.Limit(perSec), 1)
	}
	return &PushSender{log: log, gw: gw, fmt: f, limiter: lim, now: time.Now}
}

func (s *PushSender) Channel() domain.Channel { return domain.ChannelPush }

func (s *PushSender) Send(ctx context.Context, ob *domain.Obligation, u *domain.User) Result {
	if s.gw == nil {
		return failure("not configured")
	}
	if u == nil || u.TelegramChatID == 0 {
		return failure("user has no push destination")
	}

	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return failure(fmt.Sprintf("rate wait: %v", err))
		}
	}

	now := s.now()
	text := s.fmt.Subject(ob, now) + "\n" + s.fmt.Body(ob, now)
	id, err := s.gw.Push(ctx, u.TelegramChatID, text, ob.ID)
	if err != nil {
		return failure(err.Error())
	}
	s.log.Debug("reminder push sent",
		logx.String("obligation_id", ob.ID), logx.Int64("chat_id", u.TelegramChatID),
		logx.String("message_id", id))
	return ok(id)
}
