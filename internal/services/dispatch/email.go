package dispatch

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	mail "github.com/wneessen/go-mail"
	"golang.org/x/time/rate"

	"billwatch/internal/domain"
	"billwatch/pkg/logx"
)

// EmailGateway abstracts the SMTP client so tests can stub delivery. It
// returns a provider message id for logging.
type EmailGateway interface {
	Send(ctx context.Context, to, subject, htmlBody string) (string, error)
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPGateway delivers reminder mail through a single SMTP account using
// one short-lived connection per message.
type SMTPGateway struct {
	cfg SMTPConfig
}

func NewSMTPGateway(cfg SMTPConfig) *SMTPGateway {
	return &SMTPGateway{cfg: cfg}
}

func (g *SMTPGateway) Send(ctx context.Context, to, subject, htmlBody string) (string, error) {
	opts := []mail.Option{
		mail.WithPort(g.cfg.Port),
		mail.WithTimeout(30 * time.Second),
	}
	if g.cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(g.cfg.Username),
			mail.WithPassword(g.cfg.Password),
			mail.WithTLSPolicy(mail.TLSMandatory),
		)
	}
	client, err := mail.NewClient(g.cfg.Host, opts...)
	if err != nil {
		return "", fmt.Errorf("smtp client: %w", err)
	}

	msg := mail.NewMsg()
	if err := msg.From(g.cfg.From); err != nil {
		return "", fmt.Errorf("from address: %w", err)
	}
	if err := msg.To(to); err != nil {
		return "", fmt.Errorf("to address: %w", err)
	}
	msg.Subject(subject)
	msg.SetMessageID()
	msg.SetBodyString(mail.TypeTextHTML, htmlBody)

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return "", fmt.Errorf("send mail: %w", err)
	}
	return msg.GetMessageID(), nil
}

// EmailSender is the email channel. The obligation's own notify address wins
// over the user's account address.
type EmailSender struct {
	log     logx.Logger
	gw      EmailGateway
	fmt     *Formatter
	limiter *rate.Limiter
	now     func() time.Time
}

func NewEmailSender(log logx.Logger, gw EmailGateway, f *Formatter, perSec float64) *EmailSender {
	var lim *rate.Limiter
	if perSec > 0 {
		lim = rate.NewLimiter(rate.Limit(perSec), 1)
	}
	return &EmailSender{log: log, gw: gw, fmt: f, limiter: lim, now: time.Now}
}

func (s *EmailSender) Channel() domain.Channel { return domain.ChannelEmail }

func (s *EmailSender) Send(ctx context.Context, ob *domain.Obligation, u *domain.User) Result {
	if s.gw == nil {
		return failure("not configured")
	}
	to := strings.TrimSpace(ob.NotifyEmail)
	if to == "" && u != nil {
		to = strings.TrimSpace(u.Email)
	}
	if to == "" {
		return failure("no email address on obligation or user")
	}

	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return failure(fmt.Sprintf("rate wait: %v", err))
		}
	}

	now := s.now()
	subject := s.fmt.Subject(ob, now)
	body := emailBody(s.fmt, ob, now)

	id, err := s.gw.Send(ctx, to, subject, body)
	if err != nil {
		return failure(err.Error())
	}
	s.log.Debug("reminder email sent",
		logx.String("obligation_id", ob.ID), logx.String("message_id", id))
	return ok(id)
}

// emailBody renders the HTML body. Title, category and notes are
// user-entered, so everything interpolated here is escaped.
func emailBody(f *Formatter, ob *domain.Obligation, now time.Time) string {
	var b strings.Builder
	b.WriteString("<p>")
	b.WriteString(html.EscapeString(f.Body(ob, now)))
	b.WriteString("</p>")
	if ob.Category != "" {
		fmt.Fprintf(&b, "<p>Category: %s</p>", html.EscapeString(ob.Category))
	}
	if ob.Notes != "" {
		fmt.Fprintf(&b, "<p>%s</p>", html.EscapeString(ob.Notes))
	}
	return b.String()
}
