// Package dispatch fans a due-bill reminder out to the channels an
// obligation asks for. Each channel has its own Sender; a failing or
// misconfigured channel never blocks the others.
package dispatch

import (
	"context"
	"fmt"

	"billwatch/internal/domain"
	"billwatch/pkg/logx"
)

type Dispatcher struct {
	log     logx.Logger
	senders map[domain.Channel]Sender
}

func New(log logx.Logger, senders ...Sender) *Dispatcher {
	m := make(map[domain.Channel]Sender, len(senders))
	for _, s := range senders {
		m[s.Channel()] = s
	}
	return &Dispatcher{log: log, senders: m}
}

// Dispatch sends the reminder on every channel the obligation requests.
// Channels the obligation did not request stay nil in the Aggregate.
// OverallSuccess is true once all requested channels were attempted.
func (d *Dispatcher) Dispatch(ctx context.Context, ob *domain.Obligation, u *domain.User) Aggregate {
	var agg Aggregate
	for _, ch := range ob.Channels {
		sender, found := d.senders[ch]
		var res Result
		if !found {
			res = failure("no sender for channel")
		} else {
			res = d.sendOne(ctx, sender, ob, u)
		}
		if !res.OK {
			d.log.Warn("channel delivery failed",
				logx.String("obligation_id", ob.ID),
				logx.String("channel", string(ch)),
				logx.String("detail", res.Detail))
		}
		switch ch {
		case domain.ChannelEmail:
			agg.Email = &res
		case domain.ChannelPush:
			agg.Push = &res
		case domain.ChannelInApp:
			agg.InApp = &res
		}
	}
	agg.OverallSuccess = true
	return agg
}

func (d *Dispatcher) sendOne(ctx context.Context, s Sender, ob *domain.Obligation, u *domain.User) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			res = failure(fmt.Sprintf("sender panic: %v", r))
			d.log.Error("panic in channel sender",
				logx.String("channel", string(s.Channel())), logx.Any("panic", r))
		}
	}()
	return s.Send(ctx, ob, u)
}
