package dispatch

import (
	"context"

	"billwatch/internal/domain"
)

// Result is the outcome of one channel delivery attempt.
type Result struct {
	OK     bool
	Detail string
}

// Aggregate collects per-channel results for a single reminder. A nil channel
// result means the obligation did not request that channel. OverallSuccess
// reports that dispatch ran to completion, not that every channel delivered;
// individual failures are visible on the per-channel results.
type Aggregate struct {
	Email *Result
	Push  *Result
	InApp *Result

	OverallSuccess bool
}

// Sender delivers a reminder over one channel. Implementations must not
// panic; the dispatcher recovers anyway and converts a panic into a failed
// Result, but a panicking sender is a bug.
type Sender interface {
	Channel() domain.Channel
	Send(ctx context.Context, ob *domain.Obligation, u *domain.User) Result
}

func ok(detail string) Result      { return Result{OK: true, Detail: detail} }
func failure(detail string) Result { return Result{OK: false, Detail: detail} }
