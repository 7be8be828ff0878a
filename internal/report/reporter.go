// Package report is the out-of-band error reporter: it logs a pipeline
// failure and makes a best-effort attempt to tell the user, bypassing the
// normal reply path.
package report

import (
	"context"

	"github.com/rs/zerolog"
)

const failureReply = "Sorry, something went wrong while processing your message. Please try again in a moment."

// Notifier sends a text to the user.
type Notifier interface {
	SendText(ctx context.Context, phoneNumberID, to, body string) error
}

// Reporter carries the notifier and logger.
type Reporter struct {
	Notifier Notifier
	Log      zerolog.Logger
}

// Report logs err with the sender context and notifies the user when enough
// routing information is available. Notification failures are logged and
// swallowed; reporting never fails.
func (r *Reporter) Report(ctx context.Context, err error, waID, phoneNumberID string) {
	r.Log.Error().Err(err).Str("wa_id", waID).Msg("pipeline failure")
	if waID == "" || phoneNumberID == "" {
		return
	}
	if sendErr := r.Notifier.SendText(ctx, phoneNumberID, waID, failureReply); sendErr != nil {
		r.Log.Error().Err(sendErr).Str("wa_id", waID).Msg("failure notification not delivered")
	}
}
