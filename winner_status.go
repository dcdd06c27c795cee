/*
Copyright 2025 FinBoost Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package payouts

import (
	"context"

	"go.opentelemetry.io/otel"

	"github.com/alafleur/finboost-payouts/model"
)

// GetWinnerStatus returns the user-facing payout view for a cycle. A user who
// is not a winner gets IsWinner=false rather than an error.
func (p *Payouts) GetWinnerStatus(ctx context.Context, userID, cycleID int64) (*model.WinnerStatus, error) {
	return p.datasource.GetWinnerStatus(ctx, userID, cycleID)
}

// ShouldNotifyPayout reports whether the user has a settled payout outcome
// they have not yet seen. The celebration/commiseration banner in the UI
// shows exactly once per outcome; this is its gate.
func (p *Payouts) ShouldNotifyPayout(ctx context.Context, userID, cycleID int64) (bool, error) {
	ctx, span := otel.Tracer("payouts.notification").Start(ctx, "ShouldNotifyPayout")
	defer span.End()

	return p.datasource.HasUnseenPayoutOutcome(ctx, userID, cycleID)
}

// DismissPayoutNotification marks the user's payout outcome as seen.
// Dismissing an already-seen (or nonexistent) notification is a no-op.
func (p *Payouts) DismissPayoutNotification(ctx context.Context, userID, cycleID int64) error {
	ctx, span := otel.Tracer("payouts.notification").Start(ctx, "DismissPayoutNotification")
	defer span.End()

	return p.datasource.MarkPayoutNotificationSeen(ctx, userID, cycleID)
}
