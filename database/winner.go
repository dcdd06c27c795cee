package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
	"go.opentelemetry.io/otel"

	"github.com/alafleur/finboost-payouts/internal/apierror"
	"github.com/alafleur/finboost-payouts/model"
)

const winnerColumns = `id, cycle_id, user_id, COALESCE(paypal_email, ''), COALESCE(snapshot_email, ''),
		payout_calculated, payout_override, payout_final, payout_status, notification_displayed`

// eligibleWinnerFilter selects winners that can be paid: an email exists
// (live profile or selection-time snapshot) and the winner is not already
// covered by a live item in a non-cancelled batch. A previously failed item
// does not block a new attempt at paying the winner.
const eligibleWinnerFilter = `
	(COALESCE(w.paypal_email, '') <> '' OR COALESCE(w.snapshot_email, '') <> '')
	AND NOT EXISTS (
		SELECT 1
		FROM payout_batch_items i
		JOIN payout_batches b ON b.batch_id = i.batch_id
		WHERE i.winner_selection_id = w.id
			AND b.status <> 'cancelled'
			AND i.status <> 'failed'
	)`

// GetEligibleWinners returns all payable winners for a cycle.
func (d Datasource) GetEligibleWinners(ctx context.Context, cycleID int64) ([]*model.WinnerSelection, error) {
	ctx, span := otel.Tracer("payout.eligibility").Start(ctx, "Fetching eligible winners")
	defer span.End()

	rows, err := d.Conn.QueryContext(ctx, `
		SELECT `+winnerColumns+`
		FROM cycle_winner_selections w
		WHERE w.cycle_id = $1 AND `+eligibleWinnerFilter+`
		ORDER BY w.id
	`, cycleID)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve eligible winners", err)
	}
	defer rows.Close()
	return scanWinners(rows)
}

// GetWinnersByIDs returns the requested winner rows for a cycle. Ids that do
// not exist in the cycle are simply absent from the result; the caller
// reports them as skipped.
func (d Datasource) GetWinnersByIDs(ctx context.Context, cycleID int64, ids []int64) ([]*model.WinnerSelection, error) {
	ctx, span := otel.Tracer("payout.eligibility").Start(ctx, "Fetching winners by ids")
	defer span.End()

	rows, err := d.Conn.QueryContext(ctx, `
		SELECT `+winnerColumns+`
		FROM cycle_winner_selections w
		WHERE w.cycle_id = $1 AND w.id = ANY($2)
		ORDER BY w.id
	`, cycleID, pq.Array(ids))
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve winners by ids", err)
	}
	defer rows.Close()
	return scanWinners(rows)
}

func scanWinners(rows *sql.Rows) ([]*model.WinnerSelection, error) {
	var winners []*model.WinnerSelection
	for rows.Next() {
		w := &model.WinnerSelection{}
		err := rows.Scan(
			&w.ID, &w.CycleID, &w.UserID, &w.PaypalEmail, &w.SnapshotEmail,
			&w.PayoutCalculated, &w.PayoutOverride, &w.PayoutFinal,
			&w.PayoutStatus, &w.NotificationDisplayed,
		)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan winner selection", err)
		}
		winners = append(winners, w)
	}
	return winners, nil
}

// CountEligibleWinners returns how many winners of a cycle are currently
// payable. Backs the eligible-count helper endpoint polled by the admin UI.
func (d Datasource) CountEligibleWinners(ctx context.Context, cycleID int64) (int, error) {
	ctx, span := otel.Tracer("payout.eligibility").Start(ctx, "Counting eligible winners")
	defer span.End()

	var count int
	err := d.Conn.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM cycle_winner_selections w
		WHERE w.cycle_id = $1 AND `+eligibleWinnerFilter+`
	`, cycleID).Scan(&count)
	if err != nil {
		return 0, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to count eligible winners", err)
	}
	return count, nil
}

// GetWinnerStatus returns the user-facing winner/payout view for a cycle.
// A user who is not a winner gets IsWinner=false rather than an error.
func (d Datasource) GetWinnerStatus(ctx context.Context, userID, cycleID int64) (*model.WinnerStatus, error) {
	ctx, span := otel.Tracer("payout.notification").Start(ctx, "Fetching winner status")
	defer span.End()

	status := &model.WinnerStatus{}
	err := d.Conn.QueryRowContext(ctx, `
		SELECT payout_status, notification_displayed, payout_final
		FROM cycle_winner_selections
		WHERE user_id = $1 AND cycle_id = $2
	`, userID, cycleID).Scan(&status.PayoutStatus, &status.NotificationDisplayed, &status.Amount)
	if err != nil {
		if err == sql.ErrNoRows {
			return &model.WinnerStatus{IsWinner: false}, nil
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve winner status", err)
	}
	status.IsWinner = true
	return status, nil
}

// HasUnseenPayoutOutcome reports whether the user has a terminal payout
// outcome for the cycle that has not been shown yet.
func (d Datasource) HasUnseenPayoutOutcome(ctx context.Context, userID, cycleID int64) (bool, error) {
	ctx, span := otel.Tracer("payout.notification").Start(ctx, "Checking for unseen payout outcome")
	defer span.End()

	var unseen bool
	err := d.Conn.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1
			FROM cycle_winner_selections
			WHERE user_id = $1 AND cycle_id = $2
				AND payout_status IN ($3, $4)
				AND notification_displayed = FALSE
		)
	`, userID, cycleID, model.PayoutStatusCompleted, model.PayoutStatusFailed).Scan(&unseen)
	if err != nil {
		return false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to check payout notification", err)
	}
	return unseen, nil
}

// MarkPayoutNotificationSeen flips the notification flag. Dismissing twice is
// a no-op, not an error.
func (d Datasource) MarkPayoutNotificationSeen(ctx context.Context, userID, cycleID int64) error {
	ctx, span := otel.Tracer("payout.notification").Start(ctx, "Dismissing payout notification")
	defer span.End()

	_, err := d.Conn.ExecContext(ctx, `
		UPDATE cycle_winner_selections
		SET notification_displayed = TRUE
		WHERE user_id = $1 AND cycle_id = $2
	`, userID, cycleID)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer,
			fmt.Sprintf("Failed to dismiss payout notification for user %d", userID), err)
	}
	return nil
}
