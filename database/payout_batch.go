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

const batchColumns = `batch_id, cycle_id, sender_batch_id, request_checksum, attempt, status,
		COALESCE(paypal_batch_id, ''), total_amount, total_recipients,
		successful_count, failed_count, pending_count, COALESCE(admin_id, 0), created_at, updated_at`

// CreateBatchWithItems inserts one batch row plus all of its item rows in a
// single transaction, so no reader ever observes a batch with zero items.
// A unique violation on sender_batch_id surfaces as a CONFLICT: that request
// is already in flight and must not be retried with a new id.
func (d Datasource) CreateBatchWithItems(ctx context.Context, batch *model.PayoutBatch, items []*model.PayoutBatchItem) error {
	ctx, span := otel.Tracer("payout.batch").Start(ctx, "Creating payout batch with items")
	defer span.End()

	tx, err := d.Conn.BeginTx(ctx, nil)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to begin transaction", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO payout_batches(
			batch_id, cycle_id, sender_batch_id, request_checksum, attempt, status,
			total_amount, total_recipients, pending_count, admin_id, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)`,
		batch.BatchID, batch.CycleID, batch.SenderBatchID, batch.RequestChecksum,
		batch.Attempt, batch.Status, batch.TotalAmount, batch.TotalRecipients,
		batch.PendingCount, batch.AdminID, batch.CreatedAt,
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return apierror.NewAPIError(apierror.ErrConflict,
				fmt.Sprintf("Batch with sender_batch_id '%s' already exists", batch.SenderBatchID), err)
		}
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to create payout batch", err)
	}

	for _, item := range items {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO payout_batch_items(
				item_id, batch_id, winner_selection_id, user_id, paypal_email,
				amount, currency, status, created_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			item.ItemID, item.BatchID, item.WinnerSelectionID, item.UserID,
			item.PaypalEmail, item.Amount, item.Currency, item.Status, item.CreatedAt,
		)
		if err != nil {
			return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to create payout batch item", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to commit payout batch", err)
	}
	return nil
}

// GetBatch retrieves a payout batch by its public id.
func (d Datasource) GetBatch(ctx context.Context, batchID string) (*model.PayoutBatch, error) {
	ctx, span := otel.Tracer("payout.batch").Start(ctx, "Fetching payout batch from db")
	defer span.End()

	row := d.Conn.QueryRowContext(ctx, `
		SELECT `+batchColumns+`
		FROM payout_batches
		WHERE batch_id = $1
	`, batchID)
	return scanBatch(row, batchID)
}

// GetBatchBySenderBatchID retrieves a payout batch by its PayPal-facing id.
func (d Datasource) GetBatchBySenderBatchID(ctx context.Context, senderBatchID string) (*model.PayoutBatch, error) {
	ctx, span := otel.Tracer("payout.batch").Start(ctx, "Fetching payout batch by sender batch id")
	defer span.End()

	row := d.Conn.QueryRowContext(ctx, `
		SELECT `+batchColumns+`
		FROM payout_batches
		WHERE sender_batch_id = $1
	`, senderBatchID)
	return scanBatch(row, senderBatchID)
}

func scanBatch(row *sql.Row, id string) (*model.PayoutBatch, error) {
	batch := &model.PayoutBatch{}
	err := row.Scan(
		&batch.BatchID, &batch.CycleID, &batch.SenderBatchID, &batch.RequestChecksum,
		&batch.Attempt, &batch.Status, &batch.PayPalBatchID, &batch.TotalAmount,
		&batch.TotalRecipients, &batch.SuccessfulCount, &batch.FailedCount,
		&batch.PendingCount, &batch.AdminID, &batch.CreatedAt, &batch.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Payout batch '%s' not found", id), err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve payout batch", err)
	}
	return batch, nil
}

// GetBatchItems retrieves all items belonging to a batch.
func (d Datasource) GetBatchItems(ctx context.Context, batchID string) ([]*model.PayoutBatchItem, error) {
	ctx, span := otel.Tracer("payout.batch").Start(ctx, "Fetching payout batch items")
	defer span.End()

	rows, err := d.Conn.QueryContext(ctx, `
		SELECT item_id, batch_id, winner_selection_id, user_id, paypal_email, amount, currency,
			status, COALESCE(paypal_item_id, ''), COALESCE(error_code, ''), COALESCE(error_message, ''),
			processed_at, created_at
		FROM payout_batch_items
		WHERE batch_id = $1
		ORDER BY id
	`, batchID)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve payout batch items", err)
	}
	defer rows.Close()

	var items []*model.PayoutBatchItem
	for rows.Next() {
		item := &model.PayoutBatchItem{}
		var processedAt sql.NullTime
		err = rows.Scan(
			&item.ItemID, &item.BatchID, &item.WinnerSelectionID, &item.UserID,
			&item.PaypalEmail, &item.Amount, &item.Currency, &item.Status,
			&item.PayPalItemID, &item.ErrorCode, &item.ErrorMessage,
			&processedAt, &item.CreatedAt,
		)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan payout batch item", err)
		}
		if processedAt.Valid {
			item.ProcessedAt = &processedAt.Time
		}
		items = append(items, item)
	}
	return items, nil
}

// GetBatchesByCycle retrieves every batch recorded against a cycle, newest first.
func (d Datasource) GetBatchesByCycle(ctx context.Context, cycleID int64) ([]*model.PayoutBatch, error) {
	ctx, span := otel.Tracer("payout.batch").Start(ctx, "Fetching payout batches by cycle")
	defer span.End()

	return d.queryBatches(ctx, `
		SELECT `+batchColumns+`
		FROM payout_batches
		WHERE cycle_id = $1
		ORDER BY created_at DESC
	`, cycleID)
}

// GetBatchesByChecksum retrieves all attempts recorded for one canonical
// request. The disbursement path uses this to decide between "duplicate in
// flight" and "new attempt after cancellation".
func (d Datasource) GetBatchesByChecksum(ctx context.Context, cycleID int64, checksum string) ([]*model.PayoutBatch, error) {
	ctx, span := otel.Tracer("payout.batch").Start(ctx, "Fetching payout batches by checksum")
	defer span.End()

	return d.queryBatches(ctx, `
		SELECT `+batchColumns+`
		FROM payout_batches
		WHERE cycle_id = $1 AND request_checksum = $2
		ORDER BY attempt DESC
	`, cycleID, checksum)
}

func (d Datasource) queryBatches(ctx context.Context, query string, args ...interface{}) ([]*model.PayoutBatch, error) {
	rows, err := d.Conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve payout batches", err)
	}
	defer rows.Close()

	var batches []*model.PayoutBatch
	for rows.Next() {
		batch := &model.PayoutBatch{}
		err = rows.Scan(
			&batch.BatchID, &batch.CycleID, &batch.SenderBatchID, &batch.RequestChecksum,
			&batch.Attempt, &batch.Status, &batch.PayPalBatchID, &batch.TotalAmount,
			&batch.TotalRecipients, &batch.SuccessfulCount, &batch.FailedCount,
			&batch.PendingCount, &batch.AdminID, &batch.CreatedAt, &batch.UpdatedAt,
		)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan payout batch", err)
		}
		batches = append(batches, batch)
	}
	return batches, nil
}

// UpdateBatchSubmitted transitions a draft batch to submitted and records the
// PayPal batch id assigned on acceptance.
func (d Datasource) UpdateBatchSubmitted(ctx context.Context, batchID, paypalBatchID string) error {
	ctx, span := otel.Tracer("payout.batch").Start(ctx, "Marking payout batch submitted")
	defer span.End()

	result, err := d.Conn.ExecContext(ctx, `
		UPDATE payout_batches
		SET status = $2, paypal_batch_id = $3, updated_at = NOW()
		WHERE batch_id = $1 AND status = $4
	`, batchID, model.BatchStatusSubmitted, paypalBatchID, model.BatchStatusDraft)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to mark payout batch submitted", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return apierror.NewAPIError(apierror.ErrConflict,
			fmt.Sprintf("Payout batch '%s' is not in draft", batchID), nil)
	}
	return nil
}

// UpdateBatchStatus applies a status-only transition (failed, cancelled).
func (d Datasource) UpdateBatchStatus(ctx context.Context, batchID, status string) error {
	ctx, span := otel.Tracer("payout.batch").Start(ctx, "Updating payout batch status")
	defer span.End()

	result, err := d.Conn.ExecContext(ctx, `
		UPDATE payout_batches
		SET status = $2, updated_at = NOW()
		WHERE batch_id = $1
	`, batchID, status)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to update payout batch status", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return apierror.NewAPIError(apierror.ErrNotFound,
			fmt.Sprintf("Payout batch '%s' not found", batchID), nil)
	}
	return nil
}

// ApplyReconciliation applies one reconciliation pass inside a single
// transaction: per-item outcomes, reward creation, winner status write-backs,
// batch aggregates, and cycle completion. Either the whole pass lands or none
// of it does, so a failed pass can always be retried safely. Re-applying the
// same outcomes writes the same values and creates no additional rewards.
func (d Datasource) ApplyReconciliation(ctx context.Context, batchID string, outcomes []model.ItemOutcome) (*model.ReconciliationApplied, error) {
	ctx, span := otel.Tracer("payout.reconciliation").Start(ctx, "Applying reconciliation pass")
	defer span.End()

	tx, err := d.Conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to begin reconciliation transaction", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var cycleID int64
	var batchStatus string
	err = tx.QueryRowContext(ctx, `
		SELECT cycle_id, status FROM payout_batches WHERE batch_id = $1 FOR UPDATE
	`, batchID).Scan(&cycleID, &batchStatus)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Payout batch '%s' not found", batchID), err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to lock payout batch", err)
	}
	if batchStatus == model.BatchStatusCancelled {
		return nil, apierror.NewAPIError(apierror.ErrConflict,
			fmt.Sprintf("Payout batch '%s' is cancelled", batchID), nil)
	}

	applied := &model.ReconciliationApplied{}

	for _, outcome := range outcomes {
		// processed_at keeps its first value so repeated passes stay stable.
		result, err := tx.ExecContext(ctx, `
			UPDATE payout_batch_items
			SET status = $2,
				paypal_item_id = COALESCE(NULLIF($3, ''), paypal_item_id),
				error_code = NULLIF($4, ''),
				error_message = NULLIF($5, ''),
				processed_at = COALESCE(processed_at, NOW())
			WHERE item_id = $1 AND batch_id = $6
		`, outcome.ItemID, outcome.Status, outcome.PayPalItemID,
			outcome.ErrorCode, outcome.ErrorMessage, batchID)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to update payout batch item", err)
		}
		if rows, _ := result.RowsAffected(); rows > 0 {
			applied.ItemsUpdated++
		}

		if outcome.Status == model.ItemStatusSuccess {
			rewardID := model.GenerateUUIDWithSuffix("rwd")
			result, err = tx.ExecContext(ctx, `
				INSERT INTO user_rewards (reward_id, batch_item_id, user_id, cycle_id, amount, currency)
				SELECT $1, i.item_id, i.user_id, b.cycle_id, i.amount, i.currency
				FROM payout_batch_items i
				JOIN payout_batches b ON b.batch_id = i.batch_id
				WHERE i.item_id = $2
				ON CONFLICT (batch_item_id) DO NOTHING
			`, rewardID, outcome.ItemID)
			if err != nil {
				return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to create user reward", err)
			}
			if rows, _ := result.RowsAffected(); rows > 0 {
				applied.RewardsCreated++
			}
		}

		if outcome.WinnerSelectionID > 0 {
			if err := updateWinnerPayoutStatus(ctx, tx, outcome); err != nil {
				return nil, err
			}
		}
	}

	err = tx.QueryRowContext(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE status = 'success'),
			COUNT(*) FILTER (WHERE status = 'failed'),
			COUNT(*) FILTER (WHERE status = 'unclaimed'),
			COUNT(*) FILTER (WHERE status = 'pending')
		FROM payout_batch_items
		WHERE batch_id = $1
	`, batchID).Scan(&applied.SuccessCount, &applied.FailedCount, &applied.UnclaimedCount, &applied.PendingCount)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to count payout batch items", err)
	}

	applied.BatchStatus = model.DeriveBatchStatus(applied.SuccessCount, applied.FailedCount, applied.UnclaimedCount, applied.PendingCount)

	_, err = tx.ExecContext(ctx, `
		UPDATE payout_batches
		SET status = $2, successful_count = $3, failed_count = $4, pending_count = $5, updated_at = NOW()
		WHERE batch_id = $1
	`, batchID, applied.BatchStatus, applied.SuccessCount, applied.FailedCount, applied.PendingCount)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to update payout batch aggregates", err)
	}

	if applied.PendingCount == 0 {
		completed, err := markCycleIfSettled(ctx, tx, cycleID)
		if err != nil {
			return nil, err
		}
		applied.CycleCompleted = completed
	}

	if err := tx.Commit(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to commit reconciliation pass", err)
	}
	return applied, nil
}

func updateWinnerPayoutStatus(ctx context.Context, tx *sql.Tx, outcome model.ItemOutcome) error {
	var err error
	switch outcome.Status {
	case model.ItemStatusSuccess:
		_, err = tx.ExecContext(ctx, `
			UPDATE cycle_winner_selections
			SET payout_status = $2, payout_final = $3
			WHERE id = $1
		`, outcome.WinnerSelectionID, model.PayoutStatusCompleted, outcome.AmountCents)
	case model.ItemStatusFailed:
		_, err = tx.ExecContext(ctx, `
			UPDATE cycle_winner_selections
			SET payout_status = $2
			WHERE id = $1
		`, outcome.WinnerSelectionID, model.PayoutStatusFailed)
	default:
		_, err = tx.ExecContext(ctx, `
			UPDATE cycle_winner_selections
			SET payout_status = $2
			WHERE id = $1
		`, outcome.WinnerSelectionID, model.PayoutStatusPending)
	}
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to update winner payout status", err)
	}
	return nil
}

// markCycleIfSettled flags the cycle's payout phase complete once no item in
// any non-cancelled batch for the cycle is still pending.
func markCycleIfSettled(ctx context.Context, tx *sql.Tx, cycleID int64) (bool, error) {
	var settled bool
	err := tx.QueryRowContext(ctx, `
		SELECT NOT EXISTS (
			SELECT 1
			FROM payout_batch_items i
			JOIN payout_batches b ON b.batch_id = i.batch_id
			WHERE b.cycle_id = $1 AND b.status <> 'cancelled' AND i.status = 'pending'
		)
	`, cycleID).Scan(&settled)
	if err != nil {
		return false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to check cycle settlement", err)
	}
	if !settled {
		return false, nil
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO cycle_payout_status (cycle_id, payouts_completed, completed_at)
		VALUES ($1, TRUE, NOW())
		ON CONFLICT (cycle_id) DO UPDATE
		SET payouts_completed = TRUE,
			completed_at = COALESCE(cycle_payout_status.completed_at, NOW())
	`, cycleID)
	if err != nil {
		return false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to mark cycle payouts completed", err)
	}
	return true, nil
}

// GetBatchSummary assembles the enhanced batch read for admin and audit
// views: the batch, its items, and derived per-status amounts.
func (d Datasource) GetBatchSummary(ctx context.Context, batchID string) (*model.BatchSummary, error) {
	ctx, span := otel.Tracer("payout.batch").Start(ctx, "Fetching payout batch summary")
	defer span.End()

	batch, err := d.GetBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	items, err := d.GetBatchItems(ctx, batchID)
	if err != nil {
		return nil, err
	}
	rewards, err := d.CountRewardsForBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}

	summary := &model.BatchSummary{
		Batch:          *batch,
		ItemCount:      len(items),
		RewardsCreated: rewards,
	}
	for _, item := range items {
		summary.Items = append(summary.Items, *item)
		switch item.Status {
		case model.ItemStatusSuccess:
			summary.SuccessAmount += item.Amount
		case model.ItemStatusFailed:
			summary.FailedAmount += item.Amount
		case model.ItemStatusPending:
			summary.PendingAmount += item.Amount
		}
	}
	return summary, nil
}
