package database

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/alafleur/finboost-payouts/internal/apierror"
	"github.com/alafleur/finboost-payouts/model"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func newTestDatasource(t *testing.T) (Datasource, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return Datasource{Conn: db}, mock
}

func testBatch() *model.PayoutBatch {
	return &model.PayoutBatch{
		BatchID:         "bat_1",
		CycleID:         18,
		SenderBatchID:   "cycle-18-abababababababab",
		RequestChecksum: "abab",
		Attempt:         1,
		Status:          model.BatchStatusDraft,
		TotalAmount:     7500,
		TotalRecipients: 2,
		PendingCount:    2,
		AdminID:         7,
		CreatedAt:       time.Now(),
	}
}

func testItems(createdAt time.Time) []*model.PayoutBatchItem {
	return []*model.PayoutBatchItem{
		{ItemID: "itm_1", BatchID: "bat_1", WinnerSelectionID: 42, UserID: 1001, PaypalEmail: "a@example.com", Amount: 5000, Currency: "USD", Status: model.ItemStatusPending, CreatedAt: createdAt},
		{ItemID: "itm_2", BatchID: "bat_1", WinnerSelectionID: 43, UserID: 1002, PaypalEmail: "b@example.com", Amount: 2500, Currency: "USD", Status: model.ItemStatusPending, CreatedAt: createdAt},
	}
}

func TestCreateBatchWithItems_Success(t *testing.T) {
	ds, mock := newTestDatasource(t)

	batch := testBatch()
	items := testItems(batch.CreatedAt)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO payout_batches").
		WithArgs(batch.BatchID, batch.CycleID, batch.SenderBatchID, batch.RequestChecksum,
			batch.Attempt, batch.Status, batch.TotalAmount, batch.TotalRecipients,
			batch.PendingCount, batch.AdminID, batch.CreatedAt).
		WillReturnResult(sqlmock.NewResult(1, 1))
	for _, item := range items {
		mock.ExpectExec("INSERT INTO payout_batch_items").
			WithArgs(item.ItemID, item.BatchID, item.WinnerSelectionID, item.UserID,
				item.PaypalEmail, item.Amount, item.Currency, item.Status, item.CreatedAt).
			WillReturnResult(sqlmock.NewResult(1, 1))
	}
	mock.ExpectCommit()

	err := ds.CreateBatchWithItems(context.Background(), batch, items)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateBatchWithItems_DuplicateSenderBatchID(t *testing.T) {
	ds, mock := newTestDatasource(t)

	batch := testBatch()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO payout_batches").
		WillReturnError(&pq.Error{Code: "23505", Message: "unique_violation"})
	mock.ExpectRollback()

	err := ds.CreateBatchWithItems(context.Background(), batch, nil)
	assert.Error(t, err)
	apiErr, ok := err.(apierror.APIError)
	assert.True(t, ok)
	assert.Equal(t, apierror.ErrConflict, apiErr.Code)
}

func batchRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"batch_id", "cycle_id", "sender_batch_id", "request_checksum", "attempt", "status",
		"paypal_batch_id", "total_amount", "total_recipients",
		"successful_count", "failed_count", "pending_count", "admin_id", "created_at", "updated_at",
	})
}

func TestGetBatch_Success(t *testing.T) {
	ds, mock := newTestDatasource(t)

	now := time.Now()
	mock.ExpectQuery("SELECT .* FROM payout_batches WHERE batch_id =").
		WithArgs("bat_1").
		WillReturnRows(batchRows().AddRow(
			"bat_1", 18, "cycle-18-abababababababab", "abab", 1, model.BatchStatusSubmitted,
			"PAYPAL123", 7500, 2, 0, 0, 2, 7, now, now,
		))

	batch, err := ds.GetBatch(context.Background(), "bat_1")
	assert.NoError(t, err)
	assert.Equal(t, "bat_1", batch.BatchID)
	assert.Equal(t, int64(18), batch.CycleID)
	assert.Equal(t, "PAYPAL123", batch.PayPalBatchID)
	assert.Equal(t, model.BatchStatusSubmitted, batch.Status)
}

func TestGetBatch_NotFound(t *testing.T) {
	ds, mock := newTestDatasource(t)

	mock.ExpectQuery("SELECT .* FROM payout_batches WHERE batch_id =").
		WithArgs("bat_missing").
		WillReturnRows(batchRows())

	_, err := ds.GetBatch(context.Background(), "bat_missing")
	assert.Error(t, err)
	apiErr, ok := err.(apierror.APIError)
	assert.True(t, ok)
	assert.Equal(t, apierror.ErrNotFound, apiErr.Code)
}

func TestGetBatchesByChecksum(t *testing.T) {
	ds, mock := newTestDatasource(t)

	now := time.Now()
	mock.ExpectQuery("SELECT .* FROM payout_batches WHERE cycle_id = .* AND request_checksum =").
		WithArgs(int64(18), "abab").
		WillReturnRows(batchRows().
			AddRow("bat_2", 18, "cycle-18-abababababababab-attempt-2", "abab", 2, model.BatchStatusCancelled, "", 7500, 2, 0, 0, 2, 7, now, now).
			AddRow("bat_1", 18, "cycle-18-abababababababab", "abab", 1, model.BatchStatusCancelled, "", 7500, 2, 0, 0, 2, 7, now, now))

	batches, err := ds.GetBatchesByChecksum(context.Background(), 18, "abab")
	assert.NoError(t, err)
	assert.Len(t, batches, 2)
	assert.Equal(t, 2, batches[0].Attempt)
}

func TestUpdateBatchSubmitted_Success(t *testing.T) {
	ds, mock := newTestDatasource(t)

	mock.ExpectExec("UPDATE payout_batches").
		WithArgs("bat_1", model.BatchStatusSubmitted, "PAYPAL123", model.BatchStatusDraft).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := ds.UpdateBatchSubmitted(context.Background(), "bat_1", "PAYPAL123")
	assert.NoError(t, err)
}

func TestUpdateBatchSubmitted_NotDraft(t *testing.T) {
	ds, mock := newTestDatasource(t)

	mock.ExpectExec("UPDATE payout_batches").
		WithArgs("bat_1", model.BatchStatusSubmitted, "PAYPAL123", model.BatchStatusDraft).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := ds.UpdateBatchSubmitted(context.Background(), "bat_1", "PAYPAL123")
	assert.Error(t, err)
	apiErr, ok := err.(apierror.APIError)
	assert.True(t, ok)
	assert.Equal(t, apierror.ErrConflict, apiErr.Code)
}

func TestUpdateBatchStatus_NotFound(t *testing.T) {
	ds, mock := newTestDatasource(t)

	mock.ExpectExec("UPDATE payout_batches").
		WithArgs("bat_missing", model.BatchStatusCancelled).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := ds.UpdateBatchStatus(context.Background(), "bat_missing", model.BatchStatusCancelled)
	assert.Error(t, err)
	apiErr, ok := err.(apierror.APIError)
	assert.True(t, ok)
	assert.Equal(t, apierror.ErrNotFound, apiErr.Code)
}

func TestApplyReconciliation_Success(t *testing.T) {
	ds, mock := newTestDatasource(t)

	outcomes := []model.ItemOutcome{
		{ItemID: "itm_1", WinnerSelectionID: 42, UserID: 1001, Status: model.ItemStatusSuccess, AmountCents: 5000, PayPalItemID: "ITEM1"},
		{ItemID: "itm_2", WinnerSelectionID: 43, UserID: 1002, Status: model.ItemStatusFailed, PayPalItemID: "ITEM2", ErrorCode: "RECEIVER_UNREGISTERED", ErrorMessage: "Receiver is unregistered"},
	}

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT cycle_id, status FROM payout_batches WHERE batch_id = .* FOR UPDATE").
		WithArgs("bat_1").
		WillReturnRows(sqlmock.NewRows([]string{"cycle_id", "status"}).AddRow(18, model.BatchStatusSubmitted))

	// First outcome: success, so a reward row and a winner status write follow.
	mock.ExpectExec("UPDATE payout_batch_items").
		WithArgs("itm_1", model.ItemStatusSuccess, "ITEM1", "", "", "bat_1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO user_rewards").
		WithArgs(sqlmock.AnyArg(), "itm_1").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("UPDATE cycle_winner_selections").
		WithArgs(int64(42), model.PayoutStatusCompleted, int64(5000)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	// Second outcome: failed, no reward.
	mock.ExpectExec("UPDATE payout_batch_items").
		WithArgs("itm_2", model.ItemStatusFailed, "ITEM2", "RECEIVER_UNREGISTERED", "Receiver is unregistered", "bat_1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE cycle_winner_selections").
		WithArgs(int64(43), model.PayoutStatusFailed).
		WillReturnResult(sqlmock.NewResult(0, 1))

	mock.ExpectQuery("SELECT.*FROM payout_batch_items.*WHERE batch_id =").
		WithArgs("bat_1").
		WillReturnRows(sqlmock.NewRows([]string{"success", "failed", "unclaimed", "pending"}).AddRow(1, 1, 0, 0))

	mock.ExpectExec("UPDATE payout_batches").
		WithArgs("bat_1", model.BatchStatusPartiallyCompleted, 1, 1, 0).
		WillReturnResult(sqlmock.NewResult(0, 1))

	mock.ExpectQuery("SELECT NOT EXISTS").
		WithArgs(int64(18)).
		WillReturnRows(sqlmock.NewRows([]string{"settled"}).AddRow(true))
	mock.ExpectExec("INSERT INTO cycle_payout_status").
		WithArgs(int64(18)).
		WillReturnResult(sqlmock.NewResult(1, 1))

	mock.ExpectCommit()

	applied, err := ds.ApplyReconciliation(context.Background(), "bat_1", outcomes)
	assert.NoError(t, err)
	assert.Equal(t, 2, applied.ItemsUpdated)
	assert.Equal(t, 1, applied.SuccessCount)
	assert.Equal(t, 1, applied.FailedCount)
	assert.Equal(t, 1, applied.RewardsCreated)
	assert.Equal(t, model.BatchStatusPartiallyCompleted, applied.BatchStatus)
	assert.True(t, applied.CycleCompleted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyReconciliation_CancelledBatch(t *testing.T) {
	ds, mock := newTestDatasource(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT cycle_id, status FROM payout_batches WHERE batch_id = .* FOR UPDATE").
		WithArgs("bat_1").
		WillReturnRows(sqlmock.NewRows([]string{"cycle_id", "status"}).AddRow(18, model.BatchStatusCancelled))
	mock.ExpectRollback()

	_, err := ds.ApplyReconciliation(context.Background(), "bat_1", nil)
	assert.Error(t, err)
	apiErr, ok := err.(apierror.APIError)
	assert.True(t, ok)
	assert.Equal(t, apierror.ErrConflict, apiErr.Code)
}

func TestApplyReconciliation_RewardAlreadyExists(t *testing.T) {
	ds, mock := newTestDatasource(t)

	outcomes := []model.ItemOutcome{
		{ItemID: "itm_1", WinnerSelectionID: 42, UserID: 1001, Status: model.ItemStatusSuccess, AmountCents: 5000, PayPalItemID: "ITEM1"},
	}

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT cycle_id, status FROM payout_batches WHERE batch_id = .* FOR UPDATE").
		WithArgs("bat_1").
		WillReturnRows(sqlmock.NewRows([]string{"cycle_id", "status"}).AddRow(18, model.BatchStatusProcessing))

	mock.ExpectExec("UPDATE payout_batch_items").
		WithArgs("itm_1", model.ItemStatusSuccess, "ITEM1", "", "", "bat_1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	// ON CONFLICT DO NOTHING: zero rows means the reward already existed.
	mock.ExpectExec("INSERT INTO user_rewards").
		WithArgs(sqlmock.AnyArg(), "itm_1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("UPDATE cycle_winner_selections").
		WithArgs(int64(42), model.PayoutStatusCompleted, int64(5000)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	mock.ExpectQuery("SELECT.*FROM payout_batch_items.*WHERE batch_id =").
		WithArgs("bat_1").
		WillReturnRows(sqlmock.NewRows([]string{"success", "failed", "unclaimed", "pending"}).AddRow(2, 0, 0, 0))

	mock.ExpectExec("UPDATE payout_batches").
		WithArgs("bat_1", model.BatchStatusCompleted, 2, 0, 0).
		WillReturnResult(sqlmock.NewResult(0, 1))

	mock.ExpectQuery("SELECT NOT EXISTS").
		WithArgs(int64(18)).
		WillReturnRows(sqlmock.NewRows([]string{"settled"}).AddRow(false))

	mock.ExpectCommit()

	applied, err := ds.ApplyReconciliation(context.Background(), "bat_1", outcomes)
	assert.NoError(t, err)
	assert.Equal(t, 0, applied.RewardsCreated)
	assert.False(t, applied.CycleCompleted)
	assert.Equal(t, model.BatchStatusCompleted, applied.BatchStatus)
}

func TestGetBatchSummary(t *testing.T) {
	ds, mock := newTestDatasource(t)

	now := time.Now()
	mock.ExpectQuery("SELECT .* FROM payout_batches WHERE batch_id =").
		WithArgs("bat_1").
		WillReturnRows(batchRows().AddRow(
			"bat_1", 18, "cycle-18-abababababababab", "abab", 1, model.BatchStatusPartiallyCompleted,
			"PAYPAL123", 7500, 2, 1, 1, 0, 7, now, now,
		))
	mock.ExpectQuery("SELECT.*FROM payout_batch_items.*WHERE batch_id =").
		WithArgs("bat_1").
		WillReturnRows(sqlmock.NewRows([]string{
			"item_id", "batch_id", "winner_selection_id", "user_id", "paypal_email", "amount", "currency",
			"status", "paypal_item_id", "error_code", "error_message", "processed_at", "created_at",
		}).
			AddRow("itm_1", "bat_1", 42, 1001, "a@example.com", 5000, "USD", model.ItemStatusSuccess, "ITEM1", "", "", now, now).
			AddRow("itm_2", "bat_1", 43, 1002, "b@example.com", 2500, "USD", model.ItemStatusFailed, "ITEM2", "RECEIVER_UNREGISTERED", "Receiver is unregistered", now, now))
	mock.ExpectQuery("SELECT COUNT.*FROM user_rewards").
		WithArgs("bat_1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	summary, err := ds.GetBatchSummary(context.Background(), "bat_1")
	assert.NoError(t, err)
	assert.Equal(t, 2, summary.ItemCount)
	assert.Equal(t, int64(5000), summary.SuccessAmount)
	assert.Equal(t, int64(2500), summary.FailedAmount)
	assert.Equal(t, int64(0), summary.PendingAmount)
	assert.Equal(t, 1, summary.RewardsCreated)
	assert.NotNil(t, summary.Items[0].ProcessedAt)
}
