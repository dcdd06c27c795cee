package database

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"

	"github.com/alafleur/finboost-payouts/model"
)

func winnerRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "cycle_id", "user_id", "paypal_email", "snapshot_email",
		"payout_calculated", "payout_override", "payout_final", "payout_status", "notification_displayed",
	})
}

func TestGetEligibleWinners(t *testing.T) {
	ds, mock := newTestDatasource(t)

	mock.ExpectQuery("SELECT .* FROM cycle_winner_selections w WHERE w.cycle_id =").
		WithArgs(int64(18)).
		WillReturnRows(winnerRows().
			AddRow(42, 18, 1001, "a@example.com", "", 5000, 0, 0, model.PayoutStatusPending, false).
			AddRow(43, 18, 1002, "", "snapshot@example.com", 2500, 3000, 0, model.PayoutStatusPending, false))

	winners, err := ds.GetEligibleWinners(context.Background(), 18)
	assert.NoError(t, err)
	assert.Len(t, winners, 2)
	assert.Equal(t, "a@example.com", winners[0].PayoutEmail())
	// Snapshot email backs up a missing profile email; override wins on amount.
	assert.Equal(t, "snapshot@example.com", winners[1].PayoutEmail())
	assert.Equal(t, int64(3000), winners[1].PayoutAmount())
}

func TestGetWinnersByIDs(t *testing.T) {
	ds, mock := newTestDatasource(t)

	ids := []int64{42, 99}
	mock.ExpectQuery("SELECT .* FROM cycle_winner_selections w WHERE w.cycle_id = .* AND w.id = ANY").
		WithArgs(int64(18), pq.Array(ids)).
		WillReturnRows(winnerRows().
			AddRow(42, 18, 1001, "a@example.com", "", 5000, 0, 0, model.PayoutStatusPending, false))

	winners, err := ds.GetWinnersByIDs(context.Background(), 18, ids)
	assert.NoError(t, err)
	// Unknown ids are simply absent; the service layer reports them as skipped.
	assert.Len(t, winners, 1)
	assert.Equal(t, int64(42), winners[0].ID)
}

func TestCountEligibleWinners(t *testing.T) {
	ds, mock := newTestDatasource(t)

	mock.ExpectQuery("SELECT COUNT.*FROM cycle_winner_selections w").
		WithArgs(int64(18)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(5))

	count, err := ds.CountEligibleWinners(context.Background(), 18)
	assert.NoError(t, err)
	assert.Equal(t, 5, count)
}

func TestGetWinnerStatus_Winner(t *testing.T) {
	ds, mock := newTestDatasource(t)

	mock.ExpectQuery("SELECT payout_status, notification_displayed, payout_final FROM cycle_winner_selections").
		WithArgs(int64(1001), int64(18)).
		WillReturnRows(sqlmock.NewRows([]string{"payout_status", "notification_displayed", "payout_final"}).
			AddRow(model.PayoutStatusCompleted, false, 5000))

	status, err := ds.GetWinnerStatus(context.Background(), 1001, 18)
	assert.NoError(t, err)
	assert.True(t, status.IsWinner)
	assert.Equal(t, model.PayoutStatusCompleted, status.PayoutStatus)
	assert.False(t, status.NotificationDisplayed)
	assert.Equal(t, int64(5000), status.Amount)
}

func TestGetWinnerStatus_NotAWinner(t *testing.T) {
	ds, mock := newTestDatasource(t)

	mock.ExpectQuery("SELECT payout_status, notification_displayed, payout_final FROM cycle_winner_selections").
		WithArgs(int64(2002), int64(18)).
		WillReturnRows(sqlmock.NewRows([]string{"payout_status", "notification_displayed", "payout_final"}))

	status, err := ds.GetWinnerStatus(context.Background(), 2002, 18)
	assert.NoError(t, err)
	assert.False(t, status.IsWinner)
}

func TestHasUnseenPayoutOutcome(t *testing.T) {
	ds, mock := newTestDatasource(t)

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs(int64(1001), int64(18), model.PayoutStatusCompleted, model.PayoutStatusFailed).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	unseen, err := ds.HasUnseenPayoutOutcome(context.Background(), 1001, 18)
	assert.NoError(t, err)
	assert.True(t, unseen)
}

func TestMarkPayoutNotificationSeen(t *testing.T) {
	ds, mock := newTestDatasource(t)

	mock.ExpectExec("UPDATE cycle_winner_selections").
		WithArgs(int64(1001), int64(18)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := ds.MarkPayoutNotificationSeen(context.Background(), 1001, 18)
	assert.NoError(t, err)
}

func TestMarkPayoutNotificationSeen_AlreadySeen(t *testing.T) {
	ds, mock := newTestDatasource(t)

	// Zero affected rows is still a successful dismiss.
	mock.ExpectExec("UPDATE cycle_winner_selections").
		WithArgs(int64(1001), int64(18)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := ds.MarkPayoutNotificationSeen(context.Background(), 1001, 18)
	assert.NoError(t, err)
}
