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
	"net/http"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/alafleur/finboost-payouts/database/mocks"
	"github.com/alafleur/finboost-payouts/internal/apierror"
	"github.com/alafleur/finboost-payouts/model"
)

func storedBatchItems() []*model.PayoutBatchItem {
	return []*model.PayoutBatchItem{
		{ItemID: "itm_1", BatchID: "bat_1", WinnerSelectionID: 42, UserID: 1001, Amount: 5000, Status: model.ItemStatusPending},
		{ItemID: "itm_2", BatchID: "bat_1", WinnerSelectionID: 43, UserID: 1002, Amount: 2500, Status: model.ItemStatusPending},
	}
}

func TestMatchItem(t *testing.T) {
	items := storedBatchItems()
	items[1].PayPalItemID = "ITEM2"

	// Winner selection id is the primary key.
	matched := matchItem(items, &model.ParsedPayoutItem{WinnerSelectionID: 42, UserID: 9999})
	assert.NotNil(t, matched)
	assert.Equal(t, "itm_1", matched.ItemID)

	// Legacy results carry no selection id and fall back to the user id.
	matched = matchItem(items, &model.ParsedPayoutItem{WinnerSelectionID: -1, UserID: 1002})
	assert.NotNil(t, matched)
	assert.Equal(t, "itm_2", matched.ItemID)

	// Last resort: a PayPal item id recorded by an earlier pass.
	matched = matchItem(items, &model.ParsedPayoutItem{WinnerSelectionID: -1, PayPalItemID: "ITEM2"})
	assert.NotNil(t, matched)
	assert.Equal(t, "itm_2", matched.ItemID)

	// A modern result with a foreign selection id must not claim another
	// winner's item through a shared user id.
	matched = matchItem(items, &model.ParsedPayoutItem{WinnerSelectionID: 77, UserID: 1001})
	assert.Nil(t, matched)

	matched = matchItem(items, &model.ParsedPayoutItem{WinnerSelectionID: 77, UserID: 7777})
	assert.Nil(t, matched)
}

func TestReconcileBatch_MixedOutcomes(t *testing.T) {
	mockDS := new(mocks.MockDataSource)
	svc := newTestPayouts(t, mockDS)

	parsed := &model.ParsedPayoutResponse{
		PayPalBatchID: "PAYPAL123",
		BatchStatus:   "SUCCESS",
		ItemCount:     2,
		IndividualResults: []model.ParsedPayoutItem{
			{WinnerSelectionID: 42, UserID: 1001, PayPalItemID: "ITEM1", Status: model.ItemStatusSuccess, AmountCents: 5000},
			{WinnerSelectionID: 43, UserID: 1002, PayPalItemID: "ITEM2", Status: model.ItemStatusFailed, ErrorCode: "RECEIVER_UNREGISTERED", ErrorMessage: "Receiver is unregistered"},
		},
	}

	var appliedOutcomes []model.ItemOutcome
	mockDS.On("GetBatchItems", mock.Anything, "bat_1").Return(storedBatchItems(), nil)
	mockDS.On("ApplyReconciliation", mock.Anything, "bat_1", mock.Anything).Return(&model.ReconciliationApplied{
		ItemsUpdated:   2,
		SuccessCount:   1,
		FailedCount:    1,
		RewardsCreated: 1,
		BatchStatus:    model.BatchStatusPartiallyCompleted,
	}, nil).Run(func(args mock.Arguments) {
		appliedOutcomes = args.Get(2).([]model.ItemOutcome)
	})

	result, err := svc.ReconcileBatch(context.Background(), "bat_1", parsed)
	assert.NoError(t, err)
	assert.True(t, result.BatchUpdated)
	assert.Equal(t, model.BatchStatusPartiallyCompleted, result.BatchStatus)
	assert.Equal(t, 2, result.ItemsUpdated)
	assert.Equal(t, 1, result.SuccessfulPayouts)
	assert.Equal(t, 1, result.FailedPayouts)
	assert.Equal(t, 1, result.UserRewardsCreated)

	assert.Len(t, appliedOutcomes, 2)
	assert.Equal(t, "itm_1", appliedOutcomes[0].ItemID)
	assert.Equal(t, model.ItemStatusSuccess, appliedOutcomes[0].Status)
	assert.Equal(t, "itm_2", appliedOutcomes[1].ItemID)
	assert.Equal(t, "RECEIVER_UNREGISTERED", appliedOutcomes[1].ErrorCode)
	// A failed result without a reported amount falls back to the stored one.
	assert.Equal(t, int64(2500), appliedOutcomes[1].AmountCents)

	mockDS.AssertExpectations(t)
}

func TestReconcileBatch_DuplicateResultClaimsOnce(t *testing.T) {
	mockDS := new(mocks.MockDataSource)
	svc := newTestPayouts(t, mockDS)

	parsed := &model.ParsedPayoutResponse{
		PayPalBatchID: "PAYPAL123",
		IndividualResults: []model.ParsedPayoutItem{
			{WinnerSelectionID: 42, UserID: 1001, Status: model.ItemStatusSuccess, AmountCents: 5000},
			{WinnerSelectionID: 42, UserID: 1001, Status: model.ItemStatusSuccess, AmountCents: 5000},
		},
	}

	var appliedOutcomes []model.ItemOutcome
	mockDS.On("GetBatchItems", mock.Anything, "bat_1").Return(storedBatchItems(), nil)
	mockDS.On("ApplyReconciliation", mock.Anything, "bat_1", mock.Anything).Return(&model.ReconciliationApplied{
		ItemsUpdated: 1,
		SuccessCount: 1,
		PendingCount: 1,
		BatchStatus:  model.BatchStatusProcessing,
	}, nil).Run(func(args mock.Arguments) {
		appliedOutcomes = args.Get(2).([]model.ItemOutcome)
	})

	_, err := svc.ReconcileBatch(context.Background(), "bat_1", parsed)
	assert.NoError(t, err)
	assert.Len(t, appliedOutcomes, 1)
}

func TestReconcileBatch_NoItems(t *testing.T) {
	mockDS := new(mocks.MockDataSource)
	svc := newTestPayouts(t, mockDS)

	mockDS.On("GetBatchItems", mock.Anything, "bat_missing").Return([]*model.PayoutBatchItem{}, nil)

	_, err := svc.ReconcileBatch(context.Background(), "bat_missing", &model.ParsedPayoutResponse{PayPalBatchID: "PAYPAL123"})
	assert.Error(t, err)
	apiErr, ok := err.(apierror.APIError)
	assert.True(t, ok)
	assert.Equal(t, apierror.ErrNotFound, apiErr.Code)
}

func TestReconcileFromRaw(t *testing.T) {
	mockDS := new(mocks.MockDataSource)
	svc := newTestPayouts(t, mockDS)

	raw := []byte(`{
		"batch_header": {"payout_batch_id": "PAYPAL123", "batch_status": "SUCCESS"},
		"items": [
			{
				"payout_item_id": "ITEM1",
				"transaction_status": "SUCCESS",
				"payout_item": {"sender_item_id": "winner-42-1001", "amount": {"value": "50.00", "currency": "USD"}}
			}
		]
	}`)

	mockDS.On("GetBatchItems", mock.Anything, "bat_1").Return(storedBatchItems(), nil)
	mockDS.On("ApplyReconciliation", mock.Anything, "bat_1", mock.Anything).Return(&model.ReconciliationApplied{
		ItemsUpdated: 1,
		SuccessCount: 1,
		PendingCount: 1,
		BatchStatus:  model.BatchStatusProcessing,
	}, nil)

	result, err := svc.ReconcileFromRaw(context.Background(), "bat_1", raw)
	assert.NoError(t, err)
	assert.Equal(t, 1, result.ItemsUpdated)
}

func TestReconcileFromRaw_Malformed(t *testing.T) {
	mockDS := new(mocks.MockDataSource)
	svc := newTestPayouts(t, mockDS)

	_, err := svc.ReconcileFromRaw(context.Background(), "bat_1", []byte(`{"items": []}`))
	assert.Error(t, err)
	mockDS.AssertNotCalled(t, "GetBatchItems", mock.Anything, mock.Anything)
}

func TestReconcileFromPayPal(t *testing.T) {
	mockDS := new(mocks.MockDataSource)
	svc := newTestPayouts(t, mockDS)

	registerTokenResponder()
	httpmock.RegisterResponder(http.MethodGet, testPayPalURL+"/v1/payments/payouts/PAYPAL123",
		httpmock.NewStringResponder(http.StatusOK, `{
			"batch_header": {"payout_batch_id": "PAYPAL123", "batch_status": "SUCCESS"},
			"items": [
				{
					"payout_item_id": "ITEM1",
					"transaction_status": "SUCCESS",
					"payout_item": {"sender_item_id": "winner-42-1001", "amount": {"value": "50.00", "currency": "USD"}}
				},
				{
					"payout_item_id": "ITEM2",
					"transaction_status": "UNCLAIMED",
					"payout_item": {"sender_item_id": "winner-43-1002", "amount": {"value": "25.00", "currency": "USD"}}
				}
			]
		}`))

	mockDS.On("GetBatch", mock.Anything, "bat_1").Return(&model.PayoutBatch{
		BatchID: "bat_1", CycleID: 18, Status: model.BatchStatusSubmitted, PayPalBatchID: "PAYPAL123",
	}, nil)
	mockDS.On("GetBatchItems", mock.Anything, "bat_1").Return(storedBatchItems(), nil)
	mockDS.On("ApplyReconciliation", mock.Anything, "bat_1", mock.Anything).Return(&model.ReconciliationApplied{
		ItemsUpdated:   2,
		SuccessCount:   1,
		UnclaimedCount: 1,
		RewardsCreated: 1,
		BatchStatus:    model.BatchStatusPartiallyCompleted,
	}, nil)

	result, err := svc.ReconcileFromPayPal(context.Background(), "bat_1")
	assert.NoError(t, err)
	assert.Equal(t, model.BatchStatusPartiallyCompleted, result.BatchStatus)
	mockDS.AssertExpectations(t)
}

func TestReconcileFromPayPal_NoPayPalBatchID(t *testing.T) {
	mockDS := new(mocks.MockDataSource)
	svc := newTestPayouts(t, mockDS)

	mockDS.On("GetBatch", mock.Anything, "bat_1").Return(&model.PayoutBatch{
		BatchID: "bat_1", CycleID: 18, Status: model.BatchStatusSubmitted,
	}, nil)

	_, err := svc.ReconcileFromPayPal(context.Background(), "bat_1")
	assert.Error(t, err)
	apiErr, ok := err.(apierror.APIError)
	assert.True(t, ok)
	assert.Equal(t, apierror.ErrBadRequest, apiErr.Code)
}
