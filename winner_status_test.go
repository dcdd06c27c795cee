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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/alafleur/finboost-payouts/database/mocks"
	"github.com/alafleur/finboost-payouts/model"
)

func TestGetWinnerStatus(t *testing.T) {
	mockDS := new(mocks.MockDataSource)
	svc := &Payouts{datasource: mockDS}

	mockDS.On("GetWinnerStatus", mock.Anything, int64(1001), int64(18)).Return(&model.WinnerStatus{
		IsWinner:     true,
		PayoutStatus: model.PayoutStatusCompleted,
		Amount:       5000,
	}, nil)

	status, err := svc.GetWinnerStatus(context.Background(), 1001, 18)
	assert.NoError(t, err)
	assert.True(t, status.IsWinner)
	assert.Equal(t, model.PayoutStatusCompleted, status.PayoutStatus)
	assert.Equal(t, int64(5000), status.Amount)
}

func TestGetWinnerStatus_NotAWinner(t *testing.T) {
	mockDS := new(mocks.MockDataSource)
	svc := &Payouts{datasource: mockDS}

	mockDS.On("GetWinnerStatus", mock.Anything, int64(2002), int64(18)).Return(&model.WinnerStatus{IsWinner: false}, nil)

	status, err := svc.GetWinnerStatus(context.Background(), 2002, 18)
	assert.NoError(t, err)
	assert.False(t, status.IsWinner)
}

func TestShouldNotifyPayout(t *testing.T) {
	mockDS := new(mocks.MockDataSource)
	svc := &Payouts{datasource: mockDS}

	mockDS.On("HasUnseenPayoutOutcome", mock.Anything, int64(1001), int64(18)).Return(true, nil)

	notify, err := svc.ShouldNotifyPayout(context.Background(), 1001, 18)
	assert.NoError(t, err)
	assert.True(t, notify)
}

func TestDismissPayoutNotification(t *testing.T) {
	mockDS := new(mocks.MockDataSource)
	svc := &Payouts{datasource: mockDS}

	mockDS.On("MarkPayoutNotificationSeen", mock.Anything, int64(1001), int64(18)).Return(nil)

	err := svc.DismissPayoutNotification(context.Background(), 1001, 18)
	assert.NoError(t, err)
	mockDS.AssertExpectations(t)
}
