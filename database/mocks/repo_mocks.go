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
package mocks

import (
	"context"

	"github.com/alafleur/finboost-payouts/model"
	"github.com/stretchr/testify/mock"
)

// MockDataSource is a mock implementation of the IDataSource interface
type MockDataSource struct {
	mock.Mock
}

// Payout batch methods

func (m *MockDataSource) CreateBatchWithItems(ctx context.Context, batch *model.PayoutBatch, items []*model.PayoutBatchItem) error {
	args := m.Called(ctx, batch, items)
	return args.Error(0)
}

func (m *MockDataSource) GetBatch(ctx context.Context, batchID string) (*model.PayoutBatch, error) {
	args := m.Called(ctx, batchID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.PayoutBatch), args.Error(1)
}

func (m *MockDataSource) GetBatchBySenderBatchID(ctx context.Context, senderBatchID string) (*model.PayoutBatch, error) {
	args := m.Called(ctx, senderBatchID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.PayoutBatch), args.Error(1)
}

func (m *MockDataSource) GetBatchItems(ctx context.Context, batchID string) ([]*model.PayoutBatchItem, error) {
	args := m.Called(ctx, batchID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.PayoutBatchItem), args.Error(1)
}

func (m *MockDataSource) GetBatchesByCycle(ctx context.Context, cycleID int64) ([]*model.PayoutBatch, error) {
	args := m.Called(ctx, cycleID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.PayoutBatch), args.Error(1)
}

func (m *MockDataSource) GetBatchesByChecksum(ctx context.Context, cycleID int64, checksum string) ([]*model.PayoutBatch, error) {
	args := m.Called(ctx, cycleID, checksum)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.PayoutBatch), args.Error(1)
}

func (m *MockDataSource) UpdateBatchSubmitted(ctx context.Context, batchID, paypalBatchID string) error {
	args := m.Called(ctx, batchID, paypalBatchID)
	return args.Error(0)
}

func (m *MockDataSource) UpdateBatchStatus(ctx context.Context, batchID, status string) error {
	args := m.Called(ctx, batchID, status)
	return args.Error(0)
}

func (m *MockDataSource) ApplyReconciliation(ctx context.Context, batchID string, outcomes []model.ItemOutcome) (*model.ReconciliationApplied, error) {
	args := m.Called(ctx, batchID, outcomes)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ReconciliationApplied), args.Error(1)
}

func (m *MockDataSource) GetBatchSummary(ctx context.Context, batchID string) (*model.BatchSummary, error) {
	args := m.Called(ctx, batchID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.BatchSummary), args.Error(1)
}

// Winner selection methods

func (m *MockDataSource) GetEligibleWinners(ctx context.Context, cycleID int64) ([]*model.WinnerSelection, error) {
	args := m.Called(ctx, cycleID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.WinnerSelection), args.Error(1)
}

func (m *MockDataSource) GetWinnersByIDs(ctx context.Context, cycleID int64, ids []int64) ([]*model.WinnerSelection, error) {
	args := m.Called(ctx, cycleID, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.WinnerSelection), args.Error(1)
}

func (m *MockDataSource) CountEligibleWinners(ctx context.Context, cycleID int64) (int, error) {
	args := m.Called(ctx, cycleID)
	return args.Int(0), args.Error(1)
}

func (m *MockDataSource) GetWinnerStatus(ctx context.Context, userID, cycleID int64) (*model.WinnerStatus, error) {
	args := m.Called(ctx, userID, cycleID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.WinnerStatus), args.Error(1)
}

func (m *MockDataSource) HasUnseenPayoutOutcome(ctx context.Context, userID, cycleID int64) (bool, error) {
	args := m.Called(ctx, userID, cycleID)
	return args.Bool(0), args.Error(1)
}

func (m *MockDataSource) MarkPayoutNotificationSeen(ctx context.Context, userID, cycleID int64) error {
	args := m.Called(ctx, userID, cycleID)
	return args.Error(0)
}

// Reward methods

func (m *MockDataSource) GetRewardByBatchItemID(ctx context.Context, batchItemID string) (*model.UserReward, error) {
	args := m.Called(ctx, batchItemID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.UserReward), args.Error(1)
}

func (m *MockDataSource) CountRewardsForBatch(ctx context.Context, batchID string) (int, error) {
	args := m.Called(ctx, batchID)
	return args.Int(0), args.Error(1)
}
