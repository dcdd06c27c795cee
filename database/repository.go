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

package database

import (
	"context"

	"github.com/alafleur/finboost-payouts/model"
)

// IDataSource defines the interface for data source operations, grouping related functionalities.
type IDataSource interface {
	payoutBatch     // Batch and item lifecycle operations
	winnerSelection // Eligibility and winner status operations
	reward          // User reward operations
}

// payoutBatch defines methods for handling payout batches and their items.
type payoutBatch interface {
	CreateBatchWithItems(ctx context.Context, batch *model.PayoutBatch, items []*model.PayoutBatchItem) error                 // Creates a batch and its items in one transaction
	GetBatch(ctx context.Context, batchID string) (*model.PayoutBatch, error)                                                 // Retrieves a batch by its public id
	GetBatchBySenderBatchID(ctx context.Context, senderBatchID string) (*model.PayoutBatch, error)                            // Retrieves a batch by PayPal sender_batch_id
	GetBatchItems(ctx context.Context, batchID string) ([]*model.PayoutBatchItem, error)                                      // Retrieves all items of a batch
	GetBatchesByCycle(ctx context.Context, cycleID int64) ([]*model.PayoutBatch, error)                                       // Retrieves all batches for a cycle
	GetBatchesByChecksum(ctx context.Context, cycleID int64, checksum string) ([]*model.PayoutBatch, error)                   // Retrieves batches matching a request checksum
	UpdateBatchSubmitted(ctx context.Context, batchID, paypalBatchID string) error                                            // draft -> submitted with the PayPal batch id
	UpdateBatchStatus(ctx context.Context, batchID, status string) error                                                      // Status-only transition (failed, cancelled)
	ApplyReconciliation(ctx context.Context, batchID string, outcomes []model.ItemOutcome) (*model.ReconciliationApplied, error) // Applies one reconciliation pass atomically
	GetBatchSummary(ctx context.Context, batchID string) (*model.BatchSummary, error)                                         // Batch + items + derived totals for admin views
}

// winnerSelection defines methods for reading winner eligibility and writing
// back payout-facing status fields.
type winnerSelection interface {
	GetEligibleWinners(ctx context.Context, cycleID int64) ([]*model.WinnerSelection, error)               // Payable winners for a cycle
	GetWinnersByIDs(ctx context.Context, cycleID int64, ids []int64) ([]*model.WinnerSelection, error)     // Explicit winner subset
	CountEligibleWinners(ctx context.Context, cycleID int64) (int, error)                                  // Eligible-recipient count for the admin UI
	GetWinnerStatus(ctx context.Context, userID, cycleID int64) (*model.WinnerStatus, error)               // User-facing winner/payout view
	HasUnseenPayoutOutcome(ctx context.Context, userID, cycleID int64) (bool, error)                       // Notification gate read
	MarkPayoutNotificationSeen(ctx context.Context, userID, cycleID int64) error                           // Notification gate dismiss, idempotent
}

// reward defines methods for reading settled user rewards.
type reward interface {
	GetRewardByBatchItemID(ctx context.Context, batchItemID string) (*model.UserReward, error) // One-to-one with a successful item
	CountRewardsForBatch(ctx context.Context, batchID string) (int, error)                     // Rewards created under a batch
}
