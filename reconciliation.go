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
	"fmt"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"

	"github.com/alafleur/finboost-payouts/internal/apierror"
	"github.com/alafleur/finboost-payouts/model"
)

// matchItem attributes one parsed PayPal result to a stored batch item.
// Primary match is the winner selection id recovered from sender_item_id.
// The user-id fallback applies only to legacy-format ids, which carry no
// selection id (-1): a modern result whose selection id is not in this batch
// is foreign and must not claim another winner's item through a shared user
// id. Last resort is the PayPal item id recorded by an earlier pass.
func matchItem(items []*model.PayoutBatchItem, result *model.ParsedPayoutItem) *model.PayoutBatchItem {
	if result.WinnerSelectionID > 0 {
		for _, item := range items {
			if item.WinnerSelectionID == result.WinnerSelectionID {
				return item
			}
		}
	}
	if result.WinnerSelectionID == -1 && result.UserID > 0 {
		for _, item := range items {
			if item.UserID == result.UserID {
				return item
			}
		}
	}
	if result.PayPalItemID != "" {
		for _, item := range items {
			if item.PayPalItemID == result.PayPalItemID {
				return item
			}
		}
	}
	return nil
}

// ReconcileBatch applies a parsed PayPal response to a batch: per-item status
// writes, reward creation for successes, winner status writeback, and the
// batch aggregate update all commit in a single store transaction. Running
// the same response through twice is a no-op for rewards and terminal items.
func (p *Payouts) ReconcileBatch(ctx context.Context, batchID string, parsed *model.ParsedPayoutResponse) (*model.ReconciliationResult, error) {
	ctx, span := otel.Tracer("payouts.reconciliation").Start(ctx, "ReconcileBatch")
	defer span.End()

	items, err := p.datasource.GetBatchItems(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("batch %s has no items", batchID), nil)
	}

	outcomes := make([]model.ItemOutcome, 0, len(parsed.IndividualResults))
	claimed := make(map[string]bool, len(parsed.IndividualResults))
	for i := range parsed.IndividualResults {
		result := &parsed.IndividualResults[i]
		item := matchItem(items, result)
		if item == nil || claimed[item.ItemID] {
			logrus.Warnf("batch %s: could not attribute PayPal item %s (winner %d, user %d)",
				batchID, result.PayPalItemID, result.WinnerSelectionID, result.UserID)
			continue
		}
		claimed[item.ItemID] = true

		amount := result.AmountCents
		if amount == 0 {
			amount = item.Amount
		}
		outcomes = append(outcomes, model.ItemOutcome{
			ItemID:            item.ItemID,
			WinnerSelectionID: item.WinnerSelectionID,
			UserID:            item.UserID,
			Status:            result.Status,
			AmountCents:       amount,
			PayPalItemID:      result.PayPalItemID,
			ErrorCode:         result.ErrorCode,
			ErrorMessage:      result.ErrorMessage,
		})
	}

	applied, err := p.datasource.ApplyReconciliation(ctx, batchID, outcomes)
	if err != nil {
		return nil, err
	}

	recon := &model.ReconciliationResult{
		BatchUpdated:       true,
		BatchStatus:        applied.BatchStatus,
		ItemsUpdated:       applied.ItemsUpdated,
		SuccessfulPayouts:  applied.SuccessCount,
		FailedPayouts:      applied.FailedCount,
		PendingPayouts:     applied.PendingCount,
		UserRewardsCreated: applied.RewardsCreated,
		CycleCompleted:     applied.CycleCompleted,
	}

	switch applied.BatchStatus {
	case model.BatchStatusCompleted, model.BatchStatusPartiallyCompleted, model.BatchStatusFailed:
		event := NewWebhook{Event: batchEventFromStatus(applied.BatchStatus), Payload: recon}
		if err := p.queue.SendWebhook(event); err != nil {
			logrus.Errorf("failed to enqueue settlement webhook for batch %s: %v", batchID, err)
		}
	}

	return recon, nil
}

// ReconcileFromRaw reconciles a batch from a raw PayPal response body, e.g.
// one captured at submission time or replayed from an audit log.
func (p *Payouts) ReconcileFromRaw(ctx context.Context, batchID string, raw []byte) (*model.ReconciliationResult, error) {
	parsed, err := ParsePayoutResponse(raw)
	if err != nil {
		return nil, err
	}
	return p.ReconcileBatch(ctx, batchID, parsed)
}

// ReconcileFromPayPal fetches the batch's current state from PayPal and
// reconciles from it. This is the recovery path for ambiguous submissions and
// for batches whose items were still pending at submission time.
func (p *Payouts) ReconcileFromPayPal(ctx context.Context, batchID string) (*model.ReconciliationResult, error) {
	ctx, span := otel.Tracer("payouts.reconciliation").Start(ctx, "ReconcileFromPayPal")
	defer span.End()

	batch, err := p.datasource.GetBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if batch.PayPalBatchID == "" {
		return nil, apierror.NewAPIError(apierror.ErrBadRequest,
			fmt.Sprintf("batch %s has no PayPal batch id; reconcile from a raw response instead", batchID), nil)
	}

	parsed, _, err := p.paypal.GetPayoutBatch(ctx, batch.PayPalBatchID)
	if err != nil {
		return nil, err
	}
	return p.ReconcileBatch(ctx, batchID, parsed)
}
