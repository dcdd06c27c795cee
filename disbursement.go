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
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"

	"github.com/alafleur/finboost-payouts/internal/apierror"
	"github.com/alafleur/finboost-payouts/internal/notification"
	"github.com/alafleur/finboost-payouts/model"
)

const eligibleCountCacheTTL = 30 * time.Second

// DisbursementInput is the admin-facing request to pay out a cycle. Exactly
// one of ProcessAll or SelectedWinnerIDs must be set; validation happens at
// the API layer.
type DisbursementInput struct {
	CycleID           int64
	AdminID           int64
	RequestID         string
	ProcessAll        bool
	SelectedWinnerIDs []int64
}

func eligibleCountCacheKey(cycleID int64) string {
	return fmt.Sprintf("payouts:eligible-count:%d", cycleID)
}

// EligibleRecipientCount returns the number of payable winners for a cycle.
// The count backs an admin dashboard widget, so it is cached briefly; a
// sentinel of -1 distinguishes a cache miss from a cycle with zero winners.
func (p *Payouts) EligibleRecipientCount(ctx context.Context, cycleID int64) (int, error) {
	ctx, span := otel.Tracer("payouts.disbursement").Start(ctx, "EligibleRecipientCount")
	defer span.End()

	count := -1
	if err := p.cache.Get(ctx, eligibleCountCacheKey(cycleID), &count); err != nil {
		logrus.Warnf("eligible count cache read failed: %v", err)
	}
	if count >= 0 {
		return count, nil
	}

	count, err := p.datasource.CountEligibleWinners(ctx, cycleID)
	if err != nil {
		return 0, err
	}
	if err := p.cache.Set(ctx, eligibleCountCacheKey(cycleID), count, eligibleCountCacheTTL); err != nil {
		logrus.Warnf("eligible count cache write failed: %v", err)
	}
	return count, nil
}

// resolveRecipients turns the input's winner selection into concrete payable
// recipients plus an explicit skip list. Winners are never silently dropped:
// every requested id that cannot be paid appears in the skip list with a
// reason.
func (p *Payouts) resolveRecipients(ctx context.Context, input *DisbursementInput) ([]model.PayoutRecipient, []model.SkippedRecipient, int, error) {
	var winners []*model.WinnerSelection
	var err error
	if input.ProcessAll {
		winners, err = p.datasource.GetEligibleWinners(ctx, input.CycleID)
	} else {
		winners, err = p.datasource.GetWinnersByIDs(ctx, input.CycleID, input.SelectedWinnerIDs)
	}
	if err != nil {
		return nil, nil, 0, err
	}

	skipped := make([]model.SkippedRecipient, 0)
	if !input.ProcessAll {
		returned := make(map[int64]bool, len(winners))
		for _, w := range winners {
			returned[w.ID] = true
		}
		for _, id := range input.SelectedWinnerIDs {
			if !returned[id] {
				skipped = append(skipped, model.SkippedRecipient{
					WinnerSelectionID: id,
					Reason:            "not eligible: already paid, pending, or not a winner of this cycle",
				})
			}
		}
	}

	recipients := make([]model.PayoutRecipient, 0, len(winners))
	for _, w := range winners {
		email := w.PayoutEmail()
		if email == "" {
			skipped = append(skipped, model.SkippedRecipient{WinnerSelectionID: w.ID, Reason: "no PayPal email configured"})
			continue
		}
		amount := w.PayoutAmount()
		if amount <= 0 {
			skipped = append(skipped, model.SkippedRecipient{WinnerSelectionID: w.ID, Email: email, Reason: "payout amount is zero"})
			continue
		}
		recipients = append(recipients, model.PayoutRecipient{
			WinnerSelectionID: w.ID,
			UserID:            w.UserID,
			Email:             email,
			AmountCents:       amount,
		})
	}
	return recipients, skipped, len(winners), nil
}

// resolveAttempt inspects earlier batches carrying the same request checksum.
// A live (non-cancelled) duplicate is a conflict: the identical request was
// already disbursed or is in flight. If every prior attempt was cancelled the
// next attempt number is minted so the retry gets a distinct sender_batch_id.
func (p *Payouts) resolveAttempt(ctx context.Context, cycleID int64, checksum string) (int, error) {
	prior, err := p.datasource.GetBatchesByChecksum(ctx, cycleID, checksum)
	if err != nil {
		return 0, err
	}

	attempt := 1
	for _, b := range prior {
		if b.Status != model.BatchStatusCancelled {
			return 0, apierror.NewAPIError(apierror.ErrConflict,
				fmt.Sprintf("identical disbursement already exists as batch %s (status %s)", b.BatchID, b.Status), nil)
		}
		if b.Attempt >= attempt {
			attempt = b.Attempt + 1
		}
	}
	return attempt, nil
}

// ProcessDisbursement runs the full disbursement flow for a cycle: resolve
// recipients, derive the idempotent sender_batch_id, persist the draft batch,
// submit it to PayPal, and reconcile whatever outcome data the synchronous
// response already carries.
func (p *Payouts) ProcessDisbursement(ctx context.Context, input *DisbursementInput) (*model.DisbursementResult, error) {
	ctx, span := otel.Tracer("payouts.disbursement").Start(ctx, "ProcessDisbursement")
	defer span.End()

	recipients, skipped, totalEligible, err := p.resolveRecipients(ctx, input)
	if err != nil {
		return nil, err
	}
	if len(recipients) == 0 {
		return nil, apierror.NewAPIError(apierror.ErrNoEligibleRecipients,
			fmt.Sprintf("no eligible recipients for cycle %d", input.CycleID), skipped)
	}

	request := &model.DisbursementRequest{
		CycleID:    input.CycleID,
		AdminID:    input.AdminID,
		RequestID:  input.RequestID,
		Recipients: recipients,
	}
	checksum := request.Checksum()

	attempt, err := p.resolveAttempt(ctx, input.CycleID, checksum)
	if err != nil {
		return nil, err
	}

	batch := &model.PayoutBatch{
		BatchID:         model.GenerateUUIDWithSuffix("bat"),
		CycleID:         input.CycleID,
		SenderBatchID:   model.SenderBatchID(input.CycleID, checksum, attempt),
		RequestChecksum: checksum,
		Attempt:         attempt,
		Status:          model.BatchStatusDraft,
		TotalAmount:     request.TotalAmount(),
		TotalRecipients: len(recipients),
		PendingCount:    len(recipients),
		AdminID:         input.AdminID,
		CreatedAt:       time.Now(),
	}
	items := make([]*model.PayoutBatchItem, 0, len(recipients))
	for _, rec := range recipients {
		items = append(items, &model.PayoutBatchItem{
			ItemID:            model.GenerateUUIDWithSuffix("itm"),
			BatchID:           batch.BatchID,
			WinnerSelectionID: rec.WinnerSelectionID,
			UserID:            rec.UserID,
			PaypalEmail:       rec.Email,
			Amount:            rec.AmountCents,
			Currency:          p.paypal.currency,
			Status:            model.ItemStatusPending,
			CreatedAt:         batch.CreatedAt,
		})
	}

	if err := p.datasource.CreateBatchWithItems(ctx, batch, items); err != nil {
		return nil, err
	}
	p.invalidateEligibleCount(ctx, input.CycleID)

	submission, err := p.paypal.SubmitPayout(ctx, batch, items)
	if err != nil {
		if statusErr := p.datasource.UpdateBatchStatus(ctx, batch.BatchID, model.BatchStatusFailed); statusErr != nil {
			logrus.Errorf("failed to mark batch %s failed: %v", batch.BatchID, statusErr)
		}
		notification.NotifyError(fmt.Errorf("payout submission failed for batch %s: %w", batch.BatchID, err))
		return nil, err
	}

	if submission.Ambiguous {
		// The call timed out after the request may have reached PayPal.
		// Keep the batch submitted under its sender_batch_id so the outcome
		// can be recovered later instead of paying the cycle twice.
		if err := p.datasource.UpdateBatchSubmitted(ctx, batch.BatchID, ""); err != nil {
			return nil, err
		}
		logrus.Warnf("batch %s submission ambiguous; awaiting reconciliation", batch.BatchID)
		return &model.DisbursementResult{
			Success:        true,
			BatchID:        batch.BatchID,
			SenderBatchID:  batch.SenderBatchID,
			Status:         model.BatchStatusSubmitted,
			ProcessedCount: len(items),
			TotalEligible:  totalEligible,
			Failed:         skipped,
		}, nil
	}

	paypalBatchID := ""
	if submission.Parsed != nil {
		paypalBatchID = submission.Parsed.PayPalBatchID
	}
	if err := p.datasource.UpdateBatchSubmitted(ctx, batch.BatchID, paypalBatchID); err != nil {
		return nil, err
	}
	batch.Status = model.BatchStatusSubmitted

	status := model.BatchStatusSubmitted
	if submission.Parsed != nil {
		recon, err := p.ReconcileBatch(ctx, batch.BatchID, submission.Parsed)
		if err != nil {
			// The batch is safely submitted; reconciliation can be re-run
			// from PayPal's stored state at any time.
			logrus.Errorf("synchronous reconciliation of batch %s failed: %v", batch.BatchID, err)
		} else {
			status = recon.BatchStatus
		}
	} else if len(submission.RawBody) > 0 {
		// Accepted but unparseable. Keep the full response body in the log so
		// the replay endpoint has something to reconcile from.
		logrus.Errorf("batch %s accepted but response did not parse; raw response: %s", batch.BatchID, submission.RawBody)
	}

	return &model.DisbursementResult{
		Success:        true,
		BatchID:        batch.BatchID,
		SenderBatchID:  batch.SenderBatchID,
		Status:         status,
		ProcessedCount: len(items),
		TotalEligible:  totalEligible,
		Failed:         skipped,
	}, nil
}

// CancelBatch cancels a batch that has not settled. Cancelling releases the
// request checksum: a later identical request mints attempt N+1 with a fresh
// sender_batch_id instead of colliding with this one.
func (p *Payouts) CancelBatch(ctx context.Context, batchID string) (*model.PayoutBatch, error) {
	ctx, span := otel.Tracer("payouts.disbursement").Start(ctx, "CancelBatch")
	defer span.End()

	batch, err := p.datasource.GetBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}

	// A settled batch is immutable; everything else, including a terminally
	// rejected batch, can be cancelled so the identical request can mint the
	// next attempt.
	switch batch.Status {
	case model.BatchStatusDraft, model.BatchStatusSubmitted, model.BatchStatusProcessing, model.BatchStatusFailed:
	default:
		return nil, apierror.NewAPIError(apierror.ErrConflict,
			fmt.Sprintf("batch %s cannot be cancelled from status %s", batchID, batch.Status), nil)
	}

	if err := p.datasource.UpdateBatchStatus(ctx, batchID, model.BatchStatusCancelled); err != nil {
		return nil, err
	}
	batch.Status = model.BatchStatusCancelled
	p.invalidateEligibleCount(ctx, batch.CycleID)

	if err := p.queue.SendWebhook(NewWebhook{Event: batchEventFromStatus(model.BatchStatusCancelled), Payload: batch}); err != nil {
		logrus.Errorf("failed to enqueue cancel webhook for batch %s: %v", batchID, err)
	}
	return batch, nil
}

// GetBatch returns a batch by its public id.
func (p *Payouts) GetBatch(ctx context.Context, batchID string) (*model.PayoutBatch, error) {
	return p.datasource.GetBatch(ctx, batchID)
}

// GetBatchSummary returns a batch with its items and derived totals.
func (p *Payouts) GetBatchSummary(ctx context.Context, batchID string) (*model.BatchSummary, error) {
	return p.datasource.GetBatchSummary(ctx, batchID)
}

// GetCycleBatches lists every disbursement batch recorded for a cycle.
func (p *Payouts) GetCycleBatches(ctx context.Context, cycleID int64) ([]*model.PayoutBatch, error) {
	return p.datasource.GetBatchesByCycle(ctx, cycleID)
}

func (p *Payouts) invalidateEligibleCount(ctx context.Context, cycleID int64) {
	if err := p.cache.Delete(ctx, eligibleCountCacheKey(cycleID)); err != nil {
		logrus.Warnf("eligible count cache invalidation failed: %v", err)
	}
}
