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
package model

import "time"

// Batch lifecycle statuses. A batch starts in draft, moves to submitted once
// PayPal accepts it, and settles into one of the terminal states as item
// outcomes are reconciled. Cancelled is only reachable by admin action.
const (
	BatchStatusDraft              = "draft"
	BatchStatusSubmitted          = "submitted"
	BatchStatusProcessing         = "processing"
	BatchStatusCompleted          = "completed"
	BatchStatusPartiallyCompleted = "partially_completed"
	BatchStatusFailed             = "failed"
	BatchStatusCancelled          = "cancelled"
)

// Item statuses as reported back from PayPal, normalized.
const (
	ItemStatusPending   = "pending"
	ItemStatusSuccess   = "success"
	ItemStatusFailed    = "failed"
	ItemStatusUnclaimed = "unclaimed"
)

// Winner-facing payout phases written back onto the winner selection row.
const (
	PayoutStatusPending   = "pending"
	PayoutStatusCompleted = "completed"
	PayoutStatusFailed    = "failed"
)

// PayoutBatch is one disbursement attempt against PayPal Payouts.
// SenderBatchID is derived from (cycle, request checksum, attempt) and never
// from wall-clock time, so an identical retried request resolves to the same
// PayPal batch instead of paying twice.
type PayoutBatch struct {
	ID              int64     `json:"-"`
	BatchID         string    `json:"batch_id"`
	CycleID         int64     `json:"cycle_id"`
	SenderBatchID   string    `json:"sender_batch_id"`
	RequestChecksum string    `json:"request_checksum"`
	Attempt         int       `json:"attempt"`
	Status          string    `json:"status"`
	PayPalBatchID   string    `json:"paypal_batch_id,omitempty"`
	TotalAmount     int64     `json:"total_amount"`
	TotalRecipients int       `json:"total_recipients"`
	SuccessfulCount int       `json:"successful_count"`
	FailedCount     int       `json:"failed_count"`
	PendingCount    int       `json:"pending_count"`
	AdminID         int64     `json:"admin_id"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// PayoutBatchItem is one recipient inside a batch. The PayPal email is
// snapshotted at submission time and does not follow later profile edits.
type PayoutBatchItem struct {
	ID                int64      `json:"-"`
	ItemID            string     `json:"item_id"`
	BatchID           string     `json:"batch_id"`
	WinnerSelectionID int64      `json:"cycle_winner_selection_id"`
	UserID            int64      `json:"user_id"`
	PaypalEmail       string     `json:"paypal_email"`
	Amount            int64      `json:"amount"`
	Currency          string     `json:"currency"`
	Status            string     `json:"status"`
	PayPalItemID      string     `json:"paypal_item_id,omitempty"`
	ErrorCode         string     `json:"error_code,omitempty"`
	ErrorMessage      string     `json:"error_message,omitempty"`
	ProcessedAt       *time.Time `json:"processed_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
}

// WinnerSelection is the cycle-winner row owned by the rewards platform.
// The disbursement core consumes it for eligibility and writes back only the
// payout status fields and the notification flag.
type WinnerSelection struct {
	ID                    int64  `json:"id"`
	CycleID               int64  `json:"cycle_id"`
	UserID                int64  `json:"user_id"`
	PaypalEmail           string `json:"paypal_email,omitempty"`
	SnapshotEmail         string `json:"snapshot_email,omitempty"`
	PayoutCalculated      int64  `json:"payout_calculated"`
	PayoutOverride        int64  `json:"payout_override"`
	PayoutFinal           int64  `json:"payout_final"`
	PayoutStatus          string `json:"payout_status"`
	NotificationDisplayed bool   `json:"notification_displayed"`
}

// PayoutEmail resolves the address a winner should be paid at, preferring the
// live profile value over the snapshot captured at selection time.
func (w *WinnerSelection) PayoutEmail() string {
	if w.PaypalEmail != "" {
		return w.PaypalEmail
	}
	return w.SnapshotEmail
}

// PayoutAmount resolves the cents owed: an explicit override wins over the
// calculated amount.
func (w *WinnerSelection) PayoutAmount() int64 {
	if w.PayoutOverride > 0 {
		return w.PayoutOverride
	}
	return w.PayoutCalculated
}

// UserReward is created once per successfully settled batch item and is
// immutable after creation.
type UserReward struct {
	ID          int64     `json:"-"`
	RewardID    string    `json:"reward_id"`
	BatchItemID string    `json:"batch_item_id"`
	UserID      int64     `json:"user_id"`
	CycleID     int64     `json:"cycle_id"`
	Amount      int64     `json:"amount"`
	Currency    string    `json:"currency"`
	CreatedAt   time.Time `json:"created_at"`
}

// PayoutRecipient is a single payable winner resolved by the eligibility pass.
type PayoutRecipient struct {
	WinnerSelectionID int64  `json:"winner_selection_id"`
	UserID            int64  `json:"user_id"`
	Email             string `json:"email"`
	AmountCents       int64  `json:"amount_cents"`
}

// SkippedRecipient records a winner excluded from a disbursement, with the
// reason. Winners are never silently paid zero.
type SkippedRecipient struct {
	WinnerSelectionID int64  `json:"id"`
	Email             string `json:"email,omitempty"`
	Reason            string `json:"reason"`
}

// DisbursementRequest is the canonical descriptor of one admin-triggered
// disbursement: the cycle, who triggered it, and the resolved recipient set.
type DisbursementRequest struct {
	CycleID    int64             `json:"cycle_id"`
	AdminID    int64             `json:"admin_id"`
	RequestID  string            `json:"request_id,omitempty"`
	Recipients []PayoutRecipient `json:"recipients"`
}

// TotalAmount sums the recipient amounts in cents.
func (r *DisbursementRequest) TotalAmount() int64 {
	var total int64
	for _, rec := range r.Recipients {
		total += rec.AmountCents
	}
	return total
}

// BatchSummary is the enhanced batch read for admin and audit views.
type BatchSummary struct {
	Batch          PayoutBatch       `json:"batch"`
	Items          []PayoutBatchItem `json:"items"`
	ItemCount      int               `json:"item_count"`
	SuccessAmount  int64             `json:"success_amount"`
	FailedAmount   int64             `json:"failed_amount"`
	PendingAmount  int64             `json:"pending_amount"`
	RewardsCreated int               `json:"rewards_created"`
}

// ParsedPayoutItem is one per-recipient outcome recovered from a PayPal
// payout response.
type ParsedPayoutItem struct {
	WinnerSelectionID int64  `json:"winner_selection_id"`
	UserID            int64  `json:"user_id"`
	PayPalItemID      string `json:"paypal_item_id"`
	Status            string `json:"status"`
	AmountCents       int64  `json:"amount_cents"`
	FeeCents          int64  `json:"fee_cents"`
	ErrorCode         string `json:"error_code,omitempty"`
	ErrorMessage      string `json:"error_message,omitempty"`
}

// ParsedPayoutResponse is the normalized form of a PayPal batch response.
// ItemCount always reports PayPal's total item count even when fewer items
// could be individually attributed, so aggregate accounting stays truthful.
type ParsedPayoutResponse struct {
	PayPalBatchID     string             `json:"paypal_batch_id"`
	BatchStatus       string             `json:"batch_status"`
	ItemCount         int                `json:"item_count"`
	TotalAmountCents  int64              `json:"total_amount_cents"`
	TotalFeesCents    int64              `json:"total_fees_cents"`
	IndividualResults []ParsedPayoutItem `json:"individual_results"`
}

// ReconciliationResult summarizes one reconciliation pass over a batch.
type ReconciliationResult struct {
	BatchUpdated       bool   `json:"batch_updated"`
	BatchStatus        string `json:"batch_status"`
	ItemsUpdated       int    `json:"items_updated"`
	SuccessfulPayouts  int    `json:"successful_payouts"`
	FailedPayouts      int    `json:"failed_payouts"`
	PendingPayouts     int    `json:"pending_payouts"`
	UserRewardsCreated int    `json:"user_rewards_created"`
	CycleCompleted     bool   `json:"cycle_completed"`
}

// ItemOutcome is a per-item write prepared by the reconciliation engine and
// applied by the store inside a single transaction.
type ItemOutcome struct {
	ItemID            string `json:"item_id"`
	WinnerSelectionID int64  `json:"winner_selection_id"`
	UserID            int64  `json:"user_id"`
	Status            string `json:"status"`
	AmountCents       int64  `json:"amount_cents"`
	PayPalItemID      string `json:"paypal_item_id"`
	ErrorCode         string `json:"error_code,omitempty"`
	ErrorMessage      string `json:"error_message,omitempty"`
}

// ReconciliationApplied reports what one transactional reconciliation pass
// actually changed in the store.
type ReconciliationApplied struct {
	ItemsUpdated   int    `json:"items_updated"`
	SuccessCount   int    `json:"success_count"`
	FailedCount    int    `json:"failed_count"`
	UnclaimedCount int    `json:"unclaimed_count"`
	PendingCount   int    `json:"pending_count"`
	RewardsCreated int    `json:"rewards_created"`
	BatchStatus    string `json:"batch_status"`
	CycleCompleted bool   `json:"cycle_completed"`
}

// WinnerStatus is the user-facing payout view consumed by the UI layer.
type WinnerStatus struct {
	IsWinner              bool   `json:"is_winner"`
	PayoutStatus          string `json:"payout_status,omitempty"`
	NotificationDisplayed bool   `json:"notification_displayed"`
	Amount                int64  `json:"amount,omitempty"`
}

// DeriveBatchStatus folds item status counts into the batch aggregate status.
// Any pending item keeps the batch processing; once all items are terminal the
// batch completes, fails, or lands in between.
func DeriveBatchStatus(success, failed, unclaimed, pending int) string {
	total := success + failed + unclaimed + pending
	if pending > 0 {
		return BatchStatusProcessing
	}
	if total == 0 || success == total {
		return BatchStatusCompleted
	}
	if failed == total {
		return BatchStatusFailed
	}
	return BatchStatusPartiallyCompleted
}

// DisbursementResult is returned to the admin caller after a disbursement
// request has been accepted and submitted.
type DisbursementResult struct {
	Success        bool               `json:"success"`
	BatchID        string             `json:"batch_id"`
	SenderBatchID  string             `json:"sender_batch_id"`
	Status         string             `json:"status"`
	ProcessedCount int                `json:"processed_count"`
	TotalEligible  int                `json:"total_eligible"`
	Failed         []SkippedRecipient `json:"failed"`
}
