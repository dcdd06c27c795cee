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

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// checksumEnvelope is the canonical object hashed to detect identical
// disbursement requests. Field order is fixed by declaration order, which is
// what encoding/json emits, so serialization is deterministic.
type checksumEnvelope struct {
	CycleID          int64    `json:"cycleId"`
	AdminID          int64    `json:"adminId"`
	TotalAmountCents int64    `json:"totalAmountCents"`
	RecipientCount   int      `json:"recipientCount"`
	RecipientEmails  []string `json:"recipientEmails"`
	RequestID        string   `json:"requestId"`
}

// Checksum derives the SHA-256 hash of the canonical request descriptor.
// Recipient emails are sorted so the hash is order-independent: the same set
// of winners always produces the same checksum regardless of selection order.
func (r *DisbursementRequest) Checksum() string {
	emails := make([]string, 0, len(r.Recipients))
	for _, rec := range r.Recipients {
		emails = append(emails, strings.ToLower(rec.Email))
	}
	sort.Strings(emails)

	envelope := checksumEnvelope{
		CycleID:          r.CycleID,
		AdminID:          r.AdminID,
		TotalAmountCents: r.TotalAmount(),
		RecipientCount:   len(r.Recipients),
		RecipientEmails:  emails,
		RequestID:        r.RequestID,
	}
	data, _ := json.Marshal(envelope)
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}

// SenderBatchID derives the PayPal sender_batch_id from the cycle, the first
// 16 hex characters of the request checksum, and the attempt counter. PayPal
// deduplicates submissions by this id, so a retried-but-unchanged request
// resolves to the original batch. Only attempts after an explicit cancel mint
// a new id.
func SenderBatchID(cycleID int64, checksum string, attempt int) string {
	short := checksum
	if len(short) > 16 {
		short = short[:16]
	}
	id := fmt.Sprintf("cycle-%d-%s", cycleID, short)
	if attempt > 1 {
		id = fmt.Sprintf("%s-attempt-%d", id, attempt)
	}
	return id
}

// EncodeSenderItemID encodes the winner selection id and user id into the
// PayPal sender_item_id so both can be recovered losslessly from a response.
func EncodeSenderItemID(winnerSelectionID, userID int64) string {
	return fmt.Sprintf("winner-%d-%d", winnerSelectionID, userID)
}

var (
	senderItemPattern       = regexp.MustCompile(`^winner-(\d+)-(\d+)$`)
	legacySenderItemPattern = regexp.MustCompile(`^user_(\d+)_cycle_(\d+)_(\d+)$`)
)

// SenderItemRef is the identity recovered from a sender_item_id. Legacy-format
// ids carry no winner selection id; those parse with WinnerSelectionID = -1
// and an audit marker so they are never silently dropped.
type SenderItemRef struct {
	WinnerSelectionID int64
	UserID            int64
	Legacy            bool
	LegacyMarker      string
}

// ParseSenderItemID recovers the winner/user identity from a sender_item_id.
// It accepts the current "winner-{id}-{userId}" form and the legacy
// "user_{userId}_cycle_{cycleId}_{timestamp}" form. Anything else returns
// ok=false and is treated as foreign rather than an error.
func ParseSenderItemID(s string) (SenderItemRef, bool) {
	if m := senderItemPattern.FindStringSubmatch(s); m != nil {
		winnerID, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			return SenderItemRef{}, false
		}
		userID, err := strconv.ParseInt(m[2], 10, 64)
		if err != nil {
			return SenderItemRef{}, false
		}
		return SenderItemRef{WinnerSelectionID: winnerID, UserID: userID}, true
	}

	if m := legacySenderItemPattern.FindStringSubmatch(s); m != nil {
		userID, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			return SenderItemRef{}, false
		}
		return SenderItemRef{
			WinnerSelectionID: -1,
			UserID:            userID,
			Legacy:            true,
			LegacyMarker:      fmt.Sprintf("[LEGACY_FORMAT: cycle_%s]", m[2]),
		}, true
	}

	return SenderItemRef{}, false
}

// AmountToCents converts a decimal-string dollar amount to integer cents
// using exact decimal arithmetic. Invalid strings convert to 0 rather than
// failing, so one malformed amount cannot abort a whole batch reconciliation.
func AmountToCents(s string) int64 {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return 0
	}
	return d.Mul(decimal.NewFromInt(100)).IntPart()
}

// CentsToAmount renders integer cents as the two-decimal dollar string PayPal
// expects, using exact decimal arithmetic rather than float formatting.
func CentsToAmount(cents int64) string {
	return decimal.NewFromInt(cents).Div(decimal.NewFromInt(100)).StringFixed(2)
}

// MapPayPalItemStatus maps a PayPal transaction_status onto the internal item
// status set. Unrecognized values map to failed: an unknown outcome is never
// assumed to be a successful payment.
func MapPayPalItemStatus(s string) string {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "SUCCESS", "COMPLETED":
		return ItemStatusSuccess
	case "PENDING", "ONHOLD", "RETURNED":
		return ItemStatusPending
	case "UNCLAIMED":
		return ItemStatusUnclaimed
	case "FAILED", "DENIED", "BLOCKED", "REFUNDED":
		return ItemStatusFailed
	default:
		return ItemStatusFailed
	}
}
