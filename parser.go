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
	"encoding/json"

	"github.com/sirupsen/logrus"

	"github.com/alafleur/finboost-payouts/internal/apierror"
	"github.com/alafleur/finboost-payouts/model"
)

// Wire structs mirroring the PayPal Payouts batch response schema. Only the
// fields the reconciliation engine consumes are declared.
type paypalWireAmount struct {
	Value    string `json:"value"`
	Currency string `json:"currency"`
}

type paypalBatchHeader struct {
	PayoutBatchID string            `json:"payout_batch_id"`
	BatchStatus   string            `json:"batch_status"`
	Amount        *paypalWireAmount `json:"amount"`
	Fees          *paypalWireAmount `json:"fees"`
}

type paypalWireError struct {
	Name    string `json:"name"`
	Message string `json:"message"`
}

type paypalResponseItem struct {
	PayoutItemID      string            `json:"payout_item_id"`
	TransactionID     string            `json:"transaction_id"`
	TransactionStatus string            `json:"transaction_status"`
	PayoutItemFee     *paypalWireAmount `json:"payout_item_fee"`
	PayoutItem        struct {
		SenderItemID string            `json:"sender_item_id"`
		Receiver     string            `json:"receiver"`
		Amount       *paypalWireAmount `json:"amount"`
	} `json:"payout_item"`
	Errors *paypalWireError `json:"errors"`
}

type paypalBatchResponse struct {
	BatchHeader *paypalBatchHeader   `json:"batch_header"`
	Items       []paypalResponseItem `json:"items"`
}

// ParsePayoutResponse normalizes a raw PayPal batch response body. A response
// without a batch_header is malformed and rejected outright; individual items
// whose sender_item_id cannot be attributed to a winner are skipped with a
// log line, but the reported ItemCount still reflects every item PayPal
// returned so aggregate accounting stays honest.
func ParsePayoutResponse(raw []byte) (*model.ParsedPayoutResponse, error) {
	var wire paypalBatchResponse
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrMalformedResponse, "paypal response is not valid JSON", err)
	}
	if wire.BatchHeader == nil || wire.BatchHeader.PayoutBatchID == "" {
		return nil, apierror.NewAPIError(apierror.ErrMalformedResponse, "paypal response missing batch_header", nil)
	}

	parsed := &model.ParsedPayoutResponse{
		PayPalBatchID:     wire.BatchHeader.PayoutBatchID,
		BatchStatus:       wire.BatchHeader.BatchStatus,
		ItemCount:         len(wire.Items),
		IndividualResults: make([]model.ParsedPayoutItem, 0, len(wire.Items)),
	}
	if wire.BatchHeader.Amount != nil {
		parsed.TotalAmountCents = model.AmountToCents(wire.BatchHeader.Amount.Value)
	}
	if wire.BatchHeader.Fees != nil {
		parsed.TotalFeesCents = model.AmountToCents(wire.BatchHeader.Fees.Value)
	}

	for _, item := range wire.Items {
		ref, ok := model.ParseSenderItemID(item.PayoutItem.SenderItemID)
		if !ok {
			logrus.Warnf("skipping unattributable payout item %q in batch %s", item.PayoutItem.SenderItemID, parsed.PayPalBatchID)
			continue
		}

		result := model.ParsedPayoutItem{
			WinnerSelectionID: ref.WinnerSelectionID,
			UserID:            ref.UserID,
			PayPalItemID:      item.PayoutItemID,
			Status:            model.MapPayPalItemStatus(item.TransactionStatus),
		}
		if item.PayoutItem.Amount != nil {
			result.AmountCents = model.AmountToCents(item.PayoutItem.Amount.Value)
		}
		if item.PayoutItemFee != nil {
			result.FeeCents = model.AmountToCents(item.PayoutItemFee.Value)
		}
		if item.Errors != nil {
			result.ErrorCode = item.Errors.Name
			result.ErrorMessage = item.Errors.Message
		}
		if ref.Legacy {
			// Keep a breadcrumb for items paid before the encoded-id format.
			if result.ErrorMessage != "" {
				result.ErrorMessage = ref.LegacyMarker + " " + result.ErrorMessage
			} else {
				result.ErrorMessage = ref.LegacyMarker
			}
		}
		parsed.IndividualResults = append(parsed.IndividualResults, result)
	}

	return parsed, nil
}
