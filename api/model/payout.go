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
	"encoding/json"
	"errors"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// ProcessDisbursement is the admin request body for paying out a cycle.
// Exactly one of ProcessAll or SelectedWinnerIds must be provided.
type ProcessDisbursement struct {
	AdminID           int64   `json:"admin_id"`
	RequestID         string  `json:"request_id"`
	ProcessAll        bool    `json:"process_all"`
	SelectedWinnerIds []int64 `json:"selected_winner_ids"`
}

func processAllOrSelectionValidation(d *ProcessDisbursement) validation.RuleFunc {
	return func(value interface{}) error {
		if (!d.ProcessAll && len(d.SelectedWinnerIds) == 0) || (d.ProcessAll && len(d.SelectedWinnerIds) > 0) {
			return errors.New("either process_all or selected_winner_ids is required, not both")
		}
		return nil
	}
}

func (d *ProcessDisbursement) ValidateProcessDisbursement() error {
	return validation.ValidateStruct(d,
		validation.Field(&d.AdminID, validation.Required, validation.Min(int64(1))),
		validation.Field(&d.ProcessAll, validation.By(processAllOrSelectionValidation(d))),
		validation.Field(&d.SelectedWinnerIds, validation.Each(validation.Min(int64(1)))),
	)
}

// ReconcileFromResponse carries a raw PayPal batch response to replay against
// a stored batch.
type ReconcileFromResponse struct {
	RawResponse json.RawMessage `json:"raw_response"`
}

func (r *ReconcileFromResponse) ValidateReconcileFromResponse() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.RawResponse, validation.Required),
	)
}

// DismissNotification identifies whose payout notification to mark as seen.
type DismissNotification struct {
	UserID int64 `json:"user_id"`
}

func (d *DismissNotification) ValidateDismissNotification() error {
	return validation.ValidateStruct(d,
		validation.Field(&d.UserID, validation.Required, validation.Min(int64(1))),
	)
}
