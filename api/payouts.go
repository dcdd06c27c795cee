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
package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	payouts "github.com/alafleur/finboost-payouts"
	model2 "github.com/alafleur/finboost-payouts/api/model"
	"github.com/alafleur/finboost-payouts/internal/apierror"
)

func pathInt64(c *gin.Context, name string) (int64, bool) {
	raw, passed := c.Params.Get(name)
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": name + " is required. pass it in the route /:" + name})
		return 0, false
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || value <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": name + " must be a positive integer"})
		return 0, false
	}
	return value, true
}

func respondError(c *gin.Context, err error) {
	c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": err.Error()})
}

// ProcessDisbursement triggers a payout batch for a cycle's winners.
func (a Api) ProcessDisbursement(c *gin.Context) {
	cycleID, ok := pathInt64(c, "cycle_id")
	if !ok {
		return
	}

	var req model2.ProcessDisbursement
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}
	if err := req.ValidateProcessDisbursement(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	resp, err := a.payouts.ProcessDisbursement(c.Request.Context(), &payouts.DisbursementInput{
		CycleID:           cycleID,
		AdminID:           req.AdminID,
		RequestID:         req.RequestID,
		ProcessAll:        req.ProcessAll,
		SelectedWinnerIDs: req.SelectedWinnerIds,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// GetEligibleCount returns the number of payable winners in a cycle.
func (a Api) GetEligibleCount(c *gin.Context) {
	cycleID, ok := pathInt64(c, "cycle_id")
	if !ok {
		return
	}

	count, err := a.payouts.EligibleRecipientCount(c.Request.Context(), cycleID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"cycle_id": cycleID, "eligible_count": count})
}

// GetCycleBatches lists the disbursement batches recorded for a cycle.
func (a Api) GetCycleBatches(c *gin.Context) {
	cycleID, ok := pathInt64(c, "cycle_id")
	if !ok {
		return
	}

	resp, err := a.payouts.GetCycleBatches(c.Request.Context(), cycleID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// GetBatch returns a single payout batch.
func (a Api) GetBatch(c *gin.Context) {
	id, passed := c.Params.Get("id")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id is required. pass id in the route /:id"})
		return
	}

	resp, err := a.payouts.GetBatch(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// GetBatchSummary returns a batch with its items and derived totals.
func (a Api) GetBatchSummary(c *gin.Context) {
	id, passed := c.Params.Get("id")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id is required. pass id in the route /:id"})
		return
	}

	resp, err := a.payouts.GetBatchSummary(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// CancelBatch cancels an unsettled batch.
func (a Api) CancelBatch(c *gin.Context) {
	id, passed := c.Params.Get("id")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id is required. pass id in the route /:id"})
		return
	}

	resp, err := a.payouts.CancelBatch(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// ReconcileBatch re-reconciles a batch from PayPal's current state.
func (a Api) ReconcileBatch(c *gin.Context) {
	id, passed := c.Params.Get("id")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id is required. pass id in the route /:id"})
		return
	}

	resp, err := a.payouts.ReconcileFromPayPal(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// ReconcileBatchFromResponse replays a captured PayPal response body against
// a stored batch.
func (a Api) ReconcileBatchFromResponse(c *gin.Context) {
	id, passed := c.Params.Get("id")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id is required. pass id in the route /:id"})
		return
	}

	var req model2.ReconcileFromResponse
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}
	if err := req.ValidateReconcileFromResponse(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	resp, err := a.payouts.ReconcileFromRaw(c.Request.Context(), id, req.RawResponse)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// GetWinnerStatus returns the user-facing payout view for a cycle.
func (a Api) GetWinnerStatus(c *gin.Context) {
	cycleID, ok := pathInt64(c, "cycle_id")
	if !ok {
		return
	}
	userID, ok := pathInt64(c, "user_id")
	if !ok {
		return
	}

	resp, err := a.payouts.GetWinnerStatus(c.Request.Context(), userID, cycleID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// ShouldNotifyPayout reports whether the user has an unseen payout outcome.
func (a Api) ShouldNotifyPayout(c *gin.Context) {
	cycleID, ok := pathInt64(c, "cycle_id")
	if !ok {
		return
	}
	userID, ok := pathInt64(c, "user_id")
	if !ok {
		return
	}

	notify, err := a.payouts.ShouldNotifyPayout(c.Request.Context(), userID, cycleID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"should_notify": notify})
}

// DismissPayoutNotification marks the user's payout outcome as seen.
func (a Api) DismissPayoutNotification(c *gin.Context) {
	cycleID, ok := pathInt64(c, "cycle_id")
	if !ok {
		return
	}

	var req model2.DismissNotification
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}
	if err := req.ValidateDismissNotification(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	if err := a.payouts.DismissPayoutNotification(c.Request.Context(), req.UserID, cycleID); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"dismissed": true})
}
