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
	"github.com/gin-gonic/gin"

	payouts "github.com/alafleur/finboost-payouts"
	"github.com/alafleur/finboost-payouts/api/middleware"
	"github.com/alafleur/finboost-payouts/config"
)

type Api struct {
	payouts *payouts.Payouts
	router  *gin.Engine
}

func (a Api) Router() *gin.Engine {
	router := a.router
	router.POST("/cycles/:cycle_id/disbursements", a.ProcessDisbursement)
	router.GET("/cycles/:cycle_id/disbursements", a.GetCycleBatches)
	router.GET("/cycles/:cycle_id/eligible-count", a.GetEligibleCount)

	router.GET("/disbursements/:id", a.GetBatch)
	router.GET("/disbursements/:id/summary", a.GetBatchSummary)
	router.POST("/disbursements/:id/cancel", a.CancelBatch)
	router.POST("/disbursements/:id/reconcile", a.ReconcileBatch)
	router.POST("/disbursements/:id/reconcile-from-response", a.ReconcileBatchFromResponse)

	router.GET("/cycles/:cycle_id/winners/:user_id/status", a.GetWinnerStatus)
	router.GET("/cycles/:cycle_id/winners/:user_id/notification", a.ShouldNotifyPayout)
	router.POST("/cycles/:cycle_id/notifications/dismiss", a.DismissPayoutNotification)

	return a.router
}

func NewAPI(p *payouts.Payouts) *Api {
	gin.SetMode(gin.ReleaseMode)
	conf, err := config.Fetch()
	if err != nil {
		return nil
	}
	r := gin.Default()
	if conf.Server.Secure {
		r.Use(middleware.SecretKeyAuthMiddleware())
	}
	r.Use(middleware.RateLimitMiddleware(conf))

	r.GET("/", func(c *gin.Context) {
		c.JSON(200, "server running...")
	})

	return &Api{payouts: p, router: r}
}
