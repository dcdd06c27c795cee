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
	"embed"

	"github.com/alafleur/finboost-payouts/cache"
	"github.com/alafleur/finboost-payouts/config"
	"github.com/alafleur/finboost-payouts/database"
)

//go:embed sql/*.sql
var SQLFiles embed.FS

// Payouts is the disbursement orchestration service: it resolves eligible
// winners, creates idempotent PayPal payout batches, submits them, and
// reconciles PayPal's reported outcomes back into storage.
type Payouts struct {
	datasource database.IDataSource
	paypal     *PayPalClient
	queue      *Queue
	cache      cache.Cache
}

// NewPayouts initializes the service from the loaded configuration.
func NewPayouts(db database.IDataSource) (*Payouts, error) {
	configuration, err := config.Fetch()
	if err != nil {
		return nil, err
	}

	ca, err := cache.NewCache()
	if err != nil {
		return nil, err
	}

	return &Payouts{
		datasource: db,
		paypal:     NewPayPalClient(&configuration.PayPal),
		queue:      NewQueue(configuration),
		cache:      ca,
	}, nil
}
