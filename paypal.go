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
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"github.com/alafleur/finboost-payouts/config"
	"github.com/alafleur/finboost-payouts/internal/apierror"
	"github.com/alafleur/finboost-payouts/internal/request"
	"github.com/alafleur/finboost-payouts/model"
)

// PayPalClient talks to the PayPal Payouts API. Access tokens are cached
// until shortly before expiry and refreshed under a mutex.
type PayPalClient struct {
	baseURL      string
	clientID     string
	clientSecret string
	currency     string
	emailSubject string
	maxRetries   uint64
	httpClient   *http.Client

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

// NewPayPalClient builds a client from the loaded PayPal configuration.
func NewPayPalClient(conf *config.PayPalConfig) *PayPalClient {
	return &PayPalClient{
		baseURL:      strings.TrimRight(conf.BaseURL, "/"),
		clientID:     conf.ClientID,
		clientSecret: conf.ClientSecret,
		currency:     conf.Currency,
		emailSubject: conf.EmailSubject,
		maxRetries:   uint64(conf.MaxRetries),
		httpClient:   &http.Client{Timeout: time.Duration(conf.TimeoutSec) * time.Second},
	}
}

// SubmissionResult reports the outcome of one submission call. Ambiguous is
// set when the request timed out after it may have reached PayPal; the caller
// must not retry with a fresh sender_batch_id in that case.
type SubmissionResult struct {
	Accepted  bool
	Ambiguous bool
	RawBody   []byte
	Parsed    *model.ParsedPayoutResponse
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// senderBatchHeader and payoutWireItem mirror the PayPal Payouts request
// schema.
type senderBatchHeader struct {
	SenderBatchID string `json:"sender_batch_id"`
	EmailSubject  string `json:"email_subject"`
	RecipientType string `json:"recipient_type"`
}

type payoutWireAmount struct {
	Value    string `json:"value"`
	Currency string `json:"currency"`
}

type payoutWireItem struct {
	RecipientType string           `json:"recipient_type"`
	Amount        payoutWireAmount `json:"amount"`
	Receiver      string           `json:"receiver"`
	SenderItemID  string           `json:"sender_item_id"`
	Note          string           `json:"note,omitempty"`
}

type payoutWireRequest struct {
	SenderBatchHeader senderBatchHeader `json:"sender_batch_header"`
	Items             []payoutWireItem  `json:"items"`
}

// token returns a valid access token, fetching a fresh one from the OAuth
// endpoint when the cached token is absent or about to expire.
func (p *PayPalClient) token(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.accessToken != "" && time.Now().Before(p.tokenExpiry) {
		return p.accessToken, nil
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf("%s/v1/oauth2/token", p.baseURL), strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", fmt.Sprintf("Basic %s", request.BasicAuth(p.clientID, p.clientSecret)))

	var token tokenResponse
	resp, _, err := request.Call(p.httpClient, req, &token)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK || token.AccessToken == "" {
		return "", apierror.NewAPIError(apierror.ErrTerminalSubmission, fmt.Sprintf("paypal auth failed with status %d", resp.StatusCode), nil)
	}

	p.accessToken = token.AccessToken
	// Renew a minute early so in-flight calls never present a stale token.
	p.tokenExpiry = time.Now().Add(time.Duration(token.ExpiresIn-60) * time.Second)
	return p.accessToken, nil
}

// SubmitPayout submits the batch to the Payouts API. Transport errors and 5xx
// responses retry with exponential backoff; 4xx responses are terminal and
// stop retrying immediately. A request timeout returns an ambiguous result
// with no error wrapping loss: PayPal may or may not have accepted the batch,
// so the caller keeps the same sender_batch_id for any later resubmission.
func (p *PayPalClient) SubmitPayout(ctx context.Context, batch *model.PayoutBatch, items []*model.PayoutBatchItem) (*SubmissionResult, error) {
	payload := payoutWireRequest{
		SenderBatchHeader: senderBatchHeader{
			SenderBatchID: batch.SenderBatchID,
			EmailSubject:  p.emailSubject,
			RecipientType: "EMAIL",
		},
		Items: make([]payoutWireItem, 0, len(items)),
	}
	for _, item := range items {
		payload.Items = append(payload.Items, payoutWireItem{
			RecipientType: "EMAIL",
			Amount: payoutWireAmount{
				Value:    model.CentsToAmount(item.Amount),
				Currency: p.currency,
			},
			Receiver:     item.PaypalEmail,
			SenderItemID: model.EncodeSenderItemID(item.WinnerSelectionID, item.UserID),
		})
	}

	var result *SubmissionResult
	operation := func() error {
		res, err := p.submitOnce(ctx, payload)
		if err != nil {
			return err
		}
		result = res
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), p.maxRetries), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		if isTimeout(err) {
			// The request may have reached PayPal before the deadline fired.
			logrus.Warnf("paypal submission timed out for %s; outcome ambiguous", batch.SenderBatchID)
			return &SubmissionResult{Ambiguous: true}, nil
		}
		var apiErr apierror.APIError
		if errors.As(err, &apiErr) {
			return nil, err
		}
		return nil, apierror.NewAPIError(apierror.ErrTransientSubmission, "paypal submission failed after retries", err)
	}
	return result, nil
}

func (p *PayPalClient) submitOnce(ctx context.Context, payload payoutWireRequest) (*SubmissionResult, error) {
	accessToken, err := p.token(ctx)
	if err != nil {
		return nil, err
	}

	body, err := request.ToJsonReq(payload)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf("%s/v1/payments/payouts", p.baseURL), body)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", accessToken))

	resp, raw, err := request.Call(p.httpClient, req, nil)
	if err != nil {
		return nil, err
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		parsed, parseErr := ParsePayoutResponse(raw)
		if parseErr != nil {
			// Accepted but unreadable: surface the raw body so the batch can
			// still be reconciled from it later.
			logrus.Errorf("paypal accepted batch but response did not parse: %v", parseErr)
			return &SubmissionResult{Accepted: true, RawBody: raw}, nil
		}
		return &SubmissionResult{Accepted: true, RawBody: raw, Parsed: parsed}, nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return nil, backoff.Permanent(apierror.NewAPIError(apierror.ErrTerminalSubmission,
			fmt.Sprintf("paypal rejected payout with status %d", resp.StatusCode), string(raw)))
	default:
		return nil, apierror.NewAPIError(apierror.ErrTransientSubmission,
			fmt.Sprintf("paypal returned status %d", resp.StatusCode), string(raw))
	}
}

// GetPayoutBatch fetches the current state of a previously submitted batch by
// its PayPal batch id. Used by on-demand reconciliation.
func (p *PayPalClient) GetPayoutBatch(ctx context.Context, paypalBatchID string) (*model.ParsedPayoutResponse, []byte, error) {
	accessToken, err := p.token(ctx)
	if err != nil {
		return nil, nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/v1/payments/payouts/%s", p.baseURL, paypalBatchID), nil)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", accessToken))

	resp, raw, err := request.Call(p.httpClient, req, nil)
	if err != nil {
		return nil, nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, raw, apierror.NewAPIError(apierror.ErrTransientSubmission,
			fmt.Sprintf("paypal payout lookup returned status %d", resp.StatusCode), string(raw))
	}

	parsed, err := ParsePayoutResponse(raw)
	if err != nil {
		return nil, raw, err
	}
	return parsed, raw, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
