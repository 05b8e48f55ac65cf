// Package gateway talks to the SSLCommerz-style payment gateway: session
// initialization before the citizen is redirected, and independent
// validation of callbacks before anything is settled.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/nagorik/civicledger/pkg/reconcile"
)

const (
	sessionPath    = "/gwprocess/v4/api.php"
	validationPath = "/validator/api/validationserverAPI.php"

	statusSuccess   = "SUCCESS"
	statusValid     = "VALID"
	statusValidated = "VALIDATED"

	defaultTimeout = 15 * time.Second
)

// Config carries the gateway credentials and endpoint.
type Config struct {
	BaseURL       string
	StoreID       string
	StorePassword string
	SuccessURL    string
	FailURL       string
	CancelURL     string
	Timeout       time.Duration
}

// Client implements reconcile.GatewayClient over HTTP.
type Client struct {
	config     Config
	httpClient *http.Client
}

// New returns a Client for the configured gateway.
func New(config Config) (*Client, error) {
	if strings.TrimSpace(config.BaseURL) == "" {
		return nil, fmt.Errorf("gateway base url is required")
	}
	if config.Timeout <= 0 {
		config.Timeout = defaultTimeout
	}
	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
	}, nil
}

type sessionResponse struct {
	Status         string `json:"status"`
	FailedReason   string `json:"failedreason"`
	SessionKey     string `json:"sessionkey"`
	GatewayPageURL string `json:"GatewayPageURL"`
}

// InitSession opens a gateway payment session. A transport timeout is a
// failed init, never an ambiguous success.
func (client *Client) InitSession(ctx context.Context, request reconcile.SessionRequest) (reconcile.Session, error) {
	form := url.Values{}
	form.Set("store_id", client.config.StoreID)
	form.Set("store_passwd", client.config.StorePassword)
	form.Set("total_amount", request.Amount.String())
	form.Set("currency", "BDT")
	form.Set("tran_id", request.TransactionID)
	form.Set("cus_id", request.UserID)
	form.Set("product_name", request.Purpose)
	form.Set("success_url", client.config.SuccessURL)
	form.Set("fail_url", client.config.FailURL)
	form.Set("cancel_url", client.config.CancelURL)

	httpRequest, err := http.NewRequestWithContext(ctx, http.MethodPost, client.config.BaseURL+sessionPath, strings.NewReader(form.Encode()))
	if err != nil {
		return reconcile.Session{}, err
	}
	httpRequest.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	httpResponse, err := client.httpClient.Do(httpRequest)
	if err != nil {
		return reconcile.Session{}, fmt.Errorf("session init request: %w", err)
	}
	defer func() { _ = httpResponse.Body.Close() }()
	if httpResponse.StatusCode != http.StatusOK {
		return reconcile.Session{}, fmt.Errorf("session init status %d", httpResponse.StatusCode)
	}
	body, err := io.ReadAll(httpResponse.Body)
	if err != nil {
		return reconcile.Session{}, fmt.Errorf("session init read: %w", err)
	}
	var parsed sessionResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return reconcile.Session{}, fmt.Errorf("session init decode: %w", err)
	}
	if parsed.Status != statusSuccess || parsed.GatewayPageURL == "" {
		return reconcile.Session{}, fmt.Errorf("session init rejected: %s", parsed.FailedReason)
	}
	return reconcile.Session{
		GatewayURL:    parsed.GatewayPageURL,
		SessionKey:    parsed.SessionKey,
		TransactionID: request.TransactionID,
	}, nil
}

type validationResponse struct {
	Status        string `json:"status"`
	TransactionID string `json:"tran_id"`
	Amount        string `json:"amount"`
}

// Verify re-validates a callback's val_id directly with the gateway.
func (client *Client) Verify(ctx context.Context, validationID string) (reconcile.Verification, error) {
	query := url.Values{}
	query.Set("val_id", validationID)
	query.Set("store_id", client.config.StoreID)
	query.Set("store_passwd", client.config.StorePassword)
	query.Set("format", "json")

	httpRequest, err := http.NewRequestWithContext(ctx, http.MethodGet, client.config.BaseURL+validationPath+"?"+query.Encode(), nil)
	if err != nil {
		return reconcile.Verification{}, err
	}
	httpResponse, err := client.httpClient.Do(httpRequest)
	if err != nil {
		return reconcile.Verification{}, fmt.Errorf("validation request: %w", err)
	}
	defer func() { _ = httpResponse.Body.Close() }()
	if httpResponse.StatusCode != http.StatusOK {
		return reconcile.Verification{}, fmt.Errorf("validation status %d", httpResponse.StatusCode)
	}
	body, err := io.ReadAll(httpResponse.Body)
	if err != nil {
		return reconcile.Verification{}, fmt.Errorf("validation read: %w", err)
	}
	var parsed validationResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return reconcile.Verification{}, fmt.Errorf("validation decode: %w", err)
	}
	verification := reconcile.Verification{
		Valid:         parsed.Status == statusValid || parsed.Status == statusValidated,
		TransactionID: parsed.TransactionID,
	}
	if parsed.Amount != "" {
		amount, err := decimal.NewFromString(parsed.Amount)
		if err == nil {
			verification.Amount = amount
		}
	}
	return verification, nil
}
