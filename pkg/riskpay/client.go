package riskpay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	pkgerrors "github.com/rrsoftech/agencypay-backend/pkg/errors"
)

const (
	defaultAPIBaseURL            = "https://api.riskpay.biz/control"
	defaultPaymentPageURL        = "https://pay.riskpay.biz/payment-processing.php"
	walletEndpoint               = "wallet.php"
	statusEndpoint               = "payment-status.php"
	responseBodyReadLimit  int64 = 1024
)

// Gateway outcome statuses reported by RiskPay.
const (
	StatusAccept = "ACCEPT"
	StatusReject = "REJECT"
	StatusFailed = "FAILED"
)

var errMerchantWalletRequired = errors.New("riskpay merchant wallet address is required")

// Client talks to the RiskPay crypto payment gateway.
type Client struct {
	httpClient     *http.Client
	apiBaseURL     string
	paymentPageURL string
	merchantWallet string
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithAPIBaseURL overrides the gateway API base URL.
func WithAPIBaseURL(baseURL string) Option {
	return func(c *Client) {
		trimmed := strings.TrimSpace(baseURL)
		if trimmed != "" {
			c.apiBaseURL = trimmed
		}
	}
}

// WithPaymentPageURL overrides the hosted payment page URL.
func WithPaymentPageURL(pageURL string) Option {
	return func(c *Client) {
		trimmed := strings.TrimSpace(pageURL)
		if trimmed != "" {
			c.paymentPageURL = trimmed
		}
	}
}

// WithTimeout overrides the default request timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient.Timeout = timeout
		}
	}
}

// NewClient builds a RiskPay client for the given merchant wallet.
func NewClient(merchantWallet string, opts ...Option) (*Client, error) {
	trimmedWallet := strings.TrimSpace(merchantWallet)
	if trimmedWallet == "" {
		return nil, errMerchantWalletRequired
	}

	client := &Client{
		merchantWallet: trimmedWallet,
		apiBaseURL:     defaultAPIBaseURL,
		paymentPageURL: defaultPaymentPageURL,
		httpClient:     &http.Client{Timeout: 10 * time.Second},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}

	if client.httpClient == nil {
		client.httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	if client.apiBaseURL == "" {
		client.apiBaseURL = defaultAPIBaseURL
	}
	if client.paymentPageURL == "" {
		client.paymentPageURL = defaultPaymentPageURL
	}

	return client, nil
}

// Allocation holds the deposit address set issued by the gateway.
type Allocation struct {
	AddressIn        string `json:"address_in"`
	PolygonAddressIn string `json:"polygon_address_in"`
	IPNToken         string `json:"ipn_token"`
}

// StatusResult is the gateway's view of one payment, keyed by IPN token.
type StatusResult struct {
	Status      string           `json:"status"`
	TxidOut     *string          `json:"txid_out"`
	Coin        *string          `json:"coin"`
	ValueInCoin *decimal.Decimal `json:"value_coin"`
}

// Accepted reports whether the gateway confirmed the payment.
func (s StatusResult) Accepted() bool {
	return strings.EqualFold(s.Status, StatusAccept)
}

// Rejected reports whether the gateway terminally declined the payment.
func (s StatusResult) Rejected() bool {
	upper := strings.ToUpper(s.Status)
	return upper == StatusReject || upper == StatusFailed
}

// AllocateAddress asks the gateway for a deposit address tied to the callback.
func (c *Client) AllocateAddress(ctx context.Context, callbackURL string) (*Allocation, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "riskpay client not configured")
	}
	if strings.TrimSpace(callbackURL) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "callback URL is required")
	}

	endpoint := c.buildURL(walletEndpoint)
	query := url.Values{}
	query.Set("address", c.merchantWallet)
	query.Set("callback", callbackURL)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+query.Encode(), nil)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build wallet request")
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute wallet request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))), "wallet request failed")
	}

	var allocation Allocation
	if err := json.NewDecoder(resp.Body).Decode(&allocation); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode wallet response")
	}
	if allocation.AddressIn == "" || allocation.IPNToken == "" {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "wallet response missing address or ipn token")
	}

	return &allocation, nil
}

// QueryStatus fetches the current payment status for the given IPN token.
func (c *Client) QueryStatus(ctx context.Context, ipnToken string) (*StatusResult, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "riskpay client not configured")
	}
	trimmed := strings.TrimSpace(ipnToken)
	if trimmed == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "ipn token is required")
	}

	endpoint := c.buildURL(statusEndpoint)
	query := url.Values{}
	query.Set("ipn_token", trimmed)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+query.Encode(), nil)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build status request")
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute status request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))), "status request failed")
	}

	var result StatusResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode status response")
	}

	return &result, nil
}

// BuildPaymentURL constructs the hosted payment page URL for the payer's browser.
func (c *Client) BuildPaymentURL(depositAddress string, chargeAmount decimal.Decimal, providerCode, payerEmail string) string {
	query := url.Values{}
	query.Set("amount", chargeAmount.StringFixed(2))
	query.Set("provider", providerCode)
	query.Set("email", payerEmail)
	query.Set("currency", "USD")
	return fmt.Sprintf("%s?address=%s&%s", c.paymentPageURL, url.QueryEscape(depositAddress), query.Encode())
}

func (c *Client) buildURL(path string) string {
	trimmed := strings.TrimRight(c.apiBaseURL, "/")
	path = strings.TrimLeft(path, "/")
	return fmt.Sprintf("%s/%s", trimmed, path)
}
