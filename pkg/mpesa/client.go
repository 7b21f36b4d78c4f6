package mpesa

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/angelmondragon/dukalink-backend/pkg/config"
	"github.com/angelmondragon/dukalink-backend/pkg/metrics"
)

const (
	oauthPath    = "/oauth/v1/generate?grant_type=client_credentials"
	stkPushPath  = "/mpesa/stkpush/v1/processrequest"
	stkQueryPath = "/mpesa/stkpushquery/v1/query"

	opToken    = "oauth"
	opSTKPush  = "stk_push"
	opSTKQuery = "stk_query"

	defaultTransactionType = "CustomerPayBillOnline"
	defaultReference       = "OrderPayment"
	defaultDescription     = "Payment for goods"
	maxReferenceLength     = 12
	maxDescriptionLength   = 13

	responseBodyReadLimit int64 = 64 << 10
	defaultRequestTimeout       = 30 * time.Second

	// Returned by the query API while the customer has not answered the prompt.
	queryStillProcessingCode = "500.001.1001"
)

var (
	errConsumerKeyRequired = errors.New("mpesa consumer key and secret are required")
	errShortcodeRequired   = errors.New("mpesa shortcode and passkey are required")
	errCallbackRequired    = errors.New("mpesa callback url is required")
)

// Client talks to the Daraja STK push API.
type Client struct {
	httpClient      *http.Client
	baseURL         string
	consumerKey     string
	consumerSecret  string
	shortcode       string
	passkey         string
	callbackURL     string
	transactionType string
	limiter         *rate.Limiter
	metrics         *metrics.GatewayMetrics
	tokens          *tokenCache
	now             func() time.Time
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

// WithBaseURL overrides the environment derived base URL.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/"); trimmed != "" {
			c.baseURL = trimmed
		}
	}
}

// WithMetrics records every outbound call.
func WithMetrics(m *metrics.GatewayMetrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithLimiter replaces the client-side throttle.
func WithLimiter(l *rate.Limiter) Option {
	return func(c *Client) {
		if l != nil {
			c.limiter = l
		}
	}
}

// WithClock overrides time.Now, used for timestamps and token expiry.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// NewClient builds the gateway client from configuration.
func NewClient(cfg config.MpesaConfig, opts ...Option) (*Client, error) {
	if strings.TrimSpace(cfg.ConsumerKey) == "" || strings.TrimSpace(cfg.ConsumerSecret) == "" {
		return nil, errConsumerKeyRequired
	}
	if strings.TrimSpace(cfg.Shortcode) == "" || strings.TrimSpace(cfg.Passkey) == "" {
		return nil, errShortcodeRequired
	}
	if strings.TrimSpace(cfg.CallbackURL) == "" {
		return nil, errCallbackRequired
	}

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 1
	}

	c := &Client{
		httpClient:      &http.Client{Timeout: timeout},
		baseURL:         cfg.ResolvedBaseURL(),
		consumerKey:     strings.TrimSpace(cfg.ConsumerKey),
		consumerSecret:  strings.TrimSpace(cfg.ConsumerSecret),
		shortcode:       strings.TrimSpace(cfg.Shortcode),
		passkey:         strings.TrimSpace(cfg.Passkey),
		callbackURL:     strings.TrimSpace(cfg.CallbackURL),
		transactionType: defaultTransactionType,
		limiter:         rate.NewLimiter(limit, burst),
		now:             time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	c.tokens = &tokenCache{fetch: c.fetchToken, now: c.now, timeout: timeout}
	return c, nil
}

// STKPushRequest is one push-payment prompt for a single vendor order.
type STKPushRequest struct {
	Phone       string
	Amount      decimal.Decimal
	Reference   string
	Description string
}

// STKPushResponse is the gateway's acceptance of a push request.
type STKPushResponse struct {
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	CustomerMessage     string `json:"CustomerMessage"`
	Phone               string `json:"-"`
	Amount              int64  `json:"-"`
}

type stkPushPayload struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	TransactionType   string `json:"TransactionType"`
	Amount            int64  `json:"Amount"`
	PartyA            string `json:"PartyA"`
	PartyB            string `json:"PartyB"`
	PhoneNumber       string `json:"PhoneNumber"`
	CallBackURL       string `json:"CallBackURL"`
	AccountReference  string `json:"AccountReference"`
	TransactionDesc   string `json:"TransactionDesc"`
}

// Initiate sends an STK push prompt to the payer's phone.
func (c *Client) Initiate(ctx context.Context, req STKPushRequest) (*STKPushResponse, error) {
	phone, err := NormalizePhone(req.Phone)
	if err != nil {
		return nil, &GatewayError{Kind: KindRejected, Operation: opSTKPush, Message: "invalid phone number", Err: err}
	}
	amount := GatewayAmount(req.Amount)
	if amount < 1 {
		return nil, &GatewayError{Kind: KindRejected, Operation: opSTKPush, Message: "amount must be at least 1"}
	}

	timestamp := Timestamp(c.now())
	payload := stkPushPayload{
		BusinessShortCode: c.shortcode,
		Password:          Password(c.shortcode, c.passkey, timestamp),
		Timestamp:         timestamp,
		TransactionType:   c.transactionType,
		Amount:            amount,
		PartyA:            phone,
		PartyB:            c.shortcode,
		PhoneNumber:       phone,
		CallBackURL:       c.callbackURL,
		AccountReference:  truncate(req.Reference, defaultReference, maxReferenceLength),
		TransactionDesc:   truncate(req.Description, defaultDescription, maxDescriptionLength),
	}

	var out STKPushResponse
	if err := c.do(ctx, opSTKPush, stkPushPath, payload, &out); err != nil {
		return nil, err
	}
	if out.ResponseCode != "0" {
		return nil, &GatewayError{Kind: KindRejected, Operation: opSTKPush, Code: out.ResponseCode, Message: out.ResponseDescription}
	}
	if strings.TrimSpace(out.CheckoutRequestID) == "" {
		return nil, &GatewayError{Kind: KindRejected, Operation: opSTKPush, Message: "response missing CheckoutRequestID"}
	}
	out.Phone = phone
	out.Amount = amount
	return &out, nil
}

// QueryResult is the gateway's view of a push request.
type QueryResult struct {
	CheckoutRequestID string
	ResultCode        string
	ResultDesc        string
	State             ResultState
}

type stkQueryPayload struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	CheckoutRequestID string `json:"CheckoutRequestID"`
}

type stkQueryResponse struct {
	ResponseCode      string     `json:"ResponseCode"`
	CheckoutRequestID string     `json:"CheckoutRequestID"`
	ResultCode        flexString `json:"ResultCode"`
	ResultDesc        string     `json:"ResultDesc"`
}

// QueryStatus asks the gateway for the outcome of a push request. A request
// the customer has not answered yet reports StatePending, not an error.
func (c *Client) QueryStatus(ctx context.Context, checkoutRequestID string) (*QueryResult, error) {
	id := strings.TrimSpace(checkoutRequestID)
	if id == "" {
		return nil, &GatewayError{Kind: KindRejected, Operation: opSTKQuery, Message: "checkout request id is required"}
	}

	timestamp := Timestamp(c.now())
	payload := stkQueryPayload{
		BusinessShortCode: c.shortcode,
		Password:          Password(c.shortcode, c.passkey, timestamp),
		Timestamp:         timestamp,
		CheckoutRequestID: id,
	}

	var out stkQueryResponse
	if err := c.do(ctx, opSTKQuery, stkQueryPath, payload, &out); err != nil {
		var gw *GatewayError
		if errors.As(err, &gw) && gw.Code == queryStillProcessingCode {
			return &QueryResult{CheckoutRequestID: id, ResultCode: ResultCodePending, ResultDesc: gw.Message, State: StatePending}, nil
		}
		return nil, err
	}

	code := string(out.ResultCode)
	return &QueryResult{
		CheckoutRequestID: id,
		ResultCode:        code,
		ResultDesc:        out.ResultDesc,
		State:             StateForResultCode(code),
	}, nil
}

func (c *Client) do(ctx context.Context, op, path string, body, out any) error {
	start := time.Now()
	err := c.call(ctx, op, path, body, out, true)
	outcome := "ok"
	if kind, ok := KindOf(err); ok {
		outcome = string(kind)
	} else if err != nil {
		outcome = "error"
	}
	c.metrics.Observe(op, outcome, time.Since(start))
	return err
}

func (c *Client) call(ctx context.Context, op, path string, body, out any, retryAuth bool) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return &GatewayError{Kind: KindRateLimited, Operation: op, Message: "client-side rate limit", Err: err}
	}

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return err
	}

	encoded, err := json.Marshal(body)
	if err != nil {
		return &GatewayError{Kind: KindRejected, Operation: op, Err: fmt.Errorf("marshal request: %w", err)}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return &GatewayError{Kind: KindConnectionError, Operation: op, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return transportError(op, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
	if err != nil {
		return transportError(op, err)
	}

	if resp.StatusCode == http.StatusUnauthorized && retryAuth {
		c.tokens.Invalidate(token)
		return c.call(ctx, op, path, body, out, false)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr apiErrorBody
		_ = json.Unmarshal(raw, &apiErr)
		return statusError(op, resp.StatusCode, apiErr)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &GatewayError{Kind: KindRejected, Operation: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

type oauthResponse struct {
	AccessToken string     `json:"access_token"`
	ExpiresIn   flexString `json:"expires_in"`
}

func (c *Client) fetchToken(ctx context.Context) (accessToken, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+oauthPath, nil)
	if err != nil {
		return accessToken{}, &GatewayError{Kind: KindConnectionError, Operation: opToken, Err: err}
	}
	req.SetBasicAuth(c.consumerKey, c.consumerSecret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return accessToken{}, transportError(opToken, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
	if err != nil {
		return accessToken{}, transportError(opToken, err)
	}
	if resp.StatusCode != http.StatusOK {
		var apiErr apiErrorBody
		_ = json.Unmarshal(raw, &apiErr)
		gw := statusError(opToken, resp.StatusCode, apiErr)
		if gw.Kind == KindRejected {
			gw.Kind = KindAuthFailure
		}
		return accessToken{}, gw
	}

	var out oauthResponse
	if err := json.Unmarshal(raw, &out); err != nil || strings.TrimSpace(out.AccessToken) == "" {
		return accessToken{}, &GatewayError{Kind: KindAuthFailure, Operation: opToken, Message: "no access token in response", Err: err}
	}
	seconds, err := strconv.Atoi(string(out.ExpiresIn))
	if err != nil || seconds <= 0 {
		seconds = 3599
	}
	return accessToken{
		value:     out.AccessToken,
		expiresAt: c.now().Add(time.Duration(seconds) * time.Second),
	}, nil
}

// GatewayAmount converts a decimal total into the whole-shilling amount the
// gateway accepts, rounding fractions up.
func GatewayAmount(amount decimal.Decimal) int64 {
	return amount.Ceil().IntPart()
}

func truncate(value, fallback string, limit int) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		trimmed = fallback
	}
	runes := []rune(trimmed)
	if len(runes) > limit {
		return string(runes[:limit])
	}
	return trimmed
}
