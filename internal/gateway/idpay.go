package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/asoud/payment-core/internal/config"
	"github.com/asoud/payment-core/internal/domain/gateway"
)

// IDPay status codes (subset)
const (
	idpayStatusAwaitingVerify  = 10
	idpayStatusVerified        = 100
	idpayStatusAlreadyVerified = 101
)

// IDPayAdapter implements the IDPay v1.1 JSON API. IDPay has no programmatic
// refund endpoint, so refunds for this gateway are rejected before any
// outbound call.
type IDPayAdapter struct {
	logger          *slog.Logger
	client          *http.Client
	apiKey          string
	baseURL         string
	sandbox         bool
	callbackBaseURL string
}

// NewIDPay creates an IDPay adapter from configuration
func NewIDPay(logger *slog.Logger, cfg *config.IDPayConfig, callbackBaseURL string) *IDPayAdapter {
	return &IDPayAdapter{
		logger:          logger,
		client:          &http.Client{Timeout: cfg.Timeout},
		apiKey:          cfg.APIKey,
		baseURL:         cfg.BaseURL,
		sandbox:         cfg.Sandbox,
		callbackBaseURL: callbackBaseURL,
	}
}

func (a *IDPayAdapter) Name() gateway.Name {
	return gateway.IDPay
}

func (a *IDPayAdapter) SupportsRefunds() bool {
	return false
}

type idpayCreateBody struct {
	OrderID  string `json:"order_id"`
	Amount   int64  `json:"amount"`
	Desc     string `json:"desc,omitempty"`
	Callback string `json:"callback"`
}

type idpayCreateResponse struct {
	ID   string `json:"id"`
	Link string `json:"link"`
}

type idpayVerifyBody struct {
	ID      string `json:"id"`
	OrderID string `json:"order_id"`
}

type idpayVerifyResponse struct {
	Status  int    `json:"status"`
	TrackID any    `json:"track_id"`
	ID      string `json:"id"`
	OrderID string `json:"order_id"`
	Amount  int64  `json:"amount,string"`
}

type idpayErrorResponse struct {
	ErrorCode    int    `json:"error_code"`
	ErrorMessage string `json:"error_message"`
}

// Initiate creates the payment and returns the provider id plus the payment
// link
func (a *IDPayAdapter) Initiate(ctx context.Context, req gateway.InitiateRequest) (*gateway.InitiateResult, error) {
	body := idpayCreateBody{
		OrderID:  req.TransactionID.String(),
		Amount:   req.Amount,
		Desc:     req.Description,
		Callback: fmt.Sprintf("%s/webhooks/%s", a.callbackBaseURL, gateway.IDPay),
	}

	raw, status, err := a.post(ctx, a.baseURL+"/payment", body)
	if err != nil {
		return nil, err
	}
	if status != http.StatusCreated && status != http.StatusOK {
		return nil, a.mapError(raw, status)
	}

	var resp idpayCreateResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("%w: undecodable idpay response: %v", gateway.ErrUnavailable, err)
	}
	if resp.ID == "" {
		return nil, fmt.Errorf("%w: empty payment id in response", gateway.ErrRejected)
	}

	return &gateway.InitiateResult{
		ExternalReference: resp.ID,
		RedirectURL:       resp.Link,
	}, nil
}

// Verify confirms the payment outcome with IDPay. Status 10 means the
// provider has not finalized yet and the caller should retry later.
func (a *IDPayAdapter) Verify(ctx context.Context, ref string, _ int64) (*gateway.VerifyResult, error) {
	body := idpayVerifyBody{ID: ref}

	raw, status, err := a.post(ctx, a.baseURL+"/payment/verify", body)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, a.mapError(raw, status)
	}

	var resp idpayVerifyResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("%w: undecodable idpay verify response: %v", gateway.ErrUnavailable, err)
	}

	switch resp.Status {
	case idpayStatusVerified, idpayStatusAlreadyVerified:
		return &gateway.VerifyResult{
			Outcome:           gateway.OutcomeConfirmed,
			Amount:            resp.Amount,
			ExternalReference: resp.ID,
			ProviderTraceID:   fmt.Sprintf("%v", resp.TrackID),
		}, nil
	case idpayStatusAwaitingVerify:
		return &gateway.VerifyResult{
			Outcome:           gateway.OutcomeUnresolved,
			ExternalReference: resp.ID,
		}, nil
	default:
		a.logger.Info("IDPay verification declined", "id", ref, "status", resp.Status)
		return &gateway.VerifyResult{
			Outcome:           gateway.OutcomeDeclined,
			ExternalReference: resp.ID,
		}, nil
	}
}

// Refund is not supported by IDPay
func (a *IDPayAdapter) Refund(_ context.Context, _ gateway.RefundRequest) (*gateway.RefundResult, error) {
	return nil, gateway.ErrRefundUnsupported
}

// DecodeCallback normalizes the form IDPay posts back after payment
func (a *IDPayAdapter) DecodeCallback(params url.Values, body []byte) (*gateway.Callback, error) {
	// IDPay posts application/x-www-form-urlencoded; fall back to query
	// parameters for GET-style callbacks.
	values := params
	if len(body) > 0 {
		parsed, err := url.ParseQuery(string(body))
		if err == nil && parsed.Get("id") != "" {
			values = parsed
		}
	}

	id := values.Get("id")
	if id == "" {
		return nil, fmt.Errorf("idpay callback missing id parameter")
	}

	return &gateway.Callback{
		Gateway:           gateway.IDPay,
		ExternalReference: id,
		Succeeded:         values.Get("status") == fmt.Sprintf("%d", idpayStatusAwaitingVerify),
		Raw:               []byte(values.Encode()),
	}, nil
}

func (a *IDPayAdapter) post(ctx context.Context, endpoint string, body interface{}) ([]byte, int, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to marshal idpay request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to build idpay request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-KEY", a.apiKey)
	if a.sandbox {
		req.Header.Set("X-SANDBOX", "1")
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", gateway.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, resp.StatusCode, fmt.Errorf("%w: idpay returned %d", gateway.ErrUnavailable, resp.StatusCode)
	}

	buf := new(bytes.Buffer)
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		return nil, resp.StatusCode, fmt.Errorf("%w: failed to read idpay response: %v", gateway.ErrUnavailable, err)
	}

	return buf.Bytes(), resp.StatusCode, nil
}

// mapError translates IDPay error responses into typed gateway failures
func (a *IDPayAdapter) mapError(raw []byte, status int) error {
	var errResp idpayErrorResponse
	_ = json.Unmarshal(raw, &errResp)

	if status == http.StatusNotAcceptable || status == http.StatusBadRequest {
		return fmt.Errorf("%w: idpay error %d: %s", gateway.ErrInvalidRequest, errResp.ErrorCode, errResp.ErrorMessage)
	}
	return fmt.Errorf("%w: idpay error %d: %s", gateway.ErrRejected, errResp.ErrorCode, errResp.ErrorMessage)
}
