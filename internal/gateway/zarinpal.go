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

// Zarinpal v4 result codes
const (
	zarinpalCodeVerified        = 100
	zarinpalCodeAlreadyVerified = 101
)

// ZarinpalAdapter implements the Zarinpal v4 JSON API. Initiation yields an
// authority token, the payer is redirected to the StartPay page, and the
// outcome is confirmed server-side via the verify endpoint; Zarinpal signs
// nothing in its callback, so the verify call is the authenticity check.
type ZarinpalAdapter struct {
	logger          *slog.Logger
	client          *http.Client
	merchantID      string
	baseURL         string
	payBaseURL      string
	callbackBaseURL string
}

// NewZarinpal creates a Zarinpal adapter from configuration
func NewZarinpal(logger *slog.Logger, cfg *config.ZarinpalConfig, callbackBaseURL string) *ZarinpalAdapter {
	return &ZarinpalAdapter{
		logger:          logger,
		client:          &http.Client{Timeout: cfg.Timeout},
		merchantID:      cfg.MerchantID,
		baseURL:         cfg.BaseURL,
		payBaseURL:      cfg.PayBaseURL,
		callbackBaseURL: callbackBaseURL,
	}
}

func (a *ZarinpalAdapter) Name() gateway.Name {
	return gateway.Zarinpal
}

func (a *ZarinpalAdapter) SupportsRefunds() bool {
	return true
}

type zarinpalRequestBody struct {
	MerchantID  string `json:"merchant_id"`
	Amount      int64  `json:"amount"`
	Currency    string `json:"currency"`
	Description string `json:"description"`
	CallbackURL string `json:"callback_url"`
}

type zarinpalVerifyBody struct {
	MerchantID string `json:"merchant_id"`
	Amount     int64  `json:"amount"`
	Authority  string `json:"authority"`
}

type zarinpalRefundBody struct {
	MerchantID  string `json:"merchant_id"`
	Authority   string `json:"authority"`
	Amount      int64  `json:"amount"`
	Description string `json:"description,omitempty"`
}

type zarinpalResponse struct {
	Data struct {
		Code      int    `json:"code"`
		Authority string `json:"authority"`
		RefID     int64  `json:"ref_id"`
		Message   string `json:"message"`
	} `json:"data"`
	Errors json.RawMessage `json:"errors"`
}

// Initiate registers the payment and returns the authority plus the StartPay
// redirect URL
func (a *ZarinpalAdapter) Initiate(ctx context.Context, req gateway.InitiateRequest) (*gateway.InitiateResult, error) {
	body := zarinpalRequestBody{
		MerchantID:  a.merchantID,
		Amount:      req.Amount,
		Currency:    req.Currency,
		Description: req.Description,
		CallbackURL: fmt.Sprintf("%s/webhooks/%s", a.callbackBaseURL, gateway.Zarinpal),
	}

	var resp zarinpalResponse
	if err := a.post(ctx, a.baseURL+"/request.json", body, &resp); err != nil {
		return nil, err
	}

	if resp.Data.Code != zarinpalCodeVerified {
		return nil, a.mapError(resp.Data.Code, resp.Data.Message)
	}
	if resp.Data.Authority == "" {
		return nil, fmt.Errorf("%w: empty authority in response", gateway.ErrRejected)
	}

	return &gateway.InitiateResult{
		ExternalReference: resp.Data.Authority,
		RedirectURL:       fmt.Sprintf("%s/%s", a.payBaseURL, resp.Data.Authority),
	}, nil
}

// Verify confirms the payment outcome with Zarinpal. Code 100 means
// verified now, 101 means already verified; both are confirmations of the
// exact amount submitted.
func (a *ZarinpalAdapter) Verify(ctx context.Context, ref string, amount int64) (*gateway.VerifyResult, error) {
	body := zarinpalVerifyBody{
		MerchantID: a.merchantID,
		Amount:     amount,
		Authority:  ref,
	}

	var resp zarinpalResponse
	if err := a.post(ctx, a.baseURL+"/verify.json", body, &resp); err != nil {
		return nil, err
	}

	switch resp.Data.Code {
	case zarinpalCodeVerified, zarinpalCodeAlreadyVerified:
		return &gateway.VerifyResult{
			Outcome:           gateway.OutcomeConfirmed,
			Amount:            amount,
			ExternalReference: ref,
			ProviderTraceID:   fmt.Sprintf("%d", resp.Data.RefID),
		}, nil
	default:
		a.logger.Info("Zarinpal verification declined",
			"authority", ref,
			"code", resp.Data.Code,
			"message", resp.Data.Message,
		)
		return &gateway.VerifyResult{
			Outcome:           gateway.OutcomeDeclined,
			ExternalReference: ref,
		}, nil
	}
}

// Refund asks Zarinpal to reverse a verified payment
func (a *ZarinpalAdapter) Refund(ctx context.Context, req gateway.RefundRequest) (*gateway.RefundResult, error) {
	body := zarinpalRefundBody{
		MerchantID:  a.merchantID,
		Authority:   req.ExternalReference,
		Amount:      req.Amount,
		Description: req.Reason,
	}

	var resp zarinpalResponse
	if err := a.post(ctx, a.baseURL+"/refund.json", body, &resp); err != nil {
		return nil, err
	}

	if resp.Data.Code != zarinpalCodeVerified {
		return nil, a.mapError(resp.Data.Code, resp.Data.Message)
	}

	return &gateway.RefundResult{ProviderTraceID: fmt.Sprintf("%d", resp.Data.RefID)}, nil
}

// DecodeCallback normalizes the Authority/Status query parameters Zarinpal
// redirects back with
func (a *ZarinpalAdapter) DecodeCallback(params url.Values, _ []byte) (*gateway.Callback, error) {
	authority := params.Get("Authority")
	if authority == "" {
		return nil, fmt.Errorf("zarinpal callback missing Authority parameter")
	}

	return &gateway.Callback{
		Gateway:           gateway.Zarinpal,
		ExternalReference: authority,
		Succeeded:         params.Get("Status") == "OK",
		Raw:               []byte(params.Encode()),
	}, nil
}

func (a *ZarinpalAdapter) post(ctx context.Context, endpoint string, body interface{}, out *zarinpalResponse) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal zarinpal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build zarinpal request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", gateway.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("%w: zarinpal returned %d", gateway.ErrUnavailable, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: undecodable zarinpal response: %v", gateway.ErrUnavailable, err)
	}

	return nil
}

// mapError translates Zarinpal result codes into typed gateway failures
func (a *ZarinpalAdapter) mapError(code int, message string) error {
	switch {
	case code == -9 || code == -10 || code == -11 || code == -12:
		return fmt.Errorf("%w: code %d: %s", gateway.ErrInvalidRequest, code, message)
	default:
		return fmt.Errorf("%w: code %d: %s", gateway.ErrRejected, code, message)
	}
}
