package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/amitprasad2007/varanasisaree-sub002/internal/refunds"
	"github.com/amitprasad2007/varanasisaree-sub002/internal/shared"
)

// PaymentProcessor talks to the external payment gateway over HTTP. The
// gateway settles some refunds synchronously and acknowledges others for
// asynchronous completion via callback.
type PaymentProcessor struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewPaymentProcessor constructs the client.
func NewPaymentProcessor(baseURL, apiKey string, timeout time.Duration) *PaymentProcessor {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &PaymentProcessor{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

type refundRequest struct {
	Reference string `json:"reference"`
	Amount    string `json:"amount"`
}

type refundResponse struct {
	Status      string `json:"status"`
	ProviderRef string `json:"provider_ref"`
}

// Refund asks the gateway to push money back to the original instrument.
func (p *PaymentProcessor) Refund(ctx context.Context, reference string, amount shared.Money) (refunds.ProcessorResult, error) {
	body, err := json.Marshal(refundRequest{Reference: reference, Amount: amount.String()})
	if err != nil {
		return refunds.ProcessorResult{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/refunds", bytes.NewReader(body))
	if err != nil {
		return refunds.ProcessorResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return refunds.ProcessorResult{}, fmt.Errorf("gateway refund: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return refunds.ProcessorResult{}, fmt.Errorf("gateway refund: unexpected status %d", resp.StatusCode)
	}
	var out refundResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return refunds.ProcessorResult{}, fmt.Errorf("gateway refund: decode response: %w", err)
	}
	return refunds.ProcessorResult{
		Completed:   out.Status == "completed",
		ProviderRef: out.ProviderRef,
	}, nil
}

var _ refunds.ProcessorPort = (*PaymentProcessor)(nil)
