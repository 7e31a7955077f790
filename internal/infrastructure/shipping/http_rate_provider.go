package shipping

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/marketplace/backend/internal/domain/shared"
	"github.com/marketplace/backend/internal/domain/shipping"
)

const providerName = "shipping_rates"

// HTTPRateProviderConfig configures the rate API client
type HTTPRateProviderConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// HTTPRateProvider quotes shipping options from a JSON rate API (POST {base}/rates)
type HTTPRateProvider struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *zap.Logger
}

type rateRequestBody struct {
	Origin      rateAddress           `json:"origin"`
	Destination shipping.Destination  `json:"destination"`
	Items       []shipping.ParcelItem `json:"items"`
	Currency    string                `json:"currency"`
}

type rateAddress struct {
	Country    string `json:"country"`
	PostalCode string `json:"postal_code"`
}

type rateResponseBody struct {
	Rates []struct {
		Carrier       string `json:"carrier"`
		ServiceLevel  string `json:"service_level"`
		Amount        string `json:"amount"`
		Currency      string `json:"currency"`
		EstimatedDays int    `json:"estimated_days"`
	} `json:"rates"`
}

// NewHTTPRateProvider creates a rate API client. Outbound calls are traced.
func NewHTTPRateProvider(cfg HTTPRateProviderConfig, logger *zap.Logger) (*HTTPRateProvider, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("shipping: provider URL is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &HTTPRateProvider{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger: logger,
	}, nil
}

// Quote asks the rate API for the options to ship one parcel
func (p *HTTPRateProvider) Quote(ctx context.Context, req shipping.RateRequest) ([]shipping.ShippingOption, error) {
	payload, err := json.Marshal(rateRequestBody{
		Origin:      rateAddress{Country: req.OriginCountry, PostalCode: req.OriginPostalCode},
		Destination: req.Destination,
		Items:       req.Items,
		Currency:    req.Currency,
	})
	if err != nil {
		return nil, fmt.Errorf("shipping: failed to encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/rates", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("shipping: failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, shared.NewProviderError(providerName, "quote", true, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, shared.NewProviderError(providerName, "quote", true, err)
	}
	if resp.StatusCode != http.StatusOK {
		retryable := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError
		p.logger.Warn("Shipping rate API returned an error",
			zap.Int("status", resp.StatusCode),
			zap.String("store_id", req.StoreID.String()))
		return nil, shared.NewProviderError(providerName, "quote", retryable,
			fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	var decoded rateResponseBody
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, shared.NewProviderError(providerName, "quote", false, fmt.Errorf("invalid response: %w", err))
	}

	options := make([]shipping.ShippingOption, 0, len(decoded.Rates))
	for _, r := range decoded.Rates {
		cost, err := decimal.NewFromString(r.Amount)
		if err != nil || cost.IsNegative() {
			p.logger.Warn("Skipping unparseable shipping rate",
				zap.String("carrier", r.Carrier),
				zap.String("amount", r.Amount))
			continue
		}
		currency := strings.ToUpper(r.Currency)
		if currency == "" {
			currency = strings.ToUpper(req.Currency)
		}
		options = append(options, shipping.ShippingOption{
			Carrier:       r.Carrier,
			ServiceLevel:  r.ServiceLevel,
			Cost:          cost,
			Currency:      currency,
			EstimatedDays: r.EstimatedDays,
		})
	}
	return options, nil
}

var _ shipping.RateProvider = (*HTTPRateProvider)(nil)
