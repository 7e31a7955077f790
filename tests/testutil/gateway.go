package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/marketplace/backend/internal/domain/payment"
)

// FakeGateway is an in-memory payment.Gateway. A repeated idempotency key returns the
// intent created for it the first time, like the real provider.
type FakeGateway struct {
	mu       sync.Mutex
	seq      int
	byKey    map[string]*payment.IntentResult
	requests map[string]payment.CreateIntentRequest
	canceled []string

	// CreateHook, when set, runs before an intent is created and can inject failures.
	CreateHook func(req payment.CreateIntentRequest) error
	// ResponseHook, when set, runs after an intent is created and can drop the response.
	ResponseHook func(req payment.CreateIntentRequest, res payment.IntentResult) error
	// CancelErr is returned by CancelIntent when set.
	CancelErr error
}

// NewFakeGateway creates an empty gateway.
func NewFakeGateway() *FakeGateway {
	return &FakeGateway{
		byKey:    make(map[string]*payment.IntentResult),
		requests: make(map[string]payment.CreateIntentRequest),
	}
}

// CreateIntent implements payment.Gateway.
func (g *FakeGateway) CreateIntent(_ context.Context, req payment.CreateIntentRequest) (*payment.IntentResult, error) {
	if g.CreateHook != nil {
		if err := g.CreateHook(req); err != nil {
			return nil, err
		}
	}
	res := g.create(req)
	if g.ResponseHook != nil {
		if err := g.ResponseHook(req, res); err != nil {
			return nil, err
		}
	}
	return &res, nil
}

func (g *FakeGateway) create(req payment.CreateIntentRequest) payment.IntentResult {
	g.mu.Lock()
	defer g.mu.Unlock()
	if existing, ok := g.byKey[req.IdempotencyKey]; ok {
		return *existing
	}
	g.seq++
	id := fmt.Sprintf("pi_test_%d", g.seq)
	res := &payment.IntentResult{
		ProviderIntentID: id,
		ClientSecret:     id + "_secret",
		Status:           payment.StatusRequiresPaymentMethod,
	}
	g.byKey[req.IdempotencyKey] = res
	g.requests[id] = req
	return *res
}

// CancelIntent implements payment.Gateway.
func (g *FakeGateway) CancelIntent(_ context.Context, providerIntentID string) (*payment.IntentResult, error) {
	if g.CancelErr != nil {
		return nil, g.CancelErr
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.canceled = append(g.canceled, providerIntentID)
	return &payment.IntentResult{ProviderIntentID: providerIntentID, Status: payment.StatusCanceled}, nil
}

// Created returns the number of distinct intents created.
func (g *FakeGateway) Created() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.requests)
}

// Request returns the create request for a provider intent id.
func (g *FakeGateway) Request(providerIntentID string) (payment.CreateIntentRequest, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	req, ok := g.requests[providerIntentID]
	return req, ok
}

// Canceled returns the provider intent ids canceled so far.
func (g *FakeGateway) Canceled() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]string, len(g.canceled))
	copy(out, g.canceled)
	return out
}

var _ payment.Gateway = (*FakeGateway)(nil)
