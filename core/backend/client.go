// Package backend is the thin request/response wrapper around the
// drive-thru REST services: ephemeral session credentials, order
// placement and pricing, menu lookup, and SDP negotiation against the
// realtime endpoint.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultBaseURL     = "http://localhost:8888"
	defaultRealtimeURL = "https://api.openai.com/v1/realtime"
	defaultModel       = "gpt-4o-realtime-preview-2024-12-17"
)

// MenuError is a backend rejection that carries a reason the
// conversational agent is allowed to see (e.g. an item not on the
// menu). Transport and decoding failures are plain errors instead.
type MenuError struct {
	Reason string
}

func (e *MenuError) Error() string { return e.Reason }

// OrderConfirmation is the backend-validated and priced order line.
type OrderConfirmation struct {
	Name     string
	Quantity int
	// PriceCents is the unit price converted from the wire's dollar
	// amount.
	PriceCents int64
}

func (c *OrderConfirmation) UnmarshalJSON(data []byte) error {
	var wire struct {
		Name     string  `json:"name"`
		Quantity int     `json:"quantity"`
		Price    float64 `json:"price"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	c.Name = wire.Name
	c.Quantity = wire.Quantity
	c.PriceCents = int64(math.Round(wire.Price * 100))
	return nil
}

type Client struct {
	baseURL     string
	realtimeURL string
	model       string
	httpClient  *http.Client
}

type ClientOption func(*Client)

func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) { c.baseURL = strings.TrimSuffix(baseURL, "/") }
}

func WithRealtimeURL(realtimeURL string) ClientOption {
	return func(c *Client) { c.realtimeURL = realtimeURL }
}

func WithModel(model string) ClientOption {
	return func(c *Client) { c.model = model }
}

func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = httpClient }
}

func NewClient(opts ...ClientOption) *Client {
	client := &Client{
		baseURL:     defaultBaseURL,
		realtimeURL: defaultRealtimeURL,
		model:       defaultModel,
		httpClient: &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport,
			otelhttp.WithSpanNameFormatter(func(operationName string, request *http.Request) string {
				return fmt.Sprintf("%s %s", request.Method, request.URL.Path)
			}),
		)},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// Session fetches an ephemeral bearer credential for the given voice.
// A response without the credential field is a hard failure.
func (c *Client) Session(ctx context.Context, voice string) (string, error) {
	ctx, span := tracer.Start(ctx, "fetch session credential")
	defer span.End()
	span.SetAttributes(attribute.String("session.voice", voice))

	endpoint := fmt.Sprintf("%s/session?voice=%s", c.baseURL, url.QueryEscape(voice))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", c.recordError(span, fmt.Errorf("failed to create session request: %w", err))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", c.recordError(span, fmt.Errorf("failed to fetch session credential: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", c.recordError(span, fmt.Errorf("session endpoint returned status %d", resp.StatusCode))
	}

	var payload struct {
		ClientSecret struct {
			Value string `json:"value"`
		} `json:"client_secret"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", c.recordError(span, fmt.Errorf("failed to decode session response: %w", err))
	}
	if payload.ClientSecret.Value == "" {
		return "", c.recordError(span, fmt.Errorf("session response carried no credential"))
	}

	return payload.ClientSecret.Value, nil
}

// PlaceOrder validates and prices an item against the backend menu. A
// non-2xx response with an error payload comes back as a *MenuError so
// callers can tell menu rejections apart from transport failures.
func (c *Client) PlaceOrder(ctx context.Context, order string, quantity int) (*OrderConfirmation, error) {
	ctx, span := tracer.Start(ctx, "place order")
	defer span.End()
	span.SetAttributes(
		attribute.String("order.item", order),
		attribute.Int("order.quantity", quantity),
	)

	body, err := json.Marshal(struct {
		Order    string `json:"order"`
		Quantity int    `json:"quantity"`
	}{Order: order, Quantity: quantity})
	if err != nil {
		return nil, c.recordError(span, fmt.Errorf("failed to marshal order request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/order", bytes.NewBuffer(body))
	if err != nil {
		return nil, c.recordError(span, fmt.Errorf("failed to create order request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, c.recordError(span, fmt.Errorf("failed to place order: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, c.recordError(span, decodeMenuError(resp.Body, "failed to place order"))
	}

	confirmation := OrderConfirmation{}
	if err := json.NewDecoder(resp.Body).Decode(&confirmation); err != nil {
		return nil, c.recordError(span, fmt.Errorf("failed to decode order response: %w", err))
	}

	return &confirmation, nil
}

// MenuDetails is a read-only lookup of a single menu item.
func (c *Client) MenuDetails(ctx context.Context, item string) (map[string]any, error) {
	ctx, span := tracer.Start(ctx, "fetch menu details")
	defer span.End()
	span.SetAttributes(attribute.String("menu.item", item))

	endpoint := fmt.Sprintf("%s/menu/%s", c.baseURL, url.PathEscape(item))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, c.recordError(span, fmt.Errorf("failed to create menu request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, c.recordError(span, fmt.Errorf("failed to fetch menu details: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, c.recordError(span, decodeMenuError(resp.Body, "failed to fetch menu details"))
	}

	details := map[string]any{}
	if err := json.NewDecoder(resp.Body).Decode(&details); err != nil {
		return nil, c.recordError(span, fmt.Errorf("failed to decode menu response: %w", err))
	}

	return details, nil
}

// Negotiate posts a locally generated SDP offer to the realtime
// endpoint, authenticated with the ephemeral credential, and returns
// the remote answer. A non-2xx status or an empty body is a hard
// failure.
func (c *Client) Negotiate(ctx context.Context, offerSDP string, credential string) (string, error) {
	ctx, span := tracer.Start(ctx, "negotiate realtime session")
	defer span.End()

	endpoint := fmt.Sprintf("%s?model=%s", c.realtimeURL, url.QueryEscape(c.model))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(offerSDP))
	if err != nil {
		return "", c.recordError(span, fmt.Errorf("failed to create negotiation request: %w", err))
	}
	req.Header.Set("Authorization", "Bearer "+credential)
	req.Header.Set("Content-Type", "application/sdp")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", c.recordError(span, fmt.Errorf("failed to post offer: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", c.recordError(span, fmt.Errorf("negotiation endpoint returned status %d", resp.StatusCode))
	}

	answer, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", c.recordError(span, fmt.Errorf("failed to read answer: %w", err))
	}
	if len(answer) == 0 {
		return "", c.recordError(span, fmt.Errorf("negotiation endpoint returned an empty answer"))
	}

	return string(answer), nil
}

func (c *Client) recordError(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

func decodeMenuError(body io.Reader, fallback string) error {
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(body).Decode(&payload); err != nil || payload.Error == "" {
		return fmt.Errorf("%s", fallback)
	}
	return &MenuError{Reason: payload.Error}
}
