// Package mercadopago is the Mercado Pago checkout client.
package mercadopago

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/nicolascaliari/barfer-api-desarrollo/internal/domain/payment"
)

// Default endpoints.
const (
	DefaultPreferencesURL = "https://api.mercadopago.com/checkout/preferences"
	DefaultPaymentsURL    = "https://api.mercadopago.com/v1/payments"
)

// Config configures the client. FailureThreshold consecutive failures open
// the breaker for OpenTimeout.
type Config struct {
	AccessToken      string        `json:"access_token" yaml:"access_token"`
	PreferencesURL   string        `json:"preferences_url" yaml:"preferences_url"`
	PaymentsURL      string        `json:"payments_url" yaml:"payments_url"`
	Timeout          time.Duration `json:"timeout" yaml:"timeout"`
	FailureThreshold uint32        `json:"failure_threshold" yaml:"failure_threshold"`
	OpenTimeout      time.Duration `json:"open_timeout" yaml:"open_timeout"`
}

type response struct {
	status int
	body   []byte
}

var _ payment.Provider = (*Client)(nil)

// Client implements payment.Provider against the Mercado Pago REST API.
// Requests go through a circuit breaker that opens on transport errors and
// 5xx responses.
type Client struct {
	http    *http.Client
	cfg     Config
	breaker *gobreaker.CircuitBreaker[response]
}

// New creates a Client. Zero config fields take defaults.
func New(cfg Config, transport http.RoundTripper) *Client {
	if cfg.PreferencesURL == "" {
		cfg.PreferencesURL = DefaultPreferencesURL
	}
	if cfg.PaymentsURL == "" {
		cfg.PaymentsURL = DefaultPaymentsURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}
	if transport == nil {
		transport = http.DefaultTransport
	}

	threshold := cfg.FailureThreshold
	return &Client{
		http: &http.Client{
			Transport: otelhttp.NewTransport(transport),
			Timeout:   cfg.Timeout,
		},
		cfg: cfg,
		breaker: gobreaker.NewCircuitBreaker[response](gobreaker.Settings{
			Name:    "mercadopago",
			Timeout: cfg.OpenTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= threshold
			},
		}),
	}
}

// CreatePayment creates a checkout preference. It is never retried.
func (c *Client) CreatePayment(ctx context.Context, req payment.CheckoutRequest) (*payment.Checkout, error) {
	var e jx.Encoder
	EncodePreference(&e, req)

	res, err := c.do(ctx, http.MethodPost, c.cfg.PreferencesURL, e.Bytes())
	if err != nil {
		return nil, err
	}
	if res.status != http.StatusOK && res.status != http.StatusCreated {
		return nil, statusError(res)
	}

	var out payment.Checkout
	if err := jx.DecodeBytes(res.body).Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "id":
			v, err := decodeID(d)
			out.ID = v
			return err
		case "init_point":
			v, err := d.Str()
			out.InitPoint = v
			return err
		default:
			return d.Skip()
		}
	}); err != nil {
		return nil, errors.Wrapf(payment.ErrProvider, "decode preference: %v", err)
	}
	if out.InitPoint == "" {
		return nil, errors.Wrap(payment.ErrProvider, "preference without init_point")
	}
	return &out, nil
}

// GetPaymentStatus fetches the current state of a payment.
func (c *Client) GetPaymentStatus(ctx context.Context, paymentID string) (*payment.Status, error) {
	res, err := c.do(ctx, http.MethodGet, c.cfg.PaymentsURL+"/"+url.PathEscape(paymentID), nil)
	if err != nil {
		return nil, err
	}
	if res.status != http.StatusOK {
		return nil, statusError(res)
	}

	out := payment.Status{PaymentID: paymentID}
	if err := jx.DecodeBytes(res.body).Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "status":
			v, err := d.Str()
			out.Status = v
			return err
		case "external_reference":
			if d.Next() == jx.Null {
				return d.Null()
			}
			v, err := d.Str()
			out.ExternalReference = v
			return err
		default:
			return d.Skip()
		}
	}); err != nil {
		return nil, errors.Wrapf(payment.ErrProvider, "decode payment: %v", err)
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, target string, body []byte) (response, error) {
	res, err := c.breaker.Execute(func() (response, error) {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, target, reader)
		if err != nil {
			return response{}, err
		}
		req.Header.Set("Authorization", "Bearer "+c.cfg.AccessToken)
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return response{}, err
		}
		defer func() { _ = resp.Body.Close() }()

		data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return response{}, err
		}
		r := response{status: resp.StatusCode, body: data}
		if resp.StatusCode >= 500 {
			return r, statusError(r)
		}
		return r, nil
	})
	if err != nil {
		zctx.From(ctx).Warn("Mercado Pago request failed",
			zap.String("method", method),
			zap.String("url", target),
			zap.Error(err),
		)
		if errors.Is(err, payment.ErrProvider) {
			return response{}, err
		}
		return response{}, errors.Wrapf(payment.ErrProvider, "%s %s: %v", method, target, err)
	}
	return res, nil
}

func statusError(r response) error {
	msg := strings.TrimSpace(string(r.body))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return errors.Wrapf(payment.ErrProvider, "status %d: %s", r.status, msg)
}

func decodeID(d *jx.Decoder) (string, error) {
	if d.Next() == jx.Number {
		n, err := d.Num()
		return n.String(), err
	}
	return d.Str()
}
