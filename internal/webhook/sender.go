package webhook

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Sentinel errors for delivery failures.
var (
	ErrEndpointUnreachable = errors.New("webhook endpoint unreachable")
	ErrDeliveryRejected    = errors.New("webhook delivery rejected")
)

// DefaultDeliveryTimeout bounds a single delivery attempt.
const DefaultDeliveryTimeout = 10 * time.Second

// Delivery is one signed webhook POST.
type Delivery struct {
	URL       string
	Body      []byte
	Signature string
	Headers   map[string]string
}

// Sender performs a single webhook delivery.
type Sender interface {
	Send(ctx context.Context, d Delivery) error
}

// HTTPSender implements Sender over net/http.
type HTTPSender struct {
	client *http.Client
}

// NewHTTPSender creates an HTTPSender. A non-positive timeout uses
// DefaultDeliveryTimeout.
func NewHTTPSender(timeout time.Duration) *HTTPSender {
	if timeout <= 0 {
		timeout = DefaultDeliveryTimeout
	}
	return &HTTPSender{client: &http.Client{Timeout: timeout}}
}

func (s *HTTPSender) Send(ctx context.Context, d Delivery) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.URL, bytes.NewReader(d.Body))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(SignatureHeader, d.Signature)
	for k, v := range d.Headers {
		req.Header.Set(k, v)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrEndpointUnreachable, err)
	}
	defer resp.Body.Close()

	// Drain so the connection can be reused.
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: status %d", ErrDeliveryRejected, resp.StatusCode)
	}
	return nil
}

// Compile-time check that HTTPSender implements Sender.
var _ Sender = (*HTTPSender)(nil)
