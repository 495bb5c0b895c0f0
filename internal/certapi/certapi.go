// Package certapi resolves invoker certificates from the upstream
// testing-system over plain HTTP, satisfying authcert.CertSource for the
// API authentication strategy.
package certapi

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/summer-54/invoker-manager/internal/authcert"
)

// Client looks up invoker certificates via GET /get_invoker_key against a
// testing-system address.
type Client struct {
	Address string
	HTTP    *http.Client
}

// New returns a Client with a bounded request timeout.
func New(address string) *Client {
	return &Client{
		Address: address,
		HTTP:    &http.Client{Timeout: 10 * time.Second},
	}
}

// GetCertificateByKey fetches and parses the certificate for the invoker
// presenting key. A non-2xx response is a fatal authentication error for
// the caller's session.
func (c *Client) GetCertificateByKey(key string) (authcert.Cert, error) {
	url := fmt.Sprintf("http://%s/get_invoker_key", c.Address)
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return authcert.Cert{}, fmt.Errorf("certapi: build request: %w", err)
	}
	req.Header.Set("Authorization", key)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return authcert.Cert{}, fmt.Errorf("certapi: %w: %v", ErrUpstreamRequest, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return authcert.Cert{}, fmt.Errorf("certapi: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return authcert.Cert{}, fmt.Errorf("certapi: %w: status %d for key %q", ErrAuthRejected, resp.StatusCode, key)
	}

	return authcert.ParsePEM(body)
}
