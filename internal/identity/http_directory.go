package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// HTTPDirectory resolves users against the identity service's internal
// batch endpoint. Lookups are idempotent reads, so transient 5xx responses
// are retried with exponential backoff.
type HTTPDirectory struct {
	base       string
	client     *http.Client
	maxElapsed time.Duration
}

func NewHTTPDirectory(baseURL string, timeout time.Duration) *HTTPDirectory {
	tr := &http.Transport{
		DialContext:     (&net.Dialer{Timeout: 5 * time.Second}).DialContext,
		MaxIdleConns:    16,
		IdleConnTimeout: 90 * time.Second,
	}
	return &HTTPDirectory{
		base:       strings.TrimRight(baseURL, "/"),
		client:     &http.Client{Transport: tr, Timeout: timeout},
		maxElapsed: 10 * time.Second,
	}
}

func (d *HTTPDirectory) Lookup(ctx context.Context, ids []string) ([]User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	u := fmt.Sprintf("%s/internal/users?ids=%s", d.base, url.QueryEscape(strings.Join(ids, ",")))

	var users []User
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		resp, err := d.client.Do(req)
		if err != nil {
			return err
		}
		defer func() {
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
		}()
		if resp.StatusCode >= 500 {
			return fmt.Errorf("identity service returned %d", resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			return backoff.Permanent(fmt.Errorf("identity lookup failed: %d", resp.StatusCode))
		}
		var body struct {
			Users []User `json:"users"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return backoff.Permanent(err)
		}
		users = body.Users
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = d.maxElapsed
	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return nil, err
	}
	return users, nil
}
