package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/quantumnexus/journal-engine/internal/model"
)

// Bridge is the live adapter: it polls a terminal bridge process over HTTP.
// Network failures and timeouts surface as ErrUnavailable, credential
// rejections as ErrAuthRejected, and a 206 response as ErrPartial with the
// retrieved subset attached.
type Bridge struct {
	baseURL string
	client  *http.Client
	token   string
}

// NewBridge creates a live adapter against the bridge at baseURL.
// timeout bounds every request; an exceeded deadline reads as unavailable.
func NewBridge(baseURL string, timeout time.Duration) *Bridge {
	return &Bridge{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

func (b *Bridge) Mode() string { return "live" }

type connectRequest struct {
	Account  int64  `json:"account"`
	Password string `json:"password"`
	Server   string `json:"server"`
}

type connectResponse struct {
	Token string `json:"token"`
}

func (b *Bridge) Connect(ctx context.Context, creds Credentials) error {
	body, err := json.Marshal(connectRequest{
		Account:  creds.Account,
		Password: creds.Password,
		Server:   creds.Server,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/connect", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return ErrAuthRejected
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("%w: connect returned %d", ErrUnavailable, resp.StatusCode)
	}

	var cr connectResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return fmt.Errorf("%w: decode connect response: %v", ErrUnavailable, err)
	}
	b.token = cr.Token
	return nil
}

func (b *Bridge) Disconnect() error {
	if b.token == "" {
		return nil
	}
	req, err := http.NewRequest(http.MethodPost, b.baseURL+"/disconnect", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+b.token)
	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	resp.Body.Close()
	b.token = ""
	return nil
}

type dealsResponse struct {
	Events []model.Trade `json:"events"`
	Cursor Cursor        `json:"cursor"`
}

func (b *Bridge) FetchSince(ctx context.Context, cur Cursor, windowDays int) ([]model.Trade, Cursor, error) {
	q := url.Values{}
	if !cur.Time.IsZero() {
		q.Set("since", cur.Time.Format(time.RFC3339))
	}
	q.Set("seq", strconv.FormatInt(cur.Seq, 10))
	q.Set("window_days", strconv.Itoa(windowDays))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+"/deals?"+q.Encode(), nil)
	if err != nil {
		return nil, cur, err
	}
	req.Header.Set("Authorization", "Bearer "+b.token)

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, cur, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, cur, ErrAuthRejected
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusPartialContent:
		// fall through to decode
	default:
		return nil, cur, fmt.Errorf("%w: deals returned %d", ErrUnavailable, resp.StatusCode)
	}

	var dr dealsResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return nil, cur, fmt.Errorf("%w: decode deals response: %v", ErrUnavailable, err)
	}

	if resp.StatusCode == http.StatusPartialContent {
		// The bridge's cursor covers only the retrieved subset; the gap is
		// retried next cycle.
		return dr.Events, dr.Cursor, ErrPartial
	}
	return dr.Events, dr.Cursor, nil
}

func (b *Bridge) AccountInfo(ctx context.Context) (*model.AccountSnapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+"/account", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+b.token)

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, ErrAuthRejected
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: account returned %d", ErrUnavailable, resp.StatusCode)
	}

	var snap model.AccountSnapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return nil, fmt.Errorf("%w: decode account response: %v", ErrUnavailable, err)
	}
	return &snap, nil
}
