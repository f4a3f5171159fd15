package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client talks JSON over HTTP to the settlement ledger service.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type sessionRequest struct {
	LedgerRef   string    `json:"ledger_ref"`
	MidnightUTC time.Time `json:"midnight_utc"`
}

type attendanceRequest struct {
	LedgerRef     string    `json:"ledger_ref"`
	MidnightUTC   time.Time `json:"midnight_utc"`
	WalletAddress string    `json:"wallet_address"`
	CommittedAt   time.Time `json:"committed_at"`
}

type closeResponse struct {
	TxRef string `json:"tx_ref"`
}

func (c *Client) StartSession(ctx context.Context, ledgerRef string, midnightUTC time.Time) (StartOutcome, error) {
	status, _, err := c.post(ctx, "/v1/sessions/start", sessionRequest{
		LedgerRef:   ledgerRef,
		MidnightUTC: midnightUTC.UTC(),
	})
	if err != nil {
		return Started, err
	}

	switch status {
	case http.StatusOK, http.StatusCreated:
		return Started, nil
	case http.StatusConflict:
		// Session already open on the ledger side; treated as success.
		return AlreadyStarted, nil
	default:
		return Started, fmt.Errorf("ledger start session: unexpected status %d", status)
	}
}

func (c *Client) RecordAttendance(ctx context.Context, ledgerRef string, midnightUTC time.Time, walletAddress string, committedAt time.Time) error {
	status, _, err := c.post(ctx, "/v1/sessions/attendance", attendanceRequest{
		LedgerRef:     ledgerRef,
		MidnightUTC:   midnightUTC.UTC(),
		WalletAddress: walletAddress,
		CommittedAt:   committedAt.UTC(),
	})
	if err != nil {
		return err
	}
	if status != http.StatusOK && status != http.StatusCreated {
		return fmt.Errorf("ledger record attendance: unexpected status %d", status)
	}
	return nil
}

func (c *Client) CloseSession(ctx context.Context, ledgerRef string, midnightUTC time.Time) (string, error) {
	status, body, err := c.post(ctx, "/v1/sessions/close", sessionRequest{
		LedgerRef:   ledgerRef,
		MidnightUTC: midnightUTC.UTC(),
	})
	if err != nil {
		return "", err
	}
	if status != http.StatusOK {
		return "", fmt.Errorf("ledger close session: unexpected status %d", status)
	}

	var resp closeResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("ledger close session: malformed response: %w", err)
	}
	if resp.TxRef == "" {
		return "", fmt.Errorf("ledger close session: response missing tx_ref")
	}
	return resp.TxRef, nil
}

func (c *Client) post(ctx context.Context, path string, payload interface{}) (int, []byte, error) {
	reqBody, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to encode ledger request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(reqBody))
	if err != nil {
		return 0, nil, fmt.Errorf("failed to build ledger request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("ledger request to %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, nil, fmt.Errorf("failed to read ledger response: %w", err)
	}

	return resp.StatusCode, body, nil
}
