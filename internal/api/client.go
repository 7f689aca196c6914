package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	pkgerrors "github.com/pkg/errors"

	"github.com/youruser/chatcore/internal/logging"
)

var (
	ErrAuthExpired      = errors.New("authentication expired")
	ErrServerFault      = errors.New("server fault")
	ErrTransportFailure = errors.New("transport failure")

	log = logging.For("api")
)

const defaultRequestTimeout = 30 * time.Second

// readBufferSize is the chunk size for reading the streamed response body.
const readBufferSize = 4 * 1024

// Client handles communication with the chat backend.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a new backend client. A zero timeout uses the default.
// Streaming requests are never bounded by the timeout; they run until the
// body ends or the context is cancelled.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = defaultRequestTimeout
	}
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// FragmentFunc receives one chunk of streamed response text.
type FragmentFunc func(fragment string)

// SendStream posts a chat request and streams the plain-text response body,
// invoking onFragment for each chunk as it arrives. Returns nil on a clean
// end of stream. A cancelled context is reported as the context's error.
func (c *Client) SendStream(ctx context.Context, req SendRequest, onFragment FragmentFunc) error {
	bodyBytes, err := json.Marshal(req)
	if err != nil {
		return err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/send", bytes.NewReader(bodyBytes))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	c.authorize(httpReq)

	log.Debug().
		Str("session", req.SessionID).
		Str("type", req.Type).
		Int("context_turns", len(req.ContextWindow)).
		Msg("POST /chat/send")

	// The shared client carries a request timeout meant for unary calls;
	// streams must stay open indefinitely.
	streamClient := &http.Client{Transport: c.httpClient.Transport}

	resp, err := streamClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return pkgerrors.Wrap(ErrTransportFailure, err.Error())
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return err
	}

	return c.readStream(ctx, resp.Body, onFragment)
}

// readStream reads the response body chunk by chunk until EOF.
func (c *Client) readStream(ctx context.Context, body io.Reader, onFragment FragmentFunc) error {
	buf := make([]byte, readBufferSize)
	for {
		n, err := body.Read(buf)
		if n > 0 {
			onFragment(string(buf[:n]))
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			// A cancelled context closes the body mid-read; report the
			// cancellation rather than the resulting IO error.
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Error().Err(err).Msg("stream read failed")
			return pkgerrors.Wrap(ErrTransportFailure, err.Error())
		}
	}
}

// FetchMessages retrieves the authoritative message history for a session.
func (c *Client) FetchMessages(ctx context.Context, sessionID string) ([]HistoryMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/chat/session/"+sessionID+"/messages", nil)
	if err != nil {
		return nil, err
	}
	c.authorize(req)

	log.Debug().Str("session", sessionID).Msg("GET session messages")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, pkgerrors.Wrap(ErrTransportFailure, err.Error())
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	var hist historyResponse
	if err := json.NewDecoder(resp.Body).Decode(&hist); err != nil {
		return nil, pkgerrors.Wrap(ErrServerFault, "decoding history response")
	}
	if !hist.Success {
		return nil, fmt.Errorf("%w: history fetch not successful", ErrServerFault)
	}
	return hist.Messages, nil
}

// ContextInfo returns the server-side context bookkeeping for a session.
func (c *Client) ContextInfo(ctx context.Context, sessionID string) (*ContextInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/chat/session/"+sessionID+"/context", nil)
	if err != nil {
		return nil, err
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, pkgerrors.Wrap(ErrTransportFailure, err.Error())
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	var info ContextInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, pkgerrors.Wrap(ErrServerFault, "decoding context info")
	}
	return &info, nil
}

// ClearContext asks the server to drop its stored context for a session.
func (c *Client) ClearContext(ctx context.Context, sessionID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/chat/session/"+sessionID+"/context", nil)
	if err != nil {
		return err
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return pkgerrors.Wrap(ErrTransportFailure, err.Error())
	}
	defer resp.Body.Close()

	return checkStatus(resp)
}

func (c *Client) authorize(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

// checkStatus maps a non-2xx response to the error taxonomy. The body is
// consumed for the server-supplied detail, so callers must only use it on
// failure paths or before decoding.
func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	detail := serverDetail(body)

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		log.Error().Int("status", resp.StatusCode).Msg("authentication rejected")
		return fmt.Errorf("%w: %d", ErrAuthExpired, resp.StatusCode)
	}

	log.Error().Int("status", resp.StatusCode).Str("detail", detail).Msg("server error")
	if detail == "" {
		return fmt.Errorf("%w: status %d", ErrServerFault, resp.StatusCode)
	}
	return fmt.Errorf("%w: %s", ErrServerFault, detail)
}

// serverDetail extracts a human-readable message from an error body.
func serverDetail(body []byte) string {
	var er errorResponse
	if err := json.Unmarshal(body, &er); err == nil {
		if er.Detail != "" {
			return er.Detail
		}
		if er.Error != "" {
			return er.Error
		}
	}
	return strings.TrimSpace(string(body))
}
