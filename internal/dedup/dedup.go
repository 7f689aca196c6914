// Package dedup fingerprints candidate uploads and asks the backend
// whether identical content was uploaded before. Duplicate detection is
// an optimization, not a correctness requirement: every remote failure
// degrades to "not a duplicate".
package dedup

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
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
	ErrRequestFailed = errors.New("dedup request failed")

	log = logging.For("dedup")
)

const defaultRequestTimeout = 15 * time.Second

// Fingerprint returns the hex-encoded SHA-256 digest of content. The
// digest is content-addressed: identical bytes yield the identical hash
// regardless of filename.
func Fingerprint(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// DuplicateRecord is the outcome of one duplicate check.
type DuplicateRecord struct {
	Hash         string `json:"hash"`
	IsDuplicate  bool   `json:"isDuplicate"`
	ExistingFile string `json:"existingFile,omitempty"`
}

// Stats summarizes the server's deduplication bookkeeping.
type Stats struct {
	TotalFiles      int   `json:"totalFiles"`
	DuplicateGroups int   `json:"duplicateGroups"`
	WastedBytes     int64 `json:"wastedBytes"`
}

// CleanupResult reports a housekeeping pass over duplicate files.
type CleanupResult struct {
	Removed int  `json:"removed"`
	DryRun  bool `json:"dryRun"`
}

// Client queries the remote duplicate-detection service.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a dedup client. A zero timeout uses the default.
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

// CheckDuplicate asks the backend whether content with this hash already
// exists. Transport failures are swallowed into a conservative
// "not a duplicate" record so uploads never block on the check.
func (c *Client) CheckDuplicate(ctx context.Context, hash string) DuplicateRecord {
	record := DuplicateRecord{Hash: hash}

	body, err := json.Marshal(map[string]string{"hash": hash})
	if err != nil {
		return record
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/check-duplicate", bytes.NewReader(body))
	if err != nil {
		return record
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Debug().Err(err).Msg("duplicate check unreachable, assuming unique")
		return record
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Debug().Int("status", resp.StatusCode).Msg("duplicate check rejected, assuming unique")
		return record
	}

	var result struct {
		IsDuplicate  bool   `json:"isDuplicate"`
		ExistingFile string `json:"existingFile"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		log.Debug().Err(err).Msg("duplicate check undecodable, assuming unique")
		return record
	}

	record.IsDuplicate = result.IsDuplicate
	record.ExistingFile = result.ExistingFile
	return record
}

// ReportStats fetches the server's deduplication statistics.
func (c *Client) ReportStats(ctx context.Context) (*Stats, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/chat/dedup/stats", nil)
	if err != nil {
		return nil, err
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, pkgerrors.Wrap(ErrRequestFailed, err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: %d - %s", ErrRequestFailed, resp.StatusCode, string(body))
	}

	var stats Stats
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return nil, pkgerrors.Wrap(ErrRequestFailed, "decoding stats response")
	}
	return &stats, nil
}

// Cleanup asks the server to remove redundant duplicate copies. With
// dryRun set the server reports what it would remove without deleting.
func (c *Client) Cleanup(ctx context.Context, dryRun bool) (*CleanupResult, error) {
	body, err := json.Marshal(map[string]bool{"dryRun": dryRun})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/dedup/cleanup", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, pkgerrors.Wrap(ErrRequestFailed, err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: %d - %s", ErrRequestFailed, resp.StatusCode, string(body))
	}

	var result CleanupResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, pkgerrors.Wrap(ErrRequestFailed, "decoding cleanup response")
	}
	return &result, nil
}

func (c *Client) authorize(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}
