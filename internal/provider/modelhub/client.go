package modelhub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// FileMeta is the hub's record of one file in a model repository.
type FileMeta struct {
	Name   string
	SHA256 string
	Size   int64
}

// MetadataSource lists the files a model repository should contain.
type MetadataSource interface {
	Files(ctx context.Context, modelID, revision string) ([]FileMeta, error)
}

// ErrUnexpectedResponse is returned when the hub answers with an error code
// or a body of the wrong shape.
var ErrUnexpectedResponse = errors.New("unexpected hub response")

// Client reads file metadata from the ModelScope API.
type Client struct {
	base string
	http *http.Client
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(cl *Client) {
		cl.http = c
	}
}

// NewClient creates a Client for the API at base, e.g. DefaultAPIBase.
func NewClient(base string, opts ...ClientOption) *Client {
	c := &Client{
		base: strings.TrimRight(base, "/"),
		http: &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type filesResponse struct {
	Code int `json:"Code"`
	Data struct {
		Files []struct {
			Name   string `json:"Name"`
			Path   string `json:"Path"`
			Type   string `json:"Type"`
			Sha256 string `json:"Sha256"`
			Size   int64  `json:"Size"`
		} `json:"Files"`
	} `json:"Data"`
	Message string `json:"Message"`
}

// Files returns every blob in the repository. Directory entries are skipped
// and hashes are normalized to lower case.
func (c *Client) Files(ctx context.Context, modelID, revision string) ([]FileMeta, error) {
	if revision == "" {
		revision = "master"
	}
	endpoint := fmt.Sprintf("%s/api/v1/models/%s/repo/files?%s", c.base, modelID,
		url.Values{"Revision": {revision}, "Root": {""}, "Recursive": {"true"}}.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch metadata for %s: %w", modelID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: %s returned %s: %s", ErrUnexpectedResponse, endpoint, resp.Status, strings.TrimSpace(string(body)))
	}

	var decoded filesResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrUnexpectedResponse, err)
	}
	if decoded.Code != http.StatusOK {
		return nil, fmt.Errorf("%w: code %d: %s", ErrUnexpectedResponse, decoded.Code, decoded.Message)
	}

	files := make([]FileMeta, 0, len(decoded.Data.Files))
	for _, f := range decoded.Data.Files {
		if f.Type != "blob" {
			continue
		}
		name := f.Path
		if name == "" {
			name = f.Name
		}
		files = append(files, FileMeta{
			Name:   name,
			SHA256: strings.ToLower(f.Sha256),
			Size:   f.Size,
		})
	}
	return files, nil
}

var _ MetadataSource = (*Client)(nil)
