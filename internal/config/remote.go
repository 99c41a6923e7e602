package config

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// RemoteOptions holds parameters for fetching config over HTTP.
type RemoteOptions struct {
	URL     string // full URL of the JSON document
	Token   string // sent as a bearer token when set
	DataDir string // overrides service.data_dir with a local path
}

// LoadRemote fetches the configuration document from a config service and
// parses it like Load.
func LoadRemote(ctx context.Context, opts RemoteOptions) (*Config, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, opts.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("config: create request: %w", err)
	}
	if opts.Token != "" {
		req.Header.Set("Authorization", "Bearer "+opts.Token)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("config: fetch %s: %w", opts.URL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("config: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("config: fetch %s: HTTP %d: %s", opts.URL, resp.StatusCode, string(body))
	}

	cfg, err := Parse(body, opts.URL)
	if err != nil {
		return nil, err
	}
	if opts.DataDir != "" {
		cfg.Service.DataDir = opts.DataDir
	}
	return cfg, nil
}
