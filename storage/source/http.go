package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/chainledger/wallet-indexer/config"
	"github.com/chainledger/wallet-indexer/storage"
)

const defaultClientTimeout = 30 * time.Second

// HTTPSource fetches blocks from an extractor service that serves
// `GET /blocks/{height}` and `GET /blocks/latest` as JSON.
type HTTPSource struct {
	client  *http.Client
	baseURL string
}

var _ storage.BlockSource = (*HTTPSource)(nil)

func NewHTTPSource(cfg *config.HTTPSourceConfig) *HTTPSource {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultClientTimeout
	}
	return &HTTPSource{
		client:  &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(cfg.URL, "/"),
	}
}

// responseOK returns nil for HTTP 200. Otherwise it closes the body and
// returns an error; a 404 is reported as storage.ErrNotFound.
func responseOK(resp *http.Response) error {
	if resp.StatusCode == http.StatusOK {
		return nil
	}
	if err := resp.Body.Close(); err != nil {
		return fmt.Errorf("HTTP closing body due to HTTP %d: %w", resp.StatusCode, err)
	}
	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("HTTP %d: %w", resp.StatusCode, storage.ErrNotFound)
	}
	return fmt.Errorf("HTTP %d", resp.StatusCode)
}

func (s *HTTPSource) get(ctx context.Context, path string, out interface{}) error {
	url := s.baseURL + path
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", url, err)
	}
	if err = responseOK(resp); err != nil {
		return fmt.Errorf("GET %s: %w", url, err)
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("GET %s: decoding response: %w", url, err)
	}
	return nil
}

// Block implements storage.BlockSource.
func (s *HTTPSource) Block(ctx context.Context, height uint64) (*storage.Block, error) {
	var b storage.Block
	if err := s.get(ctx, "/blocks/"+strconv.FormatUint(height, 10), &b); err != nil {
		return nil, err
	}
	return &b, nil
}

type latestResponse struct {
	Height uint64 `json:"height"`
}

// LatestHeight implements storage.BlockSource.
func (s *HTTPSource) LatestHeight(ctx context.Context) (uint64, error) {
	var latest latestResponse
	if err := s.get(ctx, "/blocks/latest", &latest); err != nil {
		return 0, err
	}
	return latest.Height, nil
}

// Close implements storage.BlockSource.
func (s *HTTPSource) Close() error {
	s.client.CloseIdleConnections()
	return nil
}
