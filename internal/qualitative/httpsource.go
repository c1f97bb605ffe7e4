package qualitative

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/arcresearch/factorlab/pkg/httputil"
)

// HTTPSource fetches assessment documents from a review-service export
// endpoint. The endpoint returns a JSON array with one document per element;
// elements pass through as raw bytes so the parser applies the same shape
// rules as for files on disk.
type HTTPSource struct {
	Client *httputil.Client
	URL    string
}

func (s HTTPSource) Documents(ctx context.Context) ([][]byte, error) {
	resp, err := s.Client.Get(ctx, s.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch assessment export: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("assessment export returned status %d", resp.StatusCode)
	}

	var items []json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		return nil, fmt.Errorf("failed to decode assessment export: %w", err)
	}

	docs := make([][]byte, len(items))
	for i, item := range items {
		docs[i] = []byte(item)
	}
	return docs, nil
}
