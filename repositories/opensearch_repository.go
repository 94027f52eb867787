package repositories

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/opensearch-project/opensearch-go/v2"
	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"

	"analysis-worker/domain"
)

type OpenSearchRepository struct {
	client *opensearch.Client
	index  string
}

func NewOpenSearchRepository(client *opensearch.Client, index string) *OpenSearchRepository {
	return &OpenSearchRepository{client: client, index: index}
}

func NewOpenSearchClient(url string) (*opensearch.Client, error) {
	return opensearch.NewClient(opensearch.Config{
		Addresses: []string{url},
	})
}

// IndexResult publishes a result document. The document id is derived from
// the record key and field, so a re-run overwrites the previous document.
func (r *OpenSearchRepository) IndexResult(ctx context.Context, result domain.AnalysisResult) error {
	document := map[string]interface{}{
		"message_id":    result.MessageID,
		"video_uri":     result.VideoURI,
		"user_id":       result.Key.OwnerID,
		"video_id":      result.Key.ContentID,
		"field":         result.Field,
		"prompt":        result.Instruction,
		"result":        result.Result,
		"frame_indices": result.FrameIndices,
		"created_at":    time.Now().Format(time.RFC3339),
	}

	body, err := json.Marshal(document)
	if err != nil {
		return fmt.Errorf("failed to marshal document: %w", err)
	}

	req := opensearchapi.IndexRequest{
		Index:      r.index,
		DocumentID: fmt.Sprintf("%s_%s_%s", result.Key.OwnerID, result.Key.ContentID, result.Field),
		Body:       bytes.NewReader(body),
	}

	res, err := req.Do(ctx, r.client)
	if err != nil {
		return fmt.Errorf("failed to execute index request: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("error indexing document: %s", res.String())
	}

	return nil
}
