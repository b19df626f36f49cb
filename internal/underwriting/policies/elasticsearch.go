// internal/underwriting/policies/elasticsearch.go
package policies

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"mortgage-underwriting/internal/common/logger"
)

const DefaultIndex = "underwriting-policies"

var sectionHeading = regexp.MustCompile(`^\d+\.\d+\s+[A-Za-z ].+`)

const indexMapping = `{
	"mappings": {
		"properties": {
			"page_id": {"type": "keyword"},
			"text":    {"type": "text"}
		}
	}
}`

// ElasticsearchRetriever runs a match query over the policy index. When the
// search fails and a fallback is configured, the fallback answers instead.
type ElasticsearchRetriever struct {
	client   *elasticsearch.Client
	index    string
	k        int
	fallback Retriever
	logger   logger.Logger
}

func NewElasticsearchRetriever(client *elasticsearch.Client, index string, k int, fallback Retriever, log logger.Logger) *ElasticsearchRetriever {
	if index == "" {
		index = DefaultIndex
	}
	if k <= 0 {
		k = DefaultK
	}
	return &ElasticsearchRetriever{
		client:   client,
		index:    index,
		k:        k,
		fallback: fallback,
		logger:   log.WithFields(map[string]interface{}{"component": "policy-retriever", "index": index}),
	}
}

func (r *ElasticsearchRetriever) Retrieve(ctx context.Context, query string) (string, error) {
	hits, err := r.search(ctx, query)
	if err != nil {
		if r.fallback == nil || ctx.Err() != nil {
			return "", fmt.Errorf("%w: %v", ErrRetrievalFailed, err)
		}
		r.logger.Warn("policy search failed, using keyword fallback", map[string]interface{}{
			"error": err.Error(),
		})
		return r.fallback.Retrieve(ctx, query)
	}
	return GroupBySection(hits), nil
}

func (r *ElasticsearchRetriever) search(ctx context.Context, query string) ([]string, error) {
	body, err := json.Marshal(map[string]interface{}{
		"query": map[string]interface{}{
			"match": map[string]interface{}{
				"text": map[string]interface{}{
					"query": query,
				},
			},
		},
	})
	if err != nil {
		return nil, err
	}

	size := r.k
	req := esapi.SearchRequest{
		Index: []string{r.index},
		Body:  bytes.NewReader(body),
		Size:  &size,
	}

	res, err := req.Do(ctx, r.client)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("search query failed: %s", res.Status())
	}

	var parsed struct {
		Hits struct {
			Hits []struct {
				Source struct {
					Text string `json:"text"`
				} `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	hits := make([]string, 0, len(parsed.Hits.Hits))
	for _, h := range parsed.Hits.Hits {
		hits = append(hits, h.Source.Text)
	}
	return hits, nil
}

// GroupBySection merges hits that start with the same numbered heading
// ("3.2 Reserves ...") and joins the groups with blank lines, keeping the
// order in which each heading was first seen.
func GroupBySection(hits []string) string {
	order := make([]string, 0, len(hits))
	sections := make(map[string]string, len(hits))
	for _, h := range hits {
		text := strings.TrimSpace(h)
		section := "OTHER"
		if m := sectionHeading.FindString(text); m != "" {
			section = m
		}
		existing, ok := sections[section]
		switch {
		case !ok:
			order = append(order, section)
			sections[section] = text
		case !strings.Contains(existing, text):
			sections[section] = existing + "\n" + text
		}
	}

	parts := make([]string, 0, len(order))
	for _, s := range order {
		parts = append(parts, sections[s])
	}
	return strings.TrimSpace(strings.Join(parts, "\n\n"))
}

// EnsureIndex creates the policy index if it does not exist yet.
func EnsureIndex(ctx context.Context, client *elasticsearch.Client, index string) error {
	req := esapi.IndicesCreateRequest{
		Index: index,
		Body:  strings.NewReader(indexMapping),
	}
	res, err := req.Do(ctx, client)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.IsError() && res.StatusCode != http.StatusBadRequest {
		return fmt.Errorf("create index %s: %s", index, res.Status())
	}
	return nil
}

// IndexPages writes pages into index, one document per page keyed by its id.
func IndexPages(ctx context.Context, client *elasticsearch.Client, index string, pages []Page) (int, error) {
	indexed := 0
	for _, p := range pages {
		doc, err := json.Marshal(map[string]interface{}{
			"page_id": p.ID,
			"text":    p.Text,
		})
		if err != nil {
			return indexed, err
		}

		req := esapi.IndexRequest{
			Index:      index,
			DocumentID: p.ID,
			Body:       bytes.NewReader(doc),
			Refresh:    "true",
		}
		res, err := req.Do(ctx, client)
		if err != nil {
			return indexed, fmt.Errorf("index page %s: %w", p.ID, err)
		}
		res.Body.Close()
		if res.IsError() {
			return indexed, fmt.Errorf("index page %s: %s", p.ID, res.Status())
		}
		indexed++
	}
	return indexed, nil
}
