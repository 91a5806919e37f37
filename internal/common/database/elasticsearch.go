// internal/common/database/elasticsearch.go
package database

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"certification-workers/internal/common/config"
	"certification-workers/internal/common/errors"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

type ElasticsearchClient struct {
	Client *elasticsearch.Client
}

func NewElasticsearch(cfg config.ElasticsearchConfig) (*ElasticsearchClient, error) {
	esCfg := elasticsearch.Config{
		Addresses:  cfg.Addresses,
		MaxRetries: 3,
	}
	if cfg.Username != "" {
		esCfg.Username = cfg.Username
		esCfg.Password = cfg.Password
	}

	es, err := elasticsearch.NewClient(esCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create elasticsearch client: %w", err)
	}
	return &ElasticsearchClient{Client: es}, nil
}

func (c *ElasticsearchClient) Ping(ctx context.Context) error {
	res, err := c.Client.Ping(c.Client.Ping.WithContext(ctx))
	if err != nil {
		return errors.NewExternalServiceError("elasticsearch", fmt.Errorf("elasticsearch ping failed: %w", err))
	}
	defer res.Body.Close()

	if res.IsError() {
		return errors.NewExternalServiceError("elasticsearch", fmt.Errorf("elasticsearch ping error: %s", res.Status()))
	}
	return nil
}

// EnsureIndex creates index with mapping unless it already exists. Reports
// whether the index was created.
func (c *ElasticsearchClient) EnsureIndex(ctx context.Context, index, mapping string) (bool, error) {
	exists, err := esapi.IndicesExistsRequest{Index: []string{index}}.Do(ctx, c.Client)
	if err != nil {
		return false, errors.NewSearchQueryFailedError(index, err)
	}
	exists.Body.Close()

	switch exists.StatusCode {
	case http.StatusOK:
		return false, nil
	case http.StatusNotFound:
	default:
		return false, errors.NewSearchQueryFailedError(index, fmt.Errorf("index exists check: %s", exists.Status()))
	}

	res, err := esapi.IndicesCreateRequest{
		Index: index,
		Body:  strings.NewReader(mapping),
	}.Do(ctx, c.Client)
	if err != nil {
		return false, errors.NewSearchQueryFailedError(index, err)
	}
	defer res.Body.Close()

	// Another replica may have created it between the two calls.
	if res.IsError() && !strings.Contains(res.String(), "resource_already_exists_exception") {
		return false, errors.NewSearchQueryFailedError(index, fmt.Errorf("create index: %s", res.String()))
	}
	return !res.IsError(), nil
}
