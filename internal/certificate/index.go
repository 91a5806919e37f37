package certificate

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"

	"certification-workers/internal/models"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

// ErrNotIndexed is returned by Index.Get when no document exists for the
// certificate number.
var ErrNotIndexed = stderrors.New("certificate not indexed")

// IndexMapping is applied when the certificate index is first created.
// Identifiers are keyword fields so verification lookups match exactly.
const IndexMapping = `{
  "mappings": {
    "properties": {
      "id":            {"type": "keyword"},
      "certificateId": {"type": "keyword"},
      "companyId":     {"type": "keyword"},
      "contractorId":  {"type": "keyword"},
      "applicationId": {"type": "keyword"},
      "status":        {"type": "keyword"},
      "issuedAt":      {"type": "date"},
      "validUntil":    {"type": "date"},
      "snapshot": {
        "properties": {
          "companyName":        {"type": "text", "fields": {"raw": {"type": "keyword"}}},
          "registrationNumber": {"type": "keyword"},
          "taxId":              {"type": "keyword"},
          "approvedSectors":    {"type": "keyword"},
          "grade":              {"type": "keyword"}
        }
      }
    }
  }
}`

// Index is the search-side copy of issued certificates used for
// verification lookups.
type Index interface {
	Put(ctx context.Context, cert *models.Certificate) error
	Get(ctx context.Context, number string) (*models.Certificate, error)
}

// ESIndex stores certificates in an Elasticsearch index keyed by number.
type ESIndex struct {
	client *elasticsearch.Client
	index  string
}

func NewESIndex(client *elasticsearch.Client, index string) *ESIndex {
	return &ESIndex{client: client, index: index}
}

func (e *ESIndex) Put(ctx context.Context, cert *models.Certificate) error {
	body, err := json.Marshal(cert)
	if err != nil {
		return fmt.Errorf("encode certificate: %w", err)
	}

	req := esapi.IndexRequest{
		Index:      e.index,
		DocumentID: cert.Number,
		Body:       bytes.NewReader(body),
	}
	res, err := req.Do(ctx, e.client)
	if err != nil {
		return fmt.Errorf("index certificate %s: %w", cert.Number, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("index certificate %s: %s", cert.Number, res.String())
	}
	return nil
}

func (e *ESIndex) Get(ctx context.Context, number string) (*models.Certificate, error) {
	req := esapi.GetRequest{
		Index:      e.index,
		DocumentID: number,
	}
	res, err := req.Do(ctx, e.client)
	if err != nil {
		return nil, fmt.Errorf("get certificate %s: %w", number, err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return nil, ErrNotIndexed
	}
	if res.IsError() {
		return nil, fmt.Errorf("get certificate %s: %s", number, res.String())
	}

	var doc struct {
		Found  bool               `json:"found"`
		Source models.Certificate `json:"_source"`
	}
	if err := json.NewDecoder(res.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode certificate %s: %w", number, err)
	}
	if !doc.Found {
		return nil, ErrNotIndexed
	}
	return &doc.Source, nil
}
