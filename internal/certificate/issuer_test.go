package certificate

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"certification-workers/internal/common/errors"
	"certification-workers/internal/common/idgen"
	"certification-workers/internal/common/logger"
	"certification-workers/internal/models"
	"certification-workers/internal/store"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test Helper Functions
// ==========================

var fixedNow = time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)

func seedStore() *store.Memory {
	mem := store.NewMemory()
	mem.AddCompany(&models.Company{
		ID:                 "co-1",
		Name:               "Acme Builders",
		RegistrationNumber: "RC-100",
		TaxID:              "TIN-1",
		Address:            "1 Main St",
		Sectors:            []string{"roads", "bridges"},
		Grade:              "A",
		VendorID:           "v-1",
	})
	mem.AddVendor(&models.Vendor{ID: "v-1", CompanyID: "co-1"})
	return mem
}

func newTestIssuer(t *testing.T, repo store.Repository, opts ...Option) *Issuer {
	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	return NewIssuer(repo, DefaultConfig(), logger.NewTestLogger(t), opts...)
}

// countingGenerator returns the given suffixes in order, repeating the last.
type countingGenerator struct {
	mu       sync.Mutex
	suffixes []string
	calls    int
}

func (g *countingGenerator) Generate(int) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	idx := g.calls
	if idx >= len(g.suffixes) {
		idx = len(g.suffixes) - 1
	}
	g.calls++
	return g.suffixes[idx], nil
}

// ==========================
// Issuance Tests
// ==========================

func TestIssuer_Issue_CapturesSnapshot(t *testing.T) {
	mem := seedStore()
	issuer := newTestIssuer(t, mem)

	cert, err := issuer.Issue(context.Background(), IssueRequest{CompanyID: "co-1", ApplicationID: "app-1"})
	require.NoError(t, err)

	assert.Regexp(t, regexp.MustCompile(`^CERT-2025-[0-9A-Z]{6}$`), cert.Number)
	assert.Equal(t, models.CertificateApproved, cert.Status)
	assert.Equal(t, "v-1", cert.ContractorID)
	assert.Equal(t, "app-1", cert.ApplicationID)
	assert.Equal(t, fixedNow, cert.IssuedAt)
	assert.Equal(t, fixedNow.AddDate(0, 0, 365), cert.ValidUntil)
	assert.Equal(t, models.CertificateSnapshot{
		CompanyName:        "Acme Builders",
		RegistrationNumber: "RC-100",
		TaxID:              "TIN-1",
		Address:            "1 Main St",
		ApprovedSectors:    []string{"roads", "bridges"},
		Grade:              "A",
	}, cert.Snapshot)

	stored, err := mem.GetCertificateByNumber(context.Background(), cert.Number)
	require.NoError(t, err)
	assert.Equal(t, cert.ID, stored.ID)
}

func TestIssuer_Issue_SnapshotIsPointInTime(t *testing.T) {
	mem := seedStore()
	issuer := newTestIssuer(t, mem)

	cert, err := issuer.Issue(context.Background(), IssueRequest{CompanyID: "co-1"})
	require.NoError(t, err)

	mem.AddCompany(&models.Company{ID: "co-1", Name: "Acme Renamed", Sectors: []string{"housing"}, Grade: "B"})

	stored, err := mem.GetCertificate(context.Background(), cert.ID)
	require.NoError(t, err)
	assert.Equal(t, "Acme Builders", stored.Snapshot.CompanyName)
	assert.Equal(t, []string{"roads", "bridges"}, stored.Snapshot.ApprovedSectors)
}

func TestIssuer_Issue_ThousandDistinctNumbers(t *testing.T) {
	mem := seedStore()
	issuer := NewIssuer(mem, DefaultConfig(), logger.NewNoOpLogger())

	seen := make(map[string]bool, 1000)
	for i := 0; i < 1000; i++ {
		cert, err := issuer.Issue(context.Background(), IssueRequest{CompanyID: "co-1"})
		require.NoError(t, err)
		require.False(t, seen[cert.Number], "duplicate certificate id %s", cert.Number)
		seen[cert.Number] = true
	}

	n, err := mem.CountCertificates(context.Background(), "co-1")
	require.NoError(t, err)
	assert.Equal(t, 1000, n)
}

func TestIssuer_Issue_AlwaysCollidingGeneratorFailsAfterTenAttempts(t *testing.T) {
	mem := seedStore()
	mem.AddCertificate(&models.Certificate{
		ID: "existing", Number: "CERT-2025-AAAAAA", CompanyID: "co-2", Status: models.CertificateApproved,
	})
	gen := &countingGenerator{suffixes: []string{"AAAAAA"}}
	issuer := newTestIssuer(t, mem, WithGenerator(gen))

	_, err := issuer.Issue(context.Background(), IssueRequest{CompanyID: "co-1"})

	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeConflict))
	assert.Equal(t, 10, gen.calls)
	assert.Empty(t, mem.ListCertificates("co-1"))
}

func TestIssuer_Issue_RetriesPastCollisions(t *testing.T) {
	mem := seedStore()
	mem.AddCertificate(&models.Certificate{ID: "existing", Number: "CERT-2025-AAAAAA", CompanyID: "co-2"})
	gen := &countingGenerator{suffixes: []string{"AAAAAA", "AAAAAA", "BBBBBB"}}
	issuer := newTestIssuer(t, mem, WithGenerator(gen))

	cert, err := issuer.Issue(context.Background(), IssueRequest{CompanyID: "co-1"})

	require.NoError(t, err)
	assert.Equal(t, "CERT-2025-BBBBBB", cert.Number)
	assert.Equal(t, 3, gen.calls)
}

func TestIssuer_Issue_UnknownCompany(t *testing.T) {
	mem := seedStore()
	issuer := newTestIssuer(t, mem)

	_, err := issuer.Issue(context.Background(), IssueRequest{CompanyID: "missing"})

	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeNotFound))
	n, _ := mem.CountCertificates(context.Background(), "missing")
	assert.Zero(t, n)
}

func TestIssuer_IssueWithin_RollsBackWithCaller(t *testing.T) {
	mem := seedStore()
	issuer := newTestIssuer(t, mem)

	err := mem.RunInTx(context.Background(), func(tx store.Store) error {
		if _, err := issuer.IssueWithin(context.Background(), tx, IssueRequest{CompanyID: "co-1"}); err != nil {
			return err
		}
		return fmt.Errorf("later step failed")
	})

	require.Error(t, err)
	assert.Empty(t, mem.ListCertificates("co-1"))
}

func TestIssuer_GeneratorError(t *testing.T) {
	mem := seedStore()
	gen := idgen.GeneratorFunc(func(int) (string, error) { return "", fmt.Errorf("entropy exhausted") })
	issuer := newTestIssuer(t, mem, WithGenerator(gen))

	_, err := issuer.Issue(context.Background(), IssueRequest{CompanyID: "co-1"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "entropy exhausted")
}

// ==========================
// Index Tests
// ==========================

// fakeES serves the index and get document APIs from a map.
type fakeES struct {
	mu       sync.Mutex
	docs     map[string][]byte
	failPuts bool
}

func (f *fakeES) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("X-Elastic-Product", "Elasticsearch")
	w.Header().Set("Content-Type", "application/json")

	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) != 3 || parts[1] != "_doc" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	id := parts[2]

	f.mu.Lock()
	defer f.mu.Unlock()

	switch r.Method {
	case http.MethodPut, http.MethodPost:
		if f.failPuts {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"error":"unavailable"}`))
			return
		}
		var body json.RawMessage
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		f.docs[id] = body
		w.WriteHeader(http.StatusCreated)
		_, _ = fmt.Fprintf(w, `{"_id":%q,"result":"created"}`, id)
	case http.MethodGet:
		doc, ok := f.docs[id]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_, _ = fmt.Fprintf(w, `{"_id":%q,"found":false}`, id)
			return
		}
		_, _ = fmt.Fprintf(w, `{"_id":%q,"found":true,"_source":%s}`, id, doc)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func newFakeIndex(t *testing.T) (*fakeES, *ESIndex) {
	fake := &fakeES{docs: make(map[string][]byte)}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	client, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: []string{srv.URL}})
	require.NoError(t, err)
	return fake, NewESIndex(client, "certificates")
}

func TestIssuer_Issue_PublishesToIndex(t *testing.T) {
	mem := seedStore()
	fake, index := newFakeIndex(t)
	issuer := newTestIssuer(t, mem, WithIndex(index))

	cert, err := issuer.Issue(context.Background(), IssueRequest{CompanyID: "co-1"})
	require.NoError(t, err)

	fake.mu.Lock()
	_, indexed := fake.docs[cert.Number]
	fake.mu.Unlock()
	assert.True(t, indexed)

	got, err := issuer.Verify(context.Background(), cert.Number)
	require.NoError(t, err)
	assert.Equal(t, cert.ID, got.ID)
	assert.Equal(t, "Acme Builders", got.Snapshot.CompanyName)
	assert.True(t, got.ActiveAt(fixedNow.Add(time.Hour)))
}

func TestIssuer_Issue_IndexFailureIsNotFatal(t *testing.T) {
	mem := seedStore()
	fake, index := newFakeIndex(t)
	fake.failPuts = true
	issuer := newTestIssuer(t, mem, WithIndex(index))

	cert, err := issuer.Issue(context.Background(), IssueRequest{CompanyID: "co-1"})
	require.NoError(t, err)

	got, err := issuer.Verify(context.Background(), cert.Number)
	require.NoError(t, err, "verification falls back to the store")
	assert.Equal(t, cert.ID, got.ID)
}

func TestIssuer_Verify_Unknown(t *testing.T) {
	_, index := newFakeIndex(t)
	issuer := newTestIssuer(t, seedStore(), WithIndex(index))

	_, err := issuer.Verify(context.Background(), "CERT-2025-ZZZZZZ")

	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeNotFound))
}

type MockIndex struct {
	mock.Mock
}

func (m *MockIndex) Put(ctx context.Context, cert *models.Certificate) error {
	args := m.Called(ctx, cert)
	return args.Error(0)
}

func (m *MockIndex) Get(ctx context.Context, number string) (*models.Certificate, error) {
	args := m.Called(ctx, number)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Certificate), args.Error(1)
}

func TestIssuer_Verify_IndexHitSkipsStore(t *testing.T) {
	index := new(MockIndex)
	indexed := &models.Certificate{Number: "CERT-2025-AB12CD", Snapshot: models.CertificateSnapshot{CompanyName: "From Index"}}
	index.On("Get", mock.Anything, "CERT-2025-AB12CD").Return(indexed, nil).Once()

	issuer := newTestIssuer(t, store.NewMemory(), WithIndex(index))
	got, err := issuer.Verify(context.Background(), "CERT-2025-AB12CD")

	require.NoError(t, err)
	assert.Same(t, indexed, got)
	index.AssertExpectations(t)
}

func TestIssuer_Verify_FallsBackToStore(t *testing.T) {
	tests := []struct {
		name     string
		indexErr error
	}{
		{name: "not indexed", indexErr: ErrNotIndexed},
		{name: "index unavailable", indexErr: fmt.Errorf("connection refused")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mem := seedStore()
			index := new(MockIndex)
			index.On("Put", mock.Anything, mock.AnythingOfType("*models.Certificate")).Return(nil)
			issuer := newTestIssuer(t, mem, WithIndex(index))

			cert, err := issuer.Issue(context.Background(), IssueRequest{CompanyID: "co-1"})
			require.NoError(t, err)

			index.On("Get", mock.Anything, cert.Number).Return(nil, tt.indexErr).Once()
			got, err := issuer.Verify(context.Background(), cert.Number)

			require.NoError(t, err)
			assert.Equal(t, cert.ID, got.ID)
			index.AssertExpectations(t)
		})
	}
}
