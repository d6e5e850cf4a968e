package fieldsource

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/exzackley/fondogis/internal/domain"
	"github.com/exzackley/fondogis/internal/observability"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testToken         = "test-token"
	contentTypeJSON   = "application/json"
	headerContentType = "Content-Type"
)

var testKey = domain.FieldKey{Dataset: "cmip6", Variable: "tas", Scenario: "ssp245", TimeLabel: "2041-2070"}

func testClient(baseURL string) *Client {
	return &Client{
		token:           testToken,
		httpClient:      &http.Client{Timeout: 5 * time.Second},
		baseURL:         baseURL,
		breaker:         newBreaker("test"),
		maxRetries:      2,
		initialInterval: time.Millisecond,
		metrics:         observability.NewMetricsForTesting(),
		logger:          slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// fieldServer serves a 1° lattice whose value is lon + 10·lat, with null
// north of 45°.
func fieldServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/datasets/cmip6/tas/lattice", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer "+testToken, r.Header.Get("Authorization"))
		assert.Equal(t, "ssp245", r.URL.Query().Get("scenario"))
		assert.Equal(t, "2041-2070", r.URL.Query().Get("time"))
		w.Header().Set(headerContentType, contentTypeJSON)
		require.NoError(t, json.NewEncoder(w).Encode(domain.Lattice{OriginLon: 0.5, OriginLat: 0.5, Resolution: 1}))
	})
	mux.HandleFunc("/datasets/cmip6/tas/value", func(w http.ResponseWriter, r *http.Request) {
		var lat, lon float64
		require.NoError(t, json.Unmarshal([]byte(r.URL.Query().Get("lat")), &lat))
		require.NoError(t, json.Unmarshal([]byte(r.URL.Query().Get("lon")), &lon))
		w.Header().Set(headerContentType, contentTypeJSON)
		if lat > 45 {
			_, _ = w.Write([]byte(`{"value":null}`))
			return
		}
		require.NoError(t, json.NewEncoder(w).Encode(map[string]float64{"value": lon + 10*lat}))
	})
	return httptest.NewServer(mux)
}

func TestClient_Field_Success(t *testing.T) {
	srv := fieldServer(t)
	defer srv.Close()

	c := testClient(srv.URL)
	f, err := c.Field(context.Background(), testKey)
	require.NoError(t, err)
	assert.Equal(t, domain.Lattice{OriginLon: 0.5, OriginLat: 0.5, Resolution: 1}, f.Lattice())

	v, err := f.ValueAt(context.Background(), 40.5, 10.5)
	require.NoError(t, err)
	assert.Equal(t, domain.Present(415.5), v)

	v, err = f.ValueAt(context.Background(), 46.5, 10.5)
	require.NoError(t, err)
	assert.False(t, v.Valid)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.metrics.FieldLookups.WithLabelValues(kindValue, "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.metrics.FieldLookups.WithLabelValues(kindValue, "absent")))
}

func TestClient_Field_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).Field(context.Background(), testKey)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestClient_Field_InvalidLattice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set(headerContentType, contentTypeJSON)
		_, _ = w.Write([]byte(`{"origin_lon":0,"origin_lat":0,"resolution":0}`))
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).Field(context.Background(), testKey)
	assert.ErrorIs(t, err, domain.ErrInvalidResolution)
}

func TestClient_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set(headerContentType, contentTypeJSON)
		_, _ = w.Write([]byte(`{"origin_lon":0,"origin_lat":0,"resolution":0.25}`))
	}))
	defer srv.Close()

	f, err := testClient(srv.URL).Field(context.Background(), testKey)
	require.NoError(t, err)
	assert.Equal(t, 0.25, f.Lattice().Resolution)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_GivesUpAfterMaxRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	_, err := c.Field(context.Background(), testKey)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
	assert.Equal(t, int32(3), calls.Load(), "one attempt plus two retries")
	assert.Equal(t, 1.0, testutil.ToFloat64(c.metrics.FieldLookups.WithLabelValues(kindLattice, "error")))
}

func TestClient_ClientErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"Not Authorized"}`))
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).Field(context.Background(), testKey)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	c.httpClient = &http.Client{Timeout: 20 * time.Millisecond}
	c.maxRetries = 0

	_, err := c.Field(context.Background(), testKey)
	require.Error(t, err)
}

func TestClient_CancelledContext(t *testing.T) {
	srv := fieldServer(t)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := testClient(srv.URL).Field(ctx, testKey)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestClient_SamplesThroughEngine(t *testing.T) {
	srv := fieldServer(t)
	defer srv.Close()

	region, err := domain.RegionFromGeoJSON("r", []byte(`{"type":"Polygon","coordinates":[[[10,40],[12,40],[12,42],[10,42],[10,40]]]}`))
	require.NoError(t, err)
	grid, err := domain.BuildGrid(region, 0.5)
	require.NoError(t, err)

	f, err := testClient(srv.URL).Field(context.Background(), testKey)
	require.NoError(t, err)
	samples, err := domain.Sample(context.Background(), grid, f, domain.MethodBilinear)
	require.NoError(t, err)

	require.Equal(t, grid.Len(), samples.Present())
	for _, s := range samples {
		assert.InDelta(t, s.Point.Lon()+10*s.Point.Lat(), s.Value.Float, 1e-6)
	}
}
