package datasource

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestServer(t *testing.T, body string, status int) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/query" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestQueryVector(t *testing.T) {
	server := newTestServer(t, `{"status":"success","data":{"resultType":"vector","result":[
		{"metric":{"node":"node-a"},"value":[1700000000,"0.25"]},
		{"metric":{"node":"node-b"},"value":[1700000000,"0.75"]}
	]}}`, http.StatusOK)

	source, err := NewPrometheusSource(Config{PrometheusURL: server.URL, Timeout: 5 * time.Second}, nil)
	if err != nil {
		t.Fatalf("NewPrometheusSource failed: %v", err)
	}

	samples, err := source.Query(context.Background(), "node_utilization")
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(samples) != 2 {
		t.Fatalf("Expected 2 samples, got %d", len(samples))
	}
	if samples[0].Labels["node"] != "node-a" || samples[0].Value != 0.25 {
		t.Errorf("Unexpected first sample: %+v", samples[0])
	}

	sum, err := source.QueryScalar(context.Background(), "node_utilization")
	if err != nil {
		t.Fatalf("QueryScalar failed: %v", err)
	}
	if sum != 1.0 {
		t.Errorf("Expected sum 1.0, got %f", sum)
	}
}

func TestQueryScalarResultIsEmpty(t *testing.T) {
	server := newTestServer(t, `{"status":"success","data":{"resultType":"scalar","result":[1700000000,"1"]}}`, http.StatusOK)

	source, _ := NewPrometheusSource(Config{PrometheusURL: server.URL}, nil)
	samples, err := source.Query(context.Background(), "1")
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(samples) != 0 {
		t.Errorf("Expected no samples for scalar result, got %d", len(samples))
	}

	if _, err := source.QueryScalar(context.Background(), "1"); err == nil {
		t.Error("Expected error for empty result")
	}
}

func TestQueryServerError(t *testing.T) {
	server := newTestServer(t, `{"status":"error","errorType":"bad_data","error":"parse error"}`, http.StatusBadRequest)

	source, _ := NewPrometheusSource(Config{PrometheusURL: server.URL}, nil)
	if _, err := source.Query(context.Background(), "sum("); err == nil {
		t.Error("Expected error for failed query")
	}
}

func TestIsAvailable(t *testing.T) {
	server := newTestServer(t, `{"status":"success","data":{"resultType":"vector","result":[]}}`, http.StatusOK)
	source, _ := NewPrometheusSource(Config{PrometheusURL: server.URL}, nil)
	if !source.IsAvailable(context.Background()) {
		t.Error("Expected source to be available")
	}
	if source.Name() != "Prometheus" {
		t.Errorf("Expected name Prometheus, got %s", source.Name())
	}

	down, _ := NewPrometheusSource(Config{PrometheusURL: "http://127.0.0.1:1"}, nil)
	if down.IsAvailable(context.Background()) {
		t.Error("Expected unreachable source to be unavailable")
	}
}
