package prometheus

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	prometheusv1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const matrixResponse = `{
	"status": "success",
	"data": {
		"resultType": "matrix",
		"result": [
			{"metric": {"job": "url-shortener"}, "values": [[1700000000, "0.99"], [1700000060, "1"]]},
			{"metric": {"job": "redirector"}, "values": [[1700000000, "NaN"]]}
		]
	}
}`

func newTestServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server
}

func TestAdapter_QueryRange(t *testing.T) {
	var gotQuery, gotStep string
	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/query_range" {
			http.NotFound(w, r)
			return
		}
		gotQuery = r.FormValue("query")
		gotStep = r.FormValue("step")

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, matrixResponse)
	})

	adapter, err := NewAdapter(DefaultConfig(server.URL), nil, nil)
	require.NoError(t, err)

	end := time.Unix(1700003600, 0)
	series, err := adapter.QueryRange(context.Background(), `avg(up{job="url-shortener"})`, end.Add(-time.Hour), end, time.Minute)
	require.NoError(t, err)

	assert.Equal(t, `avg(up{job="url-shortener"})`, gotQuery)
	assert.Equal(t, "60", gotStep)

	require.Len(t, series, 2)
	assert.Equal(t, `{job="url-shortener"}`, series[0].Label)
	require.Len(t, series[0].Samples, 2)
	assert.Equal(t, "0.99", series[0].Samples[0].Value)
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), series[0].Samples[0].Timestamp)
	assert.Equal(t, "1", series[0].Samples[1].Value)

	// NaN is passed through raw and left to the calculator
	assert.Equal(t, "NaN", series[1].Samples[0].Value)
}

func TestAdapter_EmptyResult(t *testing.T) {
	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"status":"success","data":{"resultType":"matrix","result":[]}}`)
	})

	adapter, err := NewAdapter(DefaultConfig(server.URL), nil, nil)
	require.NoError(t, err)

	series, err := adapter.QueryRange(context.Background(), "up", time.Now().Add(-time.Hour), time.Now(), time.Minute)
	require.NoError(t, err)
	assert.Empty(t, series)
}

func TestAdapter_PrometheusError(t *testing.T) {
	var requests int32
	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"status":"error","errorType":"bad_data","error":"parse error at char 4"}`)
	})

	config := DefaultConfig(server.URL)
	config.RetryCount = 2
	config.RetryDelay = time.Millisecond

	adapter, err := NewAdapter(config, nil, nil)
	require.NoError(t, err)

	_, err = adapter.QueryRange(context.Background(), "up{", time.Now().Add(-time.Hour), time.Now(), time.Minute)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 3 attempts")
	assert.GreaterOrEqual(t, atomic.LoadInt32(&requests), int32(3))
}

// fakeAPIClient answers range queries from a function
type fakeAPIClient struct {
	calls int32
	fn    func(call int32) (model.Value, error)
}

func (f *fakeAPIClient) QueryRange(ctx context.Context, query string, r prometheusv1.Range, opts ...prometheusv1.Option) (model.Value, prometheusv1.Warnings, error) {
	call := atomic.AddInt32(&f.calls, 1)
	v, err := f.fn(call)
	return v, nil, err
}

func TestAdapter_Retry(t *testing.T) {
	client := &fakeAPIClient{fn: func(call int32) (model.Value, error) {
		if call == 1 {
			return nil, fmt.Errorf("connection reset")
		}
		return model.Matrix{
			{Metric: model.Metric{"job": "x"}, Values: []model.SamplePair{{Timestamp: 0, Value: 0.5}}},
		}, nil
	}}

	config := DefaultConfig("http://unused")
	config.RetryDelay = time.Millisecond
	adapter := NewAdapterWithClient(config, client, nil)

	series, err := adapter.QueryRange(context.Background(), "up", time.Now().Add(-time.Hour), time.Now(), time.Minute)
	require.NoError(t, err)
	require.Len(t, series, 1)
	assert.Equal(t, "0.5", series[0].Samples[0].Value)
	assert.Equal(t, int32(2), atomic.LoadInt32(&client.calls))
}

func TestAdapter_UnexpectedResultType(t *testing.T) {
	client := &fakeAPIClient{fn: func(int32) (model.Value, error) {
		return model.Vector{}, nil
	}}

	adapter := NewAdapterWithClient(DefaultConfig("http://unused"), client, nil)

	_, err := adapter.QueryRange(context.Background(), "up", time.Now().Add(-time.Hour), time.Now(), time.Minute)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected result type")
}

func TestAdapter_Timeout(t *testing.T) {
	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})

	config := DefaultConfig(server.URL)
	config.Timeout = 50 * time.Millisecond
	config.RetryCount = 0

	adapter, err := NewAdapter(config, nil, nil)
	require.NoError(t, err)

	start := time.Now()
	_, err = adapter.QueryRange(context.Background(), "up", time.Now().Add(-time.Hour), time.Now(), time.Minute)
	require.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)
}

func TestAdapter_Concurrency(t *testing.T) {
	var inFlight, maxInFlight int32
	client := &fakeAPIClient{fn: func(int32) (model.Value, error) {
		n := atomic.AddInt32(&inFlight, 1)
		for {
			max := atomic.LoadInt32(&maxInFlight)
			if n <= max || atomic.CompareAndSwapInt32(&maxInFlight, max, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		return model.Matrix{}, nil
	}}

	config := DefaultConfig("http://unused")
	config.MaxConcurrency = 2
	adapter := NewAdapterWithClient(config, client, nil)

	done := make(chan struct{})
	for i := 0; i < 6; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			_, _ = adapter.QueryRange(context.Background(), "up", time.Now().Add(-time.Hour), time.Now(), time.Minute)
		}()
	}
	for i := 0; i < 6; i++ {
		<-done
	}

	assert.LessOrEqual(t, atomic.LoadInt32(&maxInFlight), int32(2))
	assert.Equal(t, int32(6), atomic.LoadInt32(&client.calls))
}
