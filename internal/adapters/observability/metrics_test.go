package observability_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"restaurant_offline/internal/adapters/observability"
)

func TestMetricsRegistryAndHandler(t *testing.T) {
	reg := observability.InitRegistry()

	// record samples so the vectors are exported
	observability.ObserveHTTP("/test", "GET", 200, 12*time.Millisecond)
	observability.ObserveCache("restaurants-img", "hit")
	observability.ObserveReplay("review", "ok")
	observability.SetOnline(true)

	mh := observability.MetricsHandler(reg)
	req := httptest.NewRequest("GET", "/metrics", nil)
	rr := httptest.NewRecorder()
	mh.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("metrics status: %d", rr.Code)
	}
	body, _ := io.ReadAll(rr.Body)
	out := string(body)
	for _, name := range []string{
		"restaurants_http_requests_total",
		"restaurants_cache_events_total",
		"restaurants_replay_events_total",
		"restaurants_remote_online 1",
	} {
		if !strings.Contains(out, name) {
			t.Fatalf("expected %s in output", name)
		}
	}
}

func TestServe_ExportsRegistry(t *testing.T) {
	if observability.Serve("", observability.InitRegistry()) != nil {
		t.Fatal("empty addr should disable the listener")
	}

	reg := observability.InitRegistry()
	observability.ObserveCache("restaurants-tiles", "hit")
	srv := observability.Serve("127.0.0.1:0", reg)
	if srv == nil {
		t.Fatal("expected a metrics server")
	}
	defer srv.Close()

	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, httptest.NewRequest("GET", "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("metrics status: %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `restaurants_cache_events_total{bucket="restaurants-tiles",event="hit"}`) {
		t.Fatalf("standalone server does not export the registry:\n%s", rr.Body.String())
	}
}
