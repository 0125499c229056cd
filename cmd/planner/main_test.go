package main

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRouteLabel(t *testing.T) {
	cases := map[string]string{
		"/v1/plans":              "/v1/plans",
		"/v1/plans/metrics":      "/v1/plans/metrics",
		"/v1/plans/abc":          "/v1/plans/{id}",
		"/v1/plans/abc/timeline": "/v1/plans/{id}/timeline",
		"/healthz":               "/healthz",
	}
	for in, want := range cases {
		if got := routeLabel(in); got != want {
			t.Fatalf("routeLabel(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestLogMiddlewareRecordsStatus(t *testing.T) {
	h := logMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != http.StatusTeapot {
		t.Fatalf("got %d", rr.Code)
	}
}
