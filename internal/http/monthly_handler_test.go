package http

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"mgnregs/internal/core"
	"mgnregs/internal/datagov"
	"mgnregs/internal/log"
	"mgnregs/internal/services"
)

// upstream is a scripted data.gov.in stand-in. Each request pops the next
// response; the last one repeats.
type upstream struct {
	mu        sync.Mutex
	requests  []url.Values
	responses []upstreamResponse
}

type upstreamResponse struct {
	status      int
	contentType string
	body        string
}

func (u *upstream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	u.mu.Lock()
	i := len(u.requests)
	u.requests = append(u.requests, r.URL.Query())
	if i >= len(u.responses) {
		i = len(u.responses) - 1
	}
	resp := u.responses[i]
	u.mu.Unlock()

	if resp.contentType != "" {
		w.Header().Set("Content-Type", resp.contentType)
	}
	w.WriteHeader(resp.status)
	io.WriteString(w, resp.body)
}

func (u *upstream) count() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.requests)
}

func jsonResponse(body string) upstreamResponse {
	return upstreamResponse{status: http.StatusOK, contentType: "application/json; charset=utf-8", body: body}
}

func quietLogger() *log.Logger { return log.New(log.Config{Output: io.Discard}) }

func newTestServer(t *testing.T, up http.Handler, apiKey string) *Server {
	t.Helper()
	baseURL := "http://127.0.0.1:1"
	if up != nil {
		srv := httptest.NewServer(up)
		t.Cleanup(srv.Close)
		baseURL = srv.URL
	}
	client := datagov.New(datagov.Config{BaseURL: baseURL, HTTPClient: &http.Client{}, Logger: quietLogger()})
	svc := services.NewMonthlyService(services.MonthlyServiceConfig{
		Fetcher: client,
		APIKey:  func() string { return apiKey },
		Logger:  quietLogger(),
	})
	s := NewServer(ServerConfig{RateLimitPerMinute: 1000, Logger: quietLogger()}, svc)
	t.Cleanup(func() { s.Shutdown(context.Background()) })
	return s
}

func get(t *testing.T, s *Server, target string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rr := httptest.NewRecorder()
	s.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, target, nil))
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("response is not JSON: %q", rr.Body.String())
	}
	return rr, body
}

func monthlyURL(district, month, year string) string {
	q := url.Values{}
	if district != "" {
		q.Set("district", district)
	}
	if month != "" {
		q.Set("month", month)
	}
	if year != "" {
		q.Set("year", year)
	}
	return MonthlyPath + "?" + q.Encode()
}

func TestValidationErrors(t *testing.T) {
	up := &upstream{responses: []upstreamResponse{jsonResponse(`{"records":[]}`)}}
	s := newTestServer(t, up, "")

	tests := []struct {
		name                string
		district, month, yr string
		want                string
	}{
		{"missing district", "", "02", "2024", "district is required"},
		{"blank district", "   ", "02", "2024", "district is required"},
		{"one digit month", "Raipur", "1", "2024", "month must be MM"},
		{"missing month", "Raipur", "", "2024", "month must be MM"},
		{"two digit year", "Raipur", "02", "99", "year must be YYYY"},
		{"month out of range", "Raipur", "13", "2024", "month must be between 01 and 12"},
		{"month zero", "Raipur", "00", "2024", "month must be between 01 and 12"},
		{"district checked first", "", "1", "99", "district is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr, body := get(t, s, monthlyURL(tt.district, tt.month, tt.yr))
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("status=%d", rr.Code)
			}
			if body["error"] != tt.want || len(body) != 1 {
				t.Fatalf("body=%v, want error %q", body, tt.want)
			}
		})
	}
	if up.count() != 0 {
		t.Fatalf("upstream called %d times on invalid input", up.count())
	}
}

func TestMissingAPIKey(t *testing.T) {
	up := &upstream{responses: []upstreamResponse{jsonResponse(`{"records":[]}`)}}
	s := newTestServer(t, up, "")

	rr, body := get(t, s, monthlyURL("Kabirdham", "02", "2024"))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d", rr.Code)
	}
	if body["error"] != "missing_api_key" || body["hint"] == "" || body["hint"] == nil {
		t.Fatalf("unexpected body: %v", body)
	}
	if up.count() != 0 {
		t.Fatal("upstream must not be called without a key")
	}
}

func TestKabirdhamQueryTranslation(t *testing.T) {
	up := &upstream{responses: []upstreamResponse{
		jsonResponse(`{"records":[{"district_name":"KAWARDHA","Total_Households_Worked":12345,"note":"a&b"}]}`),
	}}
	s := newTestServer(t, up, "secret")

	rr := httptest.NewRecorder()
	s.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, monthlyURL("Kabirdham", "02", "2024"), nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), `"Total_Households_Worked":12345`) || !strings.Contains(rr.Body.String(), `"a&b"`) {
		t.Fatalf("records not passed through verbatim: %s", rr.Body.String())
	}

	if up.count() != 1 {
		t.Fatalf("expected one upstream call, got %d", up.count())
	}
	q := up.requests[0]
	want := map[string]string{
		"api-key":               "secret",
		"format":                "json",
		"limit":                 "100",
		"filters[state_name]":   "CHHATTISGARH",
		"filters[district_name]": "KAWARDHA",
		"filters[month]":        "Feb",
		"filters[fin_year]":     "2023-2024",
	}
	for k, v := range want {
		if got := q.Get(k); got != v {
			t.Errorf("%s=%q, want %q", k, got, v)
		}
	}
}

func TestFinancialYearForLaterMonths(t *testing.T) {
	up := &upstream{responses: []upstreamResponse{jsonResponse(`{"records":[{"district_name":"RAIPUR"}]}`)}}
	s := newTestServer(t, up, "k")

	get(t, s, monthlyURL("raipur", "04", "2024"))
	if got := up.requests[0].Get("filters[fin_year]"); got != "2024-2025" {
		t.Fatalf("fin_year=%q", got)
	}
	if got := up.requests[0].Get("filters[month]"); got != "Apr" {
		t.Fatalf("month=%q", got)
	}
}

func TestFallbackFiltersLocally(t *testing.T) {
	up := &upstream{responses: []upstreamResponse{
		jsonResponse(`{"records":[]}`),
		jsonResponse(`{"records":[
			{"district_name":"Gaurela-Pendra-Marwahi","v":1},
			{"district_name":"BILASPUR","v":2},
			{"district_name":"gaurela pendra  marwahi","v":3},
			{"v":4}
		]}`),
	}}
	s := newTestServer(t, up, "k")

	rr, body := get(t, s, monthlyURL("Pendra Road", "11", "2023"))
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	if up.count() != 2 {
		t.Fatalf("expected exactly one fallback, got %d upstream calls", up.count())
	}
	fb := up.requests[1]
	if fb.Has("filters[district_name]") || fb.Get("limit") != "5000" || fb.Get("filters[fin_year]") != "2023-2024" {
		t.Fatalf("unexpected fallback query: %v", fb)
	}
	records := body["records"].([]any)
	if len(records) != 2 {
		t.Fatalf("expected 2 filtered records, got %v", records)
	}
}

func TestPunctuationOnlyDistrictKeepsDistrictFilter(t *testing.T) {
	up := &upstream{responses: []upstreamResponse{
		jsonResponse(`{"records":[]}`),
		jsonResponse(`{"records":[{"district_name":"RAIPUR"},{"district_name":"DURG"}]}`),
	}}
	s := newTestServer(t, up, "k")

	rr, body := get(t, s, monthlyURL("-", "04", "2024"))
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	primary := up.requests[0]
	if !primary.Has("filters[district_name]") || primary.Get("filters[district_name]") != "" || primary.Get("limit") != "100" {
		t.Fatalf("primary query must carry the (empty) district filter: %v", primary)
	}
	if up.count() != 2 || up.requests[1].Has("filters[district_name]") {
		t.Fatalf("unexpected fallback requests: %v", up.requests)
	}
	if records := body["records"].([]any); len(records) != 0 {
		t.Fatalf("other districts leaked into the result: %v", records)
	}
}

func TestFallbackFailureIsSwallowed(t *testing.T) {
	up := &upstream{responses: []upstreamResponse{
		jsonResponse(`{"records":[]}`),
		{status: http.StatusServiceUnavailable, contentType: "text/plain", body: "busy"},
	}}
	s := newTestServer(t, up, "k")

	rr := httptest.NewRecorder()
	s.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, monthlyURL("Durg", "05", "2024"), nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	if strings.TrimSpace(rr.Body.String()) != `{"records":[]}` {
		t.Fatalf("body=%s", rr.Body.String())
	}
}

func TestUpstreamErrors(t *testing.T) {
	long := strings.Repeat("x", 800)
	tests := []struct {
		name       string
		resp       upstreamResponse
		wantStatus int
		check      func(t *testing.T, body map[string]any)
	}{
		{
			name:       "non-2xx",
			resp:       upstreamResponse{status: http.StatusServiceUnavailable, contentType: "text/plain", body: "maintenance"},
			wantStatus: http.StatusBadGateway,
			check: func(t *testing.T, body map[string]any) {
				if body["error"] != "upstream_failed" || body["status"].(float64) != 503 || body["body"] != "maintenance" {
					t.Fatalf("body=%v", body)
				}
			},
		},
		{
			name:       "non-json",
			resp:       upstreamResponse{status: http.StatusOK, contentType: "text/html", body: long},
			wantStatus: http.StatusBadGateway,
			check: func(t *testing.T, body map[string]any) {
				if body["error"] != "upstream_nonjson" || body["contentType"] != "text/html" || len(body["body"].(string)) != 500 {
					t.Fatalf("body=%v", body)
				}
			},
		},
		{
			name:       "invalid json",
			resp:       jsonResponse(`{"records":[`),
			wantStatus: http.StatusInternalServerError,
			check: func(t *testing.T, body map[string]any) {
				if body["error"] != "server_error" || body["message"] == "" {
					t.Fatalf("body=%v", body)
				}
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			up := &upstream{responses: []upstreamResponse{tt.resp}}
			s := newTestServer(t, up, "k")
			rr, body := get(t, s, monthlyURL("Raipur", "02", "2024"))
			if rr.Code != tt.wantStatus {
				t.Fatalf("status=%d, want %d", rr.Code, tt.wantStatus)
			}
			tt.check(t, body)
			if up.count() != 1 {
				t.Fatalf("no fallback after a primary failure, got %d calls", up.count())
			}
		})
	}
}

func TestUpstreamUnreachable(t *testing.T) {
	dead := httptest.NewServer(http.NotFoundHandler())
	deadURL := dead.URL
	dead.Close()

	client := datagov.New(datagov.Config{BaseURL: deadURL, HTTPClient: &http.Client{}, Logger: quietLogger()})
	svc := services.NewMonthlyService(services.MonthlyServiceConfig{
		Fetcher: client,
		APIKey:  func() string { return "k" },
		Logger:  quietLogger(),
	})
	h := NewMonthlyHandler(svc)

	status, payload := h.Respond(context.Background(), url.Values{"district": {"Raipur"}, "month": {"02"}, "year": {"2024"}})
	if status != http.StatusBadGateway {
		t.Fatalf("status=%d", status)
	}
	body, ok := payload.(messageError)
	if !ok || body.Error != "upstream_unreachable" || body.Message == "" {
		t.Fatalf("payload=%#v", payload)
	}
}

type panickingQuerier struct{}

func (panickingQuerier) Query(context.Context, core.MonthlyQuery) (services.MonthlyResult, error) {
	panic("boom")
}

type nilRecordsQuerier struct{}

func (nilRecordsQuerier) Query(context.Context, core.MonthlyQuery) (services.MonthlyResult, error) {
	return services.MonthlyResult{}, nil
}

func TestRespondRecoversPanics(t *testing.T) {
	status, payload := NewMonthlyHandler(panickingQuerier{}).Respond(context.Background(), url.Values{})
	if status != http.StatusInternalServerError {
		t.Fatalf("status=%d", status)
	}
	if body := payload.(messageError); body.Error != "server_error" || body.Message != "boom" {
		t.Fatalf("payload=%#v", payload)
	}
}

func TestRecordsNeverNull(t *testing.T) {
	rr := httptest.NewRecorder()
	NewMonthlyHandler(nilRecordsQuerier{}).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, MonthlyPath, nil))
	if strings.TrimSpace(rr.Body.String()) != `{"records":[]}` {
		t.Fatalf("body=%s", rr.Body.String())
	}
	if ct := rr.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Fatalf("content-type=%q", ct)
	}
}

func TestParseMonthlyQuery(t *testing.T) {
	q := ParseMonthlyQuery(url.Values{
		"district": {"  Kabirdham ", "ignored"},
		"month":    {"02"},
		"year":     {"2024"},
	})
	want := core.MonthlyQuery{District: "Kabirdham", Month: "02", Year: "2024"}
	if q != want {
		t.Fatalf("got %+v, want %+v", q, want)
	}
	if got := ParseMonthlyQuery(url.Values{"month": {" 02"}}); got.Month != " 02" {
		t.Fatalf("month must not be trimmed, got %q", got.Month)
	}
}
