package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"mgnregs/internal/core"
	"mgnregs/internal/storage"
)

func runApp(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	app.ErrWriter = io.Discard
	err := app.Run(append([]string{"mgnregs-cli", "--log-level", "error"}, args...))
	return out.String(), err
}

func TestNormalizeCommand(t *testing.T) {
	out, err := runApp(t, "normalize", "kabirdham", "Gaurela-Pendra", " raipur ")
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	for _, want := range []string{"KAWARDHA", "GAURELA PENDRA MARWAHI", "RAIPUR"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	if _, err := runApp(t, "normalize"); err == nil {
		t.Error("expected error without arguments")
	}
}

func TestQueryCommand(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"records":[{"district_name":"KAWARDHA","Total_Households_Worked":"1234"}]}`)
	}))
	defer upstream.Close()

	t.Setenv("DATA_GOV_BASE_URL", upstream.URL)
	t.Setenv("DATA_GOV_API_KEY", "k")

	out, err := runApp(t, "query", "--district", "Kabirdham", "--month", "02", "--year", "2024")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	var body struct {
		Records []map[string]any `json:"records"`
	}
	if err := json.Unmarshal([]byte(out), &body); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if len(body.Records) != 1 {
		t.Errorf("records = %v", body.Records)
	}
}

func TestQueryCommandValidationFailure(t *testing.T) {
	t.Setenv("DATA_GOV_API_KEY", "k")

	out, err := runApp(t, "query", "--district", "Raipur", "--month", "2", "--year", "2024")
	if err == nil {
		t.Fatal("expected error for invalid month")
	}
	if !strings.Contains(out, `"month must be MM"`) {
		t.Errorf("output = %q", out)
	}
}

func TestHistoryCommand(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "log.db")
	repo, err := storage.NewQueryLogRepository(dbPath)
	if err != nil {
		t.Fatalf("open repo: %v", err)
	}
	ev := core.QueryEvent{
		ID:                 "ev-1",
		OccurredAt:         time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
		District:           "Kabirdham",
		NormalizedDistrict: "KAWARDHA",
		Month:              "02",
		Year:               "2024",
		MonthName:          "Feb",
		FinYear:            "2023-2024",
		Outcome:            core.OutcomeOK,
		RecordCount:        3,
	}
	if err := repo.RecordQuery(context.Background(), ev); err != nil {
		t.Fatalf("RecordQuery: %v", err)
	}
	repo.Close()

	out, err := runApp(t, "history", "--db", dbPath, "--limit", "5")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	for _, want := range []string{"KAWARDHA", "2023-2024", "ok", "QUERIES"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}
