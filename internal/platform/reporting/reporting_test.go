package reporting

import (
	"bytes"
	"encoding/csv"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
)

func TestPredefinedMeasures(t *testing.T) {
	expectedIDs := []string{
		"users-by-role",
		"new-users-30d",
		"appointments-by-status",
		"registrations-by-status",
		"applications-by-status",
		"concerns-by-status",
	}
	if len(PredefinedMeasures) != len(expectedIDs) {
		t.Fatalf("expected %d measures, got %d", len(expectedIDs), len(PredefinedMeasures))
	}
	for i, id := range expectedIDs {
		if PredefinedMeasures[i].ID != id {
			t.Errorf("measure[%d] = %s, want %s", i, PredefinedMeasures[i].ID, id)
		}
	}
}

func TestPredefinedMeasures_HaveSQL(t *testing.T) {
	for _, m := range PredefinedMeasures {
		if m.SQL == "" || m.Name == "" || m.Description == "" {
			t.Errorf("measure %s is incomplete", m.ID)
		}
		if strings.Contains(m.SQL, "appointments") && !strings.Contains(m.SQL, "archived_at IS NULL") {
			t.Errorf("measure %s must exclude archived appointments", m.ID)
		}
	}
}

func TestFindMeasure(t *testing.T) {
	if m := FindMeasure("concerns-by-status"); m == nil || m.Name != "Concerns by Status" {
		t.Errorf("unexpected %+v", m)
	}
	if FindMeasure("nonexistent") != nil {
		t.Error("expected nil for nonexistent measure")
	}
}

func TestHandler_ListMeasures_HidesSQL(t *testing.T) {
	h := &Handler{}
	e := echo.New()
	rec := httptest.NewRecorder()
	if err := h.ListMeasures(e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(rec.Body.String(), "SELECT") {
		t.Error("measure SQL must not be exposed")
	}
}

func TestHandler_EvaluateMeasure_NotFound(t *testing.T) {
	h := &Handler{}
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues("nope")

	err := h.EvaluateMeasure(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %v", err)
	}
}

type person struct {
	Name  string
	Email string
}

func TestWriteCSV_BOMHeaderAndRows(t *testing.T) {
	people := []person{{"Juan, Jr.", "juan@example.com"}, {`Ana "Annie"`, "ana@example.com"}}
	table := NewTable("users", []string{"Full Name", "Email"}, people, func(p person) []string {
		return []string{p.Name, p.Email}
	})

	var buf bytes.Buffer
	if err := WriteCSV(&buf, table); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}
	if !bytes.HasPrefix(buf.Bytes(), utf8BOM) {
		t.Fatal("missing UTF-8 BOM")
	}

	records, err := csv.NewReader(bytes.NewReader(buf.Bytes()[len(utf8BOM):])).ReadAll()
	if err != nil {
		t.Fatalf("re-read CSV: %v", err)
	}
	if len(records) != len(people)+1 {
		t.Fatalf("expected %d records, got %d", len(people)+1, len(records))
	}
	if records[0][0] != "Full Name" || records[1][0] != "Juan, Jr." || records[2][0] != `Ana "Annie"` {
		t.Errorf("unexpected records %v", records)
	}
}

func TestNewTable_WidthMismatchPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic on width mismatch")
		}
	}()
	NewTable("x", []string{"A", "B"}, []int{1}, func(int) []string { return []string{"only one"} })
}

func TestFilename(t *testing.T) {
	at := time.Date(2024, 3, 9, 14, 5, 7, 0, time.UTC)
	if got := Filename("appointments", at); got != "appointments_export_2024-03-09_14-05-07.csv" {
		t.Errorf("unexpected filename %s", got)
	}
}

func TestSendCSV_Headers(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)

	table := Table{Name: "services", Header: []string{"Name"}, Rows: [][]string{{"Dental"}}}
	if err := SendCSV(c, table, time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)); err != nil {
		t.Fatalf("SendCSV: %v", err)
	}
	if ct := rec.Header().Get(echo.HeaderContentType); ct != "text/csv; charset=utf-8" {
		t.Errorf("unexpected content type %q", ct)
	}
	if cd := rec.Header().Get(echo.HeaderContentDisposition); cd != `attachment; filename="services_export_2024-01-02_03-04-05.csv"` {
		t.Errorf("unexpected disposition %q", cd)
	}
}

func TestFormatHelpers(t *testing.T) {
	if FormatTime(nil) != "" || Deref(nil) != "" {
		t.Error("nil values format as empty")
	}
	ts := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
	if FormatTime(&ts) != "2024-05-06 07:08:09" {
		t.Errorf("unexpected %s", FormatTime(&ts))
	}
	s := "x"
	if Deref(&s) != "x" {
		t.Error("Deref")
	}
}
