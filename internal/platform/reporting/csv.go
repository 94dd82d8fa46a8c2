package reporting

import (
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/samber/lo"
)

// utf8BOM makes spreadsheet applications detect UTF-8.
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

const (
	DateTimeLayout = "2006-01-02 15:04:05"
	DateLayout     = "2006-01-02"
)

// Table is a CSV export: a header and rows of the same width.
type Table struct {
	Name   string
	Header []string
	Rows   [][]string
}

// NewTable projects items into rows with row. It panics if row returns a
// record whose width differs from header.
func NewTable[T any](name string, header []string, items []T, row func(T) []string) Table {
	rows := lo.Map(items, func(item T, _ int) []string {
		r := row(item)
		if len(r) != len(header) {
			panic(fmt.Sprintf("%s export: row has %d fields, header has %d", name, len(r), len(header)))
		}
		return r
	})
	return Table{Name: name, Header: header, Rows: rows}
}

// Filename returns "{name}_export_{YYYY-MM-DD_HH-MM-SS}.csv".
func Filename(name string, at time.Time) string {
	return fmt.Sprintf("%s_export_%s.csv", name, at.Format("2006-01-02_15-04-05"))
}

// WriteCSV writes the BOM, header and rows.
func WriteCSV(w io.Writer, t Table) error {
	if _, err := w.Write(utf8BOM); err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Header); err != nil {
		return err
	}
	if err := cw.WriteAll(t.Rows); err != nil {
		return err
	}
	return cw.Error()
}

// SendCSV streams t as a file download.
func SendCSV(c echo.Context, t Table, at time.Time) error {
	h := c.Response().Header()
	h.Set(echo.HeaderContentType, "text/csv; charset=utf-8")
	h.Set(echo.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="%s"`, Filename(t.Name, at)))
	c.Response().WriteHeader(http.StatusOK)
	return WriteCSV(c.Response(), t)
}

// FormatTime formats t, or returns "" for nil.
func FormatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.Format(DateTimeLayout)
}

// Deref returns *s or "".
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
