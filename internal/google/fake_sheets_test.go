package google

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// fakeSpreadsheet serves the subset of the values API the package uses.
type fakeSpreadsheet struct {
	mu      sync.Mutex
	sheets  map[string][][]interface{}
	fail    atomic.Bool
	appends atomic.Int32
	updates atomic.Int32
}

var rowNumber = regexp.MustCompile(`![A-Z]+(\d+)`)

func newFakeSpreadsheet(t *testing.T) (*fakeSpreadsheet, *sheets.Service) {
	t.Helper()
	fake := &fakeSpreadsheet{sheets: make(map[string][][]interface{})}
	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)

	srv, err := sheets.NewService(context.Background(), option.WithEndpoint(server.URL), option.WithoutAuthentication())
	require.NoError(t, err)
	return fake, srv
}

func (f *fakeSpreadsheet) set(sheet string, rows [][]interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sheets[sheet] = rows
}

func (f *fakeSpreadsheet) rows(sheet string) [][]interface{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]interface{}(nil), f.sheets[sheet]...)
}

func (f *fakeSpreadsheet) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if f.fail.Load() {
		http.Error(w, `{"error":{"code":503,"message":"backend unavailable"}}`, http.StatusServiceUnavailable)
		return
	}

	_, rest, ok := strings.Cut(strings.TrimPrefix(r.URL.Path, "/v4/spreadsheets/"), "/values/")
	if !ok {
		http.NotFound(w, r)
		return
	}

	action := ""
	if i := strings.LastIndex(rest, ":"); i > 0 && (strings.HasSuffix(rest, ":append") || strings.HasSuffix(rest, ":clear")) {
		action = rest[i+1:]
		rest = rest[:i]
	}
	sheet, _, _ := strings.Cut(rest, "!")

	f.mu.Lock()
	defer f.mu.Unlock()

	switch {
	case r.Method == http.MethodGet:
		rows := f.sheets[sheet]
		if strings.HasSuffix(rest, "!L:L") {
			col := make([][]interface{}, len(rows))
			for i, row := range rows {
				if len(row) > 11 {
					col[i] = []interface{}{row[11]}
				} else {
					col[i] = []interface{}{}
				}
			}
			rows = col
		}
		_ = json.NewEncoder(w).Encode(sheets.ValueRange{Range: rest, Values: rows})

	case action == "append":
		var body sheets.ValueRange
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.sheets[sheet] = append(f.sheets[sheet], body.Values...)
		f.appends.Add(1)
		n := len(f.sheets[sheet])
		_ = json.NewEncoder(w).Encode(sheets.AppendValuesResponse{
			Updates: &sheets.UpdateValuesResponse{UpdatedRange: fmt.Sprintf("%s!A%d:L%d", sheet, n, n)},
		})

	case action == "clear":
		f.sheets[sheet] = nil
		_ = json.NewEncoder(w).Encode(sheets.ClearValuesResponse{})

	case r.Method == http.MethodPut:
		var body sheets.ValueRange
		_ = json.NewDecoder(r.Body).Decode(&body)
		start := 1
		if m := rowNumber.FindStringSubmatch(rest); m != nil {
			start, _ = strconv.Atoi(m[1])
		}
		for i, row := range body.Values {
			idx := start - 1 + i
			for len(f.sheets[sheet]) <= idx {
				f.sheets[sheet] = append(f.sheets[sheet], []interface{}{})
			}
			f.sheets[sheet][idx] = row
		}
		f.updates.Add(1)
		_ = json.NewEncoder(w).Encode(sheets.UpdateValuesResponse{UpdatedRange: rest})

	default:
		http.NotFound(w, r)
	}
}
