package google

import (
	"fmt"
	"strings"

	"emprestimos/internal/mirror"

	gsheet "google.golang.org/api/sheets/v4"
)

// table is a parsed sheet: the header, the data rows and the 1-based sheet
// row number of every key.
type table struct {
	header   []string
	rows     []mirror.Row
	rowByKey map[string]int
}

func parseTable(spec mirror.TableSpec, values [][]interface{}) (table, error) {
	t := table{rowByKey: make(map[string]int)}
	if len(values) == 0 {
		return t, nil
	}
	t.header = toStrings(values[0])
	if indexOf(t.header, spec.Key) == -1 {
		return t, fmt.Errorf("unexpected header in sheet %s: missing key column %q; got headers=%v", spec.Remote, spec.Key, t.header)
	}
	for i := 1; i < len(values); i++ {
		cols := toStrings(values[i])
		row := make(mirror.Row, len(spec.Columns))
		for _, c := range spec.Columns {
			row[c] = safeGet(cols, indexOf(t.header, c))
		}
		key := row.Key(spec)
		if key == "" {
			continue
		}
		if _, dup := t.rowByKey[key]; dup {
			continue
		}
		t.rowByKey[key] = i + 1
		t.rows = append(t.rows, row)
	}
	return t, nil
}

// planUpsert splits rows into in-place updates for known keys and appends
// for new ones, laid out in the sheet's header order.
func planUpsert(spec mirror.TableSpec, t table, rows []mirror.Row) ([]*gsheet.ValueRange, [][]interface{}) {
	var (
		updates []*gsheet.ValueRange
		appends [][]interface{}
		seen    = make(map[string]bool, len(rows))
	)
	for _, r := range rows {
		key := r.Key(spec)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		vals := rowValues(t.header, r)
		if n, ok := t.rowByKey[key]; ok {
			updates = append(updates, &gsheet.ValueRange{
				Range:  fmt.Sprintf("%s!A%d", spec.Remote, n),
				Values: [][]interface{}{vals},
			})
			continue
		}
		appends = append(appends, vals)
	}
	return updates, appends
}

func rowValues(header []string, r mirror.Row) []interface{} {
	out := make([]interface{}, len(header))
	for i, col := range header {
		out[i] = r[col]
	}
	return out
}

func toStrings(in []interface{}) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = strings.TrimSpace(fmt.Sprint(v))
	}
	return out
}

func indexOf(arr []string, target string) int {
	for i, v := range arr {
		if strings.EqualFold(v, target) {
			return i
		}
	}
	return -1
}

func safeGet(arr []string, idx int) string {
	if idx < 0 || idx >= len(arr) {
		return ""
	}
	return arr[idx]
}
