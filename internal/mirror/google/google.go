// Package google mirrors tables into a Google Sheets spreadsheet, one sheet
// per table. Row 1 of each sheet holds the column names; rows are matched on
// the key column for upserts and deletes.
package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"emprestimos/internal/mirror"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string

	mu                 sync.Mutex
	sheetIDs           map[string]int64
	cacheExpiresAt     time.Time
	cacheValidDuration time.Duration
}

var _ mirror.Mirror = (*Client)(nil)

// NewFromEnv creates a Sheets client from environment variables.
// Required: GOOGLE_SPREADSHEET_ID and one of GOOGLE_SERVICE_ACCOUNT_JSON,
// GOOGLE_SERVICE_ACCOUNT_FILE or GOOGLE_APPLICATION_CREDENTIALS.
func NewFromEnv(ctx context.Context) (*Client, error) {
	spreadsheetID := strings.TrimSpace(os.Getenv("GOOGLE_SPREADSHEET_ID"))
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	creds, err := credentialsFromEnv()
	if err != nil {
		return nil, err
	}
	return NewWithCredentials(ctx, spreadsheetID, creds)
}

// NewWithCredentials creates a client authenticated with a service account key.
func NewWithCredentials(ctx context.Context, spreadsheetID string, credentialsJSON []byte) (*Client, error) {
	svc, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	slog.InfoContext(ctx, "Google Sheets mirror initialized", "spreadsheet_id", spreadsheetID)
	return New(svc, spreadsheetID), nil
}

func New(svc *gsheet.Service, spreadsheetID string) *Client {
	return &Client{
		svc:                svc,
		spreadsheetID:      spreadsheetID,
		sheetIDs:           make(map[string]int64),
		cacheValidDuration: 10 * time.Minute,
	}
}

func credentialsFromEnv() ([]byte, error) {
	if inline := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON")); inline != "" {
		return []byte(inline), nil
	}
	path := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))
	if path == "" {
		path = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}
	if path == "" {
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read service account file: %w", err)
	}
	return b, nil
}

func (c *Client) ready() error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}
	return nil
}

func (c *Client) readSheet(ctx context.Context, spec mirror.TableSpec) ([][]interface{}, error) {
	rng := fmt.Sprintf("%s!A:ZZ", spec.Remote)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}
	return resp.Values, nil
}

// Fetch reads every data row of the table's sheet.
func (c *Client) Fetch(ctx context.Context, spec mirror.TableSpec) ([]mirror.Row, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	values, err := c.readSheet(ctx, spec)
	if err != nil {
		return nil, err
	}
	t, err := parseTable(spec, values)
	if err != nil {
		return nil, err
	}
	return t.rows, nil
}

// Upsert overwrites rows whose key is already on the sheet and appends the
// rest. An empty sheet gets a header row first.
func (c *Client) Upsert(ctx context.Context, spec mirror.TableSpec, rows []mirror.Row) (int, error) {
	if err := c.ready(); err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}
	values, err := c.readSheet(ctx, spec)
	if err != nil {
		return 0, err
	}
	if len(values) == 0 {
		header := make([]interface{}, len(spec.Columns))
		for i, col := range spec.Columns {
			header[i] = col
		}
		vr := &gsheet.ValueRange{Values: [][]interface{}{header}}
		if _, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, spec.Remote+"!A1", vr).
			ValueInputOption("RAW").Context(ctx).Do(); err != nil {
			return 0, fmt.Errorf("write header to %s: %w", spec.Remote, err)
		}
		values = [][]interface{}{header}
	}
	t, err := parseTable(spec, values)
	if err != nil {
		return 0, err
	}

	updates, appends := planUpsert(spec, t, rows)
	if len(updates) > 0 {
		req := &gsheet.BatchUpdateValuesRequest{ValueInputOption: "RAW", Data: updates}
		if _, err := c.svc.Spreadsheets.Values.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do(); err != nil {
			return 0, fmt.Errorf("update rows in %s: %w", spec.Remote, err)
		}
	}
	if len(appends) > 0 {
		vr := &gsheet.ValueRange{Values: appends}
		if _, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, spec.Remote+"!A1", vr).
			ValueInputOption("RAW").InsertDataOption("INSERT_ROWS").Context(ctx).Do(); err != nil {
			return 0, fmt.Errorf("append rows to %s: %w", spec.Remote, err)
		}
	}

	slog.DebugContext(ctx, "Upserted rows to Google Sheets",
		"sheet", spec.Remote,
		"updated", len(updates),
		"appended", len(appends))
	return len(updates) + len(appends), nil
}

// Delete removes the sheet rows holding the given keys.
func (c *Client) Delete(ctx context.Context, spec mirror.TableSpec, keys []string) error {
	if err := c.ready(); err != nil {
		return err
	}
	values, err := c.readSheet(ctx, spec)
	if err != nil {
		return err
	}
	t, err := parseTable(spec, values)
	if err != nil {
		return err
	}
	rowNums := rowsToDelete(t, keys)
	if len(rowNums) == 0 {
		return nil
	}
	sheetID, err := c.sheetID(ctx, spec.Remote)
	if err != nil {
		return err
	}

	reqs := make([]*gsheet.Request, 0, len(rowNums))
	for _, n := range rowNums {
		reqs = append(reqs, &gsheet.Request{DeleteDimension: &gsheet.DeleteDimensionRequest{
			Range: &gsheet.DimensionRange{
				SheetId:    sheetID,
				Dimension:  "ROWS",
				StartIndex: int64(n - 1),
				EndIndex:   int64(n),
			},
		}})
	}
	_, err = c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, &gsheet.BatchUpdateSpreadsheetRequest{Requests: reqs}).
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("delete rows from %s: %w", spec.Remote, err)
	}
	slog.InfoContext(ctx, "Deleted rows from Google Sheets", "sheet", spec.Remote, "count", len(rowNums))
	return nil
}

// sheetID resolves a sheet title to its numeric id, cached for
// cacheValidDuration.
func (c *Client) sheetID(ctx context.Context, title string) (int64, error) {
	c.mu.Lock()
	if time.Now().Before(c.cacheExpiresAt) {
		if id, ok := c.sheetIDs[title]; ok {
			c.mu.Unlock()
			return id, nil
		}
	}
	c.mu.Unlock()

	ss, err := c.svc.Spreadsheets.Get(c.spreadsheetID).Fields("sheets(properties(sheetId,title))").Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("read spreadsheet properties: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.sheetIDs = make(map[string]int64, len(ss.Sheets))
	for _, s := range ss.Sheets {
		if s.Properties != nil {
			c.sheetIDs[s.Properties.Title] = s.Properties.SheetId
		}
	}
	c.cacheExpiresAt = time.Now().Add(c.cacheValidDuration)
	id, ok := c.sheetIDs[title]
	if !ok {
		return 0, fmt.Errorf("sheet %q not found", title)
	}
	return id, nil
}

// InvalidateCache forgets cached sheet ids.
func (c *Client) InvalidateCache() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cacheExpiresAt = time.Time{}
}

func rowsToDelete(t table, keys []string) []int {
	var out []int
	for _, k := range keys {
		if n, ok := t.rowByKey[k]; ok {
			out = append(out, n)
		}
	}
	// Bottom up so earlier deletions do not shift later ones.
	sort.Sort(sort.Reverse(sort.IntSlice(out)))
	return out
}
