package google

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"github.com/zoeplatform/zoefinan/internal/core"
	"github.com/zoeplatform/zoefinan/internal/log"
	ports "github.com/zoeplatform/zoefinan/internal/sheets"
)

// Ensure interface conformance
var (
	_ ports.SummaryAppender = (*Client)(nil)
	_ ports.SummaryLister   = (*Client)(nil)
)

// Options selects the spreadsheet and the credentials used to reach it.
type Options struct {
	SpreadsheetID string
	// SheetName is a base name without year (e.g. "Resumo"); the client
	// prefixes the year of the row's month.
	SheetName       string
	CredentialsFile string
}

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetBase     string
	logger        *log.Logger
}

// NewClient creates a Sheets client with service account credentials. When
// opts.CredentialsFile is empty, GOOGLE_SERVICE_ACCOUNT_JSON and then
// GOOGLE_APPLICATION_CREDENTIALS are tried.
func NewClient(ctx context.Context, opts Options, logger *log.Logger) (*Client, error) {
	if strings.TrimSpace(opts.SpreadsheetID) == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	if logger == nil {
		logger = log.Default()
	}
	logger = logger.WithComponent(log.ComponentSheets)

	svc, err := newSheetsService(ctx, opts.CredentialsFile, logger)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}

	base := strings.TrimSpace(opts.SheetName)
	if base == "" {
		base = "Resumo"
	}
	return &Client{
		svc:           svc,
		spreadsheetID: opts.SpreadsheetID,
		sheetBase:     base,
		logger:        logger,
	}, nil
}

func newSheetsService(ctx context.Context, credentialsFile string, logger *log.Logger) (*gsheet.Service, error) {
	credentialsJSON, source, err := loadCredentials(credentialsFile)
	if err != nil {
		return nil, err
	}

	logger.InfoContext(ctx, "Creating Google Sheets service",
		"credentials_source", source,
		"scope", gsheet.SpreadsheetsScope)

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return service, nil
}

func loadCredentials(file string) ([]byte, string, error) {
	file = strings.TrimSpace(file)
	if file == "" {
		if inline := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON")); inline != "" {
			return []byte(inline), "inline", nil
		}
		file = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}
	if file == "" {
		return nil, "", errors.New("missing service account credentials (set sheets.credentials_file, GOOGLE_SERVICE_ACCOUNT_JSON, or GOOGLE_APPLICATION_CREDENTIALS)")
	}
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, "", fmt.Errorf("read service account file: %w", err)
	}
	return data, "file", nil
}

// AppendSummary adds the row at the end of the year's summary sheet.
func (c *Client) AppendSummary(ctx context.Context, row ports.SummaryRow) (string, error) {
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}
	if _, err := core.ParseMonthKey(string(row.Month)); err != nil {
		return "", fmt.Errorf("summary row: %w", err)
	}

	sheet := yearPrefixedName(c.sheetBase, row.Month.Year())
	rng := fmt.Sprintf("%s!A:H", sheet)
	vr := &gsheet.ValueRange{Values: [][]any{formatRow(row)}}

	resp, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, rng, vr).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("append to sheet %s: %w", sheet, err)
	}

	ref := rng
	if resp.Updates != nil && resp.Updates.UpdatedRange != "" {
		ref = resp.Updates.UpdatedRange
	}
	c.logger.DebugContext(ctx, "Appended summary row",
		log.FieldUserID, row.UserID,
		log.FieldMonth, string(row.Month),
		"range", ref)
	return ref, nil
}

// ListSummaries scans the year's summary sheet for rows of month.
func (c *Client) ListSummaries(ctx context.Context, month core.MonthKey) ([]ports.SummaryRow, error) {
	if c.svc == nil {
		return nil, errors.New("sheets service not initialized")
	}
	if _, err := core.ParseMonthKey(string(month)); err != nil {
		return nil, err
	}

	rng := fmt.Sprintf("%s!A:H", yearPrefixedName(c.sheetBase, month.Year()))
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}
	return parseSummaries(resp.Values, month), nil
}

// yearPrefixedName returns "<year> <base>" unless base already starts with a 4-digit year.
func yearPrefixedName(base string, year int) string {
	base = strings.TrimSpace(base)
	if base == "" {
		return base
	}
	if len(base) >= 5 {
		if y, err := strconv.Atoi(base[0:4]); err == nil && base[4] == ' ' && y > 1900 && y < 3000 {
			return base
		}
	}
	return fmt.Sprintf("%d %s", year, base)
}

func formatRow(r ports.SummaryRow) []any {
	at := r.RecordedAt
	if at.IsZero() {
		at = time.Now()
	}
	return []any{
		string(r.Month),
		r.UserID,
		r.Income.StringFixed(2),
		r.Committed.StringFixed(2),
		r.Balance.StringFixed(2),
		r.Score,
		r.Status,
		at.UTC().Format(time.RFC3339),
	}
}
