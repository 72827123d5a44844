package export

import (
	"bufio"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/rpattn/resultgrid/internal/domain"
	"github.com/rpattn/resultgrid/internal/table"

	"github.com/xuri/excelize/v2"
)

// Format is a download format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// ErrUnsupportedFormat is returned for formats other than csv and xlsx.
var ErrUnsupportedFormat = errors.New("unsupported export format")

const (
	sheetName = "Results"
	// Cancellation is checked once per this many rows.
	ctxCheckInterval = 1000
)

// ParseFormat accepts a format name case-insensitively; blank means csv.
func ParseFormat(raw string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(raw))) {
	case "", FormatCSV:
		return FormatCSV, nil
	case FormatXLSX:
		return FormatXLSX, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, raw)
	}
}

// ContentType is the MIME type served for f.
func (f Format) ContentType() string {
	if f == FormatXLSX {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv; charset=utf-8"
}

// Service writes the visible rows of a table to a file.
type Service struct {
	now func() time.Time
}

// NewService constructs an export service.
func NewService() *Service {
	return &Service{now: time.Now}
}

// Result describes a finished export.
type Result struct {
	FileName string
	Rows     int
	Bytes    int64
}

// Write renders tbl's filtered and sorted rows to w. Columns follow the
// result set's declaration order.
func (s *Service) Write(ctx context.Context, w io.Writer, tbl table.Table, format Format) (Result, error) {
	rows, err := tbl.Rows()
	if err != nil {
		return Result{}, fmt.Errorf("derive rows: %w", err)
	}
	source := tbl.Source()
	headers := source.ColumnNames()

	result := Result{FileName: s.fileName(source, format), Rows: len(rows)}
	switch format {
	case FormatCSV:
		result.Bytes, err = writeCSV(ctx, w, headers, rows)
	case FormatXLSX:
		result.Bytes, err = writeXLSX(ctx, w, headers, rows)
	default:
		err = fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
	if err != nil {
		return Result{}, err
	}

	log.Printf("[EXPORT] result set %s: %d rows as %s (%d bytes)", source.ID, result.Rows, format, result.Bytes)
	return result, nil
}

func (s *Service) fileName(rs domain.ResultSet, format Format) string {
	return fmt.Sprintf("%s-%s.%s", sanitizeFileComponent(rs.Name), s.now().UTC().Format("20060102-150405"), format)
}

func writeCSV(ctx context.Context, w io.Writer, headers []string, rows domain.Dataset) (int64, error) {
	buffered := bufio.NewWriter(w)
	counter := &countingWriter{writer: buffered}
	csvWriter := csv.NewWriter(counter)

	if len(headers) > 0 {
		if err := csvWriter.Write(headers); err != nil {
			return 0, fmt.Errorf("write header: %w", err)
		}
	}

	record := make([]string, len(headers))
	for i, row := range rows {
		if i%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return counter.count, err
			}
		}
		for j, column := range headers {
			record[j] = formatValue(row[column])
		}
		if err := csvWriter.Write(record); err != nil {
			return counter.count, fmt.Errorf("write row %d: %w", i, err)
		}
	}

	csvWriter.Flush()
	if err := csvWriter.Error(); err != nil {
		return counter.count, fmt.Errorf("flush csv: %w", err)
	}
	if err := buffered.Flush(); err != nil {
		return counter.count, fmt.Errorf("flush output: %w", err)
	}
	return counter.count, nil
}

func writeXLSX(ctx context.Context, w io.Writer, headers []string, rows domain.Dataset) (int64, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), sheetName); err != nil {
		return 0, fmt.Errorf("rename sheet: %w", err)
	}
	stream, err := f.NewStreamWriter(sheetName)
	if err != nil {
		return 0, fmt.Errorf("open sheet stream: %w", err)
	}

	header := make([]any, len(headers))
	for i, name := range headers {
		header[i] = name
	}
	if err := stream.SetRow("A1", header); err != nil {
		return 0, fmt.Errorf("write header: %w", err)
	}

	for i, row := range rows {
		if i%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return 0, err
			}
		}
		cells := make([]any, len(headers))
		for j, column := range headers {
			cells[j] = cellValue(row[column])
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return 0, err
		}
		if err := stream.SetRow(cell, cells); err != nil {
			return 0, fmt.Errorf("write row %d: %w", i, err)
		}
	}
	if err := stream.Flush(); err != nil {
		return 0, fmt.Errorf("flush sheet: %w", err)
	}

	n, err := f.WriteTo(w)
	if err != nil {
		return n, fmt.Errorf("write workbook: %w", err)
	}
	return n, nil
}

// cellValue keeps numbers, booleans and times native so spreadsheets can sort
// and chart them; everything else is rendered as text.
func cellValue(value any) any {
	switch v := value.(type) {
	case nil:
		return nil
	case float64, float32, int, int32, int64, bool:
		return v
	case time.Time:
		return v.UTC()
	default:
		return formatValue(v)
	}
}

func sanitizeFileComponent(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	builder := strings.Builder{}
	for _, r := range value {
		switch {
		case r >= 'a' && r <= 'z':
			builder.WriteRune(r)
		case r >= '0' && r <= '9':
			builder.WriteRune(r)
		case r == '-' || r == '_':
			builder.WriteRune(r)
		default:
			builder.WriteRune('-')
		}
	}
	result := strings.Trim(builder.String(), "-")
	if result == "" {
		return "results"
	}
	return result
}

type countingWriter struct {
	writer *bufio.Writer
	count  int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.writer.Write(p)
	c.count += int64(n)
	return n, err
}

// formatValue renders one cell as CSV text. Containers are written as JSON
// arrays so they survive a round trip through ingestion.
func formatValue(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case time.Time:
		return v.UTC().Format(time.RFC3339)
	case *time.Time:
		if v == nil {
			return ""
		}
		return v.UTC().Format(time.RFC3339)
	case fmt.Stringer:
		return v.String()
	case bool, json.Number, float32, float64, int, int32, int64, uint, uint32, uint64:
		return domain.FormatToken(v)
	case []byte:
		return string(v)
	case map[string]any, []any:
		encoded, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(encoded)
	default:
		return fmt.Sprintf("%v", v)
	}
}
