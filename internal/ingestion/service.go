package ingestion

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/url"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rpattn/resultgrid/internal/auth"
	"github.com/rpattn/resultgrid/internal/domain"
	"github.com/rpattn/resultgrid/internal/metrics"
	"github.com/rpattn/resultgrid/internal/repository"
	"github.com/rpattn/resultgrid/internal/schema/validator"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"
)

var (
	// ErrUnsupportedFormat is returned when an uploaded file is not supported.
	ErrUnsupportedFormat = errors.New("unsupported file format")

	// ErrColumnMismatch is returned when a refresh upload lacks a column of the
	// result set it replaces rows for.
	ErrColumnMismatch = errors.New("upload does not match the result set columns")

	errStore = errors.New("failed to store result set")

	byteOrderMark = []byte{0xEF, 0xBB, 0xBF}

	imageExtensions = map[string]bool{
		".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".webp": true, ".svg": true, ".bmp": true,
	}
)

// Inference thresholds.
const (
	categoryMaxDistinct = 50
	categoryMaxLength   = 32
	textCategoryMaxLen  = 120
)

// Service imports tabular files as result sets.
type Service struct {
	repo    repository.ResultSetRepository
	metrics *metrics.Metrics
}

// NewService creates a new ingestion service.
func NewService(repo repository.ResultSetRepository, m *metrics.Metrics) *Service {
	return &Service{repo: repo, metrics: m}
}

// Request describes the ingestion input.
type Request struct {
	WorkspaceID     uuid.UUID
	Name            string
	Query           string
	FileName        string
	HeaderRowIndex  *int
	ColumnOverrides map[string]domain.ColumnType
	Data            io.Reader
}

// RefreshRequest replaces the rows of an existing result set. The upload must
// carry every column of the set; its values are typed with the stored types.
type RefreshRequest struct {
	ResultSetID    uuid.UUID
	FileName       string
	HeaderRowIndex *int
	Data           io.Reader
}

// PreviewRequest describes the preview input prior to ingestion.
type PreviewRequest struct {
	FileName        string
	HeaderRowIndex  *int
	ColumnOverrides map[string]domain.ColumnType
	Data            io.Reader
	Limit           int
}

// ColumnReport summarizes how one column was typed.
type ColumnReport struct {
	Name          string            `json:"name"`
	OriginalLabel string            `json:"originalLabel"`
	DetectedType  domain.ColumnType `json:"detectedType"`
	EffectiveType domain.ColumnType `json:"effectiveType"`
	Overridden    bool              `json:"overridden"`
	NullCount     int               `json:"nullCount"`
	InvalidCells  int               `json:"invalidCells"`
}

// HeaderCandidate represents a potential header row option.
type HeaderCandidate struct {
	Index   int      `json:"index"`
	Values  []string `json:"values"`
	Current bool     `json:"current"`
}

// PreviewResult returns preview metadata back to clients.
type PreviewResult struct {
	TotalRows        int               `json:"totalRows"`
	Columns          []ColumnReport    `json:"columns"`
	Rows             domain.Dataset    `json:"rows"`
	HeaderCandidates []HeaderCandidate `json:"headerCandidates"`
}

// Summary is returned after a successful import.
type Summary struct {
	ResultSet repository.ResultSetSummary `json:"resultSet"`
	TotalRows int                         `json:"totalRows"`
	Columns   []ColumnReport              `json:"columns"`
}

type tableData struct {
	headers        []string
	rawHeaders     []string
	rows           [][]string
	headerRowIndex int
}

// Import parses the uploaded file, types its columns and stores it as a new
// result set.
func (s *Service) Import(ctx context.Context, req Request) (Summary, error) {
	summary := Summary{Columns: []ColumnReport{}}

	if req.WorkspaceID == uuid.Nil {
		return summary, errors.New("workspace id is required")
	}
	if req.Data == nil {
		return summary, errors.New("data reader is required")
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(req.FileName), filepath.Ext(req.FileName))
	}
	if name == "" {
		return summary, errors.New("result set name is required")
	}

	payload, err := io.ReadAll(req.Data)
	if err != nil {
		return summary, fmt.Errorf("failed to read upload: %w", err)
	}
	if len(payload) == 0 {
		return summary, errors.New("file is empty")
	}

	table, _, err := parseTable(req.FileName, payload, req.HeaderRowIndex)
	if err != nil {
		return summary, err
	}
	if len(table.headers) == 0 {
		return summary, errors.New("no header row detected")
	}

	columns, reports := describeColumns(table, req.ColumnOverrides)
	if err := validator.ValidateColumns(columns); err != nil {
		return summary, err
	}
	rows := buildRows(table, columns, reports)

	rs := domain.NewResultSet(req.WorkspaceID, name, req.Query, columns, rows)
	created, err := s.repo.Create(ctx, rs)
	if err != nil {
		return summary, fmt.Errorf("%w: %v", errStore, err)
	}
	if s.metrics != nil {
		s.metrics.ResultSetsStored.Inc()
	}
	log.Printf("[INGEST] stored result set %s (%s): %d rows, %d columns", created.ID, created.Name, len(rows), len(columns))

	summary.ResultSet = repository.Summarize(created)
	summary.TotalRows = len(rows)
	summary.Columns = reports
	return summary, nil
}

// Refresh re-reads an upload into an existing result set. Columns and their
// types stay as stored; the rows are replaced and the version bumped, so
// cached profiles of the previous rows are no longer served.
func (s *Service) Refresh(ctx context.Context, req RefreshRequest) (Summary, error) {
	summary := Summary{Columns: []ColumnReport{}}

	if req.ResultSetID == uuid.Nil {
		return summary, errors.New("result set id is required")
	}
	if req.Data == nil {
		return summary, errors.New("data reader is required")
	}

	existing, err := s.repo.GetByID(ctx, req.ResultSetID)
	if err != nil {
		return summary, err
	}
	if err := auth.EnforceWorkspaceScope(ctx, existing.WorkspaceID); err != nil {
		return summary, err
	}

	payload, err := io.ReadAll(req.Data)
	if err != nil {
		return summary, fmt.Errorf("failed to read upload: %w", err)
	}
	if len(payload) == 0 {
		return summary, errors.New("file is empty")
	}
	table, _, err := parseTable(req.FileName, payload, req.HeaderRowIndex)
	if err != nil {
		return summary, err
	}

	aligned, err := alignTable(table, existing.Columns)
	if err != nil {
		return summary, err
	}
	reports := make([]ColumnReport, len(existing.Columns))
	for idx, column := range existing.Columns {
		reports[idx] = ColumnReport{
			Name:          column.Name,
			OriginalLabel: aligned.rawHeaders[idx],
			DetectedType:  column.Type,
			EffectiveType: column.Type,
		}
	}
	rows := buildRows(aligned, existing.Columns, reports)

	updated, err := s.repo.UpdateRows(ctx, existing.WithRows(rows))
	if err != nil {
		if errors.Is(err, repository.ErrVersionConflict) || errors.Is(err, repository.ErrNotFound) {
			return summary, err
		}
		return summary, fmt.Errorf("%w: %v", errStore, err)
	}
	log.Printf("[INGEST] refreshed result set %s (%s) to version %d: %d rows", updated.ID, updated.Name, updated.Version, len(rows))

	summary.ResultSet = repository.Summarize(updated)
	summary.TotalRows = len(rows)
	summary.Columns = reports
	return summary, nil
}

// alignTable reorders the upload's cells into the order of columns. Upload
// columns the result set does not have are dropped.
func alignTable(table tableData, columns []domain.ColumnDescriptor) (tableData, error) {
	positions := make(map[string]int, len(table.headers))
	for idx, header := range table.headers {
		positions[header] = idx
	}

	indexes := make([]int, len(columns))
	headers := make([]string, len(columns))
	rawHeaders := make([]string, len(columns))
	for i, column := range columns {
		idx, ok := positions[column.Name]
		if !ok {
			return tableData{}, fmt.Errorf("%w: missing column %s", ErrColumnMismatch, column.Name)
		}
		indexes[i] = idx
		headers[i] = column.Name
		rawHeaders[i] = table.rawHeaders[idx]
	}
	if extra := len(table.headers) - len(columns); extra > 0 {
		log.Printf("[INGEST] dropping %d upload columns the result set does not have", extra)
	}

	rows := make([][]string, len(table.rows))
	for r, raw := range table.rows {
		cells := make([]string, len(columns))
		for i, idx := range indexes {
			cells[i] = raw[idx]
		}
		rows[r] = cells
	}
	return tableData{headers: headers, rawHeaders: rawHeaders, rows: rows, headerRowIndex: table.headerRowIndex}, nil
}

// Preview types the columns of an upload and returns sample rows without
// storing anything.
func (s *Service) Preview(ctx context.Context, req PreviewRequest) (PreviewResult, error) {
	result := PreviewResult{
		Columns:          []ColumnReport{},
		Rows:             domain.Dataset{},
		HeaderCandidates: []HeaderCandidate{},
	}

	if req.Data == nil {
		return result, errors.New("data reader is required")
	}
	payload, err := io.ReadAll(req.Data)
	if err != nil {
		return result, fmt.Errorf("failed to read upload: %w", err)
	}
	if len(payload) == 0 {
		return result, errors.New("file is empty")
	}

	table, records, err := parseTable(req.FileName, payload, req.HeaderRowIndex)
	if err != nil {
		return result, err
	}
	result.HeaderCandidates = buildHeaderCandidates(records, 10, table.headerRowIndex)
	if len(table.headers) == 0 {
		return result, errors.New("no header row detected")
	}

	columns, reports := describeColumns(table, req.ColumnOverrides)
	rows := buildRows(table, columns, reports)

	limit := req.Limit
	if limit <= 0 {
		limit = 10
	}
	if limit > len(rows) {
		limit = len(rows)
	}

	result.TotalRows = len(rows)
	result.Columns = reports
	result.Rows = rows[:limit]
	return result, nil
}

func parseTable(fileName string, payload []byte, headerRowIndex *int) (tableData, [][]string, error) {
	ext := strings.ToLower(filepath.Ext(fileName))
	switch ext {
	case ".csv":
		return parseCSV(payload, headerRowIndex)
	case ".xlsx":
		return parseExcel(payload, headerRowIndex)
	default:
		return tableData{}, nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
	}
}

func parseCSV(payload []byte, headerRowIndex *int) (tableData, [][]string, error) {
	reader := bufio.NewReader(bytes.NewReader(payload))
	if prefix, err := reader.Peek(len(byteOrderMark)); err == nil && bytes.Equal(prefix, byteOrderMark) {
		_, _ = reader.Discard(len(byteOrderMark))
	}

	csvReader := csv.NewReader(reader)
	csvReader.TrimLeadingSpace = true
	csvReader.FieldsPerRecord = -1

	records, err := csvReader.ReadAll()
	if err != nil {
		return tableData{}, nil, fmt.Errorf("failed to read csv: %w", err)
	}

	table, err := normalizeTable(records, headerRowIndex)
	if err != nil {
		return tableData{}, nil, err
	}
	return table, records, nil
}

func parseExcel(payload []byte, headerRowIndex *int) (tableData, [][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(payload))
	if err != nil {
		return tableData{}, nil, fmt.Errorf("failed to open xlsx: %w", err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return tableData{}, nil, errors.New("excel file has no sheets")
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return tableData{}, nil, fmt.Errorf("failed to read rows from xlsx: %w", err)
	}

	table, err := normalizeTable(rows, headerRowIndex)
	if err != nil {
		return tableData{}, nil, err
	}
	return table, rows, nil
}

func normalizeTable(records [][]string, headerRowIndex *int) (tableData, error) {
	if len(records) == 0 {
		return tableData{}, errors.New("no rows found in file")
	}

	var headerRow []string
	var dataRows [][]string
	headerIndex := -1

	if headerRowIndex != nil {
		if *headerRowIndex < 0 || *headerRowIndex >= len(records) {
			return tableData{}, fmt.Errorf("header row index %d out of range", *headerRowIndex)
		}
		if isBlankRow(records[*headerRowIndex]) {
			return tableData{}, fmt.Errorf("selected header row %d is empty", *headerRowIndex+1)
		}
		headerRow = records[*headerRowIndex]
		headerIndex = *headerRowIndex
		for idx := *headerRowIndex + 1; idx < len(records); idx++ {
			if !isBlankRow(records[idx]) {
				dataRows = append(dataRows, records[idx])
			}
		}
	} else {
		for idx, row := range records {
			if isBlankRow(row) {
				continue
			}
			if headerRow == nil {
				headerRow = row
				headerIndex = idx
				continue
			}
			dataRows = append(dataRows, row)
		}
	}

	if headerRow == nil {
		return tableData{}, errors.New("header row could not be detected")
	}

	headers := sanitizeHeaders(headerRow)
	rawHeaders := make([]string, len(headerRow))
	for i, value := range headerRow {
		rawHeaders[i] = strings.TrimSpace(value)
	}

	for i := range dataRows {
		dataRows[i] = padRow(dataRows[i], len(headers))
	}

	return tableData{
		headers:        headers,
		rawHeaders:     rawHeaders,
		rows:           dataRows,
		headerRowIndex: headerIndex,
	}, nil
}

func buildHeaderCandidates(records [][]string, limit int, currentIndex int) []HeaderCandidate {
	if limit <= 0 {
		limit = 10
	}

	candidates := make([]HeaderCandidate, 0, limit)
	for idx, row := range records {
		if isBlankRow(row) {
			continue
		}
		values := make([]string, len(row))
		for i, cell := range row {
			values[i] = strings.TrimSpace(cell)
		}
		candidates = append(candidates, HeaderCandidate{
			Index:   idx,
			Values:  values,
			Current: idx == currentIndex,
		})
		if len(candidates) >= limit {
			break
		}
	}
	return candidates
}

func isBlankRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

func sanitizeHeaders(raw []string) []string {
	headers := make([]string, len(raw))
	seen := make(map[string]int)

	for idx, value := range raw {
		name := strings.TrimSpace(value)
		name = strings.ReplaceAll(name, " ", "_")
		name = strings.ReplaceAll(name, ".", "_")
		name = strings.ReplaceAll(name, "-", "_")
		name = strings.Trim(name, "_")
		if name == "" {
			name = fmt.Sprintf("column_%d", idx+1)
		}

		base := name
		count := seen[base]
		if count > 0 {
			name = fmt.Sprintf("%s_%d", base, count+1)
		}
		seen[base] = count + 1
		headers[idx] = name
	}
	return headers
}

func padRow(row []string, length int) []string {
	if len(row) >= length {
		return row[:length]
	}
	padded := make([]string, length)
	copy(padded, row)
	return padded
}

func describeColumns(table tableData, overrides map[string]domain.ColumnType) ([]domain.ColumnDescriptor, []ColumnReport) {
	columns := make([]domain.ColumnDescriptor, len(table.headers))
	reports := make([]ColumnReport, len(table.headers))
	for idx, header := range table.headers {
		detected := profileColumn(header, idx, table.rows)
		effective := detected
		override, overridden := overrides[header]
		if overridden && override != "" {
			effective = override
		}
		columns[idx] = domain.ColumnDescriptor{Name: header, Type: effective}
		reports[idx] = ColumnReport{
			Name:          header,
			OriginalLabel: table.rawHeaders[idx],
			DetectedType:  detected,
			EffectiveType: effective,
			Overridden:    overridden && override != "" && override != detected,
		}
	}
	return columns, reports
}

func buildRows(table tableData, columns []domain.ColumnDescriptor, reports []ColumnReport) domain.Dataset {
	rows := make(domain.Dataset, 0, len(table.rows))
	for _, raw := range table.rows {
		record := make(domain.Record, len(columns))
		for idx, column := range columns {
			cell := strings.TrimSpace(raw[idx])
			if cell == "" {
				record[column.Name] = nil
				reports[idx].NullCount++
				continue
			}
			value, ok := coerceValue(column.Type, cell)
			if !ok {
				reports[idx].InvalidCells++
			}
			record[column.Name] = value
		}
		rows = append(rows, record)
	}
	return rows
}

// profileColumn picks the narrowest column type every non-empty cell fits.
func profileColumn(header string, col int, rows [][]string) domain.ColumnType {
	var (
		isBool      = true
		isNumber    = true
		isTimestamp = true
		isURL       = true
		isImage     = true
		isUUID      = true
		isList      = true
		nonEmpty    int
		maxLength   int
	)
	distinct := make(map[string]struct{})
	lists := make([][]any, 0)

	for _, row := range rows {
		if col >= len(row) {
			continue
		}
		value := strings.TrimSpace(row[col])
		if value == "" {
			continue
		}
		nonEmpty++
		distinct[value] = struct{}{}
		if len(value) > maxLength {
			maxLength = len(value)
		}

		if !looksLikeBool(value) {
			isBool = false
		}
		if !looksLikeNumber(value) {
			isNumber = false
		}
		if !looksLikeTimestamp(value) {
			isTimestamp = false
		}
		if !looksLikeURL(value) {
			isURL = false
			isImage = false
		} else if !imageExtensions[strings.ToLower(path.Ext(value))] {
			isImage = false
		}
		if _, err := uuid.Parse(value); err != nil {
			isUUID = false
		}
		if isList {
			if items, ok := parseList(value); ok {
				lists = append(lists, items)
			} else {
				isList = false
			}
		}
	}

	if nonEmpty == 0 {
		return domain.ColumnTypeText
	}
	allDistinct := len(distinct) == nonEmpty

	switch {
	case isList:
		return listColumnType(lists)
	case isBool:
		return domain.ColumnTypeBinary
	case isNumber && allDistinct && looksLikeIDHeader(header):
		return domain.ColumnTypeID
	case isNumber:
		return domain.ColumnTypeNumerical
	case isTimestamp:
		return domain.ColumnTypeTimestamp
	case isImage:
		return domain.ColumnTypeImage
	case isURL:
		return domain.ColumnTypeURL
	case isUUID || (allDistinct && looksLikeIDHeader(header)):
		return domain.ColumnTypeID
	case isCategorical(len(distinct), nonEmpty) && maxLength <= categoryMaxLength:
		return domain.ColumnTypeCategory
	case isCategorical(len(distinct), nonEmpty) && maxLength <= textCategoryMaxLen:
		return domain.ColumnTypeTextCategory
	default:
		return domain.ColumnTypeText
	}
}

func listColumnType(lists [][]any) domain.ColumnType {
	allNumbers, allBools := true, true
	distinct := make(map[string]struct{})
	items, maxLength := 0, 0
	for _, list := range lists {
		for _, item := range list {
			items++
			switch v := item.(type) {
			case float64:
				allBools = false
			case bool:
				allNumbers = false
			default:
				allNumbers, allBools = false, false
				text := domain.FormatToken(v)
				distinct[text] = struct{}{}
				if len(text) > maxLength {
					maxLength = len(text)
				}
			}
		}
	}

	switch {
	case items == 0:
		return domain.ColumnTypeSequenceCategory
	case allNumbers:
		return domain.ColumnTypeSequenceNumerical
	case allBools:
		return domain.ColumnTypeSequenceBinary
	case isCategorical(len(distinct), items) && maxLength <= categoryMaxLength:
		return domain.ColumnTypeSequenceCategory
	case isCategorical(len(distinct), items):
		return domain.ColumnTypeSequenceTextCategory
	default:
		return domain.ColumnTypeSequenceText
	}
}

func isCategorical(distinct, total int) bool {
	return distinct <= categoryMaxDistinct && distinct*2 <= total
}

func looksLikeIDHeader(header string) bool {
	lower := strings.ToLower(header)
	return lower == "id" || strings.HasSuffix(lower, "_id") || strings.HasSuffix(lower, "uuid")
}

func looksLikeBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "true", "false", "yes", "no":
		return true
	}
	return false
}

func looksLikeNumber(value string) bool {
	_, err := strconv.ParseFloat(value, 64)
	return err == nil
}

func looksLikeTimestamp(value string) bool {
	_, err := domain.ParseTimestamp(value)
	return err == nil
}

func looksLikeURL(value string) bool {
	parsed, err := url.Parse(value)
	if err != nil {
		return false
	}
	return (parsed.Scheme == "http" || parsed.Scheme == "https") && parsed.Host != ""
}

// parseList accepts JSON arrays of scalars.
func parseList(value string) ([]any, bool) {
	if !strings.HasPrefix(value, "[") {
		return nil, false
	}
	var items []any
	if err := json.Unmarshal([]byte(value), &items); err != nil {
		return nil, false
	}
	for _, item := range items {
		switch item.(type) {
		case map[string]any, []any:
			return nil, false
		}
	}
	return items, true
}

// coerceValue converts a raw cell into the value stored for the column type.
// Cells that do not fit keep their raw text and report false; the analytics
// engine treats them as invalid rather than failing the import.
func coerceValue(columnType domain.ColumnType, raw string) (any, bool) {
	switch {
	case columnType == domain.ColumnTypeNumerical:
		if f, err := strconv.ParseFloat(raw, 64); err == nil {
			return f, true
		}
		return raw, false
	case columnType == domain.ColumnTypeBinary:
		switch strings.ToLower(raw) {
		case "true", "yes", "y", "1":
			return true, true
		case "false", "no", "n", "0":
			return false, true
		}
		return raw, false
	case columnType == domain.ColumnTypeTimestamp:
		ts, err := domain.ParseTimestamp(raw)
		if err != nil {
			return raw, false
		}
		return ts, true
	case domain.IsContainerType(columnType):
		if items, ok := parseList(raw); ok {
			return items, true
		}
		parts := strings.Split(raw, ",")
		items := make([]any, 0, len(parts))
		for _, part := range parts {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if domain.IsAllNumericalTypes(columnType) {
				if f, err := strconv.ParseFloat(part, 64); err == nil {
					items = append(items, f)
					continue
				}
			}
			items = append(items, part)
		}
		return items, true
	default:
		return raw, true
	}
}
