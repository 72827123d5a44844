package ingestion

import (
	"bytes"
	"context"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rpattn/resultgrid/internal/auth"
	"github.com/rpattn/resultgrid/internal/domain"
	"github.com/rpattn/resultgrid/internal/repository"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"
)

type stubResultSetRepo struct {
	repository.ResultSetRepository
	created []domain.ResultSet
	err     error
}

func (s *stubResultSetRepo) Create(ctx context.Context, rs domain.ResultSet) (domain.ResultSet, error) {
	if s.err != nil {
		return domain.ResultSet{}, s.err
	}
	s.created = append(s.created, rs)
	return rs, nil
}

const moviesCSV = `id,title,genre,score,released,tags,homepage
1,Heat,Action,8.3,1995-12-15,"[""heist"",""crime""]",https://example.com/heat
2,Clue,Comedy,7.2,1985-12-13,"[""mansion""]",https://example.com/clue
3,Alien,Action,8.5,1979-05-25,"[""space""]",https://example.com/alien
4,Fargo,Action,,1996-03-08,"[]",https://example.com/fargo
`

func columnTypes(rs domain.ResultSet) map[string]domain.ColumnType {
	types := map[string]domain.ColumnType{}
	for _, column := range rs.Columns {
		types[column.Name] = column.Type
	}
	return types
}

func TestServiceImportInfersColumnTypes(t *testing.T) {
	repo := &stubResultSetRepo{}
	service := NewService(repo, nil)
	workspace := uuid.New()

	summary, err := service.Import(context.Background(), Request{
		WorkspaceID: workspace,
		FileName:    "movies.csv",
		Data:        strings.NewReader(moviesCSV),
	})
	if err != nil {
		t.Fatalf("import returned error: %v", err)
	}
	if len(repo.created) != 1 {
		t.Fatalf("expected one stored result set, got %d", len(repo.created))
	}
	rs := repo.created[0]
	if rs.Name != "movies" {
		t.Fatalf("expected name derived from file, got %q", rs.Name)
	}
	if summary.TotalRows != 4 || summary.ResultSet.RowCount != 4 {
		t.Fatalf("unexpected summary: %+v", summary)
	}

	want := map[string]domain.ColumnType{
		"id":       domain.ColumnTypeID,
		"title":    domain.ColumnTypeText,
		"genre":    domain.ColumnTypeCategory,
		"score":    domain.ColumnTypeNumerical,
		"released": domain.ColumnTypeTimestamp,
		"tags":     domain.ColumnTypeSequenceText,
		"homepage": domain.ColumnTypeURL,
	}
	got := columnTypes(rs)
	for name, expected := range want {
		if got[name] != expected {
			t.Fatalf("column %s: expected %s, got %s", name, expected, got[name])
		}
	}

	first := rs.Rows[0]
	if first["score"] != 8.3 {
		t.Fatalf("expected numeric score, got %#v", first["score"])
	}
	if _, ok := first["released"].(time.Time); !ok {
		t.Fatalf("expected parsed timestamp, got %#v", first["released"])
	}
	tags, ok := first["tags"].([]any)
	if !ok || len(tags) != 2 || tags[0] != "heist" {
		t.Fatalf("expected tag list, got %#v", first["tags"])
	}
	if rs.Rows[3]["score"] != nil {
		t.Fatalf("expected empty cell to be nil, got %#v", rs.Rows[3]["score"])
	}

	var scoreReport ColumnReport
	for _, report := range summary.Columns {
		if report.Name == "score" {
			scoreReport = report
		}
	}
	if scoreReport.NullCount != 1 {
		t.Fatalf("expected one null score, got %+v", scoreReport)
	}
}

func TestServiceImportAppliesOverrides(t *testing.T) {
	repo := &stubResultSetRepo{}
	service := NewService(repo, nil)

	summary, err := service.Import(context.Background(), Request{
		WorkspaceID:     uuid.New(),
		Name:            "movies",
		FileName:        "movies.csv",
		ColumnOverrides: map[string]domain.ColumnType{"tags": domain.ColumnTypeSetCategory, "title": domain.ColumnTypeID},
		Data:            strings.NewReader(moviesCSV),
	})
	if err != nil {
		t.Fatalf("import returned error: %v", err)
	}

	got := columnTypes(repo.created[0])
	if got["tags"] != domain.ColumnTypeSetCategory || got["title"] != domain.ColumnTypeID {
		t.Fatalf("overrides not applied: %+v", got)
	}
	overridden := 0
	for _, report := range summary.Columns {
		if report.Overridden {
			overridden++
		}
	}
	if overridden != 2 {
		t.Fatalf("expected 2 overridden columns, got %d", overridden)
	}
}

func TestServiceImportNumericListsAndBinary(t *testing.T) {
	repo := &stubResultSetRepo{}
	service := NewService(repo, nil)

	data := "ratings,active,bucket\n\"[1,2.5]\",yes,0\n\"[3]\",no,1\n"
	if _, err := service.Import(context.Background(), Request{
		WorkspaceID: uuid.New(),
		FileName:    "ratings.csv",
		Data:        strings.NewReader(data),
	}); err != nil {
		t.Fatalf("import returned error: %v", err)
	}

	got := columnTypes(repo.created[0])
	if got["ratings"] != domain.ColumnTypeSequenceNumerical {
		t.Fatalf("expected numeric list, got %s", got["ratings"])
	}
	if got["active"] != domain.ColumnTypeBinary {
		t.Fatalf("expected binary, got %s", got["active"])
	}
	if got["bucket"] != domain.ColumnTypeNumerical {
		t.Fatalf("expected numerical, got %s", got["bucket"])
	}
	if repo.created[0].Rows[0]["active"] != true {
		t.Fatalf("expected boolean cell, got %#v", repo.created[0].Rows[0]["active"])
	}
}

func TestServiceImportExcel(t *testing.T) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	rows := [][]any{
		{"name", "amount"},
		{"alpha", 10},
		{"beta", 12.5},
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatalf("cell name: %v", err)
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			t.Fatalf("set row: %v", err)
		}
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("write workbook: %v", err)
	}

	repo := &stubResultSetRepo{}
	service := NewService(repo, nil)
	summary, err := service.Import(context.Background(), Request{
		WorkspaceID: uuid.New(),
		FileName:    "amounts.xlsx",
		Data:        bytes.NewReader(buf.Bytes()),
	})
	if err != nil {
		t.Fatalf("import returned error: %v", err)
	}
	if summary.TotalRows != 2 {
		t.Fatalf("expected 2 rows, got %d", summary.TotalRows)
	}
	if columnTypes(repo.created[0])["amount"] != domain.ColumnTypeNumerical {
		t.Fatalf("expected numerical amount column")
	}
	if repo.created[0].Rows[1]["amount"] != 12.5 {
		t.Fatalf("unexpected amount: %#v", repo.created[0].Rows[1]["amount"])
	}
}

func TestServiceImportRejectsUnsupportedFormat(t *testing.T) {
	service := NewService(&stubResultSetRepo{}, nil)
	_, err := service.Import(context.Background(), Request{
		WorkspaceID: uuid.New(),
		FileName:    "notes.txt",
		Data:        strings.NewReader("a,b\n1,2\n"),
	})
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestServiceImportRequiresWorkspace(t *testing.T) {
	service := NewService(&stubResultSetRepo{}, nil)
	if _, err := service.Import(context.Background(), Request{FileName: "a.csv", Data: strings.NewReader("a\n1\n")}); err == nil {
		t.Fatalf("expected error without workspace")
	}
}

func TestServicePreviewHonoursHeaderRow(t *testing.T) {
	service := NewService(&stubResultSetRepo{}, nil)
	data := "exported by console\nname,count\nalpha,1\nbeta,2\ngamma,3\n"
	header := 1

	result, err := service.Preview(context.Background(), PreviewRequest{
		FileName:       "export.csv",
		HeaderRowIndex: &header,
		Data:           strings.NewReader(data),
		Limit:          2,
	})
	if err != nil {
		t.Fatalf("preview returned error: %v", err)
	}
	if result.TotalRows != 3 || len(result.Rows) != 2 {
		t.Fatalf("unexpected preview size: total=%d rows=%d", result.TotalRows, len(result.Rows))
	}
	if len(result.Columns) != 2 || result.Columns[1].EffectiveType != domain.ColumnTypeNumerical {
		t.Fatalf("unexpected columns: %+v", result.Columns)
	}
	current := 0
	for _, candidate := range result.HeaderCandidates {
		if candidate.Current {
			current = candidate.Index
		}
	}
	if current != 1 {
		t.Fatalf("expected header candidate 1 to be current, got %d", current)
	}
}

func TestSanitizeHeadersDeduplicates(t *testing.T) {
	got := sanitizeHeaders([]string{"First Name", "first name", "", "a.b-c"})
	want := []string{"First_Name", "first_name", "column_3", "a_b_c"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("header %d: expected %q, got %q", i, want[i], got[i])
		}
	}
	dup := sanitizeHeaders([]string{"x", "x", "x"})
	if dup[1] != "x_2" || dup[2] != "x_3" {
		t.Fatalf("unexpected dedupe: %v", dup)
	}
}

func TestHTTPHandlerImport(t *testing.T) {
	repo := &stubResultSetRepo{}
	handler := NewHTTPHandler(NewService(repo, nil))

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", "movies.csv")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write([]byte(moviesCSV)); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	_ = writer.WriteField("workspaceId", uuid.New().String())
	_ = writer.WriteField("overrides", `{"genre":"settextcategory"}`)
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/results/import", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if columnTypes(repo.created[0])["genre"] != domain.ColumnTypeSetTextCategory {
		t.Fatalf("expected override to be parsed case-insensitively")
	}
}

func TestHTTPHandlerRejectsUnknownOverride(t *testing.T) {
	handler := NewHTTPHandler(NewService(&stubResultSetRepo{}, nil))

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, _ := writer.CreateFormFile("file", "movies.csv")
	_, _ = part.Write([]byte(moviesCSV))
	_ = writer.WriteField("workspaceId", uuid.New().String())
	_ = writer.WriteField("overrides", `{"genre":"Matrix"}`)
	_ = writer.Close()

	req := httptest.NewRequest(http.MethodPost, "/results/import", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

const refreshedMoviesCSV = `title,id,score,genre,released,tags,homepage,notes
Brick,5,7.4,Drama,2005-01-20,"[""noir""]",https://example.com/brick,rewatch
Heat,1,8.4,Action,1995-12-15,"[""heist""]",https://example.com/heat,
`

func importMovies(t *testing.T, repo repository.ResultSetRepository) (*Service, Summary) {
	t.Helper()
	service := NewService(repo, nil)
	summary, err := service.Import(context.Background(), Request{
		WorkspaceID: uuid.New(),
		FileName:    "movies.csv",
		Data:        strings.NewReader(moviesCSV),
	})
	if err != nil {
		t.Fatalf("import returned error: %v", err)
	}
	return service, summary
}

func TestServiceRefreshReplacesRows(t *testing.T) {
	repo := repository.NewMemoryResultSetRepository()
	service, imported := importMovies(t, repo)
	before, err := repo.GetByID(context.Background(), imported.ResultSet.ID)
	if err != nil {
		t.Fatalf("get returned error: %v", err)
	}

	summary, err := service.Refresh(context.Background(), RefreshRequest{
		ResultSetID: imported.ResultSet.ID,
		FileName:    "movies.csv",
		Data:        strings.NewReader(refreshedMoviesCSV),
	})
	if err != nil {
		t.Fatalf("refresh returned error: %v", err)
	}
	if summary.ResultSet.Version != 2 || summary.TotalRows != 2 {
		t.Fatalf("expected version 2 with 2 rows, got %+v", summary.ResultSet)
	}

	after, err := repo.GetByID(context.Background(), imported.ResultSet.ID)
	if err != nil {
		t.Fatalf("get returned error: %v", err)
	}
	if after.Version != 2 || len(after.Rows) != 2 {
		t.Fatalf("expected stored version 2 with 2 rows, got %d / %d", after.Version, len(after.Rows))
	}
	if after.Rows[0]["title"] != "Brick" || after.Rows[0]["score"] != 7.4 {
		t.Fatalf("unexpected first row: %v", after.Rows[0])
	}
	if _, ok := after.Rows[0]["notes"]; ok {
		t.Fatalf("expected columns unknown to the result set to be dropped")
	}
	for name, columnType := range columnTypes(before) {
		if columnTypes(after)[name] != columnType {
			t.Fatalf("column %s changed type from %s to %s", name, columnType, columnTypes(after)[name])
		}
	}
	if summary.Columns[0].Name != before.Columns[0].Name {
		t.Fatalf("expected reports in result set column order, got %+v", summary.Columns)
	}
}

func TestServiceRefreshRejects(t *testing.T) {
	repo := repository.NewMemoryResultSetRepository()
	service, imported := importMovies(t, repo)
	id := imported.ResultSet.ID

	_, err := service.Refresh(context.Background(), RefreshRequest{
		ResultSetID: id,
		FileName:    "movies.csv",
		Data:        strings.NewReader("id,title\n9,Up\n"),
	})
	if !errors.Is(err, ErrColumnMismatch) {
		t.Fatalf("expected ErrColumnMismatch, got %v", err)
	}

	otherWorkspace := auth.ContextWithWorkspaceID(context.Background(), uuid.New())
	_, err = service.Refresh(otherWorkspace, RefreshRequest{
		ResultSetID: id,
		FileName:    "movies.csv",
		Data:        strings.NewReader(refreshedMoviesCSV),
	})
	if !errors.Is(err, auth.ErrScopeMismatch) {
		t.Fatalf("expected ErrScopeMismatch, got %v", err)
	}

	_, err = service.Refresh(context.Background(), RefreshRequest{
		ResultSetID: uuid.New(),
		FileName:    "movies.csv",
		Data:        strings.NewReader(refreshedMoviesCSV),
	})
	if !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	stored, _ := repo.GetByID(context.Background(), id)
	if stored.Version != 1 {
		t.Fatalf("expected failed refreshes to leave version 1, got %d", stored.Version)
	}
}

type conflictingRepo struct {
	repository.ResultSetRepository
	existing domain.ResultSet
}

func (c *conflictingRepo) GetByID(ctx context.Context, id uuid.UUID) (domain.ResultSet, error) {
	return c.existing, nil
}

func (c *conflictingRepo) UpdateRows(ctx context.Context, rs domain.ResultSet) (domain.ResultSet, error) {
	return domain.ResultSet{}, repository.ErrVersionConflict
}

func refreshRequest(t *testing.T, id uuid.UUID, csv string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", "movies.csv")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	_, _ = part.Write([]byte(csv))
	_ = writer.Close()

	req := httptest.NewRequest(http.MethodPut, "/results/"+id.String()+"/rows", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func TestHTTPHandlerRefresh(t *testing.T) {
	repo := repository.NewMemoryResultSetRepository()
	service, imported := importMovies(t, repo)
	mux := http.NewServeMux()
	mux.Handle("PUT /results/{id}/rows", NewRefreshHandler(service))

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, refreshRequest(t, imported.ResultSet.ID, refreshedMoviesCSV))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, refreshRequest(t, uuid.New(), refreshedMoviesCSV))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, refreshRequest(t, imported.ResultSet.ID, "id,title\n9,Up\n"))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}

	existing, _ := repo.GetByID(context.Background(), imported.ResultSet.ID)
	conflicted := http.NewServeMux()
	conflicted.Handle("PUT /results/{id}/rows", NewRefreshHandler(NewService(&conflictingRepo{existing: existing}, nil)))
	rec = httptest.NewRecorder()
	conflicted.ServeHTTP(rec, refreshRequest(t, existing.ID, refreshedMoviesCSV))
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	NewRefreshHandler(service).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/results/x/rows", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}
