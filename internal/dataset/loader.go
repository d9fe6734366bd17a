// internal/dataset/loader.go
package dataset

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	apperrors "github.com/victor045/Agente-financiero/internal/common/errors"
	"github.com/victor045/Agente-financiero/internal/common/logger"
)

// Sentinel errors for source loading failures
var (
	ErrFileNotFound = errors.New("LOAD_FILE_NOT_FOUND")
	ErrParse        = errors.New("LOAD_PARSE_ERROR")
	ErrEmpty        = errors.New("LOAD_EMPTY")
)

// Loader discovers and loads tabular sources from a data directory.
// Supported formats: .xlsx, .csv, .json (array of flat objects).
type Loader struct {
	dir        string
	extensions map[string]bool
	log        logger.Logger
}

// NewLoader creates a loader rooted at dir accepting the given extensions.
func NewLoader(dir string, extensions []string, log logger.Logger) *Loader {
	exts := make(map[string]bool, len(extensions))
	for _, e := range extensions {
		exts[strings.ToLower(e)] = true
	}
	return &Loader{dir: dir, extensions: exts, log: log}
}

// Catalog scans the data directory and returns schema descriptions for every
// loadable source, sorted by ID. Sources that fail to load are logged and
// skipped rather than failing the whole catalog.
func (l *Loader) Catalog(ctx context.Context) ([]SourceInfo, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, fmt.Errorf("reading data directory %s: %w", l.dir, err)
	}

	var infos []SourceInfo
	for _, entry := range entries {
		if entry.IsDir() || !l.extensions[strings.ToLower(filepath.Ext(entry.Name()))] {
			continue
		}
		table, err := l.Load(ctx, entry.Name())
		if err != nil {
			l.log.Warn("Skipping unreadable source", map[string]interface{}{
				"source": entry.Name(),
				"error":  err.Error(),
			})
			continue
		}
		infos = append(infos, SourceInfo{
			ID:       table.SourceID,
			Columns:  table.Columns,
			RowCount: len(table.Rows),
			Tags:     detectTags(table.Columns),
		})
	}

	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos, nil
}

// Load reads one source by ID (its file name within the data directory) and
// returns the normalized table.
func (l *Loader) Load(ctx context.Context, sourceID string) (*Table, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path := filepath.Join(l.dir, filepath.Base(sourceID))
	if _, err := os.Stat(path); err != nil {
		return nil, apperrors.NewFileNotFoundError(sourceID).WithCause(ErrFileNotFound)
	}

	var (
		headers []string
		rows    [][]string
		objects []map[string]interface{}
		err     error
	)

	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		headers, rows, err = readXLSX(path)
	case ".csv":
		headers, rows, err = readCSV(path)
	case ".json":
		objects, err = readJSON(path)
	default:
		return nil, apperrors.NewParseError(sourceID, fmt.Errorf("unsupported extension %s", filepath.Ext(path))).WithCause(ErrParse)
	}
	if err != nil {
		return nil, apperrors.NewParseError(sourceID, err).WithCause(ErrParse)
	}

	var table *Table
	if objects != nil {
		table = tableFromObjects(sourceID, objects)
	} else {
		table = tableFromRows(sourceID, headers, rows)
	}

	if len(table.Rows) == 0 {
		return nil, apperrors.NewEmptySourceError(sourceID).WithCause(ErrEmpty)
	}

	l.log.Debug("Loaded source", map[string]interface{}{
		"source":  sourceID,
		"rows":    len(table.Rows),
		"columns": table.Columns,
	})
	return table, nil
}

func readXLSX(path string) ([]string, [][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil, errors.New("workbook has no sheets")
	}
	all, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, nil, err
	}
	if len(all) == 0 {
		return nil, nil, nil
	}
	return all[0], all[1:], nil
}

func readCSV(path string) ([]string, [][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	all, err := r.ReadAll()
	if err != nil {
		return nil, nil, err
	}
	if len(all) == 0 {
		return nil, nil, nil
	}
	return all[0], all[1:], nil
}

func readJSON(path string) ([]map[string]interface{}, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var objects []map[string]interface{}
	if err := json.Unmarshal(data, &objects); err != nil {
		return nil, err
	}
	return objects, nil
}

func tableFromRows(sourceID string, headers []string, raw [][]string) *Table {
	columns := make([]string, len(headers))
	for i, h := range headers {
		columns[i] = NormalizeColumn(h)
	}

	table := &Table{SourceID: sourceID, Columns: columns}
	for _, cells := range raw {
		if isBlankRow(cells) {
			continue
		}
		row := make(Row, len(columns))
		for i, col := range columns {
			if i < len(cells) {
				row[col] = parseCell(cells[i])
			}
		}
		table.Rows = append(table.Rows, row)
	}
	return table
}

func tableFromObjects(sourceID string, objects []map[string]interface{}) *Table {
	seen := make(map[string]bool)
	var columns []string
	for _, obj := range objects {
		keys := make([]string, 0, len(obj))
		for k := range obj {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			col := NormalizeColumn(k)
			if !seen[col] {
				seen[col] = true
				columns = append(columns, col)
			}
		}
	}

	table := &Table{SourceID: sourceID, Columns: columns}
	for _, obj := range objects {
		row := make(Row, len(obj))
		for k, v := range obj {
			col := NormalizeColumn(k)
			switch tv := v.(type) {
			case float64:
				row[col] = NumberValue(decimal.NewFromFloat(tv))
			case string:
				row[col] = parseCell(tv)
			case bool:
				row[col] = StringValue(fmt.Sprintf("%t", tv))
			case nil:
				// missing cell
			default:
				row[col] = StringValue(fmt.Sprintf("%v", tv))
			}
		}
		if len(row) > 0 {
			table.Rows = append(table.Rows, row)
		}
	}
	return table
}

func isBlankRow(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"02/01/2006",
	"01-02-06",
	"1/2/06 15:04",
	time.RFC3339,
}

// parseCell types a raw cell: number first (currency symbols and thousands
// separators stripped), then date, then plain string.
func parseCell(raw string) Value {
	s := strings.TrimSpace(raw)
	if s == "" {
		return StringValue("")
	}

	numeric := strings.NewReplacer("$", "", ",", "", "MXN", "", " ", "").Replace(s)
	if numeric != "" {
		if d, err := decimal.NewFromString(numeric); err == nil {
			return NumberValue(d)
		}
	}

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return DateValue(t)
		}
	}
	return StringValue(s)
}
