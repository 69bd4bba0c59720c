package core

// materialize.go converts resolved record sets into downloadable
// payloads. CSV output quotes every field and always emits a header
// row; nested values flatten to dot-joined paths and arrays join with
// semicolons. Spreadsheets go through excelize, one sheet by default.
// JSON serializes the unflattened record set verbatim, pretty-printed.

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

// MIME types for the supported output formats.
const (
	mimeCSV  = "text/csv; charset=utf-8"
	mimeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	mimeJSON = "application/json; charset=utf-8"
)

// Sheet is one pre-grouped worksheet for multi-sheet export.
type Sheet struct {
	Name   string
	Fields []string
	Rows   []Row
}

// Materialize produces the download payload for a record set. fields
// fixes column order for the tabular formats; JSON ignores it and
// serializes rows verbatim.
func Materialize(rows []Row, fields []string, format FileFormat, baseName string) (*FileOutput, error) {
	switch format {
	case FormatCSV:
		data := writeCSV(rows, fields)
		return &FileOutput{Bytes: data, MIMEType: mimeCSV, FileName: suggestedFileName(baseName, "csv")}, nil

	case FormatXLSX:
		return MaterializeSheets([]Sheet{{Name: "Records", Fields: fields, Rows: rows}}, baseName)

	case FormatJSON:
		data, err := json.MarshalIndent(rows, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("encode json: %w", err)
		}
		return &FileOutput{Bytes: data, MIMEType: mimeJSON, FileName: suggestedFileName(baseName, "json")}, nil

	default:
		return nil, fmt.Errorf("unsupported file format: %s", format)
	}
}

// MaterializeSheets produces a spreadsheet with one worksheet per
// sheet, columns ordered by each sheet's Fields.
func MaterializeSheets(sheets []Sheet, baseName string) (*FileOutput, error) {
	f := excelize.NewFile()
	defer f.Close()

	for i, sheet := range sheets {
		name := sheet.Name
		if name == "" {
			name = fmt.Sprintf("Sheet%d", i+1)
		}
		if i == 0 {
			if err := f.SetSheetName("Sheet1", name); err != nil {
				return nil, fmt.Errorf("rename sheet: %w", err)
			}
		} else if _, err := f.NewSheet(name); err != nil {
			return nil, fmt.Errorf("add sheet %q: %w", name, err)
		}

		fields := sheet.Fields
		if len(fields) == 0 {
			fields = collectFields(sheet.Rows)
		}

		for col, field := range fields {
			cell, err := excelize.CoordinatesToCellName(col+1, 1)
			if err != nil {
				return nil, err
			}
			if err := f.SetCellValue(name, cell, field); err != nil {
				return nil, err
			}
		}

		for rowIdx, row := range sheet.Rows {
			flat := FlattenRow(row)
			for col, field := range fields {
				cell, err := excelize.CoordinatesToCellName(col+1, rowIdx+2)
				if err != nil {
					return nil, err
				}
				if err := f.SetCellValue(name, cell, flat[field]); err != nil {
					return nil, err
				}
			}
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("write spreadsheet: %w", err)
	}
	return &FileOutput{Bytes: buf.Bytes(), MIMEType: mimeXLSX, FileName: suggestedFileName(baseName, "xlsx")}, nil
}

// writeCSV renders rows as RFC 4180 CSV with every field quoted.
// encoding/csv only quotes when forced to, so quoting is done here.
func writeCSV(rows []Row, fields []string) []byte {
	if len(fields) == 0 {
		fields = collectFields(rows)
	}

	var buf bytes.Buffer
	writeCSVRecord(&buf, fields)

	cells := make([]string, len(fields))
	for _, row := range rows {
		flat := FlattenRow(row)
		for i, field := range fields {
			cells[i] = formatCell(flat[field])
		}
		writeCSVRecord(&buf, cells)
	}
	return buf.Bytes()
}

func writeCSVRecord(buf *bytes.Buffer, cells []string) {
	for i, cell := range cells {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteByte('"')
		buf.WriteString(strings.ReplaceAll(cell, `"`, `""`))
		buf.WriteByte('"')
	}
	buf.WriteString("\r\n")
}

// FlattenRow flattens nested reference objects into dot-joined column
// paths and arrays into semicolon-joined values, mirroring how nested
// records arrive from the query API.
func FlattenRow(row Row) Row {
	out := make(Row, len(row))
	flattenInto("", row, out)
	return out
}

func flattenInto(prefix string, v any, out Row) {
	switch t := v.(type) {
	case Row:
		for k, child := range t {
			flattenInto(joinPath(prefix, k), child, out)
		}
	case map[string]any:
		for k, child := range t {
			flattenInto(joinPath(prefix, k), child, out)
		}
	case []any:
		parts := make([]string, len(t))
		for i, child := range t {
			parts[i] = formatCell(child)
		}
		out[prefix] = strings.Join(parts, ";")
	default:
		out[prefix] = v
	}
}

func joinPath(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}

// formatCell renders a scalar for tabular output. nil becomes empty.
func formatCell(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(t, 10)
	case int:
		return strconv.Itoa(t)
	default:
		return fmt.Sprintf("%v", t)
	}
}

// collectFields derives a stable column set from the rows themselves,
// used when the caller supplies no explicit field order.
func collectFields(rows []Row) []string {
	seen := make(map[string]bool)
	var fields []string
	for _, row := range rows {
		for k := range FlattenRow(row) {
			if !seen[k] {
				seen[k] = true
				fields = append(fields, k)
			}
		}
	}
	sort.Strings(fields)
	return fields
}

// suggestedFileName stamps the base name so repeated downloads of the
// same job never collide.
func suggestedFileName(baseName, ext string) string {
	if baseName == "" {
		baseName = "records"
	}
	return fmt.Sprintf("%s-%s.%s", baseName, time.Now().Format("20060102-150405"), ext)
}
