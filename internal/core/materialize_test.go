package core

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"
)

// ----------------------------------------------------------------------------
// Materialize Tests
// ----------------------------------------------------------------------------

func TestMaterializeCSV(t *testing.T) {
	rows := []Row{
		{"Name": `Quote "Master"`, "Amount": 1200.5, "Active": true},
		{"Name": "Plain", "Amount": nil, "Active": false},
	}
	fields := []string{"Name", "Amount", "Active"}

	file, err := Materialize(rows, fields, FormatCSV, "accounts")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(file.MIMEType, "text/csv") {
		t.Errorf("mime = %q", file.MIMEType)
	}
	if !strings.HasPrefix(file.FileName, "accounts-") || !strings.HasSuffix(file.FileName, ".csv") {
		t.Errorf("file name = %q", file.FileName)
	}

	lines := strings.Split(strings.TrimRight(string(file.Bytes), "\r\n"), "\r\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want header plus 2 rows:\n%s", len(lines), file.Bytes)
	}
	if lines[0] != `"Name","Amount","Active"` {
		t.Errorf("header = %s", lines[0])
	}
	// Every field quoted; embedded quotes doubled; nil rendered empty.
	if lines[1] != `"Quote ""Master""","1200.5","true"` {
		t.Errorf("row 1 = %s", lines[1])
	}
	if lines[2] != `"Plain","","false"` {
		t.Errorf("row 2 = %s", lines[2])
	}
}

func TestMaterializeCSVNestedAndArrays(t *testing.T) {
	rows := []Row{
		{
			"Name":    "Ada",
			"Account": Row{"Name": "Acme", "Owner": Row{"Alias": "jd"}},
			"Tags":    []any{"a", "b", "c"},
		},
	}

	file, err := Materialize(rows, nil, FormatCSV, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	lines := strings.Split(strings.TrimRight(string(file.Bytes), "\r\n"), "\r\n")
	// Derived fields are sorted.
	if lines[0] != `"Account.Name","Account.Owner.Alias","Name","Tags"` {
		t.Errorf("header = %s", lines[0])
	}
	if lines[1] != `"Acme","jd","Ada","a;b;c"` {
		t.Errorf("row = %s", lines[1])
	}
}

func TestMaterializeJSON(t *testing.T) {
	rows := []Row{{"Name": "Acme", "Amount": 12.0}}

	file, err := Materialize(rows, nil, FormatJSON, "export")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(file.MIMEType, "application/json") {
		t.Errorf("mime = %q", file.MIMEType)
	}

	var decoded []map[string]any
	if err := json.Unmarshal(file.Bytes, &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if len(decoded) != 1 || decoded[0]["Name"] != "Acme" {
		t.Errorf("decoded = %v", decoded)
	}
}

func TestMaterializeXLSX(t *testing.T) {
	rows := []Row{
		{"Name": "Acme", "Amount": 1200.5},
		{"Name": "Initech", "Amount": 7.25},
	}
	fields := []string{"Name", "Amount"}

	file, err := Materialize(rows, fields, FormatXLSX, "export")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	f, err := excelize.OpenReader(bytes.NewReader(file.Bytes))
	if err != nil {
		t.Fatalf("output is not a readable spreadsheet: %v", err)
	}
	defer f.Close()

	got, err := f.GetRows("Records")
	if err != nil {
		t.Fatalf("read sheet: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d sheet rows, want 3", len(got))
	}
	if got[0][0] != "Name" || got[0][1] != "Amount" {
		t.Errorf("header row = %v", got[0])
	}
	if got[1][0] != "Acme" || got[2][0] != "Initech" {
		t.Errorf("data rows = %v %v", got[1], got[2])
	}
}

func TestMaterializeSheetsMultiple(t *testing.T) {
	file, err := MaterializeSheets([]Sheet{
		{Name: "Succeeded", Fields: []string{"Id"}, Rows: []Row{{"Id": "1"}}},
		{Name: "Failed", Fields: []string{"Id", "Error"}, Rows: []Row{{"Id": "2", "Error": "boom"}}},
	}, "results")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	f, err := excelize.OpenReader(bytes.NewReader(file.Bytes))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) != 2 || sheets[0] != "Succeeded" || sheets[1] != "Failed" {
		t.Errorf("sheets = %v", sheets)
	}
}

func TestMaterializeUnsupportedFormat(t *testing.T) {
	if _, err := Materialize(nil, nil, "pdf", "x"); err == nil {
		t.Error("expected an unsupported-format error")
	}
}

// ----------------------------------------------------------------------------
// FlattenRow Tests
// ----------------------------------------------------------------------------

func TestFlattenRow(t *testing.T) {
	row := Row{
		"Id": "1",
		"Account": map[string]any{
			"Name": "Acme",
		},
		"Scores": []any{1, 2},
	}

	flat := FlattenRow(row)

	if flat["Id"] != "1" {
		t.Errorf("Id = %v", flat["Id"])
	}
	if flat["Account.Name"] != "Acme" {
		t.Errorf("Account.Name = %v", flat["Account.Name"])
	}
	if flat["Scores"] != "1;2" {
		t.Errorf("Scores = %v", flat["Scores"])
	}
}
