package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

// fakeQuerier answers lookup queries from a canned value->ids table and
// records every query it receives.
type fakeQuerier struct {
	// matches maps a lookup value to the record ids returned for it.
	matches map[string][]string

	// lookupField names the column echoed back beside Id.
	lookupField string

	// failAll makes every query fail.
	failAll bool

	queries []string
}

func (q *fakeQuerier) Query(ctx context.Context, soql string) (QueryPage, error) {
	q.queries = append(q.queries, soql)
	if q.failAll {
		return QueryPage{}, errors.New("INVALID_FIELD: no such column")
	}

	page := QueryPage{Done: true}
	for value, ids := range q.matches {
		if !strings.Contains(soql, QuoteSOQL(value)) {
			continue
		}
		for _, id := range ids {
			page.Records = append(page.Records, Row{"Id": id, q.lookupField: value})
		}
	}
	return page, nil
}

func (q *fakeQuerier) QueryMore(ctx context.Context, locator string) (QueryPage, error) {
	return QueryPage{Done: true}, nil
}

func nameLookupMapping(policy LookupMatchPolicy, nullIfNoMatch bool) LoadMapping {
	return LoadMapping{
		"Account Name": {
			TargetField:       "AccountId",
			MappedToLookup:    true,
			SelectedReference: "Account",
			RelationshipName:  "Account",
			TargetLookupField: "Name",
			UseFirstMatch:     policy,
			NullIfNoMatch:     nullIfNoMatch,
		},
	}
}

// ----------------------------------------------------------------------------
// Resolve Tests
// ----------------------------------------------------------------------------

func TestResolveSingleMatch(t *testing.T) {
	querier := &fakeQuerier{
		matches:     map[string][]string{"Acme": {"001A"}},
		lookupField: "Name",
	}
	resolver := NewResolver(querier, 0)

	rows := []Row{{"Account Name": "Acme", "Email": "a@acme.test"}}
	result := resolver.Resolve(context.Background(), rows, nameLookupMapping(MatchErrorIfMultiple, false), "Contact", TransformOptions{Mode: ModeCollections}, nil)

	if len(result.RowErrors) != 0 {
		t.Fatalf("unexpected row errors: %v", result.RowErrors)
	}
	if len(result.Rows) != 1 {
		t.Fatalf("got %d rows, want 1", len(result.Rows))
	}
	if result.Rows[0]["AccountId"] != "001A" {
		t.Errorf("AccountId = %v, want 001A", result.Rows[0]["AccountId"])
	}
	if _, ok := result.Rows[0]["Account Name"]; ok {
		t.Errorf("source column must be removed after resolution: %v", result.Rows[0])
	}
	if result.Rows[0]["Email"] != "a@acme.test" {
		t.Errorf("unrelated columns must survive: %v", result.Rows[0])
	}
}

func TestResolveNoMatch(t *testing.T) {
	tests := []struct {
		name          string
		nullIfNoMatch bool
		wantRows      int
		wantErrors    int
	}{
		{name: "error excludes whole row", nullIfNoMatch: false, wantRows: 0, wantErrors: 1},
		{name: "null-if-no-match keeps row", nullIfNoMatch: true, wantRows: 1, wantErrors: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			querier := &fakeQuerier{matches: map[string][]string{}, lookupField: "Name"}
			resolver := NewResolver(querier, 0)

			rows := []Row{{"Account Name": "Ghost Corp"}}
			opts := TransformOptions{Mode: ModeCollections, InsertNulls: true}
			result := resolver.Resolve(context.Background(), rows, nameLookupMapping(MatchErrorIfMultiple, tt.nullIfNoMatch), "Contact", opts, nil)

			if len(result.Rows) != tt.wantRows {
				t.Fatalf("got %d rows, want %d", len(result.Rows), tt.wantRows)
			}
			if len(result.RowErrors) != tt.wantErrors {
				t.Fatalf("got %d row errors, want %d: %v", len(result.RowErrors), tt.wantErrors, result.RowErrors)
			}

			if tt.wantErrors == 1 {
				re := result.RowErrors[0]
				if re.Index != 0 {
					t.Errorf("row error index = %d, want 0", re.Index)
				}
				if len(re.Errors) == 0 || !strings.Contains(re.Errors[0], "Related record not found") {
					t.Errorf("row error = %v, want not-found message", re.Errors)
				}
			}
			if tt.wantRows == 1 {
				if v, ok := result.Rows[0]["AccountId"]; !ok || v != nil {
					t.Errorf("expected explicit nil AccountId, got %v (present=%v)", v, ok)
				}
			}
		})
	}
}

func TestResolveMultipleMatches(t *testing.T) {
	tests := []struct {
		name       string
		policy     LookupMatchPolicy
		wantRows   int
		wantErrors int
	}{
		{name: "first-match takes first id", policy: MatchFirst, wantRows: 1, wantErrors: 0},
		{name: "error-if-multiple excludes row", policy: MatchErrorIfMultiple, wantRows: 0, wantErrors: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			querier := &fakeQuerier{
				matches:     map[string][]string{"Acme": {"001A", "001B"}},
				lookupField: "Name",
			}
			resolver := NewResolver(querier, 0)

			rows := []Row{{"Account Name": "Acme"}}
			result := resolver.Resolve(context.Background(), rows, nameLookupMapping(tt.policy, false), "Contact", TransformOptions{Mode: ModeCollections}, nil)

			if len(result.Rows) != tt.wantRows || len(result.RowErrors) != tt.wantErrors {
				t.Fatalf("rows=%d errors=%d, want %d/%d", len(result.Rows), len(result.RowErrors), tt.wantRows, tt.wantErrors)
			}
			if tt.wantRows == 1 && result.Rows[0]["AccountId"] != "001A" {
				t.Errorf("AccountId = %v, want first match 001A", result.Rows[0]["AccountId"])
			}
			if tt.wantErrors == 1 && !strings.Contains(result.RowErrors[0].Errors[0], "Found 2 related records") {
				t.Errorf("error = %v, want multiple-match message", result.RowErrors[0].Errors)
			}
		})
	}
}

func TestResolveMixedRows(t *testing.T) {
	// Three rows: resolves, no match, resolves. The failing row is
	// excluded whole; survivors keep input order.
	querier := &fakeQuerier{
		matches:     map[string][]string{"Acme": {"001A"}, "Initech": {"001C"}},
		lookupField: "Name",
	}
	resolver := NewResolver(querier, 0)

	rows := []Row{
		{"Account Name": "Acme", "Email": "a@x.test"},
		{"Account Name": "Ghost Corp", "Email": "b@x.test"},
		{"Account Name": "Initech", "Email": "c@x.test"},
	}
	result := resolver.Resolve(context.Background(), rows, nameLookupMapping(MatchErrorIfMultiple, false), "Contact", TransformOptions{Mode: ModeCollections}, nil)

	if len(result.Rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(result.Rows))
	}
	if result.Rows[0]["Email"] != "a@x.test" || result.Rows[1]["Email"] != "c@x.test" {
		t.Errorf("survivors out of order: %v", result.Rows)
	}
	if len(result.RowErrors) != 1 || result.RowErrors[0].Index != 1 {
		t.Fatalf("row errors = %v, want single error at index 1", result.RowErrors)
	}

	// Input rows must not be mutated.
	if rows[1]["Account Name"] != "Ghost Corp" {
		t.Errorf("input row mutated: %v", rows[1])
	}
}

func TestResolveQueryChunkFailure(t *testing.T) {
	querier := &fakeQuerier{failAll: true, lookupField: "Name"}
	resolver := NewResolver(querier, 0)

	rows := []Row{{"Account Name": "Acme"}}
	result := resolver.Resolve(context.Background(), rows, nameLookupMapping(MatchErrorIfMultiple, false), "Contact", TransformOptions{Mode: ModeCollections}, nil)

	if len(result.QueryErrors) != 1 {
		t.Fatalf("query errors = %v, want 1", result.QueryErrors)
	}
	// With the index empty, the row behaves as a no-match.
	if len(result.RowErrors) != 1 {
		t.Errorf("expected the unmatched row to be excluded, got %v", result.RowErrors)
	}
}

func TestResolveChunksLargeValueSets(t *testing.T) {
	matches := make(map[string][]string)
	rows := make([]Row, 50)
	for i := range rows {
		name := fmt.Sprintf("Account-%04d", i)
		matches[name] = []string{fmt.Sprintf("001%04d", i)}
		rows[i] = Row{"Account Name": name}
	}

	querier := &fakeQuerier{matches: matches, lookupField: "Name"}
	// Budget small enough to force several chunks.
	resolver := NewResolver(querier, 300)

	result := resolver.Resolve(context.Background(), rows, nameLookupMapping(MatchErrorIfMultiple, false), "Contact", TransformOptions{Mode: ModeCollections}, nil)

	if len(querier.queries) < 2 {
		t.Fatalf("expected chunked queries, got %d", len(querier.queries))
	}
	for _, soql := range querier.queries {
		if len(soql) > 300 {
			t.Errorf("query exceeds budget: %d characters", len(soql))
		}
	}
	if len(result.Rows) != 50 || len(result.RowErrors) != 0 {
		t.Fatalf("rows=%d errors=%v, want all 50 resolved", len(result.Rows), result.RowErrors)
	}
}

func TestResolveScopeFilter(t *testing.T) {
	querier := &fakeQuerier{
		matches:     map[string][]string{"Partner": {"012A"}},
		lookupField: "Name",
	}
	resolver := NewResolver(querier, 0)

	mapping := LoadMapping{
		"Record Type": {
			TargetField:       "RecordTypeId",
			MappedToLookup:    true,
			SelectedReference: "RecordType",
			RelationshipName:  "RecordType",
			TargetLookupField: "Name",
			UseFirstMatch:     MatchErrorIfMultiple,
		},
	}
	rows := []Row{{"Record Type": "Partner"}}
	result := resolver.Resolve(context.Background(), rows, mapping, "Account", TransformOptions{Mode: ModeCollections}, nil)

	if len(querier.queries) != 1 {
		t.Fatalf("got %d queries, want 1", len(querier.queries))
	}
	if !strings.Contains(querier.queries[0], "AND SobjectType = 'Account'") {
		t.Errorf("record type query missing scope filter: %s", querier.queries[0])
	}
	if len(result.Rows) != 1 || result.Rows[0]["RecordTypeId"] != "012A" {
		t.Errorf("resolution failed: %v / %v", result.Rows, result.RowErrors)
	}
}

func TestResolveSkipsExternalIDAndUnmapped(t *testing.T) {
	querier := &fakeQuerier{lookupField: "Code__c"}
	resolver := NewResolver(querier, 0)

	mapping := LoadMapping{
		"Account Code": {
			TargetField:       "AccountId",
			MappedToLookup:    true,
			SelectedReference: "Account",
			RelationshipName:  "Account",
			TargetLookupField: "Code__c",
			Field:             &FieldDescriptor{Name: "Code__c", IsExternalID: true, ReferenceTo: []string{"Account"}},
		},
		"Plain": {TargetField: "Plain__c"},
	}
	rows := []Row{{"Account Code": "X-1", "Plain": "v"}}
	result := resolver.Resolve(context.Background(), rows, mapping, "Contact", TransformOptions{Mode: ModeCollections}, nil)

	if len(querier.queries) != 0 {
		t.Errorf("external-id lookups must not query, got %v", querier.queries)
	}
	if len(result.Rows) != 1 {
		t.Fatalf("rows = %v", result.Rows)
	}
}

func TestResolveProgressMonotone(t *testing.T) {
	matches := map[string][]string{"Acme": {"001A"}}
	querier := &fakeQuerier{matches: matches, lookupField: "Name"}
	resolver := NewResolver(querier, 0)

	var seen []int
	rows := []Row{{"Account Name": "Acme"}}
	resolver.Resolve(context.Background(), rows, nameLookupMapping(MatchErrorIfMultiple, false), "Contact", TransformOptions{}, func(pct int) {
		seen = append(seen, pct)
	})

	if len(seen) == 0 {
		t.Fatal("no progress reported")
	}
	for i := 1; i < len(seen); i++ {
		if seen[i] < seen[i-1] {
			t.Fatalf("progress went backwards: %v", seen)
		}
	}
	if seen[len(seen)-1] != 100 {
		t.Errorf("final progress = %d, want 100", seen[len(seen)-1])
	}
}
