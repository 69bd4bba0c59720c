package core

// resolve.go rewrites rows whose lookup columns hold values that are
// not stable external identifiers. For each such mapping it queries the
// target type for all distinct source values (chunked under a query
// length budget), builds a value -> matching-ids index, then writes the
// resolved identifier into each row.
//
// Rows that cannot be resolved are excluded from the output set whole,
// never patched in place; their original index and reasons are reported
// in RowErrors. Query chunk failures are reported in QueryErrors without
// aborting resolution of the remaining chunks.

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// queryScopeFilters names target types whose lookup queries need an
// additional equality filter scoping results to the base object. The
// filter is a format string receiving the quoted base object name.
var queryScopeFilters = map[string]string{
	"RecordType": "SobjectType = %s",
}

// ResolveResult is the outcome of related-record resolution.
type ResolveResult struct {
	// Rows are the resolved rows, in input order, with every failed
	// row removed.
	Rows []Row

	// RowErrors lists excluded rows by original input position.
	RowErrors []RowError

	// QueryErrors collects per-chunk query failures. A chunk failure
	// leaves its values unmatched but does not stop other chunks.
	QueryErrors []string
}

// Resolver resolves non-external-id lookups through batched queries.
type Resolver struct {
	querier     Querier
	queryBudget int
}

// NewResolver returns a resolver using the given querier. queryBudget
// caps the character length of one composed query; zero applies
// DefaultQueryBudget.
func NewResolver(querier Querier, queryBudget int) *Resolver {
	if queryBudget <= 0 {
		queryBudget = DefaultQueryBudget
	}
	return &Resolver{querier: querier, queryBudget: queryBudget}
}

// Resolve processes every lookup mapping that requires a query and
// rewrites rows with resolved target identifiers. onProgress, if
// non-nil, receives monotonically increasing 0-100 values divided
// proportionally across the mappings needing resolution.
func (r *Resolver) Resolve(ctx context.Context, rows []Row, mapping LoadMapping, targetObject string, opts TransformOptions, onProgress ProgressFunc) ResolveResult {
	result := ResolveResult{}

	cols := lookupColumns(mapping)
	if len(cols) == 0 {
		result.Rows = rows
		if onProgress != nil {
			onProgress(100)
		}
		return result
	}

	// Per-column match indexes, built up front so row evaluation is a
	// single pass afterwards.
	indexes := make(map[string]map[string][]string, len(cols))
	for i, col := range cols {
		fm := mapping[col]
		index, errs := r.buildIndex(ctx, rows, col, fm, targetObject, func(pct int) {
			if onProgress != nil {
				onProgress((i*100 + pct) / len(cols))
			}
		})
		indexes[col] = index
		result.QueryErrors = append(result.QueryErrors, errs...)
	}

	for i, row := range rows {
		resolved, errs := resolveRow(row, cols, mapping, indexes, opts)
		if len(errs) > 0 {
			result.RowErrors = append(result.RowErrors, RowError{Index: i, Row: row, Errors: errs})
			continue
		}
		result.Rows = append(result.Rows, resolved)
	}

	if onProgress != nil {
		onProgress(100)
	}
	return result
}

// resolvesByQuery reports whether a mapping's lookup values must be
// matched through queries. External-id lookups are excluded; the
// transformer rewrites those inline as nested references.
func resolvesByQuery(fm FieldMapping) bool {
	if !fm.MappedToLookup || fm.TargetField == "" {
		return false
	}
	return fm.Field == nil || !fm.Field.IsExternalID
}

// lookupColumns returns the source columns needing query-based
// resolution, in a fixed (sorted) order so progress accounting and
// query issue order are deterministic.
func lookupColumns(mapping LoadMapping) []string {
	var cols []string
	for col, fm := range mapping {
		if resolvesByQuery(fm) {
			cols = append(cols, col)
		}
	}
	sort.Strings(cols)
	return cols
}

// buildIndex queries the lookup target for every distinct non-empty
// value of col and returns lookup-value -> matching record ids.
func (r *Resolver) buildIndex(ctx context.Context, rows []Row, col string, fm FieldMapping, targetObject string, onProgress ProgressFunc) (map[string][]string, []string) {
	index := make(map[string][]string)
	var queryErrors []string

	values := distinctValues(rows, col)
	if len(values) == 0 {
		if onProgress != nil {
			onProgress(100)
		}
		return index, nil
	}

	base := fmt.Sprintf("SELECT Id, %s FROM %s WHERE %s IN ()",
		fm.TargetLookupField, fm.SelectedReference, fm.TargetLookupField)
	scope := ""
	if f, ok := queryScopeFilters[fm.SelectedReference]; ok {
		scope = " AND " + fmt.Sprintf(f, QuoteSOQL(targetObject))
	}

	chunks := ChunkValuesByBudget(values, len(base)+len(scope), r.queryBudget)
	for i, chunk := range chunks {
		soql := composeLookupQuery(fm, chunk, scope)
		page, err := r.querier.Query(ctx, soql)
		if err != nil {
			queryErrors = append(queryErrors, fmt.Sprintf("lookup query for %s (%s): %v", col, fm.SelectedReference, err))
		} else {
			for _, rec := range page.Records {
				key := scalarKey(rec[fm.TargetLookupField])
				index[key] = append(index[key], scalarKey(rec["Id"]))
			}
		}
		if onProgress != nil {
			onProgress((i + 1) * 100 / len(chunks))
		}
	}

	return index, queryErrors
}

func composeLookupQuery(fm FieldMapping, values []string, scope string) string {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = QuoteSOQL(v)
	}
	soql := fmt.Sprintf("SELECT Id, %s FROM %s WHERE %s IN (%s)",
		fm.TargetLookupField, fm.SelectedReference, fm.TargetLookupField, strings.Join(quoted, ","))
	return soql + scope
}

// distinctValues collects the distinct non-empty values of col across
// all rows, preserving first-seen order.
func distinctValues(rows []Row, col string) []string {
	seen := make(map[string]bool)
	var values []string
	for _, row := range rows {
		v, ok := row[col]
		if !ok || isEmptyValue(v) {
			continue
		}
		key := scalarKey(v)
		if !seen[key] {
			seen[key] = true
			values = append(values, key)
		}
	}
	return values
}

// resolveRow evaluates every lookup column of one row against the
// prebuilt indexes. The input row is never mutated: a clone receives
// the writes, and the clone is discarded when any error is recorded.
func resolveRow(row Row, cols []string, mapping LoadMapping, indexes map[string]map[string][]string, opts TransformOptions) (Row, []string) {
	out := row.Clone()
	var errs []string

	for _, col := range cols {
		fm := mapping[col]
		v, ok := row[col]
		if col != fm.TargetField {
			delete(out, col)
		}
		if !ok || isEmptyValue(v) {
			continue
		}

		ids := indexes[col][scalarKey(v)]
		switch {
		case len(ids) == 0:
			if fm.NullIfNoMatch {
				writeNullValue(out, fm.TargetField, opts)
			} else {
				errs = append(errs, fmt.Sprintf("Related record not found for %s = %q on %s", fm.TargetLookupField, scalarKey(v), fm.SelectedReference))
			}
		case len(ids) == 1:
			out[fm.TargetField] = ids[0]
		default:
			if fm.UseFirstMatch == MatchFirst {
				out[fm.TargetField] = ids[0]
			} else {
				errs = append(errs, fmt.Sprintf("Found %d related records for %s = %q on %s", len(ids), fm.TargetLookupField, scalarKey(v), fm.SelectedReference))
			}
		}
	}

	return out, errs
}
