package core

// transform.go converts rows of user-supplied field values into the wire
// shape required by the target write API. Unmapped columns are dropped,
// empty values follow mode-dependent null rules, and external-id lookups
// are rewritten into nested relationship references.
//
// Transformation is pure: no I/O, and a malformed value never fails a
// row here; it is coerced best-effort and left for the remote API to
// reject at submission time.

import (
	"fmt"
	"strconv"
	"strings"
)

// TransformOptions controls null handling and value coercion.
type TransformOptions struct {
	// Mode selects the write path; bulk-file and collection APIs have
	// different omission-vs-null semantics.
	Mode SubmissionMode

	// InsertNulls emits an explicit null representation for empty
	// values. When false the field is omitted entirely, so the server
	// leaves its current value untouched.
	InsertNulls bool

	// DateOrder resolves ambiguous numeric dates (DateOrderMDY or
	// DateOrderDMY).
	DateOrder string
}

// TransformRows maps each input row through the field mapping, producing
// records ready for submission. Only columns with a non-empty target
// field are emitted.
func TransformRows(rows []Row, mapping LoadMapping, targetObject string, opts TransformOptions) []Row {
	out := make([]Row, 0, len(rows))
	for _, row := range rows {
		out = append(out, transformRow(row, mapping, opts))
	}
	return out
}

func transformRow(row Row, mapping LoadMapping, opts TransformOptions) Row {
	rec := make(Row)
	for col, fm := range mapping {
		if fm.TargetField == "" {
			continue
		}

		// Query-resolved lookups arrive keyed by their target field:
		// the resolver has already replaced the source value with a
		// record id, which passes through untouched.
		src := col
		if resolvesByQuery(fm) {
			src = fm.TargetField
		}

		val, present := row[src]
		if !present || isEmptyValue(val) {
			writeNullValue(rec, fm.TargetField, opts)
			continue
		}

		coerced := CoerceValue(val, fm.Field, opts.DateOrder)

		// External-id lookups resolve inline as a nested relationship
		// reference; no query is needed because the platform matches on
		// the external identifier itself.
		if fm.MappedToLookup && fm.RelationshipName != "" && fm.Field != nil && fm.Field.IsExternalID {
			ref := Row{fm.TargetLookupField: coerced}
			if len(fm.Field.ReferenceTo) > 1 && fm.SelectedReference != "" {
				ref["type"] = fm.SelectedReference
			}
			rec[fm.RelationshipName] = ref
			continue
		}

		rec[fm.TargetField] = coerced
	}
	return rec
}

// writeNullValue applies the mode-dependent null rule for an empty
// source value. In bulk-file mode the API clears a field only when the
// documented sentinel is submitted; in collections mode only when an
// explicit null is submitted. In both modes, omission leaves the field
// untouched server-side.
func writeNullValue(rec Row, field string, opts TransformOptions) {
	if !opts.InsertNulls {
		delete(rec, field)
		return
	}
	switch opts.Mode {
	case ModeBulkFile:
		rec[field] = BulkNullSentinel
	default:
		rec[field] = nil
	}
}

// isEmptyValue reports whether a source value counts as empty for null
// handling: nil, or a string that is blank after artifact cleanup.
func isEmptyValue(v any) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(CleanCell(s)) == ""
	}
	return false
}

// scalarKey renders a value as the canonical string used to index
// lookup matches. Floats drop a trailing ".0" so "42", 42 and 42.0 all
// index identically.
func scalarKey(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return CleanCell(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprintf("%v", t)
	}
}
