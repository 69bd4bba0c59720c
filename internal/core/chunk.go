package core

// chunk.go sizes sub-batches to respect remote API limits: a character
// budget for composed query text and a record count limit for
// collection writes.

import "strings"

// DefaultQueryBudget is the maximum character length of one composed
// lookup query. Tied to the remote API's request limits; configurable.
var DefaultQueryBudget = 16000

// DefaultChunkSize is the maximum record count per collection write or
// delete call.
var DefaultChunkSize = 200

// QuoteSOQL escapes a value for inclusion in a single-quoted SOQL
// string literal.
func QuoteSOQL(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `'`, `\'`)
	return "'" + s + "'"
}

// ChunkValuesByBudget splits values into greedy chunks such that
// baseLen plus the comma-joined quoted values never exceeds budget.
// Accumulates until the next value would overflow, then starts a new
// chunk. A single value longer than the budget still gets its own
// chunk so it is never silently dropped.
func ChunkValuesByBudget(values []string, baseLen, budget int) [][]string {
	var chunks [][]string
	var current []string
	length := baseLen

	for _, v := range values {
		cost := len(QuoteSOQL(v))
		if len(current) > 0 {
			cost++ // separating comma
		}
		if len(current) > 0 && length+cost > budget {
			chunks = append(chunks, current)
			current = nil
			length = baseLen
			cost = len(QuoteSOQL(v))
		}
		current = append(current, v)
		length += cost
	}
	if len(current) > 0 {
		chunks = append(chunks, current)
	}
	return chunks
}

// chunkStrings splits ids into fixed-size chunks.
func chunkStrings(ids []string, size int) [][]string {
	if size <= 0 {
		size = DefaultChunkSize
	}
	var chunks [][]string
	for len(ids) > size {
		chunks = append(chunks, ids[:size])
		ids = ids[size:]
	}
	if len(ids) > 0 {
		chunks = append(chunks, ids)
	}
	return chunks
}

// chunkRows splits rows into fixed-size chunks.
func chunkRows(rows []Row, size int) [][]Row {
	if size <= 0 {
		size = DefaultChunkSize
	}
	var chunks [][]Row
	for len(rows) > size {
		chunks = append(chunks, rows[:size])
		rows = rows[size:]
	}
	if len(rows) > 0 {
		chunks = append(chunks, rows)
	}
	return chunks
}
