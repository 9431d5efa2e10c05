// Package results reads and writes SPARQL 1.1 query results: the JSON format
// exchanged with remote endpoints and the TSV format used for diagnostic
// exports.
package results
