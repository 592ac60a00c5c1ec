// Package models defines data structures for similarity scoring jobs.
package models

// RowPair is one unit of work read from the input sheet.
type RowPair struct {
	// Index is the 1-based data row index (sheet row = Index + 1).
	Index int `json:"index"`
	// Reference is the raw reference cell text.
	Reference string `json:"reference"`
	// Candidate is the raw candidate cell text.
	Candidate string `json:"candidate"`
	// CandidatePresent is false when the candidate cell is empty.
	CandidatePresent bool `json:"candidate_present"`
}

// SheetRow returns the 1-based sheet row the pair was read from.
func (p RowPair) SheetRow() int {
	return p.Index + 1
}
