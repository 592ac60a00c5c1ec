package models

// ScoreRecord is the durable output unit of a scored row.
type ScoreRecord struct {
	// Row is the 1-based data row index the score belongs to.
	Row int `json:"row"`
	// Similarity is the cosine similarity in [-1, 1].
	Similarity float64 `json:"similarity"`
	// Reference is the trimmed reference text that was scored.
	Reference string `json:"reference"`
	// Candidate is the trimmed candidate text that was scored.
	Candidate string `json:"candidate"`
}

// RowFailure describes a row that was skipped because scoring failed.
type RowFailure struct {
	// Row is the 1-based data row index.
	Row int `json:"row"`
	// Error is the failure message.
	Error string `json:"error"`
}
