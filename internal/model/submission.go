package model

import "time"

// Submission records one judged attempt at a problem.
type Submission struct {
	ID         string    `json:"id"`
	UserID     string    `json:"userId"`
	ProblemID  string    `json:"problemId"`
	Code       string    `json:"code"`
	Verdict    string    `json:"verdict"`
	Passed     int       `json:"passed"`
	Total      int       `json:"total"`
	DurationMs int64     `json:"durationMs"`
	CreatedAt  time.Time `json:"createdAt"`

	// Filled by listings that join the problem table.
	ProblemNumber int    `json:"problemNumber,omitempty"`
	ProblemTitle  string `json:"problemTitle,omitempty"`
}

// SolvedSummary splits the problems a user has touched into those with an
// accepted submission and those without one.
type SolvedSummary struct {
	Solved    []string `json:"solved"`
	Attempted []string `json:"attempted"`
}
