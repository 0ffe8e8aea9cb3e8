// Package model defines the data structures used throughout the application.
package model

import "time"

// Problem is one entry of the problem catalog.
//
// TestCases are the hidden cases a submission is judged against. They are
// stored as a JSON column and never listed publicly; GetByID for admins and
// the judge service are the only readers.
type Problem struct {
	ID          string     `json:"id"`
	Number      int        `json:"number"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Difficulty  string     `json:"difficulty"`
	Tags        []string   `json:"tags"`
	Source      string     `json:"source,omitempty"`
	TestCases   []TestCase `json:"testCases,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// TestCase is an input and the output the program must print for it.
type TestCase struct {
	Input  string `json:"input"`
	Output string `json:"output"`
}

// Public returns a copy without the hidden test cases.
func (p Problem) Public() Problem {
	p.TestCases = nil
	return p
}
