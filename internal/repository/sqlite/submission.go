package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/cjudge/internal/apperror"
	"github.com/sakif/cjudge/internal/model"
	"github.com/sakif/cjudge/internal/repository"
)

var _ repository.SubmissionRepository = (*DB)(nil)

// CreateSubmission records a judged submission.
func (db *DB) CreateSubmission(ctx context.Context, sub *model.Submission) error {
	sub.ID = xid.New().String()
	sub.CreatedAt = time.Now()

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO submissions
		   (id, user_id, problem_id, code, verdict, passed, total, duration_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sub.ID, sub.UserID, sub.ProblemID, sub.Code, sub.Verdict,
		sub.Passed, sub.Total, sub.DurationMs, sub.CreatedAt,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return apperror.ValidationFailed("problemId", "unknown user or problem")
		}
		return fmt.Errorf("sqlite: creating submission: %w", err)
	}
	return nil
}

// ListSubmissionsByUser returns the user's submissions, newest first, with
// the problem number and title joined in.
func (db *DB) ListSubmissionsByUser(ctx context.Context, userID string, opts repository.ListOptions) ([]model.Submission, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}
	offset := max(opts.Offset, 0)

	rows, err := db.conn.QueryContext(ctx,
		`SELECT s.id, s.user_id, s.problem_id, s.code, s.verdict, s.passed, s.total,
		        s.duration_ms, s.created_at, p.number, p.title
		 FROM submissions s
		 JOIN problems p ON p.id = s.problem_id
		 WHERE s.user_id = ?
		 ORDER BY s.created_at DESC, s.id DESC
		 LIMIT ? OFFSET ?`,
		userID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing submissions of %s: %w", userID, err)
	}
	defer rows.Close()

	subs := make([]model.Submission, 0)
	for rows.Next() {
		var s model.Submission
		if err := rows.Scan(
			&s.ID, &s.UserID, &s.ProblemID, &s.Code, &s.Verdict, &s.Passed, &s.Total,
			&s.DurationMs, &s.CreatedAt, &s.ProblemNumber, &s.ProblemTitle,
		); err != nil {
			return nil, fmt.Errorf("sqlite: scanning submission row: %w", err)
		}
		subs = append(subs, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating submissions: %w", err)
	}
	return subs, nil
}

// ProblemIDsByUser splits the problems a user has submitted to into solved
// (at least one accepted submission) and attempted (none accepted).
func (db *DB) ProblemIDsByUser(ctx context.Context, userID string) (*model.SolvedSummary, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT problem_id, MAX(verdict = 'accepted')
		 FROM submissions
		 WHERE user_id = ?
		 GROUP BY problem_id
		 ORDER BY MIN(created_at), problem_id`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: summarising submissions of %s: %w", userID, err)
	}
	defer rows.Close()

	summary := &model.SolvedSummary{Solved: []string{}, Attempted: []string{}}
	for rows.Next() {
		var (
			id     string
			solved bool
		)
		if err := rows.Scan(&id, &solved); err != nil {
			return nil, fmt.Errorf("sqlite: scanning summary row: %w", err)
		}
		if solved {
			summary.Solved = append(summary.Solved, id)
		} else {
			summary.Attempted = append(summary.Attempted, id)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating summary: %w", err)
	}
	return summary, nil
}
