package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/cjudge/internal/apperror"
	"github.com/sakif/cjudge/internal/model"
	"github.com/sakif/cjudge/internal/repository"
)

// COMPILE-TIME INTERFACE CHECK:
// `var _ X = (*Y)(nil)` fails to compile if *Y stops implementing X, so a
// missing method shows up here rather than at the first call site.
var _ repository.ProblemRepository = (*DB)(nil)

const problemColumns = `id, number, title, description, difficulty, tags, source, test_cases, created_at, updated_at`

// Create inserts a new problem. A zero Number is replaced by the next free
// number in the catalog.
//
// JSON COLUMNS:
// Tags and test cases are small, always read together with the problem and
// never queried individually, so they are stored as JSON text rather than in
// child tables.
func (db *DB) Create(ctx context.Context, p *model.Problem) error {
	p.ID = xid.New().String()
	now := time.Now()
	p.CreatedAt = now
	p.UpdatedAt = now

	if p.Number == 0 {
		next, err := db.nextProblemNumber(ctx)
		if err != nil {
			return err
		}
		p.Number = next
	}

	tags, cases, err := encodeProblemJSON(p)
	if err != nil {
		return err
	}

	_, err = db.conn.ExecContext(ctx,
		`INSERT INTO problems (`+problemColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Number, p.Title, p.Description, p.Difficulty,
		tags, p.Source, cases, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("problem number", strconv.Itoa(p.Number))
		}
		return fmt.Errorf("sqlite: creating problem: %w", err)
	}
	return nil
}

// ImportProblem inserts the problem under its own ID, or replaces the stored
// one. It is how a catalog file is loaded; IDs in the file are stable.
func (db *DB) ImportProblem(ctx context.Context, p *model.Problem) error {
	if p.ID == "" {
		return apperror.ValidationFailed("id", "imported problems need an id")
	}
	now := time.Now()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now

	tags, cases, err := encodeProblemJSON(p)
	if err != nil {
		return err
	}

	// ON CONFLICT ... DO UPDATE keeps created_at and the row itself, so
	// existing submissions keep pointing at it.
	_, err = db.conn.ExecContext(ctx,
		`INSERT INTO problems (`+problemColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			number = excluded.number,
			title = excluded.title,
			description = excluded.description,
			difficulty = excluded.difficulty,
			tags = excluded.tags,
			source = excluded.source,
			test_cases = excluded.test_cases,
			updated_at = excluded.updated_at`,
		p.ID, p.Number, p.Title, p.Description, p.Difficulty,
		tags, p.Source, cases, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("problem number", strconv.Itoa(p.Number))
		}
		return fmt.Errorf("sqlite: importing problem %s: %w", p.ID, err)
	}
	return nil
}

// GetByID returns a problem including its test cases.
func (db *DB) GetByID(ctx context.Context, id string) (*model.Problem, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+problemColumns+` FROM problems WHERE id = ?`, id)

	p, err := scanProblem(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("problem", id)
		}
		return nil, fmt.Errorf("sqlite: getting problem %s: %w", id, err)
	}
	return p, nil
}

// List returns problems ordered by number, without test cases.
func (db *DB) List(ctx context.Context, opts repository.ListOptions) ([]model.Problem, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}
	if limit > 500 {
		limit = 500
	}
	offset := max(opts.Offset, 0)

	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+problemColumns+`
		 FROM problems
		 ORDER BY number ASC
		 LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing problems: %w", err)
	}
	// CRITICAL: always close rows when done, or the connection leaks.
	defer rows.Close()

	problems := make([]model.Problem, 0, limit)
	for rows.Next() {
		p, err := scanProblem(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning problem row: %w", err)
		}
		problems = append(problems, p.Public())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating problems: %w", err)
	}
	return problems, nil
}

// Update replaces the editable fields of a problem.
func (db *DB) Update(ctx context.Context, p *model.Problem) error {
	p.UpdatedAt = time.Now()

	tags, cases, err := encodeProblemJSON(p)
	if err != nil {
		return err
	}

	result, err := db.conn.ExecContext(ctx,
		`UPDATE problems
		 SET number = ?, title = ?, description = ?, difficulty = ?,
		     tags = ?, source = ?, test_cases = ?, updated_at = ?
		 WHERE id = ?`,
		p.Number, p.Title, p.Description, p.Difficulty,
		tags, p.Source, cases, p.UpdatedAt, p.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("problem number", strconv.Itoa(p.Number))
		}
		return fmt.Errorf("sqlite: updating problem %s: %w", p.ID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("problem", p.ID)
	}
	return nil
}

// Delete removes a problem and, through the foreign key, its submissions.
func (db *DB) Delete(ctx context.Context, id string) error {
	result, err := db.conn.ExecContext(ctx, `DELETE FROM problems WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting problem %s: %w", id, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("problem", id)
	}
	return nil
}

func (db *DB) nextProblemNumber(ctx context.Context) (int, error) {
	var n int
	if err := db.conn.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(number), 0) + 1 FROM problems`).Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlite: next problem number: %w", err)
	}
	return n, nil
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanProblem(s scanner) (*model.Problem, error) {
	var (
		p           model.Problem
		tags, cases string
	)
	if err := s.Scan(
		&p.ID, &p.Number, &p.Title, &p.Description, &p.Difficulty,
		&tags, &p.Source, &cases, &p.CreatedAt, &p.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(tags), &p.Tags); err != nil {
		return nil, fmt.Errorf("decoding tags of problem %s: %w", p.ID, err)
	}
	if err := json.Unmarshal([]byte(cases), &p.TestCases); err != nil {
		return nil, fmt.Errorf("decoding test cases of problem %s: %w", p.ID, err)
	}
	return &p, nil
}

func encodeProblemJSON(p *model.Problem) (tags, cases string, err error) {
	if p.Tags == nil {
		p.Tags = []string{}
	}
	if p.TestCases == nil {
		p.TestCases = []model.TestCase{}
	}
	t, err := json.Marshal(p.Tags)
	if err != nil {
		return "", "", fmt.Errorf("sqlite: encoding tags: %w", err)
	}
	c, err := json.Marshal(p.TestCases)
	if err != nil {
		return "", "", fmt.Errorf("sqlite: encoding test cases: %w", err)
	}
	return string(t), string(c), nil
}
