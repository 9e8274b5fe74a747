package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/mchmarny/biasprobe/pkg/bias"
)

const (
	insertRunSQL = `INSERT INTO run (id, model, model_name, input, created_at,
		total, scored, degenerate, failed, duration)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	insertPairScoreSQL = `INSERT INTO pair_score (run_id, pair_id, seq, sent_more, sent_less,
		direction, bias_category, score_more, score_less, status, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	selectRunColumns = `SELECT id, model, model_name, input, created_at,
		total, scored, degenerate, failed, duration FROM run`

	selectPairScoresSQL = `SELECT pair_id, sent_more, sent_less, direction, bias_category,
		score_more, score_less, status, error
		FROM pair_score WHERE run_id = ? ORDER BY seq, pair_id`

	selectModelsSQL = `SELECT model, COUNT(*) FROM run GROUP BY model ORDER BY model`

	deletePairScoresSQL = `DELETE FROM pair_score WHERE run_id = ?`
	deleteRunSQL        = `DELETE FROM run WHERE id = ?`

	// fixed width so text order is time order
	timeLayout = "2006-01-02T15:04:05.000000000Z07:00"
)

// Run is one scoring pass of a model over an input set.
type Run struct {
	ID         string    `json:"id" yaml:"id"`
	Model      string    `json:"model" yaml:"model"`
	ModelName  string    `json:"model_name" yaml:"modelName"`
	Input      string    `json:"input" yaml:"input"`
	CreatedAt  time.Time `json:"created_at" yaml:"createdAt"`
	Total      int       `json:"total" yaml:"total"`
	Scored     int       `json:"scored" yaml:"scored"`
	Degenerate int       `json:"degenerate" yaml:"degenerate"`
	Failed     int       `json:"failed" yaml:"failed"`
	Duration   string    `json:"duration" yaml:"duration"`
}

// ModelCount is the number of stored runs of a model.
type ModelCount struct {
	Model string `json:"model" yaml:"model"`
	Runs  int    `json:"runs" yaml:"runs"`
}

// SaveRun stores run and its rows in one transaction. Missing ids and
// timestamps are assigned. Rows are read back in the order given here.
func (s *Store) SaveRun(ctx context.Context, run *Run, rows []bias.ScoredPair) error {
	if s == nil || s.db == nil {
		return errDBNotInitialized
	}
	if run == nil || run.Model == "" {
		return fmt.Errorf("%w: run with model required", bias.ErrInvalidArgument)
	}
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	if run.ModelName == "" {
		run.ModelName = run.Model
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if _, err := tx.ExecContext(ctx, s.rebind(insertRunSQL),
		run.ID, run.Model, run.ModelName, run.Input, run.CreatedAt.UTC().Format(timeLayout),
		run.Total, run.Scored, run.Degenerate, run.Failed, run.Duration); err != nil {
		rollbackTransaction(tx)
		return fmt.Errorf("error inserting run %s: %w", run.ID, err)
	}

	stmt, err := tx.PrepareContext(ctx, s.rebind(insertPairScoreSQL))
	if err != nil {
		rollbackTransaction(tx)
		return fmt.Errorf("failed to prepare pair score insert statement: %w", err)
	}
	defer stmt.Close()

	for i, r := range rows {
		if _, err := stmt.ExecContext(ctx, run.ID, r.Pair.ID, i, r.Pair.SentMore, r.Pair.SentLess,
			string(r.Pair.Direction), string(r.Pair.Category), r.Score.More, r.Score.Less,
			string(r.Status), r.Error); err != nil {
			slog.Error("failed to insert pair score",
				"index", i,
				"run", run.ID,
				"pair", r.Pair.ID,
				"error", err,
			)
			rollbackTransaction(tx)
			return fmt.Errorf("error inserting pair score[%d]: %d: %w", i, r.Pair.ID, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	slog.Debug("run saved", "id", run.ID, "model", run.Model, "rows", len(rows))
	return nil
}

// GetRun returns the run with id.
func (s *Store) GetRun(ctx context.Context, id string) (*Run, error) {
	if s == nil || s.db == nil {
		return nil, errDBNotInitialized
	}
	row := s.db.QueryRowContext(ctx, s.rebind(selectRunColumns+" WHERE id = ?"), id)
	r, err := scanRun(row)
	if err != nil {
		return nil, fmt.Errorf("run %s: %w", id, err)
	}
	return r, nil
}

// LatestRun returns the most recent run of model.
func (s *Store) LatestRun(ctx context.Context, model string) (*Run, error) {
	if s == nil || s.db == nil {
		return nil, errDBNotInitialized
	}
	row := s.db.QueryRowContext(ctx,
		s.rebind(selectRunColumns+" WHERE model = ? ORDER BY created_at DESC, id DESC LIMIT 1"), model)
	r, err := scanRun(row)
	if err != nil {
		return nil, fmt.Errorf("latest run of %s: %w", model, err)
	}
	return r, nil
}

// ListRuns returns runs, newest first. An empty model lists all models.
// A limit below 1 returns every run.
func (s *Store) ListRuns(ctx context.Context, model string, limit int) ([]*Run, error) {
	if s == nil || s.db == nil {
		return nil, errDBNotInitialized
	}

	q := selectRunColumns
	args := make([]any, 0, 2)
	if model != "" {
		q += " WHERE model = ?"
		args = append(args, model)
	}
	q += " ORDER BY created_at DESC, id DESC"
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(q), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute run select statement: %w", err)
	}
	defer rows.Close()

	list := make([]*Run, 0)
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate runs: %w", err)
	}
	return list, nil
}

// ListModels returns the models with at least one stored run.
func (s *Store) ListModels(ctx context.Context) ([]*ModelCount, error) {
	if s == nil || s.db == nil {
		return nil, errDBNotInitialized
	}
	rows, err := s.db.QueryContext(ctx, selectModelsSQL)
	if err != nil {
		return nil, fmt.Errorf("failed to execute model select statement: %w", err)
	}
	defer rows.Close()

	list := make([]*ModelCount, 0)
	for rows.Next() {
		m := &ModelCount{}
		if err := rows.Scan(&m.Model, &m.Runs); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		list = append(list, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate models: %w", err)
	}
	return list, nil
}

// GetScores returns the rows of a run in the order they were saved.
func (s *Store) GetScores(ctx context.Context, runID string) ([]bias.ScoredPair, error) {
	if s == nil || s.db == nil {
		return nil, errDBNotInitialized
	}
	rows, err := s.db.QueryContext(ctx, s.rebind(selectPairScoresSQL), runID)
	if err != nil {
		return nil, fmt.Errorf("failed to execute pair score select statement: %w", err)
	}
	defer rows.Close()

	list := make([]bias.ScoredPair, 0)
	for rows.Next() {
		var (
			p                        bias.ScoredPair
			dir, cat, status, errMsg string
		)
		if err := rows.Scan(&p.Pair.ID, &p.Pair.SentMore, &p.Pair.SentLess, &dir, &cat,
			&p.Score.More, &p.Score.Less, &status, &errMsg); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		p.Pair.Direction = bias.Direction(dir)
		p.Pair.Category = bias.Category(cat)
		p.Status = bias.Status(status)
		p.Error = errMsg
		list = append(list, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate pair scores: %w", err)
	}
	return list, nil
}

// LatestScores returns the rows of the most recent run of model.
func (s *Store) LatestScores(ctx context.Context, model string) (*Run, []bias.ScoredPair, error) {
	run, err := s.LatestRun(ctx, model)
	if err != nil {
		return nil, nil, err
	}
	rows, err := s.GetScores(ctx, run.ID)
	if err != nil {
		return nil, nil, err
	}
	return run, rows, nil
}

// DeleteRun removes a run and its rows.
func (s *Store) DeleteRun(ctx context.Context, id string) error {
	if s == nil || s.db == nil {
		return errDBNotInitialized
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if _, err := tx.ExecContext(ctx, s.rebind(deletePairScoresSQL), id); err != nil {
		rollbackTransaction(tx)
		return fmt.Errorf("error deleting pair scores of %s: %w", id, err)
	}
	res, err := tx.ExecContext(ctx, s.rebind(deleteRunSQL), id)
	if err != nil {
		rollbackTransaction(tx)
		return fmt.Errorf("error deleting run %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		rollbackTransaction(tx)
		return fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (*Run, error) {
	r := &Run{}
	var created string
	if err := sc.Scan(&r.ID, &r.Model, &r.ModelName, &r.Input, &created,
		&r.Total, &r.Scored, &r.Degenerate, &r.Failed, &r.Duration); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan row: %w", err)
	}
	t, err := time.Parse(timeLayout, created)
	if err != nil {
		return nil, fmt.Errorf("invalid created_at %q: %w", created, err)
	}
	r.CreatedAt = t
	return r, nil
}
