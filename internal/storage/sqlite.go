package storage

import (
	"database/sql"
	"time"

	"github.com/mpataki/dtm/internal/models"
	_ "modernc.org/sqlite"
)

type Storage struct {
	db *sql.DB
}

func New(dbPath string) (*Storage, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	s := &Storage{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS batches (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		completed_at TIMESTAMP,
		command TEXT NOT NULL,
		path_count INTEGER NOT NULL,
		workers INTEGER NOT NULL,
		shell INTEGER NOT NULL DEFAULT 0,
		capture INTEGER NOT NULL DEFAULT 0,
		timeout_seconds REAL,
		status TEXT NOT NULL DEFAULT 'running',
		failed_count INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS tasks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		batch_id INTEGER NOT NULL REFERENCES batches(id),
		sequence_num INTEGER NOT NULL,
		work_dir TEXT NOT NULL,
		pid INTEGER,
		ppid INTEGER,
		exit_code INTEGER NOT NULL,
		status TEXT NOT NULL,
		message TEXT,
		output TEXT,
		UNIQUE(batch_id, sequence_num)
	);

	CREATE INDEX IF NOT EXISTS idx_batches_status ON batches(status);
	CREATE INDEX IF NOT EXISTS idx_tasks_batch ON tasks(batch_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

func (s *Storage) CreateBatch(batch *models.Batch) (int64, error) {
	var timeout any
	if batch.Timeout > 0 {
		timeout = batch.Timeout.Seconds()
	}

	result, err := s.db.Exec(
		`INSERT INTO batches (command, path_count, workers, shell, capture, timeout_seconds, status)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		batch.Command, batch.PathCount, batch.Workers, batch.Shell, batch.Capture, timeout, batch.Status,
	)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// FinishBatch records the terminal state of a batch and its task results in
// one transaction.
func (s *Storage) FinishBatch(batchID int64, results []models.TaskResult) error {
	failed := 0
	for _, r := range results {
		if r.Failed() {
			failed++
		}
	}

	status := models.BatchComplete
	if failed > 0 {
		status = models.BatchFailed
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		`UPDATE batches SET completed_at = ?, status = ?, failed_count = ? WHERE id = ?`,
		time.Now(), status, failed, batchID,
	); err != nil {
		return err
	}

	for i, r := range results {
		if _, err := tx.Exec(
			`INSERT INTO tasks (batch_id, sequence_num, work_dir, pid, ppid, exit_code, status, message, output)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			batchID, i+1, r.WorkDir, r.PID, r.PPID, r.ExitCode, r.Status, r.Message, r.Output,
		); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (s *Storage) GetBatch(id int64) (*models.Batch, error) {
	row := s.db.QueryRow(
		`SELECT id, created_at, completed_at, command, path_count, workers, shell, capture, timeout_seconds, status, failed_count
		 FROM batches WHERE id = ?`, id,
	)
	return scanBatch(row.Scan)
}

func (s *Storage) ListBatches(limit int) ([]*models.Batch, error) {
	rows, err := s.db.Query(
		`SELECT id, created_at, completed_at, command, path_count, workers, shell, capture, timeout_seconds, status, failed_count
		 FROM batches ORDER BY created_at DESC, id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var batches []*models.Batch
	for rows.Next() {
		batch, err := scanBatch(rows.Scan)
		if err != nil {
			return nil, err
		}
		batches = append(batches, batch)
	}

	return batches, rows.Err()
}

func scanBatch(scan func(dest ...any) error) (*models.Batch, error) {
	var batch models.Batch
	var completedAt sql.NullTime
	var timeout sql.NullFloat64

	err := scan(
		&batch.ID, &batch.CreatedAt, &completedAt, &batch.Command, &batch.PathCount,
		&batch.Workers, &batch.Shell, &batch.Capture, &timeout, &batch.Status, &batch.FailedCount,
	)
	if err != nil {
		return nil, err
	}

	if completedAt.Valid {
		batch.CompletedAt = &completedAt.Time
	}
	if timeout.Valid {
		batch.Timeout = time.Duration(timeout.Float64 * float64(time.Second))
	}

	return &batch, nil
}

func (s *Storage) GetTasksForBatch(batchID int64) ([]*models.BatchTask, error) {
	rows, err := s.db.Query(
		`SELECT id, batch_id, sequence_num, work_dir, pid, ppid, exit_code, status, message, output
		 FROM tasks WHERE batch_id = ? ORDER BY sequence_num`, batchID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []*models.BatchTask
	for rows.Next() {
		var task models.BatchTask
		var pid, ppid sql.NullInt64
		var message, output sql.NullString

		err := rows.Scan(
			&task.ID, &task.BatchID, &task.SequenceNum, &task.WorkDir,
			&pid, &ppid, &task.ExitCode, &task.Status, &message, &output,
		)
		if err != nil {
			return nil, err
		}

		if pid.Valid {
			task.PID = int(pid.Int64)
		}
		if ppid.Valid {
			task.PPID = int(ppid.Int64)
		}
		if message.Valid {
			task.Message = message.String
		}
		if output.Valid {
			task.Output = output.String
		}

		tasks = append(tasks, &task)
	}

	return tasks, rows.Err()
}

func (s *Storage) DeleteBatch(id int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM tasks WHERE batch_id = ?`, id); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM batches WHERE id = ?`, id); err != nil {
		return err
	}

	return tx.Commit()
}
