package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"

	"github.com/nanobanano/miniapp/internal/models"
)

var (
	// ErrTaskNotFound is returned for lookups and updates on unknown task ids.
	ErrTaskNotFound = errors.New("task not found")
	// ErrDuplicateTask means the provider issued a task id we already hold.
	ErrDuplicateTask = errors.New("duplicate task id")
)

const mysqlErrDuplicateEntry = 1062

// TaskRepository is the durable store of generation tasks, keyed by the
// provider-issued task id.
type TaskRepository struct {
	db *sql.DB
}

func NewTaskRepository(db *sql.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

func (r *TaskRepository) Create(ctx context.Context, task *models.Task) error {
	const query = `
INSERT INTO miniapp_tasks (task_id, user_id, tpl_name, prompt, image_size, state, cost)
VALUES (?, ?, NULLIF(?, ''), ?, ?, ?, ?)`
	res, err := r.db.ExecContext(ctx, query, task.TaskID, task.UserID, task.TemplateName, task.Prompt, task.ImageSize, task.State, task.Cost)
	if err != nil {
		var mysqlErr *mysql.MySQLError
		if errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlErrDuplicateEntry {
			return fmt.Errorf("%w: %s", ErrDuplicateTask, task.TaskID)
		}
		return fmt.Errorf("insert task: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("task last insert id: %w", err)
	}
	task.ID = id
	return nil
}

// UpdateState overwrites the task's state and result reference. The single
// poll cycle owning the task id is the only writer, so last-writer-wins is
// safe here.
func (r *TaskRepository) UpdateState(ctx context.Context, taskID string, state models.TaskState, resultURL string) error {
	const query = `UPDATE miniapp_tasks SET state = ?, result_url = NULLIF(?, '') WHERE task_id = ?`
	res, err := r.db.ExecContext(ctx, query, state, resultURL, taskID)
	if err != nil {
		return fmt.Errorf("update task state: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("task update rows affected: %w", err)
	}
	if affected == 0 {
		// MySQL reports zero for a no-op rewrite too; distinguish that from
		// a genuinely missing row.
		if _, err := r.GetByTaskID(ctx, taskID); err != nil {
			return err
		}
	}
	return nil
}

func (r *TaskRepository) GetByTaskID(ctx context.Context, taskID string) (*models.Task, error) {
	const query = `
SELECT id, task_id, user_id, COALESCE(tpl_name, ''), COALESCE(prompt, ''), image_size, state, COALESCE(result_url, ''), cost, created_at
FROM miniapp_tasks WHERE task_id = ?`
	row := r.db.QueryRowContext(ctx, query, taskID)
	var t models.Task
	if err := row.Scan(&t.ID, &t.TaskID, &t.UserID, &t.TemplateName, &t.Prompt, &t.ImageSize, &t.State, &t.ResultURL, &t.Cost, &t.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
		}
		return nil, fmt.Errorf("scan task: %w", err)
	}
	return &t, nil
}

// ListSuccessfulByUser returns the user's successful tasks, newest first.
func (r *TaskRepository) ListSuccessfulByUser(ctx context.Context, userID string, limit int) ([]models.Task, error) {
	const query = `
SELECT id, task_id, user_id, COALESCE(tpl_name, ''), COALESCE(prompt, ''), image_size, state, COALESCE(result_url, ''), cost, created_at
FROM miniapp_tasks
WHERE user_id = ? AND state = ?
ORDER BY created_at DESC, id DESC
LIMIT ?`
	rows, err := r.db.QueryContext(ctx, query, userID, models.TaskStateSuccess, limit)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []models.Task
	for rows.Next() {
		var t models.Task
		if err := rows.Scan(&t.ID, &t.TaskID, &t.UserID, &t.TemplateName, &t.Prompt, &t.ImageSize, &t.State, &t.ResultURL, &t.Cost, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan task list: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}
