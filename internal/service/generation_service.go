package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nanobanano/miniapp/internal/config"
	"github.com/nanobanano/miniapp/internal/kie"
	"github.com/nanobanano/miniapp/internal/models"
	"github.com/nanobanano/miniapp/internal/repository"
	"github.com/nanobanano/miniapp/internal/worker"
)

// Ledger governs the prepaid generation quota.
type Ledger interface {
	Balance(ctx context.Context, userID string) (int, error)
	Debit(ctx context.Context, userID string, cost int, label string) error
}

// JobClient is the adapter to the external asynchronous image provider.
type JobClient interface {
	CreateTask(ctx context.Context, prompt, imageSize string) (string, error)
	TaskStatus(ctx context.Context, taskID string) (kie.Status, error)
}

// TaskStore persists generation tasks and their lifecycle state.
type TaskStore interface {
	Create(ctx context.Context, task *models.Task) error
	UpdateState(ctx context.Context, taskID string, state models.TaskState, resultURL string) error
	GetByTaskID(ctx context.Context, taskID string) (*models.Task, error)
	ListSuccessfulByUser(ctx context.Context, userID string, limit int) ([]models.Task, error)
}

// Notifier delivers the best-effort "task complete" signal.
type Notifier interface {
	NotifyComplete(ctx context.Context, userID, label string) error
}

// Archiver mirrors a short-lived provider URL into durable storage.
type Archiver interface {
	Archive(ctx context.Context, sourceURL string) (string, error)
}

// PollSubmitter hands a poll cycle to a supervised worker.
type PollSubmitter interface {
	Submit(job worker.Job) error
}

// InsufficientFundsError is the user-facing refusal carrying the available
// and required amounts.
type InsufficientFundsError struct {
	Available int
	Required  int
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("недостаточно генераций (есть %d, нужно %d)", e.Available, e.Required)
}

// GenerationService runs one generation task end to end: balance gate,
// provider submission, debit, persistence, and the bounded poll cycle that
// finishes with a notification.
type GenerationService struct {
	cfg      config.Config
	log      *slog.Logger
	ledger   Ledger
	jobs     JobClient
	tasks    TaskStore
	notifier Notifier
	archiver Archiver
	pool     PollSubmitter
}

// GenerateInput is one inbound generation request.
type GenerateInput struct {
	UserID       string
	Prompt       string
	ImageSize    string
	TemplateName string
	Cost         int
}

// NewGenerationService wires the orchestrator. archiver may be nil when
// result mirroring is disabled.
func NewGenerationService(cfg config.Config, log *slog.Logger, ledger Ledger, jobs JobClient, tasks TaskStore, notifier Notifier, archiver Archiver, pool PollSubmitter) *GenerationService {
	return &GenerationService{
		cfg:      cfg,
		log:      log,
		ledger:   ledger,
		jobs:     jobs,
		tasks:    tasks,
		notifier: notifier,
		archiver: archiver,
		pool:     pool,
	}
}

// Generate accepts a generation request. On return the task row exists in
// state waiting and its poll cycle is queued; billing already happened.
// Submission is ordered before the debit, so a provider rejection never
// leaves a billed task behind.
func (s *GenerationService) Generate(ctx context.Context, in GenerateInput) (*models.Task, error) {
	if in.UserID == "" {
		return nil, fmt.Errorf("user id is required")
	}
	if in.Prompt == "" {
		return nil, fmt.Errorf("prompt cannot be empty")
	}
	if in.ImageSize == "" {
		in.ImageSize = "1:1"
	}
	if in.Cost <= 0 {
		in.Cost = s.cfg.DefaultCost
	}

	balance, err := s.ledger.Balance(ctx, in.UserID)
	if err != nil {
		return nil, fmt.Errorf("check balance: %w", err)
	}
	if balance < in.Cost {
		return nil, &InsufficientFundsError{Available: balance, Required: in.Cost}
	}

	taskID, err := s.jobs.CreateTask(ctx, in.Prompt, in.ImageSize)
	if err != nil {
		return nil, err
	}

	if err := s.ledger.Debit(ctx, in.UserID, in.Cost, in.TemplateName); err != nil {
		if errors.Is(err, repository.ErrInsufficientFunds) {
			// A concurrent debit won the race since the balance read. The
			// submitted job is orphaned but nothing was billed or persisted.
			return nil, &InsufficientFundsError{Available: balance, Required: in.Cost}
		}
		return nil, fmt.Errorf("debit balance: %w", err)
	}

	task := &models.Task{
		TaskID:       taskID,
		UserID:       in.UserID,
		TemplateName: in.TemplateName,
		Prompt:       in.Prompt,
		ImageSize:    in.ImageSize,
		State:        models.TaskStateWaiting,
		Cost:         in.Cost,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.tasks.Create(ctx, task); err != nil {
		if errors.Is(err, repository.ErrDuplicateTask) {
			// Provider task ids are assumed unique; a collision here is a
			// broken invariant, not something we can recover from.
			s.log.Error("provider task id collision", "task_id", taskID, "user_id", in.UserID)
		}
		return nil, fmt.Errorf("persist task: %w", err)
	}

	label := in.TemplateName
	if label == "" {
		label = "Генерация"
	}
	if err := s.pool.Submit(s.pollJob(taskID, in.UserID, label)); err != nil {
		// No poll cycle will ever own this task, so it must not stay waiting.
		s.log.Error("poll queue full, failing task", "task_id", taskID, "err", err)
		if updErr := s.tasks.UpdateState(context.WithoutCancel(ctx), taskID, models.TaskStateFail, ""); updErr != nil {
			s.log.Error("fail orphaned task", "task_id", taskID, "err", updErr)
		}
		task.State = models.TaskStateFail
	}

	return task, nil
}

// Task returns the current snapshot of a task.
func (s *GenerationService) Task(ctx context.Context, taskID string) (*models.Task, error) {
	return s.tasks.GetByTaskID(ctx, taskID)
}

// History returns the user's successful tasks, newest first.
func (s *GenerationService) History(ctx context.Context, userID string) ([]models.Task, error) {
	return s.tasks.ListSuccessfulByUser(ctx, userID, s.cfg.HistoryLimit)
}

// Balance returns the user's remaining generations.
func (s *GenerationService) Balance(ctx context.Context, userID string) (int, error) {
	return s.ledger.Balance(ctx, userID)
}

func (s *GenerationService) pollJob(taskID, userID, label string) worker.Job {
	return func(ctx context.Context) {
		s.runPollCycle(ctx, taskID, userID, label)
	}
}

// runPollCycle is the single owner of the task's state transitions. It polls
// the provider up to PollMaxAttempts times with PollInterval between
// attempts, converting an unresponsive provider into a deterministic fail.
func (s *GenerationService) runPollCycle(ctx context.Context, taskID, userID, label string) {
	for attempt := 1; attempt <= s.cfg.PollMaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			// Shutdown. The task stays waiting; it is not resumed on restart.
			s.log.Info("poll cycle interrupted", "task_id", taskID, "attempt", attempt)
			return
		case <-time.After(s.cfg.PollInterval):
		}

		status, err := s.jobs.TaskStatus(ctx, taskID)
		if err != nil {
			// Transient for this attempt; the attempt still counts.
			s.log.Warn("poll attempt failed", "task_id", taskID, "attempt", attempt, "err", err)
			continue
		}

		switch status.State {
		case kie.StateSuccess:
			s.finishSuccess(ctx, taskID, userID, label, status.ResultURL, attempt)
			return
		case kie.StateFail:
			if err := s.tasks.UpdateState(ctx, taskID, models.TaskStateFail, ""); err != nil {
				s.log.Error("mark task failed", "task_id", taskID, "err", err)
			}
			return
		default:
			if attempt%10 == 0 {
				s.log.Info("task still waiting", "task_id", taskID, "attempt", attempt, "max_attempts", s.cfg.PollMaxAttempts)
			}
		}
	}

	s.log.Warn("poll budget exhausted", "task_id", taskID, "attempts", s.cfg.PollMaxAttempts)
	if err := s.tasks.UpdateState(ctx, taskID, models.TaskStateFail, ""); err != nil {
		s.log.Error("mark task failed", "task_id", taskID, "err", err)
	}
}

func (s *GenerationService) finishSuccess(ctx context.Context, taskID, userID, label, resultURL string, attempt int) {
	if s.archiver != nil && resultURL != "" {
		archived, err := s.archiver.Archive(ctx, resultURL)
		if err != nil {
			// Keep the provider URL; archiving never fails a task.
			s.log.Warn("archive result", "task_id", taskID, "err", err)
		} else {
			resultURL = archived
		}
	}

	if err := s.tasks.UpdateState(ctx, taskID, models.TaskStateSuccess, resultURL); err != nil {
		s.log.Error("mark task succeeded", "task_id", taskID, "err", err)
		return
	}

	s.log.Info("task completed", "task_id", taskID, "attempt", attempt)

	if err := s.notifier.NotifyComplete(ctx, userID, label); err != nil {
		// Delivery is best-effort; the durable state is already final.
		s.log.Warn("notify complete", "task_id", taskID, "user_id", userID, "err", err)
	}
}
