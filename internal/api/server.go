package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/nanobanano/miniapp/internal/kie"
	"github.com/nanobanano/miniapp/internal/repository"
	"github.com/nanobanano/miniapp/internal/service"
)

// Server is the mini-app HTTP front door. It stays thin: validation and
// error mapping here, all task semantics in the generation service.
type Server struct {
	addr       string
	log        *slog.Logger
	generation *service.GenerationService
	router     *chi.Mux
}

func NewServer(addr string, log *slog.Logger, generation *service.GenerationService) *Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(corsAllowAll)

	s := &Server{
		addr:       addr,
		log:        log,
		generation: generation,
		router:     r,
	}
	r.Post("/generate", s.handleGenerate)
	r.Get("/task/{taskID}", s.handleTask)
	r.Get("/history/{userID}", s.handleHistory)
	r.Get("/balance/{userID}", s.handleBalance)
	r.Get("/health", s.handleHealth)
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Error("api shutdown error", "err", err)
		}
	}()

	s.log.Info("mini-app api listening", "addr", s.addr)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("api listen: %w", err)
	}
	return nil
}

type generateRequest struct {
	TelegramUserID string `json:"telegram_user_id"`
	Prompt         string `json:"prompt"`
	ImageSize      string `json:"image_size"`
	TemplateName   string `json:"template_name"`
	Cost           int    `json:"cost"`
}

type generateResponse struct {
	TaskID string `json:"task_id"`
	State  string `json:"state"`
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.TelegramUserID) == "" {
		http.Error(w, "telegram_user_id required", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		http.Error(w, "prompt required", http.StatusBadRequest)
		return
	}

	task, err := s.generation.Generate(r.Context(), service.GenerateInput{
		UserID:       req.TelegramUserID,
		Prompt:       req.Prompt,
		ImageSize:    req.ImageSize,
		TemplateName: req.TemplateName,
		Cost:         req.Cost,
	})
	if err != nil {
		var fundsErr *service.InsufficientFundsError
		if errors.As(err, &fundsErr) {
			http.Error(w, fundsErr.Error(), http.StatusPaymentRequired)
			return
		}
		var providerErr *kie.ProviderError
		if errors.As(err, &providerErr) {
			http.Error(w, providerErr.Error(), http.StatusBadRequest)
			return
		}
		s.internalError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, generateResponse{
		TaskID: task.TaskID,
		State:  string(task.State),
	})
}

type taskResponse struct {
	TaskID    string  `json:"task_id"`
	State     string  `json:"state"`
	ResultURL *string `json:"result_url"`
}

func (s *Server) handleTask(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	task, err := s.generation.Task(r.Context(), taskID)
	if err != nil {
		if errors.Is(err, repository.ErrTaskNotFound) {
			http.Error(w, "Task not found", http.StatusNotFound)
			return
		}
		s.internalError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, taskResponse{
		TaskID:    task.TaskID,
		State:     string(task.State),
		ResultURL: nullableString(task.ResultURL),
	})
}

type historyItem struct {
	TaskID       string  `json:"task_id"`
	TemplateName string  `json:"tpl_name"`
	ImageSize    string  `json:"image_size"`
	State        string  `json:"state"`
	ResultURL    *string `json:"result_url"`
	Cost         int     `json:"cost"`
	CreatedAt    int64   `json:"created_at"`
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	tasks, err := s.generation.History(r.Context(), userID)
	if err != nil {
		s.internalError(w, err)
		return
	}

	items := make([]historyItem, 0, len(tasks))
	for _, t := range tasks {
		items = append(items, historyItem{
			TaskID:       t.TaskID,
			TemplateName: t.TemplateName,
			ImageSize:    t.ImageSize,
			State:        string(t.State),
			ResultURL:    nullableString(t.ResultURL),
			Cost:         t.Cost,
			CreatedAt:    t.CreatedAt.Unix(),
		})
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	balance, err := s.generation.Balance(r.Context(), userID)
	if err != nil {
		s.internalError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]int{"balance": balance})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// corsAllowAll mirrors the permissive policy the mini-app front end expects.
func corsAllowAll(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) internalError(w http.ResponseWriter, err error) {
	s.log.Error("api handler error", "err", err)
	http.Error(w, "internal error", http.StatusInternalServerError)
}

func nullableString(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
