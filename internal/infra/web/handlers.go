package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"ai-brand-diagnosis/internal/domain"
	"ai-brand-diagnosis/internal/domain/model"
	"ai-brand-diagnosis/internal/usecase"
)

// The expected JSON request body for starting a diagnosis.
type diagnosisStartRequest struct {
	ExecutionID      string   `json:"execution_id"`
	MainBrand        string   `json:"main_brand"`
	CompetitorBrands []string `json:"competitor_brands"`
	Questions        []string `json:"questions"`
	TargetModels     []string `json:"target_models"`
	UserID           string   `json:"user_id"`
}

func diagnosisStartHandler(diagUC usecase.DiagnosisService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var req diagnosisStartRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}

		spec, err := model.NewJobSpec(req.ExecutionID, req.MainBrand,
			req.CompetitorBrands, req.Questions, req.TargetModels, req.UserID)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		receipt, err := diagUC.StartDiagnosis(ctx, spec)
		if err != nil {
			switch {
			case errors.Is(err, domain.ErrAlreadyExists):
				http.Error(w, "Execution already exists", http.StatusConflict)
			case errors.Is(err, domain.ErrInvalidArgument):
				http.Error(w, err.Error(), http.StatusBadRequest)
			default:
				http.Error(w, "Failed to start diagnosis", http.StatusInternalServerError)
			}
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(receipt)
	}
}

func diagnosisStatusHandler(diagUC usecase.DiagnosisService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		executionID := chi.URLParam(r, "executionID")

		view, err := diagUC.GetStatus(r.Context(), executionID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				http.Error(w, "Unknown execution", http.StatusNotFound)
				return
			}
			http.Error(w, "Failed to get status", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(view)
	}
}

func diagnosisReportHandler(diagUC usecase.DiagnosisService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		executionID := chi.URLParam(r, "executionID")

		// Always 200: unknown and failed executions still render a guided
		// stub so clients have one decode path.
		report, err := diagUC.GetReport(r.Context(), executionID)
		if err != nil {
			http.Error(w, "Failed to build report", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(report)
	}
}

func deadLetterListHandler(dlqUC usecase.DeadLetterUseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		limit, _ := strconv.Atoi(q.Get("limit"))
		offset, _ := strconv.Atoi(q.Get("offset"))

		filter := model.DeadLetterFilter{
			ExecutionID: q.Get("execution_id"),
			Status:      model.DeadLetterStatus(q.Get("status")),
			TaskType:    q.Get("task_type"),
			Limit:       limit,
			Offset:      offset,
		}

		entries, total, err := dlqUC.List(r.Context(), filter)
		if err != nil {
			http.Error(w, "Failed to list dead letters", http.StatusInternalServerError)
			return
		}

		response := struct {
			Entries []*model.DeadLetterEntry `json:"entries"`
			Total   int                      `json:"total"`
		}{Entries: entries, Total: total}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(response)
	}
}

func deadLetterStatsHandler(dlqUC usecase.DeadLetterUseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := dlqUC.Stats(r.Context(), r.URL.Query().Get("execution_id"))
		if err != nil {
			http.Error(w, "Failed to get stats", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(stats)
	}
}

// deadLetterActionHandler serves the retry/resolve/ignore lifecycle moves,
// which all share the (id) -> (applied, error) shape.
func deadLetterActionHandler(action func(ctx context.Context, id string) (bool, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		applied, err := action(r.Context(), id)
		if err != nil {
			http.Error(w, "Dead letter update failed", http.StatusInternalServerError)
			return
		}
		if !applied {
			http.Error(w, "Entry not in a state that allows this action", http.StatusConflict)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]bool{"applied": true})
	}
}
