// Package handlers provides HTTP request handlers for the evaluation API.
package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/relicta-tech/deke/internal/config"
	dekeerrors "github.com/relicta-tech/deke/internal/errors"
	"github.com/relicta-tech/deke/internal/expr"
	"github.com/relicta-tech/deke/internal/history"
	"github.com/relicta-tech/deke/internal/httpserver/dto"
	"github.com/relicta-tech/deke/internal/observability"
	"github.com/relicta-tech/deke/internal/policy"
)

// Deps holds the dependencies of the handlers.
type Deps struct {
	Executor   *expr.Executor
	Sets       []*policy.Set
	Policies   config.PoliciesConfig
	Evaluation config.EvaluationConfig
	Metrics    *observability.Metrics
	Tracer     observability.Tracer
	Logger     *slog.Logger
	Version    string

	// History records run reports when set.
	History *history.Store
}

// Handlers serves the evaluation API.
type Handlers struct {
	executor       *expr.Executor
	sets           map[string]*policy.Set
	order          []string
	riskPolicy     string
	evaluation     config.EvaluationConfig
	metrics        *observability.Metrics
	metricsHandler http.Handler
	tracer         observability.Tracer
	history        *history.Store
	logger         *slog.Logger
	version        string
	started        time.Time
}

// New creates the handlers. Missing dependencies get working defaults.
func New(deps Deps) *Handlers {
	h := &Handlers{
		executor:   deps.Executor,
		sets:       make(map[string]*policy.Set, len(deps.Sets)),
		riskPolicy: deps.Policies.RiskPolicy,
		evaluation: deps.Evaluation,
		metrics:    deps.Metrics,
		tracer:     deps.Tracer,
		history:    deps.History,
		logger:     deps.Logger,
		version:    deps.Version,
		started:    time.Now(),
	}
	if h.executor == nil {
		h.executor = expr.NewExecutor()
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	if h.tracer == nil {
		h.tracer = observability.NoopTracer()
	}
	if h.metrics == nil {
		h.metrics = observability.Global()
	}
	h.metricsHandler = h.metrics.Handler()
	if h.evaluation.MaxInputBytes <= 0 {
		h.evaluation.MaxInputBytes = config.DefaultConfig().Evaluation.MaxInputBytes
	}
	for _, s := range deps.Sets {
		if _, dup := h.sets[s.Name]; dup {
			h.logger.Warn("duplicate policy set name, keeping the first", "name", s.Name, "source", s.Source)
			continue
		}
		h.sets[s.Name] = s
		h.order = append(h.order, s.Name)
	}
	return h
}

// decode reads a JSON body bounded by the configured input size.
func (h *Handlers) decode(r *http.Request, v any) error {
	const op = "handlers.decode"

	data, err := io.ReadAll(io.LimitReader(r.Body, h.evaluation.MaxInputBytes+1))
	if err != nil {
		return dekeerrors.IOWrap(err, op, "failed to read request body")
	}
	if int64(len(data)) > h.evaluation.MaxInputBytes {
		return dekeerrors.Validation(op, "request body exceeds maximum allowed size")
	}
	if err := json.Unmarshal(data, v); err != nil {
		return dekeerrors.ValidationWrap(err, op, "invalid JSON body")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps err's kind to an HTTP status.
func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "error", err)
	}

	resp := dto.ErrorResponse{Error: err.Error(), Code: dekeerrors.GetKind(err).String()}
	var de *dekeerrors.Error
	if errors.As(err, &de) {
		if problems, ok := de.Detail("problems"); ok {
			resp.Details = problems
		}
	}
	writeJSON(w, status, resp)
}

// StatusFor returns the HTTP status reported for err.
func StatusFor(err error) int {
	switch dekeerrors.GetKind(err) {
	case dekeerrors.KindValidation:
		return http.StatusBadRequest
	case dekeerrors.KindNotFound:
		return http.StatusNotFound
	case dekeerrors.KindLex, dekeerrors.KindParse, dekeerrors.KindUnknownFunction,
		dekeerrors.KindKindMismatch, dekeerrors.KindLookup, dekeerrors.KindType,
		dekeerrors.KindNotBool, dekeerrors.KindExplain:
		return http.StatusUnprocessableEntity
	case dekeerrors.KindCanceled:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
