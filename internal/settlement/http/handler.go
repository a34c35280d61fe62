// Package settlementhttp exposes the commission workflow over a JSON API.
package settlementhttp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/promotoria/comisiones/internal/balances"
	"github.com/promotoria/comisiones/internal/cutoff"
	"github.com/promotoria/comisiones/internal/platform/httpx"
	"github.com/promotoria/comisiones/internal/settlement"
)

const defaultMaxUploadBytes = 20 << 20

type settlementService interface {
	Cortes(year int, month time.Month) ([]cutoff.Period, error)
	Commissions(ctx context.Context, period cutoff.Period) (settlement.CommissionReport, error)
	Production(ctx context.Context, period cutoff.Period) (settlement.ProductionReport, error)
	Import(ctx context.Context, r io.Reader, opts settlement.ImportOptions) (settlement.ImportResult, error)
	Reconcile(ctx context.Context, period cutoff.Period) (balances.Report, error)
	Balances(ctx context.Context, agentKey int) ([]balances.PendingBalance, error)
	RefreshDirectory(ctx context.Context) error
}

// Handler serves the /api routes.
type Handler struct {
	logger    *slog.Logger
	service   settlementService
	validator *validator.Validate
	maxUpload int64
}

// NewHandler constructs a Handler. maxUpload caps the workbook size in bytes;
// zero applies the default.
func NewHandler(logger *slog.Logger, service settlementService, maxUpload int64) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if maxUpload <= 0 {
		maxUpload = defaultMaxUploadBytes
	}
	return &Handler{
		logger:    logger,
		service:   service,
		validator: validator.New(),
		maxUpload: maxUpload,
	}
}

// MountRoutes registers the API routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/cortes", h.listCortes)
	r.Route("/cortes/{year}/{month}/{index}", func(r chi.Router) {
		r.Get("/commissions", h.commissions)
		r.Get("/production", h.production)
	})
	r.Post("/receipts/import", h.importReceipts)
	r.Post("/balances/reconcile", h.reconcile)
	r.Get("/agents/{key}/balances", h.agentBalances)
	r.Post("/refdata/refresh", h.refreshDirectory)
}

type monthQuery struct {
	Year  int `validate:"required,min=2000,max=2100"`
	Month int `validate:"required,min=1,max=12"`
}

type corteRef struct {
	Year  int `json:"year" validate:"required,min=2000,max=2100"`
	Month int `json:"month" validate:"required,min=1,max=12"`
	Index int `json:"index" validate:"required,min=1,max=6"`
}

func (h *Handler) listCortes(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	year, yearErr := strconv.Atoi(strings.TrimSpace(q.Get("year")))
	month, monthErr := strconv.Atoi(strings.TrimSpace(q.Get("month")))
	if err := errors.Join(yearErr, monthErr); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: year and month must be numbers", httpx.ErrValidation))
		return
	}
	in := monthQuery{Year: year, Month: month}
	if err := h.validate(in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	periods, err := h.service.Cortes(in.Year, time.Month(in.Month))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"cortes": periods})
}

func (h *Handler) commissions(w http.ResponseWriter, r *http.Request) {
	period, ok := h.periodFromPath(w, r)
	if !ok {
		return
	}
	report, err := h.service.Commissions(r.Context(), period)
	if err != nil {
		h.fail(w, "commission summary", err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

func (h *Handler) production(w http.ResponseWriter, r *http.Request) {
	period, ok := h.periodFromPath(w, r)
	if !ok {
		return
	}
	report, err := h.service.Production(r.Context(), period)
	if err != nil {
		h.fail(w, "production report", err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

func (h *Handler) importReceipts(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httpx.RespondError(w, fmt.Errorf("%w: limit %d bytes", httpx.ErrTooLarge, tooLarge.Limit))
			return
		}
		httpx.RespondError(w, fmt.Errorf("%w: multipart field \"file\" is required", httpx.ErrValidation))
		return
	}
	defer func() { _ = file.Close() }()

	logger := h.logger.With(slog.String("file", header.Filename))
	res, err := h.service.Import(r.Context(), file, settlement.ImportOptions{Sheet: r.FormValue("sheet")})
	if err != nil {
		h.fail(w, "import receipts", err)
		return
	}
	logger.Info("receipts imported",
		slog.String("run_id", res.Upload.RunID),
		slog.Int("accepted", res.Ingest.Accepted),
		slog.Int("rejected", len(res.Ingest.Rejected)),
		slog.Int("succeeded", res.Upload.Succeeded),
	)
	status := http.StatusOK
	if len(res.Upload.FailedChunks) > 0 {
		status = http.StatusMultiStatus
	}
	httpx.JSON(w, status, res)
}

func (h *Handler) reconcile(w http.ResponseWriter, r *http.Request) {
	var in corteRef
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validate(in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	period, err := cutoff.Find(in.Year, time.Month(in.Month), in.Index)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	report, err := h.service.Reconcile(r.Context(), period)
	if err != nil {
		h.fail(w, "reconcile period", err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

func (h *Handler) agentBalances(w http.ResponseWriter, r *http.Request) {
	key, err := strconv.Atoi(chi.URLParam(r, "key"))
	if err != nil || key <= 0 {
		httpx.RespondError(w, fmt.Errorf("%w: agent key must be a positive number", httpx.ErrValidation))
		return
	}
	history, err := h.service.Balances(r.Context(), key)
	if err != nil {
		h.fail(w, "balance history", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"agent_key": key, "balances": history})
}

func (h *Handler) refreshDirectory(w http.ResponseWriter, r *http.Request) {
	if err := h.service.RefreshDirectory(r.Context()); err != nil {
		h.fail(w, "refresh directory", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) periodFromPath(w http.ResponseWriter, r *http.Request) (cutoff.Period, bool) {
	var in corteRef
	var err error
	if in.Year, err = strconv.Atoi(chi.URLParam(r, "year")); err == nil {
		if in.Month, err = strconv.Atoi(chi.URLParam(r, "month")); err == nil {
			in.Index, err = strconv.Atoi(chi.URLParam(r, "index"))
		}
	}
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: year, month and index must be numbers", httpx.ErrValidation))
		return cutoff.Period{}, false
	}
	if err := h.validate(in); err != nil {
		httpx.RespondError(w, err)
		return cutoff.Period{}, false
	}
	period, err := cutoff.Find(in.Year, time.Month(in.Month), in.Index)
	if err != nil {
		httpx.RespondError(w, err)
		return cutoff.Period{}, false
	}
	return period, true
}

func (h *Handler) validate(v any) error {
	err := h.validator.Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		parts := make([]string, 0, len(fieldErrs))
		for _, fe := range fieldErrs {
			parts = append(parts, strings.ToLower(fe.Field())+" fails "+fe.Tag())
		}
		return fmt.Errorf("%w: %s", httpx.ErrValidation, strings.Join(parts, ", "))
	}
	return fmt.Errorf("%w: %v", httpx.ErrValidation, err)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if httpx.StatusOf(err) >= http.StatusInternalServerError {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
