package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/SanteonNL/ekaemr/cmd/ekaemr/converter"
	"github.com/SanteonNL/ekaemr/cmd/ekaemr/issue"
	"github.com/SanteonNL/ekaemr/cmd/ekaemr/store"
	"github.com/SanteonNL/ekaemr/models/fhir"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// MaxBundleSize caps the request body of POST /convert
const MaxBundleSize = 64 << 20

// ConversionStore is the part of store.ConversionStore the router needs
type ConversionStore interface {
	Save(ctx context.Context, result *converter.Result, lenient bool) error
	Get(ctx context.Context, recordID string) (*store.StoredConversion, error)
}

type ConvertRouter struct {
	converterService *converter.ConverterService
	store            ConversionStore
	defaults         converter.Options
	log              zerolog.Logger
}

// ConvertResponse is the body of a successful conversion
type ConvertResponse struct {
	Record  interface{}            `json:"record"`
	Outcome *fhir.OperationOutcome `json:"outcome"`
}

// NewConvertRouter creates the router. conversionStore may be nil, in which
// case results are not persisted and GET /records/{id} always returns 404.
func NewConvertRouter(
	converterService *converter.ConverterService,
	conversionStore ConversionStore,
	defaults converter.Options,
	log zerolog.Logger,
) *ConvertRouter {
	return &ConvertRouter{
		converterService: converterService,
		store:            conversionStore,
		defaults:         defaults,
		log:              log.With().Str("component", "api").Logger(),
	}
}

func (cr *ConvertRouter) SetupRoutes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(cr.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/health", cr.handleHealth)
	r.Post("/convert", cr.handleConvert)
	r.Get("/records/{id}", cr.handleGetRecord)

	return r
}

func (cr *ConvertRouter) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		cr.log.Debug().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("took", time.Since(start)).
			Msg("Handled request")
	})
}

func (cr *ConvertRouter) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (cr *ConvertRouter) handleConvert(w http.ResponseWriter, r *http.Request) {
	opts, err := cr.optionsFromQuery(r)
	if err != nil {
		respondWithJSON(w, http.StatusBadRequest, errorOutcome(fhir.IssueTypeProcessing, err.Error()))
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBundleSize))
	if err != nil {
		respondWithJSON(w, http.StatusBadRequest, errorOutcome(fhir.IssueTypeStructure,
			fmt.Sprintf("failed to read request body: %v", err)))
		return
	}

	result, err := cr.converterService.Convert(body, opts)
	if err != nil {
		var ie *issue.Error
		if errors.As(err, &ie) {
			respondWithJSON(w, http.StatusUnprocessableEntity, issue.ToOperationOutcome(nil, ie))
			return
		}
		cr.log.Error().Err(err).Msg("Conversion failed")
		respondWithJSON(w, http.StatusInternalServerError, errorOutcome(fhir.IssueTypeProcessing, err.Error()))
		return
	}

	if cr.store != nil {
		if err := cr.store.Save(r.Context(), result, opts.Lenient); err != nil {
			cr.log.Error().Err(err).Str("recordId", result.Record.RecordID).Msg("Failed to store conversion")
		}
	}

	respondWithJSON(w, http.StatusOK, ConvertResponse{
		Record:  result.Record,
		Outcome: issue.ToOperationOutcome(result.Diagnostics, nil),
	})
}

func (cr *ConvertRouter) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if cr.store == nil {
		respondWithJSON(w, http.StatusNotFound, errorOutcome(fhir.IssueTypeNotFound, "no conversion store configured"))
		return
	}

	row, err := cr.store.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			respondWithJSON(w, http.StatusNotFound, errorOutcome(fhir.IssueTypeNotFound,
				fmt.Sprintf("record %s not found", id)))
			return
		}
		cr.log.Error().Err(err).Str("recordId", id).Msg("Failed to load conversion")
		respondWithJSON(w, http.StatusInternalServerError, errorOutcome(fhir.IssueTypeProcessing, err.Error()))
		return
	}

	respondWithJSON(w, http.StatusOK, row)
}

// optionsFromQuery overrides the router defaults with lenient, system and workers
// query parameters. system may be repeated or comma separated.
func (cr *ConvertRouter) optionsFromQuery(r *http.Request) (converter.Options, error) {
	opts := cr.defaults
	query := r.URL.Query()

	if v := query.Get("lenient"); v != "" {
		lenient, err := strconv.ParseBool(v)
		if err != nil {
			return opts, fmt.Errorf("invalid lenient value %q", v)
		}
		opts.Lenient = lenient
	}

	if v := query.Get("workers"); v != "" {
		workers, err := strconv.Atoi(v)
		if err != nil || workers < 1 {
			return opts, fmt.Errorf("invalid workers value %q", v)
		}
		opts.Workers = workers
	}

	var systems []string
	for _, value := range query["system"] {
		for _, s := range strings.Split(value, ",") {
			if s = strings.TrimSpace(s); s != "" {
				systems = append(systems, s)
			}
		}
	}
	if len(systems) > 0 {
		opts.PrioritySystems = systems
	}

	return opts, nil
}

func errorOutcome(code fhir.IssueType, message string) *fhir.OperationOutcome {
	return &fhir.OperationOutcome{
		ResourceType: "OperationOutcome",
		Issue: []fhir.OperationOutcomeIssue{{
			Severity:    fhir.IssueSeverityError,
			Code:        code,
			Diagnostics: &message,
		}},
	}
}

func respondWithJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/fhir+json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
