package posting

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"kakizome/middleware/identity"
	"kakizome/middleware/ratelimit"
	"kakizome/posting/application"
	"kakizome/posting/domain"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const maxBodyBytes = 4 << 10

type handler struct {
	svc     application.Service
	address ratelimit.AddressFunc
	log     *zap.Logger
}

type upsertRequest struct {
	DisplayName *string `json:"display_name"`
	// UserName é o nome antigo do campo, ainda enviado pelo frontend.
	UserName *string `json:"user_name"`
	Content  string  `json:"content"`
}

func (req upsertRequest) name() string {
	if req.DisplayName != nil {
		return *req.DisplayName
	}
	if req.UserName != nil {
		return *req.UserName
	}
	return ""
}

func (h handler) upsert(w http.ResponseWriter, r *http.Request) {
	id, ok := identity.FromContext(r.Context())
	if !ok {
		h.writeError(w, domain.ErrInternal)
		return
	}

	var req upsertRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		h.writeError(w, &domain.ValidationError{Message: "Invalid JSON body"})
		return
	}

	addr := h.address(r)
	p, err := h.svc.Upsert(r.Context(), application.UpsertInput{
		Identity:    id.ID,
		DisplayName: req.name(),
		Content:     req.Content,
		Address:     addr,
		Diagnostics: &domain.Diagnostics{
			SourceAddress:  addr,
			UserAgent:      r.UserAgent(),
			AcceptLanguage: r.Header.Get("Accept-Language"),
		},
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h handler) list(w http.ResponseWriter, r *http.Request) {
	viewer := uuid.Nil
	if id, ok := identity.FromContext(r.Context()); ok {
		viewer = id.ID
	}

	list, err := h.svc.List(r.Context(), viewer, h.address(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// get e delete ignoram o segmento {id}: agem sempre sobre a identidade do cookie
// ("me" é o valor usado pelo frontend).
func (h handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := identity.FromContext(r.Context())
	if !ok {
		h.writeError(w, domain.ErrInternal)
		return
	}

	p, err := h.svc.Get(r.Context(), id.ID, h.address(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h handler) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := identity.FromContext(r.Context())
	if !ok {
		h.writeError(w, domain.ErrInternal)
		return
	}

	if err := h.svc.Delete(r.Context(), id.ID, h.address(r)); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h handler) writeError(w http.ResponseWriter, err error) {
	var (
		validation *domain.ValidationError
		limited    *domain.RateLimitedError
		storage    *domain.StorageError
	)
	switch {
	case errors.As(err, &validation):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: validation.Message})
	case errors.As(err, &limited):
		if limited.RetryAfterSeconds > 0 {
			w.Header().Set("Retry-After", formatInt(limited.RetryAfterSeconds))
		}
		writeJSON(w, http.StatusTooManyRequests, errorBody{Error: "Too Many Requests"})
	case errors.Is(err, domain.ErrRateLimited):
		writeJSON(w, http.StatusTooManyRequests, errorBody{Error: "Too Many Requests"})
	case errors.Is(err, domain.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: "Resource Not Found"})
	case errors.As(err, &storage), errors.Is(err, domain.ErrInternal):
		// detalhe do storage já foi logado pelo serviço
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "Internal Server Error"})
	default:
		h.log.Error("unclassified error", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "Internal Server Error"})
	}
}

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
