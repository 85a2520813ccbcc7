// internal/adapters/http_server/handlers.go
package httpserver

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"rental_api/internal/adapters/observability"
	"rental_api/internal/app"
	"rental_api/internal/domain"
)

const maxBodyBytes = 1 << 20

type Handlers struct {
	Banners   *app.BannerService
	JWTSecret []byte
	Limiter   Limiter          // nil disables rate limiting
	Now       func() time.Time // nil means time.Now
}

type problem struct {
	Type       string                  `json:"type"`
	Title      string                  `json:"title"`
	Status     int                     `json:"status"`
	Detail     string                  `json:"detail,omitempty"`
	Violations []domain.FieldViolation `json:"violations,omitempty"`
}

type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

func (s *Server) MountHandlers(h *Handlers) {
	s.mux.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); _, _ = w.Write([]byte("ok")) })

	auth := Authenticate(h.JWTSecret)
	managers := RequireRole(RoleManager)
	admins := RequireRole(RoleAdmin)
	limit := RateLimit(h.Limiter)

	s.mux.Route("/v1/banners", func(r chi.Router) {
		r.Get("/", h.listBanners)
		r.Get("/active/{location}", h.activeBanners)
		r.With(auth, managers).Post("/", h.createBanner)
		r.With(auth, admins).Put("/reorder", h.reorderBanners)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.getBanner)
			r.With(auth, managers).Put("/", h.updateBanner)
			r.With(auth, admins).Delete("/", h.deleteBanner)
			r.With(auth, managers).Patch("/toggle", h.toggleBanner)
			r.With(auth, managers).Get("/analytics", h.bannerAnalytics)
			r.With(limit).Post("/impression", h.recordImpression)
			r.With(limit).Post("/click", h.recordClick)
		})
	})
}

func (h *Handlers) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

func writeProblem(w http.ResponseWriter, status int, title, detail string) {
	writeProblemBody(w, problem{Type: "about:blank", Title: title, Status: status, Detail: detail})
}

func writeProblemBody(w http.ResponseWriter, p problem) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(p.Status)
	if err := json.NewEncoder(w).Encode(p); err != nil {
		log.Error().Err(err).Msg("write JSON problem response failed")
	}
}

// writeError maps service errors onto problem responses. Store failures are
// logged here and never leak their cause to the client.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var ve *domain.ValidationError
	switch {
	case errors.As(err, &ve):
		writeProblemBody(w, problem{
			Type: "about:blank", Title: "Validation Failed", Status: http.StatusBadRequest,
			Detail: ve.Error(), Violations: ve.Fields,
		})
	case errors.Is(err, domain.ErrNotFound):
		writeProblem(w, http.StatusNotFound, "Not Found", "banner not found")
	default:
		log.Error().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Msg("request failed")
		writeProblem(w, http.StatusInternalServerError, "Internal Server Error", "an unexpected error occurred")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("write JSON response failed")
	}
}

// calcETagAndBody marshals once and hashes once, returning both ETag and body.
func calcETagAndBody(v any) (string, []byte) {
	body, err := json.Marshal(v)
	if err != nil {
		// Log but don't fail the whole response; return empty ETag and best-effort body.
		log.Error().Err(err).Msg("failed to marshal object for ETag/body")
		return "", nil
	}
	sum := sha1.Sum(body)
	etag := `W/"` + hex.EncodeToString(sum[:]) + `"`
	return etag, body
}

// writeCached writes a GET payload with a weak ETag, short-circuiting to 304
// when the client already holds this version.
func writeCached(w http.ResponseWriter, r *http.Request, v any) {
	etag, body := calcETagAndBody(envelope{Success: true, Data: v})
	if inm := r.Header.Get("If-None-Match"); inm != "" && inm == etag {
		w.Header().Set("ETag", etag)
		w.WriteHeader(http.StatusNotModified)
		return
	}

	if etag != "" {
		w.Header().Set("ETag", etag)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		log.Error().Err(err).Str("path", r.URL.Path).Msg("failed to write body")
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeProblem(w, http.StatusBadRequest, "Malformed JSON", err.Error())
		return false
	}
	return true
}

func (h *Handlers) listBanners(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f, err := parseFilter(q)
	if err != nil {
		writeError(w, r, err)
		return
	}

	page := 1
	if ps := q.Get("page"); ps != "" {
		p, err := strconv.Atoi(ps)
		if err != nil || p < 1 {
			writeProblem(w, http.StatusBadRequest, "Invalid page", "page must be a positive integer")
			return
		}
		page = p
	}
	limit := app.DefaultPageSize
	if ls := q.Get("limit"); ls != "" {
		l, err := strconv.Atoi(ls)
		if err != nil || l <= 0 || l > app.MaxPageSize {
			writeProblem(w, http.StatusBadRequest, "Invalid limit",
				fmt.Sprintf("limit must be an integer between 1 and %d", app.MaxPageSize))
			return
		}
		limit = l
	}

	out, err := h.Banners.List(r.Context(), f, page, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeCached(w, r, out)
}

func parseFilter(q url.Values) (domain.BannerFilter, error) {
	var f domain.BannerFilter
	if v := q.Get("active"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return f, domain.Invalid("active", "boolean", "active must be true or false")
		}
		f.IsActive = &b
	}
	if v := q.Get("category"); v != "" {
		c := domain.Category(v)
		if !c.Valid() {
			return f, domain.Invalid("category", "oneof", fmt.Sprintf("unknown category %q", v))
		}
		f.Category = &c
	}
	if v := q.Get("targetAudience"); v != "" {
		a := domain.Audience(v)
		if !a.Valid() {
			return f, domain.Invalid("targetAudience", "oneof", fmt.Sprintf("unknown audience %q", v))
		}
		f.TargetAudience = &a
	}
	if v := q.Get("displayLocation"); v != "" {
		l := domain.Location(v)
		if !l.Valid() {
			return f, domain.Invalid("displayLocation", "oneof", fmt.Sprintf("unknown display location %q", v))
		}
		f.Location = &l
	}
	for _, p := range []struct {
		key string
		dst **time.Time
	}{{"startDateFrom", &f.StartFrom}, {"startDateTo", &f.StartTo}} {
		v := q.Get(p.key)
		if v == "" {
			continue
		}
		t, err := app.ParseDate(v)
		if err != nil {
			return f, domain.Invalid(p.key, "isodate", p.key+" must be an ISO 8601 date")
		}
		*p.dst = &t
	}
	return f, nil
}

func (h *Handlers) activeBanners(w http.ResponseWriter, r *http.Request) {
	loc := domain.Location(chi.URLParam(r, "location"))
	out, err := h.Banners.ActiveFor(r.Context(), loc, h.now())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeCached(w, r, out)
}

func (h *Handlers) getBanner(w http.ResponseWriter, r *http.Request) {
	b, err := h.Banners.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeCached(w, r, b)
}

func (h *Handlers) createBanner(w http.ResponseWriter, r *http.Request) {
	var in app.CreateBannerInput
	if !decodeBody(w, r, &in) {
		return
	}
	id, _ := IdentityFrom(r.Context())
	b, err := h.Banners.Create(r.Context(), in, id.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, envelope{Success: true, Message: "Banner created successfully", Data: b})
}

func (h *Handlers) updateBanner(w http.ResponseWriter, r *http.Request) {
	var in app.UpdateBannerInput
	if !decodeBody(w, r, &in) {
		return
	}
	b, err := h.Banners.Update(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Message: "Banner updated successfully", Data: b})
}

func (h *Handlers) deleteBanner(w http.ResponseWriter, r *http.Request) {
	if err := h.Banners.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Message: "Banner deleted successfully"})
}

func (h *Handlers) toggleBanner(w http.ResponseWriter, r *http.Request) {
	b, state, err := h.Banners.ToggleActive(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	observability.ObserveBannerEvent("toggle")
	writeJSON(w, http.StatusOK, envelope{Success: true, Message: "Banner " + state + " successfully", Data: b})
}

func (h *Handlers) bannerAnalytics(w http.ResponseWriter, r *http.Request) {
	a, err := h.Banners.Analytics(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeCached(w, r, a)
}

func (h *Handlers) recordImpression(w http.ResponseWriter, r *http.Request) {
	if err := h.Banners.RecordImpression(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	observability.ObserveBannerEvent("impressions")
	writeJSON(w, http.StatusOK, envelope{Success: true, Message: "Impression recorded"})
}

func (h *Handlers) recordClick(w http.ResponseWriter, r *http.Request) {
	if err := h.Banners.RecordClick(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	observability.ObserveBannerEvent("clicks")
	writeJSON(w, http.StatusOK, envelope{Success: true, Message: "Click recorded"})
}

type reorderRequest struct {
	Banners []domain.OrderUpdate `json:"banners"`
}

func (h *Handlers) reorderBanners(w http.ResponseWriter, r *http.Request) {
	var req reorderRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.Banners.Reorder(r.Context(), req.Banners); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Message: "Banners reordered successfully"})
}
