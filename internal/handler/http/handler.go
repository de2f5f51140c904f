// Package http serves the command and mutation API: sessions, templates,
// tenant and channel configuration. Authentication is a session cookie; the
// interaction webhook mounts alongside with its own signature check.
package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/gamenight/scheduler/internal/service"
)

type API struct {
	sessions *service.SessionService
	admin    *service.AdminService
	auth     *service.AuthService
	names    *service.NameResolver
	logger   *slog.Logger
}

func NewAPI(sessions *service.SessionService, admin *service.AdminService, auth *service.AuthService, names *service.NameResolver, logger *slog.Logger) *API {
	return &API{
		sessions: sessions,
		admin:    admin,
		auth:     auth,
		names:    names,
		logger:   logger.With("component", "http"),
	}
}

// Mount attaches the authenticated API under /api/v1.
func (a *API) Mount(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(chimiddleware.RequestID)
		r.Use(withAuth(a.auth, a.logger))

		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", a.createSession)
			r.Route("/{sessionID}", func(r chi.Router) {
				r.Get("/", a.getSession)
				r.Patch("/", a.updateSession)
				r.Delete("/", a.deleteSession)
				r.Post("/cancel", a.cancelSession)
				r.Delete("/participants/{userID}", a.removeParticipant)
			})
		})

		r.Route("/tenants/{tenantID}", func(r chi.Router) {
			r.Get("/sessions", a.listSessions)
			r.Get("/config", a.getTenantConfig)
			r.Patch("/config", a.updateTenantConfig)
			r.Put("/channels", a.upsertChannel)

			r.Route("/templates", func(r chi.Router) {
				r.Get("/", a.listTemplates)
				r.Post("/", a.createTemplate)
				r.Patch("/{templateID}", a.updateTemplate)
				r.Delete("/{templateID}", a.deleteTemplate)
			})
		})
	})
}

// ---- sessions ----

func (a *API) createSession(w http.ResponseWriter, r *http.Request) {
	var in service.CreateSessionInput
	if !decode(w, r, a.logger, &in) {
		return
	}
	sess, err := a.sessions.Create(r.Context(), principalFrom(r), in)
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, toSessionResponse(sess))
}

func (a *API) getSession(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, a.logger, "sessionID")
	if !ok {
		return
	}
	sess, tenant, entries, err := a.sessions.Get(r.Context(), principalFrom(r), id)
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	// Roster rows carry no names for real users; resolve them live.
	nameFor := func(userExternalID int64) string {
		return a.names.Resolve(r.Context(), tenant.ExternalID, userExternalID)
	}
	writeJSON(w, http.StatusOK, toDetailResponse(sess, entries, nameFor))
}

func (a *API) updateSession(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, a.logger, "sessionID")
	if !ok {
		return
	}
	var in service.UpdateSessionInput
	if !decode(w, r, a.logger, &in) {
		return
	}
	sess, err := a.sessions.Update(r.Context(), principalFrom(r), id, in)
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(sess))
}

func (a *API) deleteSession(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, a.logger, "sessionID")
	if !ok {
		return
	}
	if err := a.sessions.Delete(r.Context(), principalFrom(r), id); err != nil {
		writeError(w, a.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) cancelSession(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, a.logger, "sessionID")
	if !ok {
		return
	}
	if err := a.sessions.Cancel(r.Context(), principalFrom(r), id); err != nil {
		writeError(w, a.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) removeParticipant(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := pathUUID(w, r, a.logger, "sessionID")
	if !ok {
		return
	}
	userID, ok := pathUUID(w, r, a.logger, "userID")
	if !ok {
		return
	}
	if err := a.sessions.RemoveParticipant(r.Context(), principalFrom(r), sessionID, userID); err != nil {
		writeError(w, a.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) listSessions(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := pathTenant(w, r, a.logger)
	if !ok {
		return
	}
	includeFinished := r.URL.Query().Get("include_finished") == "true"
	sessions, err := a.sessions.List(r.Context(), principalFrom(r), tenantID, includeFinished)
	if err != nil {
		writeError(w, a.logger, err)
		return
	}

	var channelID *uuid.UUID
	if raw := r.URL.Query().Get("channel_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			writeError(w, a.logger, service.Invalid("malformed channel_id", nil))
			return
		}
		channelID = &id
	}

	out := make([]sessionResponse, 0, len(sessions))
	for i := range sessions {
		if channelID != nil && sessions[i].ChannelID != *channelID {
			continue
		}
		out = append(out, toSessionResponse(&sessions[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": out})
}

// ---- tenant administration ----

func (a *API) getTenantConfig(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := pathTenant(w, r, a.logger)
	if !ok {
		return
	}
	tenant, err := a.admin.GetTenantConfig(r.Context(), principalFrom(r), tenantID)
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toTenantResponse(tenant))
}

func (a *API) updateTenantConfig(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := pathTenant(w, r, a.logger)
	if !ok {
		return
	}
	var in service.TenantConfigInput
	if !decode(w, r, a.logger, &in) {
		return
	}
	tenant, err := a.admin.UpdateTenantConfig(r.Context(), principalFrom(r), tenantID, in)
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toTenantResponse(tenant))
}

func (a *API) upsertChannel(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := pathTenant(w, r, a.logger)
	if !ok {
		return
	}
	var in service.ChannelInput
	if !decode(w, r, a.logger, &in) {
		return
	}
	channel, err := a.admin.UpsertChannel(r.Context(), principalFrom(r), tenantID, in)
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toChannelResponse(channel))
}

// ---- templates ----

func (a *API) listTemplates(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := pathTenant(w, r, a.logger)
	if !ok {
		return
	}
	templates, err := a.admin.ListTemplates(r.Context(), principalFrom(r), tenantID)
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	out := make([]templateResponse, 0, len(templates))
	for i := range templates {
		out = append(out, toTemplateResponse(&templates[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{"templates": out})
}

func (a *API) createTemplate(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := pathTenant(w, r, a.logger)
	if !ok {
		return
	}
	var in service.TemplateInput
	if !decode(w, r, a.logger, &in) {
		return
	}
	tpl, err := a.admin.CreateTemplate(r.Context(), principalFrom(r), tenantID, in)
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTemplateResponse(tpl))
}

func (a *API) updateTemplate(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := pathTenant(w, r, a.logger)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, a.logger, "templateID")
	if !ok {
		return
	}
	var in service.TemplateInput
	if !decode(w, r, a.logger, &in) {
		return
	}
	tpl, err := a.admin.UpdateTemplate(r.Context(), principalFrom(r), tenantID, id, in)
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toTemplateResponse(tpl))
}

func (a *API) deleteTemplate(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := pathTenant(w, r, a.logger)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, a.logger, "templateID")
	if !ok {
		return
	}
	if err := a.admin.DeleteTemplate(r.Context(), principalFrom(r), tenantID, id); err != nil {
		writeError(w, a.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ---- request plumbing ----

func decode(w http.ResponseWriter, r *http.Request, logger *slog.Logger, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, logger, service.Invalid("malformed request body", nil))
		return false
	}
	return true
}

func pathUUID(w http.ResponseWriter, r *http.Request, logger *slog.Logger, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, param))
	if err != nil {
		writeError(w, logger, service.Invalid("malformed "+param, nil))
		return uuid.Nil, false
	}
	return id, true
}

func pathTenant(w http.ResponseWriter, r *http.Request, logger *slog.Logger) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "tenantID"), 10, 64)
	if err != nil {
		writeError(w, logger, service.Invalid("malformed tenantID", nil))
		return 0, false
	}
	return id, true
}
