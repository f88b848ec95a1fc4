package main

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"
	"github.com/unrolled/secure"

	"github.com/jonwraymond/botops/audit"
	"github.com/jonwraymond/botops/auth"
	"github.com/jonwraymond/botops/gateway"
	"github.com/jonwraymond/botops/health"
	"github.com/jonwraymond/botops/observe"
)

const (
	maxBodyBytes = 1 << 20

	// AdminKeyHeader carries the bootstrap key on administration requests.
	AdminKeyHeader = "X-Admin-Key"
)

func (d *daemon) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(d.secureHeaders())
	r.Use(requestID)
	if n := d.cfg.IPRequestsPerMinute; n > 0 {
		r.Use(httprate.Limit(n, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP)))
	}

	r.Handle("/metrics", d.obs.MetricsHandler())

	r.Route("/v1", func(r chi.Router) {
		r.With(auth.WithAuthHeaders).Post("/tools/{name}", d.handleTool)
		r.Get("/tools", d.handleListTools)
		if d.cfg.Auth.BootstrapKey != "" {
			r.Post("/admin/keys", d.handleCreateKey)
		}
	})

	r.Mount("/", health.Routes(d.health))
	return r
}

func (d *daemon) secureHeaders() func(http.Handler) http.Handler {
	sm := secure.New(secure.Options{
		FrameDeny:             true,
		ContentTypeNosniff:    true,
		BrowserXssFilter:      true,
		ReferrerPolicy:        "no-referrer",
		ContentSecurityPolicy: "default-src 'none'; frame-ancestors 'none'",
	})
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := sm.Process(w, r); err != nil {
				d.log.Warn(r.Context(), "secure headers blocked request", observe.Err(err))
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// requestID carries chi's request id into the audit trail.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := middleware.GetReqID(r.Context()); id != "" {
			r = r.WithContext(audit.WithRequestID(r.Context(), id))
		}
		next.ServeHTTP(w, r)
	})
}

func (d *daemon) handleTool(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		status := http.StatusBadRequest
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		http.Error(w, http.StatusText(status), status)
		return
	}
	if len(body) == 0 {
		body = []byte("{}")
	}

	env := d.gateway.Call(r.Context(), gateway.ToolCall{
		Name:      chi.URLParam(r, "name"),
		Arguments: body,
	})
	if env.Error != nil && env.Error.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(env.Error.RetryAfter))
	}
	writeJSON(w, env.Code().HTTPStatus(), env)
}

func (d *daemon) handleListTools(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"tools": d.gateway.Tools()})
}

type createKeyRequest struct {
	PrincipalID string   `json:"principal_id" validate:"required"`
	Permissions []string `json:"permissions" validate:"required,min=1,dive,required"`
}

type createKeyResponse struct {
	Key          string    `json:"key"`
	CredentialID string    `json:"credential_id"`
	PrincipalID  string    `json:"principal_id"`
	Permissions  []string  `json:"permissions"`
	CreatedAt    time.Time `json:"created_at"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func (d *daemon) handleCreateKey(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ev := audit.Event{RequestID: audit.RequestID(ctx), Action: audit.ActionKeyCreate}

	presented := r.Header.Get(AdminKeyHeader)
	if subtle.ConstantTimeCompare([]byte(presented), []byte(d.cfg.Auth.BootstrapKey)) != 1 {
		ev.Result = audit.ResultDenied
		ev.Code = string(gateway.CodeInvalidCredential)
		d.audit.Log(ev)
		writeError(w, http.StatusUnauthorized, gateway.CodeInvalidCredential, "invalid admin key")
		return
	}

	var req createKeyRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, gateway.CodeInvalidArguments, "invalid JSON body")
		return
	}
	if err := validate.Struct(req); err != nil {
		var fieldErrs validator.ValidationErrors
		msg := "invalid request"
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			msg = fieldErrs[0].Field() + " failed " + fieldErrs[0].Tag()
		}
		writeError(w, http.StatusUnprocessableEntity, gateway.CodeInvalidArguments, msg)
		return
	}

	ev.PrincipalID = req.PrincipalID
	key, err := d.credentials.CreateAPIKey(ctx, req.PrincipalID, req.Permissions)
	if err != nil {
		code := gateway.CodeOf(err)
		if errors.Is(err, auth.ErrInvalidPrincipal) {
			code = gateway.CodeInvalidArguments
		}
		ev.Result = audit.ResultFailure
		ev.Code = string(code)
		d.audit.Log(ev)
		if code == gateway.CodeInternal {
			d.log.Error(ctx, "create api key", observe.Err(err))
			writeError(w, code.HTTPStatus(), code, "internal error")
			return
		}
		writeError(w, code.HTTPStatus(), code, err.Error())
		return
	}

	ev.Result = audit.ResultSuccess
	ev.Details = "credential=" + key.CredentialID
	d.audit.Log(ev)
	writeJSON(w, http.StatusCreated, createKeyResponse{
		Key:          key.Key,
		CredentialID: key.CredentialID,
		PrincipalID:  key.PrincipalID,
		Permissions:  key.Permissions,
		CreatedAt:    key.CreatedAt,
	})
}

func writeError(w http.ResponseWriter, status int, code gateway.Code, msg string) {
	writeJSON(w, status, map[string]any{
		"ok":    false,
		"error": gateway.Error{Code: code, Message: msg},
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
