package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"escrowline/internal/engine"
	"escrowline/internal/lifecycle"
	"escrowline/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   *engine.Engine
	Repo     repo.Repo
	BasePath string
	Auth     AuthConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"identity_mismatch"`
	Message string         `json:"message" example:"acting identity is not a recipient"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the escrowline API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.Engine.Config.Actor.Principal))
	hcfg := huma.DefaultConfig("Escrowline API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerHealth(group)
	registerTransactions(group, cfg.Engine)
	registerActions(group, cfg.Engine)
	registerAudit(group, cfg.Repo)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, repo.ErrNotFound):
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	case errors.Is(err, engine.ErrActionInFlight), errors.Is(err, engine.ErrFetchInFlight):
		return newAPIError(http.StatusConflict, "in_flight", err.Error(), nil)
	case errors.Is(err, engine.ErrRecipientNotFound):
		return newAPIError(http.StatusForbidden, "identity_mismatch", err.Error(), nil)
	default:
		return newAPIError(http.StatusBadGateway, "ledger_error", err.Error(), nil)
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerTransactions(api huma.API, e *engine.Engine) {
	resolver := lifecycle.Resolver{LegacyOwnerPrefix: e.Config.Compat.LegacyOwnerPrefix}

	huma.Register(api, huma.Operation{
		OperationID: "list-transactions",
		Method:      http.MethodGet,
		Path:        "/transactions",
		Summary:     "List transactions with derived view state",
	}, func(ctx context.Context, input *struct {
		Sync   bool `query:"sync" doc:"Pull a fresh page from the ledger before listing"`
		Offset int  `query:"offset"`
		Limit  int  `query:"limit"`
	}) (*struct {
		Body TransactionListResponse `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if input.Sync {
			limit := input.Limit
			if limit <= 0 {
				limit = 50
			}
			if _, err := e.Sync(ctx, actor, input.Offset, limit); err != nil {
				return nil, handleError(err)
			}
		}
		now := time.Now()
		items := []TransactionView{}
		for _, t := range e.Store.List() {
			items = append(items, viewOf(t, actor, resolver, now))
		}
		return &struct {
			Body TransactionListResponse `json:"body"`
		}{Body: TransactionListResponse{Items: items}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-transaction",
		Method:      http.MethodGet,
		Path:        "/transactions/{id}",
		Summary:     "Get one transaction with derived view state",
		Errors:      []int{http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ID      string `path:"id"`
		Refresh bool   `query:"refresh" doc:"Re-read from the ledger instead of the local store"`
	}) (*struct {
		Body TransactionView `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, ok := e.Store.Get(input.ID)
		if input.Refresh || !ok {
			fresh, err := e.Fetch(ctx, actor, input.ID)
			if err != nil {
				if !ok {
					return nil, handleError(err)
				}
			} else {
				t = fresh
			}
		}
		return &struct {
			Body TransactionView `json:"body"`
		}{Body: viewOf(t, actor, resolver, time.Now())}, nil
	})
}

func registerActions(api huma.API, e *engine.Engine) {
	type actionInput struct {
		ID string `path:"id"`
	}
	type actionOutput struct {
		Body ActionResponse `json:"body"`
	}
	register := func(name, summary string, run func(ctx context.Context, actor, id string) (engine.Outcome, error)) {
		huma.Register(api, huma.Operation{
			OperationID: name + "-transaction",
			Method:      http.MethodPost,
			Path:        "/transactions/{id}/" + name,
			Summary:     summary,
			Errors:      []int{http.StatusForbidden, http.StatusConflict, http.StatusBadGateway},
		}, func(ctx context.Context, input *actionInput) (*actionOutput, error) {
			actor, authErr := actorFromContext(ctx)
			if authErr != nil {
				return nil, authErr
			}
			out, err := run(ctx, actor, input.ID)
			if err != nil && out.Transaction.ID == "" {
				// No reconciled state to report; surface the failure.
				return nil, handleError(err)
			}
			return &actionOutput{Body: actionResponse(out, err)}, nil
		})
	}
	register("release", "Release escrowed funds", e.Release)
	register("cancel", "Cancel a pending escrow", e.Cancel)
	register("refund", "Refund escrowed funds to the sender", e.Refund)
	register("approve", "Approve as a recipient", e.Approve)
	register("decline", "Decline as a recipient", e.Decline)
}

func registerAudit(api huma.API, r repo.Repo) {
	huma.Register(api, huma.Operation{
		OperationID: "list-audit-events",
		Method:      http.MethodGet,
		Path:        "/audit",
		Summary:     "Tail the action audit log",
	}, func(ctx context.Context, input *struct {
		Limit         int    `query:"limit"`
		TransactionID string `query:"transaction_id"`
	}) (*struct {
		Body struct {
			Items []repo.AuditEvent `json:"items"`
		} `json:"body"`
	}, error) {
		if _, authErr := actorFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		items, err := r.LatestAuditEvents(ctx, input.Limit, input.TransactionID)
		if err != nil {
			return nil, handleError(err)
		}
		out := &struct {
			Body struct {
				Items []repo.AuditEvent `json:"items"`
			} `json:"body"`
		}{}
		out.Body.Items = items
		return out, nil
	})
}
