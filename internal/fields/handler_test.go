package fields

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	appctx "github.com/welldanyogia/fieldguard/internal/context"
)

// withOwner stands in for the auth middleware; uuid.Nil leaves the request anonymous
func withOwner(ownerID uuid.UUID) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if ownerID != uuid.Nil {
				r = r.WithContext(appctx.WithOwnerID(r.Context(), ownerID))
			}
			next.ServeHTTP(w, r)
		})
	}
}

func newTestRouter(t *testing.T, ownerID uuid.UUID) (http.Handler, *MockFieldRepository) {
	svc, repo := newTestService(t)
	r := chi.NewRouter()
	r.Route("/api/v1", func(r chi.Router) {
		RegisterRoutes(r, NewHandler(svc, nil), withOwner(ownerID))
	})
	return r, repo
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string              `json:"code"`
		Details map[string][]string `json:"details"`
	} `json:"error"`
}

func do(t *testing.T, h http.Handler, method, path, body string) (int, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("%s %s: invalid JSON response %q: %v", method, path, rec.Body.String(), err)
	}
	return rec.Code, env
}

func TestHandler_FieldLifecycle(t *testing.T) {
	router, _ := newTestRouter(t, uuid.New())

	code, env := do(t, router, "PUT", "/api/v1/fields/date_of_birth", `{"value":"1990-04-01"}`)
	if code != http.StatusOK || !env.Success {
		t.Fatalf("PUT: expected 200, got %d %+v", code, env.Error)
	}

	code, env = do(t, router, "GET", "/api/v1/fields/date_of_birth", "")
	if code != http.StatusOK {
		t.Fatalf("GET: expected 200, got %d", code)
	}
	var field FieldResponse
	json.Unmarshal(env.Data, &field)
	if field.Value != "1990-04-01" || !field.Readable {
		t.Errorf("unexpected field %+v", field)
	}

	code, env = do(t, router, "GET", "/api/v1/fields", "")
	if code != http.StatusOK {
		t.Fatalf("LIST: expected 200, got %d", code)
	}
	var list ListFieldsResponse
	json.Unmarshal(env.Data, &list)
	if len(list.Fields) != 1 || list.Fields[0].Name != "date_of_birth" {
		t.Errorf("unexpected list %+v", list)
	}

	if code, _ = do(t, router, "DELETE", "/api/v1/fields/date_of_birth", ""); code != http.StatusOK {
		t.Fatalf("DELETE: expected 200, got %d", code)
	}
	code, env = do(t, router, "GET", "/api/v1/fields/date_of_birth", "")
	if code != http.StatusNotFound || env.Error == nil || env.Error.Code != "NOT_FOUND" {
		t.Errorf("expected NOT_FOUND after delete, got %d %+v", code, env.Error)
	}
}

func TestHandler_UnreadableFieldIsNull(t *testing.T) {
	owner := uuid.New()
	router, repo := newTestRouter(t, owner)

	do(t, router, "PUT", "/api/v1/fields/phone", `{"value":"0812"}`)
	repo.setBlob(owner, "phone", "not-a-valid-blob")

	code, env := do(t, router, "GET", "/api/v1/fields/phone", "")
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	var raw map[string]json.RawMessage
	json.Unmarshal(env.Data, &raw)
	if string(raw["value"]) != "null" || string(raw["readable"]) != "false" {
		t.Errorf("expected null unreadable value, got %s", env.Data)
	}
}

func TestHandler_Validation(t *testing.T) {
	router, _ := newTestRouter(t, uuid.New())

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		field  string
	}{
		{"missing value", "PUT", "/api/v1/fields/phone", `{}`, "value"},
		{"bad json", "PUT", "/api/v1/fields/phone", `{`, ""},
		{"bad name", "PUT", "/api/v1/fields/Phone", `{"value":1}`, "name"},
		{"bad name on get", "GET", "/api/v1/fields/no-dashes", "", "name"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, env := do(t, router, tt.method, tt.path, tt.body)
			if code != http.StatusBadRequest || env.Error == nil || env.Error.Code != "VALIDATION_ERROR" {
				t.Fatalf("expected VALIDATION_ERROR, got %d %+v", code, env.Error)
			}
			if tt.field != "" {
				if _, ok := env.Error.Details[tt.field]; !ok {
					t.Errorf("expected details for %q, got %v", tt.field, env.Error.Details)
				}
			}
		})
	}
}

func TestHandler_RequiresOwner(t *testing.T) {
	router, _ := newTestRouter(t, uuid.Nil)

	code, env := do(t, router, "GET", "/api/v1/fields", "")
	if code != http.StatusUnauthorized || env.Error.Code != "AUTH_TOKEN_INVALID" {
		t.Errorf("expected 401 AUTH_TOKEN_INVALID, got %d %+v", code, env.Error)
	}
}
