package httpapi

import (
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// Router 使用标准库 http.ServeMux（避免引入第三方路由依赖）
type Router struct {
	mux    *http.ServeMux
	logger *zap.Logger
}

func NewRouter(logger *zap.Logger) *Router {
	return &Router{
		mux:    http.NewServeMux(),
		logger: logger,
	}
}

func (r *Router) Handle(pattern string, h http.HandlerFunc) {
	r.mux.HandleFunc(pattern, h)
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// RegisterPatientRoutes 病患 CRUD 路由
func (r *Router) RegisterPatientRoutes(m *Middleware, h *PatientHandler) {
	r.Handle("/api/v1/patients", m.Wrap(func(w http.ResponseWriter, req *http.Request, scope *RequestScope) {
		switch req.Method {
		case http.MethodGet:
			h.List(w, req, scope)
		case http.MethodPost:
			h.Create(w, req, scope)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	}))

	r.Handle("/api/v1/patients/search", m.Wrap(func(w http.ResponseWriter, req *http.Request, scope *RequestScope) {
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.Search(w, req, scope)
	}))

	// /{id} 与 /{id}/reveal
	r.Handle("/api/v1/patients/", m.Wrap(func(w http.ResponseWriter, req *http.Request, scope *RequestScope) {
		parts := strings.Split(strings.TrimPrefix(req.URL.Path, "/api/v1/patients/"), "/")
		if parts[0] == "" || len(parts) > 2 {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		id := parts[0]

		if len(parts) == 2 {
			if parts[1] != "reveal" {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			if req.Method != http.MethodGet {
				w.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			h.Reveal(w, req, scope, id)
			return
		}

		switch req.Method {
		case http.MethodGet:
			h.Get(w, req, scope, id)
		case http.MethodPut:
			h.Update(w, req, scope, id)
		case http.MethodDelete:
			h.Delete(w, req, scope, id)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	}))
}

// RegisterHealthRoute 存活探针
func (r *Router) RegisterHealthRoute() {
	r.Handle("/healthz", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, Ok(map[string]string{"status": "ok"}))
	})
}
