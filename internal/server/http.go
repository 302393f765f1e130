package server

import (
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"sort"
	"strings"

	"github.com/morezero/standards-console/pkg/actions"
	"github.com/morezero/standards-console/pkg/catalog"
	"github.com/morezero/standards-console/pkg/commsutil"
	"github.com/morezero/standards-console/pkg/settings"
)

const maxSettingsBody = 64 * 1024

// routes builds the HTTP mux.
func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleHome())
	mux.HandleFunc("/health", s.handleHealth())
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ready"})
	})
	mux.Handle("/metrics", s.metrics.Handler())
	mux.HandleFunc("/settings/", s.handleSettings())
	return mux
}

func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), s.cfg.HealthCheckTimeout)
		defer cancel()
		h := s.svc.Health(ctx)
		w.Header().Set("Content-Type", "application/json")
		if h.Status != "healthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(h)
	}
}

// handleSettings serves the preferred columns of a console page:
// GET, PUT and DELETE /settings/<page path>.
func (s *Server) handleSettings() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.prefs == nil {
			http.Error(w, "preferences unavailable", http.StatusServiceUnavailable)
			return
		}
		page := strings.TrimPrefix(r.URL.Path, "/settings")
		if settings.RouteKey(page) == "" {
			http.Error(w, "page path required", http.StatusBadRequest)
			return
		}

		switch r.Method {
		case http.MethodGet:
			cols, ok, err := s.prefs.Preferred(r.Context(), page)
			if err != nil {
				slog.Error(err.Error())
				http.Error(w, "failed to load preferences", http.StatusInternalServerError)
				return
			}
			if !ok {
				http.NotFound(w, r)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(cols)
		case http.MethodPut:
			var cols settings.Columns
			if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSettingsBody)).Decode(&cols); err != nil {
				http.Error(w, "invalid columns", http.StatusBadRequest)
				return
			}
			if err := s.prefs.SavePreferred(r.Context(), page, cols); err != nil {
				slog.Error(err.Error())
				http.Error(w, "failed to save preferences", http.StatusInternalServerError)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		case http.MethodDelete:
			if err := s.prefs.DeletePreferred(r.Context(), page); err != nil {
				slog.Error(err.Error())
				http.Error(w, "failed to delete preferences", http.StatusInternalServerError)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		default:
			w.Header().Set("Allow", "GET, PUT, DELETE")
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	}
}

// homePageTemplate is the HTML for the console home page (white bg, black/blue text).
const homePageTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <title>Standards Console</title>
  <style>
    * { box-sizing: border-box; }
    body { background: #fff; color: #000; font-family: system-ui, sans-serif; margin: 0; padding: 2rem; line-height: 1.5; }
    h1, h2 { color: #0066cc; }
    .status-healthy { color: #0066cc; font-weight: bold; }
    .status-unhealthy { color: #cc0000; font-weight: bold; }
    table { border-collapse: collapse; width: 100%; max-width: 900px; margin-top: 0.5rem; }
    th, td { text-align: left; padding: 0.5rem 0.75rem; border: 1px solid #ccc; }
    th { background: #f0f4f8; color: #0066cc; }
    .meta { color: #333; font-size: 0.9rem; }
    .error { color: #cc0000; }
  </style>
</head>
<body>
  <h1>Standards Console</h1>
  <p>Status: <span class="status-{{.Health.Status}}">{{.Health.Status}}</span>
    <span class="meta">database {{if .Health.Checks.Database}}ok{{else}}down{{end}}, checked {{.Health.Timestamp}}</span></p>
  {{if .CatalogError}}
  <p class="error">Could not load standards: {{.CatalogError}}</p>
  {{else}}
  <p class="meta">Catalog version {{.Version}}, {{.Count}} standards</p>
  {{range .Groups}}
  <section>
    <h2>{{.Category}}</h2>
    <table>
      <tr><th></th><th>Standard</th><th>Label</th><th>Multiple</th><th>Actions</th></tr>
      {{range .Standards}}
      <tr><td class="icon icon-{{.Icon}}">{{.Icon}}</td><td>{{.ID}}</td><td>{{.Label}}</td><td>{{if .Multiple}}yes{{end}}</td><td>{{actions .DisabledFeatures}}</td></tr>
      {{end}}
    </table>
  </section>
  {{end}}
  {{end}}
</body>
</html>
`

type homeGroup struct {
	Category  string
	Standards []catalog.Schema
}

// homeData is the data passed to the home page template.
type homeData struct {
	Health       *commsutil.HealthOutput
	Version      string
	Count        int
	Groups       []homeGroup
	CatalogError string
}

// handleHome returns an HTTP handler for the console home page.
func (s *Server) handleHome() http.HandlerFunc {
	tmpl := template.Must(template.New("home").Funcs(template.FuncMap{
		"actions": availableActions,
	}).Parse(homePageTemplate))
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), s.cfg.HealthCheckTimeout)
		defer cancel()

		data := homeData{Health: s.svc.Health(ctx)}
		snap, err := s.svc.ListStandards(ctx)
		var cat *catalog.Catalog
		if err == nil {
			cat, err = catalog.New(snap)
		}
		if err != nil {
			data.CatalogError = err.Error()
		} else {
			data.Version = cat.Version()
			data.Count = cat.Len()
			data.Groups = groupByCategory(cat)
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := tmpl.Execute(w, data); err != nil {
			slog.Error(fmt.Sprintf("%s - home template: %v", logPrefix, err))
		}
	}
}

// groupByCategory groups the catalog by category, categories sorted, schemas in catalog order.
func groupByCategory(cat *catalog.Catalog) []homeGroup {
	var groups []homeGroup
	for name, schemas := range cat.ByCategory() {
		if name == "" {
			name = "Uncategorized"
		}
		groups = append(groups, homeGroup{Category: name, Standards: schemas})
	}
	sort.Slice(groups, func(a, b int) bool { return groups[a].Category < groups[b].Category })
	return groups
}

// availableActions lists the labels of the operations a schema permits.
func availableActions(disabled map[string]bool) string {
	labels := []string{}
	for _, a := range actions.Available(disabled) {
		labels = append(labels, a.Label)
	}
	return strings.Join(labels, ", ")
}
