package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/dvloznov/statement-extractor/internal/api/middleware"
)

// Routes groups the handlers served by NewRouter. Jobs and Metrics are
// optional; their endpoints are not registered when nil.
type Routes struct {
	Statements *StatementsHandler
	Jobs       *JobsHandler
	Categories *CategoriesHandler
	Metrics    http.Handler
}

// NewRouter registers the API endpoints on a new mux.
func NewRouter(rt Routes) *http.ServeMux {
	mux := http.NewServeMux()

	// Statements endpoints
	mux.HandleFunc("/api/statements", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			rt.Statements.Upload(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/pending/", func(w http.ResponseWriter, r *http.Request) {
		rest := strings.TrimPrefix(r.URL.Path, "/api/pending/")
		uploadID, action, _ := strings.Cut(rest, "/")
		if uploadID == "" {
			middleware.WriteError(w, http.StatusBadRequest, "Upload ID is required")
			return
		}

		switch {
		case action == "" && r.Method == http.MethodGet:
			rt.Statements.GetPending(w, r, uploadID)
		case action == "" && r.Method == http.MethodDelete:
			rt.Statements.Discard(w, r, uploadID)
		case action == "confirm" && r.Method == http.MethodPost:
			rt.Statements.Confirm(w, r, uploadID)
		case action != "" && action != "confirm":
			middleware.WriteError(w, http.StatusNotFound, "Not found")
		default:
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	// Categories endpoints
	mux.HandleFunc("/api/categories", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			rt.Categories.ListCategories(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	// Jobs endpoints
	if rt.Jobs != nil {
		mux.HandleFunc("/api/statements/jobs", func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodPost {
				rt.Jobs.Enqueue(w, r)
			} else {
				middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
			}
		})

		mux.HandleFunc("/api/jobs", func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodGet {
				rt.Jobs.ListJobs(w, r)
			} else {
				middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
			}
		})

		mux.HandleFunc("/api/jobs/", func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodGet {
				jobID := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
				if jobID == "" {
					middleware.WriteError(w, http.StatusBadRequest, "Job ID is required")
					return
				}
				rt.Jobs.GetJob(w, r, jobID)
			} else {
				middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
			}
		})
	}

	if rt.Metrics != nil {
		mux.Handle("/metrics", rt.Metrics)
	}

	// Health check endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	return mux
}
