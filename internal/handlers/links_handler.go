package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/shaibs3/LinkWatch/internal/classify"
	"github.com/shaibs3/LinkWatch/internal/export"
	"github.com/shaibs3/LinkWatch/internal/linkstore"
	"github.com/shaibs3/LinkWatch/internal/recheck"
	"github.com/shaibs3/LinkWatch/internal/scanner"
)

// LinksHandler exposes link queries, single and bulk link actions, redirect
// rules and export.
type LinksHandler struct {
	store   linkstore.Store
	scanner *scanner.Scanner
	recheck *recheck.Runner
}

func NewLinksHandler(store linkstore.Store, sc *scanner.Scanner, rr *recheck.Runner) *LinksHandler {
	return &LinksHandler{store: store, scanner: sc, recheck: rr}
}

// RegisterRoutes registers the routes for this handler
func (h *LinksHandler) RegisterRoutes(router *mux.Router, logger *zap.Logger) {
	router.HandleFunc("/v1/links", h.handleList).Methods("GET")
	router.HandleFunc("/v1/links/export", h.handleExport).Methods("GET")
	router.HandleFunc("/v1/links/bulk", h.handleBulk).Methods("POST")
	router.HandleFunc("/v1/links/recheck-batch", h.handleRecheckBatch).Methods("POST")
	router.HandleFunc("/v1/links/{id:[0-9]+}", h.handleDelete).Methods("DELETE")
	router.HandleFunc("/v1/links/{id:[0-9]+}/recheck", h.handleRecheckOne).Methods("POST")
	router.HandleFunc("/v1/links/{id:[0-9]+}/dismiss", h.handleDismiss(true)).Methods("POST")
	router.HandleFunc("/v1/links/{id:[0-9]+}/undismiss", h.handleDismiss(false)).Methods("POST")
	router.HandleFunc("/v1/links/{id:[0-9]+}/replace", h.handleReplace).Methods("POST")
	router.HandleFunc("/v1/links/{id:[0-9]+}/unlink", h.handleUnlink).Methods("POST")
	router.HandleFunc("/v1/stats", h.handleStats).Methods("GET")
	router.HandleFunc("/v1/redirects", h.handleListRules).Methods("GET")
	router.HandleFunc("/v1/redirects", h.handlePutRule).Methods("POST")
	router.HandleFunc("/v1/redirects/{id:[0-9]+}", h.handleDeleteRule).Methods("DELETE")
}

// filterFromQuery parses the recognized filter surface. Unknown sort keys
// are rejected downstream by the allow-list.
func filterFromQuery(req *http.Request) (linkstore.LinkFilter, error) {
	q := req.URL.Query()
	f := linkstore.LinkFilter{
		Status:   q.Get("status"),
		LinkType: classify.LinkType(q.Get("link_type")),
		Search:   q.Get("search"),
		SortBy:   q.Get("sort"),
		SortDesc: q.Get("order") == "desc",
	}

	switch f.Status {
	case "", linkstore.FilterStatusAll, linkstore.FilterStatusBroken,
		linkstore.FilterStatusWarning, linkstore.FilterStatusWorking,
		linkstore.FilterStatusSkipped, linkstore.FilterStatusDismissed:
	default:
		return f, errors.New("unknown status filter: " + f.Status)
	}

	if v := q.Get("checked_from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, errors.New("checked_from must be RFC3339")
		}
		f.CheckedFrom = &t
	}
	if v := q.Get("checked_to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, errors.New("checked_to must be RFC3339")
		}
		f.CheckedTo = &t
	}
	if v := q.Get("status_code"); v != "" {
		code, err := strconv.Atoi(v)
		if err != nil {
			return f, errors.New("status_code must be an integer")
		}
		f.StatusCode = &code
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return f, errors.New("limit must be a non-negative integer")
		}
		f.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return f, errors.New("offset must be a non-negative integer")
		}
		f.Offset = n
	}
	return f, nil
}

func (h *LinksHandler) handleList(w http.ResponseWriter, req *http.Request) {
	filter, err := filterFromQuery(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	links, err := h.store.ListLinks(req.Context(), filter)
	if errors.Is(err, linkstore.ErrInvalidSortKey) {
		writeError(w, http.StatusBadRequest, "sort key not allowed: "+filter.SortBy)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list links")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"count": len(links),
		"links": links,
	})
}

func (h *LinksHandler) handleExport(w http.ResponseWriter, req *http.Request) {
	filter, err := filterFromQuery(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	links, err := h.store.ListLinks(req.Context(), filter)
	if errors.Is(err, linkstore.ErrInvalidSortKey) {
		writeError(w, http.StatusBadRequest, "sort key not allowed: "+filter.SortBy)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list links")
		return
	}

	switch format := req.URL.Query().Get("format"); format {
	case "", "csv":
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", `attachment; filename="links.csv"`)
		if err := export.WriteCSV(w, links); err != nil {
			writeError(w, http.StatusInternalServerError, "export failed")
		}
	case "json":
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Content-Disposition", `attachment; filename="links.json"`)
		if err := export.WriteJSON(w, links); err != nil {
			writeError(w, http.StatusInternalServerError, "export failed")
		}
	default:
		writeError(w, http.StatusBadRequest, "unknown export format: "+format)
	}
}

func linkID(req *http.Request) (int64, error) {
	return strconv.ParseInt(mux.Vars(req)["id"], 10, 64)
}

func (h *LinksHandler) handleRecheckOne(w http.ResponseWriter, req *http.Request) {
	id, err := linkID(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid link id")
		return
	}
	link, err := h.scanner.RecheckLink(req.Context(), id)
	if errors.Is(err, linkstore.ErrNotFound) {
		writeError(w, http.StatusNotFound, "link not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "recheck failed: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "link rechecked",
		"link":    link,
	})
}

func (h *LinksHandler) handleDismiss(dismissed bool) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		id, err := linkID(req)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid link id")
			return
		}
		if err := h.store.SetDismissed(req.Context(), []int64{id}, dismissed); err != nil {
			writeError(w, http.StatusInternalServerError, "update failed")
			return
		}
		msg := "link dismissed"
		if !dismissed {
			msg = "link restored"
		}
		writeJSON(w, http.StatusOK, map[string]any{"message": msg})
	}
}

func (h *LinksHandler) handleDelete(w http.ResponseWriter, req *http.Request) {
	id, err := linkID(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid link id")
		return
	}
	if err := h.store.DeleteLinks(req.Context(), []int64{id}); err != nil {
		writeError(w, http.StatusInternalServerError, "delete failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "link deleted"})
}

type bulkRequest struct {
	Action string  `json:"action"`
	IDs    []int64 `json:"ids"`
}

func (h *LinksHandler) handleBulk(w http.ResponseWriter, req *http.Request) {
	var body bulkRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(body.IDs) == 0 {
		writeError(w, http.StatusBadRequest, "no link ids provided")
		return
	}

	var err error
	switch body.Action {
	case "dismiss":
		err = h.store.SetDismissed(req.Context(), body.IDs, true)
	case "undismiss":
		err = h.store.SetDismissed(req.Context(), body.IDs, false)
	case "delete":
		err = h.store.DeleteLinks(req.Context(), body.IDs)
	case "recheck":
		var links []linkstore.Link
		for _, id := range body.IDs {
			link, getErr := h.store.GetLink(req.Context(), id)
			if getErr != nil {
				continue
			}
			links = append(links, *link)
		}
		h.scanner.RecheckLinks(req.Context(), links)
	default:
		writeError(w, http.StatusBadRequest, "unknown bulk action: "+body.Action)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "bulk action failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "bulk " + body.Action + " applied",
		"count":   len(body.IDs),
	})
}

func (h *LinksHandler) handleRecheckBatch(w http.ResponseWriter, req *http.Request) {
	var body struct {
		Limit int `json:"limit"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	n, err := h.recheck.RunBatch(req.Context(), body.Limit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message":   "recheck batch finished",
		"rechecked": n,
	})
}

func (h *LinksHandler) handleReplace(w http.ResponseWriter, req *http.Request) {
	id, err := linkID(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid link id")
		return
	}
	var body struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil || body.URL == "" {
		writeError(w, http.StatusBadRequest, "replacement url is required")
		return
	}
	if err := h.scanner.ReplaceLinkURL(req.Context(), id, body.URL); err != nil {
		if errors.Is(err, linkstore.ErrNotFound) {
			writeError(w, http.StatusNotFound, "link not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "replace failed: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "link replaced and rechecked"})
}

func (h *LinksHandler) handleUnlink(w http.ResponseWriter, req *http.Request) {
	id, err := linkID(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid link id")
		return
	}
	if err := h.scanner.UnlinkURL(req.Context(), id); err != nil {
		if errors.Is(err, linkstore.ErrNotFound) {
			writeError(w, http.StatusNotFound, "link not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "unlink failed: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "link removed from content"})
}

func (h *LinksHandler) handleStats(w http.ResponseWriter, req *http.Request) {
	stats, err := h.store.Stats(req.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to compute stats")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *LinksHandler) handleListRules(w http.ResponseWriter, req *http.Request) {
	rules, err := h.store.ListRedirectRules(req.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list redirect rules")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rules": rules})
}

func (h *LinksHandler) handlePutRule(w http.ResponseWriter, req *http.Request) {
	var rule linkstore.RedirectRule
	if err := json.NewDecoder(req.Body).Decode(&rule); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if rule.SourceURL == "" || rule.TargetURL == "" {
		writeError(w, http.StatusBadRequest, "source_url and target_url are required")
		return
	}
	switch rule.Code {
	case 0:
		rule.Code = http.StatusMovedPermanently
	case http.StatusMovedPermanently, http.StatusFound, http.StatusTemporaryRedirect:
	default:
		writeError(w, http.StatusBadRequest, "code must be 301, 302 or 307")
		return
	}
	if err := h.store.PutRedirectRule(req.Context(), &rule); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to store redirect rule")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"message": "redirect rule stored",
		"rule":    rule,
	})
}

func (h *LinksHandler) handleDeleteRule(w http.ResponseWriter, req *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(req)["id"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid rule id")
		return
	}
	if err := h.store.DeleteRedirectRule(req.Context(), id); err != nil {
		if errors.Is(err, linkstore.ErrNotFound) {
			writeError(w, http.StatusNotFound, "redirect rule not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "delete failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "redirect rule deleted"})
}
