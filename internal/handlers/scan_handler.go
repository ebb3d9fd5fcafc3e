package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/shaibs3/LinkWatch/internal/linkstore"
	"github.com/shaibs3/LinkWatch/internal/scanner"
)

// ScanHandler exposes the scan control surface: start, stop, force-stop and
// progress.
type ScanHandler struct {
	scanner *scanner.Scanner
}

func NewScanHandler(sc *scanner.Scanner) *ScanHandler {
	return &ScanHandler{scanner: sc}
}

// RegisterRoutes registers the routes for this handler
func (h *ScanHandler) RegisterRoutes(router *mux.Router, logger *zap.Logger) {
	router.HandleFunc("/v1/scan/start", h.handleStart).Methods("POST")
	router.HandleFunc("/v1/scan/stop", h.handleStop).Methods("POST")
	router.HandleFunc("/v1/scan/force-stop", h.handleForceStop).Methods("POST")
	router.HandleFunc("/v1/scan/progress", h.handleProgress).Methods("GET")
}

func (h *ScanHandler) handleStart(w http.ResponseWriter, req *http.Request) {
	scanType := linkstore.ScanType(req.URL.Query().Get("type"))
	switch scanType {
	case "":
		scanType = linkstore.ScanTypeFull
	case linkstore.ScanTypeFull, linkstore.ScanTypePartial, linkstore.ScanTypeRecheck:
	default:
		writeError(w, http.StatusBadRequest, "unknown scan type: "+string(scanType))
		return
	}

	fresh, _ := strconv.ParseBool(req.URL.Query().Get("fresh"))

	scan, err := h.scanner.StartScan(req.Context(), scanType, fresh)
	if errors.Is(err, linkstore.ErrScanActive) {
		writeError(w, http.StatusConflict, "a scan is already running")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to start scan: "+err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"message": "scan started",
		"scan":    scan,
	})
}

func (h *ScanHandler) handleStop(w http.ResponseWriter, req *http.Request) {
	h.scanner.Stop()
	writeJSON(w, http.StatusAccepted, map[string]any{
		"message": "stop requested, in-flight checks will finish",
	})
}

func (h *ScanHandler) handleForceStop(w http.ResponseWriter, req *http.Request) {
	n, err := h.scanner.ForceStop(req.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "force stop failed: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message":   "force stop applied",
		"cancelled": n,
	})
}

func (h *ScanHandler) handleProgress(w http.ResponseWriter, req *http.Request) {
	p, err := h.scanner.Progress(req.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read progress: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, p)
}
