package http

import (
	"bytes"
	"net/http"

	"github.com/zoeplatform/zoefinan/internal/core"
	"github.com/zoeplatform/zoefinan/internal/report"
)

func (s *Server) handleDiagnosis(w http.ResponseWriter, r *http.Request) {
	month, err := monthParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	d, err := s.ledger.Diagnosis(r.Context(), currentUser(r.Context()).UID, month)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleBreakdown(w http.ResponseWriter, r *http.Request) {
	month, err := monthParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	format, err := report.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		writeError(w, r, invalid("format", err))
		return
	}
	d, err := s.ledger.Diagnosis(r.Context(), currentUser(r.Context()).UID, month)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeReport(w, r, format, d.Categories)
}

func (s *Server) handleStrategy(w http.ResponseWriter, r *http.Request) {
	month, err := monthParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	plan, err := s.ledger.StrategicPlan(r.Context(), currentUser(r.Context()).UID, month)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

// handleSimulate simulates cutting ?expense=<id> by ?reduction=<percent>.
// Without an expense id the whole expense total is simulated.
func (s *Server) handleSimulate(w http.ResponseWriter, r *http.Request) {
	reduction, err := intQuery(r, "reduction", 10)
	if err != nil {
		writeError(w, r, err)
		return
	}
	id := core.EntryID(sanitizeInput(r.URL.Query().Get("expense")))
	sim, err := s.ledger.SimulateReduction(r.Context(), currentUser(r.Context()).UID, id, reduction)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sim)
}

func (s *Server) handleEvolution(w http.ResponseWriter, r *http.Request) {
	count, err := intQuery(r, "count", 6)
	if err != nil {
		writeError(w, r, err)
		return
	}
	format, err := report.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		writeError(w, r, invalid("format", err))
		return
	}
	points, err := s.ledger.Evolution(r.Context(), currentUser(r.Context()).UID, count)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeReport(w, r, format, points)
}

// writeReport renders v in the requested format. The body is buffered so a
// rendering failure can still become a proper error response.
func writeReport(w http.ResponseWriter, r *http.Request, format report.Format, v any) {
	if format == report.FormatJSON {
		writeJSON(w, http.StatusOK, v)
		return
	}
	var buf bytes.Buffer
	if err := report.Write(&buf, format, v); err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", format.ContentType())
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
