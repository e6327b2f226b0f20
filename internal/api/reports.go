package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"

	"github.com/nugget/wren/internal/reports"
)

// POST /api/reports/generate {"reportType": "usage"}
func (s *Server) handleReportGenerate(w http.ResponseWriter, r *http.Request) {
	if s.reports == nil {
		s.errorResponse(w, http.StatusServiceUnavailable, "reports not configured")
		return
	}

	var req GenerateReportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ReportType == "" {
		req.ReportType = reports.TypeUsage
	}
	if !reports.ValidType(req.ReportType) {
		s.errorResponse(w, http.StatusBadRequest,
			fmt.Sprintf("reportType must be %q or %q", reports.TypeUsage, reports.TypePerformance))
		return
	}

	rep, delay, err := s.reports.Generate(req.ReportType)
	if err != nil {
		s.logger.Error("report generate failed", "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "Failed to generate report")
		return
	}

	writeJSON(w, GenerateReportResponse{
		ReportID:      rep.ID,
		Status:        string(rep.Status),
		EstimatedTime: fmt.Sprintf("%d seconds", int(math.Ceil(delay.Seconds()))),
	}, s.logger)
}

// GET /api/reports/status/{reportId}
func (s *Server) handleReportStatus(w http.ResponseWriter, r *http.Request) {
	if s.reports == nil {
		s.errorResponse(w, http.StatusServiceUnavailable, "reports not configured")
		return
	}

	rep, err := s.reports.Status(r.PathValue("reportId"))
	if errors.Is(err, reports.ErrNotFound) {
		s.errorResponse(w, http.StatusNotFound, "Report not found")
		return
	}
	if err != nil {
		s.logger.Error("report status failed", "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "Failed to get report status")
		return
	}
	writeJSON(w, rep, s.logger)
}
