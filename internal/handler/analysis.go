package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/resumelens/resume-analyzer/internal/auth"
)

// Resumes and job descriptions arrive as extracted text, which can be
// large for long PDFs.
const maxAnalysisBodyBytes = 10 << 20

// Analyzer is implemented by *analysis.Service.
type Analyzer interface {
	AnalyzeResume(ctx context.Context, resumeText, prompt string) (json.RawMessage, error)
	MatchJob(ctx context.Context, resumeText, jobDescription, prompt string) (json.RawMessage, error)
}

// AnalysisHandler serves the AI endpoints. Both routes sit behind the
// Session Gate.
type AnalysisHandler struct {
	analyzer Analyzer
	logger   *slog.Logger
}

func NewAnalysisHandler(analyzer Analyzer, logger *slog.Logger) *AnalysisHandler {
	return &AnalysisHandler{analyzer: analyzer, logger: logger}
}

type analyzeRequest struct {
	ResumeText string `json:"resumeText"`
	Prompt     string `json:"prompt"`
}

type matchRequest struct {
	ResumeText     string `json:"resumeText"`
	JobDescription string `json:"jobDescription"`
	Prompt         string `json:"prompt"`
}

type dataResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
}

// AnalyzeResume handles POST /api/analyze-resume → 200 {success, data}.
func (h *AnalysisHandler) AnalyzeResume(w http.ResponseWriter, r *http.Request) {
	var in analyzeRequest
	if err := decodeJSON(w, r, maxAnalysisBodyBytes, &in); err != nil {
		writeError(w, h.logger, err)
		return
	}

	userID, _ := auth.UserIDFromContext(r.Context())
	h.logger.Info("resume analysis requested", slog.String("user_id", userID))

	data, err := h.analyzer.AnalyzeResume(r.Context(), in.ResumeText, in.Prompt)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, dataResponse{Success: true, Data: data})
}

// MatchJob handles POST /api/match-job → 200 {success, data}.
func (h *AnalysisHandler) MatchJob(w http.ResponseWriter, r *http.Request) {
	var in matchRequest
	if err := decodeJSON(w, r, maxAnalysisBodyBytes, &in); err != nil {
		writeError(w, h.logger, err)
		return
	}

	userID, _ := auth.UserIDFromContext(r.Context())
	h.logger.Info("job match requested", slog.String("user_id", userID))

	data, err := h.analyzer.MatchJob(r.Context(), in.ResumeText, in.JobDescription, in.Prompt)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, dataResponse{Success: true, Data: data})
}
