package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/resumelens/resume-analyzer/internal/apperror"
)

// MinTextLength is the minimum number of non-blank characters for a resume
// or a job description.
const MinTextLength = 50

const (
	PlaceholderDocument       = "{{DOCUMENT_TEXT}}"
	PlaceholderResume         = "{{RESUME_TEXT}}"
	PlaceholderJobDescription = "{{JOB_DESCRIPTION}}"

	analyzeSystemPrompt = "You are an expert resume reviewer and ATS specialist. Always respond with valid JSON only, no additional text."
	matchSystemPrompt   = "You are an expert recruiter and ATS system analyzer. Always respond with valid JSON only, no additional text."

	msgAnalyzeFailed = "Failed to analyze resume. Please try again."
	msgMatchFailed   = "Failed to match resume with job. Please try again."
)

// errMalformedReply marks a model reply that is not the JSON object asked
// for. It is wrapped into an apperror.Upstream before leaving the package.
var errMalformedReply = errors.New("analysis: malformed model reply")

// jsonObject matches from the first '{' to the last '}' of a reply, which
// strips prose or markdown fences some models wrap around their JSON.
var jsonObject = regexp.MustCompile(`\{[\s\S]*\}`)

// Service validates analysis requests, fills prompt templates and checks
// the model's reply.
type Service struct {
	client Client
	logger *slog.Logger
}

// NewService creates a Service.
func NewService(client Client, logger *slog.Logger) *Service {
	return &Service{client: client, logger: logger}
}

// AnalyzeResume scores a resume. prompt is a client-supplied template in
// which {{DOCUMENT_TEXT}} is replaced by the resume.
//
// The reply must be a JSON object with an "overallScore" key. If the model
// instead reports an "error" (for example, the text is not a resume), that
// message is returned as a validation error.
func (s *Service) AnalyzeResume(ctx context.Context, resumeText, prompt string) (json.RawMessage, error) {
	if resumeText == "" || prompt == "" {
		return nil, apperror.ValidationFailed("resumeText", "Missing resumeText or prompt in request body")
	}
	if tooShort(resumeText) {
		return nil, apperror.ValidationFailed("resumeText", "Resume text is too short (minimum 50 characters)")
	}

	userPrompt := strings.NewReplacer(PlaceholderDocument, resumeText).Replace(prompt)

	s.logger.Debug("analyzing resume", slog.Int("resume_chars", utf8.RuneCountInString(resumeText)))

	reply, err := s.client.Complete(ctx, analyzeSystemPrompt, userPrompt)
	if err != nil {
		return nil, apperror.Upstream(msgAnalyzeFailed, err)
	}

	raw, fields, err := extractObject(reply)
	if err != nil {
		return nil, apperror.Upstream(msgAnalyzeFailed, err)
	}

	if msg, ok := modelError(fields); ok {
		return nil, apperror.ValidationFailed("resumeText", msg)
	}
	if !present(fields, "overallScore") {
		return nil, apperror.Upstream(msgAnalyzeFailed,
			fmt.Errorf("%w: no overallScore", errMalformedReply))
	}
	return raw, nil
}

// MatchJob compares a resume with a job description. prompt carries the
// {{RESUME_TEXT}} and {{JOB_DESCRIPTION}} placeholders, and the reply must
// have a "matchPercentage" key.
func (s *Service) MatchJob(ctx context.Context, resumeText, jobDescription, prompt string) (json.RawMessage, error) {
	switch {
	case resumeText == "" || jobDescription == "" || prompt == "":
		return nil, apperror.ValidationFailed("resumeText",
			"Missing required fields: resumeText, jobDescription, or prompt")
	case tooShort(resumeText):
		return nil, apperror.ValidationFailed("resumeText", "Resume text is too short")
	case tooShort(jobDescription):
		return nil, apperror.ValidationFailed("jobDescription", "Job description is too short")
	}

	// A single pass, so placeholder text inside the resume is left alone.
	userPrompt := strings.NewReplacer(
		PlaceholderResume, resumeText,
		PlaceholderJobDescription, jobDescription,
	).Replace(prompt)

	s.logger.Debug("matching job",
		slog.Int("resume_chars", utf8.RuneCountInString(resumeText)),
		slog.Int("job_chars", utf8.RuneCountInString(jobDescription)),
	)

	reply, err := s.client.Complete(ctx, matchSystemPrompt, userPrompt)
	if err != nil {
		return nil, apperror.Upstream(msgMatchFailed, err)
	}

	raw, fields, err := extractObject(reply)
	if err != nil {
		return nil, apperror.Upstream(msgMatchFailed, err)
	}
	if !present(fields, "matchPercentage") {
		return nil, apperror.Upstream(msgMatchFailed,
			fmt.Errorf("%w: no matchPercentage", errMalformedReply))
	}
	return raw, nil
}

func tooShort(s string) bool {
	return utf8.RuneCountInString(strings.TrimSpace(s)) < MinTextLength
}

// extractObject pulls the outermost JSON object out of reply and decodes
// its top-level keys.
func extractObject(reply string) (json.RawMessage, map[string]json.RawMessage, error) {
	match := jsonObject.FindString(reply)
	if match == "" {
		return nil, nil, fmt.Errorf("%w: no JSON object found", errMalformedReply)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(match), &fields); err != nil {
		return nil, nil, fmt.Errorf("%w: %w", errMalformedReply, err)
	}
	return json.RawMessage(match), fields, nil
}

// present reports whether key exists and is not null.
func present(fields map[string]json.RawMessage, key string) bool {
	v, ok := fields[key]
	return ok && string(v) != "null"
}

// modelError returns the "error" field of a reply when the model refused.
func modelError(fields map[string]json.RawMessage) (string, bool) {
	if !present(fields, "error") {
		return "", false
	}
	var msg string
	if err := json.Unmarshal(fields["error"], &msg); err != nil || msg == "" {
		// Non-string error values are passed through as their JSON text.
		msg = string(fields["error"])
	}
	return msg, true
}
