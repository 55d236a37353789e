package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/leapstack-labs/daxport/internal/artifact"
	"github.com/leapstack-labs/daxport/internal/model"
	"github.com/leapstack-labs/daxport/pkg/translate"
)

type errorResponse struct {
	Error string `json:"error"`
}

type translateRequest struct {
	Expression string `json:"expression"`
}

type translateResponse struct {
	SQL         string   `json:"sql"`
	Status      string   `json:"status"`
	Unsupported []string `json:"unsupported"`
	Warnings    []string `json:"warnings"`
	Related     []string `json:"related,omitempty"`
	Error       string   `json:"error,omitempty"`
}

type slotResponse struct {
	Table  string   `json:"table"`
	Name   string   `json:"name"`
	Kind   string   `json:"kind"`
	Status string   `json:"status"`
	SQL    string   `json:"sql,omitempty"`
	Reason string   `json:"reason,omitempty"`
	Review []string `json:"review,omitempty"`
}

type convertResponse struct {
	Model       string           `json:"model"`
	Format      string           `json:"format"`
	SQL         string           `json:"sql"`
	Summary     artifact.Summary `json:"summary"`
	Expressions []slotResponse   `json:"expressions"`
}

type ruleResponse struct {
	Name   string `json:"name"`
	Arity  string `json:"arity"`
	Kind   string `json:"kind"`
	Source string `json:"source,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleTranslate(w http.ResponseWriter, r *http.Request) {
	var req translateRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxExpressionBody)).Decode(&req); err != nil {
		s.logger.Debug("failed to decode request", slog.Any("error", err))
		s.writeError(w, http.StatusBadRequest, "invalid request payload")
		return
	}
	if strings.TrimSpace(req.Expression) == "" {
		s.writeError(w, http.StatusBadRequest, "expression is required")
		return
	}

	s.writeJSON(w, http.StatusOK, newTranslateResponse(s.translator.Translate(req.Expression)))
}

func newTranslateResponse(res translate.Result) translateResponse {
	resp := translateResponse{
		SQL:         res.SQL,
		Status:      string(res.Status()),
		Unsupported: res.Verdict.Functions(),
		Warnings:    res.Warnings,
		Related:     res.Related,
	}
	if res.Err != nil {
		resp.Error = res.Err.Error()
	}
	if resp.Unsupported == nil {
		resp.Unsupported = []string{}
	}
	if resp.Warnings == nil {
		resp.Warnings = []string{}
	}
	return resp
}

// handleConvert assembles view scripts for a model posted as JSON or YAML.
// Query parameters override the configured catalog, schema,
// source_schema, materialize and format.
func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.convertConfig(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	format := model.FormatJSON
	if mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type")); strings.HasSuffix(mt, "yaml") {
		format = model.FormatYAML
	}
	m, err := model.Parse(http.MaxBytesReader(w, r.Body, maxModelBody), format)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if m.Name == "" {
		m.Name = "model"
	}

	art, err := artifact.New(cfg).Build(r.Context(), m)
	if err != nil {
		s.logger.Error("conversion failed", slog.String("model", m.Name), slog.Any("error", err))
		s.writeError(w, http.StatusInternalServerError, "conversion failed")
		return
	}

	var buf bytes.Buffer
	if err := art.Write(&buf); err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := convertResponse{
		Model:       art.Model,
		Format:      string(art.Config().Output),
		SQL:         buf.String(),
		Summary:     art.Summary(),
		Expressions: []slotResponse{},
	}
	for _, slot := range art.Slots() {
		resp.Expressions = append(resp.Expressions, slotResponse{
			Table:  slot.Expression.Table,
			Name:   slot.Expression.Name,
			Kind:   string(slot.Expression.Kind),
			Status: string(slot.Result.Status()),
			SQL:    slot.Result.SQL,
			Reason: slot.Result.Reason(),
			Review: slot.Review,
		})
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) convertConfig(r *http.Request) (artifact.Config, error) {
	cfg := s.artifacts
	q := r.URL.Query()
	if v := q.Get("catalog"); v != "" {
		cfg.Catalog = v
	}
	if v := q.Get("schema"); v != "" {
		cfg.Schema = v
	}
	if v := q.Get("source_schema"); v != "" {
		cfg.SourceSchema = v
	}
	if v := q.Get("materialize"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return cfg, errors.New("materialize must be a boolean")
		}
		cfg.Materialize = b
	}
	if v := q.Get("format"); v != "" {
		switch f := artifact.Format(v); f {
		case artifact.FormatSQL, artifact.FormatNotebook:
			cfg.Output = f
		default:
			return cfg, errors.New("format must be sql or notebook")
		}
	}
	return cfg, nil
}

func (s *Server) handleRules(w http.ResponseWriter, _ *http.Request) {
	reg := s.translator.Registry()
	out := make([]ruleResponse, 0, reg.Len())
	for _, rule := range reg.Rules() {
		out = append(out, ruleResponse{
			Name:   rule.Name,
			Arity:  rule.Arity(),
			Kind:   rule.Kind.String(),
			Source: rule.Source,
		})
	}
	s.writeJSON(w, http.StatusOK, out)
}
