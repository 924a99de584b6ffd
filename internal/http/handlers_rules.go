package httpx

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/target/aad-connect/internal/domain/rolemap"
)

// RulesReporter reports group mapping rules that logins will skip.
type RulesReporter interface {
	SkippedRules(ctx context.Context) ([]rolemap.SkippedRule, error)
}

// RulesHandlers serves the administrative mapping rules report.
type RulesHandlers struct {
	Rules  RulesReporter
	Logger *slog.Logger
}

type skippedRuleResponse struct {
	Line   int    `json:"line"`
	Rule   string `json:"rule"`
	Reason string `json:"reason"`
}

// Skipped lists mapping rules that are malformed or name unknown roles.
// GET /auth/admin/mapping-rules.
func (h *RulesHandlers) Skipped(w http.ResponseWriter, r *http.Request) {
	skipped, err := h.Rules.SkippedRules(r.Context())
	if err != nil {
		h.logger().ErrorContext(r.Context(), "mapping rules validation failed", "error", err)
		WriteError(w, ErrorParams{
			Code:    http.StatusServiceUnavailable,
			ErrCode: "rules_unavailable",
			Err:     errors.New("mapping rules unavailable"),
		})
		return
	}

	out := make([]skippedRuleResponse, 0, len(skipped))
	for _, s := range skipped {
		out = append(out, skippedRuleResponse{Line: s.Line, Rule: s.Text, Reason: s.Reason})
	}
	WriteJSON(w, http.StatusOK, map[string]any{"skipped": out})
}

func (h *RulesHandlers) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}
