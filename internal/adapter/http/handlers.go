package http

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/queryhub/queryhub/internal/domain/decision"
	"github.com/queryhub/queryhub/internal/port/decisionlog"
	"github.com/queryhub/queryhub/internal/port/tool"
	"github.com/queryhub/queryhub/internal/service"
)

const answerBodyLimit = 1 << 20 // 1 MiB

// Answerer routes one query and runs the resulting decision.
type Answerer interface {
	Answer(ctx context.Context, q, mode string, req tool.Request) service.Answer
}

// Ingester rebuilds and inspects knowledge base indexes.
type Ingester interface {
	Rebuild(ctx context.Context, kbID string) service.RebuildResult
	Status(kbID string) service.Status
}

// DecisionReader loads recorded routing decisions. Nil when the decision log
// is disabled.
type DecisionReader interface {
	Recent(ctx context.Context, n int) ([]decisionlog.Entry, error)
}

// Handlers holds the HTTP handlers and their dependencies.
type Handlers struct {
	answerer  Answerer
	ingester  Ingester
	decisions DecisionReader
	kbID      string
	version   string
}

// NewHandlers creates the handler set. kbID is the default knowledge base;
// decisions may be nil.
func NewHandlers(answerer Answerer, ingester Ingester, decisions DecisionReader, kbID, version string) *Handlers {
	return &Handlers{answerer: answerer, ingester: ingester, decisions: decisions, kbID: kbID, version: version}
}

type answerRequest struct {
	Q        string            `json:"q"`
	Question string            `json:"question"`
	Mode     string            `json:"mode"`
	K        int               `json:"k"`
	Slots    map[string]string `json:"slots"`
	KBID     string            `json:"kb_id"`
	TopK     int               `json:"top_k"`
	Gen      *bool             `json:"gen"`
	Code     string            `json:"code"`
	Codegen  *bool             `json:"codegen"`
	System   string            `json:"system_prompt"`
}

type answerResponse struct {
	Query    string            `json:"query"`
	Decision decision.Decision `json:"decision"`
	Results  map[string]any    `json:"results"`
	Error    string            `json:"error,omitempty"`
}

// HandleAnswer is POST /v1/answer: route the question and execute the
// decision. mode overrides routing when it names a tool.
func (h *Handlers) HandleAnswer(w http.ResponseWriter, r *http.Request) {
	body, ok := readJSON[answerRequest](w, r, answerBodyLimit)
	if !ok {
		return
	}

	q := strings.TrimSpace(body.Q)
	if q == "" {
		q = strings.TrimSpace(body.Question)
	}
	if q == "" {
		writeError(w, http.StatusBadRequest, "missing q")
		return
	}
	mode := strings.ToLower(strings.TrimSpace(body.Mode))

	ans := h.answerer.Answer(r.Context(), q, mode, tool.Request{
		K:        body.K,
		Slots:    body.Slots,
		KBID:     body.KBID,
		TopK:     body.TopK,
		Generate: body.Gen,
		Code:     body.Code,
		Codegen:  body.Codegen,

		SystemPrompt: body.System,
	})

	results := map[string]any{
		string(ans.Primary): ans.PrimaryItems,
	}
	if ans.Steps != nil {
		results["steps"] = ans.Steps
	}

	writeJSON(w, http.StatusOK, answerResponse{
		Query:    ans.Query,
		Decision: ans.Decision,
		Results:  results,
		Error:    ans.Err,
	})
}

// HandleHealth is GET /v1/health.
func (h *Handlers) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"version":  h.version,
		"features": []string{"f1:websearch", "f2:knowledge", "f3:compute", "llm:responder"},
	})
}

type rebuildRequest struct {
	KBID string `json:"kb_id"`
}

// HandleKBRebuild is POST /v1/kb/rebuild: reindex a knowledge base from its
// raw documents. Build problems come back in the JSON body, not as HTTP
// errors, so callers always see the structured outcome.
func (h *Handlers) HandleKBRebuild(w http.ResponseWriter, r *http.Request) {
	body, ok := readJSON[rebuildRequest](w, r, answerBodyLimit)
	if !ok {
		return
	}
	kbID := body.KBID
	if kbID == "" {
		kbID = h.kbID
	}
	writeJSON(w, http.StatusOK, h.ingester.Rebuild(r.Context(), kbID))
}

// HandleKBStatus is GET /v1/kb/status?kb_id=...
func (h *Handlers) HandleKBStatus(w http.ResponseWriter, r *http.Request) {
	kbID := r.URL.Query().Get("kb_id")
	if kbID == "" {
		kbID = h.kbID
	}
	writeJSON(w, http.StatusOK, h.ingester.Status(kbID))
}

// HandleDecisions is GET /v1/decisions?n=...: the latest recorded routing
// decisions, newest first. Unavailable when the decision log is disabled.
func (h *Handlers) HandleDecisions(w http.ResponseWriter, r *http.Request) {
	if h.decisions == nil {
		writeError(w, http.StatusNotFound, "decision log disabled")
		return
	}
	n := 20
	if raw := r.URL.Query().Get("n"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > 500 {
			writeError(w, http.StatusBadRequest, "n must be between 1 and 500")
			return
		}
		n = parsed
	}
	entries, err := h.decisions.Recent(r.Context(), n)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "decision log unavailable")
		return
	}
	if entries == nil {
		entries = []decisionlog.Entry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"decisions": entries})
}
