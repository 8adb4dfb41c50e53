// Package compute implements the f3 tool: evaluating math questions with a
// sandboxed expression evaluator, optionally letting the model translate a
// free-form question into an expression first.
package compute

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/queryhub/queryhub/internal/adapter/llm"
	"github.com/queryhub/queryhub/internal/domain/decision"
	"github.com/queryhub/queryhub/internal/port/tool"
)

const safePolicyMsg = "出于安全策略，拒绝执行可能读写文件、网络访问、系统命令或动态代码执行的请求。"

const codegenPrompt = `你是数学助手。把用户的问题翻译成一个算术表达式，只输出表达式本身，不要解释。
可用：+ - * / % ^、括号、pi、e，以及 abs/sqrt/sin/cos/tan/exp/ln/log/floor/ceil/round/pow/min/max。
不能翻译时输出 UNSUPPORTED。`

// forbiddenCodeTokens rejects anything that smells like system access; the
// evaluator cannot execute them anyway, but a malicious payload should be
// refused loudly rather than produce a confusing parse error.
var forbiddenCodeTokens = []string{
	"open(", "os.", "sys.", "subprocess", "socket", "requests", "urllib",
	"pickle", "ctypes", "__import__", "eval(", "exec(", "compile(",
	"system(", "popen(", "environ", "__class__", "__globals__",
}

var forbiddenQueryHints = []string{
	"删除文件", "写文件", "覆盖系统", "修改系统", "注册表", "运行系统命令", "执行命令",
	"rm -rf", "del /f /q", "关机", "重启", "结束进程", "扫描端口", "网络扫描", "注入",
	"提权", "清空", "格式化", "下载并执行", "读取敏感文件", "读取系统文件",
}

var exprAfterKeyword = regexp.MustCompile(`(计算|求值|求|结果|等于|=)[:：]?\s*(.+)$`)

// Generator produces a chat completion; *llm.Client satisfies it.
type Generator interface {
	Chat(ctx context.Context, messages []llm.Message) (string, error)
}

// Tool answers math questions.
type Tool struct {
	gen    Generator
	logger *slog.Logger
}

// New creates the compute tool. gen may be nil to disable model codegen.
func New(gen Generator, logger *slog.Logger) *Tool {
	return &Tool{gen: gen, logger: logger}
}

// ID implements tool.Handler.
func (t *Tool) ID() decision.ToolID { return decision.ToolCompute }

// Handle evaluates req.Code directly when present, otherwise derives an
// expression from the question, via the model when codegen is enabled and
// falling back to keyword extraction.
func (t *Tool) Handle(ctx context.Context, req tool.Request) tool.Result {
	q := strings.TrimSpace(req.Query)
	code := strings.TrimSpace(req.Code)
	useCodegen := req.Codegen == nil || *req.Codegen

	if q == "" && code == "" {
		return tool.Result{Feature: t.ID(), Items: []tool.Item{}, Error: "missing q or code"}
	}
	if unsafeQuery(q) || unsafeCode(code) {
		return tool.Result{Feature: t.ID(), Items: []tool.Item{}, Error: "f3 blocked: " + safePolicyMsg}
	}

	var expr, codegen string
	switch {
	case code != "":
		expr, codegen = code, "manual"
	case useCodegen && t.gen != nil:
		if e, err := t.genExpr(ctx, q); err == nil {
			expr, codegen = e, "llm"
		} else {
			t.logger.Debug("codegen unavailable, using rule extraction", "error", err)
			expr, codegen = extractExpr(q), "rule"
		}
	default:
		expr, codegen = extractExpr(q), "rule"
	}

	if unsafeCode(expr) {
		return tool.Result{Feature: t.ID(), Items: []tool.Item{}, Error: "f3 blocked: " + safePolicyMsg}
	}

	value, err := Evaluate(expr)
	if err != nil {
		return tool.Result{
			Feature: t.ID(),
			Code:    expr,
			Codegen: codegen,
			Items:   []tool.Item{},
			Error:   fmt.Sprintf("f3 error: %v", err),
		}
	}

	text := formatNumber(value)
	return tool.Result{
		Feature: t.ID(),
		Code:    expr,
		Codegen: codegen,
		Value:   value,
		Text:    text,
		Items:   []tool.Item{{Title: "计算结果", Snippet: text}},
	}
}

// genExpr asks the model for an expression and validates that it parses.
func (t *Tool) genExpr(ctx context.Context, q string) (string, error) {
	content, err := t.gen.Chat(ctx, []llm.Message{
		{Role: "system", Content: codegenPrompt},
		{Role: "user", Content: fmt.Sprintf("根据问题生成表达式：%s", q)},
	})
	if err != nil {
		return "", err
	}
	expr := stripExprFence(content)
	if expr == "" || strings.Contains(strings.ToUpper(expr), "UNSUPPORTED") {
		return "", fmt.Errorf("model could not produce an expression")
	}
	if _, err := Evaluate(expr); err != nil {
		return "", fmt.Errorf("model expression invalid: %w", err)
	}
	return expr, nil
}

// extractExpr grabs the expression after a math keyword, or returns the
// whole question and lets the evaluator complain.
func extractExpr(q string) string {
	if m := exprAfterKeyword.FindStringSubmatch(q); m != nil {
		return strings.TrimSpace(m[2])
	}
	return q
}

func stripExprFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.Contains(s, "```") {
		return strings.TrimSpace(strings.Trim(s, "`"))
	}
	parts := strings.Split(s, "```")
	if len(parts) < 3 {
		return s
	}
	body := strings.TrimSpace(parts[1])
	if i := strings.IndexByte(body, '\n'); i >= 0 {
		first := strings.ToLower(strings.TrimSpace(body[:i]))
		if first == "text" || first == "python" || first == "math" {
			return strings.TrimSpace(body[i+1:])
		}
	}
	return body
}

func unsafeQuery(q string) bool {
	s := strings.ToLower(q)
	for _, h := range forbiddenQueryHints {
		if strings.Contains(s, strings.ToLower(h)) {
			return true
		}
	}
	return false
}

func unsafeCode(code string) bool {
	s := strings.ToLower(code)
	for _, tok := range forbiddenCodeTokens {
		if strings.Contains(s, tok) {
			return true
		}
	}
	return false
}

func formatNumber(v float64) string {
	if v == float64(int64(v)) && v < 1e15 && v > -1e15 {
		return strconv.FormatInt(int64(v), 10)
	}
	return strconv.FormatFloat(v, 'g', 12, 64)
}
