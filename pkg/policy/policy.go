package policy

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/kioku/pkg/model"
	"github.com/open-policy-agent/opa/v1/rego"
)

// Decision is the admission/importance verdict for a memory write
type Decision struct {
	Store      bool
	Importance float64
}

// Evaluator decides whether a memory is worth storing and how important it
// is. When a Rego policy directory is configured, `data.memory` is evaluated
// with {content, type, source, tags} as input; otherwise built-in heuristics
// apply.
type Evaluator struct {
	query *rego.PreparedEvalQuery
}

// New creates an evaluator. An empty policyDir or a directory without .rego
// files yields the heuristic-only evaluator.
func New(ctx context.Context, policyDir string) (*Evaluator, error) {
	if policyDir == "" {
		return &Evaluator{}, nil
	}

	files, err := filepath.Glob(filepath.Join(policyDir, "*.rego"))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to glob policy files", goerr.V("dir", policyDir))
	}
	if len(files) == 0 {
		return &Evaluator{}, nil
	}

	options := make([]func(*rego.Rego), 0, len(files)+1)
	options = append(options, rego.Query("data.memory"))
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to read policy file", goerr.Value("path", file))
		}
		options = append(options, rego.Module(file, string(data)))
	}

	prepared, err := rego.New(options...).PrepareForEval(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to prepare memory policy query")
	}

	return &Evaluator{query: &prepared}, nil
}

type policyInput struct {
	Content string   `json:"content"`
	Type    string   `json:"type"`
	Source  string   `json:"source"`
	Tags    []string `json:"tags"`
}

// Evaluate returns the admission decision for the given memory attributes
func (e *Evaluator) Evaluate(ctx context.Context, content string, memType model.MemoryType, source string, tags []string) (Decision, error) {
	if e.query == nil {
		return heuristic(content, memType), nil
	}

	rs, err := e.query.Eval(ctx, rego.EvalInput(policyInput{
		Content: content,
		Type:    string(memType),
		Source:  source,
		Tags:    tags,
	}))
	if err != nil {
		return Decision{}, goerr.Wrap(err, "failed to evaluate memory policy")
	}

	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		// Policy defines no result for this input; fall back to heuristics
		return heuristic(content, memType), nil
	}

	result, ok := rs[0].Expressions[0].Value.(map[string]any)
	if !ok {
		return Decision{}, goerr.New("memory policy returned unexpected result type")
	}

	decision := heuristic(content, memType)
	if store, ok := result["store"].(bool); ok {
		decision.Store = store
	}
	if importance, ok := toFloat(result["importance"]); ok {
		decision.Importance = clamp01(importance)
	}

	return decision, nil
}

// importanceBoosts are phrases that mark identity or preference statements,
// which deserve longer retention.
var importanceBoosts = []string{
	"my name", "i am", "i'm", "call me",
	"i like", "i love", "i hate", "i prefer",
	"always", "never", "remember",
}

// heuristic assigns the default importance used without a Rego policy
func heuristic(content string, memType model.MemoryType) Decision {
	importance := 0.5
	if memType == model.MemoryTypeFact {
		importance = 0.7
	}

	lower := strings.ToLower(content)
	for _, phrase := range importanceBoosts {
		if strings.Contains(lower, phrase) {
			importance += 0.1
			break
		}
	}

	// Trivial content is not worth storing
	if len(strings.Fields(content)) < 2 && len([]rune(content)) < 4 {
		return Decision{Store: false, Importance: 0}
	}

	return Decision{Store: true, Importance: clamp01(importance)}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		// OPA may return json.Number
		if num, ok := v.(interface{ Float64() (float64, error) }); ok {
			if f, err := num.Float64(); err == nil {
				return f, true
			}
		}
		return 0, false
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
