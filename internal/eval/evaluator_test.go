package eval

import (
	"context"
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/weft-dsl/weft/internal/assemble"
	"github.com/weft-dsl/weft/internal/handler"
	"github.com/weft-dsl/weft/internal/loop"
	"github.com/weft-dsl/weft/internal/resource"
	"github.com/weft-dsl/weft/internal/spawn"
	"github.com/weft-dsl/weft/internal/task"
	"github.com/weft-dsl/weft/pkg/models"
)

type echoHandler struct {
	mu    sync.Mutex
	calls int
}

func (h *echoHandler) ExecutePrompt(_ context.Context, payload *handler.Payload) (*models.TaskResult, error) {
	h.mu.Lock()
	h.calls++
	h.mu.Unlock()
	return &models.TaskResult{Content: payload.Prompt, Status: models.StatusComplete}, nil
}

func (h *echoHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.calls
}

func newEvaluator(t *testing.T, h handler.Handler, opts ...Option) (*Evaluator, *task.Registry) {
	t.Helper()
	registry := task.NewRegistry()
	executor := task.NewExecutor(h, assemble.New(nil, 0), resource.NewTracker(0, 0))
	spawner := spawn.NewController(registry, executor, loop.NewController(registry, executor, nil))
	return NewEvaluator(spawner, opts...), registry
}

func eval(t *testing.T, e *Evaluator, src string) any {
	t.Helper()
	value, err := e.EvalString(context.Background(), src)
	if err != nil {
		t.Fatalf("EvalString(%q) error: %v", src, err)
	}
	return value
}

func TestEval_Basics(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want any
	}{
		{name: "int literal", src: "42", want: int64(42)},
		{name: "string literal", src: `"hi"`, want: "hi"},
		{name: "add", src: "(+ 2 3)", want: int64(5)},
		{name: "mixed arithmetic", src: "(+ 1 2.5)", want: 3.5},
		{name: "nested arithmetic", src: "(* (+ 1 2) (- 10 6))", want: int64(12)},
		{name: "division is float", src: "(/ 7 2)", want: 3.5},
		{name: "comparison chain", src: "(< 1 2 3)", want: true},
		{name: "if true branch", src: `(if (> 2 1) "yes" "no")`, want: "yes"},
		{name: "if without else", src: "(if false 1)", want: nil},
		{name: "and short-circuits on false", src: "(and true false (/ 1 0))", want: false},
		{name: "or returns first truthy", src: `(or false nil "hit" "later")`, want: "hit"},
		{name: "let binding", src: "(let ((x 2) (y (+ x 1))) (* x y))", want: int64(6)},
		{name: "cond else", src: `(cond ((> 1 2) "a") (else "b"))`, want: "b"},
		{name: "list", src: "(list 1 2 3)", want: []any{int64(1), int64(2), int64(3)}},
		{name: "quote symbol", src: "'foo", want: Symbol("foo")},
		{name: "first", src: "(first (list 9 8))", want: int64(9)},
		{name: "rest", src: "(rest (list 9 8 7))", want: []any{int64(8), int64(7)}},
		{name: "cons", src: "(cons 1 (list 2))", want: []any{int64(1), int64(2)}},
		{name: "length", src: `(length "abcd")`, want: int64(4)},
		{name: "str", src: `(str "n=" 4)`, want: "n=4"},
		{name: "define then use", src: "(define x 10) (+ x 5)", want: int64(15)},
		{name: "apply defined lambda", src: "(define add (lambda (a b) (+ a b))) (add 2 3)", want: int64(5)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, _ := newEvaluator(t, &echoHandler{})
			got := eval(t, e, tt.src)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("EvalString(%q) = %#v, want %#v", tt.src, got, tt.want)
			}
		})
	}
}

func TestEval_ClosuresCaptureLexically(t *testing.T) {
	e, _ := newEvaluator(t, &echoHandler{})

	got := eval(t, e, `
		(define make-adder (lambda (n) (lambda (x) (+ x n))))
		(define add5 (make-adder 5))
		(define n 100) ; must not leak into the closure
		(add5 3)
	`)
	if got != int64(8) {
		t.Errorf("closure result = %v, want 8", got)
	}
}

func TestEval_DefineFunctionSugar(t *testing.T) {
	e, _ := newEvaluator(t, &echoHandler{})
	got := eval(t, e, `
		(define (square x) (* x x))
		(square 7)
	`)
	if got != int64(49) {
		t.Errorf("square 7 = %v, want 49", got)
	}
}

func TestEval_LetShadowsOuterScope(t *testing.T) {
	e, _ := newEvaluator(t, &echoHandler{})
	got := eval(t, e, `
		(define x 1)
		(let ((x 2)) x)
	`)
	if got != int64(2) {
		t.Errorf("shadowed x = %v, want 2", got)
	}
	if again := eval(t, e, "x"); again != int64(1) {
		t.Errorf("outer x = %v after let, want 1", again)
	}
}

func TestEval_UnboundSymbol(t *testing.T) {
	e, _ := newEvaluator(t, &echoHandler{})
	_, err := e.EvalString(context.Background(), "(+ 1 ghost)")
	failure, ok := models.AsTaskFailure(err)
	if !ok || failure.Reason != models.ReasonInputValidation {
		t.Fatalf("error = %v, want input_validation_failure", err)
	}
}

func TestEval_UnknownHead(t *testing.T) {
	e, _ := newEvaluator(t, &echoHandler{})
	_, err := e.EvalString(context.Background(), "(no-such-thing 1)")
	failure, ok := models.AsTaskFailure(err)
	if !ok || failure.Reason != models.ReasonTemplateNotFound {
		t.Fatalf("error = %v, want template_not_found", err)
	}
}

func TestEval_ClosureArityMismatch(t *testing.T) {
	e, _ := newEvaluator(t, &echoHandler{})
	_, err := e.EvalString(context.Background(), "((lambda (a b) (+ a b)) 1)")
	failure, ok := models.AsTaskFailure(err)
	if !ok || failure.Reason != models.ReasonInputValidation {
		t.Fatalf("error = %v, want input_validation_failure", err)
	}
}

func TestEval_TemplateApplication(t *testing.T) {
	h := &echoHandler{}
	e, registry := newEvaluator(t, h)
	if err := registry.Register(&task.Template{
		Name:   "summarize",
		Prompt: "Summarize: {{text}}",
		Params: []string{"text"},
	}); err != nil {
		t.Fatal(err)
	}

	got := eval(t, e, `(summarize "a long passage")`)
	if got != "Summarize: a long passage" {
		t.Errorf("template result = %q", got)
	}
	if h.count() != 1 {
		t.Errorf("handler calls = %d, want 1", h.count())
	}
}

func TestEval_TemplateArityFailsBeforeCall(t *testing.T) {
	h := &echoHandler{}
	e, registry := newEvaluator(t, h)
	if err := registry.Register(&task.Template{
		Name:   "summarize",
		Prompt: "Summarize: {{text}}",
		Params: []string{"text"},
	}); err != nil {
		t.Fatal(err)
	}

	_, err := e.EvalString(context.Background(), `(summarize "a" "b")`)
	failure, ok := models.AsTaskFailure(err)
	if !ok || failure.Reason != models.ReasonInputValidation {
		t.Fatalf("error = %v, want input_validation_failure", err)
	}
	if h.count() != 0 {
		t.Errorf("handler called %d times, want 0", h.count())
	}
}

func TestEval_LocalBindingShadowsTemplate(t *testing.T) {
	h := &echoHandler{}
	e, registry := newEvaluator(t, h)
	if err := registry.Register(&task.Template{
		Name:   "work",
		Prompt: "Do {{x}}",
		Params: []string{"x"},
	}); err != nil {
		t.Fatal(err)
	}

	got := eval(t, e, `
		(define work (lambda (x) (* x 2)))
		(work 21)
	`)
	if got != int64(42) {
		t.Errorf("shadowed call = %v, want 42 from the local binding", got)
	}
	if h.count() != 0 {
		t.Error("template invoked despite local binding shadowing it")
	}
}

func TestEval_ToolApplication(t *testing.T) {
	e, registry := newEvaluator(t, &echoHandler{})
	registry.RegisterTool("double", func(_ context.Context, args []any) (any, error) {
		n := args[0].(int64)
		return n * 2, nil
	})

	if got := eval(t, e, "(double 8)"); got != int64(16) {
		t.Errorf("(double 8) = %v, want 16", got)
	}
}

func TestEval_GetContextReturnsMatches(t *testing.T) {
	retriever := &stubRetriever{
		summary: "two relevant files",
		matches: []handler.Match{
			{Path: "internal/auth/login.go", Relevance: 0.9, Excerpt: "func Login"},
			{Path: "internal/auth/token.go", Relevance: 0.4},
		},
	}
	e, _ := newEvaluator(t, &echoHandler{}, WithRetriever(retriever))

	got, ok := eval(t, e, `(get_context "auth flow" "internal/auth")`).([]any)
	if !ok {
		t.Fatalf("get_context did not return a list")
	}
	if len(got) != 2 {
		t.Fatalf("match count = %d, want 2", len(got))
	}
	first := got[0].(map[string]any)
	if first["path"] != "internal/auth/login.go" || first["relevance"] != 0.9 || first["excerpt"] != "func Login" {
		t.Errorf("first match = %v", first)
	}
	second := got[1].(map[string]any)
	if _, present := second["excerpt"]; present {
		t.Error("empty excerpt should be omitted")
	}
	if retriever.lastQuery != "auth flow" || len(retriever.lastPaths) != 1 {
		t.Errorf("retriever saw query=%q paths=%v", retriever.lastQuery, retriever.lastPaths)
	}
}

func TestEval_GetContextNoMatches(t *testing.T) {
	e, _ := newEvaluator(t, &echoHandler{}, WithRetriever(&stubRetriever{summary: "nothing"}))
	got := eval(t, e, `(get_context "q")`)
	if list, ok := got.([]any); !ok || len(list) != 0 {
		t.Errorf("get_context with no matches = %#v, want empty list", got)
	}
}

func TestEval_GetContextWithoutRetriever(t *testing.T) {
	e, _ := newEvaluator(t, &echoHandler{})
	_, err := e.EvalString(context.Background(), `(get_context "q")`)
	failure, ok := models.AsTaskFailure(err)
	if !ok || failure.Reason != models.ReasonContextRetrieval {
		t.Fatalf("error = %v, want context_retrieval_failure", err)
	}
}

func TestEval_Resources(t *testing.T) {
	tracker := resource.NewTracker(10, 0)
	if err := tracker.IncrementTurn(); err != nil {
		t.Fatal(err)
	}
	e, _ := newEvaluator(t, &echoHandler{}, WithTracker(tracker))

	got := eval(t, e, "(resources)").(map[string]any)
	if got["turns_used"] != int64(1) || got["turns_limit"] != int64(10) {
		t.Errorf("resources = %v", got)
	}
}

func TestEval_NestedLoopsExceedDepthBeforeAnyCall(t *testing.T) {
	h := &echoHandler{}
	e, registry := newEvaluator(t, h)

	register := func(tmpl *task.Template) {
		t.Helper()
		if err := registry.Register(tmpl); err != nil {
			t.Fatal(err)
		}
	}
	register(&task.Template{Name: "leaf", Prompt: "do the work"})
	register(&task.Template{Name: "judge", Prompt: "judge {{director_result}}"})

	// l1 -> l2 -> l3 -> l4 -> l5 -> leaf: the leaf sits one past the
	// default depth limit.
	directors := map[string]string{"l1": "l2", "l2": "l3", "l3": "l4", "l4": "l5", "l5": "leaf"}
	for name, director := range directors {
		register(&task.Template{
			Name: name,
			Type: models.OpDirectorEvaluatorLoop,
			Loop: &task.LoopSpec{Director: director, Evaluator: "judge", MaxIterations: 1},
		})
	}

	_, err := e.EvalString(context.Background(), "(l1)")
	failure, ok := models.AsTaskFailure(err)
	if !ok || failure.Reason != models.ReasonSubtaskFailure {
		t.Fatalf("error = %v, want subtask_failure", err)
	}
	if !strings.Contains(failure.Message, "depth") {
		t.Errorf("Message = %q, want a depth rejection", failure.Message)
	}
	if h.count() != 0 {
		t.Errorf("handler called %d times, want 0", h.count())
	}
}

func TestEval_MutuallyRecursiveLoopsRejected(t *testing.T) {
	h := &echoHandler{}
	e, registry := newEvaluator(t, h)

	for _, tmpl := range []*task.Template{
		{Name: "judge", Prompt: "judge {{director_result}}"},
		{Name: "a", Type: models.OpDirectorEvaluatorLoop, Loop: &task.LoopSpec{Director: "b", Evaluator: "judge"}},
		{Name: "b", Type: models.OpDirectorEvaluatorLoop, Loop: &task.LoopSpec{Director: "a", Evaluator: "judge"}},
	} {
		if err := registry.Register(tmpl); err != nil {
			t.Fatal(err)
		}
	}

	_, err := e.EvalString(context.Background(), "(a)")
	failure, ok := models.AsTaskFailure(err)
	if !ok || failure.Reason != models.ReasonSubtaskFailure {
		t.Fatalf("error = %v, want subtask_failure", err)
	}
	if !strings.Contains(failure.Message, "cycle") {
		t.Errorf("Message = %q, want a cycle rejection", failure.Message)
	}
	if h.count() != 0 {
		t.Errorf("handler called %d times, want 0", h.count())
	}
}

type stubRetriever struct {
	summary   string
	matches   []handler.Match
	lastQuery string
	lastPaths []string
}

func (s *stubRetriever) GetRelevantContext(_ context.Context, input *handler.ContextGenerationInput) (*handler.ContextResult, error) {
	s.lastQuery = input.Query
	s.lastPaths = input.Paths
	return &handler.ContextResult{Summary: s.summary, Matches: s.matches}, nil
}
