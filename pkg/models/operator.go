package models

// OperatorType classifies a task template and selects its built-in
// context-management defaults.
type OperatorType string

const (
	// OpAtomic is a single non-recursive LLM/tool invocation.
	OpAtomic OperatorType = "atomic"
	// OpSequential runs steps in order, accumulating step summaries.
	OpSequential OperatorType = "sequential"
	// OpReduce folds many inputs into one output from full step outputs.
	OpReduce OperatorType = "reduce"
	// OpScript is a shell-command step with no inherited context.
	OpScript OperatorType = "script"
	// OpDirectorEvaluatorLoop is the iterative refinement loop operator.
	OpDirectorEvaluatorLoop OperatorType = "director_evaluator_loop"
)

// Valid returns true if the operator type is a known value.
func (t OperatorType) Valid() bool {
	switch t {
	case OpAtomic, OpSequential, OpReduce, OpScript, OpDirectorEvaluatorLoop:
		return true
	default:
		return false
	}
}
