// Package evaluator defines the expression-evaluation hook API spec.md
// §6 describes: a small collaborator interface the core consumes but
// never implements. Default values, calculated columns, and validation
// rules all involve an expression language (date/number formatting,
// user-defined functions, column bindings) that spec.md deliberately
// keeps out of the core engine's scope — it is supplied by whatever
// caller wires a Config into catalog.Database/jetdb.Database, the same
// way internal/catalog's LinkResolver is supplied rather than built in.
package evaluator

import "github.com/jetfile/jetdb/internal/table"

// Row is the column-name-to-value view every hook receives. It is the
// same shape internal/table and internal/catalog already pass around;
// this package does not introduce a second row representation.
type Row = map[string]any

// Function is a user-defined function an expression can call by name,
// looked up through Config.FunctionLookup.
type Function func(args ...any) (any, error)

// Result is the outcome of a per-column or per-row validation rule: an
// empty Message means the rule passed.
type Result struct {
	Message string
}

// OK reports whether the result represents a passing validation.
func (r Result) OK() bool { return r.Message == "" }

// Pass is the zero Result, for hooks that found nothing wrong.
var Pass = Result{}

// Fail builds a failing Result carrying message.
func Fail(message string) Result { return Result{Message: message} }

// Evaluator is the collaborator interface the core calls into for
// default values, calculated columns, and validation — spec.md §6's
// evaluateDefault/evaluateCalculated/validateColumn/validateRow. A caller
// that never uses expressions can pass a Config with a nil Evaluator;
// jetdb.Database then substitutes NoopEvaluator and still calls its hooks.
type Evaluator interface {
	// EvaluateDefault is invoked when column has a default-value
	// expression and the row being inserted carries a null for it.
	EvaluateDefault(column table.ColumnDef, rowBeingInserted Row) (any, error)

	// EvaluateCalculated is invoked for every calculated column at
	// insert and update, after ordinary column values have been placed.
	EvaluateCalculated(column table.ColumnDef, row Row) (any, error)

	// ValidateColumn is invoked once per column carrying a validation
	// rule, after defaults and calculated values have been resolved.
	ValidateColumn(column table.ColumnDef, row Row) (Result, error)

	// ValidateRow is invoked once per row, after every column validator
	// has passed.
	ValidateRow(tableName string, row Row) (Result, error)

	// LookupFunction resolves a user-defined function referenced from an
	// expression. ok is false if name is not recognized.
	LookupFunction(name string) (fn Function, ok bool)
}

// TemporalConfig carries date-time formatting options an Evaluator's
// expressions may consult (spec.md §6's temporalConfig).
type TemporalConfig struct {
	// Layout is the Go time.Format/time.Parse reference layout used when
	// an expression renders or parses a date-time as text.
	Layout string
	// Location names the IANA time zone date-time literals without an
	// explicit offset are interpreted in.
	Location string
}

// NumericConfig carries number-formatting options an Evaluator's
// expressions may consult (spec.md §6's numericConfig).
type NumericConfig struct {
	DecimalSeparator  string
	ThousandSeparator string
	CurrencySymbol    string
}

// Config is the EvalConfig struct spec.md §6 names: a bag of options the
// core merely holds and forwards to whichever Evaluator a caller
// supplies, never inspecting the contents itself.
type Config struct {
	Temporal TemporalConfig
	Numeric  NumericConfig

	Eval Evaluator

	// Bindings is an opaque key-value bag an Evaluator's expressions may
	// read (spec.md §6's bindings) — query parameters, session-scoped
	// variables, whatever the caller's expression language needs that
	// isn't itself a column value.
	Bindings map[string]any
}

// NoopEvaluator implements Evaluator with hooks that do nothing: no
// default, no calculated value, every validation passes, no function
// resolves. A caller that registers column-level default/calculated
// expressions or validation rules without supplying a real Evaluator
// gets this behavior rather than a nil-pointer panic.
type NoopEvaluator struct{}

func (NoopEvaluator) EvaluateDefault(table.ColumnDef, Row) (any, error)    { return nil, nil }
func (NoopEvaluator) EvaluateCalculated(table.ColumnDef, Row) (any, error) { return nil, nil }
func (NoopEvaluator) ValidateColumn(table.ColumnDef, Row) (Result, error)  { return Pass, nil }
func (NoopEvaluator) ValidateRow(string, Row) (Result, error)              { return Pass, nil }
func (NoopEvaluator) LookupFunction(string) (Function, bool)               { return nil, false }
