package feedback

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kozaktomas/photo-styler/internal/params"
)

// defaultDelegateTimeout bounds how long a delegate may stall a feedback
// round before the offline rules take over.
const defaultDelegateTimeout = 10 * time.Second

// Interpreter turns free-form feedback text into a sparse parameter
// delta. It always answers: when no delegate is configured, or the
// delegate fails or times out, the embedded rules table is used instead.
type Interpreter struct {
	rules           *ruleSet
	delegate        Delegate
	delegateTimeout time.Duration
	logger          *zap.Logger
}

// InterpreterOption configures an Interpreter.
type InterpreterOption func(*Interpreter)

// WithDelegate routes feedback through a language-model backend before
// falling back to the rules table.
func WithDelegate(d Delegate) InterpreterOption {
	return func(i *Interpreter) {
		i.delegate = d
	}
}

// WithDelegateTimeout bounds a single delegate call.
func WithDelegateTimeout(timeout time.Duration) InterpreterOption {
	return func(i *Interpreter) {
		if timeout > 0 {
			i.delegateTimeout = timeout
		}
	}
}

// WithInterpreterLogger sets the logger. Defaults to a no-op logger.
func WithInterpreterLogger(logger *zap.Logger) InterpreterOption {
	return func(i *Interpreter) {
		i.logger = logger
	}
}

// NewInterpreter compiles the embedded rules table and applies options.
func NewInterpreter(opts ...InterpreterOption) (*Interpreter, error) {
	rules, err := loadRules()
	if err != nil {
		return nil, err
	}

	i := &Interpreter{
		rules:           rules,
		delegateTimeout: defaultDelegateTimeout,
		logger:          zap.NewNop(),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i, nil
}

// Interpret maps feedback text to a parameter delta. current provides
// the axis values the feedback refers to; delegates see them so that
// "a bit more" style requests have something to be relative to. The
// result may be empty when nothing in the text is actionable; it is
// never an error. A parsed delegate answer is authoritative, including
// an empty one: the model saw the text and decided nothing should move.
func (i *Interpreter) Interpret(ctx context.Context, text string, current *params.Vector) params.Delta {
	if strings.TrimSpace(text) == "" {
		return params.Delta{}
	}

	if i.delegate != nil {
		delta, ok := i.tryDelegate(ctx, text, current)
		if ok {
			return delta
		}
	}

	delta := i.rules.apply(text)
	if len(delta) == 0 {
		i.logger.Warn("feedback matched no rules", zap.String("text", text))
	}
	return delta
}

// tryDelegate runs the delegate under its timeout and sanitizes the
// answer. A failure of any kind reports !ok so the caller falls back.
func (i *Interpreter) tryDelegate(ctx context.Context, text string, current *params.Vector) (params.Delta, bool) {
	ctx, cancel := context.WithTimeout(ctx, i.delegateTimeout)
	defer cancel()

	raw, err := i.delegate.Interpret(ctx, delegateInput(text, current), params.Axes)
	if err != nil {
		i.logger.Warn("feedback delegate failed, falling back to rules",
			zap.String("delegate", i.delegate.Name()),
			zap.Error(err))
		return nil, false
	}

	delta := params.Delta{}
	for axis, v := range raw {
		if !params.Valid(axis) {
			i.logger.Warn("feedback delegate returned unknown axis",
				zap.String("delegate", i.delegate.Name()),
				zap.String("axis", string(axis)))
			continue
		}
		delta[axis] = v
	}
	return delta, true
}

// delegateInput prefixes the feedback with the current axis values so
// relative requests are grounded.
func delegateInput(text string, current *params.Vector) string {
	if current == nil {
		return text
	}
	var b strings.Builder
	b.WriteString("Current parameters:\n")
	for _, a := range params.Axes {
		fmt.Fprintf(&b, "  %s: %.0f\n", a, current.Get(a))
	}
	b.WriteString("\nFeedback: ")
	b.WriteString(text)
	return b.String()
}
