package feedback

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/kozaktomas/photo-styler/internal/params"
)

// fakeDelegate scripts a single delegate outcome for interpreter tests.
type fakeDelegate struct {
	delta    params.Delta
	err      error
	block    bool
	calls    int
	lastText string
}

func (f *fakeDelegate) Name() string {
	return "fake"
}

func (f *fakeDelegate) Interpret(ctx context.Context, text string, axes []params.Axis) (params.Delta, error) {
	f.calls++
	f.lastText = text
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return f.delta, f.err
}

func newTestInterpreter(t *testing.T, opts ...InterpreterOption) *Interpreter {
	t.Helper()
	i, err := NewInterpreter(opts...)
	if err != nil {
		t.Fatalf("NewInterpreter failed: %v", err)
	}
	return i
}

func TestInterpret_RulesBasics(t *testing.T) {
	tests := []struct {
		name string
		text string
		want map[params.Axis]float64 // expected sign per axis, 0 = must be absent
	}{
		{
			name: "warmer with grain",
			text: "more grain and warmer whites",
			want: map[params.Axis]float64{params.Grain: 1, params.WhiteBalance: 1},
		},
		{
			name: "negated grain",
			text: "less grain please",
			want: map[params.Axis]float64{params.Grain: -1},
		},
		{
			name: "too much inverts",
			text: "too much contrast",
			want: map[params.Axis]float64{params.Contrast: -1},
		},
		{
			name: "darker mood",
			text: "make it darker and moodier",
			want: map[params.Axis]float64{params.Exposure: -1},
		},
		{
			name: "repeated phrase counts once",
			text: "warmer, warmer, much warmer",
			want: map[params.Axis]float64{params.WhiteBalance: 1},
		},
		{
			name: "unmatched text",
			text: "I like turtles",
			want: map[params.Axis]float64{},
		},
		{
			name: "empty text",
			text: "   ",
			want: map[params.Axis]float64{},
		},
	}

	i := newTestInterpreter(t)
	maxStep := 30.0

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			delta := i.Interpret(context.Background(), tc.text, nil)

			if len(delta) != len(tc.want) {
				t.Fatalf("expected %d axes, got %v", len(tc.want), delta)
			}
			for axis, sign := range tc.want {
				v, ok := delta[axis]
				if !ok {
					t.Errorf("axis %s missing from delta %v", axis, delta)
					continue
				}
				if sign > 0 && v <= 0 {
					t.Errorf("axis %s should be positive, got %f", axis, v)
				}
				if sign < 0 && v >= 0 {
					t.Errorf("axis %s should be negative, got %f", axis, v)
				}
				if v < -maxStep || v > maxStep {
					t.Errorf("axis %s step %f exceeds the conservative bound", axis, v)
				}
			}
		})
	}
}

func TestInterpret_DiacriticsFold(t *testing.T) {
	i := newTestInterpreter(t)

	plain := i.Interpret(context.Background(), "warmer", nil)
	accented := i.Interpret(context.Background(), "wármér", nil)

	if len(plain) == 0 {
		t.Fatal("plain spelling should match a rule")
	}
	if accented[params.WhiteBalance] != plain[params.WhiteBalance] {
		t.Errorf("accented spelling should match like plain: %v vs %v", accented, plain)
	}
}

func TestInterpret_DelegateAuthoritative(t *testing.T) {
	// The delegate answers with an axis the rules would never pick from
	// this text; its answer must win outright.
	d := &fakeDelegate{delta: params.Delta{params.Clarity: 12}}
	i := newTestInterpreter(t, WithDelegate(d))

	delta := i.Interpret(context.Background(), "more grain", nil)

	if d.calls != 1 {
		t.Fatalf("delegate should be consulted once, got %d calls", d.calls)
	}
	if len(delta) != 1 || delta[params.Clarity] != 12 {
		t.Errorf("delegate answer should be authoritative, got %v", delta)
	}
}

func TestInterpret_DelegateEmptyAnswerWins(t *testing.T) {
	d := &fakeDelegate{delta: params.Delta{}}
	i := newTestInterpreter(t, WithDelegate(d))

	delta := i.Interpret(context.Background(), "more grain", nil)
	if len(delta) != 0 {
		t.Errorf("parsed empty delegate answer must not fall back to rules, got %v", delta)
	}
}

func TestInterpret_DelegateErrorFallsBack(t *testing.T) {
	d := &fakeDelegate{err: errors.New("backend down")}
	i := newTestInterpreter(t, WithDelegate(d))

	delta := i.Interpret(context.Background(), "more grain", nil)

	if delta[params.Grain] <= 0 {
		t.Errorf("rules fallback should still nudge grain, got %v", delta)
	}
}

func TestInterpret_DelegateTimeoutFallsBack(t *testing.T) {
	d := &fakeDelegate{block: true}
	i := newTestInterpreter(t,
		WithDelegate(d),
		WithDelegateTimeout(10*time.Millisecond),
	)

	start := time.Now()
	delta := i.Interpret(context.Background(), "warmer", nil)
	elapsed := time.Since(start)

	if delta[params.WhiteBalance] <= 0 {
		t.Errorf("rules fallback should answer after timeout, got %v", delta)
	}
	if elapsed > time.Second {
		t.Errorf("timeout did not bound the delegate call, took %v", elapsed)
	}
}

func TestInterpret_DelegateUnknownAxesDropped(t *testing.T) {
	d := &fakeDelegate{delta: params.Delta{
		params.Grain:        10,
		params.Axis("vibe"): 50,
	}}
	i := newTestInterpreter(t, WithDelegate(d))

	delta := i.Interpret(context.Background(), "whatever", nil)

	if _, ok := delta[params.Axis("vibe")]; ok {
		t.Error("invented axis must not survive sanitization")
	}
	if delta[params.Grain] != 10 {
		t.Errorf("known axis should survive, got %v", delta)
	}
}

func TestInterpret_DelegateSeesCurrentParameters(t *testing.T) {
	d := &fakeDelegate{delta: params.Delta{}}
	i := newTestInterpreter(t, WithDelegate(d))

	current := params.NewVector()
	if err := current.Set(params.Grain, 40); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	i.Interpret(context.Background(), "a bit more", current)

	if !strings.Contains(d.lastText, "grain: 40") {
		t.Errorf("delegate input should carry current values, got %q", d.lastText)
	}
	if !strings.Contains(d.lastText, "a bit more") {
		t.Errorf("delegate input should carry the feedback text, got %q", d.lastText)
	}
}

func TestParseDelegateResponse(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr bool
		axes    int
	}{
		{"valid", `{"deltas": {"grain": 20, "exposure": -10}}`, false, 2},
		{"empty deltas", `{"deltas": {}}`, false, 0},
		{"missing deltas key", `{}`, false, 0},
		{"not json", `sure, I'll warm it up!`, true, 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			delta, err := parseDelegateResponse(tc.content)
			if tc.wantErr {
				if err == nil {
					t.Error("expected parse error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(delta) != tc.axes {
				t.Errorf("expected %d axes, got %v", tc.axes, delta)
			}
		})
	}
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		expected string
	}{
		{"plain object", `{"deltas": {}}`, `{"deltas": {}}`},
		{"fenced", "```json\n{\"deltas\": {\"grain\": 5}}\n```", `{"deltas": {"grain": 5}}`},
		{"prose around", `Here you go: {"deltas": {}} hope that helps`, `{"deltas": {}}`},
		{"nested braces", `{"deltas": {"a": 1}}`, `{"deltas": {"a": 1}}`},
		{"no json", "nothing here", "nothing here"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := extractJSON(tc.content); got != tc.expected {
				t.Errorf("extractJSON(%q) = %q; want %q", tc.content, got, tc.expected)
			}
		})
	}
}
