package scoring

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/invigilo/invigilo-backend/internal/model"
)

// fakeRunner evaluates "sum the input lines" style submissions without a real
// execution service. The behavior is keyed on the submitted code string.
type fakeRunner struct {
	calls int
	run   func(code, language, stdin string) (string, error)
}

func (f *fakeRunner) Run(_ context.Context, code, language, stdin string) (string, error) {
	f.calls++
	return f.run(code, language, stdin)
}

func newEngine(run func(code, language, stdin string) (string, error)) (*Engine, *fakeRunner) {
	r := &fakeRunner{run: run}
	return NewEngine(r, zerolog.Nop()), r
}

func TestScoreChoice(t *testing.T) {
	item := &model.Item{Kind: model.ItemKindChoice, AnswerKey: "Paris", Marks: 4}

	tests := []struct {
		name      string
		submitted string
		correct   bool
		marks     float64
	}{
		{name: "exact match", submitted: "Paris", correct: true, marks: 4},
		{name: "case and whitespace insensitive", submitted: " paris ", correct: true, marks: 4},
		{name: "wrong answer", submitted: "London", correct: false, marks: 0},
		{name: "absent submission", submitted: "", correct: false, marks: 0},
		{name: "whitespace only", submitted: "   ", correct: false, marks: 0},
	}

	e, _ := newEngine(nil)
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := e.ScoreChoice(item, tc.submitted)
			if got.Correct != tc.correct || got.Marks != tc.marks {
				t.Errorf("ScoreChoice(%q) = %+v, want correct=%v marks=%v",
					tc.submitted, got, tc.correct, tc.marks)
			}
		})
	}
}

func TestScoreCodeFractional(t *testing.T) {
	// 10 marks, 4 cases, 3 pass → 7.5.
	item := &model.Item{
		ID:        uuid.New(),
		Kind:      model.ItemKindCode,
		Marks:     10,
		TestCases: "1#1\n2#2\n3#3\n4#999",
	}

	e, runner := newEngine(func(_, _, stdin string) (string, error) {
		return stdin, nil // echo: passes every case whose expected equals its input
	})

	got := e.ScoreCode(context.Background(), item, Submission{Code: "echo"})
	if got.Marks != 7.5 {
		t.Errorf("marks = %v, want 7.5", got.Marks)
	}
	if got.Passed != 3 || got.Total != 4 {
		t.Errorf("passed/total = %d/%d, want 3/4", got.Passed, got.Total)
	}
	if runner.calls != 4 {
		t.Errorf("runner calls = %d, want 4", runner.calls)
	}
}

func TestScoreCodeScenarioPartialPass(t *testing.T) {
	// One CODE item worth 10 marks with 2 cases; the submission only satisfies
	// the first → score 5, ledger shows one passed and one failed case.
	item := &model.Item{
		ID:        uuid.New(),
		Kind:      model.ItemKindCode,
		Marks:     10,
		TestCases: "2,3#5\n10,20#30",
	}

	e, _ := newEngine(func(_, _, stdin string) (string, error) {
		if stdin == "2\n3" {
			return "5", nil
		}
		return "42", nil
	})

	got := e.ScoreCode(context.Background(), item, Submission{Code: "broken-sum"})
	if got.Marks != 5 {
		t.Errorf("marks = %v, want 5", got.Marks)
	}

	results := DecodeLedger(got.Ledger)
	if len(results) != 2 {
		t.Fatalf("ledger has %d entries, want 2", len(results))
	}
	if !results[0].Passed || results[1].Passed {
		t.Errorf("ledger pass flags = %v/%v, want true/false", results[0].Passed, results[1].Passed)
	}
	if results[1].Actual != "42" {
		t.Errorf("failed case actual = %q, want %q", results[1].Actual, "42")
	}
}

func TestScoreCodeAdapterFailureFailsSingleCase(t *testing.T) {
	item := &model.Item{
		ID:        uuid.New(),
		Kind:      model.ItemKindCode,
		Marks:     6,
		TestCases: "1#1\n2#2\n3#3",
	}

	e, runner := newEngine(func(_, _, stdin string) (string, error) {
		if stdin == "2" {
			return "", errors.New("execution service unavailable")
		}
		return stdin, nil
	})

	got := e.ScoreCode(context.Background(), item, Submission{Code: "echo"})
	if got.Passed != 2 {
		t.Errorf("passed = %d, want 2", got.Passed)
	}
	if runner.calls != 3 {
		t.Errorf("remaining cases must still run, calls = %d, want 3", runner.calls)
	}
	if !strings.Contains(got.Ledger, "execution service unavailable") {
		t.Errorf("ledger should record the error text as actual output: %q", got.Ledger)
	}
}

func TestScoreCodePrecomputedSkipsExecution(t *testing.T) {
	item := &model.Item{
		ID:        uuid.New(),
		Kind:      model.ItemKindCode,
		Marks:     10,
		TestCases: "2,3#5\n10,20#30",
	}

	ledger := EncodeLedger([]CaseResult{
		{Input: "2,3", Expected: "5", Actual: "5"},
		{Input: "10,20", Expected: "30", Actual: "29"},
	})

	e, runner := newEngine(func(_, _, _ string) (string, error) {
		return "", errors.New("must not be called")
	})

	got := e.ScoreCode(context.Background(), item, Submission{Code: "x", Precomputed: ledger})
	if runner.calls != 0 {
		t.Errorf("precomputed path must not hit the adapter, calls = %d", runner.calls)
	}
	// Pass/fail is recomputed from expected vs actual, not taken from the client.
	if got.Marks != 5 {
		t.Errorf("marks = %v, want 5", got.Marks)
	}
}

func TestScoreCodeTamperedLedgerReexecutes(t *testing.T) {
	item := &model.Item{
		ID:        uuid.New(),
		Kind:      model.ItemKindCode,
		Marks:     10,
		TestCases: "2,3#5\n10,20#30",
	}

	// A ledger whose expected halves were doctored to match the actuals.
	tampered := EncodeLedger([]CaseResult{
		{Input: "2,3", Expected: "7", Actual: "7"},
		{Input: "10,20", Expected: "99", Actual: "99"},
	})

	e, runner := newEngine(func(_, _, _ string) (string, error) {
		return "0", nil
	})

	got := e.ScoreCode(context.Background(), item, Submission{Code: "x", Precomputed: tampered})
	if runner.calls != 2 {
		t.Errorf("tampered ledger must force re-execution, calls = %d, want 2", runner.calls)
	}
	if got.Marks != 0 {
		t.Errorf("marks = %v, want 0", got.Marks)
	}
}

func TestScoreCodeNoValidCases(t *testing.T) {
	item := &model.Item{ID: uuid.New(), Kind: model.ItemKindCode, Marks: 10, TestCases: "no separator"}

	e, runner := newEngine(func(_, _, _ string) (string, error) {
		return "", errors.New("must not be called")
	})

	got := e.ScoreCode(context.Background(), item, Submission{Code: "x"})
	if got.Marks != 0 || got.Ledger != "" || runner.calls != 0 {
		t.Errorf("zero valid cases must score zero without execution, got %+v calls=%d", got, runner.calls)
	}
}

func TestParseSubmission(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want Submission
	}{
		{
			name: "raw source",
			in:   "print(input())",
			want: Submission{Code: "print(input())"},
		},
		{
			name: "bundle",
			in:   `{"code":"print(1)","language":"python","precomputedResults":"1#1@1"}`,
			want: Submission{Code: "print(1)", Language: "python", Precomputed: "1#1@1"},
		},
		{
			name: "json without code treated as raw",
			in:   `{"language":"python"}`,
			want: Submission{Code: `{"language":"python"}`},
		},
		{
			name: "braces in raw source",
			in:   "{ not json",
			want: Submission{Code: "{ not json"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := ParseSubmission(tc.in); got != tc.want {
				t.Errorf("ParseSubmission(%q) = %+v, want %+v", tc.in, got, tc.want)
			}
		})
	}
}
