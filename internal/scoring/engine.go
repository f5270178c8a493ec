package scoring

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/invigilo/invigilo-backend/internal/model"
)

// Runner executes submitted source code against one standard input and
// returns the captured standard output. Implemented by the execution adapter
// client; the engine treats any returned error as a failed case, never as a
// fatal scoring error.
type Runner interface {
	Run(ctx context.Context, code, language, stdin string) (string, error)
}

// Engine scores submitted answers against item answer keys. Choice/text
// scoring is pure; code scoring issues one Runner call per test case unless a
// valid precomputed ledger lets it skip execution.
type Engine struct {
	runner Runner
	log    zerolog.Logger
}

// NewEngine creates a scoring engine.
func NewEngine(runner Runner, log zerolog.Logger) *Engine {
	return &Engine{
		runner: runner,
		log:    log.With().Str("component", "scoring_engine").Logger(),
	}
}

// ChoiceResult is the outcome of scoring a deterministic (choice/text) answer.
type ChoiceResult struct {
	Correct bool
	Marks   float64
}

// CodeResult is the outcome of scoring a code answer.
type CodeResult struct {
	Marks  float64
	Ledger string
	Passed int
	Total  int
}

// ScoreChoice normalizes both sides (trim + lowercase) and awards full item
// marks on exact match, zero otherwise. There is no partial credit for this
// kind, and an absent submission is incorrect rather than an error.
func (e *Engine) ScoreChoice(item *model.Item, submitted string) ChoiceResult {
	if normalize(submitted) == "" {
		return ChoiceResult{}
	}
	if normalize(submitted) != normalize(item.AnswerKey) {
		return ChoiceResult{}
	}
	return ChoiceResult{Correct: true, Marks: float64(item.Marks)}
}

// ScoreCode scores a code submission against the item's ordered test cases.
// Each case is worth marks/caseCount, fractional. An item with zero valid
// cases scores zero with no error. The returned ledger is always rebuilt as
// the authoritative record, in test-case order.
func (e *Engine) ScoreCode(ctx context.Context, item *model.Item, sub Submission) CodeResult {
	cases := ParseTestCases(item.TestCases)
	if len(cases) == 0 {
		return CodeResult{}
	}

	// Precomputed path: the client already ran the cases while editing, so the
	// adapter is not charged twice for identical work. The ledger must still
	// line up with the item's current test cases; a stale or tampered ledger
	// falls through to real execution.
	if sub.Precomputed != "" {
		if results, ok := replayLedger(cases, sub.Precomputed); ok {
			return e.tally(item, results)
		}
		e.log.Warn().
			Str("item_id", item.ID.String()).
			Msg("Precomputed ledger does not match item test cases, re-executing")
	}

	results := make([]CaseResult, 0, len(cases))
	for _, tc := range cases {
		r := CaseResult{Input: tc.Input, Expected: tc.Expected}

		lang := sub.Language
		if lang == "" {
			lang = item.Language
		}

		out, err := e.runner.Run(ctx, sub.Code, lang, FormatInput(tc.Input))
		if err != nil {
			// Adapter failure fails this one case; remaining cases still run.
			r.Actual = err.Error()
		} else {
			r.Actual = out
			r.Passed = outputsMatch(tc.Expected, out)
		}
		results = append(results, r)
	}

	return e.tally(item, results)
}

// replayLedger decodes a client-supplied ledger and checks it against the
// item's declared cases, position by position. Pass/fail comes out of
// DecodeLedger's own expected/actual comparison.
func replayLedger(cases []TestCase, ledger string) ([]CaseResult, bool) {
	results := DecodeLedger(ledger)
	if len(results) != len(cases) {
		return nil, false
	}
	for i, tc := range cases {
		if strings.TrimSpace(results[i].Input) != strings.TrimSpace(tc.Input) ||
			strings.TrimSpace(results[i].Expected) != strings.TrimSpace(tc.Expected) {
			return nil, false
		}
	}
	return results, true
}

func (e *Engine) tally(item *model.Item, results []CaseResult) CodeResult {
	passed := 0
	for _, r := range results {
		if r.Passed {
			passed++
		}
	}
	return CodeResult{
		Marks:  float64(item.Marks) * float64(passed) / float64(len(results)),
		Ledger: EncodeLedger(results),
		Passed: passed,
		Total:  len(results),
	}
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
