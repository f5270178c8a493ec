package scoring

import "strings"

// Wire markers for the persisted test-case encoding. Consumers reconstructing
// historical ledgers must split on these exact literals in this exact order:
// cases on CaseJoiner, then expected-from-actual on SepExpectedActual, then
// input-from-expected on SepInputExpected.
const (
	// SepInputExpected delimits input from expected output within one test case.
	SepInputExpected = "#"
	// SepExpectedActual delimits expected from actual output within one ledger entry.
	SepExpectedActual = "@"
	// CaseJoiner joins ledger entries.
	CaseJoiner = "||"
)

// TestCase is one declared input/expected-output pair of a CODE item.
type TestCase struct {
	Input    string
	Expected string
}

// CaseResult is one executed (or replayed) test case with its recorded output.
type CaseResult struct {
	Input    string
	Expected string
	Actual   string
	Passed   bool
}

// ParseTestCases decodes the newline-joined test-case field of a CODE item.
// Malformed entries (no separator, or both halves blank after trim) are
// skipped entirely; they contribute nothing to scoring.
func ParseTestCases(raw string) []TestCase {
	var cases []TestCase
	for _, line := range strings.Split(raw, "\n") {
		input, expected, ok := strings.Cut(line, SepInputExpected)
		if !ok {
			continue
		}
		if strings.TrimSpace(input) == "" && strings.TrimSpace(expected) == "" {
			continue
		}
		cases = append(cases, TestCase{Input: input, Expected: expected})
	}
	return cases
}

// EncodeLedger serializes case results in test-case order. The ledger is
// always rebuilt from these results, never echoed from client input.
func EncodeLedger(results []CaseResult) string {
	entries := make([]string, 0, len(results))
	for _, r := range results {
		entries = append(entries, r.Input+SepInputExpected+r.Expected+SepExpectedActual+r.Actual)
	}
	return strings.Join(entries, CaseJoiner)
}

// DecodeLedger parses a persisted ledger back into case results. Pass/fail is
// recomputed from the embedded expected/actual halves — a client-asserted
// "passed" flag is never part of the encoding and never trusted.
func DecodeLedger(ledger string) []CaseResult {
	if ledger == "" {
		return nil
	}
	var results []CaseResult
	for _, entry := range strings.Split(ledger, CaseJoiner) {
		head, actual, ok := strings.Cut(entry, SepExpectedActual)
		if !ok {
			continue
		}
		input, expected, ok := strings.Cut(head, SepInputExpected)
		if !ok {
			continue
		}
		results = append(results, CaseResult{
			Input:    input,
			Expected: expected,
			Actual:   actual,
			Passed:   outputsMatch(expected, actual),
		})
	}
	return results
}

// FormatInput converts a declared case input into the stdin convention of the
// execution environment: comma-joined literals become newline-separated lines.
// Multiple comma-joined literals are logically one test case.
func FormatInput(input string) string {
	parts := strings.Split(input, ",")
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	return strings.Join(parts, "\n")
}

func outputsMatch(expected, actual string) bool {
	return strings.TrimSpace(expected) == strings.TrimSpace(actual)
}
