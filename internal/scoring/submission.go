package scoring

import (
	"encoding/json"
	"strings"
)

// Submission is the resolved form of a raw answer value. The stored value is
// either plain source text or a JSON bundle carrying code, language, and a
// ledger of results the client already computed while editing. The shape is
// resolved once here, at the boundary, instead of re-sniffed at every call site.
type Submission struct {
	Code     string
	Language string
	// Precomputed is the client-supplied result ledger, if any. It lets the
	// server skip re-execution, but pass/fail is always recomputed and the
	// ledger is validated against the item's current test cases first.
	Precomputed string
}

type submissionBundle struct {
	Code        string `json:"code"`
	Language    string `json:"language"`
	Precomputed string `json:"precomputedResults"`
}

// ParseSubmission resolves a raw answer value into a Submission.
// Anything that does not decode as a bundle with a non-empty code field is
// treated as plain source text.
func ParseSubmission(value string) Submission {
	trimmed := strings.TrimSpace(value)
	if strings.HasPrefix(trimmed, "{") {
		var b submissionBundle
		if err := json.Unmarshal([]byte(trimmed), &b); err == nil && b.Code != "" {
			return Submission{Code: b.Code, Language: b.Language, Precomputed: b.Precomputed}
		}
	}
	return Submission{Code: value}
}
