package scoring

import (
	"reflect"
	"testing"
)

func TestParseTestCases(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []TestCase
	}{
		{
			name: "two valid cases",
			raw:  "2,3#5\n10,20#30",
			want: []TestCase{{Input: "2,3", Expected: "5"}, {Input: "10,20", Expected: "30"}},
		},
		{
			name: "missing separator skipped",
			raw:  "2,3#5\nno separator here\n1#1",
			want: []TestCase{{Input: "2,3", Expected: "5"}, {Input: "1", Expected: "1"}},
		},
		{
			name: "both halves blank skipped",
			raw:  "  #  \n4#16",
			want: []TestCase{{Input: "4", Expected: "16"}},
		},
		{
			name: "empty input kept when expected present",
			raw:  "#hello",
			want: []TestCase{{Input: "", Expected: "hello"}},
		},
		{
			name: "empty field",
			raw:  "",
			want: nil,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := ParseTestCases(tc.raw)
			if !reflect.DeepEqual(got, tc.want) {
				t.Errorf("ParseTestCases(%q) = %v, want %v", tc.raw, got, tc.want)
			}
		})
	}
}

func TestLedgerRoundTrip(t *testing.T) {
	in := []CaseResult{
		{Input: "2,3", Expected: "5", Actual: "5", Passed: true},
		{Input: "10,20", Expected: "30", Actual: "31", Passed: false},
		{Input: "0,0", Expected: "0", Actual: "runtime error", Passed: false},
	}

	encoded := EncodeLedger(in)
	want := "2,3#5@5||10,20#30@31||0,0#0@runtime error"
	if encoded != want {
		t.Fatalf("EncodeLedger = %q, want %q", encoded, want)
	}

	decoded := DecodeLedger(encoded)
	if !reflect.DeepEqual(decoded, in) {
		t.Errorf("round trip mismatch:\n got %v\nwant %v", decoded, in)
	}
}

func TestDecodeLedgerRecomputesPassed(t *testing.T) {
	// Whitespace differences between expected and actual must not fail a case.
	decoded := DecodeLedger("1#ok@ ok \n")
	if len(decoded) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(decoded))
	}
	if !decoded[0].Passed {
		t.Errorf("expected trimmed comparison to pass")
	}
}

func TestDecodeLedgerEmpty(t *testing.T) {
	if got := DecodeLedger(""); got != nil {
		t.Errorf("DecodeLedger(\"\") = %v, want nil", got)
	}
}

func TestFormatInput(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"2,3", "2\n3"},
		{"2, 3", "2\n3"},
		{"single", "single"},
		{"a,b,c", "a\nb\nc"},
	}

	for _, tc := range tests {
		if got := FormatInput(tc.in); got != tc.want {
			t.Errorf("FormatInput(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
