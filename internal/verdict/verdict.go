// Package verdict defines the closed set of test-outcome categories and
// the per-test result record shared by both wire protocols.
package verdict

import "fmt"

// Verdict is a categorical outcome for one test or one submission.
type Verdict string

const (
	OK Verdict = "OK" // accepted
	WA Verdict = "WA" // wrong answer
	TL Verdict = "TL" // time limit exceeded
	RE Verdict = "RE" // runtime error
	ML Verdict = "ML" // memory limit exceeded
	TE Verdict = "TE" // testing error (broker/invoker infrastructure failure)
	CE Verdict = "CE" // compile error
	SL Verdict = "SL" // security/sandbox limit violation
	SK Verdict = "SK" // skipped
	PE Verdict = "PE" // presentation error
	UV Verdict = "UV" // unknown/unparseable, never produced by a well-formed peer
)

// Parse is total: any string outside the closed set maps to UV.
func Parse(s string) Verdict {
	switch Verdict(s) {
	case OK, WA, TL, RE, ML, TE, CE, SL, SK, PE:
		return Verdict(s)
	default:
		return UV
	}
}

// String returns the two-letter wire mnemonic. Total over the closed set.
func (v Verdict) String() string {
	return string(v)
}

// TestResult is the outcome of a single test case.
type TestResult struct {
	Verdict Verdict
	Time    float64 // seconds
	Memory  uint32  // KiB
}

// NewTestResult returns the default, pre-execution result: skipped, 0s, 0 KiB.
func NewTestResult() TestResult {
	return TestResult{Verdict: SK, Time: 0, Memory: 0}
}

// Line renders a TestResult as one line of a results payload: "<V> <t> <m>".
func (r TestResult) Line() string {
	return fmt.Sprintf("%s %v %d", r.Verdict, r.Time, r.Memory)
}
