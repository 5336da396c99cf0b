// Package record defines the result and skipped-file records persisted by
// cometwatch, plus the key scheme used to address them.
package record

import (
	"crypto/sha256"
	"encoding/hex"
	"math"
)

// SkipReasonInsufficientLines is recorded when a file has fewer than two
// non-blank lines.
const SkipReasonInsufficientLines = "insufficient lines"

// keyHashLen is the number of hex characters of the content hash kept in a key.
const keyHashLen = 16

// Result is one scored translation triple.
type Result struct {
	File      string  `json:"file"`
	Source    string  `json:"source"`
	MTOutput  string  `json:"mt_output"`
	Reference *string `json:"reference"`
	Score     float64 `json:"comet_score"`
	Warning   bool    `json:"warning"`
}

// Key returns the store key of the result.
func (r Result) Key() string {
	return Key(r.File, r.Source, r.MTOutput)
}

// ReferenceText returns the reference or "" when absent.
func (r Result) ReferenceText() string {
	if r.Reference == nil {
		return ""
	}
	return *r.Reference
}

// Skipped describes an input file that could not be scored.
type Skipped struct {
	File   string   `json:"file"`
	Reason string   `json:"reason"`
	Lines  []string `json:"lines"`
}

// Key derives the composite key for a file and its scored content.
// Identical source and MT text under the same file name always yield the same
// key; editing either produces a new one. Hash collisions are accepted.
func Key(file, source, mt string) string {
	h := sha256.New()
	h.Write([]byte(source))
	h.Write([]byte{0})
	h.Write([]byte(mt))
	return file + "#" + hex.EncodeToString(h.Sum(nil))[:keyHashLen]
}

// IsWarning reports whether score falls below the acceptability threshold.
func IsWarning(score, threshold float64) bool {
	return score < threshold
}

// RoundScore rounds a score to four decimal digits.
func RoundScore(score float64) float64 {
	return math.Round(score*1e4) / 1e4
}

// NewResult builds a result with the score rounded and the warning flag set.
func NewResult(file, source, mt string, reference *string, score, threshold float64) Result {
	rounded := RoundScore(score)
	return Result{
		File:      file,
		Source:    source,
		MTOutput:  mt,
		Reference: reference,
		Score:     rounded,
		Warning:   IsWarning(rounded, threshold),
	}
}

// StringPtr returns a pointer to s.
func StringPtr(s string) *string {
	return &s
}
