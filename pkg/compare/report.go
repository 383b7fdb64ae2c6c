package compare

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/natefinch/atomic"
)

// Status is the verdict for one pair
type Status string

const (
	StatusPass Status = "pass"
	StatusFail Status = "fail"
	StatusSkip Status = "skip"
)

// Outcome is the result of checking one pair
type Outcome struct {
	Index   int    `json:"index"`
	SQL     string `json:"sql"`
	Mode    string `json:"mode,omitempty"`
	Status  Status `json:"status"`
	Message string `json:"message"`
	Hits    int64  `json:"hits,omitempty"`
	Groups  int    `json:"groups,omitempty"`
}

func (o Outcome) pass(msg string) Outcome {
	o.Status = StatusPass
	o.Message = msg
	return o
}

func (o Outcome) fail(msg string) Outcome {
	o.Status = StatusFail
	o.Message = msg
	return o
}

func (o Outcome) skip(reason string) Outcome {
	o.Status = StatusSkip
	o.Message = fmt.Sprintf("query %d not yet tested: %s", o.Index, reason)
	return o
}

// Report collects the outcomes of a run in pair order
type Report struct {
	GeneratedAt string    `json:"generated_at"`
	Passed      int       `json:"passed"`
	Failed      int       `json:"failed"`
	Skipped     int       `json:"skipped"`
	Outcomes    []Outcome `json:"outcomes"`
}

// Add appends an outcome and updates the totals
func (r *Report) Add(o Outcome) {
	r.Outcomes = append(r.Outcomes, o)
	switch o.Status {
	case StatusPass:
		r.Passed++
	case StatusFail:
		r.Failed++
	case StatusSkip:
		r.Skipped++
	}
}

// OK reports whether no pair failed
func (r *Report) OK() bool {
	return r.Failed == 0
}

// Failures returns the failed outcomes
func (r *Report) Failures() []Outcome {
	var out []Outcome
	for _, o := range r.Outcomes {
		if o.Status == StatusFail {
			out = append(out, o)
		}
	}
	return out
}

// Summary is a one-line description of the totals
func (r *Report) Summary() string {
	return fmt.Sprintf("%d queries: %d passed, %d failed, %d skipped",
		len(r.Outcomes), r.Passed, r.Failed, r.Skipped)
}

// WriteFile writes the report as indented JSON, replacing path atomically
func (r *Report) WriteFile(path string) error {
	if r.GeneratedAt == "" {
		r.GeneratedAt = time.Now().Format(time.RFC3339)
	}

	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}

	if err := atomic.WriteFile(path, bytes.NewReader(append(data, '\n'))); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	return nil
}
