package runner

import (
	"context"
	"slices"
	"strings"

	"github.com/rendis/flowgen/internal/program"
	"github.com/rendis/flowgen/pkg/schema"
)

// Case is one test case: the input tokens fed to the project and the output
// it is expected to print, both whitespace separated.
type Case struct {
	Input    string `json:"input"`
	Expected string `json:"expected"`
}

// Failure records a trial whose output differed from the expectation or
// that failed to run.
type Failure struct {
	Case   int      `json:"case"`
	Trial  int      `json:"trial"`
	Got    []string `json:"got,omitempty"`
	Error  string   `json:"error,omitempty"`
	Wanted []string `json:"wanted"`
}

// Report summarises a Trials call.
type Report struct {
	Runs     int       `json:"runs"`
	Passed   int       `json:"passed"`
	Failures []Failure `json:"failures,omitempty"`
}

// OK reports whether every trial passed.
func (r *Report) OK() bool { return len(r.Failures) == 0 }

// Trials runs every case k times. Repetition exposes outputs that depend on
// how the programs' goroutines interleave. k must be in 1..MaxTrials.
func (r *Runner) Trials(ctx context.Context, programs []*program.Program, variables []string, cases []Case, k int) (*Report, error) {
	if k < 1 || k > MaxTrials {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "trial count must be between 1 and %d, got %d", MaxTrials, k)
	}
	if len(cases) == 0 {
		return nil, schema.NewError(schema.ErrCodeValidation, "no test cases")
	}

	rep := &Report{}
	for ci, c := range cases {
		wanted := strings.Fields(c.Expected)
		for trial := 1; trial <= k; trial++ {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			rep.Runs++
			res, err := r.Run(ctx, programs, variables, c.Input)
			if err != nil {
				rep.Failures = append(rep.Failures, Failure{Case: ci, Trial: trial, Error: err.Error(), Wanted: wanted})
				continue
			}
			got := strings.Fields(strings.Join(res.Outputs, " "))
			if !slices.Equal(got, wanted) {
				rep.Failures = append(rep.Failures, Failure{Case: ci, Trial: trial, Got: got, Wanted: wanted})
				continue
			}
			rep.Passed++
		}
	}
	r.logger.Info("trials finished", "runs", rep.Runs, "passed", rep.Passed)
	return rep, nil
}
