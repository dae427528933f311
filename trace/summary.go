/*
NAME
  summary.go

DESCRIPTION
  summary.go provides aggregate statistics over replayed traces.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package trace

import (
	"fmt"
	"sort"
	"strings"

	"gonum.org/v1/gonum/stat"

	"github.com/ausocean/vidval/diag"
)

// Summary describes the diagnostics of one or more replays.
type Summary struct {
	Traces     int
	Steps      int
	Operations int // Decode and encode steps.
	Mismatches int

	Diagnostics int
	Kinds       map[diag.Kind]int
	Classes     map[diag.Class]int

	// Mean and standard deviation of the number of references per
	// operation and of diagnostics per step.
	RefsMean, RefsStdDev float64
	DiagMean, DiagStdDev float64
}

// Summarize returns the summary of results.
func Summarize(results ...*Result) Summary {
	s := Summary{
		Traces:  len(results),
		Kinds:   make(map[diag.Kind]int),
		Classes: make(map[diag.Class]int),
	}
	var refs, diags []float64
	for _, r := range results {
		for _, o := range r.Outcomes {
			s.Steps++
			if !o.Matched() {
				s.Mismatches++
			}
			got := o.Got()
			for _, k := range got {
				s.Kinds[k]++
				s.Classes[k.Class()]++
			}
			s.Diagnostics += len(got)
			diags = append(diags, float64(len(got)))
			if o.Call == "decode" || o.Call == "encode" {
				s.Operations++
				refs = append(refs, float64(o.References))
			}
		}
	}
	s.RefsMean, s.RefsStdDev = meanStdDev(refs)
	s.DiagMean, s.DiagStdDev = meanStdDev(diags)
	return s
}

// meanStdDev returns the mean and sample standard deviation of x, treating
// the deviation of fewer than two samples as zero.
func meanStdDev(x []float64) (mean, std float64) {
	switch len(x) {
	case 0:
		return 0, 0
	case 1:
		return x[0], 0
	}
	return stat.MeanStdDev(x, nil)
}

func (s Summary) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d traces, %d steps, %d operations, %d mismatches, %d diagnostics",
		s.Traces, s.Steps, s.Operations, s.Mismatches, s.Diagnostics)
	fmt.Fprintf(&b, "; references/op %.2f±%.2f; diagnostics/step %.2f±%.2f",
		s.RefsMean, s.RefsStdDev, s.DiagMean, s.DiagStdDev)

	kinds := make([]diag.Kind, 0, len(s.Kinds))
	for k := range s.Kinds {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	for _, k := range kinds {
		fmt.Fprintf(&b, "; %s=%d", k, s.Kinds[k])
	}
	return b.String()
}
