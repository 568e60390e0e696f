package hooks

import (
	"fmt"
	"io"
)

// NewWriterTable builds a Table that writes a one-line diagnostic to w for
// the points a report typically cares about (counterexamples and run
// boundaries), and returns Continue from every callback. Output formatting
// itself is out of scope (spec §1 Non-goals); this is the plumbing a
// caller's own reporter can build on, not a reporter.
func NewWriterTable(w io.Writer) Table {
	return Table{
		PreRun: func(env Envelope, _ PreRunData) Outcome {
			fmt.Fprintf(w, "run start: property=%q seed=%d\n", env.PropertyName, env.RunSeed)

			return Continue
		},
		PostRun: func(env Envelope, data PostRunData) Outcome {
			fmt.Fprintf(w, "run end: property=%q trials=%d passes=%d failures=%d skips=%d duplicates=%d failed=%v\n",
				env.PropertyName, env.Trials, env.Passes, env.Failures, env.Skips, env.Duplicates, data.Failed)

			return Continue
		},
		Counterexample: func(env Envelope, data CounterexampleData) Outcome {
			fmt.Fprintf(w, "counterexample: property=%q trial=%d args=%v\n",
				env.PropertyName, data.TrialIndex, data.Args)

			return Continue
		},
	}
}
