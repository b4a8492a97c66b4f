// Package harness runs pipeline scenarios as executable contract tests.
//
// A scenario builds a pipeline from registered filters, optionally edits
// node arguments after a first preflight, runs it in preflight or execute
// mode and checks assertions against the final data structure, the fault
// and the message trace.
//
// # Scenario Format
//
//	name: image_pipeline
//	description: "What this scenario validates"
//	mode: execute            # or preflight; defaults to execute
//	steps:
//	  - filter: CreateDataGroupFilter
//	    args: { output: Data }
//	  - filter: ScaleArrayFilter
//	    args: { input: Data/V, factor: 2 }
//	    disabled: false
//	    comment: "free text"
//	edits:
//	  - node: 0
//	    args: { output: Data2 }
//	assertions:
//	  - type: values
//	    path: Data/V
//	    values: [2, 2]
//
// Relative file arguments are resolved inside a scratch directory created
// per run. That directory appears as $WORK in the trace.
//
// # Assertion Types
//
//   - exists, absent: an object is or is not reachable at path
//   - kind: the object at path has the named kind
//   - values: the array at path holds exactly values
//   - shared: every path in paths resolves to the same object
//   - fault: the run faulted at node, optionally with code
//   - warning: node emitted a warning, optionally with code
//   - argument: node's argument name prints as value
//
// # Golden Snapshots
//
// RunWithGolden renders the fault, the final structure and the trace and
// compares them against testdata/golden/{name}.golden. Regenerate with
// go test -update.
package harness
