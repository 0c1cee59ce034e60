// Package harness provides conformance testing for provenance views.
//
// A scenario is a YAML file describing what the step-retrieval endpoint
// serves for one subject, a flow of loader actions, and assertions on the
// final state, the derived view and the load log:
//
//	name: alignment_default_view
//	description: Default options hide parameters, reference and indirect files
//	subject:
//	  id: run-1
//	  identity: F2
//	steps_file: alignment.json
//	assertions:
//	  - type: node_count
//	    count: 5
//	  - type: highlighted
//	    nodes: [terminal:bam]
//
// Flows drive a real loader.Loader. A flow step with hold: true keeps its
// fetch outstanding until a release step, which is how admission control
// and stale-response scenarios are expressed.
//
// RunWithGolden additionally compares a canonical JSON snapshot of the view
// and load log with testdata/golden/<name>.golden via goldie.
package harness
