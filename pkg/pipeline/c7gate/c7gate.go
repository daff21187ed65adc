// Package c7gate implements C7, the Output Quality Gate (spec §4.7): a
// mechanical, LLM-free validator of the script.Script structural invariants
// from spec §3. A failure here is fatal for the run — there is no retry
// loop, because the defect is structural, not a model-output quality
// problem. Grounded on the teacher's schema-validation-as-a-gate pattern in
// pkg/evalv2/schema.go (validate, then fail hard on mismatch rather than
// attempting to repair), applied here to script.Script.Validate instead of
// a JSON-schema check.
package c7gate

import (
	"verifyscript/pkg/pipelineerr"
	"verifyscript/pkg/script"
)

const stageName = "c7gate"

// Run validates sc against spec §3's invariants, applying the lenient
// defaults spec §4.7 permits (e.g. a missing total_est_duration_s) before
// checking the hard invariants. It never mutates sc to paper over a real
// violation.
func Run(sc *script.Script, transcriptStart, transcriptEnd float64, opts script.ValidationOptions) error {
	sc.ApplyLenientDefaults()
	if err := sc.Validate(transcriptStart, transcriptEnd, opts); err != nil {
		return pipelineerr.New(stageName, pipelineerr.KindFatal, err)
	}
	return nil
}
