// Package submission defines the unit of gradable work exchanged between
// the testing system and the invoker fleet.
package submission

import "github.com/google/uuid"

// Submission is one unit of work: an opaque data blob plus how many tests
// it will run. Created when the upstream link decodes a SubmissionRun
// frame; consumed exactly once by an invoker; destroyed after the broker
// emits its final verdict upstream.
type Submission struct {
	UUID       uuid.UUID
	TestsCount uint16
	Data       []byte
}

// New constructs a Submission with the given identity, payload and test count.
func New(id uuid.UUID, data []byte, testsCount uint16) Submission {
	return Submission{UUID: id, TestsCount: testsCount, Data: data}
}
