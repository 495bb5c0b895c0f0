package wireproto

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/summer-54/invoker-manager/internal/submission"
	"github.com/summer-54/invoker-manager/internal/verdict"
)

// DecodeSubmissionRun parses an inbound positional frame from the testing
// system: bytes 0..16 are the submission uuid, 16..18 a big-endian u16
// test count, and 18.. the submission data.
func DecodeSubmissionRun(raw []byte) (submission.Submission, error) {
	if len(raw) < 18 {
		return submission.Submission{}, errFrame("submission frame shorter than 18 bytes")
	}
	id, err := uuid.FromBytes(raw[0:16])
	if err != nil {
		return submission.Submission{}, errFrame("invalid submission uuid")
	}
	testsCount := binary.BigEndian.Uint16(raw[16:18])
	data := append([]byte(nil), raw[18:]...)
	return submission.New(id, data, testsCount), nil
}

// EncodeTestFrame builds the outbound per-test verdict frame forwarded to
// the testing system.
func EncodeTestFrame(submissionUUID uuid.UUID, test uint16, result verdict.TestResult, data []byte) []byte {
	return NewFrame("TEST").
		Header("SUBMISSION", submissionUUID.String()).
		Header("TEST", fmt.Sprintf("%d", test)).
		Header("VERDICT", fmt.Sprintf("%s %v %d", result.Verdict, result.Time, result.Memory)).
		Bytes(data)
}

// EncodeVerdictSuccess builds the outbound submission-verdict frame for a
// successful run: SUM and GROUPS headers, followed by one result line per test.
func EncodeVerdictSuccess(submissionUUID uuid.UUID, v verdict.Verdict, sum uint8, groups []uint8, results []verdict.TestResult) []byte {
	groupStrs := make([]string, len(groups))
	for i, g := range groups {
		groupStrs[i] = fmt.Sprintf("%d", g)
	}
	return NewFrame("VERDICT").
		Header("SUBMISSION", submissionUUID.String()).
		Header("VERDICT", v.String()).
		Header("SUM", fmt.Sprintf("%d", sum)).
		Header("GROUPS", strings.Join(groupStrs, " ")).
		Bytes(resultsPayload(results))
}

// EncodeVerdictFailure builds the outbound submission-verdict frame for a
// failed run: a MESSAGE header replaces SUM/GROUPS.
func EncodeVerdictFailure(submissionUUID uuid.UUID, v verdict.Verdict, message string, results []verdict.TestResult) []byte {
	return NewFrame("VERDICT").
		Header("SUBMISSION", submissionUUID.String()).
		Header("VERDICT", v.String()).
		Header("MESSAGE", message).
		Bytes(resultsPayload(results))
}

func resultsPayload(results []verdict.TestResult) []byte {
	var sb strings.Builder
	for _, r := range results {
		sb.WriteString(r.Line())
		sb.WriteByte('\n')
	}
	return []byte(sb.String())
}
