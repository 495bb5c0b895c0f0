package wireproto

import (
	"encoding/binary"
	"testing"

	"github.com/google/uuid"
	"github.com/summer-54/invoker-manager/internal/verdict"
)

func TestDecodeSubmissionRun(t *testing.T) {
	id := uuid.New()
	raw := make([]byte, 18)
	copy(raw[0:16], id[:])
	binary.BigEndian.PutUint16(raw[16:18], 3)
	raw = append(raw, []byte("payload-bytes")...)

	sub, err := DecodeSubmissionRun(raw)
	if err != nil {
		t.Fatalf("DecodeSubmissionRun: %v", err)
	}
	if sub.UUID != id || sub.TestsCount != 3 || string(sub.Data) != "payload-bytes" {
		t.Errorf("got %+v", sub)
	}
}

func TestDecodeSubmissionRunTooShort(t *testing.T) {
	if _, err := DecodeSubmissionRun(make([]byte, 10)); err == nil {
		t.Fatal("expected error for short frame")
	}
}

func TestEncodeVerdictSuccessRoundTrip(t *testing.T) {
	id := uuid.New()
	results := []verdict.TestResult{
		{Verdict: verdict.OK, Time: 0.1, Memory: 2048},
		{Verdict: verdict.OK, Time: 0.2, Memory: 2100},
	}
	frame := EncodeVerdictSuccess(id, verdict.OK, 100, []uint8{1, 2}, results)

	headers, payload := ParseFrame(frame)
	if headers.Get("TYPE") != "VERDICT" || headers.Get("SUBMISSION") != id.String() {
		t.Errorf("headers = %v", headers)
	}
	if headers.Get("SUM") != "100" || headers.Get("GROUPS") != "1 2" {
		t.Errorf("headers = %v", headers)
	}
	want := "OK 0.1 2048\nOK 0.2 2100\n"
	if string(payload) != want {
		t.Errorf("payload = %q, want %q", payload, want)
	}
}

func TestEncodeVerdictFailureRoundTrip(t *testing.T) {
	id := uuid.New()
	frame := EncodeVerdictFailure(id, verdict.TE, "invoker disconnected", nil)
	headers, payload := ParseFrame(frame)
	if headers.Get("MESSAGE") != "invoker disconnected" {
		t.Errorf("headers = %v", headers)
	}
	if len(payload) != 0 {
		t.Errorf("payload = %q, want empty", payload)
	}
}

func TestEncodeTestFrame(t *testing.T) {
	id := uuid.New()
	frame := EncodeTestFrame(id, 1, verdict.TestResult{Verdict: verdict.OK, Time: 0.1, Memory: 2048}, []byte("out"))
	headers, payload := ParseFrame(frame)
	if headers.Get("TYPE") != "TEST" || headers.Get("TEST") != "1" {
		t.Errorf("headers = %v", headers)
	}
	if headers.Get("VERDICT") != "OK 0.1 2048" {
		t.Errorf("VERDICT header = %q", headers.Get("VERDICT"))
	}
	if string(payload) != "out" {
		t.Errorf("payload = %q", payload)
	}
}
