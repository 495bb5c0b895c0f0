package wireproto

import (
	"testing"

	"github.com/google/uuid"
	"github.com/summer-54/invoker-manager/internal/verdict"
)

func TestDecodeInvokerFrameToken(t *testing.T) {
	id := uuid.New()
	raw := NewFrame("TOKEN").Header("ID", id.String()).Header("KEY", "abc").Bytes(nil)

	msg, err := DecodeInvokerFrame(raw)
	if err != nil {
		t.Fatalf("DecodeInvokerFrame: %v", err)
	}
	tok, ok := msg.(Token)
	if !ok {
		t.Fatalf("got %T, want Token", msg)
	}
	if tok.ID != id || tok.Key != "abc" {
		t.Errorf("got %+v", tok)
	}
}

func TestDecodeInvokerFrameTest(t *testing.T) {
	raw := NewFrame("TEST").
		Header("ID", "2").
		Header("VERDICT", "WA").
		Header("TIME", "0.12").
		Header("MEMORY", "2100").
		Bytes([]byte("stderr output"))

	msg, err := DecodeInvokerFrame(raw)
	if err != nil {
		t.Fatalf("DecodeInvokerFrame: %v", err)
	}
	test, ok := msg.(Test)
	if !ok {
		t.Fatalf("got %T, want Test", msg)
	}
	if test.Num != 2 || test.Result.Verdict != verdict.WA || test.Result.Time != 0.12 || test.Result.Memory != 2100 {
		t.Errorf("got %+v", test)
	}
}

func TestDecodeInvokerFrameVerdictSuccess(t *testing.T) {
	raw := NewFrame("VERDICT").
		Header("NAME", "OK").
		Header("SUM", "100").
		Header("GROUPS", "1 2 3").
		Bytes(nil)

	msg, err := DecodeInvokerFrame(raw)
	if err != nil {
		t.Fatalf("DecodeInvokerFrame: %v", err)
	}
	v, ok := msg.(VerdictMsg)
	if !ok {
		t.Fatalf("got %T, want VerdictMsg", msg)
	}
	if !v.Success || v.Sum != 100 || len(v.Groups) != 3 {
		t.Errorf("got %+v", v)
	}
}

func TestDecodeInvokerFrameVerdictFailure(t *testing.T) {
	raw := NewFrame("VERDICT").Header("NAME", "WA").Header("MESSAGE", "diff").Bytes(nil)

	msg, err := DecodeInvokerFrame(raw)
	if err != nil {
		t.Fatalf("DecodeInvokerFrame: %v", err)
	}
	v, ok := msg.(VerdictMsg)
	if !ok {
		t.Fatalf("got %T, want VerdictMsg", msg)
	}
	if v.Success || v.Verdict != verdict.WA || v.Message != "diff" {
		t.Errorf("got %+v", v)
	}
}

func TestDecodeInvokerFrameMalformedNameIsUV(t *testing.T) {
	raw := NewFrame("VERDICT").Header("NAME", "NOT_A_VERDICT").Bytes(nil)

	msg, err := DecodeInvokerFrame(raw)
	if err != nil {
		t.Fatalf("DecodeInvokerFrame: %v", err)
	}
	v := msg.(VerdictMsg)
	if v.Verdict != verdict.UV {
		t.Errorf("verdict = %v, want UV", v.Verdict)
	}
}

func TestDecodeInvokerFrameMissingType(t *testing.T) {
	_, err := DecodeInvokerFrame([]byte("ID 1\nDATA\n"))
	if err == nil {
		t.Fatal("expected error for missing TYPE")
	}
}

func TestDecodeInvokerFrameUnknownType(t *testing.T) {
	_, err := DecodeInvokerFrame(NewFrame("BOGUS").Bytes(nil))
	if err == nil {
		t.Fatal("expected error for unrecognised TYPE")
	}
}

func TestEncodeOutboundFramesParseBack(t *testing.T) {
	ch := EncodeChallenge([]byte{1, 2, 3})
	headers, payload := ParseFrame(ch)
	if headers.Get("TYPE") != "CHALLENGE" || len(payload) != 3 {
		t.Errorf("challenge frame malformed: %v %v", headers, payload)
	}

	auth := EncodeAuth(true)
	headers, _ = ParseFrame(auth)
	if headers.Get("TYPE") != "AUTH" || headers.Get("OK") != "1" {
		t.Errorf("auth frame malformed: %v", headers)
	}

	start := EncodeStart([]byte("payload"))
	headers, payload = ParseFrame(start)
	if headers.Get("TYPE") != "START" || string(payload) != "payload" {
		t.Errorf("start frame malformed: %v %q", headers, payload)
	}
}
