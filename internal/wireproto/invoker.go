package wireproto

import (
	"github.com/google/uuid"
	"github.com/summer-54/invoker-manager/internal/verdict"
)

// InvokerInput is one decoded frame received from an invoker. The
// concrete type names the TYPE header that produced it.
type InvokerInput interface {
	invokerInput()
}

// Token is sent once, immediately after an invoker connects.
type Token struct {
	ID  uuid.UUID
	Key string
}

// Signed answers a CHALLENGE with the invoker's signature over it.
type Signed struct {
	Signature []byte
}

// Test reports one test's outcome while a submission is bound.
type Test struct {
	Num    uint16 // 1-indexed on the wire
	Result verdict.TestResult
	Data   []byte
}

// VerdictMsg reports the submission's final verdict.
type VerdictMsg struct {
	Verdict verdict.Verdict
	// On success (Verdict == OK): Sum and Groups are populated, Message is empty.
	// Otherwise: Message carries the failure text.
	Sum     uint8
	Groups  []uint8
	Message string
	Success bool
}

// Exited reports the invoker process terminating.
type Exited struct {
	Code    string
	Message string
}

// ErrorMsg is a non-fatal error report from the invoker.
type ErrorMsg struct {
	Message string
}

// OpError is an operator-facing error report from the invoker.
type OpError struct {
	Message string
}

func (Token) invokerInput()      {}
func (Signed) invokerInput()     {}
func (Test) invokerInput()       {}
func (VerdictMsg) invokerInput() {}
func (Exited) invokerInput()     {}
func (ErrorMsg) invokerInput()   {}
func (OpError) invokerInput()    {}

// DecodeInvokerFrame parses one frame received from an invoker socket.
// A missing or unrecognised TYPE header fails the frame with a non-fatal
// error; every other field degrades to a default rather than failing.
func DecodeInvokerFrame(raw []byte) (InvokerInput, error) {
	headers, data := ParseFrame(raw)
	typ, ok := headers["TYPE"]
	if !ok {
		return nil, errFrame("missing TYPE header")
	}

	switch typ {
	case "TOKEN":
		id, err := uuid.Parse(headers.Get("ID"))
		if err != nil {
			id = uuid.New()
		}
		return Token{ID: id, Key: headers.Get("KEY")}, nil

	case "SIGNED":
		return Signed{Signature: data}, nil

	case "TEST":
		num := headers.GetUint16("ID", 1)
		v := verdict.Parse(headers.Get("VERDICT"))
		result := verdict.TestResult{
			Verdict: v,
			Time:    headers.GetFloat64("TIME", 0),
			Memory:  headers.GetUint32("MEMORY", 0),
		}
		return Test{Num: num, Result: result, Data: data}, nil

	case "VERDICT":
		name := headers.Get("NAME")
		v := verdict.Parse(name)
		if v == verdict.UV {
			logParseFailure("unparseable VERDICT NAME", headers)
		}
		if v == verdict.OK {
			return VerdictMsg{
				Verdict: v,
				Sum:     headers.GetUint8("SUM", 0),
				Groups:  headers.GetUint8List("GROUPS"),
				Success: true,
			}, nil
		}
		return VerdictMsg{
			Verdict: v,
			Message: headers.Get("MESSAGE"),
			Success: false,
		}, nil

	case "EXITED":
		return Exited{
			Code:    headers.Get("CODE"),
			Message: headers.Get("MESSAGE"),
		}, nil

	case "ERROR":
		return ErrorMsg{Message: headers.Get("MESSAGE")}, nil

	case "OPERROR":
		return OpError{Message: headers.Get("MESSAGE")}, nil

	default:
		return nil, errFrame("unrecognised TYPE: " + typ)
	}
}

// EncodeChallenge builds an outbound CHALLENGE frame carrying the random
// challenge bytes as payload.
func EncodeChallenge(challenge []byte) []byte {
	return NewFrame("CHALLENGE").Bytes(challenge)
}

// EncodeAuth builds an outbound AUTH frame.
func EncodeAuth(ok bool) []byte {
	v := "0"
	if ok {
		v = "1"
	}
	return NewFrame("AUTH").Header("OK", v).Bytes(nil)
}

// EncodeStart builds an outbound START frame carrying the submission payload.
func EncodeStart(submissionData []byte) []byte {
	return NewFrame("START").Bytes(submissionData)
}

// EncodeStop builds an outbound STOP frame.
func EncodeStop() []byte {
	return NewFrame("STOP").Bytes(nil)
}

// EncodeClose builds an outbound CLOSE frame.
func EncodeClose() []byte {
	return NewFrame("CLOSE").Bytes(nil)
}
