package wireproto

import (
	"errors"
	"log"
)

// ErrMalformedFrame is returned when a frame's TYPE header is missing or unrecognised.
var ErrMalformedFrame = errors.New("wireproto: malformed frame")

func errFrame(reason string) error {
	return errors.Join(ErrMalformedFrame, errors.New(reason))
}

func logParseFailure(reason string, headers Headers) {
	log.Printf("wireproto: %s | headers=%v", reason, headers)
}
