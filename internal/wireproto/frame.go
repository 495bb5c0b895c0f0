// Package wireproto implements the two framed binary protocols described
// by the broker: the invoker<->broker header-line protocol and the
// broker<->testing-system protocol (positional inbound, header-line
// outbound). Both protocols share the same "KEY VALUE\n ... DATA\n
// <payload>" framing for their header-carrying messages, implemented here.
package wireproto

import (
	"bytes"
	"strconv"
	"strings"
)

// Headers is the parsed KEY->VALUE header set of one frame.
type Headers map[string]string

// Get returns the header value, or "" if absent.
func (h Headers) Get(key string) string {
	return h[key]
}

// GetUint16 returns the header parsed as a u16, or def on absence/malformed value.
func (h Headers) GetUint16(key string, def uint16) uint16 {
	v, ok := h[key]
	if !ok {
		return def
	}
	n, err := strconv.ParseUint(v, 10, 16)
	if err != nil {
		return def
	}
	return uint16(n)
}

// GetUint8 returns the header parsed as a u8, or def on absence/malformed value.
func (h Headers) GetUint8(key string, def uint8) uint8 {
	v, ok := h[key]
	if !ok {
		return def
	}
	n, err := strconv.ParseUint(v, 10, 8)
	if err != nil {
		return def
	}
	return uint8(n)
}

// GetUint32 returns the header parsed as a u32, or def on absence/malformed value.
func (h Headers) GetUint32(key string, def uint32) uint32 {
	v, ok := h[key]
	if !ok {
		return def
	}
	n, err := strconv.ParseUint(v, 10, 32)
	if err != nil {
		return def
	}
	return uint32(n)
}

// GetFloat64 returns the header parsed as an f64, or def on absence/malformed value.
func (h Headers) GetFloat64(key string, def float64) float64 {
	v, ok := h[key]
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

// GetUint8List parses a space-separated list of u8 values. Entries that
// fail to parse degrade to 0 rather than failing the whole frame.
func (h Headers) GetUint8List(key string) []uint8 {
	v, ok := h[key]
	if !ok || v == "" {
		return nil
	}
	fields := strings.Fields(v)
	out := make([]uint8, 0, len(fields))
	for _, f := range fields {
		n, err := strconv.ParseUint(f, 10, 8)
		if err != nil {
			out = append(out, 0)
			continue
		}
		out = append(out, uint8(n))
	}
	return out
}

// ParseFrame splits a raw frame into its header lines and trailing
// payload. Parsing is permissive and never fails: a frame with no DATA
// line is treated as headers-only with an empty payload, and blank lines
// before DATA are ignored.
func ParseFrame(raw []byte) (Headers, []byte) {
	headers := make(Headers)
	rest := raw
	for rest != nil {
		var line []byte
		if idx := bytes.IndexByte(rest, '\n'); idx == -1 {
			line, rest = rest, nil
		} else {
			line, rest = rest[:idx], rest[idx+1:]
		}
		text := strings.TrimSpace(strings.TrimRight(string(line), "\r"))
		if text == "DATA" {
			break
		}
		if text == "" {
			continue
		}
		key, value, _ := strings.Cut(text, " ")
		headers[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	return headers, rest
}

// FrameBuilder assembles an outbound "TYPE ...\nKEY VALUE\n...DATA\n<payload>"
// frame. Every field it writes is produced by this package, so the
// outbound path is total and never emits something ParseFrame can't read
// back.
type FrameBuilder struct {
	buf bytes.Buffer
}

// NewFrame starts a frame of the given TYPE.
func NewFrame(typ string) *FrameBuilder {
	b := &FrameBuilder{}
	b.buf.WriteString("TYPE ")
	b.buf.WriteString(typ)
	b.buf.WriteByte('\n')
	return b
}

// Header appends one "KEY VALUE\n" header line.
func (b *FrameBuilder) Header(key, value string) *FrameBuilder {
	b.buf.WriteString(key)
	b.buf.WriteByte(' ')
	b.buf.WriteString(value)
	b.buf.WriteByte('\n')
	return b
}

// Bytes terminates the header section with "DATA\n" and appends payload,
// returning the complete frame.
func (b *FrameBuilder) Bytes(payload []byte) []byte {
	b.buf.WriteString("DATA\n")
	if len(payload) > 0 {
		b.buf.Write(payload)
	}
	return b.buf.Bytes()
}
