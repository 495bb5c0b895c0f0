// Package upstream implements the broker's WebSocket client connection to
// the testing-system: the submission feed in, and verdict/test reporting
// out.
package upstream

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/google/uuid"
	"github.com/summer-54/invoker-manager/internal/broker"
	"github.com/summer-54/invoker-manager/internal/metrics"
	"github.com/summer-54/invoker-manager/internal/submission"
	"github.com/summer-54/invoker-manager/internal/verdict"
	"github.com/summer-54/invoker-manager/internal/wireproto"
)

// PingInterval is how often the link pings the testing-system to detect a
// dead connection.
const PingInterval = 30 * time.Second

// pongWait is the read deadline, reset on every pong; a testing-system
// that goes silent on the read side (no TCP RST) is caught here rather
// than only ever being noticed by a failed write.
const pongWait = 2 * PingInterval

// ErrUnavailable is returned by writeMessage when the link has no live
// connection; SendTest and the SendVerdict methods log it and drop the
// frame, and the broker continues serving invokers regardless.
var ErrUnavailable = fmt.Errorf("upstream: link unavailable")

// Link owns the WebSocket connection to the testing-system's submission
// feed.
type Link struct {
	url    string
	broker *broker.Broker

	mu   sync.Mutex
	conn *websocket.Conn

	writeMu sync.Mutex
}

// New returns a Link that will dial url on Run.
func New(url string, b *broker.Broker) *Link {
	return &Link{url: url, broker: b}
}

// Connected reports whether the link currently has a live connection.
func (l *Link) Connected() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.conn != nil
}

// Run dials the testing-system and serves the link until ctx is cancelled,
// reconnecting with backoff on any read or write error. It returns only
// when ctx is done.
func (l *Link) Run(ctx context.Context) {
	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return
		}
		if err := l.runOnce(ctx); err != nil {
			log.Printf("upstream: link error: %v", err)
		}
		l.setConn(nil)

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > 30*time.Second {
			backoff = 30 * time.Second
		}
	}
}

func (l *Link) runOnce(ctx context.Context) error {
	dialer := websocket.Dialer{EnableCompression: true}
	conn, _, err := dialer.DialContext(ctx, l.url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", l.url, err)
	}
	conn.SetCompressionLevel(9)
	conn.SetReadLimit(1 << 31)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	l.setConn(conn)
	metrics.UpstreamConnected.Set(1)
	log.Printf("upstream: connected to %s", l.url)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2)
	go l.pingLoop(runCtx, errCh)
	go l.readLoop(conn, errCh)

	select {
	case err := <-errCh:
		conn.Close()
		metrics.UpstreamConnected.Set(0)
		return err
	case <-ctx.Done():
		conn.Close()
		metrics.UpstreamConnected.Set(0)
		return nil
	}
}

func (l *Link) setConn(conn *websocket.Conn) {
	l.mu.Lock()
	l.conn = conn
	l.mu.Unlock()
}

func (l *Link) pingLoop(ctx context.Context, errCh chan<- error) {
	ticker := time.NewTicker(PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := l.writeMessage(websocket.PingMessage, nil); err != nil {
				select {
				case errCh <- fmt.Errorf("ping: %w", err):
				default:
				}
				return
			}
		}
	}
}

func (l *Link) readLoop(conn *websocket.Conn, errCh chan<- error) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			select {
			case errCh <- fmt.Errorf("read: %w", err):
			default:
			}
			return
		}
		sub, err := wireproto.DecodeSubmissionRun(raw)
		if err != nil {
			log.Printf("upstream: malformed submission frame: %v", err)
			continue
		}
		l.addSubmission(sub)
	}
}

// addSubmission enqueues a freshly-received submission, synthesising a
// queue-full TE verdict if the broker's queue has no spare capacity. A
// bind conflict (the same uuid submitted twice) is logged and dropped
// without a verdict: the submission is already tracked under its first
// allocation, which will produce its own verdict in due course.
func (l *Link) addSubmission(sub submission.Submission) {
	err := l.broker.EnqueueSubmission(sub)
	switch {
	case err == nil:
		return
	case errors.Is(err, broker.ErrBindConflict):
		log.Printf("upstream: enqueue %s: %v", sub.UUID, err)
		return
	case errors.Is(err, broker.ErrQueueFull):
		log.Printf("upstream: enqueue %s: %v", sub.UUID, err)
		defaults := make([]verdict.TestResult, sub.TestsCount)
		for i := range defaults {
			defaults[i] = verdict.NewTestResult()
		}
		metrics.SubmissionsFailed.Inc()
		l.SendVerdictFailure(sub.UUID, verdict.TE, "queue full", defaults)
	default:
		log.Printf("upstream: enqueue %s: %v", sub.UUID, err)
	}
}

func (l *Link) writeMessage(messageType int, data []byte) error {
	l.mu.Lock()
	conn := l.conn
	l.mu.Unlock()
	if conn == nil {
		return ErrUnavailable
	}
	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	return conn.WriteMessage(messageType, data)
}

// SendTest reports one test's outcome for submissionID upstream.
func (l *Link) SendTest(submissionID uuid.UUID, n uint16, result verdict.TestResult, data []byte) {
	if err := l.writeMessage(websocket.BinaryMessage, wireproto.EncodeTestFrame(submissionID, n, result, data)); err != nil {
		log.Printf("upstream: send TEST for %s: %v", submissionID, err)
	}
}

// SendVerdictSuccess reports submissionID's successful verdict upstream.
func (l *Link) SendVerdictSuccess(submissionID uuid.UUID, v verdict.Verdict, sum uint8, groups []uint8, results []verdict.TestResult) {
	if err := l.writeMessage(websocket.BinaryMessage, wireproto.EncodeVerdictSuccess(submissionID, v, sum, groups, results)); err != nil {
		log.Printf("upstream: send VERDICT for %s: %v", submissionID, err)
	}
}

// SendVerdictFailure reports submissionID's failure verdict upstream.
func (l *Link) SendVerdictFailure(submissionID uuid.UUID, v verdict.Verdict, message string, results []verdict.TestResult) {
	if err := l.writeMessage(websocket.BinaryMessage, wireproto.EncodeVerdictFailure(submissionID, v, message, results)); err != nil {
		log.Printf("upstream: send failure VERDICT for %s: %v", submissionID, err)
	}
}
