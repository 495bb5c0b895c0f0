// Package invoker implements the per-connection invoker session state
// machine and the pool that accepts and registers invoker connections.
package invoker

import (
	"context"
	"crypto/rand"
	"fmt"
	"log"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/summer-54/invoker-manager/internal/authcert"
	"github.com/summer-54/invoker-manager/internal/broker"
	"github.com/summer-54/invoker-manager/internal/metrics"
	"github.com/summer-54/invoker-manager/internal/verdict"
	"github.com/summer-54/invoker-manager/internal/wireproto"

	"github.com/google/uuid"
)

// ChallengeSize is the number of random bytes sent in the authentication
// handshake's CHALLENGE frame.
const ChallengeSize = 128

// state is the session's position in the message-loop state machine.
type state int

const (
	stateIdle state = iota
	stateBusy
	stateClosed
)

// UpstreamSink is how a session reports TEST/VERDICT progress for its
// bound submission to the testing-system link.
type UpstreamSink interface {
	SendTest(submissionID uuid.UUID, n uint16, result verdict.TestResult, data []byte)
	SendVerdictSuccess(submissionID uuid.UUID, v verdict.Verdict, sum uint8, groups []uint8, results []verdict.TestResult)
	SendVerdictFailure(submissionID uuid.UUID, v verdict.Verdict, message string, results []verdict.TestResult)
}

// Session owns one invoker's socket and drives its authentication
// handshake and message loop.
type Session struct {
	id     uuid.UUID
	key    string
	conn   *websocket.Conn
	broker *broker.Broker
	auth   authcert.Config
	up     UpstreamSink

	mu              sync.Mutex
	state           state
	boundSubmission uuid.UUID
	hasBound        bool

	writeMu sync.Mutex
	cancel  context.CancelFunc
	idleCh  chan struct{}
}

// NewSession constructs a session for an invoker that has just presented
// id and key in its TOKEN frame.
func NewSession(id uuid.UUID, key string, conn *websocket.Conn, b *broker.Broker, auth authcert.Config, up UpstreamSink) *Session {
	return &Session{
		id:     id,
		key:    key,
		conn:   conn,
		broker: b,
		auth:   auth,
		up:     up,
		state:  stateIdle,
		idleCh: make(chan struct{}, 1),
	}
}

// signalIdle wakes the dispatch loop; a pending signal is coalesced since
// the channel only ever needs to carry "there is idle work to check".
func (s *Session) signalIdle() {
	select {
	case s.idleCh <- struct{}{}:
	default:
	}
}

// UUID satisfies broker.InvokerHandle.
func (s *Session) UUID() uuid.UUID { return s.id }

// BoundSubmission satisfies broker.InvokerHandle.
func (s *Session) BoundSubmission() (uuid.UUID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.boundSubmission, s.hasBound
}

// Close forcibly transitions the session to Closed, running finish-current
// and dropping its socket. Satisfies broker.InvokerHandle. state is set to
// stateClosed before finish-current runs, not after: tryTakeSubmission
// checks the same flag under the same lock, so a submission that binds in
// the window between the two is always caught by one side or the other,
// and never left bound to a session that is already being torn down.
func (s *Session) Close() {
	s.mu.Lock()
	s.state = stateClosed
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	s.finishCurrent("invoker disconnected")
	s.writeFrame(wireproto.EncodeClose())
	s.conn.Close()
}

// Stop sends a STOP frame, the operator hook an invoker uses to abandon
// its currently bound submission without tearing down the socket.
func (s *Session) Stop() error {
	return s.writeFrame(wireproto.EncodeStop())
}

// writeFrame serialises writes to the socket; the write path is per-socket
// serial so per-submission TEST frames stay ordered.
func (s *Session) writeFrame(frame []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteMessage(websocket.BinaryMessage, frame)
}

// Authenticate drives the challenge/response handshake once, immediately
// after the caller has read the TOKEN frame.
func (s *Session) Authenticate() error {
	challenge := make([]byte, ChallengeSize)
	if _, err := rand.Read(challenge); err != nil {
		return fmt.Errorf("invoker: generate challenge: %w", err)
	}
	if err := s.writeFrame(wireproto.EncodeChallenge(challenge)); err != nil {
		return fmt.Errorf("invoker: send challenge: %w", err)
	}

	cert, err := s.auth.Resolve(s.key)
	if err != nil {
		return fmt.Errorf("invoker: resolve certificate: %w", err)
	}

	_, raw, err := s.conn.ReadMessage()
	if err != nil {
		return fmt.Errorf("invoker: read signed response: %w", err)
	}
	msg, err := wireproto.DecodeInvokerFrame(raw)
	if err != nil {
		return fmt.Errorf("invoker: decode signed response: %w", err)
	}
	signed, ok := msg.(wireproto.Signed)
	if !ok {
		return fmt.Errorf("invoker: expected SIGNED frame, got %T", msg)
	}

	ok = authcert.Verify(cert, challenge, signed.Signature)
	if err := s.writeFrame(wireproto.EncodeAuth(ok)); err != nil {
		return fmt.Errorf("invoker: send auth result: %w", err)
	}
	if !ok {
		return fmt.Errorf("invoker: signature verification failed for key %q", s.key)
	}
	return nil
}

// tryTakeSubmission races for the broker's queue receive; on success it
// binds the session to the submission and sends START. A concurrent Close
// can run between the queue receive and the lock below, so the bind is
// only committed if the session is still alive; otherwise the just-taken
// submission is failed out here instead of being silently orphaned.
func (s *Session) tryTakeSubmission(ctx context.Context) error {
	sub, err := s.broker.TakeSubmission(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.state == stateClosed {
		s.mu.Unlock()
		s.failSubmission(sub.UUID, "invoker disconnected")
		return nil
	}
	s.state = stateBusy
	s.boundSubmission = sub.UUID
	s.hasBound = true
	s.mu.Unlock()

	return s.writeFrame(wireproto.EncodeStart(sub.Data))
}

// finishCurrent drops the bound submission's results and emits an upstream
// failure verdict, per the abnormal-termination path.
func (s *Session) finishCurrent(message string) {
	s.mu.Lock()
	sub, bound := s.boundSubmission, s.hasBound
	s.hasBound = false
	s.mu.Unlock()

	if !bound {
		return
	}
	s.failSubmission(sub, message)
}

// failSubmission consumes sub's result vector and emits a synthesised TE
// verdict for it. Shared by finishCurrent (abnormal session termination)
// and tryTakeSubmission's closed-session race path.
func (s *Session) failSubmission(sub uuid.UUID, message string) {
	results, _ := s.broker.ConsumeResults(sub)
	s.broker.DropResults(sub)
	metrics.SubmissionsFailed.Inc()
	if s.up != nil {
		s.up.SendVerdictFailure(sub, verdict.TE, message, results)
	}
}

// RunMessageLoop reads frames until EXITED, a socket error, or ctx is
// cancelled, dispatching each to the Idle/Busy/Closed state machine while
// racing for the next submission whenever the session goes Idle.
func (s *Session) RunMessageLoop(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()
	defer cancel()

	s.broker.RegisterInvoker(s)
	defer s.broker.UnregisterInvoker(s)

	go s.dispatchLoop(ctx)
	s.signalIdle()

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			log.Printf("invoker %s: read error: %v", s.id, err)
			s.Close()
			return
		}

		msg, err := wireproto.DecodeInvokerFrame(raw)
		if err != nil {
			log.Printf("invoker %s: malformed frame: %v", s.id, err)
			continue
		}

		if s.handle(msg) {
			s.Close()
			return
		}
	}
}

// dispatchLoop blocks on idleCh and, whenever the session is Idle when
// woken, races for the broker's submission queue.
func (s *Session) dispatchLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.idleCh:
		}

		s.mu.Lock()
		idle := s.state == stateIdle
		closed := s.state == stateClosed
		s.mu.Unlock()
		if closed {
			return
		}
		if !idle {
			continue
		}
		if err := s.tryTakeSubmission(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("invoker %s: take submission: %v", s.id, err)
			s.signalIdle()
		}
	}
}

// handle dispatches one decoded invoker frame against the state machine.
// Returns true if the session should now be torn down.
func (s *Session) handle(msg wireproto.InvokerInput) bool {
	switch m := msg.(type) {
	case wireproto.Test:
		s.mu.Lock()
		sub, bound := s.boundSubmission, s.hasBound
		s.mu.Unlock()
		if !bound {
			log.Printf("invoker %s: TEST received while not bound, dropped", s.id)
			return false
		}
		if !s.broker.SetTestResult(sub, m.Num, m.Result) {
			log.Printf("invoker %s: TEST index %d out of range for %s, dropped", s.id, m.Num, sub)
			return false
		}
		if s.up != nil {
			s.up.SendTest(sub, m.Num, m.Result, m.Data)
		}
		return false

	case wireproto.VerdictMsg:
		s.mu.Lock()
		sub, bound := s.boundSubmission, s.hasBound
		s.hasBound = false
		s.state = stateIdle
		s.mu.Unlock()
		if !bound {
			log.Printf("invoker %s: VERDICT received while Idle, dropped", s.id)
			return false
		}
		results, _ := s.broker.ConsumeResults(sub)
		if s.up != nil {
			if m.Success {
				s.up.SendVerdictSuccess(sub, m.Verdict, m.Sum, m.Groups, results)
			} else {
				s.up.SendVerdictFailure(sub, m.Verdict, m.Message, results)
			}
		}
		s.signalIdle()
		return false

	case wireproto.ErrorMsg:
		log.Printf("invoker %s: ERROR: %s", s.id, m.Message)
		return false

	case wireproto.OpError:
		log.Printf("invoker %s: OPERROR: %s", s.id, m.Message)
		return false

	case wireproto.Exited:
		log.Printf("invoker %s: EXITED code=%s message=%s", s.id, m.Code, m.Message)
		return true

	default:
		log.Printf("invoker %s: unexpected frame %T", s.id, msg)
		return false
	}
}
