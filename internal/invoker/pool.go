package invoker

import (
	"context"
	"log"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/valyala/fasthttp/reuseport"

	"github.com/google/uuid"
	"github.com/summer-54/invoker-manager/internal/authcert"
	"github.com/summer-54/invoker-manager/internal/broker"
	"github.com/summer-54/invoker-manager/internal/wireproto"
)

// MaxFrameSize bounds a single WebSocket message, matching the protocol's
// 2^31-byte ceiling.
const MaxFrameSize = 1 << 31

var upgrader = websocket.Upgrader{
	ReadBufferSize:    4096,
	WriteBufferSize:   4096,
	EnableCompression: true,
	CheckOrigin:       func(r *http.Request) bool { return true },
}

// Pool accepts invoker connections, performs the upgrade and handshake,
// and hands each surviving connection a running message loop.
type Pool struct {
	addr   string
	broker *broker.Broker
	auth   authcert.Config
	up     UpstreamSink
}

// NewPool returns a Pool bound to addr.
func NewPool(addr string, b *broker.Broker, auth authcert.Config, up UpstreamSink) *Pool {
	return &Pool{addr: addr, broker: b, auth: auth, up: up}
}

// Serve accepts connections on a SO_REUSEPORT listener until ctx is
// cancelled or the listener fails.
func (p *Pool) Serve(ctx context.Context) error {
	ln, err := reuseport.Listen("tcp4", p.addr)
	if err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	mux := http.NewServeMux()
	mux.HandleFunc("/", p.handleUpgrade(ctx))
	srv := &http.Server{Handler: mux}

	log.Printf("invoker pool listening on %s", p.addr)
	err = srv.Serve(ln)
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func (p *Pool) handleUpgrade(ctx context.Context) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("invoker pool: upgrade error: %v", err)
			return
		}
		conn.SetCompressionLevel(9)
		conn.SetReadLimit(MaxFrameSize)

		go p.handleConn(ctx, conn)
	}
}

func (p *Pool) handleConn(ctx context.Context, conn *websocket.Conn) {
	_, raw, err := conn.ReadMessage()
	if err != nil {
		log.Printf("invoker pool: read first frame: %v", err)
		conn.Close()
		return
	}

	msg, err := wireproto.DecodeInvokerFrame(raw)
	if err != nil {
		log.Printf("invoker pool: decode first frame: %v", err)
		conn.Close()
		return
	}
	token, ok := msg.(wireproto.Token)
	if !ok {
		log.Printf("invoker pool: first frame was %T, want TOKEN", msg)
		conn.Close()
		return
	}

	session := NewSession(token.ID, token.Key, conn, p.broker, p.auth, p.up)
	if err := session.Authenticate(); err != nil {
		log.Printf("invoker pool: authentication failed for %s: %v", token.ID, err)
		conn.Close()
		return
	}

	session.RunMessageLoop(ctx)
}

// DeleteInvoker forwards to the broker; it lets the pool serve as the
// control surface's InvokerDeleter.
func (p *Pool) DeleteInvoker(id uuid.UUID) error {
	return p.broker.DeleteInvoker(id)
}
