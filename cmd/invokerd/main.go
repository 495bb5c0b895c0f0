// Command invokerd runs the invoker-manager broker: it accepts invoker
// WebSocket connections, dispatches submissions fed from the upstream
// testing-system, and exposes an operator control surface.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/summer-54/invoker-manager/internal/authcert"
	"github.com/summer-54/invoker-manager/internal/broker"
	"github.com/summer-54/invoker-manager/internal/certapi"
	"github.com/summer-54/invoker-manager/internal/control"
	"github.com/summer-54/invoker-manager/internal/invoker"
	"github.com/summer-54/invoker-manager/internal/upstream"
)

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	invokersAddr := getenv("INVOKERS_ADDRESS", "127.0.0.1:1111")
	tsAddr := getenv("TS_ADDRESS", "127.0.0.1:2222")
	cpAddr := getenv("CP_ADDRESS", "127.0.0.1:3333")

	authConfig := authcert.Config{Strategy: authcert.ParseStrategy(os.Getenv("AUTH_STRATEGY"))}
	switch authConfig.Strategy {
	case authcert.FromFile:
		authConfig.CertFile = os.Getenv("AUTH_CERT_FILE")
	case authcert.FromFileByName:
		authConfig.CertDir = os.Getenv("AUTH_CERT_DIR")
	}

	b := broker.New()

	if authConfig.Strategy == authcert.API {
		authConfig.UpstreamCert = certapi.New(tsAddr)
	}

	upstreamURL := fmt.Sprintf("ws://%s/api/ws/setup", tsAddr)
	link := upstream.New(upstreamURL, b)

	pool := invoker.NewPool(invokersAddr, b, authConfig, link)
	surface := control.New(b, pool)

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("invokerd: shutdown signal received")
		cancel()
	}()

	go link.Run(ctx)

	cpServer := &http.Server{Addr: cpAddr, Handler: surface.Router()}
	go func() {
		<-ctx.Done()
		cpServer.Close()
	}()

	go func() {
		log.Printf("control surface listening on %s", cpAddr)
		if err := cpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("control surface failed: %v", err)
		}
	}()

	if err := pool.Serve(ctx); err != nil {
		log.Fatalf("invoker pool failed to bind %s: %v", invokersAddr, err)
	}
}
