// Command gdbstub-server exposes a gdbstub.Session over a TCP or QUIC
// listener, retrying Accept across transient errors and shutting down
// cleanly on SIGINT/SIGTERM.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/riftlane/gdbstub/internal/allocator"
	"github.com/riftlane/gdbstub/internal/gdbstub"
	"github.com/riftlane/gdbstub/internal/gdbstub/exampletarget"
	"github.com/riftlane/gdbstub/internal/monitorwatch"
	"github.com/riftlane/gdbstub/internal/transport"
)

func main() {
	var (
		addr          string
		transportKind string
		memSize       int
		maxPacket     int
		extendedStop  bool
		allocatorKind string
		monitorCmdDir string
	)
	flag.StringVar(&addr, "addr", "127.0.0.1:9000", "listen address for the RSP server")
	flag.StringVar(&transportKind, "transport", "tcp", "transport to serve the RSP session over: tcp or quic")
	flag.IntVar(&memSize, "mem-size", 1<<20, "size in bytes of the example target's simulated memory")
	flag.IntVar(&maxPacket, "max-packet", 0, "packet buffer growth ceiling; 0 selects the engine default")
	flag.BoolVar(&extendedStop, "extended-stop-reply", false, "emit T05thread:1; stop replies instead of bare S05")
	flag.StringVar(&allocatorKind, "allocator", "pool", "allocator backing packet buffers: pool, system, or arena")
	flag.StringVar(&monitorCmdDir, "monitor-cmd-dir", "", "optional directory of hot-reloaded qRcmd descriptor files")
	flag.Parse()

	alloc, err := buildAllocator(allocatorKind)
	if err != nil {
		fmt.Fprintln(os.Stderr, "gdbstub-server:", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch transportKind {
	case "tcp":
		runTCP(ctx, addr, alloc, memSize, maxPacket, extendedStop, monitorCmdDir)
	case "quic":
		runQUIC(ctx, addr, alloc, memSize, maxPacket, extendedStop, monitorCmdDir)
	default:
		fmt.Fprintf(os.Stderr, "gdbstub-server: unknown -transport %q (want tcp or quic)\n", transportKind)
		os.Exit(2)
	}
}

func buildAllocator(kind string) (gdbstub.Allocator, error) {
	switch kind {
	case "pool":
		return allocator.NewPoolAllocator(nil, nil), nil
	case "system":
		return allocator.NewSystemAllocator(nil), nil
	case "arena":
		return allocator.NewArenaAllocator(4 << 20)
	default:
		return nil, fmt.Errorf("unknown -allocator %q (want pool, system, or arena)", kind)
	}
}

func runTCP(ctx context.Context, addr string, alloc gdbstub.Allocator, memSize, maxPacket int, extendedStop bool, monitorCmdDir string) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		fmt.Fprintln(os.Stderr, "gdbstub-server: listen failed:", err)
		os.Exit(1)
	}
	fmt.Println("gdbstub-server listening on", ln.Addr().String(), "(tcp)")

	go acceptLoop(ctx, ln, alloc, memSize, maxPacket, extendedStop, monitorCmdDir)

	<-ctx.Done()
	_ = ln.Close()
	fmt.Println("gdbstub-server stopped")
}

func runQUIC(ctx context.Context, addr string, alloc gdbstub.Allocator, memSize, maxPacket int, extendedStop bool, monitorCmdDir string) {
	tlsCfg, err := transport.GenerateSelfSignedTLS([]string{"localhost", "127.0.0.1"}, 24*time.Hour)
	if err != nil {
		fmt.Fprintln(os.Stderr, "gdbstub-server: TLS setup failed:", err)
		os.Exit(1)
	}

	srv := transport.NewQUICServer(addr, tlsCfg)
	handler := func(io gdbstub.IO) {
		handleIO(io, alloc, memSize, maxPacket, extendedStop, monitorCmdDir)
	}
	if err := srv.Start(ctx, handler); err != nil {
		fmt.Fprintln(os.Stderr, "gdbstub-server: listen failed:", err)
		os.Exit(1)
	}
	fmt.Println("gdbstub-server listening on", addr, "(quic)")

	<-ctx.Done()
	_ = srv.Stop()
	fmt.Println("gdbstub-server stopped")
}

// acceptLoop retries Accept across transient errors, same backoff shape
// as transport.TCPServer, so one bad connection attempt never takes the
// listener down.
func acceptLoop(ctx context.Context, ln net.Listener, alloc gdbstub.Allocator, memSize, maxPacket int, extendedStop bool, monitorCmdDir string) {
	var backoff time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
			}
			if ne, ok := err.(net.Error); ok && ne.Temporary() {
				if backoff == 0 {
					backoff = 5 * time.Millisecond
				} else {
					backoff *= 2
					if backoff > 500*time.Millisecond {
						backoff = 500 * time.Millisecond
					}
				}
				time.Sleep(backoff)
				continue
			}
			return
		}
		backoff = 0
		go handleConn(conn, alloc, memSize, maxPacket, extendedStop, monitorCmdDir)
	}
}

func handleConn(conn net.Conn, alloc gdbstub.Allocator, memSize, maxPacket int, extendedStop bool, monitorCmdDir string) {
	defer conn.Close()
	handleIO(transport.NewTCPIOWithPoll(conn), alloc, memSize, maxPacket, extendedStop, monitorCmdDir)
}

// handleIO runs one RSP session to completion over an already-established
// transport, independent of whether that transport is a TCP connection or
// a QUIC stream.
func handleIO(io gdbstub.IO, alloc gdbstub.Allocator, memSize, maxPacket int, extendedStop bool, monitorCmdDir string) {
	target := exampletarget.New(memSize)
	sess, err := gdbstub.NewSession(gdbstub.Config{
		IO:                   io,
		Target:               target,
		Allocator:            alloc,
		MaxPacketBytes:       maxPacket,
		UseExtendedStopReply: extendedStop,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "gdbstub-server: session setup failed:", err)
		return
	}

	if monitorCmdDir != "" {
		registry := map[string]monitorwatch.Handler{
			"reset": target.Commands()[0].Handler,
		}
		watcher, err := monitorwatch.New(monitorCmdDir, registry, sess)
		if err != nil {
			fmt.Fprintln(os.Stderr, "gdbstub-server: monitor-cmd-dir watch failed:", err)
		} else {
			watcher.Start()
			defer watcher.Close()
		}
	}

	for {
		status := sess.Run()
		switch status {
		case gdbstub.PeerDisconnected:
			return
		case gdbstub.TryAgain:
			continue
		default:
			fmt.Fprintln(os.Stderr, "gdbstub-server: session ended:", status)
			return
		}
	}
}
