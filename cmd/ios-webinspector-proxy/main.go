// Command ios-webinspector-proxy is a drop-in reimplementation of
// idevicewebinspectorproxy: a TCP listener
// that bridges Web Inspector clients to one device's webinspector lockdown
// service, transparently re-serializing frames between binary and XML
// property lists.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-drift/iosctl/config"
	"github.com/go-drift/iosctl/inspectorproxy"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("ios-webinspector-proxy", flag.ContinueOnError)
	debug := fs.Bool("d", false, "enable debug logging")
	udid := fs.String("u", "", "device UDID (required)")
	configPath := fs.String("c", "", "optional YAML config file providing defaults (see config.Config)")
	timeoutMS := fs.Int("t", 0, "device recv timeout in milliseconds (default: 1000, or the config file's value)")
	xmlOut := fs.Bool("x", false, "re-serialize device->client frames as XML instead of binary")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: ios-webinspector-proxy [-d] [-u UDID] [-c CONFIG] [-t TIMEOUT_MS] [-x] PORT")
		return 1
	}
	port, err := strconv.Atoi(fs.Arg(0))
	if err != nil {
		fmt.Fprintln(os.Stderr, "ios-webinspector-proxy: invalid PORT:", err)
		return 1
	}
	if *udid == "" {
		fmt.Fprintln(os.Stderr, "ios-webinspector-proxy: -u UDID is required")
		return 1
	}

	recvTimeout := 1000 * time.Millisecond
	if *configPath != "" {
		cfg, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "ios-webinspector-proxy:", err)
			return 1
		}
		if cfg.WebInspectorRecvTimeout > 0 {
			recvTimeout = cfg.WebInspectorRecvTimeout
		}
	}
	if *timeoutMS > 0 {
		recvTimeout = time.Duration(*timeoutMS) * time.Millisecond
	}

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		fmt.Fprintln(os.Stderr, "ios-webinspector-proxy: listening:", err)
		return 1
	}
	defer ln.Close()

	signal.Ignore(syscall.SIGPIPE)

	proxy := &inspectorproxy.Proxy{
		UDID:        *udid,
		Dial:        inspectorproxy.DialGoIOS,
		RecvTimeout: recvTimeout,
		XML:         *xmlOut,
		Logger:      logger,
	}

	ctx, cancel := quitContext()
	defer cancel()

	logger.Info("ios-webinspector-proxy: listening", "port", port, "udid", *udid)
	if err := proxy.Serve(ctx, ln); err != nil {
		fmt.Fprintln(os.Stderr, "ios-webinspector-proxy:", err)
		return 1
	}
	return 0
}

// quitContext cancels on SIGINT, SIGTERM, or SIGQUIT.
func quitContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	go func() {
		select {
		case <-sigChan:
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigChan)
	}()
	return ctx, cancel
}
