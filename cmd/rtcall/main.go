// Command rtcall is the CLI entry point.
//
// This tool sets up a peer-to-peer audio/video call over WebRTC. Session
// descriptions and candidates are exchanged through a WebSocket relay, which
// the same binary can run.
//
// It can be launched interactively (no arguments) or non-interactively with
// a subcommand: `rtcall [flags] call` or `rtcall [flags] relay`.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"github.com/pterm/pterm"

	"github.com/1ureka/rtcall/internal/config"
	"github.com/1ureka/rtcall/internal/relay"
	"github.com/1ureka/rtcall/internal/util"
)

var version = "dev"

func main() {
	// Root context, cancelled on Ctrl+C.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	// CLI flags. Unset flags keep the values from .env / RTCALL_* variables.
	envFile := flag.String("env", ".env", "Dotenv file with RTCALL_* settings")
	host := flag.String("host", "", "Relay host to dial (call)")
	port := flag.Int("port", 0, "Relay port to dial (call), 1~65535")
	path := flag.String("path", "", "Relay endpoint path, also the room name (call)")
	secure := flag.Bool("secure", false, "Dial the relay with wss:// (call)")
	listen := flag.String("listen", "", "Address the relay listens on (relay)")
	ice := flag.String("ice", "", "Comma-separated STUN server URLs (call)")
	timeout := flag.Duration("timeout", 0, "Negotiation timeout, 0 disables (call)")
	initiate := flag.Bool("initiate", false, "Place the call as soon as the relay is reachable (call)")
	debugMode := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	cfg, err := config.FromEnv(config.Default(), *envFile)
	if err != nil {
		util.LogError("%v", err)
		os.Exit(1)
	}

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "host":
			cfg.RelayHost = *host
		case "port":
			cfg.RelayPort = *port
		case "path":
			cfg.RelayPath = *path
		case "secure":
			cfg.RelaySecure = *secure
		case "listen":
			cfg.ListenAddr = *listen
		case "ice":
			cfg.ICEServers = config.SplitList(*ice)
		case "timeout":
			cfg.NegotiationTimeout = *timeout
		case "debug":
			cfg.Debug = *debugMode
		}
	})

	if cfg.Debug {
		util.EnableDebug()
	}

	pterm.Info.Println(fmt.Sprintf("rtcall v%s", version))
	pterm.Println()

	switch flag.Arg(0) {
	case "":
		// No subcommand → interactive mode.
		runInteractive(ctx, cfg)

	case string(config.RoleCall):
		cfg.Role = config.RoleCall
		mustValidate(cfg)
		runCall(ctx, cfg, *initiate)

	case string(config.RoleRelay):
		cfg.Role = config.RoleRelay
		mustValidate(cfg)
		runRelay(ctx, cfg)

	default:
		util.LogError("invalid subcommand %q: must be 'call' or 'relay'", flag.Arg(0))
		os.Exit(1)
	}

	util.LogInfo("successfully shut down")
}

// ---------------------------------------------------------------------------
// Run modes
// ---------------------------------------------------------------------------

// runInteractive prompts for the role and the relay address when no
// subcommand is given.
func runInteractive(ctx context.Context, cfg config.Config) {
	role, _ := pterm.DefaultInteractiveSelect.
		WithOptions([]string{"Call  - Join a call through a relay", "Relay - Run the signaling relay"}).
		WithDefaultText("Select a mode").
		Show()

	pterm.Println()

	if strings.HasPrefix(role, "Relay") {
		cfg.Role = config.RoleRelay
		mustValidate(cfg)
		runRelay(ctx, cfg)
		return
	}

	cfg.Role = config.RoleCall
	cfg.RelayHost, cfg.RelayPort = askRelay(cfg)
	mustValidate(cfg)
	runCall(ctx, cfg, false)
}

// runRelay serves the relay until ctx is cancelled.
func runRelay(ctx context.Context, cfg config.Config) {
	stats := &util.Stats{}
	srv := relay.NewServer(stats)

	port, err := srv.Start(cfg.ListenAddr)
	if err != nil {
		util.LogError("%v", err)
		os.Exit(1)
	}
	defer srv.Close()

	host, _, _ := net.SplitHostPort(cfg.ListenAddr)
	if host == "" {
		host = "0.0.0.0"
	}

	pterm.DefaultBox.WithTitle("Signaling Relay").Println(
		fmt.Sprintf("Listen  : %s\nPeers   : ws://<this host>:%d/<room>\nMetrics : http://<this host>:%d%s",
			net.JoinHostPort(host, strconv.Itoa(port)), port, port, relay.MetricsPath),
	)
	pterm.Println()

	util.StartStatsReporter(ctx, stats, statsInterval)
	<-ctx.Done()
}

// ---------------------------------------------------------------------------
// Helper Functions
// ---------------------------------------------------------------------------

func mustValidate(cfg config.Config) {
	if err := cfg.Validate(); err != nil {
		util.LogError("%v", err)
		os.Exit(1)
	}
}

// askRelay prompts for the relay address until a valid host:port is entered.
func askRelay(cfg config.Config) (string, int) {
	def := net.JoinHostPort(cfg.RelayHost, strconv.Itoa(cfg.RelayPort))

	for {
		raw, _ := pterm.DefaultInteractiveTextInput.
			WithDefaultText(fmt.Sprintf("Relay address (default %s)", def)).
			Show()

		raw = strings.TrimSpace(raw)
		if raw == "" {
			raw = def
		}

		host, portStr, err := net.SplitHostPort(raw)
		port, perr := strconv.Atoi(portStr)
		if err == nil && perr == nil && host != "" && port >= 1 && port <= 65535 {
			pterm.Println()
			return host, port
		}

		pterm.Println()
		util.LogWarning("invalid input: please enter host:port, e.g. 192.168.0.16:3000")
	}
}
