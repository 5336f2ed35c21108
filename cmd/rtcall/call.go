package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pterm/pterm"

	"github.com/1ureka/rtcall/internal/config"
	"github.com/1ureka/rtcall/internal/negotiation"
	"github.com/1ureka/rtcall/internal/signaling"
	"github.com/1ureka/rtcall/internal/transport"
	"github.com/1ureka/rtcall/internal/util"
)

const statsInterval = 30 * time.Second

type outcome int

const (
	outcomeQuit outcome = iota
	outcomeNewAttempt
)

// runCall runs call attempts until the user hangs up or ctx is cancelled. A
// failed attempt is never renegotiated; retrying it builds a fresh one.
func runCall(ctx context.Context, cfg config.Config, initiate bool) {
	stats := &util.Stats{}
	util.StartStatsReporter(ctx, stats, statsInterval)
	cmds := readCommands()

	pterm.DefaultBox.WithTitle("Call").Println(
		fmt.Sprintf("Relay : %s\nKeys  : c = call, r = retry, q = hang up", cfg.RelayURL()),
	)
	pterm.Println()

	for attempt := 1; ; attempt++ {
		o, err := runAttempt(ctx, cfg, stats, cmds, initiate)
		if err != nil {
			util.LogError("failed to start call: %v", err)
			os.Exit(1)
		}
		if o != outcomeNewAttempt {
			return
		}
		util.LogInfo("starting attempt #%d", attempt+1)
	}
}

// runAttempt owns one Transport, Channel and Coordinator and renders the
// coordinator's lifecycle events until the attempt ends.
func runAttempt(ctx context.Context, cfg config.Config, stats *util.Stats, cmds <-chan string, initiate bool) (outcome, error) {
	tr, err := transport.NewTransport(ctx, cfg.ICEServers)
	if err != nil {
		return outcomeQuit, err
	}
	defer tr.Close()

	ch := signaling.NewChannel(signaling.ChannelConfig{
		URL:          cfg.RelayURL(),
		DialTimeout:  cfg.DialTimeout,
		QueueSize:    cfg.SendQueueSize,
		WriteTimeout: cfg.WriteTimeout,
		PingInterval: cfg.PingInterval,
		Stats:        stats,
	})

	coord := negotiation.New(tr, ch, negotiation.Config{NegotiationTimeout: cfg.NegotiationTimeout})
	defer coord.Close()

	events := newEventQueue()
	coord.OnEvent(events.push)

	if err := coord.Start(ctx); err != nil {
		return outcomeQuit, err
	}
	util.LogDebug("attempt %s started", coord.ID())

	ui := &presenter{}
	defer ui.stop()

	failed := false
	mediaDone := tr.Done()

	for {
		select {
		case <-events.ready():
			for ev, ok := events.pop(); ok; ev, ok = events.pop() {
				ui.render(ev)
				switch ev.Kind {
				case negotiation.EventSocketReady:
					if initiate {
						ui.spin("Calling ...")
						coord.Call()
					}
				case negotiation.EventFailed:
					failed = true
				}
			}

		case cmd, ok := <-cmds:
			if !ok {
				cmds = nil
				continue
			}
			switch cmd {
			case "":
			case "c", "call":
				if coord.State() == negotiation.StateSocketReady {
					ui.spin("Calling ...")
				}
				coord.Call()
			case "r", "retry":
				if failed {
					return outcomeNewAttempt, nil
				}
				coord.Retry()
			case "q", "quit", "hangup":
				ui.stop()
				pterm.Info.Println("Hung up")
				return outcomeQuit, nil
			default:
				util.LogWarning("unknown command %q (c = call, r = retry, q = hang up)", cmd)
			}

		case <-mediaDone:
			mediaDone = nil
			if ctx.Err() != nil {
				return outcomeQuit, nil
			}
			failed = true
			ui.stop()
			pterm.Warning.Println("Media connection ended (r = new attempt, q = quit)")

		case <-ctx.Done():
			return outcomeQuit, nil
		}
	}
}

// readCommands forwards trimmed, lower-cased stdin lines until EOF.
func readCommands() <-chan string {
	cmds := make(chan string)
	go func() {
		defer close(cmds)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			cmds <- strings.ToLower(strings.TrimSpace(scanner.Text()))
		}
	}()
	return cmds
}

// ---------------------------------------------------------------------------
// Presentation
// ---------------------------------------------------------------------------

// presenter renders lifecycle events. The spinner doubles as the "waiting"
// indicator between relay connection and the remote peer's arrival.
type presenter struct {
	spinner *pterm.SpinnerPrinter
}

func (p *presenter) render(ev negotiation.Event) {
	switch ev.Kind {
	case negotiation.EventConnecting:
		p.spin("Connecting to relay ...")
	case negotiation.EventSocketReady:
		p.succeed("Relay connected")
		p.spin("Waiting for a call (c = call, q = hang up) ...")
	case negotiation.EventConnectionFailed:
		p.fail(fmt.Sprintf("Relay unavailable: %v (r = retry)", ev.Err))
	case negotiation.EventRemoteOfferArrived:
		p.succeed("Incoming call")
		p.spin("Answering ...")
	case negotiation.EventRemoteAnswerArrived:
		p.succeed("Remote peer answered")
		p.spin("Connecting media ...")
	case negotiation.EventEstablished:
		p.succeed("Call established")
	case negotiation.EventFailed:
		p.fail(fmt.Sprintf("Call failed: %v (r = new attempt, q = quit)", ev.Err))
	}
}

func (p *presenter) spin(text string) {
	p.stop()
	spinner, err := pterm.DefaultSpinner.Start(text)
	if err != nil {
		pterm.Info.Println(text)
		return
	}
	p.spinner = spinner
}

func (p *presenter) succeed(text string) {
	if p.spinner == nil {
		pterm.Success.Println(text)
		return
	}
	p.spinner.Success(text)
	p.spinner = nil
}

func (p *presenter) fail(text string) {
	if p.spinner == nil {
		pterm.Error.Println(text)
		return
	}
	p.spinner.Fail(text)
	p.spinner = nil
}

func (p *presenter) stop() {
	if p.spinner != nil {
		_ = p.spinner.Stop()
		p.spinner = nil
	}
}
