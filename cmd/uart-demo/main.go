// Program uart-demo exercises the UART registry against a host driver.
package main

import (
	"context"
	"errors"
	"expvar"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/creachadair/command"
	"github.com/creachadair/flax"
	"github.com/creachadair/taskgroup"

	"periphcode-go/bus"
	"periphcode-go/drivers/uartlib"
	"periphcode-go/drivers/uartsim"
	"periphcode-go/errcode"
	"periphcode-go/periph"
	"periphcode-go/services/config"
	"periphcode-go/services/uart"
)

var flags struct {
	Config  string        `flag:"config,Configuration file (default: embedded config for --device)"`
	Device  string        `flag:"device,default=host,Embedded configuration to use"`
	Library string        `flag:"lib,Vendor UART library to load instead of the simulator"`
	Delay   time.Duration `flag:"byte-delay,default=1ms,Simulated line time per byte"`
	Writers int           `flag:"writers,default=4,Number of concurrent writers"`
	Debug   bool          `flag:"debug,Enable debug logging"`
}

func main() {
	root := &command.C{
		Name:     filepath.Base(os.Args[0]),
		Help:     "Exercise the shared UART handle registry.",
		SetFlags: command.Flags(flax.MustBind, &flags),
		Commands: []*command.C{
			{
				Name: "run",
				Help: `Run the handle scenario.

A persistent handle opens UART0. A second request for UART0 with another
configuration is refused while it lives. Scoped handles open, use and release
UART1. Then several writers share UART0 through clones, each grouping a
request and its reply in one transaction.`,
				Run: runScenario,
			},
			{
				Name: "status",
				Help: "Print the configuration document and the registry state.",
				Run:  runStatus,
			},
			command.VersionCommand(),
			command.HelpCommand(nil),
		},
	}
	command.RunOrFail(root.NewEnv(nil).MergeFlags(true), os.Args[1:])
}

func openDriver() (uart.Driver, func(), error) {
	if flags.Library != "" {
		lib, err := uartlib.Open(flags.Library)
		if err != nil {
			return nil, nil, err
		}
		return lib, func() { lib.Close() }, nil
	}
	return uartsim.New(uartsim.Config{ByteDelay: flags.Delay}), func() {}, nil
}

func setLogging() {
	if flags.Debug {
		periph.SetLogLevel(slog.LevelDebug)
	}
}

func runScenario(env *command.Env) error {
	setLogging()
	if flags.Writers < 1 {
		return env.Usagef("--writers must be positive")
	}
	doc, err := config.Load(flags.Config, flags.Device)
	if err != nil {
		return err
	}
	p0, ok0 := doc.Port(uint8(uart.UART0))
	p1, ok1 := doc.Port(uint8(uart.UART1))
	if !ok0 || !ok1 {
		return errors.New("configuration must list uart 0 and uart 1")
	}

	drv, closeDrv, err := openDriver()
	if err != nil {
		return err
	}
	defer closeDrv()

	b := bus.NewBus(16)
	conn := b.NewConnection("uart-demo")
	defer conn.Disconnect()
	reg := uart.New(drv, periph.WithBus(conn))

	// UART0 is built and destroyed once, UART1 once per scope.
	const scopes = 2
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events := watchEvents(ctx, conn, reg, 2+2*scopes)

	// Persistent handle, alive until the summary.
	persistent, err := reg.GetHandle(uart.UART0, p0.SerialConfig)
	if err != nil {
		return err
	}
	defer persistent.Release()
	fmt.Printf("uart0 open at %v\n", persistent.Config())

	other := p0.SerialConfig
	other.Baud = 57600
	if other == p0.SerialConfig {
		other.Baud = 9600
	}
	if _, err := reg.GetHandle(uart.UART0, other); errcode.Of(err) == errcode.ConfigConflict {
		fmt.Printf("uart0 at %v refused: %v\n", other, err)
	} else if err != nil {
		return err
	} else {
		return errors.New("conflicting configuration was accepted")
	}

	// Scoped handles on UART1.
	for i := range scopes {
		h, err := reg.GetHandle(uart.UART1, p1.SerialConfig)
		if err != nil {
			return err
		}
		reply := make([]byte, 4)
		err = errors.Join(h.Send([]byte{0x10, byte(i)}), h.Receive(reply))
		h.Release()
		if err != nil {
			return err
		}
		fmt.Printf("uart1 scope %d: reply % x, live after release: %v\n", i, reply, reg.IsConstructed(uart.UART1))
	}

	// Concurrent writers sharing UART0.
	start := time.Now()
	g := taskgroup.New(nil)
	for w := range flags.Writers {
		g.Go(func() error {
			h, err := persistent.Clone()
			if err != nil {
				return err
			}
			defer h.Release()
			reply := make([]byte, 2)
			return h.Transact(ctx, func(p periph.Port) error {
				if err := p.Send([]byte(fmt.Sprintf("AT+W%d\r", w))); err != nil {
					return err
				}
				return p.Receive(reply)
			})
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	fmt.Printf("%d writers done in %v, uart0 refs back to %d\n", flags.Writers, time.Since(start).Round(time.Millisecond), persistent.Refs())

	persistent.Release()
	wctx, wcancel := context.WithTimeout(ctx, time.Second)
	defer wcancel()
	fmt.Printf("state events seen: %d\n", events.Wait(wctx))
	printSnapshot(reg)
	printMetrics(reg.Metrics())
	return nil
}

type eventWatch struct {
	g    *taskgroup.Group
	stop context.CancelFunc
	seen chan struct{} // closed once the expected events were printed
	n    int
}

// Wait blocks until the expected events were printed or ctx ends, then stops
// the watchers and reports how many were printed.
func (w *eventWatch) Wait(ctx context.Context) int {
	select {
	case <-w.seen:
	case <-ctx.Done():
	}
	w.stop()
	w.g.Wait()
	return w.n
}

// watchEvents prints slot state events until Wait stops it. want is the
// number of events the caller expects.
func watchEvents(ctx context.Context, conn *bus.Connection, reg *uart.Registry, want int) *eventWatch {
	ctx, stop := context.WithCancel(ctx)
	w := &eventWatch{g: taskgroup.New(nil), stop: stop, seen: make(chan struct{})}
	merged := make(chan *bus.Message, 16)
	for id := range reg.Len() {
		sub := conn.Subscribe(periph.StateTopic(reg.Name(), periph.ID(id)))
		w.g.Go(func() error {
			defer conn.Unsubscribe(sub)
			for {
				select {
				case <-ctx.Done():
					return nil
				case m, ok := <-sub.Channel():
					if !ok {
						return nil
					}
					select {
					case merged <- m:
					case <-ctx.Done():
						return nil
					}
				}
			}
		})
	}
	w.g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case m := <-merged:
				ev := m.Payload.(periph.SlotEvent)
				w.n++
				fmt.Printf("  event %s: %s ready=%v\n", m.Topic, ev.State, ev.Ready)
				if w.n == want {
					close(w.seen)
				}
			}
		}
	})
	return w
}

func runStatus(env *command.Env) error {
	setLogging()
	doc, err := config.Load(flags.Config, flags.Device)
	if err != nil {
		return err
	}
	fmt.Printf("backend: %s\n", uart.Backend())
	for _, p := range doc.UARTs {
		fmt.Printf("configured uart%d: %v\n", p.ID, p.SerialConfig)
	}
	printSnapshot(uart.Default())
	return nil
}

func printSnapshot(reg *uart.Registry) {
	tw := tabwriter.NewWriter(os.Stdout, 4, 8, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tLIVE\tREADY\tREFS\tCONFIG")
	for _, s := range reg.Snapshot() {
		cfg := "-"
		if s.Live {
			cfg = s.Config.String()
		}
		fmt.Fprintf(tw, "%v\t%v\t%v\t%d\t%s\n", s.ID, s.Live, s.Ready, s.Refs, cfg)
	}
	tw.Flush()
}

func printMetrics(m *expvar.Map) {
	var parts []string
	m.Do(func(kv expvar.KeyValue) {
		parts = append(parts, kv.Key+"="+kv.Value.String())
	})
	fmt.Println("metrics:", strings.Join(parts, " "))
}
