// Command lapdm-sim runs a simulated GSM station on one dedicated channel.
// A BTS answers channel requests and echoes acknowledged messages; an MS
// performs random access, establishes SAPI 0 and sends lines read from
// standard input.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"avaneesh/lapdm-go/pkg/config"
	"avaneesh/lapdm-go/pkg/driver"
	"avaneesh/lapdm-go/pkg/lapdm"
)

func main() {
	configPath := pflag.StringP("config", "c", "", "Configuration file (.yaml, .yml or .toml).")
	role := pflag.StringP("role", "r", "", "Station role, bts or ms. Overrides the configuration file.")
	transport := pflag.StringP("transport", "t", "", "Transport type: tcp, udp, quic or serial.")
	address := pflag.StringP("address", "a", "", "Transport address, host:port.")
	server := pflag.BoolP("server", "s", false, "Listen for the peer instead of connecting.")
	logLevel := pflag.StringP("log-level", "l", "", "Log level: debug, info, warn or error.")
	frameDebug := pflag.Bool("frame-debug", false, "Hex dump every frame sent and received.")
	help := pflag.BoolP("help", "h", false, "Display help text.")

	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Runs a LAPDm BTS or MS simulator over a network or serial link.\n\n")
		pflag.PrintDefaults()
	}
	pflag.Parse()

	if *help {
		pflag.Usage()
		os.Exit(0)
	}

	cfg := config.Default()
	if *configPath != "" {
		var err error
		cfg, err = config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
			os.Exit(1)
		}
	}

	if *role != "" {
		cfg.Role = *role
	}
	if *transport != "" {
		cfg.Transport.Type = *transport
	}
	if *address != "" {
		cfg.Transport.Address = *address
	}
	if pflag.CommandLine.Changed("server") {
		cfg.Transport.Server = *server
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if *frameDebug {
		cfg.FrameDebug = true
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	if err := run(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(cfg config.Config) error {
	log := cfg.ApplyLogging()

	mode, err := cfg.Mode()
	if err != nil {
		return err
	}
	cr, err := cfg.ContentionResolution()
	if err != nil {
		return err
	}

	// Step 1: Open the transport
	physical, err := cfg.Transport.Open()
	if err != nil {
		return fmt.Errorf("failed to open %s transport: %w", cfg.Transport.Type, err)
	}

	// Step 2: Create the channel
	manager := lapdm.NewManagerWithLogger(log)
	defer manager.Shutdown()

	ch, err := manager.AddChannel(cfg.Name, mode, cfg.ChannelConfig())
	if err != nil {
		physical.Close()
		return fmt.Errorf("failed to create channel: %w", err)
	}

	st := &station{
		log:         log,
		ch:          ch,
		chanNr:      cfg.ChanNr,
		ra:          cfg.Sim.RA,
		cr:          cr,
		echo:        cfg.Sim.Echo,
		established: make(chan struct{}),
		released:    make(chan struct{}, 1),
	}
	ch.SetL3(st)

	// Step 3: Attach it to the Layer 1 driver
	drv, err := driver.New(cfg.Name, physical, cfg.DriverConfig())
	if err != nil {
		physical.Close()
		return fmt.Errorf("failed to create driver: %w", err)
	}
	if err := drv.AddChannel(cfg.ChanNr, ch); err != nil {
		physical.Close()
		return fmt.Errorf("failed to add channel: %w", err)
	}
	if err := drv.Open(); err != nil {
		physical.Close()
		return fmt.Errorf("failed to open driver: %w", err)
	}
	defer drv.Close()

	log.Info("%s: %s on %s %s (chan_nr=0x%02x)", cfg.Name, ch.Mode(), cfg.Transport.Type, cfg.Transport.Address, cfg.ChanNr)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigs)

	// Step 4: Run the simulated Layer 3
	lines := make(chan string)
	if st.isMS() {
		if err := st.randomAccess(); err != nil {
			return err
		}
		go readLines(lines)
	}

	for running := true; running; {
		select {
		case <-sigs:
			running = false
		case line, ok := <-lines:
			if !ok {
				running = false
				break
			}
			if err := st.send(line); err != nil {
				log.Warn("%s: %v", cfg.Name, err)
			}
		}
	}

	if st.isMS() {
		st.release(2 * time.Second)
	}

	printStatistics(cfg.Name, ch, drv)
	return nil
}

func printStatistics(name string, ch *lapdm.Channel, drv *driver.Driver) {
	stats := drv.GetStatistics()
	phyStats := drv.GetPhysicalStatistics()

	fmt.Printf("\n=== %s ===\n", name)
	fmt.Printf("Envelopes sent/received: %d/%d\n", stats.GetEnvelopesTx(), stats.GetEnvelopesRx())
	fmt.Printf("Bad envelopes: %d, unrouted: %d\n", stats.GetBadEnvelopes(), stats.GetUnrouted())
	fmt.Printf("RTS: %d, T200 expiries: %d\n", stats.GetRTS(), stats.GetT200Fired())
	fmt.Printf("Bytes sent/received: %d/%d\n", phyStats.BytesSent, phyStats.BytesReceived)

	for _, e := range []*lapdm.Entity{ch.DCCH(), ch.ACCH()} {
		s := e.Statistics()
		fmt.Printf("%s: frames %d/%d, UI %d/%d, malformed %d\n", strings.ToUpper(e.Name()),
			s.GetFramesTx(), s.GetFramesRx(), s.GetUITx(), s.GetUIRx(), s.GetMalformed())
	}
}
