// Command kbictl talks to KiNOS devices over their serial interfaces.
//
// It bundles the host-side tooling for the binary device protocol:
//   - Device discovery over the OS serial port table
//   - An interactive text shell translated to binary commands
//   - Firmware updates across several devices in parallel
//   - Radio packet capture to pcap files
//
// Usage:
//
//	kbictl <command> [flags] [args]
//
// Commands:
//
//	list                      List attached devices
//	shell                     Open an interactive shell on one device
//	flash <port> [<port>...]  Flash a firmware image to one or more devices
//	sniff                     Capture radio traffic to a pcap file
//
// Flags:
//
//	-port string      Serial port for shell and sniff (e.g. /dev/ttyUSB0)
//	-baud int         UART baud rate (default 115200)
//	-catalog string   YAML command catalog overriding the built-in table
//	-image string     Firmware image file (.dfu) for flash
//	-channel int      Radio channel 11-26 for sniff (default 11)
//	-out string       Output pcap file for sniff (default "capture.pcap")
//	-log-file string  Append binary protocol events to this file
//	-verbose          Mirror protocol events to stderr
//
// Examples:
//
//	# List attached devices
//	kbictl list
//
//	# Interactive shell on a UART-attached device
//	kbictl shell -port /dev/ttyUSB0
//
//	# Flash two devices in parallel
//	kbictl flash -image kinos-1.2.dfu /dev/ttyUSB0 /dev/ttyUSB1
//
//	# Capture channel 15 traffic
//	kbictl sniff -port /dev/ttyUSB0 -channel 15 -out ch15.pcap
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/kbi-protocol/kbi-go/cmd/kbictl/interactive"
	"github.com/kbi-protocol/kbi-go/pkg/capture"
	"github.com/kbi-protocol/kbi-go/pkg/catalog"
	"github.com/kbi-protocol/kbi-go/pkg/device"
	"github.com/kbi-protocol/kbi-go/pkg/firmware"
	"github.com/kbi-protocol/kbi-go/pkg/flash"
	"github.com/kbi-protocol/kbi-go/pkg/kbi"
	"github.com/kbi-protocol/kbi-go/pkg/log"
)

// Config holds the tool configuration shared across commands.
type Config struct {
	Port        string
	BaudRate    int
	CatalogFile string
	ImageFile   string
	Channel     int
	OutFile     string
	LogFile     string
	Verbose     bool
}

var config Config

func init() {
	flag.StringVar(&config.Port, "port", "", "Serial port for shell and sniff (e.g. /dev/ttyUSB0)")
	flag.IntVar(&config.BaudRate, "baud", device.DefaultBaudRate, "UART baud rate")
	flag.StringVar(&config.CatalogFile, "catalog", "", "YAML command catalog overriding the built-in table")
	flag.StringVar(&config.ImageFile, "image", "", "Firmware image file (.dfu) for flash")
	flag.IntVar(&config.Channel, "channel", 11, "Radio channel 11-26 for sniff")
	flag.StringVar(&config.OutFile, "out", "capture.pcap", "Output pcap file for sniff")
	flag.StringVar(&config.LogFile, "log-file", "", "Append binary protocol events to this file")
	flag.BoolVar(&config.Verbose, "verbose", false, "Mirror protocol events to stderr")
}

func main() {
	args := os.Args[1:]
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}
	command := args[0]
	flag.CommandLine.Parse(args[1:])

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, closeLogger, err := buildLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	defer closeLogger()

	switch command {
	case "list":
		err = runList()
	case "shell":
		err = runShell(ctx, logger)
	case "flash":
		err = runFlash(ctx, logger, flag.CommandLine.Args())
	case "sniff":
		err = runSniff(ctx, logger)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", command)
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// buildLogger assembles the event logger from the -log-file and
// -verbose flags.
func buildLogger() (log.Logger, func(), error) {
	var loggers []log.Logger
	closeLogger := func() {}

	if config.LogFile != "" {
		fl, err := log.NewFileLogger(config.LogFile)
		if err != nil {
			return nil, nil, err
		}
		loggers = append(loggers, fl)
		closeLogger = func() { fl.Close() }
	}
	if config.Verbose {
		h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})
		loggers = append(loggers, log.NewSlogAdapter(slog.New(h)))
	}

	switch len(loggers) {
	case 0:
		return log.NoopLogger{}, closeLogger, nil
	case 1:
		return loggers[0], closeLogger, nil
	default:
		return log.NewMultiLogger(loggers...), closeLogger, nil
	}
}

// loadCatalog returns the command catalog: the built-in table, or the
// YAML file given with -catalog.
func loadCatalog() (*catalog.Catalog, error) {
	if config.CatalogFile == "" {
		return catalog.Builtin(), nil
	}
	f, err := os.Open(config.CatalogFile)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	defer f.Close()
	return catalog.LoadYAML(f)
}

// openSession opens the configured serial port and wraps it in a
// protocol session.
func openSession(logger log.Logger) (*kbi.Session, error) {
	if config.Port == "" {
		return nil, fmt.Errorf("no -port given")
	}
	tr, err := device.OpenSerial(config.Port, config.BaudRate)
	if err != nil {
		return nil, err
	}
	return kbi.NewSession(config.Port, tr, kbi.DefaultConfig(), logger), nil
}

func runList() error {
	enum := &device.SerialEnumerator{}
	devices, err := enum.ListDevices()
	if err != nil {
		return err
	}
	if len(devices) == 0 {
		fmt.Println("no devices found")
		return nil
	}
	for _, d := range devices {
		fmt.Printf("%-20s %-12s %s\n", d.ID, d.Kind, d.Port)
	}
	return nil
}

func runShell(ctx context.Context, logger log.Logger) error {
	cat, err := loadCatalog()
	if err != nil {
		return err
	}
	sess, err := openSession(logger)
	if err != nil {
		return err
	}
	defer sess.Close()

	shell, err := interactive.NewShell(sess, cat)
	if err != nil {
		return err
	}
	defer shell.Close()

	fmt.Fprintf(shell.Stdout(), "connected to %s, type 'help' for commands\n", config.Port)
	return shell.Run(ctx)
}

func runFlash(ctx context.Context, logger log.Logger, ports []string) error {
	if config.ImageFile == "" {
		return fmt.Errorf("no -image given")
	}
	if len(ports) == 0 {
		return fmt.Errorf("no ports given")
	}

	img, err := firmware.Load(config.ImageFile)
	if err != nil {
		return err
	}
	fmt.Printf("image: %d bytes, firmware %04x, device %04x:%04x\n",
		len(img.Data), img.FirmwareVersion, img.VendorID, img.ProductID)

	var targets []flash.Target
	var sessions []*kbi.Session
	for _, port := range ports {
		tr, err := device.OpenSerial(port, config.BaudRate)
		if err != nil {
			return err
		}
		sess := kbi.NewSession(port, tr, kbi.DefaultConfig(), logger)
		sessions = append(sessions, sess)
		targets = append(targets, flash.Target{
			DeviceID: port,
			Sender:   flash.NewKBISender(sess),
		})
	}
	defer func() {
		for _, s := range sessions {
			s.Close()
		}
	}()

	orch := flash.NewOrchestrator(flash.DefaultConfig(), logger)
	orch.Progress = func(deviceID string, sent, total int) {
		fmt.Printf("\r%s: %d/%d chunks", deviceID, sent, total)
		if sent == total {
			fmt.Println()
		}
	}

	results := orch.FlashAll(ctx, img, targets)

	failed := 0
	for _, port := range ports {
		res := results[port]
		if res.Err != nil {
			failed++
			fmt.Printf("%s: %s: %v\n", port, res.State, res.Err)
			continue
		}
		fmt.Printf("%s: %s\n", port, res.State)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d devices failed", failed, len(ports))
	}
	return nil
}

func runSniff(ctx context.Context, logger log.Logger) error {
	sess, err := openSession(logger)
	if err != nil {
		return err
	}
	defer sess.Close()

	sink, err := capture.NewFileSink(config.OutFile)
	if err != nil {
		return err
	}

	sniffer := capture.NewSession(sess, capture.NewWriter(sink), capture.Config{Channel: config.Channel}, logger)
	if err := sniffer.Start(ctx); err != nil {
		sink.Close()
		return err
	}

	fmt.Printf("capturing channel %d to %s, Ctrl-C to stop\n", config.Channel, config.OutFile)
	<-ctx.Done()

	// Use a fresh context: the signal context is already cancelled.
	if err := sniffer.Stop(context.Background()); err != nil {
		return err
	}
	fmt.Printf("captured %d frames\n", sniffer.Records())
	return nil
}
