/*
Command mbscan is the thin CLI consumer of the scanner core (spec §1
addendum): it parses flags into a scan.Config/scan.Options pair, drives
a scanner.Engine, and prints progress and a summary to stdout. It owns
none of the core's invariants, the same relationship rolfl-modbus/mbcli
has to rolfl-modbus.
*/
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/sirupsen/logrus"

	scan "github.com/oss-modbus/scanner"
	"github.com/oss-modbus/scanner/internal/transport"
	"github.com/oss-modbus/scanner/scanner"
)

// ScanCommand is the sole sub-command: scan one Modbus/TCP slave over a
// range of addresses and function codes.
type ScanCommand struct {
	Host    string `short:"H" long:"host" description:"Slave IPv4 address" required:"true"`
	Port    int    `short:"p" long:"port" default:"502" description:"Slave TCP port"`
	Unit    int    `short:"u" long:"unit" default:"1" description:"Slave unit/slave id"`
	Timeout int    `short:"t" long:"timeout" default:"1" description:"Per-request timeout (seconds)"`
	Retries int    `short:"r" long:"retries" default:"3" description:"Reconnect attempts on a lost connection"`

	Start uint16 `long:"start" default:"0" description:"First address to probe"`
	End   uint16 `long:"end" default:"65535" description:"Last address to probe"`
	Codes string `short:"f" long:"fc" default:"1,2,3,4" description:"Comma-separated function codes (1=Coils 2=DiscreteInputs 3=HoldingRegisters 4=InputRegisters)"`

	NoBatching bool `long:"no-batching" description:"Disable the Batch Optimizer (one request per address)"`
	Stream     bool `long:"stream" description:"Force the Streaming Scanner regardless of scan size"`
	NoMemOpt   bool `long:"no-memopt" description:"Disable the Memory Optimizer"`
	NoNetOpt   bool `long:"no-netopt" description:"Disable the Network Optimizer"`

	AutoSave int    `long:"autosave" default:"30" description:"Checkpoint interval in seconds, 0 disables auto-save"`
	Resume   bool   `long:"resume" description:"Resume from the last saved checkpoint instead of starting fresh"`
	StateDir string `long:"state-dir" default:"." description:"Directory holding the scan-state checkpoint"`

	Quiet bool `short:"q" long:"quiet" description:"Only print the final summary, not per-record output"`
}

// CLICommand is the top-level flag set, in rolfl-modbus/mbcli's
// command:"..."-tagged sub-command shape.
type CLICommand struct {
	Verbose bool        `long:"verbose" description:"Print debug-level engine logging"`
	Scan    ScanCommand `command:"scan" description:"Scan a Modbus/TCP slave for accessible registers"`
}

// cli is parsed once in main and read back by ScanCommand.Execute for
// flags that apply above the sub-command level (--verbose).
var cli CLICommand

func main() {
	parser := flags.NewParser(&cli, flags.HelpFlag|flags.PassDoubleDash)

	if _, err := parser.Parse(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

// Execute runs the scan sub-command: it is invoked by go-flags once the
// "scan" sub-command is selected.
func (c *ScanCommand) Execute(args []string) error {
	logger := logrus.New()
	logger.SetLevel(logrus.InfoLevel)
	if cli.Verbose {
		logger.SetLevel(logrus.DebugLevel)
	}

	fcs, err := parseFunctionCodes(c.Codes)
	if err != nil {
		return err
	}

	cfg := scan.Config{
		Host:               c.Host,
		Port:               c.Port,
		SlaveID:            c.Unit,
		Timeout:            time.Duration(c.Timeout) * time.Second,
		Retries:            c.Retries,
		MaxUnitsPerRequest: 125,
	}
	opts := scan.Options{
		Start:                      c.Start,
		End:                        c.End,
		FunctionCodes:              fcs,
		BatchingEnabled:            !c.NoBatching,
		StreamingEnabled:           c.Stream,
		StreamingThreshold:         10000,
		MemoryOptimizationEnabled:  !c.NoMemOpt,
		NetworkOptimizationEnabled: !c.NoNetOpt,
		AutoSaveInterval:           time.Duration(c.AutoSave) * time.Second,
	}

	eng, err := scanner.New(cfg, opts, scanner.Deps{
		Facade:   transport.New(),
		Logger:   logger,
		StateDir: c.StateDir,
	})
	if err != nil {
		return fmt.Errorf("mbscan: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	interrupts := make(chan os.Signal, 1)
	signal.Notify(interrupts, os.Interrupt)
	go func() {
		<-interrupts
		fmt.Println("\nmbscan: interrupt received, stopping at the next boundary (re-run with --resume to continue)")
		eng.Stop()
	}()

	cb := scan.Callbacks{
		OnProgress: func(p scan.Progress) {
			fmt.Printf("\rprogress: %5.1f%% (%d/%d, %d accessible)   ",
				p.Percent, p.State.Processed, p.State.Total, p.State.Accessible)
		},
		OnError: func(err error) {
			logger.WithError(err).Warn("scan error")
		},
	}
	if !c.Quiet {
		cb.OnRecord = func(r scan.DiscoveryRecord) {
			if r.Accessible {
				fmt.Printf("\n%s", r.String())
			}
		}
	}

	var result scanner.Result
	if c.Resume {
		result, err = eng.ResumeFromSaved(ctx, cb)
	} else {
		result, err = eng.Start(ctx, cb)
	}
	fmt.Println()

	if err != nil {
		return fmt.Errorf("mbscan: %w", err)
	}

	accessible := 0
	for _, r := range result.Records {
		if r.Accessible {
			accessible++
		}
	}
	fmt.Printf("scan %s: %d probed, %d accessible, %d errors\n",
		result.State, len(result.Records), accessible, len(result.Errors))
	if result.Resumable {
		fmt.Printf("checkpoint saved in %s; re-run with --resume to continue\n", c.StateDir)
	}
	return nil
}

func parseFunctionCodes(spec string) ([]scan.FunctionCode, error) {
	parts := strings.Split(spec, ",")
	out := make([]scan.FunctionCode, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("mbscan: invalid function code %q", p)
		}
		fc, err := scan.ParseFunctionCode(n)
		if err != nil {
			return nil, fmt.Errorf("mbscan: %w", err)
		}
		out = append(out, fc)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("mbscan: --fc must name at least one function code")
	}
	return out, nil
}
