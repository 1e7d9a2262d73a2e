// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

// nvmectl lists NVMe controllers and disks, issues NVMe admin commands to them and enables,
// disables, removes or rescans them.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"strconv"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/dswarbrick/nvmectl"
	"github.com/dswarbrick/nvmectl/config"
	"github.com/dswarbrick/nvmectl/devtree"
	"github.com/dswarbrick/nvmectl/drivedb"
)

type options struct {
	configPath string
	verbosity  int
	drivedb    string

	disk int
	bus  int

	nsid  uint32
	all   bool
	lid   string
	fid   string
	sel   uint8
	value string
	save  bool
}

func newFlagSet(opts *options) *pflag.FlagSet {
	fs := pflag.NewFlagSet("nvmectl", pflag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&opts.configPath, "config", config.DefaultConfigPath, "Path of the YAML config file")
	fs.IntVarP(&opts.verbosity, "verbosity", "v", 0, "Logging verbosity level")
	fs.StringVar(&opts.drivedb, "drivedb", "", "Path of the YAML drive database (overrides config)")
	fs.IntVar(&opts.disk, "disk", -1, "Select disk by disk number, e.g. 1 for \\\\.\\PhysicalDrive1")
	fs.IntVar(&opts.bus, "bus", -1, "Select controller by PCI bus number")
	fs.Uint32Var(&opts.nsid, "nsid", 1, "Namespace id")
	fs.BoolVar(&opts.all, "all", false, "List allocated rather than active namespaces")
	fs.StringVar(&opts.lid, "lid", "", "Log page id, decimal or 0x-prefixed hex")
	fs.StringVar(&opts.fid, "fid", "", "Feature id, decimal or 0x-prefixed hex")
	fs.Uint8Var(&opts.sel, "sel", 0, "Get feature select: 0 current, 1 default, 2 saved, 3 supported")
	fs.StringVar(&opts.value, "value", "", "Set feature value, decimal or 0x-prefixed hex")
	fs.BoolVar(&opts.save, "save", false, "Make set feature persist across power cycles")

	return fs
}

// parseNumber parses a decimal or 0x-prefixed hex number of at most bits bits.
func parseNumber(name, s string, bits int) (uint64, error) {
	if s == "" {
		return 0, fmt.Errorf("--%s is required", name)
	}

	v, err := strconv.ParseUint(s, 0, bits)
	if err != nil {
		return 0, fmt.Errorf("invalid --%s %q: %w", name, s, err)
	}

	return v, nil
}

func usage(w io.Writer, fs *pflag.FlagSet) {
	fmt.Fprintf(w, "Usage: nvmectl [flags] <command>\n\nCommands:\n")

	for _, c := range commands {
		fmt.Fprintf(w, "  %-12s %s\n", c.name, c.help)
	}

	fmt.Fprintf(w, "\nFlags:\n%s", fs.FlagUsages())
}

func newLogger(verbosity int) (logr.Logger, error) {
	zc := zap.NewDevelopmentConfig()
	zc.Level = zap.NewAtomicLevelAt(zapcore.Level(-verbosity))
	zc.DisableStacktrace = true

	zl, err := zc.Build()
	if err != nil {
		return logr.Discard(), err
	}

	return zapr.NewLogger(zl), nil
}

func run(args []string, stdout io.Writer) error {
	var opts options

	fs := newFlagSet(&opts)
	if err := fs.Parse(args); err != nil {
		usage(os.Stderr, fs)
		return err
	}

	if fs.NArg() != 1 {
		usage(os.Stderr, fs)
		return errors.New("exactly one command is required")
	}

	cmd, ok := lookupCommand(fs.Arg(0))
	if !ok {
		usage(os.Stderr, fs)
		return fmt.Errorf("unknown command %q", fs.Arg(0))
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}

	if fs.Changed("verbosity") {
		cfg.Verbosity = opts.verbosity
	}

	if fs.Changed("drivedb") {
		cfg.DriveDb = opts.drivedb
	}

	log, err := newLogger(cfg.Verbosity)
	if err != nil {
		return err
	}

	log.V(1).Info("nvmectl", "go", runtime.Version(), "os", runtime.GOOS, "arch", runtime.GOARCH)

	db, err := drivedb.OpenDriveDb(cfg.DriveDb)
	if err != nil {
		return fmt.Errorf("drive database %s: %w", cfg.DriveDb, err)
	}

	tree, err := devtree.NewSystemTree()
	if err != nil {
		return err
	}

	sys := nvmectl.NewSystem(cfg, tree, devtree.NewSystemVolumes(log.WithName("volumes")), db, log)

	reg, err := sys.Enumerate()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	return cmd.run(ctx, &env{sys: sys, reg: reg, opts: &opts, out: stdout})
}

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		if !errors.Is(err, pflag.ErrHelp) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}
