// Command jscall loads three guest scripts and checks the functions they
// define against known answers.
//
//	jscall [flags] <two_sum.js> <two_sum_fn> <quickselect.js> <quickselect_fn> <subarrays.js> <subarrays_fn>
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/cryguy/jscall"
)

const usage = "Usage: jscall [flags] <two_sum.js> <two_sum_fn> <quickselect.js> <quickselect_fn> <subarrays.js> <subarrays_fn>"

type options struct {
	timeout  time.Duration
	memoryMB int
	target   string
	debug    bool
	scripts  [3]script
}

type script struct {
	path string
	fn   string
}

func main() {
	opts, err := parseArgs(os.Args[1:], os.Stderr)
	if err != nil {
		os.Exit(1)
	}

	logger, err := newLogger(opts.debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	p, err := jscall.InitPlatform(jscall.WithPlatformLogger(logger))
	if err != nil {
		logger.Fatal("cannot initialize JavaScript platform", zap.Error(err))
	}

	if err := run(context.Background(), p, opts, logger, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func parseArgs(args []string, stderr io.Writer) (options, error) {
	var opts options
	fs := flag.NewFlagSet("jscall", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.DurationVar(&opts.timeout, "timeout", 0, "interrupt a call after this long (0 = never)")
	fs.IntVar(&opts.memoryMB, "memory-mb", 0, "isolate memory limit in MB (0 = engine default)")
	fs.StringVar(&opts.target, "target", "", "esbuild target to down-level scripts to (e.g. es2017)")
	fs.BoolVar(&opts.debug, "debug", false, "log every call")
	fs.Usage = func() {
		fmt.Fprintln(stderr, usage)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return opts, err
	}

	rest := fs.Args()
	if len(rest) != 6 {
		fs.Usage()
		return opts, fmt.Errorf("expected 6 arguments, got %d", len(rest))
	}
	for i := range opts.scripts {
		opts.scripts[i] = script{path: rest[2*i], fn: rest[2*i+1]}
	}
	return opts, nil
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	return cfg.Build()
}

// run executes the checks in order and stops at the first failure.
func run(ctx context.Context, p *jscall.Platform, opts options, logger *zap.Logger, out io.Writer) error {
	cfg := jscall.DefaultConfig()
	cfg.ExecutionTimeout = opts.timeout
	cfg.MemoryLimitMB = opts.memoryMB
	cfg.Target = opts.target
	cfg.Logger = logger

	e, err := jscall.NewEngine(p, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := e.Close(); cerr != nil {
			logger.Warn("closing engine", zap.Error(cerr))
		}
	}()

	nums := jscall.Ints{1, 2, 3, 4, 5}
	twoSum, quickselect, subarrays := opts.scripts[0], opts.scripts[1], opts.scripts[2]

	fmt.Fprintln(out, "Testing two_sum...")
	got, err := jscall.CallInts(ctx, e, twoSum.path, twoSum.fn, nums, jscall.Int(9))
	if err != nil {
		return err
	}
	if err := expect("two_sum(target=9)", got, []int{3, 4}); err != nil {
		return err
	}
	got, err = jscall.CallInts(ctx, e, twoSum.path, twoSum.fn, nums, jscall.Int(20))
	if err != nil {
		return err
	}
	if err := expect("two_sum(target=20)", got, []int{}); err != nil {
		return err
	}

	fmt.Fprintln(out, "Testing quickselect...")
	k, err := jscall.CallInt(ctx, e, quickselect.path, quickselect.fn, nums, jscall.Int(0), jscall.Int(len(nums)-1), jscall.Int(2))
	if err != nil {
		return err
	}
	if k != 3 {
		return fmt.Errorf("quickselect(k=2): expected 3, got %d", k)
	}

	fmt.Fprintln(out, "Testing gen_subarrays...")
	subs, err := jscall.CallIntMatrix(ctx, e, subarrays.path, subarrays.fn, nums)
	if err != nil {
		return err
	}
	if len(subs) != 15 {
		return fmt.Errorf("gen_subarrays: expected 15 subarrays, got %d", len(subs))
	}

	fmt.Fprintln(out, "All tests passed.")
	return nil
}

func expect(name string, got, want []int) error {
	if !slices.Equal(got, want) {
		return fmt.Errorf("%s: expected %v, got %v", name, want, got)
	}
	return nil
}
