// Command lineidx builds and queries a sorted key index over a
// line-oriented text file.
//
//	lineidx build  <dataFile> <indexFile> <keyLength>
//	lineidx list   <dataFile> <indexFile> <keyLength>
//	lineidx search <dataFile> <indexFile> <keyLength> <key>
//
// Logging:
//   - The base logger is created here from config and flags
//   - It is passed to the index package via options, never set globally
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"

	"github.com/spf13/cobra"

	"lineidx/pkg/config"
	"lineidx/pkg/index"
	"lineidx/pkg/logging"
)

var version = "dev"

var ErrMalformedArguments = errors.New("malformed arguments")

const notFoundMessage = "Record not found"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	cancel()
	os.Exit(code)
}

// run executes one command and returns the process exit status.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := newRootCmd(stdout, stderr)
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		if errors.Is(err, ErrMalformedArguments) {
			fmt.Fprint(stderr, root.UsageString())
		}
		return 1
	}
	return 0
}

type app struct {
	cfg    *config.Config
	logger *slog.Logger
	stdout io.Writer
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	a := &app{stdout: stdout}

	rootCmd := &cobra.Command{
		Use:           "lineidx",
		Short:         "Build and search a sorted key index over a line-oriented file",
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			configPath, _ := cmd.Flags().GetString("config")
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if cmd.Flags().Changed("log-level") {
				cfg.Log.Level, _ = cmd.Flags().GetString("log-level")
			}
			if cmd.Flags().Changed("log-format") {
				cfg.Log.Format, _ = cmd.Flags().GetString("log-format")
			}

			level, err := logging.ParseLevel(cfg.Log.Level)
			if err != nil {
				return fmt.Errorf("%w: %w", ErrMalformedArguments, err)
			}
			logger, err := logging.New(stderr, level, cfg.Log.Format)
			if err != nil {
				return fmt.Errorf("%w: %w", ErrMalformedArguments, err)
			}
			a.cfg, a.logger = cfg, logger
			return nil
		},
	}
	rootCmd.Args = func(cmd *cobra.Command, args []string) error {
		if len(args) > 0 {
			return fmt.Errorf("%w: unknown command %q", ErrMalformedArguments, args[0])
		}
		return nil
	}
	rootCmd.RunE = func(cmd *cobra.Command, args []string) error {
		return fmt.Errorf("%w: missing command (build, list or search)", ErrMalformedArguments)
	}
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)
	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return fmt.Errorf("%w: %w", ErrMalformedArguments, err)
	})

	rootCmd.PersistentFlags().String("config", "", "config file (default: configs/lineidx.yaml or lineidx.yaml if present)")
	rootCmd.PersistentFlags().String("log-level", "warn", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String("log-format", "text", "log format: text or json")

	buildCmd := &cobra.Command{
		Use:   "build <dataFile> <indexFile> <keyLength>",
		Short: "Create or overwrite the index of a data file",
		Args:  exactArgs(3),
		RunE:  a.runBuild,
	}
	buildCmd.Flags().String("strategy", config.StrategyMemory, "sort strategy: memory, spill or sqlite")
	buildCmd.Flags().String("temp-dir", "", "directory for spill files (default: next to the index)")

	listCmd := &cobra.Command{
		Use:   "list <dataFile> <indexFile> <keyLength>",
		Short: "Print every indexed record in key order",
		Args:  exactArgs(3),
		RunE:  a.runList,
	}

	searchCmd := &cobra.Command{
		Use:   "search <dataFile> <indexFile> <keyLength> <key>",
		Short: "Print the record stored under key",
		Long:  `Print the record stored under key, or "Record not found".

A key that starts with '-' would be read as a flag; put "--" before it:

  lineidx search data.txt data.idx 4 -- -ABC`,
		Args: exactArgs(4),
		RunE: a.runSearch,
	}

	rootCmd.AddCommand(buildCmd, listCmd, searchCmd)
	return rootCmd
}

func (a *app) runBuild(cmd *cobra.Command, args []string) error {
	keyLength, err := parseKeyLength(args[2])
	if err != nil {
		return err
	}

	if cmd.Flags().Changed("strategy") {
		a.cfg.Build.Strategy, _ = cmd.Flags().GetString("strategy")
		if !config.ValidStrategy(a.cfg.Build.Strategy) {
			return fmt.Errorf("%w: unknown strategy %q", ErrMalformedArguments, a.cfg.Build.Strategy)
		}
	}
	if cmd.Flags().Changed("temp-dir") {
		a.cfg.Build.TempDir, _ = cmd.Flags().GetString("temp-dir")
	}

	opts := append(index.FromConfig(a.cfg.Build), index.WithLogger(a.logger))
	_, err = index.Build(cmd.Context(), args[0], args[1], keyLength, opts...)
	return err
}

func (a *app) runList(cmd *cobra.Command, args []string) error {
	keyLength, err := parseKeyLength(args[2])
	if err != nil {
		return err
	}

	r, err := a.open(args[0], args[1], keyLength)
	if err != nil {
		return err
	}
	defer r.Close()

	w := bufio.NewWriter(a.stdout)
	err = r.List(func(rec []byte) error {
		if _, err := w.Write(rec); err != nil {
			return err
		}
		return w.WriteByte('\n')
	})
	if ferr := w.Flush(); err == nil {
		err = ferr
	}
	return err
}

func (a *app) runSearch(cmd *cobra.Command, args []string) error {
	keyLength, err := parseKeyLength(args[2])
	if err != nil {
		return err
	}
	key := []byte(args[3])
	if len(key) != keyLength {
		return fmt.Errorf("%w: key %q is %d bytes, key length is %d", ErrMalformedArguments, args[3], len(key), keyLength)
	}

	r, err := a.open(args[0], args[1], keyLength)
	if err != nil {
		return err
	}
	defer r.Close()

	rec, found, err := r.Search(key)
	if err != nil {
		return err
	}
	if !found {
		_, err = fmt.Fprintln(a.stdout, notFoundMessage)
		return err
	}
	_, err = fmt.Fprintf(a.stdout, "%s\n", rec)
	return err
}

func (a *app) open(dataPath, indexPath string, keyLength int) (*index.Reader, error) {
	return index.Open(dataPath, indexPath, keyLength,
		index.WithBufferSize(a.cfg.Build.ReadBufferSize),
		index.WithLogger(a.logger))
}

func parseKeyLength(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("%w: key length %q must be a positive integer", ErrMalformedArguments, s)
	}
	return n, nil
}

func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) != n {
			return fmt.Errorf("%w: %s expects %d arguments, got %d", ErrMalformedArguments, cmd.Name(), n, len(args))
		}
		return nil
	}
}
