package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/guseggert/sheetshell/internal/files"
	"github.com/guseggert/sheetshell/reader"
	"github.com/guseggert/sheetshell/server"
	"github.com/guseggert/sheetshell/shell"
	"github.com/guseggert/sheetshell/worker"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	app := &cli.App{
		Name:                      "sheetshell",
		Usage:                     "read spreadsheet files through a worker process",
		DisableSliceFlagSeparator: true,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "Enable debug logging.",
			},
			&cli.StringFlag{
				Name:  "interpreter",
				Usage: "Program running the worker script. The built-in worker is used if omitted.",
			},
			&cli.StringFlag{
				Name:  "root",
				Usage: "Directory holding the worker script. Defaults to the nearest directory above the working directory holding it.",
			},
			&cli.StringFlag{
				Name:  "location",
				Usage: "Time zone of the dates read from spreadsheets.",
				Value: "Local",
			},
		},
		Commands: []*cli.Command{
			readCommand(),
			serveCommand(),
			{
				Name:        "worker",
				Usage:       "run the built-in worker",
				Hidden:      true,
				Subcommands: worker.Commands(),
			},
		},
	}
	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newLogger(ctx *cli.Context) (*zap.Logger, error) {
	logger, err := zap.NewDevelopment()
	if err != nil {
		return nil, fmt.Errorf("building logger: %w", err)
	}
	if !ctx.Bool("debug") {
		logger = logger.WithOptions(zap.IncreaseLevel(zapcore.InfoLevel))
	}
	return logger, nil
}

// readerOptions returns the options running the reader worker chosen by the global flags.
func readerOptions(ctx *cli.Context, logger *zap.Logger) ([]reader.Option, error) {
	loc, err := time.LoadLocation(ctx.String("location"))
	if err != nil {
		return nil, fmt.Errorf("loading location: %w", err)
	}
	opts := []reader.Option{reader.WithLogger(logger), reader.WithLocation(loc)}

	interpreter := ctx.String("interpreter")
	if interpreter == "" {
		exe, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("finding the built-in worker: %w", err)
		}
		return append(opts,
			reader.WithScript("read"),
			reader.WithShellOptions(shell.WithInterpreter(exe, "worker")),
		), nil
	}

	root := ctx.String("root")
	if root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("getting working directory: %w", err)
		}
		root, err = files.FindUp(reader.DefaultScript, wd)
		if err != nil {
			return nil, err
		}
		if root == "" {
			return nil, fmt.Errorf("no %s found above %s, set --root", reader.DefaultScript, wd)
		}
	}
	return append(opts, reader.WithShellOptions(shell.WithInterpreter(interpreter), shell.WithRoot(root))), nil
}

func readCommand() *cli.Command {
	return &cli.Command{
		Name:      "read",
		Usage:     "read spreadsheet files and print them as JSON",
		ArgsUsage: "PATH...",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "meta",
				Usage: "Only read workbook metadata.",
			},
			&cli.StringSliceFlag{
				Name:  "sheet",
				Usage: "Name or index of a sheet to read. Can be repeated, all sheets are read if omitted.",
			},
			&cli.IntFlag{
				Name:  "max-rows",
				Usage: "Maximum number of rows read from each sheet.",
			},
			&cli.IntFlag{
				Name:  "buffer-size",
				Usage: "Number of rows per batch when streaming.",
				Value: reader.DefaultBufferSize,
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "Include document properties.",
			},
			&cli.BoolFlag{
				Name:  "stream",
				Usage: "Print one JSON message per line as batches are read, instead of whole workbooks.",
			},
		},
		Action: func(ctx *cli.Context) error {
			paths := ctx.Args().Slice()
			if len(paths) == 0 {
				return errors.New("no paths given")
			}
			logger, err := newLogger(ctx)
			if err != nil {
				return err
			}
			opts, err := readerOptions(ctx, logger)
			if err != nil {
				return err
			}
			if ctx.Bool("meta") {
				opts = append(opts, reader.WithMetaOnly())
			}
			if sheets := ctx.StringSlice("sheet"); len(sheets) > 0 {
				opts = append(opts, reader.WithSheets(sheets...))
			}
			if ctx.Bool("verbose") {
				opts = append(opts, reader.WithVerbose())
			}
			opts = append(opts,
				reader.WithMaxRows(ctx.Int("max-rows")),
				reader.WithBufferSize(ctx.Int("buffer-size")),
			)

			enc := json.NewEncoder(ctx.App.Writer)
			if ctx.Bool("stream") {
				return stream(ctx.Context, enc, paths, opts)
			}

			workbooks, err := reader.Read(ctx.Context, paths, opts...)
			if len(workbooks) > 0 {
				enc.SetIndent("", "  ")
				if encErr := enc.Encode(workbooks); encErr != nil {
					return fmt.Errorf("writing workbooks: %w", encErr)
				}
			}
			if err != nil {
				return fmt.Errorf("reading: %w", err)
			}
			return nil
		},
	}
}

// stream prints the reader events as server messages, one per line.
func stream(ctx context.Context, enc *json.Encoder, paths []string, opts []reader.Option) error {
	r := reader.OpenAll(ctx, paths, opts...)
	id := uuid.New().String()
	var errCount int
	var encErr error
	for ev := range r.Events() {
		if ev.Type == reader.EventError {
			errCount++
		}
		if encErr != nil {
			continue
		}
		if encErr = enc.Encode(server.NewMessage(id, ev)); encErr != nil {
			if err := r.Close(); err != nil {
				encErr = multierr.Append(encErr, err)
			}
		}
	}
	if encErr != nil {
		return fmt.Errorf("writing events: %w", encErr)
	}
	if errCount > 0 {
		return fmt.Errorf("%d errors while reading", errCount)
	}
	return nil
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "serve spreadsheet reads over HTTP",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "listen-addr",
				Usage: "The address for the HTTP server to listen on.",
				Value: server.DefaultListenAddr,
			},
			&cli.StringFlag{
				Name:  "files-dir",
				Usage: "Only serve files under this directory. Requested paths are relative to it.",
			},
			&cli.DurationFlag{
				Name:  "shutdown-timeout",
				Usage: "How long to wait for requests in flight when shutting down.",
				Value: 10 * time.Second,
			},
		},
		Action: func(ctx *cli.Context) error {
			logger, err := newLogger(ctx)
			if err != nil {
				return err
			}
			opts, err := readerOptions(ctx, logger)
			if err != nil {
				return err
			}

			serverOpts := []server.Option{
				server.WithLogger(logger),
				server.WithListenAddr(ctx.String("listen-addr")),
				server.WithReaderOptions(opts...),
			}
			if dir := ctx.String("files-dir"); dir != "" {
				serverOpts = append(serverOpts, server.WithRoot(dir))
			}
			s := server.New(serverOpts...)

			sigCtx, stop := signal.NotifyContext(ctx.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()
			go func() {
				<-sigCtx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), ctx.Duration("shutdown-timeout"))
				defer cancel()
				if err := s.Stop(shutdownCtx); err != nil {
					logger.Sugar().Warnf("error stopping server: %s", err)
				}
			}()

			return s.Run()
		},
	}
}
