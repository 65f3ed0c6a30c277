package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	cli "github.com/urfave/cli/v3"
	"go.uber.org/multierr"

	"github.com/dgallion1/brhcimport/internal/config"
	"github.com/dgallion1/brhcimport/internal/parser"
	"github.com/dgallion1/brhcimport/internal/pipeline"
	"github.com/dgallion1/brhcimport/internal/store"
)

var log = slog.New(slog.NewTextHandler(os.Stderr, nil))

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	cfg := config.Load()
	dbFlag := func() cli.Flag {
		return &cli.StringFlag{Name: "db", Value: cfg.DBPath, Usage: "SQLite database `FILE`"}
	}

	app := &cli.Command{
		Name:            "brhcimport",
		Usage:           "imports tagged manuscripts into the content block store",
		HideHelpCommand: true,
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "debug", Aliases: []string{"d"}, Usage: "log at debug level"},
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			if cmd.Bool("debug") {
				log = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
			}
			return ctx, nil
		},
		Commands: []*cli.Command{
			{
				Name:      "import",
				Usage:     "Classifies a .docx manuscript and replaces the stored blocks",
				ArgsUsage: "FILE",
				Action:    runImport,
				Flags: []cli.Flag{
					dbFlag(),
					&cli.BoolFlag{Name: "lenient", Value: !cfg.StrictMarkers, Usage: "read unknown bracketed markers as text"},
					&cli.BoolFlag{Name: "dry-run", Usage: "run every step, then roll back"},
					&cli.BoolFlag{Name: "force", Usage: "import even if the content hash matches the last run"},
				},
			},
			{
				Name:   "verify",
				Usage:  "Validates the stored blocks and question projections",
				Action: runVerify,
				Flags:  []cli.Flag{dbFlag()},
			},
			{
				Name:   "rebuild-questions",
				Usage:  "Regenerates question projections from stored blocks",
				Action: runRebuildQuestions,
				Flags:  []cli.Flag{dbFlag()},
			},
			{
				Name:   "init-schema",
				Usage:  "Creates missing tables",
				Action: runInitSchema,
				Flags:  []cli.Flag{dbFlag()},
			},
		},
	}

	var err error
	defer func() {
		stop()
		if err != nil {
			fmt.Fprintf(os.Stderr, "brhcimport: %v\n", err)
			os.Exit(1)
		}
	}()
	err = app.Run(ctx, os.Args)
}

// withStore opens the database named by --db, ensures the schema and
// runs fn.
func withStore(ctx context.Context, cmd *cli.Command, fn func(*store.Store) error) (err error) {
	st, err := store.Open(ctx, cmd.String("db"), log)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, st.Close()) }()

	if err := st.EnsureSchema(ctx); err != nil {
		return err
	}
	return fn(st)
}

func runImport(ctx context.Context, cmd *cli.Command) error {
	if cmd.Args().Len() != 1 {
		return errors.New("import expects exactly one FILE")
	}
	path := cmd.Args().Get(0)

	p, err := parser.ForFile(path)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read manuscript: %w", err)
	}
	doc, err := p.Parse(bytes.NewReader(data), path)
	if err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	opts := pipeline.Options{
		Strict: !cmd.Bool("lenient"),
		DryRun: cmd.Bool("dry-run"),
		Force:  cmd.Bool("force"),
	}
	return withStore(ctx, cmd, func(st *store.Store) error {
		rep, err := pipeline.NewImporter(st, log).Import(ctx, doc, path, pipeline.ContentHashHex(data), opts)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rep)
	})
}

func runVerify(ctx context.Context, cmd *cli.Command) error {
	return withStore(ctx, cmd, func(st *store.Store) error {
		if err := pipeline.NewImporter(st, log).Verify(ctx); err != nil {
			for _, issue := range multierr.Errors(err) {
				log.Error("invalid store", "issue", issue)
			}
			return fmt.Errorf("verify: %d issue(s)", len(multierr.Errors(err)))
		}
		return nil
	})
}

func runRebuildQuestions(ctx context.Context, cmd *cli.Command) error {
	return withStore(ctx, cmd, func(st *store.Store) error {
		n, err := pipeline.NewImporter(st, log).RebuildQuestions(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "rebuilt %d question rows\n", n)
		return nil
	})
}

func runInitSchema(ctx context.Context, cmd *cli.Command) error {
	return withStore(ctx, cmd, func(st *store.Store) error {
		log.Info("schema ready", "db", cmd.String("db"))
		return nil
	})
}
