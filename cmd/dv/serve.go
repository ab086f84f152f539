package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/sonnes/drishti/render"
	"github.com/sonnes/drishti/server"
	"github.com/sonnes/drishti/store"
	"github.com/sonnes/drishti/watch"
	"github.com/urfave/cli/v3"
)

func serveCmd() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the view server, optionally watching files for changes",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "host",
				Usage: "Host to bind",
				Value: "127.0.0.1",
			},
			&cli.IntFlag{
				Name:  "port",
				Usage: "Port to listen on",
				Value: 8000,
			},
			&cli.StringSliceFlag{
				Name:    "watch",
				Aliases: []string{"w"},
				Usage:   "File to watch and publish (repeatable)",
			},
			&cli.StringSliceFlag{
				Name:  "watch-label",
				Usage: "Label per watched view; repeat once per --watch in the same order",
			},
			&cli.StringSliceFlag{
				Name:  "watch-section",
				Usage: "Section per watched view; once applies to all, repeated binds per --watch",
			},
			&cli.StringSliceFlag{
				Name:  "watch-mode",
				Usage: "Read mode per watched file: head, tail, or auto",
			},
			&cli.StringFlag{
				Name:  "watch-kind",
				Usage: "How to interpret watched files: auto, text, or json",
				Value: "auto",
			},
			&cli.FloatFlag{
				Name:  "watch-every",
				Usage: "Poll interval in seconds",
				Value: 2.0,
			},
			&cli.IntFlag{
				Name:  "watch-max-bytes",
				Usage: "Byte budget per read",
				Value: 64_000,
			},
			&cli.IntFlag{
				Name:  "watch-max-rows",
				Usage: "Row cap for watched tabular files",
				Value: 500,
			},
			&cli.FloatFlag{
				Name:  "watch-update-limit-s",
				Usage: "Server-side throttle window for watched publishes, in seconds",
			},
			&cli.BoolFlag{
				Name:  "watch-force",
				Usage: "Bypass server throttling for watched publishes",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			specs, err := coerceWatchSpecs(cmd)
			if err != nil {
				return err
			}

			st := store.New()
			registry := render.Default(render.NewSanitizer())
			srv := server.New(st, registry)

			if len(specs) > 0 {
				watcher := watch.New(st, srv.Publisher())
				watcher.Start(specs)
			}

			addr := fmt.Sprintf("%s:%d", cmd.String("host"), cmd.Int("port"))
			slog.Info("serving", "addr", "http://"+addr, "watches", len(specs))
			return http.ListenAndServe(addr, srv.Handler())
		},
	}
}

// coerceWatchSpecs pairs the repeatable watch flags positionally. Labels
// must appear zero times or once per watch; sections zero times, once
// (applies to all), or once per watch; modes at most once per watch.
func coerceWatchSpecs(cmd *cli.Command) ([]watch.Spec, error) {
	paths := cmd.StringSlice("watch")
	labels := cmd.StringSlice("watch-label")
	sections := cmd.StringSlice("watch-section")
	modes := cmd.StringSlice("watch-mode")

	n := len(paths)
	if n == 0 {
		return nil, nil
	}

	if len(labels) != 0 && len(labels) != n {
		return nil, fmt.Errorf("--watch-label must be given 0 times or exactly once per --watch (expected %d, got %d)", n, len(labels))
	}
	if len(sections) > 1 && len(sections) != n {
		return nil, fmt.Errorf("--watch-section must be given 0 times, once (applies to all), or exactly once per --watch (expected %d, got %d)", n, len(sections))
	}
	if len(modes) > n {
		return nil, fmt.Errorf("--watch-mode given too many times (expected at most %d, got %d)", n, len(modes))
	}

	kind := cmd.String("watch-kind")
	switch kind {
	case "auto", "text", "json":
	default:
		return nil, fmt.Errorf("invalid --watch-kind %q: expected auto, text, or json", kind)
	}

	var updateLimit *float64
	if cmd.IsSet("watch-update-limit-s") {
		v := cmd.Float("watch-update-limit-s")
		updateLimit = &v
	}

	specs := make([]watch.Spec, 0, n)
	for i, path := range paths {
		spec := watch.Spec{
			Path:         path,
			Kind:         kind,
			Interval:     time.Duration(cmd.Float("watch-every") * float64(time.Second)),
			MaxBytes:     int(cmd.Int("watch-max-bytes")),
			MaxRows:      int(cmd.Int("watch-max-rows")),
			UpdateLimitS: updateLimit,
			Force:        cmd.Bool("watch-force"),
		}
		if len(labels) == n {
			spec.Label = labels[i]
		}
		switch {
		case len(sections) == 1:
			spec.Section = sections[0]
		case len(sections) == n:
			spec.Section = sections[i]
		}
		if i < len(modes) {
			switch modes[i] {
			case "head":
				spec.ReadMode = watch.ReadHead
			case "tail":
				spec.ReadMode = watch.ReadTail
			case "auto", "":
			default:
				return nil, fmt.Errorf("invalid --watch-mode %q: expected head, tail, or auto", modes[i])
			}
		}
		specs = append(specs, spec)
	}
	return specs, nil
}
