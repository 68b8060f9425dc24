// Command vbdemo renders a procedural scene through the visibility-buffer
// pipeline and writes debug images of every frame's targets.
//
// Usage:
//
//	vbdemo -config pipeline.toml -frames 8 -out frames/
//	vbdemo -config pipeline.yaml -watch
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/charmbracelet/log"

	"github.com/gogpu/visbuf"
)

func main() {
	var (
		configPath = flag.String("config", "", "pipeline config file (.toml, .yaml)")
		backend    = flag.String("backend", "", "backend override (software, hal)")
		frames     = flag.Int("frames", 4, "frames to render")
		grid       = flag.Int("grid", 8, "objects per side of the scene grid")
		outDir     = flag.String("out", "vbdemo-out", "output directory for debug images")
		watch      = flag.Bool("watch", false, "re-render when the config file changes")
		verbose    = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.Kitchen,
		Prefix:          "vbdemo",
	})
	if *verbose {
		logger.SetLevel(log.DebugLevel)
	}
	visbuf.SetLogger(slog.New(logger))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	d := &demo{
		configPath: *configPath,
		backend:    *backend,
		frames:     *frames,
		grid:       *grid,
		outDir:     *outDir,
		log:        logger,
	}
	if err := d.run(ctx); err != nil {
		logger.Fatal("render failed", "err", err)
	}
	if !*watch {
		return
	}
	if *configPath == "" {
		logger.Fatal("-watch needs -config")
	}
	if err := d.watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal("watch failed", "err", err)
	}
}
