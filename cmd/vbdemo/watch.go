package main

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadDelay coalesces the burst of events an editor save produces.
const reloadDelay = 200 * time.Millisecond

// watch re-renders whenever the config file changes, until ctx is done.
func (d *demo) watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	// Watch the directory: editors often replace the file by rename.
	target := filepath.Clean(d.configPath)
	if err := w.Add(filepath.Dir(target)); err != nil {
		return err
	}
	d.log.Info("watching", "config", target)

	var reload <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				reload = time.After(reloadDelay)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			d.log.Warn("watch error", "err", err)
		case <-reload:
			reload = nil
			d.log.Info("config changed, re-rendering")
			if err := d.run(ctx); err != nil {
				d.log.Error("render failed", "err", err)
			}
		}
	}
}
