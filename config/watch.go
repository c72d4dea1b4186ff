package config

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Swind/go-tick-runner/core"
)

// watchDebounce collapses the burst of events editors produce on save.
var watchDebounce = 250 * time.Millisecond

// Watch reloads path whenever it changes and calls onChange with the newly
// resolved config. Files that fail to parse or resolve are logged and skipped;
// unchanged content is not republished. Watch blocks until ctx is done.
//
// The parent directory is watched rather than the file so that editors which
// replace the file on save keep working.
func Watch(ctx context.Context, path string, logger core.Logger, onChange func(*Resolved)) error {
	if logger == nil {
		logger = core.NewNoOpLogger()
	}
	dir := filepath.Dir(path)
	file := filepath.Base(path)

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config: watch init: %w", err)
	}
	defer w.Close()
	if err := w.Add(dir); err != nil {
		return fmt.Errorf("config: watch %s: %w", dir, err)
	}

	last, _ := os.ReadFile(path)

	var (
		timerMu sync.Mutex
		timer   *time.Timer
	)
	reload := func() {
		b, err := os.ReadFile(path)
		if err != nil {
			logger.Warn("config reload failed", core.F("path", path), core.F("err", err))
			return
		}
		if bytes.Equal(b, last) {
			logger.Debug("config unchanged; skipping reload", core.F("path", path))
			return
		}
		cfg, err := Parse(b)
		if err != nil {
			logger.Warn("config parse failed", core.F("path", path), core.F("err", err))
			return
		}
		r, err := cfg.Resolve()
		if err != nil {
			logger.Warn("config rejected", core.F("path", path), core.F("err", err))
			return
		}
		last = b
		logger.Info("config reloaded", core.F("path", path))
		onChange(r)
	}
	debounce := func() {
		timerMu.Lock()
		defer timerMu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(watchDebounce, func() {
			// serialize reloads; AfterFunc callbacks may overlap
			timerMu.Lock()
			defer timerMu.Unlock()
			if ctx.Err() == nil {
				reload()
			}
		})
	}

	logger.Debug("config watcher started", core.F("dir", dir), core.F("file", file))
	for {
		select {
		case <-ctx.Done():
			timerMu.Lock()
			if timer != nil {
				timer.Stop()
			}
			timerMu.Unlock()
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !strings.EqualFold(filepath.Base(ev.Name), file) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				debounce()
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Warn("config watch error", core.F("err", err), core.F("dir", dir))
		}
	}
}
