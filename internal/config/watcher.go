package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
)

const reloadDebounce = 250 * time.Millisecond

// Watch reloads configFile whenever it changes and hands every valid result
// to onChange. Invalid files are logged and skipped so the previous snapshot
// stays in effect. The parent directory is watched because editors often
// replace files by rename. Watch blocks until ctx is cancelled.
func Watch(ctx context.Context, configFile string, onChange func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config watcher: %w", err)
	}
	defer func() {
		if errClose := watcher.Close(); errClose != nil {
			log.Errorf("config watcher: close failed: %v", errClose)
		}
	}()

	abs, err := filepath.Abs(configFile)
	if err != nil {
		return fmt.Errorf("config watcher: %w", err)
	}
	if err = watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("config watcher: %w", err)
	}

	var (
		timer  *time.Timer
		fire   <-chan time.Time
		target = filepath.Clean(abs)
	)
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(reloadDebounce)
			} else {
				timer.Reset(reloadDebounce)
			}
			fire = timer.C
		case errWatch, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warnf("config watcher: %v", errWatch)
		case <-fire:
			fire = nil
			cfg, errLoad := LoadConfig(configFile)
			if errLoad != nil {
				log.Warnf("config reload skipped: %v", errLoad)
				continue
			}
			ApplyEnvironment(cfg, os.LookupEnv)
			if _, errValidate := ValidateConfig(cfg); errValidate != nil {
				log.Warnf("config reload skipped: %v", errValidate)
				continue
			}
			log.Infof("configuration reloaded from %s", configFile)
			onChange(cfg)
		}
	}
}
