package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

type rulesOverlayFile struct {
	Rules map[int][]RuleConfig `yaml:"rules"`
}

// LoadRulesOverlay reads a standalone threshold-rule file: a YAML
// document with a single top-level `rules:` key, same shape as
// `tickwatch.threshold_monitor.rules` in the primary config. This lets
// rule tuning ship independently of the rest of the config.
func LoadRulesOverlay(path string) (map[int][]RuleConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules overlay %s: %w", path, err)
	}
	var f rulesOverlayFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse rules overlay %s: %w", path, err)
	}
	return f.Rules, nil
}

// RulesOverlayWatcher watches a rules overlay file for writes and
// invokes onChange with the freshly parsed rule set, or a non-nil error
// if the rewritten file fails to parse.
type RulesOverlayWatcher struct {
	watcher *fsnotify.Watcher
	done    chan struct{}
	wg      sync.WaitGroup
}

// WatchRulesOverlay starts watching path's parent directory (not the
// file itself, since editors commonly replace a file via rename rather
// than in-place write, which would orphan a direct file watch) and
// calls onChange on every write/create event that targets path.
func WatchRulesOverlay(path string, onChange func(map[int][]RuleConfig, error)) (*RulesOverlayWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create rules overlay watcher: %w", err)
	}
	dir := filepath.Dir(path)
	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	rw := &RulesOverlayWatcher{watcher: w, done: make(chan struct{})}
	rw.wg.Add(1)
	go rw.run(path, onChange)
	return rw, nil
}

func (rw *RulesOverlayWatcher) run(path string, onChange func(map[int][]RuleConfig, error)) {
	defer rw.wg.Done()
	target := filepath.Clean(path)

	for {
		select {
		case ev, ok := <-rw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			rules, err := LoadRulesOverlay(path)
			onChange(rules, err)
		case err, ok := <-rw.watcher.Errors:
			if !ok {
				return
			}
			onChange(nil, err)
		case <-rw.done:
			return
		}
	}
}

// Stop releases the underlying fsnotify watcher and waits for the
// watch goroutine to exit.
func (rw *RulesOverlayWatcher) Stop() {
	close(rw.done)
	rw.watcher.Close()
	rw.wg.Wait()
}
