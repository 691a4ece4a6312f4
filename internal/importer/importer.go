package importer

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/leapstack-labs/certdesk/pkg/core"
)

// Upserter stores imported certificates, keyed by fingerprint.
type Upserter interface {
	UpsertByFingerprint(ctx context.Context, cert *core.Certificate) (bool, error)
}

// Pulser announces that certificate data changed.
type Pulser interface {
	Pulse()
}

// Summary counts the outcome of an import run.
type Summary struct {
	Files   int
	Created int
	Updated int
	Failed  int
}

// Changed reports whether any record was written.
func (s Summary) Changed() bool {
	return s.Created+s.Updated > 0
}

// Importer loads certificate files into the store.
type Importer struct {
	store  Upserter
	bus    Pulser
	logger *slog.Logger

	// Debounce is the quiet period after the last file event. Defaults to 100ms.
	Debounce time.Duration
}

// New creates an importer. bus may be nil.
func New(store Upserter, bus Pulser, logger *slog.Logger) *Importer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Importer{store: store, bus: bus, logger: logger, Debounce: 100 * time.Millisecond}
}

// ImportFile imports every certificate in one file.
func (i *Importer) ImportFile(ctx context.Context, path string) (Summary, error) {
	sum := Summary{Files: 1}

	data, err := os.ReadFile(path)
	if err != nil {
		return sum, fmt.Errorf("failed to read %s: %w", path, err)
	}
	certs, err := ParsePEM(data)
	if err != nil {
		return sum, fmt.Errorf("%s: %w", path, err)
	}

	for _, c := range certs {
		created, err := i.store.UpsertByFingerprint(ctx, c)
		if err != nil {
			sum.Failed++
			i.logger.Error("failed to import certificate",
				slog.String("file", path),
				slog.String("fingerprint", c.Fingerprint),
				slog.Any("error", err))
			continue
		}
		if created {
			sum.Created++
		} else {
			sum.Updated++
		}
	}
	return sum, nil
}

// ImportDir imports every importable file below dir and pulses the bus once
// if anything changed. Unreadable files are logged and counted as failed.
func (i *Importer) ImportDir(ctx context.Context, dir string) (Summary, error) {
	var total Summary
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !Importable(path) {
			return nil
		}
		sum, err := i.ImportFile(ctx, path)
		total = total.add(sum)
		if err != nil {
			total.Failed++
			i.logger.Warn("skipping file", slog.String("file", path), slog.Any("error", err))
		}
		return nil
	})
	if err != nil {
		return total, fmt.Errorf("failed to walk %s: %w", dir, err)
	}

	i.logger.Info("import finished",
		slog.String("dir", dir),
		slog.Int("files", total.Files),
		slog.Int("created", total.Created),
		slog.Int("updated", total.Updated),
		slog.Int("failed", total.Failed))
	if total.Changed() && i.bus != nil {
		i.bus.Pulse()
	}
	return total, nil
}

func (s Summary) add(o Summary) Summary {
	return Summary{
		Files:   s.Files + o.Files,
		Created: s.Created + o.Created,
		Updated: s.Updated + o.Updated,
		Failed:  s.Failed + o.Failed,
	}
}

// Watch imports files written into dir until ctx is done. Events are
// debounced; each settled batch pulses the bus once.
func (i *Importer) Watch(ctx context.Context, dir string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = watcher.Close() }()

	if err := watchDirRecursive(watcher, dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	i.logger.Info("watching for certificates", slog.String("dir", dir))

	var (
		mu      sync.Mutex
		pending = map[string]struct{}{}
		timer   *time.Timer
		wg      sync.WaitGroup
	)
	defer func() {
		mu.Lock()
		if timer != nil && timer.Stop() {
			wg.Done()
		}
		mu.Unlock()
		wg.Wait()
	}()

	flush := func() {
		defer wg.Done()
		mu.Lock()
		paths := pending
		pending = map[string]struct{}{}
		mu.Unlock()

		var total Summary
		for path := range paths {
			sum, err := i.ImportFile(ctx, path)
			total = total.add(sum)
			if err != nil {
				i.logger.Warn("skipping file", slog.String("file", path), slog.Any("error", err))
			}
		}
		if total.Changed() && i.bus != nil {
			i.logger.Debug("certificates imported", slog.Int("created", total.Created), slog.Int("updated", total.Updated))
			i.bus.Pulse()
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					_ = watcher.Add(event.Name)
					continue
				}
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 || !Importable(event.Name) {
				continue
			}

			mu.Lock()
			pending[event.Name] = struct{}{}
			if timer != nil && timer.Stop() {
				wg.Done()
			}
			wg.Add(1)
			timer = time.AfterFunc(i.Debounce, flush)
			mu.Unlock()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			i.logger.Error("watcher error", slog.Any("error", err))
		}
	}
}

// watchDirRecursive adds a directory and all subdirectories to the watcher.
func watchDirRecursive(watcher *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return watcher.Add(path)
		}
		return nil
	})
}
