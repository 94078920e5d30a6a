// Package watch feeds images dropped into a folder through the plate pipeline.
package watch

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"platelog/pkg/pipeline"
	"platelog/pkg/upload"
)

// settle is how long a file must go without new events before it is picked up.
const settle = 300 * time.Millisecond

// Importer copies a file into upload storage. *upload.Receiver satisfies it.
type Importer interface {
	Import(path string) (*upload.Image, error)
}

// Processor runs a stored image through recognition. *pipeline.Pipeline satisfies it.
type Processor interface {
	Process(ctx context.Context, img *upload.Image) *pipeline.Outcome
}

// Watcher processes every supported image created in Dir. Processed
// files are removed from Dir once imported.
type Watcher struct {
	Dir     string
	Workers int
	imp     Importer
	proc    Processor
	logger  *slog.Logger
}

func New(dir string, imp Importer, proc Processor, logger *slog.Logger) *Watcher {
	return &Watcher{Dir: dir, Workers: 2, imp: imp, proc: proc, logger: logger}
}

// Run processes files already present, then watches for new ones until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	if err := os.MkdirAll(w.Dir, 0o755); err != nil {
		return err
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()
	if err := fw.Add(w.Dir); err != nil {
		return err
	}
	w.logger.Info("watching folder", "dir", w.Dir)

	files := make(chan string, 256)
	var wg sync.WaitGroup
	for i := 0; i < max(w.Workers, 1); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for path := range files {
				w.handle(ctx, path)
			}
		}()
	}
	defer wg.Wait()
	defer close(files)

	for _, name := range listImages(w.Dir) {
		select {
		case files <- filepath.Join(w.Dir, name):
		case <-ctx.Done():
			return nil
		}
	}

	pending := map[string]time.Time{}
	ticker := time.NewTicker(settle / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) != 0 && IsSupported(ev.Name) {
				pending[ev.Name] = time.Now()
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", "error", err)
		case now := <-ticker.C:
			for path, t := range pending {
				if now.Sub(t) < settle {
					continue
				}
				delete(pending, path)
				select {
				case files <- path:
				case <-ctx.Done():
					return nil
				}
			}
		}
	}
}

func (w *Watcher) handle(ctx context.Context, path string) {
	img, err := w.imp.Import(path)
	if err != nil {
		w.logger.Warn("import failed", "file", path, "error", err)
		return
	}
	out := w.proc.Process(ctx, img)
	if err := os.Remove(path); err != nil {
		w.logger.Warn("failed to remove processed file", "file", path, "error", err)
	}
	w.logger.Info("watched file processed", "file", filepath.Base(path), "plate", out.PlateNumber, "error", out.Error)
}

// IsSupported reports whether name has an image extension worth importing.
func IsSupported(name string) bool {
	base := filepath.Base(name)
	if strings.HasPrefix(base, ".") || strings.HasSuffix(base, ".tmp") {
		return false
	}
	switch strings.ToLower(filepath.Ext(base)) {
	case ".png", ".jpg", ".jpeg", ".gif", ".webp", ".bmp", ".tif", ".tiff":
		return true
	}
	return false
}

func listImages(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !IsSupported(e.Name()) {
			continue
		}
		out = append(out, e.Name())
	}
	sort.Strings(out)
	return out
}
