// Package watcher auto-ingests export files dropped into the inbox
// directory.
package watcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/PresidentofMexico/openai-usage-metrics/internal/config"
	"github.com/PresidentofMexico/openai-usage-metrics/internal/ingest/pipeline"
	"github.com/fsnotify/fsnotify"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// settleDelay is how long a file must stay quiet before it is read, so a
// file still being copied into the inbox is not ingested half-written.
const settleDelay = 2 * time.Second

type WatcherParam struct {
	fx.In

	LC       fx.Lifecycle
	Log      *zap.Logger
	Cfg      config.Config
	Pipeline *pipeline.Pipeline
}

// Watcher tails the inbox directory and runs each settled file through the
// ingestion pipeline with confirmation implied.
type Watcher struct {
	log      *zap.Logger
	cfg      config.Config
	pipeline *pipeline.Pipeline

	mu      sync.Mutex
	pending map[string]*time.Timer

	fsw    *fsnotify.Watcher
	cancel context.CancelFunc
	done   chan struct{}
}

func New(p WatcherParam) (*Watcher, error) {
	w := &Watcher{
		log:      p.Log.Named("ingest.watcher"),
		cfg:      p.Cfg,
		pipeline: p.Pipeline,
		pending:  make(map[string]*time.Timer),
	}
	if !p.Cfg.InboxEnabled {
		return w, nil
	}

	p.LC.Append(fx.Hook{
		OnStart: func(ctx context.Context) error { return w.start() },
		OnStop:  func(ctx context.Context) error { return w.stop() },
	})
	return w, nil
}

func (w *Watcher) start() error {
	if err := os.MkdirAll(w.cfg.InboxDir, 0o755); err != nil {
		return err
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := fsw.Add(w.cfg.InboxDir); err != nil {
		fsw.Close()
		return err
	}
	w.fsw = fsw

	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	w.done = make(chan struct{})
	go w.run(ctx)

	w.log.Info("inbox watcher started", zap.String("dir", w.cfg.InboxDir))
	return nil
}

func (w *Watcher) stop() error {
	if w.fsw == nil {
		return nil
	}
	w.cancel()
	err := w.fsw.Close()
	<-w.done

	w.mu.Lock()
	for _, timer := range w.pending {
		timer.Stop()
	}
	w.pending = make(map[string]*time.Timer)
	w.mu.Unlock()
	return err
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.done)
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if !ingestable(event.Name) {
				continue
			}
			w.schedule(ctx, event.Name)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Warn("inbox watch error", zap.Error(err))
		}
	}
}

func ingestable(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".tsv", ".txt":
		return true
	}
	return false
}

// schedule (re)arms the settle timer for one path. Every write event
// pushes ingestion back by settleDelay.
func (w *Watcher) schedule(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if timer, ok := w.pending[path]; ok {
		timer.Reset(settleDelay)
		return
	}
	w.pending[path] = time.AfterFunc(settleDelay, func() {
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()
		w.ingest(ctx, path)
	})
}

func (w *Watcher) ingest(ctx context.Context, path string) {
	content, err := os.ReadFile(path)
	if err != nil {
		w.log.Warn("inbox file unreadable", zap.String("path", path), zap.Error(err))
		return
	}

	result, err := w.pipeline.ProcessFile(ctx, filepath.Base(path), content, true)
	if err != nil {
		w.log.Error("inbox ingestion failed", zap.String("path", path), zap.Error(err))
		w.move(path, "failed")
		return
	}

	w.log.Info("inbox file ingested",
		zap.String("path", path),
		zap.String("vendor", result.Classification.Vendor),
		zap.String("sublayout", result.Classification.Sublayout),
		zap.Int("records", result.Records),
	)
	w.move(path, "processed")
}

// move relocates a handled file into a sibling state directory so it is
// not picked up again.
func (w *Watcher) move(path, state string) {
	dir := filepath.Join(w.cfg.InboxDir, state)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		w.log.Warn("inbox move failed", zap.String("path", path), zap.Error(err))
		return
	}
	target := filepath.Join(dir, filepath.Base(path))
	if err := os.Rename(path, target); err != nil {
		w.log.Warn("inbox move failed", zap.String("path", path), zap.Error(err))
	}
}
