package daemon

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/anthropic/dirwatch/internal/config"
	"github.com/anthropic/dirwatch/internal/metrics"
	"github.com/anthropic/dirwatch/internal/store"
	"github.com/anthropic/dirwatch/internal/watcher"
)

// IPCServer is the interface the daemon uses to start/stop the IPC listener.
// This avoids a circular dependency with the ipc package.
type IPCServer interface {
	Listen(socketPath string, ctx context.Context) error
	Stop() error
}

// StoreAware can receive a store reference after it becomes available.
type StoreAware interface {
	SetStore(store interface{})
}

// binding is the user value handed to every watchpoint callback.
type binding struct {
	watch config.Watch
	id    watcher.ID
}

// Daemon owns one Watcher and drives it from a single polling goroutine,
// journaling every delivered event.
type Daemon struct {
	cfg       *config.Config
	store     *store.Store
	ipc       IPCServer
	watcher   *watcher.Watcher
	metrics   *metrics.Metrics
	bindings  map[watcher.ID]*binding
	runID     string
	startTime time.Time

	cancel  context.CancelFunc
	mu      sync.Mutex
	running bool
	watches []watcher.WatchpointInfo
	stats   watcher.Stats
}

// New creates a new Daemon with the given config.
// The IPC server is injected to avoid circular imports.
func New(cfg *config.Config, ipcServer IPCServer) *Daemon {
	return &Daemon{
		cfg:      cfg,
		ipc:      ipcServer,
		metrics:  metrics.New(),
		bindings: make(map[watcher.ID]*binding),
	}
}

// Start runs the daemon until SIGINT or SIGTERM, or until Stop is called.
func (d *Daemon) Start() error {
	ctx, cancel := SignalContext(context.Background())
	defer cancel()
	return d.Run(ctx)
}

// Run opens the journal, registers the configured watches and polls them
// until ctx is cancelled, Stop is called or the watcher fails.
func (d *Daemon) Run(ctx context.Context) error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon is already running")
	}
	d.running = true
	d.mu.Unlock()
	defer func() {
		d.mu.Lock()
		d.running = false
		d.mu.Unlock()
	}()

	if err := d.cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if err := d.cfg.EnsureDataDir(); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	s, err := store.New(d.cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	d.store = s

	if sa, ok := d.ipc.(StoreAware); ok {
		sa.SetStore(s)
	}

	w, err := watcher.New(d.cfg.Capacity,
		watcher.WithBackend(d.cfg.Backend),
		watcher.WithQueueCapacity(d.cfg.QueueCapacity),
	)
	if err != nil {
		_ = s.Close()
		return fmt.Errorf("init watcher: %w", err)
	}
	d.watcher = w
	d.register()

	started := time.Now()
	runID, err := s.StartRun(d.cfg.Backend, started)
	if err != nil {
		log.Printf("journal: %v", err)
	} else {
		d.recordRun(s, runID)
	}

	ctx, cancel := context.WithCancel(ctx)
	d.mu.Lock()
	d.startTime = started
	d.runID = runID
	d.cancel = cancel
	d.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return d.ipc.Listen(d.cfg.SocketPath, gctx)
	})
	g.Go(func() error {
		return d.pollLoop(gctx)
	})
	if d.cfg.MetricsAddr != "" {
		g.Go(func() error {
			return d.metrics.Serve(gctx, d.cfg.MetricsAddr)
		})
	}

	log.Printf("daemon started (pid %d, db %s, socket %s, %d watches)",
		os.Getpid(), d.cfg.DBPath, d.cfg.SocketPath, len(d.watches))

	err = g.Wait()
	cancel()
	if err != nil {
		log.Printf("daemon error: %v", err)
	} else {
		log.Println("shutdown signal received")
	}

	return errors.Join(err, d.shutdown())
}

// recordRun remembers the latest run so the journal can be read without
// the daemon.
func (d *Daemon) recordRun(s *store.Store, runID string) {
	backend := d.cfg.Backend
	if backend == "" {
		backend = watcher.BackendNative
	}
	for key, value := range map[string]string{
		store.LastRunKey:     runID,
		store.LastBackendKey: backend,
	} {
		if err := s.SetDaemonState(key, value); err != nil {
			log.Printf("journal: record %s: %v", key, err)
		}
	}
}

// register adds every configured watch. A watch that cannot be
// established is logged and skipped.
func (d *Daemon) register() {
	for i, wc := range d.cfg.Watches {
		id, err := d.watcher.AddWatchpoint(wc.Path, wc.Flags())
		if err != nil {
			log.Printf("watcher: skip %s: %v", wc.Path, err)
			continue
		}
		b := &binding{watch: wc, id: id}
		d.bindings[id] = b
		if err := d.watcher.SetCallback(id, d.onEvent, b, i); err != nil {
			log.Printf("watcher: bind %s: %v", wc.Path, err)
		}
	}

	d.mu.Lock()
	d.watches = d.watcher.Watchpoints()
	d.mu.Unlock()
	d.metrics.SetWatchpoints(len(d.watches))
}

// onEvent is the callback bound to every watchpoint.
func (d *Daemon) onEvent(filename string, userPtr any, _ int) {
	b, ok := userPtr.(*binding)
	if !ok {
		return
	}
	d.metrics.Delivered(b.watch.Name())
	log.Printf("event %s: %s", b.watch.Name(), filename)
}

// pollLoop drains the watcher, then sleeps for the poll interval. The
// watcher never blocks, so staleness is bounded by the interval.
func (d *Daemon) pollLoop(ctx context.Context) error {
	ticker := time.NewTicker(time.Duration(d.cfg.PollInterval))
	defer ticker.Stop()

	for {
		if err := d.drain(); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// drain delivers every pending event and journals it.
func (d *Daemon) drain() error {
	defer d.observe()

	for {
		var ev watcher.Event
		ok, err := d.watcher.Poll(&ev)
		if err != nil {
			return fmt.Errorf("poll: %w", err)
		}
		if !ok {
			return nil
		}
		d.journal(ev)
	}
}

func (d *Daemon) journal(ev watcher.Event) {
	rec := store.EventRecord{
		RunID:        d.runID,
		WatchpointID: int(ev.WatchpointID),
		RelativeName: ev.RelativeFilename,
		Filename:     ev.Filename,
		DeliveredAt:  time.Now(),
	}
	if b, ok := d.bindings[ev.WatchpointID]; ok {
		rec.WatchPath = b.watch.Path
	}
	if err := d.store.InsertEvent(rec); err != nil {
		d.metrics.JournalError()
		log.Printf("journal: insert %s: %v", ev.Filename, err)
	}
}

func (d *Daemon) observe() {
	stats := d.watcher.Stats()
	d.metrics.ObserveStats(stats)
	d.mu.Lock()
	d.stats = stats
	d.mu.Unlock()
}

// Stop triggers a graceful shutdown from outside (e.g. via IPC stop command).
func (d *Daemon) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cancel != nil {
		d.cancel()
	}
}

// shutdown performs ordered teardown: IPC server, watcher, then store and
// socket cleanup. The poll loop has already returned.
func (d *Daemon) shutdown() error {
	log.Println("shutting down...")

	if d.ipc != nil {
		if err := d.ipc.Stop(); err != nil {
			log.Printf("ipc stop: %v", err)
		}
	}

	if err := d.watcher.Close(); err != nil {
		log.Printf("watcher close: %v", err)
	}

	if d.runID != "" {
		if err := d.store.FinishRun(d.runID, time.Now()); err != nil {
			log.Printf("journal: finish run: %v", err)
		}
	}
	if err := d.store.Close(); err != nil {
		log.Printf("store close: %v", err)
	}

	_ = os.Remove(d.cfg.SocketPath)

	log.Println("daemon stopped")
	return nil
}

// Running returns true if the daemon is currently running.
func (d *Daemon) Running() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running
}

// Uptime returns how long the daemon has been running.
func (d *Daemon) Uptime() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.startTime.IsZero() {
		return 0
	}
	return time.Since(d.startTime)
}

// RunID identifies this run in the journal.
func (d *Daemon) RunID() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.runID
}

// Watches returns the registered watchpoints.
func (d *Daemon) Watches() []watcher.WatchpointInfo {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.watches
}

// Stats returns the watcher counters as of the last drain.
func (d *Daemon) Stats() watcher.Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}

// Config returns the daemon's configuration.
func (d *Daemon) Config() *config.Config {
	return d.cfg
}
