// Package monitorwatch hot-reloads a gdbstub session's qRcmd monitor
// command table from a directory of command descriptor files, so an
// embedding host can add or edit monitor commands without restarting the
// debug session.
package monitorwatch

import (
	"bufio"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/riftlane/gdbstub/internal/gdbstub"
)

// Handler is the host-supplied callback a descriptor's name resolves to.
// Descriptors never carry executable code — only name and help text —
// so the handler lookup always goes through a registry the host builds
// in Go.
type Handler func(out *gdbstub.Output, args string) gdbstub.StatusCode

// Reloader receives a freshly parsed command table on every directory
// change. *gdbstub.Session satisfies this via its ReloadCommands method.
type Reloader interface {
	ReloadCommands(cmds []gdbstub.MonitorCommand)
}

// Watcher watches a directory of ".cmd" descriptor files (line 1: name,
// line 2: description) and pushes the resulting monitor-command table to
// a Reloader whenever the directory changes: watch, parse the changed
// event bits, reload the whole table and push it downstream.
type Watcher struct {
	dir      string
	registry map[string]Handler
	target   Reloader
	fsw      *fsnotify.Watcher

	mu   sync.Mutex
	done chan struct{}
}

// New creates a Watcher over dir, dispatching descriptor names to
// handlers found in registry. Call Start to begin watching; an initial
// load happens synchronously before New returns.
func New(dir string, registry map[string]Handler, target Reloader) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(dir); err != nil {
		_ = fsw.Close()
		return nil, err
	}
	w := &Watcher{dir: dir, registry: registry, target: target, fsw: fsw, done: make(chan struct{})}
	if err := w.reload(); err != nil {
		_ = fsw.Close()
		return nil, err
	}
	return w, nil
}

// Start begins the background watch loop.
func (w *Watcher) Start() {
	go w.loop()
}

// Close stops watching and releases the underlying fsnotify handle.
func (w *Watcher) Close() error {
	close(w.done)
	return w.fsw.Close()
}

func (w *Watcher) loop() {
	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			_ = w.reload()
		case _, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
		}
	}
}

// reload re-reads every descriptor in the directory and pushes the
// result to the target. A descriptor whose name has no registered
// handler is silently skipped: that command simply won't appear until
// the host registers a handler for it.
func (w *Watcher) reload() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return err
	}

	var cmds []gdbstub.MonitorCommand
	for _, ent := range entries {
		if ent.IsDir() || filepath.Ext(ent.Name()) != ".cmd" {
			continue
		}
		desc, err := parseDescriptor(filepath.Join(w.dir, ent.Name()))
		if err != nil {
			continue
		}
		handler, ok := w.registry[desc.name]
		if !ok {
			continue
		}
		cmds = append(cmds, gdbstub.MonitorCommand{
			Name:        desc.name,
			Description: desc.description,
			Handler:     func(out *gdbstub.Output, args string) gdbstub.StatusCode { return handler(out, args) },
		})
	}

	w.target.ReloadCommands(cmds)
	return nil
}

type descriptor struct {
	name        string
	description string
}

func parseDescriptor(path string) (descriptor, error) {
	f, err := os.Open(path)
	if err != nil {
		return descriptor{}, err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	var d descriptor
	if sc.Scan() {
		d.name = sc.Text()
	}
	if sc.Scan() {
		d.description = sc.Text()
	}
	if err := sc.Err(); err != nil {
		return descriptor{}, err
	}
	return d, nil
}
