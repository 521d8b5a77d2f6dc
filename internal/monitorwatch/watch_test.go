package monitorwatch

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/riftlane/gdbstub/internal/gdbstub"
)

type fakeReloader struct {
	mu   sync.Mutex
	cmds []gdbstub.MonitorCommand
}

func (f *fakeReloader) ReloadCommands(cmds []gdbstub.MonitorCommand) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cmds = cmds
}

func (f *fakeReloader) snapshot() []gdbstub.MonitorCommand {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]gdbstub.MonitorCommand(nil), f.cmds...)
}

func writeDescriptor(t *testing.T, dir, file, name, desc string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, file), []byte(name+"\n"+desc+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestWatcherLoadsExistingDescriptorsOnStart(t *testing.T) {
	dir := t.TempDir()
	writeDescriptor(t, dir, "ping.cmd", "ping", "replies pong")

	called := false
	registry := map[string]Handler{
		"ping": func(out *gdbstub.Output, args string) gdbstub.StatusCode {
			called = true
			out.Printf("pong")
			return gdbstub.Success
		},
	}
	target := &fakeReloader{}

	w, err := New(dir, registry, target)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	cmds := target.snapshot()
	if len(cmds) != 1 || cmds[0].Name != "ping" {
		t.Fatalf("cmds = %+v, want one ping entry", cmds)
	}

	var out gdbstub.Output
	if status := cmds[0].Handler(&out, ""); status != gdbstub.Success {
		t.Fatalf("handler status = %v", status)
	}
	if !called {
		t.Fatal("registered handler was not invoked")
	}
}

func TestWatcherSkipsDescriptorsWithoutARegisteredHandler(t *testing.T) {
	dir := t.TempDir()
	writeDescriptor(t, dir, "unknown.cmd", "unknown", "no handler registered")

	target := &fakeReloader{}
	w, err := New(dir, map[string]Handler{}, target)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	if cmds := target.snapshot(); len(cmds) != 0 {
		t.Fatalf("cmds = %+v, want none (no handler registered)", cmds)
	}
}

func TestWatcherReloadsOnNewDescriptor(t *testing.T) {
	dir := t.TempDir()
	target := &fakeReloader{}
	registry := map[string]Handler{
		"status": func(out *gdbstub.Output, args string) gdbstub.StatusCode { return gdbstub.Success },
	}

	w, err := New(dir, registry, target)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()
	w.Start()

	if cmds := target.snapshot(); len(cmds) != 0 {
		t.Fatalf("expected empty table before any descriptor exists, got %+v", cmds)
	}

	writeDescriptor(t, dir, "status.cmd", "status", "reports target status")

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cmds := target.snapshot(); len(cmds) == 1 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("watcher never observed the new descriptor")
}
