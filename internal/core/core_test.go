package core

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"
)

// orderModule records Start and Stop calls into a shared journal.
type orderModule struct {
	id       ModuleID
	priority int
	journal  *[]string
	startErr error
}

func (m *orderModule) ModuleInfo() ModuleInfo {
	cp := *m
	return ModuleInfo{
		ID:       m.id,
		Priority: m.priority,
		New:      func() Module { c := cp; return &c },
	}
}

func (m *orderModule) Start() error {
	*m.journal = append(*m.journal, "start "+string(m.id))
	return m.startErr
}

func (m *orderModule) Stop(_ context.Context) error {
	*m.journal = append(*m.journal, "stop "+string(m.id))
	return nil
}

func TestOrderModuleIDs(t *testing.T) {
	t.Cleanup(resetRegistry)

	var journal []string
	RegisterModule(&orderModule{id: "gateway.http", priority: PriorityGateway, journal: &journal})
	RegisterModule(&orderModule{id: "versions.sqlite", priority: PriorityStorage, journal: &journal})
	RegisterModule(&orderModule{id: "scheduler", priority: PriorityScheduler, journal: &journal})
	RegisterModule(&orderModule{id: "cleanup.content_versions", priority: PriorityTask, journal: &journal})
	RegisterModule(&orderModule{id: "maindom.static", priority: PriorityOracle, journal: &journal})

	got := OrderModuleIDs([]string{
		"cleanup.content_versions", "gateway.http", "mystery", "maindom.static", "scheduler", "versions.sqlite",
	})
	want := []string{
		"versions.sqlite", "maindom.static", "scheduler", "cleanup.content_versions", "gateway.http", "mystery",
	}
	if !slices.Equal(got, want) {
		t.Errorf("OrderModuleIDs() = %v, want %v", got, want)
	}
}

func TestApp_StartStopOrder(t *testing.T) {
	t.Cleanup(resetRegistry)

	var journal []string
	RegisterModule(&orderModule{id: "a.first", priority: 1, journal: &journal})
	RegisterModule(&orderModule{id: "b.second", priority: 2, journal: &journal})

	app := NewApp(NewAppContext(nil, t.TempDir()))
	if err := app.LoadModules(OrderModuleIDs([]string{"b.second", "a.first"})); err != nil {
		t.Fatal(err)
	}
	app.AppendModule("c.extra", &orderModule{id: "c.extra", journal: &journal})

	if err := app.Start(); err != nil {
		t.Fatal(err)
	}
	if err := app.Stop(); err != nil {
		t.Fatal(err)
	}

	want := []string{
		"start a.first", "start b.second", "start c.extra",
		"stop c.extra", "stop b.second", "stop a.first",
	}
	if !slices.Equal(journal, want) {
		t.Errorf("journal = %v, want %v", journal, want)
	}
	if _, ok := app.Module("c.extra"); !ok {
		t.Error("appended module should be discoverable")
	}
}

func TestApp_StartFailureStopsStarted(t *testing.T) {
	t.Cleanup(resetRegistry)

	var journal []string
	RegisterModule(&orderModule{id: "ok.one", priority: 1, journal: &journal})
	RegisterModule(&orderModule{id: "bad.two", priority: 2, journal: &journal, startErr: errors.New("boom")})

	app := NewApp(NewAppContext(nil, t.TempDir()))
	if err := app.LoadModules([]string{"ok.one", "bad.two"}); err != nil {
		t.Fatal(err)
	}
	if err := app.Start(); err == nil {
		t.Fatal("expected start error")
	}

	want := []string{"start ok.one", "start bad.two", "stop ok.one"}
	if !slices.Equal(journal, want) {
		t.Errorf("journal = %v, want %v", journal, want)
	}
}

func TestAppContext_Services(t *testing.T) {
	t.Parallel()

	ctx := NewAppContext(nil, "/data")
	child := ctx.ForModule("scheduler")
	child.RegisterService("scheduler.runner", 42)

	got, ok := Service[int](ctx, "scheduler.runner")
	if !ok || got != 42 {
		t.Errorf("Service() = %v, %v; want 42, true", got, ok)
	}
	if _, ok := Service[string](ctx, "scheduler.runner"); ok {
		t.Error("Service with the wrong type should report false")
	}
	if _, ok := ctx.WithModuleConfigs(nil).GetService("scheduler.runner"); !ok {
		t.Error("WithModuleConfigs should share services")
	}
	if _, ok := ctx.GetService("missing"); ok {
		t.Error("missing service should report false")
	}
}

func TestModuleID_Parts(t *testing.T) {
	t.Parallel()

	id := ModuleID("maindom.sqlite")
	if id.Namespace() != "maindom" || id.Name() != "sqlite" {
		t.Errorf("got %q/%q", id.Namespace(), id.Name())
	}
	if ModuleID("scheduler").Name() != "scheduler" {
		t.Error("ID without namespace should be its own name")
	}
}

// closeOnly implements Stopper without Starter.
type closeOnly struct {
	closed  bool
	stopErr error
}

func (m *closeOnly) ModuleInfo() ModuleInfo { return ModuleInfo{ID: "close.only"} }

func (m *closeOnly) Stop(_ context.Context) error {
	m.closed = true
	return m.stopErr
}

func TestApp_StopReachesStopperOnlyModules(t *testing.T) {
	t.Parallel()

	app := NewApp(NewAppContext(nil, t.TempDir()))
	failing := &closeOnly{stopErr: errors.New("close failed")}
	plain := &closeOnly{}
	app.AppendModule("close.plain", plain)
	app.AppendModule("close.failing", failing)

	if err := app.Start(); err != nil {
		t.Fatal(err)
	}
	err := app.Stop()
	if !plain.closed || !failing.closed {
		t.Error("Stop should reach every started module")
	}
	if err == nil || !strings.Contains(err.Error(), "close.failing") {
		t.Errorf("Stop() = %v, want error naming close.failing", err)
	}
}

func TestApp_StartTwice(t *testing.T) {
	t.Parallel()

	app := NewApp(NewAppContext(nil, t.TempDir()))
	if err := app.Start(); err != nil {
		t.Fatal(err)
	}
	if err := app.Start(); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("second Start() = %v, want ErrAlreadyStarted", err)
	}
	if err := app.Stop(); err != nil {
		t.Fatal(err)
	}
	if err := app.Start(); !errors.Is(err, ErrStopped) {
		t.Errorf("Start() after Stop = %v, want ErrStopped", err)
	}
}

func TestApp_LoadFailureReleasesLoaded(t *testing.T) {
	t.Cleanup(resetRegistry)

	var journal []string
	RegisterModule(&orderModule{id: "ok.loaded", priority: 1, journal: &journal})

	app := NewApp(NewAppContext(nil, t.TempDir()))
	if err := app.LoadModules([]string{"ok.loaded", "missing.module"}); err == nil {
		t.Fatal("expected load error")
	}
	if !slices.Equal(journal, []string{"stop ok.loaded"}) {
		t.Errorf("journal = %v, want loaded module released", journal)
	}
	if len(app.ModuleIDs()) != 0 {
		t.Error("app should be empty after a failed load")
	}
}
