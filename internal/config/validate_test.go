package config

import (
	"strings"
	"testing"

	"github.com/flemzord/sweep/internal/core"
	"gopkg.in/yaml.v3"
)

// stubModule is a basic module for testing.
type stubModule struct {
	id string
}

func (m *stubModule) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  core.ModuleID(m.id),
		New: func() core.Module { return &stubModule{id: m.id} },
	}
}

func registerStub(t *testing.T, id string) {
	t.Helper()
	core.RegisterModule(&stubModule{id: id})
}

func TestValidate_Structure(t *testing.T) {
	known := t.Name() + ".mod"
	registerStub(t, known)

	tests := []struct {
		name    string
		cfg     Config
		wantErr []string
	}{
		{
			name: "valid",
			cfg:  Config{Version: "1", Modules: map[string]yaml.Node{known: {}}},
		},
		{
			name:    "missing version",
			cfg:     Config{Modules: map[string]yaml.Node{known: {}}},
			wantErr: []string{"version field is required"},
		},
		{
			name:    "unsupported version",
			cfg:     Config{Version: "99", Modules: map[string]yaml.Node{known: {}}},
			wantErr: []string{"unsupported version"},
		},
		{
			name:    "no modules",
			cfg:     Config{Version: "1"},
			wantErr: []string{"at least one module"},
		},
		{
			name:    "unknown modules are all reported",
			cfg:     Config{Version: "1", Modules: map[string]yaml.Node{"bad.one": {}, "bad.two": {}}},
			wantErr: []string{`"bad.one"`, `"bad.two"`},
		},
		{
			name:    "errors are joined",
			cfg:     Config{Modules: map[string]yaml.Node{"bad.one": {}}},
			wantErr: []string{"version field is required", `"bad.one"`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(&tt.cfg)
			if len(tt.wantErr) == 0 {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() = nil, want errors mentioning %v", tt.wantErr)
			}
			for _, want := range tt.wantErr {
				if !strings.Contains(err.Error(), want) {
					t.Errorf("error should mention %s: %v", want, err)
				}
			}
		})
	}
}

func TestValidate_SingleOracle(t *testing.T) {
	a := "maindom." + t.Name() + "_a"
	b := "maindom." + t.Name() + "_b"
	registerStub(t, a)
	registerStub(t, b)
	cfg := &Config{
		Version: "1",
		Modules: map[string]yaml.Node{a: {}, b: {}},
	}
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected error for two maindom modules")
	}
	if !strings.Contains(err.Error(), "at most one maindom") {
		t.Errorf("error should mention the oracle limit: %v", err)
	}
}

func TestValidate_ServerRole(t *testing.T) {
	id := t.Name() + ".mod"
	registerStub(t, id)

	for role, wantErr := range map[string]bool{
		"":        false,
		"single":  false,
		"replica": false,
		"primary": true,
	} {
		cfg := &Config{
			Version: "1",
			Runtime: RuntimeConfig{ServerRole: role},
			Modules: map[string]yaml.Node{id: {}},
		}
		err := Validate(cfg)
		if (err != nil) != wantErr {
			t.Errorf("server_role %q: error = %v, wantErr %v", role, err, wantErr)
		}
	}
}

func TestValidate_Logging(t *testing.T) {
	id := t.Name() + ".mod"
	registerStub(t, id)

	cfg := &Config{
		Version: "1",
		Logging: LoggingConfig{Level: "loud", Format: "xml", MaxBackups: -1},
		Modules: map[string]yaml.Node{id: {}},
	}
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected logging errors")
	}
	for _, want := range []string{"logging.level", "logging.format", "rotation"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error should mention %s: %v", want, err)
		}
	}
}

func TestResolve_PriorityOrder(t *testing.T) {
	late := t.Name() + ".late"
	early := t.Name() + ".early"
	core.RegisterModule(&prioritizedModule{id: late, priority: core.PriorityGateway})
	core.RegisterModule(&prioritizedModule{id: early, priority: core.PriorityStorage})

	cfg := &Config{Modules: map[string]yaml.Node{late: {}, early: {}}}
	ids := Resolve(cfg)
	if len(ids) != 2 || ids[0] != early || ids[1] != late {
		t.Errorf("Resolve() = %v, want [%s %s]", ids, early, late)
	}
}

type prioritizedModule struct {
	id       string
	priority int
}

func (m *prioritizedModule) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:       core.ModuleID(m.id),
		Priority: m.priority,
		New:      func() core.Module { return &prioritizedModule{id: m.id, priority: m.priority} },
	}
}
