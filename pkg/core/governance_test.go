//go:build governance

package core_test

import (
	"strings"
	"testing"

	"golang.org/x/tools/go/packages"
)

const modulePath = "github.com/leapstack-labs/certdesk"

// TestGovernance_CoreCohesion verifies that exported identifiers in pkg/core
// are shared by at least two packages. Single-use types belong to their consumer.
func TestGovernance_CoreCohesion(t *testing.T) {
	cfg := &packages.Config{
		Mode: packages.NeedName | packages.NeedImports | packages.NeedTypes |
			packages.NeedTypesInfo | packages.NeedDeps,
	}
	pkgs, err := packages.Load(cfg, modulePath+"/...")
	if err != nil {
		t.Fatalf("Failed to load packages: %v", err)
	}

	var corePath = modulePath + "/pkg/core"
	coreNames := make(map[string]bool)
	for _, p := range pkgs {
		if p.PkgPath != corePath {
			continue
		}
		scope := p.Types.Scope()
		for _, name := range scope.Names() {
			if obj := scope.Lookup(name); obj.Exported() {
				coreNames[name] = true
			}
		}
	}
	if len(coreNames) == 0 {
		t.Fatal("Could not find pkg/core")
	}

	usage := make(map[string]map[string]bool)
	for _, p := range pkgs {
		if p.PkgPath == corePath || p.TypesInfo == nil {
			continue
		}
		for _, obj := range p.TypesInfo.Uses {
			if obj.Pkg() == nil || obj.Pkg().Path() != corePath || !coreNames[obj.Name()] {
				continue
			}
			if usage[obj.Name()] == nil {
				usage[obj.Name()] = make(map[string]bool)
			}
			usage[obj.Name()][strings.TrimPrefix(p.PkgPath, modulePath+"/")] = true
		}
	}

	for name := range coreNames {
		if cohesionAllowlist[name] {
			continue
		}
		switch importers := usage[name]; len(importers) {
		case 0:
			t.Logf("WARNING: unused core identifier: %s", name)
		case 1:
			for user := range importers {
				t.Errorf("COHESION VIOLATION: 'core.%s' is used only by '%s'; move it there.", name, user)
			}
		}
	}
}

// cohesionAllowlist holds identifiers allowed a single consumer.
var cohesionAllowlist = map[string]bool{
	"Store":          true, // implemented in one place, consumed everywhere through it
	"ExportResponse": true, // wire envelope shared by server and client through JSON only
}
