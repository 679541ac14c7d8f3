package project

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/mod/modfile"
)

// ModuleInfo is what baseplate needs from an existing go.mod.
type ModuleInfo struct {
	Path      string // Module path (e.g., "github.com/user/repo")
	GoVersion string // Go version requirement (e.g., "1.25")
	Requires  []string
}

// DetectModule reads go.mod in dir. It returns (nil, nil) when the file
// does not exist yet, which is normal before the first generate.
func DetectModule(dir string) (*ModuleInfo, error) {
	modPath := filepath.Join(dir, "go.mod")
	data, err := os.ReadFile(modPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read go.mod: %w", err)
	}

	mf, err := modfile.ParseLax(modPath, data, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to parse go.mod: %w", err)
	}
	if mf.Module == nil {
		return nil, fmt.Errorf("go.mod in %s has no module directive", dir)
	}

	info := &ModuleInfo{Path: mf.Module.Mod.Path}
	if mf.Go != nil {
		info.GoVersion = mf.Go.Version
	}
	for _, r := range mf.Require {
		info.Requires = append(info.Requires, r.Mod.Path)
	}
	return info, nil
}

// ApplyModuleDefaults fills the module and goVersion keys of the root
// descriptor's config from info, leaving explicit values alone.
func ApplyModuleDefaults(def *Definition, info *ModuleInfo) {
	if info == nil {
		return
	}
	if def.Root.Config == nil {
		def.Root.Config = make(map[string]any)
	}
	if _, ok := def.Root.Config["module"]; !ok && info.Path != "" {
		def.Root.Config["module"] = info.Path
	}
	if _, ok := def.Root.Config["goVersion"]; !ok && info.GoVersion != "" {
		def.Root.Config["goVersion"] = info.GoVersion
	}
}
