package smbc

import "runtime/debug"

// version is overridden at build time with
// -ldflags "-X github.com/marmos91/smbc/pkg/smbc.version=..."
var version = ""

// Version returns the library version. Without an ldflags override it falls
// back to the module version recorded in the build info, then to "dev".
func Version() string {
	if version != "" {
		return version
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, dep := range info.Deps {
			if dep.Path == "github.com/marmos91/smbc" && dep.Version != "" {
				return dep.Version
			}
		}
		if v := info.Main.Version; info.Main.Path == "github.com/marmos91/smbc" && v != "" && v != "(devel)" {
			return v
		}
	}
	return "dev"
}
