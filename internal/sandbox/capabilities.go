package sandbox

import (
	"fmt"
	"sort"
	"strings"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"
)

// Capabilities is the explicit allow-list of packages a script may import.
// Everything not listed is denied: the interpreter only ever loads symbols
// for listed packages, so a new package appearing in the underlying stdlib
// cannot silently become reachable. Import statements are additionally
// validated before evaluation so the caller gets a capability error rather
// than an interpreter resolution failure.
type Capabilities struct {
	packages map[string]bool
}

// defaultImports is the standard allow-list: arithmetic, string and
// collection helpers, iteration support and a bounded set of encoders.
// Process, filesystem, network and unsafe packages are never listed.
var defaultImports = []string{
	"bytes",
	"encoding/base64",
	"encoding/json",
	"errors",
	"fmt",
	"math",
	"regexp",
	"sort",
	"strconv",
	"strings",
	"time",
	"unicode",
	"unicode/utf8",
}

// DefaultCapabilities returns the standard allow-list.
func DefaultCapabilities() *Capabilities {
	return NewCapabilities(defaultImports)
}

// NewCapabilities builds an allow-list from explicit import paths.
func NewCapabilities(imports []string) *Capabilities {
	pkgs := make(map[string]bool, len(imports))
	for _, path := range imports {
		pkgs[path] = true
	}
	return &Capabilities{packages: pkgs}
}

// Allows reports whether scripts may import the given path.
func (c *Capabilities) Allows(path string) bool {
	return c.packages[path]
}

// Packages returns the sorted allow-list, for error messages.
func (c *Capabilities) Packages() []string {
	pkgs := make([]string, 0, len(c.packages))
	for path := range c.packages {
		pkgs = append(pkgs, path)
	}
	sort.Strings(pkgs)
	return pkgs
}

// symbols returns the yaegi symbol subset for the allowed packages only.
func (c *Capabilities) symbols() interp.Exports {
	restricted := make(interp.Exports, len(c.packages))
	for path := range c.packages {
		key := symbolKey(path)
		if syms, ok := stdlib.Symbols[key]; ok {
			restricted[key] = syms
		}
	}
	return restricted
}

// symbolKey maps an import path to its yaegi symbol table key,
// e.g. "encoding/json" -> "encoding/json/json".
func symbolKey(path string) string {
	base := path
	if i := strings.LastIndex(path, "/"); i >= 0 {
		base = path[i+1:]
	}
	return path + "/" + base
}

// DeniedImports scans the script's import statements and returns the paths
// outside the allow-list, in order of appearance.
func (c *Capabilities) DeniedImports(code string) []string {
	var denied []string
	for _, path := range scanImports(code) {
		if path == "kernel" || path == "oracle" {
			continue // kernel primitives, always available
		}
		if !c.Allows(path) {
			denied = append(denied, path)
		}
	}
	return denied
}

// DeniedError formats the capability failure for a set of denied imports.
func (c *Capabilities) DeniedError(denied []string) string {
	return fmt.Sprintf("forbidden imports: %s (allowed: %s)",
		strings.Join(denied, ", "), strings.Join(c.Packages(), ", "))
}

// scanImports extracts import paths from source text. It understands both
// grouped and single-line forms, including aliased and dot imports.
func scanImports(code string) []string {
	var paths []string
	inBlock := false
	for _, line := range strings.Split(code, "\n") {
		trimmed := strings.TrimSpace(line)

		if inBlock {
			if strings.HasPrefix(trimmed, ")") {
				inBlock = false
				continue
			}
			if path, ok := importPath(trimmed); ok {
				paths = append(paths, path)
			}
			continue
		}

		if strings.HasPrefix(trimmed, "import (") {
			inBlock = true
			rest := strings.TrimSpace(strings.TrimPrefix(trimmed, "import ("))
			if path, ok := importPath(rest); ok {
				paths = append(paths, path)
			}
			continue
		}
		if strings.HasPrefix(trimmed, "import ") {
			rest := strings.TrimSpace(strings.TrimPrefix(trimmed, "import "))
			if path, ok := importPath(rest); ok {
				paths = append(paths, path)
			}
		}
	}
	return paths
}

// importPath parses one import spec line, tolerating an alias or dot
// prefix, and returns the quoted path.
func importPath(spec string) (string, bool) {
	spec = strings.TrimSpace(spec)
	if spec == "" || strings.HasPrefix(spec, "//") {
		return "", false
	}
	// Strip alias / dot / blank identifier.
	if !strings.HasPrefix(spec, `"`) {
		fields := strings.Fields(spec)
		if len(fields) < 2 {
			return "", false
		}
		spec = fields[1]
	}
	spec = strings.TrimSuffix(spec, ";")
	if !strings.HasPrefix(spec, `"`) {
		return "", false
	}
	path := strings.Trim(spec, `"`)
	if path == "" {
		return "", false
	}
	return path, true
}
