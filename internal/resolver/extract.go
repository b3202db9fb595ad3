package resolver

import (
	"path/filepath"
	"strings"
)

// SourceExt is the extension appended to module paths when mapping imports to files.
const SourceExt = ".py"

// Import is one module reference found in a source file, with the files
// it may live in, most specific first.
type Import struct {
	Module     string
	Candidates []string
}

// ExtractImports scans code line by line for static import statements and
// maps each module to candidate paths relative to the directory of file.
//
// Recognised forms:
//
//	import a.b
//	import a.b as c, d
//	from a.b import c
//	from .a import b
//	from .. import a, b
func ExtractImports(code, file string) []Import {
	baseDir := filepath.Dir(file)

	var imports []Import
	for _, raw := range strings.Split(code, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if i := strings.Index(line, "#"); i >= 0 {
			line = strings.TrimSpace(line[:i])
		}

		switch {
		case strings.HasPrefix(line, "import "):
			for _, module := range splitNames(strings.TrimPrefix(line, "import ")) {
				imports = append(imports, moduleImport(baseDir, module))
			}

		case strings.HasPrefix(line, "from "):
			rest := strings.TrimSpace(strings.TrimPrefix(line, "from "))
			fields := strings.Fields(rest)
			if len(fields) == 0 {
				continue
			}
			module := fields[0]
			trimmed := strings.TrimLeft(module, ".")
			if trimmed != "" {
				imports = append(imports, moduleImport(baseDir, module))
				continue
			}

			// "from . import a, b": each name is a sibling module.
			idx := strings.Index(rest, " import ")
			if idx < 0 {
				continue
			}
			for _, name := range splitNames(rest[idx+len(" import "):]) {
				imports = append(imports, moduleImport(baseDir, module+name))
			}
		}
	}

	return imports
}

// splitNames turns "a.b as c, d" or "(a, b)" into ["a.b", "d"] / ["a", "b"].
func splitNames(list string) []string {
	list = strings.Trim(strings.TrimSpace(list), "()\\")

	var names []string
	for _, part := range strings.Split(list, ",") {
		fields := strings.Fields(part)
		if len(fields) == 0 || fields[0] == "*" {
			continue
		}
		names = append(names, fields[0])
	}
	return names
}

// moduleImport maps a possibly relative dotted module name to candidate files.
// Leading dots climb directories the way relative imports do: one dot is the
// importing file's own directory, each additional dot is one level up.
func moduleImport(baseDir, module string) Import {
	dir := baseDir
	name := module
	if strings.HasPrefix(name, ".") {
		dots := len(name) - len(strings.TrimLeft(name, "."))
		for i := 1; i < dots; i++ {
			dir = filepath.Dir(dir)
		}
		name = name[dots:]
	}

	rel := filepath.FromSlash(strings.ReplaceAll(name, ".", "/"))
	return Import{
		Module: module,
		Candidates: []string{
			filepath.Join(dir, rel+SourceExt),
			filepath.Join(dir, rel, "__init__"+SourceExt),
		},
	}
}
