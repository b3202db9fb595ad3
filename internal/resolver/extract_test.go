package resolver

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractImports(t *testing.T) {
	file := filepath.Join("/proj", "app", "main.py")
	dir := filepath.Dir(file)

	tests := []struct {
		name string
		code string
		want []string // first candidate of each import
	}{
		{
			name: "plain import",
			code: "import os\n",
			want: []string{filepath.Join(dir, "os.py")},
		},
		{
			name: "dotted import",
			code: "import pkg.sub.mod\n",
			want: []string{filepath.Join(dir, "pkg", "sub", "mod.py")},
		},
		{
			name: "aliases and lists",
			code: "import a as b, c\n",
			want: []string{filepath.Join(dir, "a.py"), filepath.Join(dir, "c.py")},
		},
		{
			name: "from import",
			code: "from models.user import User\n",
			want: []string{filepath.Join(dir, "models", "user.py")},
		},
		{
			name: "relative from import",
			code: "from .helpers import x\nfrom ..shared import y\n",
			want: []string{filepath.Join(dir, "helpers.py"), filepath.Join("/proj", "shared.py")},
		},
		{
			name: "bare relative names",
			code: "from . import (one, two)\n",
			want: []string{filepath.Join(dir, "one.py"), filepath.Join(dir, "two.py")},
		},
		{
			name: "indented and commented",
			code: "    import inside_func  # lazy\n# import commented\nx = 'import nope'\n",
			want: []string{filepath.Join(dir, "inside_func.py")},
		},
		{
			name: "no imports",
			code: "print('hello')\n",
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			imports := ExtractImports(tt.code, file)
			var got []string
			for _, imp := range imports {
				got = append(got, imp.Candidates[0])
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtractImportsPackageFallback(t *testing.T) {
	imports := ExtractImports("import pkg\n", "/proj/main.py")
	if assert.Len(t, imports, 1) {
		assert.Equal(t, []string{
			filepath.Join("/proj", "pkg.py"),
			filepath.Join("/proj", "pkg", "__init__.py"),
		}, imports[0].Candidates)
		assert.Equal(t, "pkg", imports[0].Module)
	}
}
