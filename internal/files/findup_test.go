package files

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindUp(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b", "c")
	require.NoError(t, os.MkdirAll(nested, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "a", "excel_reader.py"), nil, 0o644))

	cases := []struct {
		name   string
		file   string
		dir    string
		expDir string
	}{
		{name: "found in a parent", file: "excel_reader.py", dir: nested, expDir: filepath.Join(root, "a")},
		{name: "found in dir", file: "excel_reader.py", dir: filepath.Join(root, "a"), expDir: filepath.Join(root, "a")},
		{name: "directories match too", file: "b", dir: nested, expDir: filepath.Join(root, "a")},
		{name: "not found", file: "missing-worker-script.py", dir: nested, expDir: ""},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			dir, err := FindUp(c.file, c.dir)
			require.NoError(t, err)
			assert.Equal(t, c.expDir, dir)
		})
	}
}
