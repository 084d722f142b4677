package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	billy "github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/gitstore/format/commitgraph"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	root1 = "cccc00000000000000000000000000000000000a"
	tree1 = "dddd00000000000000000000000000000000000a"
	child = "eeee00000000000000000000000000000000000a"
	tree2 = "ffff00000000000000000000000000000000000a"
)

func writeDump(t *testing.T, dir string, lines ...string) string {
	t.Helper()
	path := filepath.Join(dir, "parents.dump")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644))
	return path
}

func TestRebuildCommitGraphWritesGraph(t *testing.T) {
	dir := t.TempDir()
	dump := writeDump(t,
		dir,
		root1+" "+tree1+" 1000000000 -",
		child+" "+tree2+" 1000000100 "+root1,
	)

	var stdout, stderr bytes.Buffer
	code := run([]string{"-git-dir", dir, "-parents", dump}, &stdout, &stderr)
	assert.Equal(t, 0, code, "stderr: %s", stderr.String())
	assert.Contains(t, stdout.String(), "wrote 2 commits")

	fs := billy.New(dir)
	f, err := fs.Open("objects/info/commit-graph")
	require.NoError(t, err)
	fi, err := fs.Stat("objects/info/commit-graph")
	require.NoError(t, err)
	idx, err := commitgraph.OpenFileIndex(f, fi.Size())
	require.NoError(t, err)
	defer idx.Close()
	assert.Equal(t, uint32(2), idx.Len())
}

func TestRebuildCommitGraphRefusesWithoutForce(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "objects", "info"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "objects", "info", "commit-graph"), []byte("existing"), 0o644))

	dump := writeDump(t, dir, root1+" "+tree1+" 1000000000 -")

	var stdout, stderr bytes.Buffer
	code := run([]string{"-git-dir", dir, "-parents", dump}, &stdout, &stderr)
	assert.NotEqual(t, 0, code)
	assert.Contains(t, stderr.String(), "-force=yes")

	got, err := os.ReadFile(filepath.Join(dir, "objects", "info", "commit-graph"))
	require.NoError(t, err)
	assert.Equal(t, "existing", string(got))
}

func TestRebuildCommitGraphDetectsCycle(t *testing.T) {
	dir := t.TempDir()
	dump := writeDump(t,
		dir,
		root1+" "+tree1+" 1000000000 "+child,
		child+" "+tree2+" 1000000100 "+root1,
	)

	var stdout, stderr bytes.Buffer
	code := run([]string{"-git-dir", dir, "-parents", dump}, &stdout, &stderr)
	assert.NotEqual(t, 0, code)
	assert.Contains(t, stderr.String(), "cycle")
}
