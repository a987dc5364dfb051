package updatefs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func write(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(root, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

func read(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestFirstInstall(t *testing.T) {
	root := t.TempDir()
	newDir := filepath.Join(root, "v1")
	target := filepath.Join(root, "live")
	write(t, newDir, map[string]string{
		"server.jar":               "jar",
		"config/server.properties": "port=1",
		"libs/a.jar":               "a",
	})
	copyPats, err := Compile([]string{"config/"})
	require.NoError(t, err)
	linkPats, err := Compile([]string{"libs/"})
	require.NoError(t, err)

	report, err := Update("", newDir, target, Options{Copy: copyPats, LinkDir: linkPats})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"server.jar", "libs"}, report.Linked)
	assert.Equal(t, []string{"config/server.properties"}, report.Copied)

	link, err := os.Readlink(filepath.Join(target, "server.jar"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(newDir, "server.jar"), link)
	link, err = os.Readlink(filepath.Join(target, "libs"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(newDir, "libs"), link)

	info, err := os.Lstat(filepath.Join(target, "config", "server.properties"))
	require.NoError(t, err)
	assert.True(t, info.Mode().IsRegular())
	assert.Equal(t, "port=1", read(t, filepath.Join(target, "config", "server.properties")))
}

func TestUpgradeKeepsLocalChanges(t *testing.T) {
	root := t.TempDir()
	oldDir := filepath.Join(root, "v1")
	newDir := filepath.Join(root, "v2")
	target := filepath.Join(root, "live")
	write(t, oldDir, map[string]string{
		"a.txt":                    "1",
		"gone.txt":                 "g",
		"edited-gone.txt":          "e",
		"config/server.properties": "p1",
		"config/ops.txt":           "same",
	})
	write(t, newDir, map[string]string{
		"a.txt":                    "2",
		"b.txt":                    "b",
		"config/server.properties": "p2",
		"config/ops.txt":           "new ops",
	})
	write(t, target, map[string]string{
		"gone.txt":                 "g",
		"edited-gone.txt":          "LOCAL",
		"config/server.properties": "local edits",
		"config/ops.txt":           "same",
		"world/level.dat":          "game data",
	})
	require.NoError(t, os.Symlink(filepath.Join(oldDir, "a.txt"), filepath.Join(target, "a.txt")))

	copyPats, err := Compile([]string{"config/"})
	require.NoError(t, err)
	report, err := Update(oldDir, newDir, target, Options{Copy: copyPats})
	require.NoError(t, err)

	assert.NoFileExists(t, filepath.Join(target, "gone.txt"))
	assert.Equal(t, "LOCAL", read(t, filepath.Join(target, "edited-gone.txt"+SuffixLocal)))
	assert.NoFileExists(t, filepath.Join(target, "edited-gone.txt"))
	assert.Equal(t, "game data", read(t, filepath.Join(target, "world", "level.dat")))

	link, err := os.Readlink(filepath.Join(target, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(newDir, "a.txt"), link)
	assert.Equal(t, "b", read(t, filepath.Join(target, "b.txt")))

	props := filepath.Join(target, "config", "server.properties")
	assert.Equal(t, "local edits", read(t, props))
	assert.Equal(t, "p2", read(t, props+SuffixNew))
	assert.Equal(t, "p1", read(t, props+SuffixOld))
	assert.Equal(t, "new ops", read(t, filepath.Join(target, "config", "ops.txt")), "unchanged local copy is replaced")

	assert.Contains(t, report.Removed, "gone.txt")
	assert.Contains(t, report.Kept, "edited-gone.txt"+SuffixLocal)
	assert.ElementsMatch(t, []string{"config/server.properties" + SuffixNew, "config/server.properties" + SuffixOld}, report.Sidecars)
}

func TestSidecarsAreIgnored(t *testing.T) {
	root := t.TempDir()
	oldDir := filepath.Join(root, "v1")
	newDir := filepath.Join(root, "v2")
	target := filepath.Join(root, "live")
	write(t, oldDir, map[string]string{"x.~old": "o"})
	write(t, newDir, map[string]string{"y": "y"})
	write(t, target, map[string]string{"x.~old": "o", "z.~local": "l"})

	_, err := Update(oldDir, newDir, target, Options{})
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(target, "x.~old"))
	assert.FileExists(t, filepath.Join(target, "z.~local"))
}

func TestCompile(t *testing.T) {
	pats, err := Compile([]string{"conf.*/"})
	require.NoError(t, err)
	assert.True(t, matchAny(pats, "config/"))
	assert.False(t, matchAny(pats, "a/config/"), "patterns are anchored at the root")

	_, err = Compile([]string{"("})
	assert.Error(t, err)
}

func TestUpdateRejectsMissingNewTree(t *testing.T) {
	_, err := Update("", filepath.Join(t.TempDir(), "nope"), t.TempDir(), Options{})
	assert.Error(t, err)
}
