package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/panbanda/excise/pkg/config"
	"github.com/panbanda/excise/pkg/patch"
	"github.com/pelletier/go-toml"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const widget = "public class C{public void A(){B();}public void B(){}}"

// execute runs the CLI with args and returns what it wrote to stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(append([]string{"--no-progress", "--output", ""}, args...))
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
	})
	err := rootCmd.Execute()
	return out.String(), err
}

func writeSource(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestGetPaths(t *testing.T) {
	assert.Equal(t, []string{"."}, getPaths(nil))
	assert.Equal(t, []string{"/foo", "/bar"}, getPaths([]string{"/foo", "/bar"}))
}

func TestUnusedCommand(t *testing.T) {
	dir := t.TempDir()
	writeSource(t, dir, "App/App.csproj", "<Project />")
	writeSource(t, dir, "App/C.cs", widget)

	out, err := execute(t, "unused", "--format", "json", "--transitive=false", "--stats", dir)
	require.NoError(t, err)

	var result unusedResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	require.Len(t, result.Unused, 1)
	assert.Equal(t, "C.A/0", result.Unused[0].Method)
	assert.Equal(t, "App", result.Unused[0].Module)
	assert.Equal(t, 1, result.Unused[0].Line)
	require.NotNil(t, result.Stats)
	assert.Equal(t, 2, result.Stats.Declarations)
	assert.Equal(t, 1, result.Stats.Resolved)
}

func TestUnusedCommandNoSources(t *testing.T) {
	_, err := execute(t, "unused", "--format", "json", t.TempDir())
	assert.NoError(t, err)
}

func TestPruneDryRunLeavesFiles(t *testing.T) {
	dir := t.TempDir()
	path := writeSource(t, dir, "C.cs", widget)

	out, err := execute(t, "prune", "--format", "json", "--apply=false", "--transitive=false", dir)
	require.NoError(t, err)

	var plan patch.Plan
	require.NoError(t, json.Unmarshal([]byte(out), &plan))
	assert.False(t, plan.Applied)
	assert.Equal(t, 1, plan.Removed)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, widget, string(data))
}

func TestPruneApply(t *testing.T) {
	dir := t.TempDir()
	path := writeSource(t, dir, "C.cs", widget)

	_, err := execute(t, "prune", "--format", "json", "--apply", "--force", "--transitive=false", dir)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "public class C{public void B(){}}", string(data))
}

func TestPruneTransitive(t *testing.T) {
	dir := t.TempDir()
	path := writeSource(t, dir, "K.cs", `class K
{
    static void Main() { }

    void A() { B(); }

    void B() { }
}
`)

	_, err := execute(t, "prune", "--format", "json", "--apply", "--force", "--transitive", dir)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "class K\n{\n    static void Main() { }\n}\n", string(data))
}

func TestReportCommand(t *testing.T) {
	dir := t.TempDir()
	path := writeSource(t, dir, "src/C.cs", widget)
	report := writeSource(t, dir, "inspect.xml", `<?xml version="1.0" encoding="utf-8"?>
<Report ToolsVersion="2023.3">
  <IssueTypes>
    <IssueType Id="UnusedMember.Global" Category="Potential Code Quality Issues" Severity="SUGGESTION" />
  </IssueTypes>
  <Issues>
    <Project Name="App">
      <Issue TypeId="UnusedMember.Global" File="src\C.cs" Offset="27-28" Line="1" Message="Method 'A' is never used" />
      <Issue TypeId="RedundantUsingDirective" File="src\C.cs" Offset="0-6" Line="1" Message="Using directive is not required" />
    </Project>
  </Issues>
</Report>`)

	t.Run("dry run", func(t *testing.T) {
		out, err := execute(t, "report", "--format", "json", "--apply=false", "--base", "", "--prefix", "", report)
		require.NoError(t, err)

		var plan patch.Plan
		require.NoError(t, json.Unmarshal([]byte(out), &plan))
		assert.Equal(t, 1, plan.Removed)
		require.Len(t, plan.Files, 1)
		assert.Equal(t, "A", plan.Files[0].Removed[0].Name)

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, widget, string(data))
	})

	t.Run("apply", func(t *testing.T) {
		_, err := execute(t, "report", "--format", "json", "--apply", "--force", "--base", dir, "--prefix", "UnusedMember.", report)
		require.NoError(t, err)

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, "public class C{public void B(){}}", string(data))
	})

	t.Run("rerun is a no-op", func(t *testing.T) {
		out, err := execute(t, "report", "--format", "json", "--apply", "--force", "--base", dir, "--prefix", "UnusedMember.", report)
		require.NoError(t, err)

		var plan patch.Plan
		require.NoError(t, json.Unmarshal([]byte(out), &plan))
		assert.Zero(t, plan.Removed)
		assert.Equal(t, 1, plan.Skipped)

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, "public class C{public void B(){}}", string(data))
	})
}

func TestReportCommandMalformed(t *testing.T) {
	dir := t.TempDir()
	report := writeSource(t, dir, "bad.xml", `<Report><Issues><Project Name="P">
<Issue TypeId="UnusedMember.Global" File="a.cs" Offset="abc-20" Line="1" />
</Project></Issues></Report>`)

	_, err := execute(t, "report", "--format", "json", "--skip-malformed=false", "--apply=false", "--base", "", "--prefix", "", report)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "malformed report")
}

func TestInitCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "excise.toml")

	// --output is reset by execute, so pass it after
	out, err := execute(t, "init", "--force=false", "--output", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Created")

	loaded, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, config.DefaultConfig(), loaded)

	_, err = execute(t, "init", "--force=false", "--output", path)
	assert.ErrorContains(t, err, "already exists")

	_, err = execute(t, "init", "--force", "--output", path)
	assert.NoError(t, err)
}

func TestGenerateDefaultConfig(t *testing.T) {
	content, err := generateDefaultConfig()
	require.NoError(t, err)

	tree, err := toml.Load(content)
	require.NoError(t, err)
	assert.Equal(t, "UnusedMember.", tree.Get("report.category_prefix"))
	assert.Equal(t, true, tree.Get("patch.require_clean"))
}
