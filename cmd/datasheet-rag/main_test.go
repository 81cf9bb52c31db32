package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/datasheet-rag/internal/rag"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCommand(&out, &errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// writeConfig points storage and logs at a temp dir and selects the offline embedder
func writeConfig(t *testing.T, extra string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := "storage:\n" +
		"  data_dir: " + dir + "\n" +
		"  upload_dir: " + filepath.Join(dir, "uploads") + "\n" +
		"  db_path: " + filepath.Join(dir, "rag.db") + "\n" +
		"embedding:\n" +
		"  provider: local\n" +
		"  api_key: secret-key\n" +
		"logging:\n" +
		"  file: \"\"\n" +
		"  console: false\n" + extra
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestVersionCommand(t *testing.T) {
	out, err := runCLI(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "Version: dev")
	assert.Contains(t, out, "SQLite Driver:")
}

func TestConfigShow_RedactsSecrets(t *testing.T) {
	cfg := writeConfig(t, "")

	out, err := runCLI(t, "--config", cfg, "--env-file", "", "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "provider: local")
	assert.NotContains(t, out, "secret-key")
}

func TestConfig_InvalidFileFails(t *testing.T) {
	cfg := writeConfig(t, "server:\n  port: -1\n")

	_, err := runCLI(t, "--config", cfg, "--env-file", "", "config", "show")
	assert.Error(t, err)
}

func TestSelfTest_ListsSuites(t *testing.T) {
	cfg := writeConfig(t, "")

	out, err := runCLI(t, "--config", cfg, "--env-file", "", "selftest")
	require.NoError(t, err)
	for _, name := range []string{"manufacturing", "general", "hallucination", "accuracy"} {
		assert.Contains(t, out, name)
	}
}

func TestIngestAndReindex(t *testing.T) {
	cfg := writeConfig(t, "")

	_, err := runCLI(t, "--config", cfg, "--env-file", "", "ingest")
	assert.Error(t, err, "ingest needs at least one file")

	missing := filepath.Join(t.TempDir(), "missing.pdf")
	out, err := runCLI(t, "--config", cfg, "--env-file", "", "ingest", missing)
	assert.Error(t, err)
	assert.True(t, strings.HasPrefix(out, "FAIL"), out)

	out, err = runCLI(t, "--config", cfg, "--env-file", "", "reindex")
	require.NoError(t, err)
	assert.Contains(t, out, "processed 0")
}

func TestAddFilterFlags(t *testing.T) {
	var f rag.DocumentFilter
	fs := pflag.NewFlagSet("ask", pflag.ContinueOnError)
	addFilterFlags(fs, &f)

	require.NoError(t, fs.Parse([]string{"--family", "DDR5,SSD", "--type", "manual", "--chunk-type", "table"}))
	assert.Equal(t, []string{"DDR5", "SSD"}, f.ProductFamilies)
	assert.Equal(t, []string{"manual"}, f.DocumentTypes)
	assert.Equal(t, []string{"table"}, f.ChunkTypes)
	assert.Empty(t, f.DocumentIDs)
}
