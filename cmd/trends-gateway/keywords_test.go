package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/trends-gateway/internal/trends"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func decodeResults(t *testing.T, out string) []trends.KeywordDiagnostic {
	t.Helper()
	var report struct {
		Results []trends.KeywordDiagnostic `json:"results"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	return report.Results
}

func TestKeywordsCommandBattery(t *testing.T) {
	t.Setenv("PORT", "")
	out, err := runCLI(t, "keywords")
	require.NoError(t, err)

	results := decodeResults(t, out)
	require.Len(t, results, 6)
	require.Equal(t, []string{"AI", "machine learning", "data science"}, results[5].Output)
}

func TestKeywordsCommandArgs(t *testing.T) {
	t.Setenv("PORT", "")
	out, err := runCLI(t, "keywords", "go|rust", "   ")
	require.NoError(t, err)

	results := decodeResults(t, out)
	require.Len(t, results, 2)
	require.Equal(t, []string{"go", "rust"}, results[0].Output)
	require.Equal(t, []string{"AI"}, results[1].Output)
}

func TestKeywordsCommandUsesConfiguredDefault(t *testing.T) {
	t.Setenv("PORT", "")
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("gateway:\n  default_keyword: golang\n"), 0o600))

	out, err := runCLI(t, "--config", path, "keywords", "")
	require.NoError(t, err)
	require.Equal(t, []string{"golang"}, decodeResults(t, out)[0].Output)
}

func TestServeRejectsMissingConfig(t *testing.T) {
	_, err := runCLI(t, "serve", "--config", filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorContains(t, err, "load config")
}
