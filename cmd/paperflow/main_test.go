package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paperflow/internal/domain"
	"paperflow/internal/pipeline"
	"paperflow/internal/repository/sqlite"
	"paperflow/internal/repository/sqlrepo"
)

var snapshot = strings.Join([]string{
	`{"id":"2101.00001","format_kind":"CURATED","title":"A Study","journal_ref":"J. Phys (2022)","submitted_date":"2021-01-01","categories":"cs.AI","authors_parsed":[["Smith","A.",""]],"abstract":"x"}`,
	`{"id":"2102.00003","format_kind":"CURATED","title":"Another","submitted_date":"2021-02-01","categories":"math.CO","authors_parsed":[["Doe","J.",""]],"abstract":"y"}`,
	`not json`,
}, "\n") + "\n"

func writeSnapshot(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "snapshot.json")
	require.NoError(t, os.WriteFile(path, []byte(snapshot), 0o644))
	return path
}

func execute(t *testing.T, args ...string) (pipeline.Summary, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())

	var summary pipeline.Summary
	if out.Len() > 0 && strings.HasPrefix(strings.TrimSpace(out.String()), "{") {
		require.NoError(t, json.Unmarshal(out.Bytes(), &summary))
	}
	return summary, out.String(), err
}

func TestHistoryCommand_WritesPartitions(t *testing.T) {
	input := writeSnapshot(t)
	output := t.TempDir()

	summary, _, err := execute(t, "history",
		"--input", input,
		"--output", output,
		"--format", "jsonl",
		"--state", "memory",
		"--chunk-size", "2",
		"--workers", "1",
		"--log-level", "error",
	)
	require.NoError(t, err)

	assert.Equal(t, domain.StageDone, summary.State)
	assert.Equal(t, domain.RunModeHistory, summary.Mode)
	assert.Equal(t, 3, summary.TotalRecords)
	assert.Equal(t, 1, summary.Rejected)
	assert.Equal(t, 2, summary.Papers)
	assert.Equal(t, 0, summary.FailedChunks)

	for _, dir := range []string{"year=2021/month=01/day=01", "year=2021/month=02/day=01"} {
		entries, err := os.ReadDir(filepath.Join(output, dir))
		require.NoError(t, err, dir)
		require.Len(t, entries, 1)
		assert.True(t, strings.HasSuffix(entries[0].Name(), ".jsonl"))
	}
}

func TestHistoryCommand_LimitAndResume(t *testing.T) {
	input := writeSnapshot(t)
	common := []string{"--output", t.TempDir(), "--format", "csv", "--state", "memory", "--chunk-size", "1", "--workers", "1", "--log-level", "error"}

	first, _, err := execute(t, append([]string{"history", "--input", input, "--limit-chunks", "1"}, common...)...)
	require.NoError(t, err)
	assert.Equal(t, 1, first.TotalRecords)
	require.Positive(t, first.Resume.Offset)

	rest, _, err := execute(t, append([]string{"history", "--input", input, "--offset", strconv.FormatInt(first.Resume.Offset, 10)}, common...)...)
	require.NoError(t, err)
	assert.Equal(t, 2, rest.TotalRecords)
	assert.Equal(t, first.Resume, rest.Start)
}

func TestHistoryCommand_ConfigFileWithLookupTable(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "state.db")
	cfgPath := filepath.Join(dir, "paperflow.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(strings.Join([]string{
		"pipeline:",
		"  workers: 1",
		"output:",
		"  path: " + filepath.Join(dir, "out"),
		"  format: parquet",
		"  lookup_table: true",
		"state:",
		"  backend: sqlite",
		"  sqlite_path: " + dbPath,
		"log:",
		"  level: error",
	}, "\n")), 0o644))

	summary, _, err := execute(t, "history", "--config", cfgPath, "--input", writeSnapshot(t))
	require.NoError(t, err)
	assert.Equal(t, domain.StageDone, summary.State)

	db, err := sqlite.Open(dbPath)
	require.NoError(t, err)
	defer db.Close()

	paper, err := sqlrepo.NewPaperRepo(db).GetByID(context.Background(), "2101.00001")
	require.NoError(t, err)
	assert.Equal(t, "A Study", paper.Title)

	prior, err := sqlrepo.NewPriorStateRepo(db).GetMany(context.Background(), []string{"2101.00001", "2102.00003"})
	require.NoError(t, err)
	assert.Len(t, prior, 2)
}

func TestHistoryCommand_MissingInput(t *testing.T) {
	_, _, err := execute(t, "history",
		"--input", filepath.Join(t.TempDir(), "absent.json"),
		"--state", "memory",
		"--log-level", "error",
	)
	assert.ErrorIs(t, err, domain.ErrInputNotFound)
}

func TestDailyCommand_InvalidRange(t *testing.T) {
	_, _, err := execute(t, "daily",
		"--input", t.TempDir(),
		"--from", "2024-01-02",
		"--to", "2024-01-01",
		"--state", "memory",
	)
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)
}

func TestDailyCommand_ReadsCollectorLayout(t *testing.T) {
	root := t.TempDir()
	day := filepath.Join(root, "arXiv", "2024-01-01")
	require.NoError(t, os.MkdirAll(day, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(day, "batch-0.json"), []byte(snapshot), 0o644))

	summary, _, err := execute(t, "daily",
		"--input", root,
		"--from", "2024-01-01",
		"--to", "2024-01-03",
		"--output", t.TempDir(),
		"--format", "jsonl",
		"--state", "memory",
		"--log-level", "error",
	)
	require.NoError(t, err)
	assert.Equal(t, domain.RunModeDaily, summary.Mode)
	assert.Equal(t, 3, summary.TotalRecords)
	assert.Equal(t, 2, summary.Papers)
}

func TestRootCommand_Help(t *testing.T) {
	_, out, err := execute(t)
	require.NoError(t, err)
	assert.Contains(t, out, "history")
	assert.Contains(t, out, "daily")
}
