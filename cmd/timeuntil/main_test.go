package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"timeuntil/internal/store"
)

func TestParseAt(t *testing.T) {
	seoul, err := time.LoadLocation("Asia/Seoul")
	require.NoError(t, err)

	got, err := parseAt("2026-05-01 09:30", seoul)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 5, 1, 0, 30, 0, 0, time.UTC).UnixMilli(), got.UnixMilli())

	got, err = parseAt("2026-05-01T09:30:00Z", seoul)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 5, 1, 9, 30, 0, 0, time.UTC).UnixMilli(), got.UnixMilli())

	_, err = parseAt("next friday", seoul)
	assert.Error(t, err)
}

func TestWriteTable_AlignsWideRunes(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeTable(&buf, []string{"ID", "NAME", "LEFT"}, [][]string{
		{"1", "생일", "2 days"},
		{"22", "Trip", "3 hours"},
	}))

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "ID  NAME  LEFT", lines[0])
	assert.Equal(t, "1   생일  2 days", lines[1])
	assert.Equal(t, "22  Trip  3 hours", lines[2])
}

// cli runs the binary entry point against a config in dir.
func cli(t *testing.T, dir string, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	full := append([]string{"-config", filepath.Join(dir, "config.yaml")}, args...)
	err := run(context.Background(), full, strings.NewReader(stdin), &out)
	return out.String(), err
}

func TestCLI_EventLifecycle(t *testing.T) {
	dir := t.TempDir()

	out, err := cli(t, dir, "", "add", "-name", "Anniversary", "-at", "2099-06-01 18:00", "-remind", "30")
	require.NoError(t, err)
	id := strings.TrimSpace(out)
	require.NotEmpty(t, id)

	_, err = os.Stat(filepath.Join(dir, "events.json"))
	require.NoError(t, err, "file backend stores next to the config")

	out, err = cli(t, dir, "", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "Anniversary")
	assert.Contains(t, out, "30m before")

	out, err = cli(t, dir, "", "edit", "-id", id, "-name", "Wedding anniversary", "-remind", "0")
	require.NoError(t, err)
	assert.Contains(t, out, "Reminder:  off")

	out, err = cli(t, dir, "", "show", "-id", id)
	require.NoError(t, err)
	assert.Contains(t, out, "Name:      Wedding anniversary")

	out, err = cli(t, dir, "", "duplicate", "-id", id)
	require.NoError(t, err)
	dupID := strings.TrimSpace(out)
	assert.NotEqual(t, id, dupID)

	out, err = cli(t, dir, "", "list", "-q", "copy")
	require.NoError(t, err)
	assert.Contains(t, out, "Wedding anniversary (Copy)")

	_, err = cli(t, dir, "", "delete", "-id", id)
	require.NoError(t, err)
	_, err = cli(t, dir, "", "show", "-id", id)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestCLI_Validation(t *testing.T) {
	dir := t.TempDir()

	_, err := cli(t, dir, "", "add", "-name", "x")
	assert.ErrorContains(t, err, "-at is required")

	_, err = cli(t, dir, "", "add", "-name", " ", "-at", "2099-01-01 00:00")
	assert.Error(t, err)

	_, err = cli(t, dir, "", "list", "-sort", "size")
	assert.Error(t, err)

	_, err = cli(t, dir, "", "frobnicate")
	assert.ErrorContains(t, err, "unknown command")
}

func TestCLI_ExportImport(t *testing.T) {
	src := t.TempDir()
	_, err := cli(t, src, "", "add", "-name", "Launch", "-at", "2099-01-01T00:00:00Z", "-remind", "60")
	require.NoError(t, err)

	icsPath := filepath.Join(src, "out.ics")
	_, err = cli(t, src, "", "export", "-o", icsPath)
	require.NoError(t, err)

	body, err := os.ReadFile(icsPath)
	require.NoError(t, err)
	assert.Contains(t, string(body), "SUMMARY:Launch")

	dst := t.TempDir()
	out, err := cli(t, dst, string(body), "import")
	require.NoError(t, err)
	assert.Equal(t, "added 1, updated 0\n", out)

	out, err = cli(t, dst, string(body), "import")
	require.NoError(t, err)
	assert.Equal(t, "added 0, updated 1\n", out)

	out, err = cli(t, dst, "", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "Launch")
	assert.Contains(t, out, "60m before")
}

func TestCLI_Widgets(t *testing.T) {
	dir := t.TempDir()
	out, err := cli(t, dir, "", "add", "-name", "Exam", "-at", "2099-03-01 09:00")
	require.NoError(t, err)
	id := strings.TrimSpace(out)

	_, err = cli(t, dir, "", "widget", "bind", "-widget", "4", "-event", id)
	require.NoError(t, err)

	_, err = cli(t, dir, "", "widget", "bind", "-widget", "5", "-event", "12345")
	assert.ErrorIs(t, err, store.ErrNotFound)

	out, err = cli(t, dir, "", "widget", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "Exam")
	assert.Contains(t, out, id)

	_, err = cli(t, dir, "", "widget", "unbind", "-widget", "4")
	require.NoError(t, err)
	out, err = cli(t, dir, "", "widget", "list")
	require.NoError(t, err)
	assert.NotContains(t, out, "Exam")

	_, err = cli(t, dir, "", "widget")
	assert.Error(t, err)
}
