package executor_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/romtool/collator/pkg/executor"
	"github.com/romtool/collator/pkg/plan"
	"github.com/romtool/collator/pkg/progress"
	"github.com/romtool/collator/pkg/romset"
)

func writeFile(t *testing.T, path, contents string) {
	t.Helper()

	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
}

func TestExecutorRunsCopyAction(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	srcPath := filepath.Join(dir, "in.rom")
	dstPath := filepath.Join(dir, "out", "in.rom")

	writeFile(t, srcPath, "rom data")

	p := &plan.Plan{Actions: []romset.Action{
		{Kind: romset.ActionCopy, Source: romset.RawRecord{SourcePath: srcPath}, Destination: dstPath},
	}}

	e := executor.New(nil, dir, 2)
	result := e.Run(context.Background(), p)

	assert.Equal(t, 1, result.Succeeded)
	assert.Equal(t, 0, result.Failed)

	got, err := os.ReadFile(dstPath)
	require.NoError(t, err)
	assert.Equal(t, "rom data", string(got))
}

func TestExecutorRunsMoveActionRemovesSource(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	srcPath := filepath.Join(dir, "in.rom")
	dstPath := filepath.Join(dir, "out", "in.rom")

	writeFile(t, srcPath, "rom data")

	p := &plan.Plan{Actions: []romset.Action{
		{Kind: romset.ActionMove, Source: romset.RawRecord{SourcePath: srcPath}, Destination: dstPath},
	}}

	e := executor.New(nil, dir, 1)
	result := e.Run(context.Background(), p)

	assert.Equal(t, 1, result.Succeeded)
	_, err := os.Stat(srcPath)
	assert.True(t, os.IsNotExist(err))

	got, err := os.ReadFile(dstPath)
	require.NoError(t, err)
	assert.Equal(t, "rom data", string(got))
}

func TestExecutorRunsHardLinkAction(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	srcPath := filepath.Join(dir, "in.rom")
	dstPath := filepath.Join(dir, "out", "in.rom")

	writeFile(t, srcPath, "rom data")

	p := &plan.Plan{Actions: []romset.Action{
		{
			Kind:        romset.ActionLink,
			Source:      romset.RawRecord{SourcePath: srcPath},
			Destination: dstPath,
			LinkMode:    romset.LinkHard,
		},
	}}

	e := executor.New(nil, dir, 1)
	result := e.Run(context.Background(), p)

	assert.Equal(t, 1, result.Succeeded)

	got, err := os.ReadFile(dstPath)
	require.NoError(t, err)
	assert.Equal(t, "rom data", string(got))
}

func TestExecutorSkipsDemotedActions(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	p := &plan.Plan{Actions: []romset.Action{
		{Kind: romset.ActionCopy, Destination: filepath.Join(dir, "out.rom"), Reason: "collision"},
	}}

	e := executor.New(nil, dir, 1)
	result := e.Run(context.Background(), p)

	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, 0, result.Succeeded)
}

func TestExecutorEmitsReportDocument(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	reportPath := filepath.Join(dir, "report.json")

	p := &plan.Plan{
		Actions: []romset.Action{
			{Kind: romset.ActionEmitReport, Destination: reportPath, Format: "json"},
		},
		Diagnostics: []plan.Diagnostic{
			{Kind: plan.Conflict, Path: "dup.rom", Message: "destination collision"},
		},
	}

	e := executor.New(nil, dir, 1)
	result := e.Run(context.Background(), p)
	require.Equal(t, 1, result.Succeeded)

	data, err := os.ReadFile(reportPath)
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.NotEmpty(t, doc["diagnostics"])
}

func TestExecutorEmitsPlaylist(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	playlistPath := filepath.Join(dir, "collection.m3u")

	p := &plan.Plan{Actions: []romset.Action{
		{
			Kind:            romset.ActionEmitPlaylist,
			Destination:     playlistPath,
			PlaylistEntries: []string{"game1.zip", "game2.zip"},
		},
	}}

	e := executor.New(nil, dir, 1)
	result := e.Run(context.Background(), p)
	require.Equal(t, 1, result.Succeeded)

	data, err := os.ReadFile(playlistPath)
	require.NoError(t, err)
	assert.Equal(t, "game1.zip\ngame2.zip\n", string(data))
}

func TestExecutorCleanDeletesDestination(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	target := filepath.Join(dir, "stale.rom")
	writeFile(t, target, "stale")

	p := &plan.Plan{Actions: []romset.Action{
		{Kind: romset.ActionCleanDelete, Destination: target},
	}}

	e := executor.New(nil, dir, 1)
	result := e.Run(context.Background(), p)
	require.Equal(t, 1, result.Succeeded)

	_, err := os.Stat(target)
	assert.True(t, os.IsNotExist(err))
}

func TestExecutorReportsFailureForMissingSource(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	p := &plan.Plan{Actions: []romset.Action{
		{
			Kind:        romset.ActionCopy,
			Source:      romset.RawRecord{SourcePath: filepath.Join(dir, "missing.rom")},
			Destination: filepath.Join(dir, "out.rom"),
		},
	}}

	e := executor.New(nil, dir, 1)
	result := e.Run(context.Background(), p)

	assert.Equal(t, 1, result.Failed)
	require.Len(t, result.Errors, 1)
}

func TestExecutorRunsZipIntoAction(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	member1 := filepath.Join(dir, "a.rom")
	member2 := filepath.Join(dir, "b.rom")
	writeFile(t, member1, "aaaa")
	writeFile(t, member2, "bbbb")

	dstPath := filepath.Join(dir, "collection.zip")

	p := &plan.Plan{Actions: []romset.Action{
		{
			Kind:        romset.ActionZipInto,
			Destination: dstPath,
			ZipMembers: []romset.ZipMember{
				{Record: romset.RawRecord{SourcePath: member1}, EntryName: "a.rom"},
				{Record: romset.RawRecord{SourcePath: member2}, EntryName: "b.rom"},
			},
		},
	}}

	e := executor.New(nil, dir, 1)
	result := e.Run(context.Background(), p)
	require.Equal(t, 1, result.Succeeded)

	info, err := os.Stat(dstPath)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}

func TestExecutorRunsPatchAction(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	srcPath := filepath.Join(dir, "in.rom")
	patchPath := filepath.Join(dir, "delta.ips")
	dstPath := filepath.Join(dir, "out.rom")

	writeFile(t, srcPath, "AAAAAAAAAA")

	var p1 []byte
	p1 = append(p1, "PATCH"...)
	p1 = append(p1, 0x00, 0x00, 0x00, 0x00, 0x02)
	p1 = append(p1, "BB"...)
	p1 = append(p1, "EOF"...)
	require.NoError(t, os.WriteFile(patchPath, p1, 0o644))

	pl := &plan.Plan{Actions: []romset.Action{
		{
			Kind:        romset.ActionPatch,
			Source:      romset.RawRecord{SourcePath: srcPath},
			Destination: dstPath,
			PatchPath:   patchPath,
			PatchKind:   "IPS",
		},
	}}

	e := executor.New(nil, dir, 1)
	result := e.Run(context.Background(), pl)
	require.Equal(t, 1, result.Succeeded)

	got, err := os.ReadFile(dstPath)
	require.NoError(t, err)
	assert.Equal(t, "BBAAAAAAAA", string(got))
}

func TestExecutorPublishesProgressEvents(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	srcPath := filepath.Join(dir, "in.rom")
	dstPath := filepath.Join(dir, "out.rom")
	writeFile(t, srcPath, "data")

	bus := progress.New(8)
	ring := progress.NewRingSink(8)
	bus.AddSink(ring)

	ctx, cancel := context.WithCancel(context.Background())
	go bus.Run(ctx)

	p := &plan.Plan{Actions: []romset.Action{
		{Kind: romset.ActionCopy, Source: romset.RawRecord{SourcePath: srcPath}, Destination: dstPath},
	}}

	e := executor.New(bus, dir, 1)
	result := e.Run(ctx, p)
	require.Equal(t, 1, result.Succeeded)

	bus.Close()
	cancel()

	require.Eventually(t, func() bool {
		return len(ring.Snapshot()) == 2
	}, time.Second, time.Millisecond)
}
