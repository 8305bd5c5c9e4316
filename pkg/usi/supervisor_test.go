package usi

import (
	"context"
	"testing"
	"time"

	"github.com/sekiba/kifuroom/pkg/kifuerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseInfoLine(t *testing.T) {
	pv, ok := parseInfoLine("info depth 12 seldepth 18 nodes 2124 nps 34928 hashfull 120 score cp 214 pv 7g7f 3c3d")
	require.True(t, ok)
	assert.Equal(t, 1, pv.PVIndex) // no "multipv" token -> default index 1
	assert.Equal(t, 12, pv.Depth)
	seldepth, ok := pv.SelDepth.V()
	require.True(t, ok)
	assert.Equal(t, 18, seldepth)
	nodes, ok := pv.Nodes.V()
	require.True(t, ok)
	assert.Equal(t, uint64(2124), nodes)
	nps, ok := pv.NPS.V()
	require.True(t, ok)
	assert.Equal(t, uint64(34928), nps)
	hashfull, ok := pv.HashFull.V()
	require.True(t, ok)
	assert.Equal(t, 120, hashfull)
	assert.Equal(t, "cp", pv.ScoreType)
	assert.Equal(t, 214, pv.ScoreValue)
	assert.Equal(t, []string{"7g7f", "3c3d"}, pv.PVUSI)
}

func TestParseInfoLineMultiPVAndMate(t *testing.T) {
	pv, ok := parseInfoLine("info multipv 2 depth 4 score mate -3 pv 5e5d")
	require.True(t, ok)
	assert.Equal(t, 2, pv.PVIndex)
	assert.Equal(t, "mate", pv.ScoreType)
	assert.Equal(t, -3, pv.ScoreValue)
}

func TestParseInfoLineStringStopsFieldParsing(t *testing.T) {
	pv, ok := parseInfoLine("info string depth 99 is not a depth field")
	require.True(t, ok)
	assert.Equal(t, 0, pv.Depth)
}

func TestParseInfoLineNotInfo(t *testing.T) {
	_, ok := parseInfoLine("bestmove 7g7f")
	assert.False(t, ok)
}

func TestMergePVLineKeepsPVWhenAbsent(t *testing.T) {
	existing := PVLine{PVIndex: 1, PVUSI: []string{"7g7f", "3c3d"}}
	incoming := PVLine{PVIndex: 1, Depth: 5} // no pv tokens this round
	merged := mergePVLine(existing, true, incoming)
	assert.Equal(t, []string{"7g7f", "3c3d"}, merged.PVUSI)
	assert.Equal(t, 5, merged.Depth)
}

func TestParseOptionDeclaration(t *testing.T) {
	name, ok := parseOptionDeclaration("option name USI_Hash type spin default 16 min 1 max 1024")
	require.True(t, ok)
	assert.Equal(t, "USI_Hash", name)

	name, ok = parseOptionDeclaration("option name Clear Hash type button")
	require.True(t, ok)
	assert.Equal(t, "Clear Hash", name)

	_, ok = parseOptionDeclaration("id name FakeEngine")
	assert.False(t, ok)
}

// fakeEngineScript is a minimal USI-speaking engine implemented as a shell
// script, read line by line, so the handshake/analyze/cancel protocol can
// be exercised against a real child process without building a second Go
// binary. goLine configures what "go infinite" does.
func fakeEngineScript(goLine string) string {
	return `
while IFS= read -r line; do
  case "$line" in
    usi)
      echo "id name FakeEngine"
      echo "option name Threads type spin default 1 min 1 max 512"
      echo "option name USI_Hash type spin default 16 min 1 max 1024"
      echo "option name MultiPV type spin default 1 min 1 max 5"
      echo "usiok"
      ;;
    isready)
      echo "readyok"
      ;;
    "go infinite")
      ` + goLine + `
      ;;
    stop)
      echo "bestmove 7g7f"
      ;;
    quit)
      exit 0
      ;;
  esac
done
`
}

func newFakeSupervisor(t *testing.T, goLine string) *Supervisor {
	t.Helper()
	cfg := Config{
		Path:    "/bin/sh",
		Args:    []string{"-c", fakeEngineScript(goLine)},
		Threads: 2,
		HashMB:  16,
		MultiPV: 1,
	}
	return New(context.Background(), cfg)
}

func TestSupervisorHandshakeAnalyzeCancel(t *testing.T) {
	sup := newFakeSupervisor(t, `echo "info depth 1 score cp 10 pv 7g7f"`)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, sup.Spawn(ctx))
	assert.Equal(t, Configured, sup.State())

	sub, err := sup.Analyze(ctx, "position startpos")
	require.NoError(t, err)
	assert.Equal(t, Searching, sup.State())

	select {
	case snap := <-sub.Updates():
		require.Len(t, snap, 1)
		assert.Equal(t, "cp", snap[0].ScoreType)
		assert.Equal(t, 10, snap[0].ScoreValue)
		assert.Equal(t, []string{"7g7f"}, snap[0].PVUSI)
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for info update")
	}

	require.NoError(t, sub.Cancel(ctx))
	assert.Equal(t, "cancelled", sub.Reason())
	assert.Equal(t, Configured, sup.State())

	require.NoError(t, sup.Shutdown(ctx))
}

func TestSupervisorEngineExitDuringSearch(t *testing.T) {
	sup := newFakeSupervisor(t, `exit 0`)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, sup.Spawn(ctx))

	sub, err := sup.Analyze(ctx, "position startpos")
	require.NoError(t, err)

	select {
	case <-sub.Done():
		assert.Equal(t, "exited", sub.Reason())
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for engine exit")
	}

	<-sup.Exited()
	assert.Equal(t, Failed, sup.State())
}

func TestSupervisorResetAllowsRespawnAfterExit(t *testing.T) {
	sup := newFakeSupervisor(t, `exit 0`)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, sup.Spawn(ctx))
	_, err := sup.Analyze(ctx, "position startpos")
	require.NoError(t, err)

	<-sup.Exited()
	assert.Equal(t, Failed, sup.State())

	require.NoError(t, sup.Reset())
	assert.Equal(t, Idle, sup.State())

	require.NoError(t, sup.Spawn(ctx))
	assert.Equal(t, Configured, sup.State())
	require.NoError(t, sup.Shutdown(ctx))
}

func TestSupervisorResetRejectsNonFailedState(t *testing.T) {
	sup := New(context.Background(), Config{})
	err := sup.Reset()
	require.Error(t, err)
	kind, _ := kifuerr.KindOf(err)
	assert.Equal(t, kifuerr.ProtocolError, kind)
}

func TestSupervisorHandshakeTimeout(t *testing.T) {
	cfg := Config{
		Path:             "/bin/sh",
		Args:             []string{"-c", "sleep 5"},
		HandshakeTimeout: 1,
	}
	sup := New(context.Background(), cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	err := sup.Spawn(ctx)
	require.Error(t, err)
	kind, ok := kifuerr.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, kifuerr.HandshakeTimeout, kind)
	assert.Equal(t, Failed, sup.State())
}

func TestSupervisorSpawnFailedForMissingBinary(t *testing.T) {
	cfg := Config{Path: "/no/such/engine/binary"}
	sup := New(context.Background(), cfg)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	err := sup.Spawn(ctx)
	require.Error(t, err)
	kind, ok := kifuerr.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, kifuerr.SpawnFailed, kind)
}

func TestSupervisorAnalyzeRejectsWrongState(t *testing.T) {
	sup := New(context.Background(), Config{})
	_, err := sup.Analyze(context.Background(), "position startpos")
	require.Error(t, err)
	kind, ok := kifuerr.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, kifuerr.ProtocolError, kind)
}
