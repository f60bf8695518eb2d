package replay

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/playcue/backend/internal/physics"
	"github.com/playcue/backend/internal/rules"
)

const (
	playerA = 11
	playerB = 22
)

// softBreak is weak enough that the rack soaks it up: nothing pockets,
// nothing reaches a rail, so the result is always an insufficient break.
var softBreak = physics.ShotCommand{Angle: 0, Power: 0.2}

// scriptedMatch drives a real match through one of every move type and
// records it, returning the log and the live engine for comparison.
func scriptedMatch(t *testing.T) (*Log, *rules.Match) {
	t.Helper()
	cfg := physics.DefaultConfig()
	m, err := rules.NewMatch(cfg, playerA, playerB)
	require.NoError(t, err)
	lg := NewLog("match-under-test", cfg, m.InitialRack(), playerA, playerB)

	shot := softBreak
	shot.Player = playerA
	out, err := m.ApplyShot(shot)
	require.NoError(t, err)
	lg.RecordShot(out.Shot, out.Digest)
	require.Equal(t, playerB, out.PendingChoice, "soft break should be insufficient")

	require.NoError(t, m.ResolveBreakChoice(playerB, true))
	lg.RecordBreakChoice(playerB, true)

	shot.Player = playerB
	out, err = m.ApplyShot(shot)
	require.NoError(t, err)
	lg.RecordShot(out.Shot, out.Digest)
	require.Equal(t, playerA, out.PendingChoice)

	require.NoError(t, m.ResolveBreakChoice(playerA, false))
	lg.RecordBreakChoice(playerA, false)

	spot := physics.NewVec2(0.5, 0.4)
	require.NoError(t, m.PlaceCueBall(playerA, spot))
	lg.RecordPlacement(playerA, spot)

	require.NoError(t, m.PassTurn(playerA))
	lg.RecordPass(playerA)

	_, err = m.ApplyTimeout(playerB)
	require.NoError(t, err)
	lg.RecordTimeout(playerB)

	require.NoError(t, m.Concede(playerA))
	lg.RecordConcede(playerA)

	return lg, m
}

func TestPlaybackReproducesLiveMatch(t *testing.T) {
	lg, live := scriptedMatch(t)

	path := filepath.Join(t.TempDir(), "match.replay.json")
	require.NoError(t, lg.Record().Save(path))

	rec, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "match-under-test", rec.MatchID)
	assert.Len(t, rec.Moves, 8)

	pb, err := NewPlayback(rec)
	require.NoError(t, err)
	final, err := pb.RunAll()
	require.NoError(t, err)

	assert.Equal(t, live.Snapshot(), final)
	assert.Equal(t, rules.PhaseEnded, final.Phase)
	assert.Equal(t, playerB, final.Winner)
}

func TestPlaybackStepsCarrySnapshots(t *testing.T) {
	lg, _ := scriptedMatch(t)
	pb, err := NewPlayback(lg.Record())
	require.NoError(t, err)

	res, err := pb.Next()
	require.NoError(t, err)
	assert.Equal(t, MoveShot, res.Move.Type)
	require.NotNil(t, res.Outcome)
	assert.Equal(t, res.Move.EventDigest, res.Outcome.Digest)
	assert.NotEmpty(t, res.Snapshot.Balls)
	assert.False(t, pb.Done())
}

func TestPlaybackDetectsTamperedDigest(t *testing.T) {
	lg, _ := scriptedMatch(t)
	rec := lg.Record()
	rec.Moves[0].EventDigest++

	pb, err := NewPlayback(rec)
	require.NoError(t, err)
	_, err = pb.RunAll()
	require.ErrorIs(t, err, ErrCorrupt)

	var ce *CorruptError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, 0, ce.Seq)
}

func TestPlaybackDetectsTamperedShot(t *testing.T) {
	lg, _ := scriptedMatch(t)

	rec := lg.Record()
	rec.Moves[0].Shot.Power = 0.6
	pb, err := NewPlayback(rec)
	require.NoError(t, err)
	_, err = pb.RunAll()
	assert.ErrorIs(t, err, ErrCorrupt)

	rec2 := lg.Record()
	rec2.Moves[0].Shot.CuePosition = physics.NewVec2(1.0, 1.0)
	pb2, err := NewPlayback(rec2)
	require.NoError(t, err)
	_, err = pb2.RunAll()
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestValidateCatchesStructuralProblems(t *testing.T) {
	lg, _ := scriptedMatch(t)
	good := lg.Record()
	require.NoError(t, good.Validate())

	cases := []struct {
		name   string
		mutate func(*Record)
	}{
		{"wrong version", func(r *Record) { r.Version = 99 }},
		{"missing match id", func(r *Record) { r.MatchID = "" }},
		{"bad config", func(r *Record) { r.Config.BallMass = 0 }},
		{"short rack", func(r *Record) { r.Rack = r.Rack[:5] }},
		{"same players", func(r *Record) { r.Players[1] = r.Players[0] }},
		{"seq gap", func(r *Record) { r.Moves[3].Seq = 7 }},
		{"foreign player", func(r *Record) { r.Moves[2].Player = 777 }},
		{"shot without command", func(r *Record) { r.Moves[0].Shot = nil }},
		{"placement without position", func(r *Record) { r.Moves[4].Position = nil }},
		{"unknown move type", func(r *Record) { r.Moves[5].Type = "dance" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := lg.Record()
			tc.mutate(&rec)
			assert.ErrorIs(t, rec.Validate(), ErrCorrupt)
		})
	}
}

func TestLoadRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "garbage.json")
	require.NoError(t, os.WriteFile(path, []byte("not a replay"), 0o644))

	_, err := Load(path)
	assert.ErrorIs(t, err, ErrCorrupt)

	_, err = Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrCorrupt)
}

func TestResumeContinuesSequence(t *testing.T) {
	lg, _ := scriptedMatch(t)
	rec := lg.Record()

	resumed := Resume(rec)
	resumed.RecordPass(playerA)
	out := resumed.Record()
	assert.Equal(t, len(rec.Moves), out.Moves[len(out.Moves)-1].Seq)
}
