package main

import (
	"fmt"
	"log"
	"os"

	"github.com/playcue/backend/internal/replay"
	"github.com/playcue/backend/internal/rules"
)

// Re-runs replay files through the rule engine. Every shot must reproduce
// its recorded event digest, so a clean pass proves the file is intact and
// the simulation still agrees with the one that recorded it.
func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: replay <file.replay.json> [more files...]")
		os.Exit(2)
	}

	failed := 0
	for _, path := range os.Args[1:] {
		if err := verify(path); err != nil {
			log.Printf("✗ %s: %v", path, err)
			failed++
		}
	}
	if failed > 0 {
		log.Fatalf("%d of %d replays failed verification", failed, len(os.Args)-1)
	}
}

func verify(path string) error {
	rec, err := replay.Load(path)
	if err != nil {
		return err
	}

	pb, err := replay.NewPlayback(rec)
	if err != nil {
		return err
	}

	shots, fouls := 0, 0
	for !pb.Done() {
		res, err := pb.Next()
		if err != nil {
			return err
		}
		if res.Move.Type == replay.MoveShot {
			shots++
		}
		if res.Outcome != nil && res.Outcome.Foul {
			fouls++
		}
	}

	snap := pb.Match().Snapshot()
	log.Printf("✓ %s", path)
	log.Printf("  match:   %s", rec.MatchID)
	log.Printf("  players: %d vs %d (%d broke)", rec.Players[0], rec.Players[1], rec.Players[0])
	log.Printf("  moves:   %d (%d shots, %d fouls)", len(rec.Moves), shots, fouls)
	if snap.Phase == rules.PhaseEnded {
		log.Printf("  result:  player %d won (%s)", snap.Winner, snap.EndReason)
	} else {
		log.Printf("  result:  unfinished (phase %s)", snap.Phase)
	}
	return nil
}
