package match

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/playcue/backend/internal/config"
	"github.com/playcue/backend/internal/rules"
)

// memberFor formats a turn-deadline member, m:<matchToken>:p:<playerID>
func memberFor(token string, playerID int) string {
	return fmt.Sprintf("m:%s:p:%d", token, playerID)
}

// parseMember expects member format m:<matchToken>:p:<playerID>
func parseMember(m string) (string, int) {
	parts := strings.Split(m, ":")
	if len(parts) >= 4 && parts[0] == "m" && parts[2] == "p" {
		id, err := strconv.Atoi(parts[3])
		if err != nil {
			return "", 0
		}
		return parts[1], id
	}
	return "", 0
}

// armTurnDeadline schedules the awaited player's timeout in the shared
// deadline set, clearing any stale entries for this match first.
func (s *Session) armTurnDeadline() {
	rdb := s.mgr.rdb
	if rdb == nil {
		return
	}

	ctx := context.Background()
	for _, seat := range s.Seats() {
		if seat != nil {
			rdb.ZRem(ctx, turnDeadlineKey, memberFor(s.Token, seat.PlayerID))
		}
	}

	if s.match == nil || s.match.Phase() == rules.PhaseEnded {
		return
	}
	awaited := s.match.AwaitedPlayer()
	if awaited == 0 {
		return
	}

	deadline := time.Now().Unix() + int64(s.mgr.timeoutSeconds())
	rdb.ZAdd(ctx, turnDeadlineKey, redis.Z{Score: float64(deadline), Member: memberFor(s.Token, awaited)})
}

// clearTurnDeadline removes every deadline entry for this match.
func (s *Session) clearTurnDeadline() {
	rdb := s.mgr.rdb
	if rdb == nil {
		return
	}

	ctx := context.Background()
	for _, seat := range s.Seats() {
		if seat != nil {
			rdb.ZRem(ctx, turnDeadlineKey, memberFor(s.Token, seat.PlayerID))
		}
	}
}

// StartTurnTimerWorker starts a background worker that sweeps expired turn
// deadlines from the Redis sorted set and charges the timeout foul.
func StartTurnTimerWorker(ctx context.Context, rdb *redis.Client, cfg *config.Config) {
	if rdb == nil || cfg == nil {
		log.Println("[TIMER] Redis or config missing; turn timer worker not started")
		return
	}

	log.Println("[TIMER] Turn timer worker started")
	go func() {
		poll := cfg.TimerPollSeconds
		if poll <= 0 {
			poll = 1
		}
		ticker := time.NewTicker(time.Duration(poll) * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				log.Println("[TIMER] Turn timer worker stopping")
				return
			case <-ticker.C:
				now := time.Now().Unix()

				members, err := rdb.ZRangeByScore(ctx, turnDeadlineKey, &redis.ZRangeBy{Min: "-inf", Max: fmt.Sprintf("%d", now)}).Result()
				if err != nil {
					log.Printf("[TIMER] Failed to fetch turn deadlines: %v", err)
					continue
				}

				for _, m := range members {
					// Attempt to remove (race-safe)
					removed, _ := rdb.ZRem(ctx, turnDeadlineKey, m).Result()
					if removed == 0 {
						continue
					}

					token, playerID := parseMember(m)
					if token == "" || playerID == 0 {
						continue
					}

					out, err := Manager.HandleTurnTimeout(token, playerID)
					if err != nil {
						log.Printf("[TIMER] skipping timeout for player %d in match %s: %v", playerID, token, err)
						continue
					}

					log.Printf("[TIMER] Turn timeout charged: match=%s player=%d forfeit=%v", token, playerID, out.Winner != 0)
					Manager.publishEvent(map[string]interface{}{
						"type":        "turn_timeout",
						"match_token": token,
						"player":      playerID,
						"foul":        rules.FoulTimeout,
						"forfeit":     out.Winner != 0,
						"winner":      out.Winner,
					})
				}
			}
		}
	}()
}
