package ws

import (
	"context"
	"encoding/json"
	"log"

	"github.com/playcue/backend/internal/config"
	"github.com/redis/go-redis/v9"
)

var rdbClient *redis.Client
var wsConfig *config.Config

func SetRedisClient(r *redis.Client, cfg *config.Config) {
	rdbClient = r
	wsConfig = cfg
}

// StartMatchEventSubscriber subscribes to the match_events channel and
// broadcasts incoming events to match rooms. The session loop notifies its
// own room directly for moves it handles; this channel carries events that
// originate outside the websocket path, like the turn deadline worker.
func StartMatchEventSubscriber(ctx context.Context) {
	if rdbClient == nil {
		log.Println("[WS] Redis client not set; match event subscriber not started")
		return
	}

	pubsub := rdbClient.Subscribe(ctx, "match_events")
	ch := pubsub.Channel()
	go func() {
		log.Println("[WS] match_events subscriber started")
		for msg := range ch {
			var payload map[string]interface{}
			if err := json.Unmarshal([]byte(msg.Payload), &payload); err != nil {
				log.Printf("[WS] invalid event payload: %v", err)
				continue
			}

			typeStr, _ := payload["type"].(string)
			matchToken, _ := payload["match_token"].(string)

			log.Printf("[WS] event received: type=%s match=%s", typeStr, matchToken)

			switch typeStr {
			case "turn_timeout":
				out := map[string]interface{}{
					"type":    "turn_timeout",
					"player":  payload["player"],
					"foul":    payload["foul"],
					"forfeit": payload["forfeit"],
					"winner":  payload["winner"],
				}
				MatchHub.mu.RLock()
				if room, exists := MatchHub.matchRooms[matchToken]; !exists {
					log.Printf("[WS] no room for match %s; turn_timeout will not be broadcast", matchToken)
				} else {
					log.Printf("[WS] broadcasting turn_timeout to match %s (room_size=%d)", matchToken, len(room))
				}
				MatchHub.mu.RUnlock()
				MatchHub.BroadcastToMatch(matchToken, out)

			case "match_ended", "match_cancelled":
				// The owning session broadcasts these to its room before
				// publishing; the channel copy is for external consumers.
				log.Printf("[WS] %s published for match %s", typeStr, matchToken)

			default:
				log.Printf("[WS] unknown event type: %s", typeStr)
			}
		}
	}()
}
