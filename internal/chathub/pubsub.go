package chathub

import (
	"encoding/json"
	"log"

	"rentline/backend/internal/models"
)

// startPubSubListener subscribes to the Redis events channel and feeds
// deletion notices into the hub loop. The REST layer publishes there
// when a chat is soft-deleted or a property listing goes away.
func (m *ManagerService) startPubSubListener() {
	pubsub := m.Storage.SubscribeEvents()
	if pubsub == nil {
		return
	}

	go func() {
		defer pubsub.Close()

		for msg := range pubsub.Channel() {
			var ev models.DeletionEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				log.Printf("Error unmarshalling Redis event: %v", err)
				continue
			}
			m.PubSubCh <- ev
		}
	}()
}
