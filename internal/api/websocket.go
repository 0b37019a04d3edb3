package api

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"journal-core/internal/events"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// pushTopics are the bus events forwarded to browser clients.
var pushTopics = []events.Event{
	events.EventAccountCreated,
	events.EventAccountDeployed,
	events.EventAccountUndeployed,
	events.EventAccountRemoved,
	events.EventConnectionUp,
	events.EventConnectionLost,
	events.EventRiskAlert,
}

type pushMessage struct {
	Topic   events.Event `json:"topic"`
	Payload any          `json:"payload"`
}

func (s *Server) websocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("ws upgrade error: %v", err)
		return
	}
	defer conn.Close()

	if s.Bus == nil {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"bus not ready"}`))
		return
	}

	// Fan the subscribed topics into one channel so a single writer owns
	// the connection.
	merged := make(chan pushMessage, 100)
	done := make(chan struct{})
	defer close(done)

	// Drain client frames only to notice disconnects.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for _, topic := range pushTopics {
		stream, unsub := s.Bus.Subscribe(topic, 100)
		defer unsub()
		go func(topic events.Event, stream <-chan any) {
			for {
				select {
				case <-done:
					return
				case msg, ok := <-stream:
					if !ok {
						return
					}
					select {
					case merged <- pushMessage{Topic: topic, Payload: msg}:
					case <-done:
						return
					}
				}
			}
		}(topic, stream)
	}

	for {
		select {
		case <-closed:
			return
		case msg := <-merged:
			if err := conn.WriteJSON(msg); err != nil {
				log.Printf("ws write error: %v", err)
				return
			}
		}
	}
}
