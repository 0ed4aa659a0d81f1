package dashboard

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const writeTimeout = 5 * time.Second

// stream upgrades to a websocket and pushes StatsView payloads until the
// client goes away or the server closes.
func (s *Server) stream(c *gin.Context) {
	if !s.track() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "server is shutting down"})
		return
	}
	defer s.streams.Done()

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	signals, unsubscribe := s.pipeline.Subscribe()
	defer unsubscribe()

	// reads only detect the client closing; incoming messages are ignored
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	// created before the first push so a client that has read it knows the ticker runs
	ticker := s.config.Clock.NewTicker(s.config.PushInterval)
	defer ticker.Stop()

	if err := s.push(conn); err != nil {
		return
	}

	pending := false
	for {
		select {
		case <-gone:
			return
		case <-s.closing:
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(writeTimeout))
			return
		case <-signals:
			pending = true
		case <-ticker.C():
			if !pending {
				continue
			}
			pending = false
			if err := s.push(conn); err != nil {
				return
			}
		}
	}
}

func (s *Server) push(conn *websocket.Conn) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	if err := conn.WriteJSON(s.view()); err != nil {
		s.logger.Debug("websocket write failed", zap.Error(err))
		return err
	}
	return nil
}
