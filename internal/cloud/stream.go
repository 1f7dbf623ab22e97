package cloud

import (
	"fmt"
	log "log/slog"
	"time"

	ws "github.com/gorilla/websocket"

	"spoky/internal/action"
)

const maxRedials = 5

// streamSender writes records one by one over a websocket, redialing the
// endpoint when the connection drops.
type streamSender struct {
	url  string
	conn *ws.Conn
}

func newStreamSender(url string) (*streamSender, error) {
	conn, _, err := ws.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial cloud stream: %w", err)
	}
	log.Info("Connected to cloud stream", "url", url)
	return &streamSender{url: url, conn: conn}, nil
}

func (s *streamSender) send(batch []action.Record) error {
	for _, rec := range batch {
		if err := s.writeWithRedial(rec); err != nil {
			return err
		}
	}
	return nil
}

func (s *streamSender) writeWithRedial(rec action.Record) error {
	err := s.conn.WriteJSON(rec)
	if err == nil {
		return nil
	}
	if !isClosed(err) {
		return err
	}

	for attempt := 1; attempt <= maxRedials; attempt++ {
		log.Warn("Cloud stream closed, redialing", "url", s.url, "attempt", attempt)
		conn, _, derr := ws.DefaultDialer.Dial(s.url, nil)
		if derr != nil {
			time.Sleep(time.Second * time.Duration(attempt))
			continue
		}
		s.conn = conn
		return s.conn.WriteJSON(rec)
	}
	return fmt.Errorf("redial %s: %w", s.url, err)
}

func (s *streamSender) close() error {
	return s.conn.Close()
}

func isClosed(err error) bool {
	return ws.IsCloseError(err,
		ws.CloseNormalClosure,
		ws.CloseGoingAway,
		ws.CloseAbnormalClosure) || ws.IsUnexpectedCloseError(err)
}
