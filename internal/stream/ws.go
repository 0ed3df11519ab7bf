package stream

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const wsWriteWait = 10 * time.Second

// WSSink 每个事件写一个 JSON 文本帧。
type WSSink struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func NewWSSink(conn *websocket.Conn) *WSSink {
	return &WSSink{conn: conn}
}

func (s *WSSink) Send(ev Event) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.conn.SetWriteDeadline(time.Now().Add(wsWriteWait)); err != nil {
		return err
	}
	return s.conn.WriteMessage(websocket.TextMessage, b)
}
