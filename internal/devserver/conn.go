package devserver

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	connBuffer   = 64
	writeTimeout = 10 * time.Second
	readLimit    = 512 * 1024
)

// conn is one stream subscriber with its own write loop.
type conn struct {
	ws     *websocket.Conn
	remote string
	out    chan []byte
	done   chan struct{}
	once   sync.Once
}

func newConn(ws *websocket.Conn, remote string) *conn {
	c := &conn{
		ws:     ws,
		remote: remote,
		out:    make(chan []byte, connBuffer),
		done:   make(chan struct{}),
	}
	go c.writeLoop()
	return c
}

// send queues data without blocking. It reports false when the buffer is
// full or the connection is closed.
func (c *conn) send(data []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.out <- data:
		return true
	case <-c.done:
		return false
	default:
		return false
	}
}

func (c *conn) close() {
	c.once.Do(func() {
		close(c.done)
		msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "")
		_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		_ = c.ws.Close()
	})
}

func (c *conn) writeLoop() {
	for {
		select {
		case <-c.done:
			return
		case data := <-c.out:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				c.close()
				return
			}
		}
	}
}

func (c *conn) readLoop(onMsg func([]byte)) {
	c.ws.SetReadLimit(readLimit)
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		if len(data) > 0 {
			onMsg(data)
		}
	}
}
