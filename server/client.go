package main

import (
	"log"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait         = 10 * time.Second
	pongWait          = 60 * time.Second
	pingPeriod        = (pongWait * 9) / 10
	maxMessageSize    = 64 * 1024
	sendBufSize       = 256
	maxMessagesPerSec = 200
)

// Client is one WebSocket connection. It implements Broadcaster for its Player.
type Client struct {
	hub        *Hub
	conn       *websocket.Conn
	send       chan []byte
	id         ConnectionID
	remoteAddr string
	world      *World
	msgCount   int
	msgResetAt time.Time
}

// NewClient creates a new Client
func NewClient(hub *Hub, conn *websocket.Conn, remoteAddr string) *Client {
	return &Client{
		hub:        hub,
		conn:       conn,
		send:       make(chan []byte, sendBufSize),
		id:         hub.NextConnectionID(),
		remoteAddr: remoteAddr,
	}
}

// ReadPump reads messages from the WebSocket connection
func (c *Client) ReadPump() {
	defer func() {
		if c.world != nil {
			c.world.Leave(c.id)
		}
		c.hub.TrackDisconnect(c.remoteAddr)
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		msgType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("ws error: %v", err)
			}
			break
		}

		now := time.Now()
		if now.After(c.msgResetAt) {
			c.msgCount = 0
			c.msgResetAt = now.Add(time.Second)
		}
		c.msgCount++
		if c.msgCount > maxMessagesPerSec {
			log.Printf("rate limit exceeded for %s, disconnecting", c.remoteAddr)
			break
		}

		if msgType == websocket.BinaryMessage {
			c.handleMessage(message)
		}
	}
}

// WritePump writes messages to the WebSocket connection
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.BinaryMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Send encodes msg and queues it without blocking
func (c *Client) Send(msg ServerMessage) {
	data, err := EncodeServerMessage(msg)
	if err != nil {
		log.Printf("encode error: %v", err)
		return
	}
	c.SendRaw(data)
}

// SendRaw queues pre-encoded bytes as a binary message
func (c *Client) SendRaw(data []byte) {
	defer func() { recover() }()
	select {
	case c.send <- data:
	default:
		// Client too slow, drop message
	}
}

// handleMessage decodes one frame and routes it to the handshake or the world
func (c *Client) handleMessage(raw []byte) {
	msg, err := DecodeClientMessage(raw)
	if err != nil {
		log.Printf("client %x: %v", c.id, err)
		return
	}

	if hello, ok := msg.(*HelloRequest); ok {
		if c.world != nil {
			log.Printf("client %x: duplicate hello dropped", c.id)
			return
		}
		c.handleHello(hello)
		return
	}
	if c.world == nil {
		log.Printf("client %x: op %d before hello dropped", c.id, msg.ClientOpcode())
		return
	}
	c.world.Deliver(c.id, msg)
}

func (c *Client) handleHello(req *HelloRequest) {
	username, token, err := c.hub.auth.Authenticate(req, c.remoteAddr)
	if err != nil {
		log.Printf("client %x: hello rejected: %v", c.id, err)
		c.Send(&ErrorMsg{Msg: err.Error()})
		return
	}

	w := c.hub.worlds.GetOrCreate(req.World)
	if w == nil {
		c.Send(&ErrorMsg{Msg: "too many active worlds"})
		return
	}

	c.world = w
	c.Send(&HelloResponse{
		PlayerID:   uint32(c.id),
		Token:      token,
		World:      w.Name,
		ServerTick: w.Stats().Tick,
	})
	w.Join(NewPlayer(c.id, username, c), req.Mods)
}
