package handlers

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/api/dto"
	"github.com/spec-kit/helpdesk/internal/feed"
	"github.com/spec-kit/helpdesk/internal/service"
)

const (
	streamViewKey     = "stream_ticket_view"
	streamIdleTimeout = 60 * time.Second
	streamSendBuffer  = 16
)

type streamFrame struct {
	Type string `json:"type"`
}

// StreamHandler pushes ticket updates over a websocket.
type StreamHandler struct {
	tickets *service.TicketService
	broker  feed.Broker
	logger  *zap.Logger
}

// NewStreamHandler constructs handler.
func NewStreamHandler(tickets *service.TicketService, broker feed.Broker, logger *zap.Logger) *StreamHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StreamHandler{tickets: tickets, broker: broker, logger: logger}
}

// Upgrade GET /tickets/:id/stream. The caller must be allowed to view the
// ticket; that is checked before the connection is upgraded.
func (h *StreamHandler) Upgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	view, err := h.tickets.GetByID(c.UserContext(), actor, c.Params("id"))
	if err != nil {
		return err
	}
	c.Locals(streamViewKey, view)
	return websocket.New(h.handleConnection)(c)
}

func (h *StreamHandler) handleConnection(conn *websocket.Conn) {
	view, ok := conn.Locals(streamViewKey).(*service.TicketView)
	if !ok {
		return
	}
	ticketID := view.Ticket.ID

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	updates, unsubscribe, err := h.broker.Subscribe(ctx, ticketID)
	if err != nil {
		h.logger.Warn("stream subscribe failed", zap.String("ticket_id", ticketID), zap.Error(err))
		_ = conn.WriteJSON(fiber.Map{"type": "error", "message": "updates unavailable"})
		return
	}
	defer unsubscribe()

	// Subscribed before the snapshot, so no update between the two is missed.
	if err := conn.WriteJSON(dto.StreamSnapshot{Type: "snapshot", Ticket: dto.NewTicketViewResponse(view)}); err != nil {
		return
	}

	send := make(chan []byte, streamSendBuffer)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		// Closing unblocks the read loop when the writer gives up first.
		defer conn.Close()
		defer cancel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg := <-send:
				if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
					return
				}
			case update, ok := <-updates:
				if !ok {
					return
				}
				payload, err := json.Marshal(update)
				if err != nil {
					continue
				}
				if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
					return
				}
			}
		}
	}()

	h.logger.Debug("stream opened", zap.String("ticket_id", ticketID))
	h.readLoop(ctx, conn, send)
	cancel()
	<-writerDone
	h.logger.Debug("stream closed", zap.String("ticket_id", ticketID))
}

func (h *StreamHandler) readLoop(ctx context.Context, conn *websocket.Conn, send chan<- []byte) {
	pong, _ := json.Marshal(streamFrame{Type: "pong"})
	for {
		_ = conn.SetReadDeadline(time.Now().Add(streamIdleTimeout))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var frame streamFrame
		if err := json.Unmarshal(msg, &frame); err != nil {
			continue
		}
		if frame.Type == "ping" {
			select {
			case send <- pong:
			case <-ctx.Done():
				return
			default:
			}
		}
	}
}
