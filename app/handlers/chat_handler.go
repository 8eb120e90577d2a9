package handlers

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/kisaan-market/kisaan/app/dto"
	"github.com/kisaan-market/kisaan/app/realtime"
	businessflow "github.com/kisaan-market/kisaan/business_flow"
)

const defaultHeartbeatInterval = 25 * time.Second

type ChatHandlerInterface interface {
	Open(c fiber.Ctx) error
	List(c fiber.Ctx) error
	Get(c fiber.Ctx) error
	Accept(c fiber.Ctx) error
	Reject(c fiber.Ctx) error
	PostMessage(c fiber.Ctx) error
	Stream(c fiber.Ctx) error
}

// ChatHandler serves chat rooms and their live message stream
type ChatHandler struct {
	baseHandler
	flow      businessflow.ChatFlow
	hub       *realtime.Hub
	heartbeat time.Duration
	validator *validator.Validate
}

func NewChatHandler(flow businessflow.ChatFlow, hub *realtime.Hub, heartbeat time.Duration) *ChatHandler {
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeatInterval
	}
	return &ChatHandler{
		flow:      flow,
		hub:       hub,
		heartbeat: heartbeat,
		validator: newValidator(),
	}
}

// Open starts or resumes the customer's conversation with a farmer
// @Summary Open chat
// @Description Return the existing room for this farmer and customer or create it; a product adds an inquiry message
// @Tags Chat
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body dto.OpenChatRequest true "Farmer and/or product"
// @Success 201 {object} dto.APIResponse{data=dto.ChatRoomResponse} "Room created"
// @Success 200 {object} dto.APIResponse{data=dto.ChatRoomResponse} "Existing room"
// @Failure 400 {object} dto.APIResponse "Farmer or product required, or mismatch"
// @Failure 403 {object} dto.APIResponse "Only customers may open chats"
// @Failure 404 {object} dto.APIResponse "Farmer or product not found"
// @Router /api/v1/chats [post]
func (h *ChatHandler) Open(c fiber.Ctx) error {
	accountID, ok := currentAccount(c)
	if !ok {
		return unauthorized(c)
	}

	var req dto.OpenChatRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	if err := h.validator.Struct(&req); err != nil {
		return h.ValidationResponse(c, err)
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	res, err := h.flow.OpenOrGet(ctx, accountID, &req, clientMetadata(c))
	if err != nil {
		return h.BusinessErrorResponse(c, err, "Failed to open chat", "OPEN_CHAT_FAILED")
	}

	status := fiber.StatusOK
	if res.Created {
		status = fiber.StatusCreated
	}
	return h.SuccessResponse(c, status, "Chat ready", res)
}

// List returns the caller's rooms with their latest visible message
// @Summary List chats
// @Tags Chat
// @Produce json
// @Security BearerAuth
// @Success 200 {object} dto.APIResponse{data=dto.ChatListResponse}
// @Router /api/v1/chats [get]
func (h *ChatHandler) List(c fiber.Ctx) error {
	accountID, ok := currentAccount(c)
	if !ok {
		return unauthorized(c)
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	res, err := h.flow.ListChats(ctx, accountID)
	if err != nil {
		return h.BusinessErrorResponse(c, err, "Failed to list chats", "LIST_CHATS_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Chats retrieved successfully", res)
}

// Get returns what the caller may currently see of a room
// @Summary Get chat
// @Tags Chat
// @Produce json
// @Security BearerAuth
// @Param id path int true "Chat room ID"
// @Success 200 {object} dto.APIResponse{data=dto.ChatView}
// @Failure 403 {object} dto.APIResponse "Not a participant"
// @Failure 404 {object} dto.APIResponse "Room not found"
// @Router /api/v1/chats/{id} [get]
func (h *ChatHandler) Get(c fiber.Ctx) error {
	accountID, roomID, done, err := h.roomRequest(c)
	if done {
		return err
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	view, err := h.flow.Visibility(ctx, roomID, accountID, clientMetadata(c))
	if err != nil {
		return h.BusinessErrorResponse(c, err, "Failed to load chat", "GET_CHAT_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Chat retrieved successfully", view)
}

// Accept opens a pending room for posting
// @Summary Accept chat
// @Tags Chat
// @Produce json
// @Security BearerAuth
// @Param id path int true "Chat room ID"
// @Success 200 {object} dto.APIResponse{data=dto.ChatRoomResponse}
// @Failure 403 {object} dto.APIResponse "Only the room's farmer may respond"
// @Failure 409 {object} dto.APIResponse "Room already rejected"
// @Router /api/v1/chats/{id}/accept [post]
func (h *ChatHandler) Accept(c fiber.Ctx) error {
	accountID, roomID, done, err := h.roomRequest(c)
	if done {
		return err
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	res, err := h.flow.Accept(ctx, roomID, accountID, clientMetadata(c))
	if err != nil {
		return h.BusinessErrorResponse(c, err, "Failed to accept chat", "ACCEPT_CHAT_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Chat accepted", res)
}

// Reject closes a pending room to the customer
// @Summary Reject chat
// @Tags Chat
// @Produce json
// @Security BearerAuth
// @Param id path int true "Chat room ID"
// @Success 200 {object} dto.APIResponse{data=dto.ChatRoomResponse}
// @Failure 403 {object} dto.APIResponse "Only the room's farmer may respond"
// @Failure 409 {object} dto.APIResponse "Room already accepted"
// @Router /api/v1/chats/{id}/reject [post]
func (h *ChatHandler) Reject(c fiber.Ctx) error {
	accountID, roomID, done, err := h.roomRequest(c)
	if done {
		return err
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	res, err := h.flow.Reject(ctx, roomID, accountID, clientMetadata(c))
	if err != nil {
		return h.BusinessErrorResponse(c, err, "Failed to reject chat", "REJECT_CHAT_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Chat rejected", res)
}

// PostMessage appends a message and fans it out to live subscribers
// @Summary Post message
// @Tags Chat
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Chat room ID"
// @Param request body dto.PostMessageRequest true "Message"
// @Success 201 {object} dto.APIResponse{data=dto.MessageDTO}
// @Failure 400 {object} dto.APIResponse "Empty message"
// @Failure 403 {object} dto.APIResponse "Posting closed or not a participant"
// @Router /api/v1/chats/{id}/messages [post]
func (h *ChatHandler) PostMessage(c fiber.Ctx) error {
	accountID, roomID, done, err := h.roomRequest(c)
	if done {
		return err
	}

	var req dto.PostMessageRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	if err := h.validator.Struct(&req); err != nil {
		return h.ValidationResponse(c, err)
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	msg, err := h.flow.PostMessage(ctx, roomID, accountID, &req, clientMetadata(c))
	if err != nil {
		return h.BusinessErrorResponse(c, err, "Failed to post message", "POST_MESSAGE_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusCreated, "Message posted", msg)
}

// Stream pushes new room messages as server-sent events until the client goes away
// @Summary Chat stream
// @Description Server-sent events of type "message" carrying realtime.ChatEvent payloads, with comment heartbeats
// @Tags Chat
// @Produce text/event-stream
// @Security BearerAuth
// @Param id path int true "Chat room ID"
// @Param access_token query string false "Access token for clients that cannot set headers"
// @Success 200 {string} string "event stream"
// @Failure 403 {object} dto.APIResponse "Not a participant"
// @Router /api/v1/chats/{id}/stream [get]
func (h *ChatHandler) Stream(c fiber.Ctx) error {
	accountID, roomID, done, err := h.roomRequest(c)
	if done {
		return err
	}

	ctx, cancel := requestContext(c)
	err = h.flow.AuthorizeSubscription(ctx, roomID, accountID, clientMetadata(c))
	cancel()
	if err != nil {
		return h.BusinessErrorResponse(c, err, "Failed to subscribe", "SUBSCRIBE_FAILED")
	}

	sub := h.hub.Subscribe(roomID)

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	heartbeat := h.heartbeat
	return c.SendStreamWriter(func(w *bufio.Writer) {
		defer h.hub.Unsubscribe(sub)

		ticker := time.NewTicker(heartbeat)
		defer ticker.Stop()

		// An immediate comment lets the client know the subscription is live.
		if writeComment(w, "subscribed") != nil {
			return
		}
		for {
			select {
			case ev, ok := <-sub.Events():
				if !ok {
					return
				}
				if err := writeEvent(w, ev); err != nil {
					log.Printf(`{"level":"info","event":"chat_stream_closed","room_id":%d,"account_id":%d,"reason":"%v"}`, roomID, accountID, err)
					return
				}
			case <-ticker.C:
				if writeComment(w, "ping") != nil {
					return
				}
			}
		}
	})
}

// roomRequest reads the caller and the :id param. When done is true the
// response has already been written and err is its result.
func (h *ChatHandler) roomRequest(c fiber.Ctx) (accountID, roomID uint, done bool, err error) {
	accountID, ok := currentAccount(c)
	if !ok {
		return 0, 0, true, unauthorized(c)
	}
	roomID, perr := parseIDParam(c, "id")
	if perr != nil {
		return 0, 0, true, h.ErrorResponse(c, fiber.StatusBadRequest, perr.Error(), "INVALID_CHAT_ID", nil)
	}
	return accountID, roomID, false, nil
}

func writeEvent(w *bufio.Writer, ev realtime.ChatEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "id: %d\nevent: message\ndata: %s\n\n", ev.MessageID, payload); err != nil {
		return err
	}
	return w.Flush()
}

func writeComment(w *bufio.Writer, text string) error {
	if _, err := fmt.Fprintf(w, ": %s\n\n", text); err != nil {
		return err
	}
	return w.Flush()
}
