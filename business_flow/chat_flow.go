package businessflow

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strconv"
	"strings"

	"github.com/kisaan-market/kisaan/app/dto"
	"github.com/kisaan-market/kisaan/app/realtime"
	"github.com/kisaan-market/kisaan/models"
	"github.com/kisaan-market/kisaan/repository"
	"github.com/kisaan-market/kisaan/utils"
)

// System message texts
const (
	greetingWithProductFmt = "Hi %s, I'm interested in your product '%s'. Please accept this chat to continue."
	greetingFmt            = "Hi %s, I'd like to connect with you. Please accept this chat to continue."
	returnedViaProductFmt  = "[System Note] Customer returned to chat via product: '%s'"
	acceptedText           = "I've accepted your chat request. How can I help you?"
	rejectedText           = "[System Notification] Unfortunately, the farmer has rejected your chat request."
)

// ChatFlow runs the farmer/customer conversation lifecycle
type ChatFlow interface {
	OpenOrGet(ctx context.Context, actorAccountID uint, req *dto.OpenChatRequest, metadata *ClientMetadata) (*dto.ChatRoomResponse, error)
	Accept(ctx context.Context, roomID, actorAccountID uint, metadata *ClientMetadata) (*dto.ChatRoomResponse, error)
	Reject(ctx context.Context, roomID, actorAccountID uint, metadata *ClientMetadata) (*dto.ChatRoomResponse, error)
	PostMessage(ctx context.Context, roomID, actorAccountID uint, req *dto.PostMessageRequest, metadata *ClientMetadata) (*dto.MessageDTO, error)
	Visibility(ctx context.Context, roomID, actorAccountID uint, metadata *ClientMetadata) (*dto.ChatView, error)
	AuthorizeSubscription(ctx context.Context, roomID, actorAccountID uint, metadata *ClientMetadata) error
	ListChats(ctx context.Context, actorAccountID uint) (*dto.ChatListResponse, error)
}

// ChatFlowImpl implements ChatFlow
type ChatFlowImpl struct {
	identityResolver
	roomRepo    repository.ChatRoomRepository
	messageRepo repository.MessageRepository
	productRepo repository.ProductRepository
	reviewRepo  repository.ReviewRepository
	publisher   realtime.Publisher
	tx          repository.Transactor
	clock       utils.Clock
}

// NewChatFlow creates a new chat flow instance
func NewChatFlow(
	accountRepo repository.AccountRepository,
	profileRepo repository.ProfileRepository,
	farmerRepo repository.FarmerProfileRepository,
	customerRepo repository.CustomerProfileRepository,
	roomRepo repository.ChatRoomRepository,
	messageRepo repository.MessageRepository,
	productRepo repository.ProductRepository,
	reviewRepo repository.ReviewRepository,
	auditRepo repository.AuditLogRepository,
	publisher realtime.Publisher,
	tx repository.Transactor,
	clock utils.Clock,
) ChatFlow {
	if clock == nil {
		clock = utils.SystemClock{}
	}
	return &ChatFlowImpl{
		identityResolver: identityResolver{
			accountRepo:  accountRepo,
			profileRepo:  profileRepo,
			farmerRepo:   farmerRepo,
			customerRepo: customerRepo,
			auditRepo:    auditRepo,
		},
		roomRepo:    roomRepo,
		messageRepo: messageRepo,
		productRepo: productRepo,
		reviewRepo:  reviewRepo,
		publisher:   publisher,
		tx:          tx,
		clock:       clock,
	}
}

type participant int

const (
	outsider participant = iota
	roomFarmer
	roomCustomer
)

func participantOf(identity *models.Identity, room *models.ChatRoom) participant {
	if fp, ok := identity.Farmer(); ok && fp.ID == room.FarmerProfileID {
		return roomFarmer
	}
	if cp, ok := identity.Customer(); ok && cp.ID == room.CustomerProfileID {
		return roomCustomer
	}
	return outsider
}

// OpenOrGet returns the customer's room with a farmer, creating it on first contact
func (s *ChatFlowImpl) OpenOrGet(ctx context.Context, actorAccountID uint, req *dto.OpenChatRequest, metadata *ClientMetadata) (*dto.ChatRoomResponse, error) {
	identity, customer, err := s.customer(ctx, actorAccountID)
	if err != nil {
		if IsForbiddenError(err) {
			err = s.forbidden(ctx, "open_chat", actorAccountID, "chat", err, metadata)
		}
		return nil, NewBusinessError("CHAT_OPEN_FAILED", "Only customers can start a chat", err)
	}
	customer.Account = identity.Account

	if req.FarmerID == nil && req.ProductID == nil {
		return nil, NewBusinessError("CHAT_VALIDATION_FAILED", "Chat validation failed", ErrFarmerOrProductRequired)
	}

	var product *models.Product
	if req.ProductID != nil {
		product, err = s.productRepo.ByID(ctx, *req.ProductID)
		if err != nil {
			return nil, NewBusinessError("CHAT_OPEN_FAILED", "Failed to open chat", err)
		}
		if product == nil {
			return nil, NewBusinessError("PRODUCT_NOT_FOUND", "Product not found", ErrProductNotFound)
		}
	}

	var farmerID uint
	switch {
	case req.FarmerID != nil && product != nil && product.FarmerProfileID != *req.FarmerID:
		return nil, NewBusinessError("CHAT_VALIDATION_FAILED", "Chat validation failed", ErrProductFarmerMismatch)
	case req.FarmerID != nil:
		farmerID = *req.FarmerID
	default:
		farmerID = product.FarmerProfileID
	}

	farmer, err := s.farmerRepo.ByID(ctx, farmerID)
	if err != nil {
		return nil, NewBusinessError("CHAT_OPEN_FAILED", "Failed to open chat", err)
	}
	if farmer == nil {
		return nil, NewBusinessError("FARMER_NOT_FOUND", "Farmer not found", ErrFarmerNotFound)
	}

	var (
		room    *models.ChatRoom
		created bool
		note    *models.Message
	)
	err = s.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		candidate := &models.ChatRoom{FarmerProfileID: farmer.ID, CustomerProfileID: customer.ID}
		if product != nil {
			candidate.ProductID = &product.ID
		}

		var err error
		room, created, err = s.roomRepo.GetOrCreate(txCtx, candidate)
		if err != nil {
			return err
		}

		farmerName := farmer.Account.DisplayName()
		switch {
		case created && product != nil:
			note = s.systemMessage(room.ID, actorAccountID, fmt.Sprintf(greetingWithProductFmt, farmerName, product.DisplayName()))
		case created:
			note = s.systemMessage(room.ID, actorAccountID, fmt.Sprintf(greetingFmt, farmerName))
		case product != nil:
			note = s.systemMessage(room.ID, actorAccountID, fmt.Sprintf(returnedViaProductFmt, product.DisplayName()))
		default:
			return nil
		}
		return s.messageRepo.Save(txCtx, note)
	})
	if err != nil {
		return nil, NewBusinessError("CHAT_OPEN_FAILED", "Failed to open chat", err)
	}

	chatRoomsOpened.WithLabelValues(strconv.FormatBool(created)).Inc()
	if note != nil {
		chatMessagesPosted.WithLabelValues(string(note.Kind)).Inc()
		s.publish(ctx, note, identity.Account)
	}
	if created {
		createAuditLog(ctx, s.auditRepo, &actorAccountID, models.AuditActionChatOpened,
			fmt.Sprintf("Chat %d opened with farmer %d", room.ID, farmer.ID), true, nil, metadata)
	}

	room.FarmerProfile = farmer
	room.CustomerProfile = customer
	if room.ProductID != nil && product != nil && *room.ProductID == product.ID {
		room.Product = product
	} else {
		s.attachProduct(ctx, room)
	}

	return &dto.ChatRoomResponse{Room: toChatRoomDTO(room), Created: created, Changed: created}, nil
}

// Accept lets the room's farmer open the conversation
func (s *ChatFlowImpl) Accept(ctx context.Context, roomID, actorAccountID uint, metadata *ClientMetadata) (*dto.ChatRoomResponse, error) {
	return s.decide(ctx, roomID, actorAccountID, models.ChatStateAccepted, metadata)
}

// Reject lets the room's farmer decline the conversation
func (s *ChatFlowImpl) Reject(ctx context.Context, roomID, actorAccountID uint, metadata *ClientMetadata) (*dto.ChatRoomResponse, error) {
	return s.decide(ctx, roomID, actorAccountID, models.ChatStateRejected, metadata)
}

func (s *ChatFlowImpl) decide(ctx context.Context, roomID, actorAccountID uint, state models.ChatState, metadata *ClientMetadata) (*dto.ChatRoomResponse, error) {
	operation := "accept_chat"
	text := acceptedText
	action := models.AuditActionChatAccepted
	if state == models.ChatStateRejected {
		operation = "reject_chat"
		text = rejectedText
		action = models.AuditActionChatRejected
	}

	identity, room, who, err := s.loadForActor(ctx, roomID, actorAccountID)
	if err != nil {
		return nil, NewBusinessError("CHAT_UPDATE_FAILED", "Failed to update chat", err)
	}
	switch who {
	case roomFarmer:
	case roomCustomer:
		err = s.forbidden(ctx, operation, actorAccountID, fmt.Sprintf("chat %d", roomID), ErrOnlyFarmerMayRespond, metadata)
		return nil, NewBusinessError("CHAT_FORBIDDEN", "Only the farmer can respond to this chat", err)
	default:
		err = s.forbidden(ctx, operation, actorAccountID, fmt.Sprintf("chat %d", roomID), ErrNotParticipant, metadata)
		return nil, NewBusinessError("CHAT_FORBIDDEN", "You are not a participant of this chat", err)
	}

	var note *models.Message
	changed := false
	err = s.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		var err error
		changed, err = s.roomRepo.Transition(txCtx, room.ID, state)
		if err != nil || !changed {
			return err
		}
		note = s.systemMessage(room.ID, actorAccountID, text)
		return s.messageRepo.Save(txCtx, note)
	})
	if err != nil {
		return nil, NewBusinessError("CHAT_UPDATE_FAILED", "Failed to update chat", err)
	}

	if changed {
		if state == models.ChatStateAccepted {
			room.Accept()
		} else {
			room.Reject()
		}
		chatMessagesPosted.WithLabelValues(string(note.Kind)).Inc()
		s.publish(ctx, note, identity.Account)
		createAuditLog(ctx, s.auditRepo, &actorAccountID, action,
			fmt.Sprintf("Chat %d moved to %s", room.ID, state), true, nil, metadata)
	}

	return &dto.ChatRoomResponse{Room: toChatRoomDTO(room), Changed: changed}, nil
}

// PostMessage stores a participant's message and pushes it to subscribers
func (s *ChatFlowImpl) PostMessage(ctx context.Context, roomID, actorAccountID uint, req *dto.PostMessageRequest, metadata *ClientMetadata) (*dto.MessageDTO, error) {
	identity, room, who, err := s.loadForActor(ctx, roomID, actorAccountID)
	if err != nil {
		return nil, NewBusinessError("MESSAGE_POST_FAILED", "Failed to post message", err)
	}
	if who == outsider {
		err = s.forbidden(ctx, "post_message", actorAccountID, fmt.Sprintf("chat %d", roomID), ErrNotParticipant, metadata)
		return nil, NewBusinessError("CHAT_FORBIDDEN", "You are not a participant of this chat", err)
	}
	if !canPost(room.State(), who) {
		err = s.forbidden(ctx, "post_message", actorAccountID, fmt.Sprintf("chat %d (%s)", roomID, room.State()), ErrPostingClosed, metadata)
		return nil, NewBusinessError("CHAT_POSTING_CLOSED", "Posting is not allowed in this chat right now", err)
	}

	text := strings.TrimSpace(req.Text)
	if text == "" {
		return nil, NewBusinessError("MESSAGE_VALIDATION_FAILED", "Message validation failed", ErrEmptyMessage)
	}

	msg := &models.Message{
		ChatRoomID:      room.ID,
		AuthorAccountID: &actorAccountID,
		Kind:            models.MessageKindUser,
		Content:         text,
		CreatedAt:       s.clock.Now(),
	}
	if err := s.messageRepo.Save(ctx, msg); err != nil {
		return nil, NewBusinessError("MESSAGE_POST_FAILED", "Failed to post message", err)
	}
	msg.Author = identity.Account

	chatMessagesPosted.WithLabelValues(string(msg.Kind)).Inc()
	s.publish(ctx, msg, identity.Account)

	out := toMessageDTO(msg, room, actorAccountID)
	return &out, nil
}

func canPost(state models.ChatState, who participant) bool {
	switch state {
	case models.ChatStateAccepted:
		return who == roomFarmer || who == roomCustomer
	case models.ChatStateRejected:
		return who == roomFarmer
	}
	return false
}

// Visibility returns what the participant may currently see and do in the room
func (s *ChatFlowImpl) Visibility(ctx context.Context, roomID, actorAccountID uint, metadata *ClientMetadata) (*dto.ChatView, error) {
	_, room, who, err := s.loadForActor(ctx, roomID, actorAccountID)
	if err != nil {
		return nil, NewBusinessError("CHAT_VIEW_FAILED", "Failed to load chat", err)
	}
	if who == outsider {
		err = s.forbidden(ctx, "view_chat", actorAccountID, fmt.Sprintf("chat %d", roomID), ErrNotParticipant, metadata)
		return nil, NewBusinessError("CHAT_FORBIDDEN", "You are not a participant of this chat", err)
	}

	view := &dto.ChatView{
		Room:       toChatRoomDTO(room),
		ViewerRole: string(models.RoleCustomer),
		Messages:   []dto.MessageDTO{},
	}
	if who == roomFarmer {
		view.ViewerRole = string(models.RoleFarmer)
	}

	state := room.State()
	switch {
	case state == models.ChatStateRejected && who == roomCustomer:
		view.Terminal = true
		view.ReadOnly = true
		view.Notice = "The farmer has rejected your chat request."
		return view, nil
	case state == models.ChatStatePending:
		view.ReadOnly = true
		if who == roomFarmer {
			view.Notice = "Accept this chat request to reply."
		} else {
			view.Notice = "Waiting for the farmer to accept your chat request."
		}
	default:
		view.CanPost = true
	}

	messages, err := s.messageRepo.ListByRoom(ctx, room.ID)
	if err != nil {
		return nil, NewBusinessError("CHAT_VIEW_FAILED", "Failed to load chat", err)
	}
	for _, msg := range messages {
		view.Messages = append(view.Messages, toMessageDTO(msg, room, actorAccountID))
	}

	summary, err := s.reviewRepo.SummaryForFarmer(ctx, room.FarmerProfileID)
	if err != nil {
		log.Printf("chat: failed to load rating for farmer %d: %v", room.FarmerProfileID, err)
	} else {
		view.FarmerRating = toRatingDTO(summary)
	}
	return view, nil
}

// AuthorizeSubscription is checked on every stream connect.
func (s *ChatFlowImpl) AuthorizeSubscription(ctx context.Context, roomID, actorAccountID uint, metadata *ClientMetadata) error {
	_, _, who, err := s.loadForActor(ctx, roomID, actorAccountID)
	if err != nil {
		return NewBusinessError("CHAT_STREAM_FAILED", "Failed to open chat stream", err)
	}
	if who == outsider {
		err = s.forbidden(ctx, "subscribe_chat", actorAccountID, fmt.Sprintf("chat %d", roomID), ErrNotParticipant, metadata)
		return NewBusinessError("CHAT_FORBIDDEN", "You are not a participant of this chat", err)
	}
	return nil
}

// ListChats returns the caller's rooms with their latest message. Farmers see
// pending requests first.
func (s *ChatFlowImpl) ListChats(ctx context.Context, actorAccountID uint) (*dto.ChatListResponse, error) {
	identity, err := s.resolve(ctx, actorAccountID)
	if err != nil {
		return nil, NewBusinessError("CHAT_LIST_FAILED", "Failed to list chats", err)
	}

	var filter models.ChatRoomFilter
	var asFarmer bool
	switch rp := identity.RoleProfile.(type) {
	case *models.FarmerProfile:
		filter.FarmerProfileID = &rp.ID
		asFarmer = true
	case *models.CustomerProfile:
		filter.CustomerProfileID = &rp.ID
	default:
		return nil, NewBusinessError("CHAT_LIST_FAILED", "Only farmers and customers have chats", ErrRoleNotAllowed)
	}

	rooms, err := s.roomRepo.ByFilter(ctx, filter, "updated_at DESC, id DESC", 0, 0)
	if err != nil {
		return nil, NewBusinessError("CHAT_LIST_FAILED", "Failed to list chats", err)
	}

	ids := make([]uint, 0, len(rooms))
	for _, room := range rooms {
		ids = append(ids, room.ID)
	}
	latest, err := s.messageRepo.LatestByRooms(ctx, ids)
	if err != nil {
		return nil, NewBusinessError("CHAT_LIST_FAILED", "Failed to list chats", err)
	}

	resp := &dto.ChatListResponse{Role: string(identity.Role()), Chats: make([]dto.ChatSummaryDTO, 0, len(rooms))}
	for _, room := range rooms {
		summary := dto.ChatSummaryDTO{Room: toChatRoomDTO(room)}
		if asFarmer {
			summary.Counterpart = summary.Room.CustomerName
			if room.State() == models.ChatStatePending {
				resp.PendingCount++
			}
		} else {
			summary.Counterpart = summary.Room.FarmerName
		}

		hidden := !asFarmer && room.State() == models.ChatStateRejected
		if msg, ok := latest[room.ID]; ok && !hidden {
			m := toMessageDTO(msg, room, actorAccountID)
			summary.LatestMessage = &m
		}
		resp.Chats = append(resp.Chats, summary)
	}

	if asFarmer {
		sort.SliceStable(resp.Chats, func(i, j int) bool {
			pi := resp.Chats[i].Room.State == string(models.ChatStatePending)
			pj := resp.Chats[j].Room.State == string(models.ChatStatePending)
			return pi && !pj
		})
	}
	return resp, nil
}

func (s *ChatFlowImpl) loadForActor(ctx context.Context, roomID, actorAccountID uint) (*models.Identity, *models.ChatRoom, participant, error) {
	identity, err := s.resolve(ctx, actorAccountID)
	if err != nil {
		return nil, nil, outsider, err
	}

	room, err := s.roomRepo.ByID(ctx, roomID)
	if err != nil {
		return nil, nil, outsider, err
	}
	if room == nil {
		return nil, nil, outsider, ErrChatRoomNotFound
	}

	if room.FarmerProfile, err = s.farmerRepo.ByID(ctx, room.FarmerProfileID); err != nil {
		return nil, nil, outsider, err
	}
	if room.CustomerProfile, err = s.customerRepo.ByID(ctx, room.CustomerProfileID); err != nil {
		return nil, nil, outsider, err
	}
	s.attachProduct(ctx, room)

	return identity, room, participantOf(identity, room), nil
}

func (s *ChatFlowImpl) attachProduct(ctx context.Context, room *models.ChatRoom) {
	if room.ProductID == nil || room.Product != nil {
		return
	}
	product, err := s.productRepo.ByID(ctx, *room.ProductID)
	if err != nil {
		log.Printf("chat: failed to load product %d for room %d: %v", *room.ProductID, room.ID, err)
		return
	}
	room.Product = product
}

func (s *ChatFlowImpl) systemMessage(roomID, authorAccountID uint, text string) *models.Message {
	return &models.Message{
		ChatRoomID:      roomID,
		AuthorAccountID: &authorAccountID,
		Kind:            models.MessageKindSystem,
		Content:         text,
		CreatedAt:       s.clock.Now(),
	}
}

// publish runs after the message is stored. Subscribers that miss it read it
// from history.
func (s *ChatFlowImpl) publish(ctx context.Context, msg *models.Message, author *models.Account) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, realtime.NewChatEvent(msg, author)); err != nil {
		log.Printf("chat: failed to publish message %d to room %d: %v", msg.ID, msg.ChatRoomID, err)
	}
}

func toChatRoomDTO(room *models.ChatRoom) dto.ChatRoomDTO {
	out := dto.ChatRoomDTO{
		ID:                room.ID,
		State:             string(room.State()),
		FarmerProfileID:   room.FarmerProfileID,
		CustomerProfileID: room.CustomerProfileID,
		ProductID:         room.ProductID,
		CreatedAt:         room.CreatedAt,
	}
	if room.FarmerProfile != nil {
		out.FarmerName = room.FarmerProfile.Account.DisplayName()
	}
	if room.CustomerProfile != nil {
		out.CustomerName = room.CustomerProfile.Account.DisplayName()
	}
	if room.Product != nil {
		out.ProductName = room.Product.DisplayName()
	}
	return out
}

func toMessageDTO(msg *models.Message, room *models.ChatRoom, viewerAccountID uint) dto.MessageDTO {
	out := dto.MessageDTO{
		ID:              msg.ID,
		Kind:            string(msg.Kind),
		Text:            msg.Content,
		AuthorAccountID: msg.AuthorAccountID,
		AuthorName:      "System",
		IsSystem:        msg.IsSystem(),
		IsMine:          msg.AuthoredBy(viewerAccountID),
		Timestamp:       realtime.FormatTimestamp(msg.CreatedAt),
		CreatedAt:       msg.CreatedAt,
	}

	switch {
	case msg.Author != nil:
		out.AuthorName = msg.Author.DisplayName()
	case room.FarmerProfile != nil && msg.AuthoredBy(room.FarmerProfile.AccountID):
		out.AuthorName = room.FarmerProfile.Account.DisplayName()
	case room.CustomerProfile != nil && msg.AuthoredBy(room.CustomerProfile.AccountID):
		out.AuthorName = room.CustomerProfile.Account.DisplayName()
	}
	if room.FarmerProfile != nil {
		out.IsFarmer = msg.AuthoredBy(room.FarmerProfile.AccountID)
	}
	return out
}
