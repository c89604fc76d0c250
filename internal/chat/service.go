package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ecopower/ecopower/internal/apperror"
	"github.com/ecopower/ecopower/internal/model"
	"github.com/ecopower/ecopower/internal/push"
	"github.com/ecopower/ecopower/internal/store"
)

// DefaultHistoryLimit caps how many messages a history query returns.
const DefaultHistoryLimit = 100

// Service persists messages and routes them to live connections, falling
// back to a push notification for recipients who are offline.
type Service struct {
	hub      *Hub
	messages *store.MessageStore
	users    *store.UserStore
	houses   *store.HouseStore
	push     *push.Dispatcher
	logger   *slog.Logger
}

func NewService(hub *Hub, messages *store.MessageStore, users *store.UserStore, houses *store.HouseStore, dispatcher *push.Dispatcher, logger *slog.Logger) *Service {
	return &Service{
		hub:      hub,
		messages: messages,
		users:    users,
		houses:   houses,
		push:     dispatcher,
		logger:   logger.With("component", "chat"),
	}
}

// SendDirect delivers a one-to-one message. Sender and receiver must be
// related: either one owns the other, or they share a house.
func (s *Service) SendDirect(ctx context.Context, senderID, receiverID int64, body string) (*model.Message, error) {
	if strings.TrimSpace(body) == "" {
		return nil, apperror.Validation("message body must not be empty")
	}
	if senderID == receiverID {
		return nil, apperror.Validation("cannot message yourself")
	}

	sender, err := s.users.GetByID(senderID)
	if err != nil {
		return nil, err
	}
	receiver, err := s.users.GetByID(receiverID)
	if err != nil {
		return nil, err
	}
	if sender == nil || receiver == nil {
		return nil, apperror.NotFound("recipient")
	}
	houseID, err := s.conversationHouse(sender, receiver)
	if err != nil {
		return nil, err
	}

	msg, err := s.messages.Create(&model.Message{
		SenderID:   senderID,
		ReceiverID: &receiverID,
		HouseID:    houseID,
		Body:       body,
		Kind:       model.MessageText,
	})
	if err != nil {
		return nil, err
	}

	s.deliver(msg, []int64{receiverID}, sender)
	return msg, nil
}

// SendHouse broadcasts a message to every resident of the house. Only the
// house's owner may broadcast.
func (s *Service) SendHouse(ctx context.Context, senderID, houseID int64, body, kind string) (*model.Message, error) {
	if strings.TrimSpace(body) == "" {
		return nil, apperror.Validation("message body must not be empty")
	}
	if kind == "" {
		kind = model.MessageText
	}

	house, err := s.houses.GetByID(houseID)
	if err != nil {
		return nil, err
	}
	if house == nil {
		return nil, apperror.NotFound(fmt.Sprintf("house %d", houseID))
	}
	if house.OwnerID != senderID {
		return nil, apperror.Forbidden("only the house owner can broadcast to the house")
	}

	msg, err := s.messages.Create(&model.Message{
		SenderID: senderID,
		HouseID:  houseID,
		Body:     body,
		Kind:     kind,
	})
	if err != nil {
		return nil, err
	}

	members, err := s.houses.ListMembers(houseID)
	if err != nil {
		return nil, err
	}
	sender, err := s.users.GetByID(senderID)
	if err != nil {
		return nil, err
	}
	recipients := make([]int64, 0, len(members))
	for _, m := range members {
		if m.ID != senderID {
			recipients = append(recipients, m.ID)
		}
	}
	s.deliver(msg, recipients, sender)
	return msg, nil
}

// SendAttachment delivers a direct message carrying an uploaded file.
func (s *Service) SendAttachment(ctx context.Context, senderID, receiverID int64, url, name string, size int64) (*model.Message, error) {
	sender, err := s.users.GetByID(senderID)
	if err != nil {
		return nil, err
	}
	receiver, err := s.users.GetByID(receiverID)
	if err != nil {
		return nil, err
	}
	if sender == nil || receiver == nil {
		return nil, apperror.NotFound("recipient")
	}
	houseID, err := s.conversationHouse(sender, receiver)
	if err != nil {
		return nil, err
	}

	msg, err := s.messages.Create(&model.Message{
		SenderID:       senderID,
		ReceiverID:     &receiverID,
		HouseID:        houseID,
		Body:           name,
		Kind:           model.MessageAttachment,
		AttachmentURL:  url,
		AttachmentName: name,
		AttachmentSize: size,
	})
	if err != nil {
		return nil, err
	}

	s.deliver(msg, []int64{receiverID}, sender)
	return msg, nil
}

// Conversation returns the direct history between two users.
func (s *Service) Conversation(userA, userB int64) ([]model.Message, error) {
	return s.messages.ListConversation(userA, userB, DefaultHistoryLimit)
}

// HouseHistory returns the broadcast history for a house.
func (s *Service) HouseHistory(houseID int64) ([]model.Message, error) {
	return s.messages.ListHouse(houseID, DefaultHistoryLimit)
}

// MarkRead marks the peer's direct messages to the reader as read and
// tells the peer's live connections.
func (s *Service) MarkRead(readerID, peerID int64) error {
	n, err := s.messages.MarkRead(readerID, peerID, time.Now())
	if err != nil {
		return err
	}
	if n > 0 {
		s.hub.SendToUser(peerID, Event{
			Type:  EventRead,
			Extra: map[string]any{"reader_id": readerID, "count": n},
		})
	}
	return nil
}

// deliver fans a stored message out over live connections and pushes a
// notification to anyone offline.
func (s *Service) deliver(msg *model.Message, recipients []int64, sender *model.User) {
	event := Event{Type: EventMessage, Message: msg}
	offline := s.hub.SendToUsers(recipients, event)
	// echo to the sender's other devices
	s.hub.SendToUser(msg.SenderID, event)

	title := "New message"
	if sender != nil {
		title = "Message from " + sender.FullName()
	}
	body := msg.Body
	if msg.Kind == model.MessageAttachment {
		body = "Sent an attachment: " + msg.AttachmentName
	}
	for _, userID := range offline {
		s.push.Notify(userID, title, body, model.NotifInfo)
	}
}

// conversationHouse resolves which house a direct conversation belongs to:
// the resident's house when one party owns the other's housing, otherwise
// the shared house.
func (s *Service) conversationHouse(a, b *model.User) (int64, error) {
	resident := a
	if resident.HouseID == nil {
		resident = b
	}
	if resident.HouseID == nil {
		return 0, apperror.Validation("neither party is assigned to a house")
	}
	other := a
	if other == resident {
		other = b
	}

	house, err := s.houses.GetByID(*resident.HouseID)
	if err != nil {
		return 0, err
	}
	if house == nil {
		return 0, apperror.NotFound(fmt.Sprintf("house %d", *resident.HouseID))
	}
	if house.OwnerID == other.ID {
		return house.ID, nil
	}
	if other.HouseID != nil && *other.HouseID == house.ID {
		return house.ID, nil
	}
	return 0, apperror.Forbidden("no shared house or ownership relation between the parties")
}
