// Package relay validates inbound chat messages, persists them and fans them out to the
// current members of the message's room.
package relay

import (
	"context"
	"encoding/json"

	"chat-relay/internal/payload"
	"chat-relay/internal/registry"
	"chat-relay/internal/storage"
	"chat-relay/internal/zapadapter"

	"github.com/valyala/fastjson"
	"go.uber.org/zap"
)

// EventMessage is the event name used when pushing a message to room members
const EventMessage = "message"

// Store persists messages, assigning id and sent time
type Store interface {
	InsertMessage(ctx context.Context, m storage.Message) (storage.Message, error)
}

// Relay is the single insertion point for chat messages
type Relay struct {
	logger  *zap.SugaredLogger
	store   Store
	conns   *registry.Connections
	rooms   *registry.Rooms
	parsers fastjson.ParserPool
}

func New(logger *zap.SugaredLogger, store Store, conns *registry.Connections, rooms *registry.Rooms) *Relay {
	return &Relay{
		logger: logger,
		store:  store,
		conns:  conns,
		rooms:  rooms,
	}
}

// Validate parses raw as a {body, chat, user} object and returns the unsaved message
func (r *Relay) Validate(raw []byte) (storage.Message, error) {
	parser := r.parsers.Get()
	defer r.parsers.Put(parser)

	v, err := parser.ParseBytes(raw)
	if err != nil {
		return storage.Message{}, ErrInvalidPayload
	}
	return ValidateValue(v)
}

// ValidateValue checks an already parsed message object. Rules are applied in order and the
// first violation is returned: user, chat, body type, body length.
func ValidateValue(v *fastjson.Value) (storage.Message, error) {
	if v == nil || v.Type() != fastjson.TypeObject {
		return storage.Message{}, ErrInvalidPayload
	}

	user, ok := payload.Int64(v.Get("user"))
	if !ok {
		return storage.Message{}, ErrInvalidAuthor
	}

	chat, ok := payload.Int64(v.Get("chat"))
	if !ok {
		return storage.Message{}, ErrInvalidChat
	}

	body, ok := payload.String(v.Get("body"))
	if !ok {
		return storage.Message{}, ErrInvalidBody
	}
	if len(body) == 0 {
		return storage.Message{}, ErrEmptyBody
	}

	return storage.Message{Body: body, Chat: chat, User: user}, nil
}

// Post validates raw, persists the message and delivers it to the room members
func (r *Relay) Post(ctx context.Context, raw []byte) (storage.Message, error) {
	m, err := r.Validate(raw)
	if err != nil {
		zapadapter.With(ctx, r.logger).Debugf("Rejected message: %v", err)
		return storage.Message{}, err
	}
	return r.Send(ctx, m)
}

// Send persists an already validated message and delivers it to the room members.
// Delivery failures are logged per member and never returned.
func (r *Relay) Send(ctx context.Context, m storage.Message) (storage.Message, error) {
	logger := zapadapter.With(ctx, r.logger)

	if m.Body == "" {
		return storage.Message{}, ErrEmptyBody
	}

	logger.Debugf("Saving message from user (id: %d) to chat (id: %d)", m.User, m.Chat)
	saved, err := r.store.InsertMessage(ctx, m)
	if err != nil {
		logger.Errorf("Saving message: %v", err)
		return storage.Message{}, &PersistenceError{Err: err}
	}

	data, err := json.Marshal(saved)
	if err != nil {
		// the message is stored; only live delivery is lost
		logger.Errorf("Encoding message %d: %v", saved.ID, err)
		return saved, nil
	}

	room := r.rooms.GetOrCreate(saved.Chat)
	failed := r.fanout(room.Members, data)
	for _, err := range failed {
		logger.Warnw("Message delivery failed", "message_id", saved.ID, "chat", saved.Chat, zap.Error(err))
	}
	logger.Debugf("Delivered message %d to %d/%d members of chat %d",
		saved.ID, len(room.Members)-len(failed), len(room.Members), saved.Chat)

	return saved, nil
}

// fanout pushes data to every member and returns a DeliveryError per failed member
func (r *Relay) fanout(members []string, data []byte) []error {
	var failed []error
	for _, id := range members {
		conn, err := r.conns.Lookup(id)
		if err != nil {
			failed = append(failed, &DeliveryError{ConnectionID: id, Err: err})
			continue
		}
		if err := conn.Handle.Push(EventMessage, data); err != nil {
			failed = append(failed, &DeliveryError{ConnectionID: id, Err: err})
		}
	}
	return failed
}
