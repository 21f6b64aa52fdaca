package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	chat "github.com/zhouzirui/z-chat/internal/model/chat"
	stream "github.com/zhouzirui/z-chat/internal/service/stream"
)

var (
	ErrEmptyMessage = errors.New("message text and attachments are both empty")
	ErrStreamActive = errors.New("a stream is already active")
	ErrClosed       = errors.New("session controller closed")
)

// State is the stream-consumption state of the single allowed exchange.
type State string

const (
	StateIdle       State = "idle"
	StateConnecting State = "connecting"
	StateStreaming  State = "streaming"
)

// Transport opens one streaming exchange. *stream.Client satisfies it via
// ClientTransport; tests inject scripted fakes.
type Transport interface {
	Open(ctx context.Context, req stream.Request) (TransportHandle, error)
}

// TransportHandle is the controller's view of one in-flight exchange.
type TransportHandle interface {
	Events() <-chan stream.TransportEvent
	Cancel()
}

type clientTransport struct {
	c *stream.Client
}

func (t clientTransport) Open(ctx context.Context, req stream.Request) (TransportHandle, error) {
	return t.c.Open(ctx, req)
}

// ClientTransport adapts the HTTP stream client to the Transport seam.
func ClientTransport(c *stream.Client) Transport {
	return clientTransport{c: c}
}

const (
	defaultTitle = "新会话"
	greeting     = "你好！有什么可以帮你的吗？"
	// transportFallback 在连接失败时以占位文本回填助手气泡。
	transportFallback  = "服务器维护中或网络异常，稍后再试！"
	unknownServerError = "未知服务错误"
)

// Controller orchestrates the send protocol over the conversation store.
// It is the single logical writer: every mutation path runs behind mu, so
// transport callbacks and caller operations never interleave mid-update.
type Controller struct {
	mu        sync.Mutex
	store     *chat.Store
	transport Transport

	state  State
	gen    int
	cur    *exchange
	closed bool

	subMu sync.Mutex
	subs  map[chan Update]struct{}
}

// exchange tracks the one allowed in-flight stream. convID is the target
// conversation reference and is rewritten in place when the canonical id
// arrives, so every later append resolves the current id, not the one
// captured at send time.
type exchange struct {
	gen         int
	convID      string
	assistantID string
	handle      TransportHandle
	reconciled  bool
}

// New wires a controller over the store. An empty store is seeded with the
// default conversation so the session always has an active target.
func New(store *chat.Store, transport Transport) *Controller {
	c := &Controller{
		store:     store,
		transport: transport,
		state:     StateIdle,
		subs:      make(map[chan Update]struct{}),
	}
	if store.Len() == 0 {
		conv := chat.Conversation{ID: chat.NewProvisionalID(), Title: defaultTitle}
		store.Insert(conv)
		_ = store.SetActive(conv.ID)
		_ = store.AppendMessage(conv.ID, chat.Message{
			ID:      chat.NewMessageID(chat.RoleAssistant),
			Role:    chat.RoleAssistant,
			Type:    chat.TypeFinal,
			Content: greeting,
		})
	}
	return c
}

// SendMessage appends the user message and an assistant placeholder to the
// active conversation, then opens the streaming exchange. It never blocks on
// the network; completion is observed through store changes and updates.
// A second send while a stream is active is rejected with ErrStreamActive,
// never queued; callers wanting replace-semantics cancel first.
func (c *Controller) SendMessage(text string, attachments []chat.Attachment) error {
	text = strings.TrimSpace(text)
	if text == "" && len(attachments) == 0 {
		return ErrEmptyMessage
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if c.state != StateIdle {
		return ErrStreamActive
	}
	if c.cur != nil {
		// never hold two open handles
		c.cancelLocked()
	}

	target := c.store.ActiveID()

	userMsg := chat.Message{
		ID:          chat.NewMessageID(chat.RoleUser),
		Role:        chat.RoleUser,
		Type:        chat.TypeFinal,
		Content:     text,
		Attachments: attachments,
	}
	if hasImage(attachments) {
		userMsg.Type = chat.TypeImage
	}
	assistant := chat.Message{
		ID:   chat.NewMessageID(chat.RoleAssistant),
		Role: chat.RoleAssistant,
		Type: chat.TypeThinking,
	}

	if err := c.store.AppendMessage(target, userMsg); err != nil {
		return err
	}
	if err := c.store.AppendMessage(target, assistant); err != nil {
		return err
	}
	c.notify(Update{Kind: UpdateMessage, ConversationID: target, MessageID: userMsg.ID, Text: text})

	handle, err := c.transport.Open(context.Background(), stream.Request{
		Query:          text,
		ConversationID: target,
	})
	if err != nil {
		// degrade in-band: the failure lands on the assistant bubble
		_ = c.store.AppendContent(target, assistant.ID, transportFallback)
		_ = c.store.SetMessageType(target, assistant.ID, chat.TypeFinal)
		c.notify(Update{Kind: UpdateError, ConversationID: target, MessageID: assistant.ID, Text: transportFallback})
		return err
	}

	c.gen++
	c.cur = &exchange{gen: c.gen, convID: target, assistantID: assistant.ID, handle: handle}
	c.state = StateConnecting
	go c.consume(c.gen, handle)

	log.Printf("[session] stream opened for conversation=%s", target)
	return nil
}

// CancelStream aborts the in-flight exchange, if any. Idempotent.
func (c *Controller) CancelStream() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelLocked()
}

// Close tears the controller down: the open transport is cancelled and all
// pending callbacks become inert.
func (c *Controller) Close() {
	c.mu.Lock()
	c.cancelLocked()
	c.closed = true
	c.mu.Unlock()

	c.subMu.Lock()
	for ch := range c.subs {
		close(ch)
	}
	c.subs = make(map[chan Update]struct{})
	c.subMu.Unlock()
}

// State reports the stream state machine position.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Streaming reports whether an exchange is in flight.
func (c *Controller) Streaming() bool {
	return c.State() != StateIdle
}

// CreateConversation mints a provisional conversation, inserts it at the
// head of the list and makes it active. No network call.
func (c *Controller) CreateConversation() chat.Conversation {
	c.mu.Lock()
	defer c.mu.Unlock()

	conv := chat.Conversation{ID: chat.NewProvisionalID(), Title: defaultTitle}
	c.store.Insert(conv)
	_ = c.store.SetActive(conv.ID)
	inserted, _ := c.store.Get(conv.ID)
	return inserted
}

// RenameConversation updates a conversation title.
func (c *Controller) RenameConversation(id, title string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.Rename(id, title)
}

// DeleteConversation removes a conversation. Deleting the active one
// promotes the most recent remaining conversation; deleting the last one
// seeds a fresh empty conversation, so the session is never without an
// active target. A stream bound to the deleted conversation is cancelled.
func (c *Controller) DeleteConversation(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cur != nil && c.cur.convID == id {
		c.cancelLocked()
	}

	if _, err := c.store.Delete(id); err != nil {
		return err
	}
	if c.store.Len() == 0 {
		conv := chat.Conversation{ID: chat.NewProvisionalID(), Title: defaultTitle}
		c.store.Insert(conv)
		_ = c.store.SetActive(conv.ID)
	}
	return nil
}

// SetActive selects the conversation shown to the caller. The in-flight
// stream, if any, keeps targeting its own snapshot reference.
func (c *Controller) SetActive(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.SetActive(id)
}

// ActiveID returns the active conversation id.
func (c *Controller) ActiveID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.ActiveID()
}

// Conversations lists all conversations, newest-first.
func (c *Controller) Conversations() []chat.Conversation {
	return c.store.List()
}

// Messages returns the transcript snapshot of one conversation.
func (c *Controller) Messages(id string) ([]chat.Message, error) {
	conv, ok := c.store.Get(id)
	if !ok {
		return nil, chat.ErrConversationNotFound
	}
	return conv.Messages, nil
}

// consume drains one transport handle. All mutation goes through locked
// methods that re-check the generation stamp, so events from a superseded
// or cancelled exchange never touch the store.
func (c *Controller) consume(gen int, h TransportHandle) {
	for ev := range h.Events() {
		switch ev.Type {
		case stream.EventOpened:
			log.Printf("[session] transport connected")
		case stream.EventRecord:
			c.onRecord(gen, ev.Data)
		case stream.EventError:
			c.onTransportError(gen, ev.Err)
		case stream.EventClosed:
			c.onClosed(gen)
		}
	}
}

func (c *Controller) onRecord(gen int, raw string) {
	rec := stream.ParseRecord(raw)

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.currentLocked(gen) {
		return
	}
	if c.state == StateConnecting {
		c.state = StateStreaming
	}

	switch rec.Kind {
	case stream.RecordMalformed:
		log.Printf("[session] ignoring malformed stream record")
	case stream.RecordServerError:
		msg := rec.ErrMessage
		if msg == "" {
			msg = unknownServerError
		}
		log.Printf("[session] server reported failure status=%d: %s", rec.Status, msg)
		c.endExchangeLocked(fmt.Sprintf("\n[错误: %s]", msg), UpdateError)
	case stream.RecordEnd:
		// the end record may be the only disclosure of the canonical id
		if rec.ConversationID != "" {
			c.reconcileLocked(rec.ConversationID)
		}
		c.endExchangeLocked("", UpdateFinal)
	case stream.RecordContent:
		// reconciliation always runs before the same record's append
		if rec.ConversationID != "" {
			c.reconcileLocked(rec.ConversationID)
		}
		if rec.Answer != "" {
			cur := c.cur
			_ = c.store.AppendContent(cur.convID, cur.assistantID, rec.Answer)
			c.notify(Update{Kind: UpdateDelta, ConversationID: cur.convID, MessageID: cur.assistantID, Text: rec.Answer})
		}
	}
}

func (c *Controller) onTransportError(gen int, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.currentLocked(gen) {
		return
	}
	log.Printf("[session] transport error: %v", err)
	c.endExchangeLocked(transportFallback, UpdateError)
}

func (c *Controller) onClosed(gen int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.currentLocked(gen) {
		return
	}
	c.endExchangeLocked("", UpdateFinal)
}

// reconcileLocked swaps a provisional conversation id for the canonical one
// disclosed by the stream. Applied at most once per exchange; swapping an id
// for itself is a no-op.
func (c *Controller) reconcileLocked(newID string) {
	cur := c.cur
	if cur.reconciled {
		return
	}
	old := cur.convID
	if old == newID || !chat.IsProvisional(old) {
		cur.reconciled = true
		return
	}
	if c.store.ReplaceID(old, newID) {
		cur.convID = newID
		log.Printf("[session] conversation id reconciled %s -> %s", old, newID)
		c.notify(Update{Kind: UpdateReconciled, ConversationID: newID, Text: old})
	}
	cur.reconciled = true
}

func (c *Controller) endExchangeLocked(annotation string, kind UpdateKind) {
	cur := c.cur
	if annotation != "" {
		_ = c.store.AppendContent(cur.convID, cur.assistantID, annotation)
	}
	_ = c.store.SetMessageType(cur.convID, cur.assistantID, chat.TypeFinal)
	cur.handle.Cancel()
	c.cur = nil
	c.state = StateIdle
	c.notify(Update{Kind: kind, ConversationID: cur.convID, MessageID: cur.assistantID, Text: annotation})
}

func (c *Controller) cancelLocked() {
	if c.cur == nil {
		c.state = StateIdle
		return
	}
	cur := c.cur
	cur.handle.Cancel()
	_ = c.store.SetMessageType(cur.convID, cur.assistantID, chat.TypeFinal)
	c.cur = nil
	c.gen++ // pending callbacks from the old exchange become inert
	c.state = StateIdle
}

func (c *Controller) currentLocked(gen int) bool {
	return !c.closed && c.cur != nil && c.cur.gen == gen
}

func hasImage(attachments []chat.Attachment) bool {
	for _, a := range attachments {
		if a.IsImage() {
			return true
		}
	}
	return false
}
