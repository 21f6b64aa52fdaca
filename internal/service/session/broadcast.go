package session

// UpdateKind classifies controller updates pushed to observers.
type UpdateKind string

const (
	// UpdateMessage announces a newly appended user message.
	UpdateMessage UpdateKind = "message"
	// UpdateDelta carries one appended assistant content chunk.
	UpdateDelta UpdateKind = "delta"
	// UpdateReconciled announces a provisional→canonical id swap;
	// ConversationID is the canonical id, Text the replaced one.
	UpdateReconciled UpdateKind = "reconciled"
	// UpdateFinal marks normal completion of the exchange.
	UpdateFinal UpdateKind = "final"
	// UpdateError marks a failed exchange; Text holds the annotation.
	UpdateError UpdateKind = "error"
)

// Update is one observable store change attributable to the controller.
type Update struct {
	Kind           UpdateKind `json:"kind"`
	ConversationID string     `json:"conversationId"`
	MessageID      string     `json:"messageId,omitempty"`
	Text           string     `json:"text,omitempty"`
}

const subscriberBuffer = 32

// Subscribe registers an observer channel. Delivery is best-effort: a
// subscriber that falls behind loses updates instead of stalling the stream.
func (c *Controller) Subscribe() chan Update {
	ch := make(chan Update, subscriberBuffer)

	c.subMu.Lock()
	defer c.subMu.Unlock()
	c.subs[ch] = struct{}{}
	return ch
}

// Unsubscribe removes and closes an observer channel.
func (c *Controller) Unsubscribe(ch chan Update) {
	c.subMu.Lock()
	defer c.subMu.Unlock()

	if _, ok := c.subs[ch]; ok {
		delete(c.subs, ch)
		close(ch)
	}
}

func (c *Controller) notify(u Update) {
	c.subMu.Lock()
	defer c.subMu.Unlock()

	for ch := range c.subs {
		select {
		case ch <- u:
		default:
		}
	}
}
