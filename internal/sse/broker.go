// Package sse pushes character change notifications to browsers as
// Server-Sent Events.
package sse

import (
	"bytes"
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// Event types.
const (
	TypeCharacterSaved   = "character.saved"
	TypeCharacterDeleted = "character.deleted"
	TypeCharactersPurged = "characters.purged"
	TypeListUpdated      = "list.updated"
)

// kindTypes maps the change kinds reported by the character service to the
// event type sent for them.
var kindTypes = map[string]string{
	"saved":   TypeCharacterSaved,
	"deleted": TypeCharacterDeleted,
	"purged":  TypeCharactersPurged,
}

// Event is one frame written to every subscriber.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// CharacterData is the payload of character events.
type CharacterData struct {
	ID string `json:"id,omitempty"`
}

// frame renders e in the text/event-stream wire format.
func (e Event) frame() ([]byte, error) {
	data, err := json.Marshal(e.Data)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	buf.WriteString("event: ")
	buf.WriteString(e.Type)
	buf.WriteString("\ndata: ")
	buf.Write(data)
	buf.WriteString("\n\n")
	return buf.Bytes(), nil
}

// hub is the subscriber state. Only the broker loop touches it.
type hub struct {
	subs     map[chan []byte]struct{}
	throttle time.Duration
	listSent time.Time
}

// send writes ev to every subscriber whose buffer has room.
func (h *hub) send(ev Event) {
	frame, err := ev.frame()
	if err != nil {
		return
	}
	for ch := range h.subs {
		select {
		case ch <- frame:
		default:
		}
	}
}

// changed announces one character change, then list.updated unless one went
// out within the throttle window.
func (h *hub) changed(kind, id string, now time.Time) {
	if typ, ok := kindTypes[kind]; ok {
		h.send(Event{Type: typ, Data: CharacterData{ID: id}})
	}
	if now.Sub(h.listSent) < h.throttle {
		return
	}
	h.listSent = now
	h.send(Event{Type: TypeListUpdated, Data: map[string]string{}})
}

// Broker fans events out to SSE subscribers. Every public method hands the
// loop goroutine an operation on the hub, in call order.
type Broker struct {
	keepAlive time.Duration

	ops  chan func(*hub)
	quit chan struct{}
	done chan struct{}
	once sync.Once
}

// NewBroker starts a broker that emits list.updated at most once per
// listThrottle.
func NewBroker(listThrottle time.Duration) *Broker {
	if listThrottle <= 0 {
		listThrottle = 2 * time.Second
	}
	b := &Broker{
		keepAlive: 25 * time.Second,
		ops:       make(chan func(*hub), 256),
		quit:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	h := &hub{subs: make(map[chan []byte]struct{}), throttle: listThrottle}
	go b.loop(h)
	return b
}

func (b *Broker) loop(h *hub) {
	defer close(b.done)
	defer func() {
		for ch := range h.subs {
			close(ch)
		}
	}()

	for {
		select {
		case <-b.quit:
			return
		case op := <-b.ops:
			op(h)
		}
	}
}

// submit queues op and reports whether the broker was still open.
func (b *Broker) submit(op func(*hub)) bool {
	select {
	case <-b.quit:
		return false
	default:
	}
	select {
	case b.ops <- op:
		return true
	case <-b.done:
		return false
	}
}

// call runs op on the loop and waits for it. It reports false when the
// broker shut down before op ran.
func (b *Broker) call(op func(*hub)) bool {
	ran := make(chan struct{})
	if !b.submit(func(h *hub) { op(h); close(ran) }) {
		return false
	}
	select {
	case <-ran:
		return true
	case <-b.done:
		select {
		case <-ran:
			return true
		default:
			return false
		}
	}
}

// Close stops the loop and closes every subscriber channel.
func (b *Broker) Close() {
	b.once.Do(func() { close(b.quit) })
	<-b.done
}

// Subscribe registers a subscriber. The channel is closed by Unsubscribe or
// Close; it is returned already closed once the broker is shut down.
func (b *Broker) Subscribe() chan []byte {
	ch := make(chan []byte, 64)
	if !b.call(func(h *hub) { h.subs[ch] = struct{}{} }) {
		close(ch)
	}
	return ch
}

// Unsubscribe drops a subscriber and closes its channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
	b.call(func(h *hub) {
		if _, ok := h.subs[ch]; ok {
			delete(h.subs, ch)
			close(ch)
		}
	})
}

// ClientCount returns the number of subscribers.
func (b *Broker) ClientCount() int {
	var n int
	if !b.call(func(h *hub) { n = len(h.subs) }) {
		return 0
	}
	return n
}

// Publish queues ev for every subscriber.
func (b *Broker) Publish(ev Event) {
	b.submit(func(h *hub) { h.send(ev) })
}

// PublishCharacterEvent queues a character change followed by a throttled
// list.updated. kind is one of saved, deleted or purged.
func (b *Broker) PublishCharacterEvent(kind, id string) {
	b.submit(func(h *hub) { h.changed(kind, id, time.Now()) })
}

// ServeHTTP streams events to one client (GET /events) with a comment ping
// every keepAlive.
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	ping := time.NewTicker(b.keepAlive)
	defer ping.Stop()

	emit := func(p []byte) bool {
		if _, err := w.Write(p); err != nil {
			return false
		}
		flusher.Flush()
		return true
	}

	for {
		var out []byte
		select {
		case <-r.Context().Done():
			return
		case <-ping.C:
			out = []byte(": ping\n\n")
		case msg, open := <-ch:
			if !open {
				return
			}
			out = msg
		}
		if !emit(out) {
			return
		}
	}
}
