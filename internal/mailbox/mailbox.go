package mailbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jagilber-org/mcp-agent-manager-sub001/internal/bus"
	"github.com/jagilber-org/mcp-agent-manager-sub001/internal/persistence"
	"github.com/jagilber-org/mcp-agent-manager-sub001/internal/telemetry"
)

// ErrNotFound is returned when a message id is unknown.
var ErrNotFound = errors.New("mailbox: message not found")

// Forwarder best-effort delivers a normalized message to every peer
// manager discovered on the local host (spec §4.8 peer forwarding). The
// dashboard package implements discovery via port files; forwarding
// failures must never fail the originating send.
type Forwarder interface {
	Forward(ctx context.Context, msg Message)
}

// Mailbox is the in-memory, persisted message log for one manager process.
type Mailbox struct {
	mu        sync.Mutex
	messages  map[string]*Message
	log       *persistence.AppendLog
	forwarder Forwarder
	bus       *bus.Bus
	tel       telemetry.Bundle
}

// Option configures a Mailbox.
type Option func(*Mailbox)

// WithAppendLog persists every send/update/delete to an append-only JSONL
// log so other processes sharing the data directory converge via
// dedup-by-id (spec §5 shared-resource policy).
func WithAppendLog(log *persistence.AppendLog) Option {
	return func(m *Mailbox) { m.log = log }
}

// WithForwarder enables peer forwarding on send.
func WithForwarder(f Forwarder) Option {
	return func(m *Mailbox) { m.forwarder = f }
}

// WithBus emits message:received on successful local delivery.
func WithBus(b *bus.Bus) Option {
	return func(m *Mailbox) { m.bus = b }
}

// WithTelemetry attaches structured logging/metrics.
func WithTelemetry(tel telemetry.Bundle) Option {
	return func(m *Mailbox) { m.tel = tel }
}

// New constructs an empty Mailbox.
func New(opts ...Option) *Mailbox {
	m := &Mailbox{messages: make(map[string]*Message), tel: telemetry.NewNoop()}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Load replays the append log (if configured), keeping the latest record
// per message id (dedup-by-id).
func (m *Mailbox) Load(context.Context) error {
	if m.log == nil {
		return nil
	}
	records, err := m.log.LoadLatestByID(persistence.JSONIDOf)
	if err != nil {
		return fmt.Errorf("mailbox: load: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, raw := range records {
		var msg Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}
		copied := msg
		m.messages[msg.ID] = &copied
	}
	return nil
}

// Send appends a new message and returns its id (spec §4.8 send).
func (m *Mailbox) Send(ctx context.Context, opts SendOptions) (string, error) {
	if opts.Channel == "" {
		return "", errors.New("mailbox: channel is required")
	}
	now := time.Now().UTC()
	msg := Message{
		ID:         uuid.NewString(),
		Channel:    opts.Channel,
		Sender:     opts.Sender,
		Recipients: opts.Recipients,
		Body:       opts.Body,
		Metadata:   opts.Metadata,
		ReadBy:     []string{},
		CreatedAt:  now,
		Persistent: opts.Persistent,
	}
	if !opts.Persistent {
		expires := now.Add(time.Duration(clampTTL(opts.TTLSeconds)) * time.Second)
		msg.ExpiresAt = &expires
	}

	if err := m.store(&msg); err != nil {
		return "", err
	}

	if m.forwarder != nil {
		go m.forwarder.Forward(context.Background(), msg)
	}
	if m.bus != nil {
		m.bus.Emit(ctx, bus.EventMessageReceived, map[string]any{
			"id": msg.ID, "channel": msg.Channel, "sender": msg.Sender,
		})
	}
	return msg.ID, nil
}

// ReceiveFromPeer stores an inbound forwarded message, deduplicating by id
// (spec §4.8: unknown id → store, known id → no-op).
func (m *Mailbox) ReceiveFromPeer(_ context.Context, msg Message) error {
	m.mu.Lock()
	_, exists := m.messages[msg.ID]
	m.mu.Unlock()
	if exists {
		return nil
	}
	msg.FromPeer = true
	return m.store(&msg)
}

func (m *Mailbox) store(msg *Message) error {
	m.mu.Lock()
	m.messages[msg.ID] = msg
	m.mu.Unlock()

	if m.log != nil {
		data, err := json.Marshal(msg)
		if err != nil {
			return fmt.Errorf("mailbox: marshal message: %w", err)
		}
		if err := m.log.Append(data); err != nil {
			return fmt.Errorf("mailbox: append: %w", err)
		}
	}
	return nil
}

// Read returns messages on a channel visible to reader, applying the
// unreadOnly/includeRead/markRead semantics of spec §4.8.
func (m *Mailbox) Read(ctx context.Context, opts ReadOptions) ([]Message, error) {
	if opts.Reader == "" {
		return nil, errors.New("mailbox: reader is required")
	}
	m.mu.Lock()
	var matched []*Message
	for _, msg := range m.messages {
		if msg.Channel != opts.Channel {
			continue
		}
		if !visible(*msg, opts.Reader) {
			continue
		}
		if opts.UnreadOnly && !opts.IncludeRead && hasRead(*msg, opts.Reader) {
			continue
		}
		matched = append(matched, msg)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.Before(matched[j].CreatedAt) })

	result := make([]Message, len(matched))
	for i, msg := range matched {
		result[i] = *msg
		if opts.MarkRead && !hasRead(*msg, opts.Reader) {
			msg.ReadBy = append(msg.ReadBy, opts.Reader)
		}
	}
	m.mu.Unlock()

	if opts.MarkRead {
		for _, msg := range matched {
			if err := m.persistLocked(msg); err != nil {
				return result, err
			}
		}
	}
	_ = ctx
	return result, nil
}

func (m *Mailbox) persistLocked(msg *Message) error {
	if m.log == nil {
		return nil
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("mailbox: marshal message: %w", err)
	}
	if err := m.log.Append(data); err != nil {
		return fmt.Errorf("mailbox: append: %w", err)
	}
	return nil
}

// Ack marks ids as read by reader without returning them (spec §4.8 ack).
func (m *Mailbox) Ack(_ context.Context, ids []string, reader string) (int, error) {
	n := 0
	for _, id := range ids {
		m.mu.Lock()
		msg, ok := m.messages[id]
		if ok && !hasRead(*msg, reader) {
			msg.ReadBy = append(msg.ReadBy, reader)
			n++
		}
		m.mu.Unlock()
		if ok {
			if err := m.persistLocked(msg); err != nil {
				return n, err
			}
		}
	}
	return n, nil
}

// ListChannels summarizes every channel with at least one live message.
func (m *Mailbox) ListChannels(context.Context) ([]ChannelSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	summaries := make(map[string]*ChannelSummary)
	for _, msg := range m.messages {
		s, ok := summaries[msg.Channel]
		if !ok {
			s = &ChannelSummary{Channel: msg.Channel}
			summaries[msg.Channel] = s
		}
		s.MessageCount++
		if msg.CreatedAt.After(s.LastActivity) {
			s.LastActivity = msg.CreatedAt
		}
	}
	result := make([]ChannelSummary, 0, len(summaries))
	for _, s := range summaries {
		result = append(result, *s)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Channel < result[j].Channel })
	return result, nil
}

// GetByID returns a message regardless of visibility (admin op).
func (m *Mailbox) GetByID(_ context.Context, id string) (Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.messages[id]
	if !ok {
		return Message{}, ErrNotFound
	}
	return *msg, nil
}

// UpdateMessage applies patch to an existing message.
func (m *Mailbox) UpdateMessage(_ context.Context, id string, patch MessagePatch) (Message, error) {
	m.mu.Lock()
	msg, ok := m.messages[id]
	if !ok {
		m.mu.Unlock()
		return Message{}, ErrNotFound
	}
	if patch.Body != nil {
		msg.Body = *patch.Body
	}
	if patch.Metadata != nil {
		msg.Metadata = patch.Metadata
	}
	if patch.Persistent != nil {
		msg.Persistent = *patch.Persistent
	}
	updated := *msg
	m.mu.Unlock()

	if err := m.persistLocked(&updated); err != nil {
		return updated, err
	}
	return updated, nil
}

// DeleteMessages removes ids from the in-memory catalog, then rewrites the
// whole append log with the remaining messages.
func (m *Mailbox) DeleteMessages(_ context.Context, ids []string) error {
	m.mu.Lock()
	for _, id := range ids {
		delete(m.messages, id)
	}
	m.mu.Unlock()
	return m.rewriteLog()
}

// PurgeChannel removes every message on ch.
func (m *Mailbox) PurgeChannel(_ context.Context, ch string) error {
	m.mu.Lock()
	for id, msg := range m.messages {
		if msg.Channel == ch {
			delete(m.messages, id)
		}
	}
	m.mu.Unlock()
	return m.rewriteLog()
}

// PurgeAll clears the entire mailbox.
func (m *Mailbox) PurgeAll(_ context.Context) error {
	m.mu.Lock()
	m.messages = make(map[string]*Message)
	m.mu.Unlock()
	return m.rewriteLog()
}

// PeekChannel returns every message on ch regardless of reader visibility
// (admin op, spec §4.8 peekChannel).
func (m *Mailbox) PeekChannel(_ context.Context, ch string) ([]Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []Message
	for _, msg := range m.messages {
		if msg.Channel == ch {
			result = append(result, *msg)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

func (m *Mailbox) rewriteLog() error {
	if m.log == nil {
		return nil
	}
	m.mu.Lock()
	records := make([][]byte, 0, len(m.messages))
	for _, msg := range m.messages {
		data, err := json.Marshal(msg)
		if err != nil {
			m.mu.Unlock()
			return fmt.Errorf("mailbox: marshal message: %w", err)
		}
		records = append(records, data)
	}
	m.mu.Unlock()
	if err := m.log.Rewrite(records); err != nil {
		return fmt.Errorf("mailbox: rewrite: %w", err)
	}
	return nil
}

// SweepExpired removes non-persistent messages whose TTL has elapsed (spec
// §4.8 periodic sweeper). Call from a ticker in the manager's run loop.
func (m *Mailbox) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	m.mu.Lock()
	var expired []string
	for id, msg := range m.messages {
		if !msg.Persistent && msg.ExpiresAt != nil && now.After(*msg.ExpiresAt) {
			expired = append(expired, id)
		}
	}
	m.mu.Unlock()
	if len(expired) == 0 {
		return 0, nil
	}
	if err := m.DeleteMessages(ctx, expired); err != nil {
		return 0, err
	}
	return len(expired), nil
}
