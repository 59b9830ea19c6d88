// Package pubsub implements the channel subscriber table and publish
// fan-out for the cluster, local delivery plus cluster-wide forwarding.
package pubsub

import (
	"sync"

	"go.uber.org/zap"

	"github.com/rdnode/rdnode/internal/resp"
)

// shardCount stripes the channel table to avoid global contention on
// publish, per the striped-subscription-table design note.
const shardCount = 16

// Subscriber is the broker's view of one subscribed connection: a
// bounded outbound mailbox plus a callback for forced disconnection once
// that mailbox overflows. The connection layer owns the drain goroutine
// that reads Out and writes to the socket; the broker never touches the
// socket directly so a slow client can't block a publisher.
type Subscriber struct {
	ID   string
	Out  chan resp.Value
	Drop func()

	mu       sync.Mutex
	channels map[string]struct{}
}

// NewSubscriber allocates a Subscriber with the given outbound buffer
// capacity (the connection layer's client-output-buffer-limit in
// messages) and disconnect callback.
func NewSubscriber(id string, bufSize int, drop func()) *Subscriber {
	return &Subscriber{
		ID:       id,
		Out:      make(chan resp.Value, bufSize),
		Drop:     drop,
		channels: make(map[string]struct{}),
	}
}

// Count reports how many channels this subscriber currently has open,
// used to build the SUBSCRIBE/UNSUBSCRIBE reply's trailing integer.
func (s *Subscriber) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.channels)
}

func (s *Subscriber) add(channel string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channels[channel] = struct{}{}
	return len(s.channels)
}

func (s *Subscriber) remove(channel string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.channels, channel)
	return len(s.channels)
}

// Channels returns a snapshot of this subscriber's current channel set,
// used to clear subscriptions on disconnect.
func (s *Subscriber) Channels() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.channels))
	for c := range s.channels {
		out = append(out, c)
	}
	return out
}

// send enqueues msg on the subscriber's mailbox, forcibly disconnecting
// it (per the client-output-buffer-limit rule) if the mailbox is full
// rather than blocking the publisher on a slow consumer.
func (s *Subscriber) send(msg resp.Value) bool {
	select {
	case s.Out <- msg:
		return true
	default:
		if s.Drop != nil {
			s.Drop()
		}
		return false
	}
}

type shard struct {
	mu   sync.RWMutex
	subs map[string]map[string]*Subscriber // channel -> subscriber id -> Subscriber
}

// Broker owns the local channel -> subscriber-set table. Cluster-wide
// fan-out is layered on top by the caller supplying a Forwarder.
type Broker struct {
	log    *zap.Logger
	shards [shardCount]*shard
}

// Forwarder sends a PUBLISH to every other live peer and returns the sum
// of their reported local delivery counts. Implemented by the cluster
// package's peer RPC layer; kept as a function type here so pubsub has
// no import-time dependency on cluster.
type Forwarder func(channel string, message []byte) (deliveries int, err error)

func New(log *zap.Logger) *Broker {
	if log == nil {
		log = zap.NewNop()
	}
	b := &Broker{log: log.Named("pubsub")}
	for i := range b.shards {
		b.shards[i] = &shard{subs: make(map[string]map[string]*Subscriber)}
	}
	return b
}

func (b *Broker) shardFor(channel string) *shard {
	h := fnv32(channel)
	return b.shards[h%shardCount]
}

func fnv32(s string) uint32 {
	const prime = 16777619
	h := uint32(2166136261)
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= prime
	}
	return h
}

// Subscribe adds sub to channel's subscriber set and returns its new
// total subscription count, for the SUBSCRIBE reply.
func (b *Broker) Subscribe(channel string, sub *Subscriber) int {
	sh := b.shardFor(channel)
	sh.mu.Lock()
	set, ok := sh.subs[channel]
	if !ok {
		set = make(map[string]*Subscriber)
		sh.subs[channel] = set
	}
	set[sub.ID] = sub
	sh.mu.Unlock()
	return sub.add(channel)
}

// Unsubscribe removes sub from channel's subscriber set and returns its
// new total subscription count, for the UNSUBSCRIBE reply.
func (b *Broker) Unsubscribe(channel string, sub *Subscriber) int {
	sh := b.shardFor(channel)
	sh.mu.Lock()
	if set, ok := sh.subs[channel]; ok {
		delete(set, sub.ID)
		if len(set) == 0 {
			delete(sh.subs, channel)
		}
	}
	sh.mu.Unlock()
	return sub.remove(channel)
}

// UnsubscribeAll removes sub from every channel it's currently on,
// called on connection loss (an implicit UNSUBSCRIBE all) and when the
// output-buffer limit forces a disconnect.
func (b *Broker) UnsubscribeAll(sub *Subscriber) {
	for _, ch := range sub.Channels() {
		b.Unsubscribe(ch, sub)
	}
}

// PublishLocal delivers message to every subscriber of channel connected
// to this node and returns how many subscribers actually received it.
// Successive calls reach each subscriber's FIFO mailbox in call order; the
// shard lock is only read-held while the subscriber set is copied, so
// concurrent calls for the same channel are not serialized.
func (b *Broker) PublishLocal(channel string, message []byte) int {
	sh := b.shardFor(channel)
	sh.mu.RLock()
	set := sh.subs[channel]
	targets := make([]*Subscriber, 0, len(set))
	for _, s := range set {
		targets = append(targets, s)
	}
	sh.mu.RUnlock()

	msg := resp.NewArray([]resp.Value{
		resp.NewBulkStringFromString("message"),
		resp.NewBulkStringFromString(channel),
		resp.NewBulkString(message),
	})

	delivered := 0
	for _, s := range targets {
		if s.send(msg) {
			delivered++
		}
	}
	return delivered
}

// Publish delivers message to this node's local subscribers and, via
// forward, to every other live node's local subscribers, returning the
// combined delivery count across the whole cluster.
func (b *Broker) Publish(channel string, message []byte, forward Forwarder) (int, error) {
	total := b.PublishLocal(channel, message)
	if forward == nil {
		return total, nil
	}
	remote, err := forward(channel, message)
	if err != nil {
		b.log.Warn("publish forward incomplete", zap.String("channel", channel), zap.Error(err))
	}
	return total + remote, err
}

// SubscribeReply builds the ["subscribe", channel, count] array the
// SUBSCRIBE command replies with, one per channel argument.
func SubscribeReply(channel string, count int) resp.Value {
	return resp.NewArray([]resp.Value{
		resp.NewBulkStringFromString("subscribe"),
		resp.NewBulkStringFromString(channel),
		resp.NewInteger(int64(count)),
	})
}

// UnsubscribeReply builds the ["unsubscribe", channel, count] array the
// UNSUBSCRIBE command replies with.
func UnsubscribeReply(channel string, count int) resp.Value {
	return resp.NewArray([]resp.Value{
		resp.NewBulkStringFromString("unsubscribe"),
		resp.NewBulkStringFromString(channel),
		resp.NewInteger(int64(count)),
	})
}

// LocalSubscriberCount reports the total number of (channel, subscriber)
// pairs on this node, exported as the rdnode_pubsub_subscribers gauge.
func (b *Broker) LocalSubscriberCount() int {
	n := 0
	for _, sh := range b.shards {
		sh.mu.RLock()
		for _, set := range sh.subs {
			n += len(set)
		}
		sh.mu.RUnlock()
	}
	return n
}
