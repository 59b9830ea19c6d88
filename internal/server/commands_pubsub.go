package server

import (
	"github.com/rdnode/rdnode/internal/cluster"
	"github.com/rdnode/rdnode/internal/pubsub"
	"github.com/rdnode/rdnode/internal/resp"
)

func (s *Server) cmdSubscribe(enc *resp.Encoder, sub *pubsub.Subscriber, args [][]byte) {
	if len(args) == 0 {
		writeErr(enc, arityErr("SUBSCRIBE"))
		return
	}
	for _, a := range args {
		ch := string(a)
		count := s.broker.Subscribe(ch, sub)
		writeVal(enc, pubsub.SubscribeReply(ch, count))
	}
	if s.metrics != nil {
		s.metrics.PubsubSubs.Set(float64(s.broker.LocalSubscriberCount()))
	}
}

func (s *Server) cmdUnsubscribe(enc *resp.Encoder, sub *pubsub.Subscriber, args [][]byte) {
	channels := args
	if len(channels) == 0 {
		channels = toByteArgs(sub.Channels())
	}
	if len(channels) == 0 {
		writeVal(enc, pubsub.UnsubscribeReply("", 0))
		return
	}
	for _, a := range channels {
		ch := string(a)
		count := s.broker.Unsubscribe(ch, sub)
		writeVal(enc, pubsub.UnsubscribeReply(ch, count))
	}
	if s.metrics != nil {
		s.metrics.PubsubSubs.Set(float64(s.broker.LocalSubscriberCount()))
	}
}

func toByteArgs(ss []string) [][]byte {
	out := make([][]byte, len(ss))
	for i, s := range ss {
		out[i] = []byte(s)
	}
	return out
}

// cmdPublish handles a client PUBLISH: deliver to local subscribers, then
// fan out to every live peer's CLUSTER PUBLISH so subscribers connected to
// other nodes also receive it.
func (s *Server) cmdPublish(enc *resp.Encoder, args [][]byte) {
	if len(args) != 2 {
		writeErr(enc, arityErr("PUBLISH"))
		return
	}
	channel, message := string(args[0]), args[1]
	n, _ := s.broker.Publish(channel, message, s.forwardPublish)
	writeVal(enc, resp.NewInteger(int64(n)))
}

// forwardPublish implements pubsub.Forwarder: it calls CLUSTER PUBLISH on
// every other known live peer and sums the delivery counts they report.
func (s *Server) forwardPublish(channel string, message []byte) (int, error) {
	if s.cluster == nil {
		return 0, nil
	}
	self := s.cluster.Self().ID
	total := 0
	for _, d := range s.cluster.Member().All() {
		if d.ID == self || d.State == cluster.Dead {
			continue
		}
		reply, err := cluster.Call(d.PeerAddr(), "CLUSTER", "PUBLISH", channel, string(message))
		if err != nil {
			continue
		}
		if reply.Type == resp.Integer {
			total += int(reply.Int)
		}
	}
	return total, nil
}
