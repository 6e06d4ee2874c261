package messaging

import (
	"encoding/json"

	"go.uber.org/zap"
)

// Route handles one inbound frame from fromUserID. sender is the socket the
// frame arrived on and receives any error frame.
func (s *Service) Route(fromUserID int64, sender Peer, raw []byte) {
	if !json.Valid(raw) {
		s.log.Info("invalid frame", zap.Int64("user_id", fromUserID))
		s.ReportError(sender)
		return
	}

	var frame inboundFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		s.log.Debug("ignoring frame with unexpected shape", zap.Int64("user_id", fromUserID), zap.Error(err))
		return
	}

	s.log.Debug("received frame", zap.Int64("user_id", fromUserID), zap.String("type", frame.Type))

	switch frame.Type {
	case TypeDirectMessage:
		if frame.ToUserID == nil || frame.Content == nil {
			s.log.Debug("direct message missing recipient or content", zap.Int64("user_id", fromUserID))
			return
		}
		s.SendDirect(fromUserID, *frame.ToUserID, *frame.Content)
	default:
		s.log.Debug("ignoring frame of unknown type", zap.String("type", frame.Type))
	}
}

// ReportError sends the generic processing error frame to p.
func (s *Service) ReportError(p Peer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sendLocked(p, ErrorFrame{Type: TypeError, Message: processFailure})
}

// SendDirect delivers content from one connected user to another and echoes it
// to the sender, so a message to oneself arrives twice. It returns the number of sockets the envelope was queued on.
// When either user is not connected nothing is sent.
func (s *Service) SendDirect(fromUserID, toUserID int64, content string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	from, fromOK := s.conns[fromUserID]
	to, toOK := s.conns[toUserID]
	if !fromOK || !toOK {
		s.log.Info("cannot send message: user not connected",
			zap.Int64("from", fromUserID), zap.Int64("to", toUserID))
		s.metrics.DirectMessage("dropped")
		return 0
	}

	payload, err := json.Marshal(DirectMessage{
		Type:      TypeDirectMessage,
		FromUser:  from.User,
		Content:   content,
		Timestamp: formatTimestamp(s.now()),
	})
	if err != nil {
		s.log.Error("error encoding direct message", zap.Error(err))
		return 0
	}

	delivered := 0
	for _, target := range []Connection{to, from} {
		if target.Peer.IsOpen() && target.Peer.Send(payload) {
			delivered++
		}
	}

	if delivered > 0 {
		s.metrics.DirectMessage("delivered")
	} else {
		s.metrics.DirectMessage("dropped")
	}
	s.log.Debug("direct message routed",
		zap.Int64("from", fromUserID), zap.Int64("to", toUserID), zap.Int("deliveries", delivered))
	return delivered
}
