package messaging

import (
	"go.uber.org/zap"

	"github.com/Tyrowin/wanderchat/internal/store"
	"github.com/Tyrowin/wanderchat/internal/wsconn"
)

// session binds a socket to the user it was authenticated as.
type session struct {
	svc  *Service
	user store.User
}

func (h *session) HandleFrame(c *wsconn.Conn, data []byte) {
	if !c.IsOpen() {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			h.svc.log.Error("error handling websocket message", zap.Int64("user_id", h.user.ID), zap.Any("panic", r))
			h.svc.ReportError(c)
		}
	}()
	h.svc.Route(h.user.ID, c, data)
}

func (h *session) HandleClose(c *wsconn.Conn) {
	h.svc.log.Info("websocket disconnected", zap.Int64("user_id", h.user.ID))
	h.svc.Evict(h.user.ID, c)
}

// Serve admits c for user and pumps its frames until the socket closes. A
// connection that cannot be admitted is still served so that its close frame
// is written and the socket released.
func (s *Service) Serve(user store.User, c *wsconn.Conn) {
	if !s.Admit(user, c) {
		c.Close()
	}
	c.Serve(&session{svc: s, user: user})
}
