package gateway

import (
	"github.com/tesseract-nexus/pubsub-gateway/internal/apperr"
	"github.com/tesseract-nexus/pubsub-gateway/internal/model"
	"github.com/tesseract-nexus/pubsub-gateway/internal/session"
)

// dispatchAgentFrame implements the agent inbound frame table of
// spec.md §4.6. Heartbeat is intercepted earlier by Session itself;
// every other agent frame type lands here.
func dispatchAgentFrame(s *session.Session, frame session.InboundFrame) {
	switch frame.Type {
	case session.FramePublish:
		handleAgentPublish(s, frame)
	case session.FrameSubscribe:
		handleSubscribe(s, frame, frame.Subject)
	case session.FrameUnsubscribe:
		handleUnsubscribe(s, frame, frame.Subject)
	default:
		s.SendError(frame.ID, apperr.ErrInvalidFrame.Error())
	}
}

func handleAgentPublish(s *session.Session, frame session.InboundFrame) {
	subject, ok := model.RewriteSubject(s.TenantID(), frame.Subject)
	if !ok {
		s.SendError(frame.ID, apperr.ErrInvalidSubject.Error())
		return
	}
	if model.IsWildcard(subject) {
		s.SendError(frame.ID, apperr.ErrInvalidSubject.Error())
		return
	}

	if err := s.Manager().Bus().Publish(subject, []byte(frame.Payload)); err != nil {
		s.SendError(frame.ID, err.Error())
		return
	}

	s.Manager().Counter().CountPublish(s.TenantID(), s.Principal().ID, subject, len(frame.Payload))
	s.SendAck(frame.ID)
}

// handleSubscribe is shared by the agent "subscribe" frame and the
// dashboard channel/preview subscribe frames, all of which resolve to
// a bus subject and a Session.Subscribe call.
func handleSubscribe(s *session.Session, frame session.InboundFrame, rawSubject string) {
	subject, ok := model.RewriteSubject(s.TenantID(), rawSubject)
	if !ok {
		s.SendError(frame.ID, apperr.ErrInvalidSubject.Error())
		return
	}

	if !s.Subscribed(subject) && s.SubscriptionCount() >= s.Manager().MaxSubsPerConn() {
		s.SendError(frame.ID, apperr.ErrTenantQuotaExceeded.Error())
		return
	}

	if err := s.Subscribe(subject); err != nil {
		s.SendError(frame.ID, err.Error())
		return
	}
	s.SendAck(frame.ID)
}

func handleUnsubscribe(s *session.Session, frame session.InboundFrame, rawSubject string) {
	subject, ok := model.RewriteSubject(s.TenantID(), rawSubject)
	if !ok {
		s.SendError(frame.ID, apperr.ErrInvalidSubject.Error())
		return
	}
	if err := s.Unsubscribe(subject); err != nil {
		s.SendError(frame.ID, err.Error())
		return
	}
	s.SendAck(frame.ID)
}
