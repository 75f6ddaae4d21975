package gateway

import (
	"github.com/tesseract-nexus/pubsub-gateway/internal/apperr"
	"github.com/tesseract-nexus/pubsub-gateway/internal/model"
	"github.com/tesseract-nexus/pubsub-gateway/internal/session"
)

// dispatchDashboardFrame implements the dashboard inbound frame table
// of spec.md §4.6.
func dispatchDashboardFrame(s *session.Session, frame session.InboundFrame) {
	switch frame.Type {
	case session.FrameSubscribeChannel:
		handleSubscribe(s, frame, model.ChannelSubject(s.TenantID(), frame.ChannelID))
	case session.FrameUnsubscribeChannel:
		handleUnsubscribe(s, frame, model.ChannelSubject(s.TenantID(), frame.ChannelID))
	case session.FrameSubscribeTopicPrev:
		handleSubscribe(s, frame, model.TopicPreviewSubject(s.TenantID()))
	case session.FrameUnsubscribeTopicPrev:
		handleUnsubscribe(s, frame, model.TopicPreviewSubject(s.TenantID()))
	default:
		s.SendError(frame.ID, apperr.ErrInvalidFrame.Error())
	}
}
