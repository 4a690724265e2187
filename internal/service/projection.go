package service

import "github.com/etala/case-service/internal/domain"

// Sender labels used on anonymous tickets.
const (
	LabelYou       = "You"
	LabelAnonymous = "Anonymous"
)

// ProjectMessage renders m for viewerID. On anonymous tickets every sender is
// hidden from every viewer, staff included; the viewer only recognises its
// own messages.
func ProjectMessage(isAnonymous bool, m domain.Message, viewerID string) domain.ProjectedMessage {
	own := viewerID != "" && m.SenderID == viewerID
	label := m.SenderName
	switch {
	case isAnonymous && own:
		label = LabelYou
	case isAnonymous:
		label = LabelAnonymous
	case label == "":
		label = m.SenderID
	}
	return domain.ProjectedMessage{
		ID:          m.ID,
		SenderLabel: label,
		IsOwn:       own,
		Content:     m.Content,
		Read:        m.Read,
		Type:        m.Type,
		Action:      m.Action,
		CreatedAt:   m.CreatedAt,
	}
}

// ProjectMessages applies ProjectMessage to a ticket's ordered log.
func ProjectMessages(ticket *domain.Ticket, msgs []domain.Message, viewerID string) []domain.ProjectedMessage {
	out := make([]domain.ProjectedMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, ProjectMessage(ticket.IsAnonymous, m, viewerID))
	}
	return out
}
