package services

import (
	"fmt"
	"unicode/utf8"

	"github.com/akinalp/agora/models"
)

type notificationContent struct {
	title   string
	message string
	link    *string
}

const snippetLimit = 140

// renderNotification builds the stored title, message and link. Content is
// rendered once at write time; rows are immutable afterwards.
func renderNotification(ev models.Event, actorName string) notificationContent {
	switch p := ev.Payload.(type) {
	case models.AnswerPostedPayload:
		return notificationContent{
			title:   "New answer",
			message: fmt.Sprintf("@%s answered %q: %s", actorName, p.QuestionTitle, snippet(p.Snippet)),
			link:    link("/questions/%s#answer-%s", p.QuestionID, ev.Subject.ID),
		}
	case models.CommentPostedPayload:
		return notificationContent{
			title:   "New comment",
			message: fmt.Sprintf("@%s commented: %s", actorName, snippet(p.Snippet)),
			link:    link("/questions/%s#comment-%s", p.QuestionID, ev.Subject.ID),
		}
	case models.AnswerUpvotedPayload:
		return notificationContent{
			title:   "Your answer was upvoted",
			message: fmt.Sprintf("@%s upvoted your answer to %q", actorName, p.QuestionTitle),
			link:    link("/questions/%s#answer-%s", p.QuestionID, ev.Subject.ID),
		}
	case models.QuestionUpvotedPayload:
		return notificationContent{
			title:   "Your question was upvoted",
			message: fmt.Sprintf("@%s upvoted %q", actorName, p.QuestionTitle),
			link:    link("/questions/%s", ev.Subject.ID),
		}
	case models.AnswerAcceptedPayload:
		return notificationContent{
			title:   "Your answer was accepted",
			message: fmt.Sprintf("@%s accepted your answer to %q", actorName, p.QuestionTitle),
			link:    link("/questions/%s#answer-%s", p.QuestionID, ev.Subject.ID),
		}
	case models.MentionPayload:
		return notificationContent{
			title:   "You were mentioned",
			message: fmt.Sprintf("@%s mentioned you: %s", actorName, snippet(p.Snippet)),
			link:    link("/questions/%s", p.QuestionID),
		}
	case models.RoleChangedPayload:
		return notificationContent{
			title:   "Community role changed",
			message: fmt.Sprintf("You are now %s in %s", p.Role, p.CommunityName),
			link:    link("/communities/%s", ev.Subject.ID),
		}
	case models.SystemMessagePayload:
		return notificationContent{title: p.Title, message: p.Message, link: p.Link}
	default:
		return notificationContent{title: string(ev.Kind), message: fmt.Sprintf("@%s", actorName)}
	}
}

func link(format string, args ...any) *string {
	s := fmt.Sprintf(format, args...)
	return &s
}

// snippet trims s to snippetLimit runes.
func snippet(s string) string {
	if utf8.RuneCountInString(s) <= snippetLimit {
		return s
	}
	runes := []rune(s)
	return string(runes[:snippetLimit-1]) + "…"
}
