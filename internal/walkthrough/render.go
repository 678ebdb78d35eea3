package walkthrough

import (
	"errors"
	"fmt"
	"strings"

	"github.com/p-n-ai/pai-walkthrough/internal/navigator"
)

// BackCommand is offered as a choice whenever the walkthrough can step back.
const BackCommand = "/back"

const (
	noticeInvalidTransition = "End of the questionnaire or invalid path."
	noticeAtStart           = "You are at the start. Cannot go back further."
	noticeUnknownOption     = "Please pick one of the options below."
)

// RenderText formats a view as plain text: an optional notice, the answer to
// the option just taken, then the question with numbered options or the
// terminal answer.
func RenderText(v navigator.View, notice string) string {
	var b strings.Builder
	if notice != "" {
		b.WriteString(notice)
		b.WriteString("\n\n")
	}
	if v.LastAnswer != "" && !(v.Terminal && v.LastAnswer == v.Answer) {
		b.WriteString(v.LastAnswer)
		b.WriteString("\n\n")
	}

	if v.Terminal {
		b.WriteString(v.Answer)
		return b.String()
	}

	b.WriteString(v.Question)
	for i, label := range v.Options {
		fmt.Fprintf(&b, "\n%d. %s", i+1, label)
	}
	return b.String()
}

// Choices returns the quick replies for a view in display order.
func Choices(v navigator.View) []string {
	choices := make([]string, 0, len(v.Options)+1)
	choices = append(choices, v.Options...)
	if v.CanGoBack {
		choices = append(choices, BackCommand)
	}
	return choices
}

// NoticeFor maps a navigation error to the notice shown above the
// unchanged view.
func NoticeFor(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, navigator.ErrAtStart):
		return noticeAtStart
	default:
		return noticeInvalidTransition
	}
}
