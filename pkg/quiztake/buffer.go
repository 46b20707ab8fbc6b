package quiztake

import "strings"

// buffer stages the user's answers per question before they reach the wire.
// Not safe for concurrent use; the engine guards it with its own lock.
type buffer struct {
	responses map[string]Response
	dirty     map[string]bool
}

func newBuffer() *buffer {
	return &buffer{
		responses: make(map[string]Response),
		dirty:     make(map[string]bool),
	}
}

// seed preloads selections from already-submitted answers so a resumed
// attempt shows what the student had. Seeded entries start clean.
func (b *buffer) seed(answers []Answer) {
	for _, a := range answers {
		r := Response{Text: a.TextAnswer}
		for _, c := range a.SelectedChoices {
			r.ChoiceIDs = append(r.ChoiceIDs, c.ID)
		}
		b.responses[a.Question.ID] = r
	}
}

// recordChoice stages a choice for q. Single-choice and true/false replace
// the whole selection; multiple-choice toggles membership.
func (b *buffer) recordChoice(q Question, choiceID string) {
	r := b.responses[q.ID]
	r.Text = ""
	switch q.QuestionType {
	case TypeMultipleChoice:
		r.ChoiceIDs = toggle(r.ChoiceIDs, choiceID)
	default:
		r.ChoiceIDs = []string{choiceID}
	}
	b.responses[q.ID] = r
	b.dirty[q.ID] = true
}

// recordText replaces the staged free-text answer for a short question.
func (b *buffer) recordText(questionID, text string) {
	b.responses[questionID] = Response{Text: text}
	b.dirty[questionID] = true
}

func (b *buffer) response(questionID string) (Response, bool) {
	r, ok := b.responses[questionID]
	return r, ok
}

func (b *buffer) isDirty(questionID string) bool { return b.dirty[questionID] }

func (b *buffer) markClean(questionID string) { delete(b.dirty, questionID) }

// empty reports whether the staged response would fail submission: no
// choice selected for choice types, blank text for short answers.
func (b *buffer) empty(q Question) bool {
	r, ok := b.responses[q.ID]
	if !ok {
		return true
	}
	if q.QuestionType == TypeShortAnswer {
		return strings.TrimSpace(r.Text) == ""
	}
	return len(r.ChoiceIDs) == 0
}

func toggle(ids []string, id string) []string {
	for i, v := range ids {
		if v == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return append(ids, id)
}
