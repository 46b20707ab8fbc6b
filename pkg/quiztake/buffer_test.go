package quiztake

import (
	"reflect"
	"testing"
)

func TestBufferSingleChoiceReplaces(t *testing.T) {
	b := newBuffer()
	q := Question{ID: "q1", QuestionType: TypeSingleChoice}

	b.recordChoice(q, "a")
	b.recordChoice(q, "b")

	r, _ := b.response("q1")
	if !reflect.DeepEqual(r.ChoiceIDs, []string{"b"}) {
		t.Fatalf("choices = %v, want [b]", r.ChoiceIDs)
	}
	if !b.isDirty("q1") {
		t.Fatalf("not dirty after record")
	}
}

func TestBufferMultipleChoiceToggles(t *testing.T) {
	b := newBuffer()
	q := Question{ID: "q2", QuestionType: TypeMultipleChoice}

	b.recordChoice(q, "a")
	b.recordChoice(q, "b")
	b.recordChoice(q, "a") // deselect

	r, _ := b.response("q2")
	if !reflect.DeepEqual(r.ChoiceIDs, []string{"b"}) {
		t.Fatalf("choices = %v, want [b]", r.ChoiceIDs)
	}
}

func TestBufferEmptiness(t *testing.T) {
	b := newBuffer()
	choice := Question{ID: "q1", QuestionType: TypeTrueFalse}
	text := Question{ID: "q3", QuestionType: TypeShortAnswer}

	if !b.empty(choice) || !b.empty(text) {
		t.Fatalf("fresh buffer should be empty for both types")
	}
	b.recordText("q3", "  \t ")
	if !b.empty(text) {
		t.Fatalf("whitespace-only text counts as empty")
	}
	b.recordText("q3", "42")
	if b.empty(text) {
		t.Fatalf("text answer should not be empty")
	}
	b.recordChoice(choice, "true")
	if b.empty(choice) {
		t.Fatalf("selected choice should not be empty")
	}
}

func TestBufferSeedStartsClean(t *testing.T) {
	b := newBuffer()
	b.seed([]Answer{
		{Question: Question{ID: "q1"}, SelectedChoices: []Choice{{ID: "a"}, {ID: "c"}}},
		{Question: Question{ID: "q3"}, TextAnswer: "previous answer"},
	})

	r, ok := b.response("q1")
	if !ok || !reflect.DeepEqual(r.ChoiceIDs, []string{"a", "c"}) {
		t.Fatalf("seeded choices = %v, want [a c]", r.ChoiceIDs)
	}
	if r, _ := b.response("q3"); r.Text != "previous answer" {
		t.Fatalf("seeded text = %q", r.Text)
	}
	if b.isDirty("q1") || b.isDirty("q3") {
		t.Fatalf("seeded entries must start clean")
	}
}
