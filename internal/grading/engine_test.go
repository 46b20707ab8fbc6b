package grading

import (
	"context"
	"math"
	"testing"
)

func TestSingleChoiceExactMatch(t *testing.T) {
	g := NewDefaultGrader()
	q := Q{Type: "single_choice", Points: 10, CorrectIDs: []string{"b"}}

	res, err := g.Grade(context.Background(), q, Response{ChoiceIDs: []string{"b"}})
	if err != nil {
		t.Fatalf("Grade: %v", err)
	}
	if !res.IsCorrect || res.Points != 10 {
		t.Fatalf("correct pick: %+v", res)
	}

	res, err = g.Grade(context.Background(), q, Response{ChoiceIDs: []string{"a"}})
	if err != nil {
		t.Fatalf("Grade: %v", err)
	}
	if res.IsCorrect || res.Points != 0 {
		t.Fatalf("wrong pick: %+v", res)
	}

	if _, err = g.Grade(context.Background(), q, Response{ChoiceIDs: []string{"a", "b"}}); err == nil {
		t.Fatalf("two choices accepted for single_choice")
	}
}

func TestTrueFalse(t *testing.T) {
	g := NewDefaultGrader()
	q := Q{Type: "true_false", Points: 5, CorrectIDs: []string{"true"}}

	res, err := g.Grade(context.Background(), q, Response{ChoiceIDs: []string{"true"}})
	if err != nil {
		t.Fatalf("Grade: %v", err)
	}
	if !res.IsCorrect || res.Points != 5 {
		t.Fatalf("res = %+v", res)
	}
}

func TestMultiChoicePartialCredit(t *testing.T) {
	g := NewDefaultGrader()
	q := Q{Type: "multiple_choice", Points: 12, CorrectIDs: []string{"a", "b", "c"}}

	cases := []struct {
		name      string
		picked    []string
		points    float64
		isCorrect bool
	}{
		{"full match", []string{"a", "b", "c"}, 12, true},
		{"two of three", []string{"a", "b"}, 8, true},
		{"one of three", []string{"c"}, 4, false},
		{"hit and miss cancel", []string{"a", "b", "x"}, 4, false},
		{"misses overwhelm", []string{"a", "x", "y"}, 0, false},
		{"all wrong", []string{"x", "y"}, 0, false},
	}
	for _, tc := range cases {
		res, err := g.Grade(context.Background(), q, Response{ChoiceIDs: tc.picked})
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if math.Abs(res.Points-tc.points) > 1e-9 {
			t.Errorf("%s: points = %v, want %v", tc.name, res.Points, tc.points)
		}
		if res.IsCorrect != tc.isCorrect {
			t.Errorf("%s: isCorrect = %v, want %v", tc.name, res.IsCorrect, tc.isCorrect)
		}
	}
}

func TestMultiChoiceWithoutPartialCredit(t *testing.T) {
	g := NewDefaultGrader(WithPartialMulti(false))
	q := Q{Type: "multiple_choice", Points: 12, CorrectIDs: []string{"a", "b", "c"}}

	res, err := g.Grade(context.Background(), q, Response{ChoiceIDs: []string{"a", "b"}})
	if err != nil {
		t.Fatalf("Grade: %v", err)
	}
	if res.Points != 0 || res.IsCorrect {
		t.Fatalf("partial credit granted with partial disabled: %+v", res)
	}

	res, err = g.Grade(context.Background(), q, Response{ChoiceIDs: []string{"c", "b", "a"}})
	if err != nil {
		t.Fatalf("Grade: %v", err)
	}
	if res.Points != 12 || !res.IsCorrect {
		t.Fatalf("full match should still score: %+v", res)
	}
}

func TestShortAnswerNeedsManual(t *testing.T) {
	g := NewDefaultGrader()
	res, err := g.Grade(context.Background(), Q{Type: "short_answer", Points: 5}, Response{Text: "anything"})
	if err != nil {
		t.Fatalf("Grade: %v", err)
	}
	if !res.NeedsManual || res.Points != 0 || res.IsCorrect {
		t.Fatalf("res = %+v, want manual with zero provisional points", res)
	}
}

func TestUnknownType(t *testing.T) {
	g := NewDefaultGrader()
	if _, err := g.Grade(context.Background(), Q{Type: "essay"}, Response{}); err == nil {
		t.Fatalf("unknown type accepted")
	}
}
