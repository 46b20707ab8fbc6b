// quizctl is a terminal client for the quiz platform: students take a quiz
// through the attempt engine, teachers grade short answers.
//
//	quizctl -server http://localhost:8080 -user alice -pass secret take <quiz-id>
//	quizctl -server http://localhost:8080 -user bob -pass secret grade <question-id>
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/RozzleCort/edu-platform/pkg/quiztake"
	"github.com/RozzleCort/edu-platform/pkg/quiztake/quizhttp"
	"github.com/RozzleCort/edu-platform/pkg/quiztake/regrade"
)

func main() {
	server := flag.String("server", "http://localhost:8080", "platform base URL")
	user := flag.String("user", "", "username")
	pass := flag.String("pass", "", "password")
	flag.Parse()

	if flag.NArg() < 2 || *user == "" || *pass == "" {
		fmt.Fprintln(os.Stderr, "usage: quizctl -server URL -user NAME -pass PW {take <quiz-id> | grade <question-id>}")
		os.Exit(2)
	}

	ctx := context.Background()
	token, role, err := quizhttp.Login(ctx, *server, *user, *pass)
	if err != nil {
		log.Fatalf("login: %v", err)
	}
	client := quizhttp.New(quizhttp.Config{BaseURL: *server, AccessToken: token, Timeout: 15 * time.Second})

	switch flag.Arg(0) {
	case "take":
		if err := takeQuiz(ctx, client, flag.Arg(1)); err != nil {
			log.Fatalf("take: %v", err)
		}
	case "grade":
		if role != "teacher" && role != "admin" {
			log.Fatalf("grade requires a teacher account")
		}
		if err := gradeQuestion(ctx, client, flag.Arg(1)); err != nil {
			log.Fatalf("grade: %v", err)
		}
	default:
		log.Fatalf("unknown command %q", flag.Arg(0))
	}
}

// termNotifier renders engine events on stderr so stdout stays usable for
// the question prompt.
type termNotifier struct{ quiztake.NopNotifier }

func (termNotifier) Tick(remaining time.Duration) {
	if sec := int(remaining / time.Second); sec <= 60 && sec%10 == 0 {
		fmt.Fprintf(os.Stderr, "\n[%s left]\n", remaining)
	}
}

func (termNotifier) SaveStatus(s quiztake.SaveStatus) {
	if s == quiztake.SaveSaved || s == quiztake.SaveError {
		fmt.Fprintf(os.Stderr, "\n[autosave: %s]\n", s)
	}
}

func (termNotifier) LastQuestion() {
	fmt.Fprintln(os.Stderr, "\n[that was the last question — type 'finish' to submit the attempt]")
}

func (termNotifier) FinalizeFailed(err error) {
	fmt.Fprintf(os.Stderr, "\n[submit failed, retrying: %v]\n", err)
}

func takeQuiz(ctx context.Context, client *quizhttp.Client, quizID string) error {
	eng := quiztake.New(client, terminalOptions()...)
	defer eng.Close()

	if err := eng.Start(ctx, quizID); err != nil {
		if errors.Is(err, quiztake.ErrAttemptLimit) {
			return errors.New("no attempts left for this quiz")
		}
		return err
	}

	quiz := eng.Quiz()
	fmt.Printf("%s (%d questions", quiz.Title, len(quiz.Questions))
	if quiz.TimeLimit > 0 {
		fmt.Printf(", %d minutes", quiz.TimeLimit)
	}
	fmt.Println(")")

	sc := bufio.NewScanner(os.Stdin)
	printQuestion(eng)
	for eng.State() == quiztake.InProgress {
		fmt.Print("> ")
		if !sc.Scan() {
			return sc.Err()
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if err := handleLine(ctx, eng, line); err != nil {
			if errors.Is(err, errQuit) {
				return nil
			}
			fmt.Fprintf(os.Stderr, "! %v\n", err)
		}
	}

	a := eng.Attempt()
	fmt.Printf("\nattempt %s: score %.1f%%, passed=%v\n", a.Status, a.Score, a.Passed)
	return nil
}

var errQuit = errors.New("quit")

func handleLine(ctx context.Context, eng *quiztake.Engine, line string) error {
	switch fields := strings.SplitN(line, " ", 2); fields[0] {
	case "next":
		return eng.Next(ctx)
	case "prev":
		return eng.Prev(ctx)
	case "goto":
		if len(fields) < 2 {
			return errors.New("goto needs a question number")
		}
		n, err := strconv.Atoi(fields[1])
		if err != nil {
			return err
		}
		if err := eng.Navigate(ctx, n-1); err != nil {
			return err
		}
		printQuestion(eng)
		return nil
	case "submit":
		if err := eng.SubmitCurrent(ctx); err != nil {
			if errors.Is(err, quiztake.ErrEmptyAnswer) {
				return errors.New("answer the question first")
			}
			return err
		}
		if eng.State() == quiztake.InProgress {
			printQuestion(eng)
		}
		return nil
	case "finish":
		return eng.Finalize(ctx)
	case "text":
		if len(fields) < 2 {
			return errors.New("text needs an answer")
		}
		return eng.RecordText(fields[1])
	case "quit":
		return errQuit
	default:
		// A bare number selects (or toggles) that choice.
		n, err := strconv.Atoi(fields[0])
		if err != nil {
			return fmt.Errorf("unknown command %q", fields[0])
		}
		q, _ := eng.Current()
		if n < 1 || n > len(q.Choices) {
			return fmt.Errorf("choice %d out of range", n)
		}
		return eng.RecordChoice(q.Choices[n-1].ID)
	}
}

func printQuestion(eng *quiztake.Engine) {
	q, idx := eng.Current()
	answered, total := eng.Progress()
	fmt.Printf("\n[%d/%d answered] question %d (%.0f pts): %s\n", answered, total, idx+1, q.Points, q.QuestionText)
	if q.QuestionType == quiztake.TypeShortAnswer {
		fmt.Println("  (free text: answer with `text ...`)")
	} else {
		r, _ := eng.Response(q.ID)
		for i, c := range q.Choices {
			mark := " "
			for _, id := range r.ChoiceIDs {
				if id == c.ID {
					mark = "x"
				}
			}
			fmt.Printf("  [%s] %d. %s\n", mark, i+1, c.ChoiceText)
		}
	}
}

// terminalOptions wires the engine for terminal use: real timers, the
// stderr notifier, and no focus signal (a terminal cannot observe page
// visibility).
func terminalOptions() []quiztake.Option {
	return []quiztake.Option{
		quiztake.WithNotifier(termNotifier{}),
		quiztake.WithFocusSource(quiztake.NopFocusSource{}),
	}
}

func gradeQuestion(ctx context.Context, client *quizhttp.Client, questionID string) error {
	rec := regrade.New(client)
	answers, err := rec.LoadQuestion(ctx, questionID)
	if err != nil {
		return err
	}
	if len(answers) == 0 {
		fmt.Println("no submitted answers for this question")
		return nil
	}

	sc := bufio.NewScanner(os.Stdin)
	for _, a := range answers {
		status := "ungraded"
		if a.Graded {
			status = fmt.Sprintf("graded %.1f/%.0f", a.Score, a.Question.Points)
		}
		fmt.Printf("\nanswer %s (%s)\n  %q\n", a.ID, status, a.TextAnswer)
		fmt.Printf("score 0-%.0f (blank to skip): ", a.Question.Points)
		if !sc.Scan() {
			return sc.Err()
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		score, err := strconv.ParseFloat(line, 64)
		if err != nil {
			fmt.Fprintf(os.Stderr, "! %v\n", err)
			continue
		}
		fmt.Print("feedback: ")
		if !sc.Scan() {
			return sc.Err()
		}
		graded, err := rec.Grade(ctx, a.ID, score, strings.TrimSpace(sc.Text()))
		if err != nil {
			fmt.Fprintf(os.Stderr, "! %v\n", err)
			continue
		}
		fmt.Printf("saved: %.1f/%.0f\n", graded.Score, graded.Question.Points)
	}
	return nil
}
