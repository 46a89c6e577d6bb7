package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/victornm/keiko/internal/client"
	"github.com/victornm/keiko/internal/domain"
	"github.com/victornm/keiko/internal/player"
	"github.com/victornm/keiko/internal/quiz"
	"github.com/victornm/keiko/internal/telemetry"
)

func main() {
	os.Exit(run())
}

func run() int {
	addr := flag.String("addr", "http://localhost:8080", "keiko API base URL")
	quizID := flag.String("quiz", "", "quiz ID")
	course := flag.String("course", "", "course code, used with -category")
	category := flag.String("category", "", "quiz category, used with -course")
	student := flag.String("student", os.Getenv("USER"), "student name shown on notices")
	logFile := flag.String("log", "", "write logs to this file")
	noColor := flag.Bool("no-color", false, "disable colors")
	flag.Parse()

	var logOut io.Writer = io.Discard
	if *logFile != "" {
		f, err := os.OpenFile(*logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "open log file: %v\n", err)
			return 1
		}
		defer f.Close()
		logOut = f
	}
	telemetry.SetupLogger(logOut, telemetry.LogConfig{Level: "debug", Format: "text"})

	loc := quiz.ByQuizID(*quizID)
	if *quizID == "" {
		loc = quiz.ByCourse(*course, *category)
	}

	c := client.New(*addr)
	notices := make(chan domain.Notice, 16)
	e := quiz.NewEngine(quiz.Config{
		Store:       c,
		Invalidator: c,
		Notifier: quiz.NotifyFunc(func(_ context.Context, n domain.Notice) {
			select {
			case notices <- n:
			default:
			}
		}),
	})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	s, err := e.Start(ctx, loc, *student)
	cancel()
	if err != nil {
		fmt.Fprintf(os.Stderr, "start quiz (%s): %v\n", loc, err)
		return 1
	}

	final, err := tea.NewProgram(
		player.NewModel(s, notices, player.Options{NoColor: *noColor}),
		tea.WithAltScreen(),
	).Run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "player: %v\n", err)
		return 1
	}

	if at := final.(player.Model).Attempt(); at != nil {
		fmt.Printf("%d of %d correct, %d hints used\n", at.CorrectCount, at.CardCount, at.HintsUsed)
	}
	return 0
}
