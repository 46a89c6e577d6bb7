package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/victornm/keiko/internal/client"
	"github.com/victornm/keiko/internal/deck"
	"github.com/victornm/keiko/internal/telemetry"
)

func main() {
	os.Exit(run())
}

func run() int {
	addr := flag.String("addr", "http://localhost:8080", "keiko API base URL")
	dir := flag.String("dir", "", "import every deck of this directory")
	timeout := flag.Duration("timeout", 2*time.Minute, "give up after this long")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: keiko-seed [flags] [deck.yaml ...]\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	telemetry.SetupLogger(os.Stderr, telemetry.LogConfig{Level: "info", Format: "text"})

	var decks []*deck.Deck
	if *dir != "" {
		loaded, err := deck.LoadDir(*dir)
		if err != nil {
			fmt.Fprintf(os.Stderr, "load decks: %v\n", err)
			return 1
		}
		decks = append(decks, loaded...)
	}
	for _, file := range flag.Args() {
		d, err := deck.LoadFile(file)
		if err != nil {
			fmt.Fprintf(os.Stderr, "load deck: %v\n", err)
			return 1
		}
		decks = append(decks, d)
	}

	if len(decks) == 0 {
		flag.Usage()
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	c := client.New(*addr)

	var total deck.Report
	for _, d := range decks {
		r, err := deck.Import(ctx, c, d)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			return 1
		}
		total.Add(r)
	}

	fmt.Printf("quizzes: %d created, %d reused; cards: %d added, %d skipped\n",
		total.QuizzesCreated, total.QuizzesReused, total.CardsAdded, total.CardsSkipped)
	return 0
}
