// Command relay normalizes an agent engine's raw event stream into protocol
// events, optionally persisting merged turn records.
//
// Usage:
//
//	relay [flags] < raw-events.jsonl
//
// Flags:
//
//	-input string        Raw event file (default: stdin)
//	-session string      Session id (default: random)
//	-db string           SQLite database for merged turn records
//	-session-dir string  Directory for file-backed turn records
//	-pretty              Render events for a terminal instead of NDJSON
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/google/uuid"

	"github.com/fwojciec/relay"
	relayjson "github.com/fwojciec/relay/json"
	"github.com/fwojciec/relay/normalize"
	"github.com/fwojciec/relay/sqlite"
	"github.com/fwojciec/relay/sse"
	"github.com/fwojciec/relay/strands"
	"github.com/fwojciec/relay/turn"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "relay: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		inputPath  = flag.String("input", "", "Raw event file (default: stdin)")
		sessionID  = flag.String("session", "", "Session id (default: random)")
		dbPath     = flag.String("db", "", "SQLite database for merged turn records")
		sessionDir = flag.String("session-dir", "", "Directory for file-backed turn records")
		pretty     = flag.Bool("pretty", false, "Render events for a terminal instead of NDJSON")
	)
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	input := io.Reader(os.Stdin)
	if *inputPath != "" {
		f, err := os.Open(*inputPath)
		if err != nil {
			return err
		}
		defer f.Close()
		input = f
	}

	id := *sessionID
	if id == "" {
		id = uuid.NewString()
	}
	session := relay.NewSession(id)

	// An interrupt sets the session flag; the normalizer turns it into a
	// terminal notice rather than an abort.
	go func() {
		<-ctx.Done()
		session.Cancel()
	}()

	sink, cleanup, err := resolveSink(ctx, *dbPath, *sessionDir)
	if err != nil {
		return err
	}
	defer cleanup()

	src := strands.NewReader(input)
	defer src.Close()

	var opts []normalize.Option
	if sink != nil {
		opts = append(opts, normalize.WithTurnBuffer(turn.NewBuffer(sink, session)))
	}
	n := normalize.New(ctx, src, session, opts...)

	emit := newEmitter(os.Stdout, *pretty)
	for {
		ev, err := n.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if err := emit(ev); err != nil {
			return err
		}
	}
}

// resolveSink picks the persistence backend from flags. No flag means no
// persistence: the protocol stream is still fully produced.
func resolveSink(ctx context.Context, dbPath, sessionDir string) (relay.Sink, func(), error) {
	switch {
	case dbPath != "" && sessionDir != "":
		return nil, nil, fmt.Errorf("-db and -session-dir are mutually exclusive")
	case dbPath != "":
		store, err := sqlite.Open(dbPath)
		if err != nil {
			return nil, nil, err
		}
		if err := store.Init(ctx); err != nil {
			store.Close()
			return nil, nil, err
		}
		return store, func() { _ = store.Close() }, nil
	case sessionDir != "":
		store, err := relayjson.NewStore(sessionDir)
		if err != nil {
			return nil, nil, err
		}
		return store, func() {}, nil
	default:
		return nil, func() {}, nil
	}
}

func newEmitter(w io.Writer, pretty bool) func(relay.ProtocolEvent) error {
	if pretty {
		r := newRenderer(w)
		return r.render
	}
	out := sse.NewWriter(w)
	return out.Write
}
