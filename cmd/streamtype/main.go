package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/namikmesic/streamtype/internal/config"
	"github.com/namikmesic/streamtype/internal/jetstream"
	"github.com/namikmesic/streamtype/internal/processor"
	"github.com/namikmesic/streamtype/internal/storage"
	"github.com/namikmesic/streamtype/internal/stream"
	"github.com/namikmesic/streamtype/internal/typewriter"
	"github.com/namikmesic/streamtype/internal/upstream"
	nats "github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/term"
)

func main() {
	file := flag.String("file", "", "read the stream from a file instead of the upstream (- for stdin)")
	replay := flag.String("replay", "", "replay a recorded stream by id")
	path := flag.String("path", "", "upstream request path")
	body := flag.String("body", "", "upstream request body")
	messageID := flag.String("message", "", "message id of the interrupt flag, derived from the request when empty")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})

	ctx := context.Background()

	var js nats.JetStreamContext
	if cfg.NeedsNATS() || *replay != "" {
		natsServer, err := jetstream.NewServer(jetstream.ServerOptions{
			StoreDir:       cfg.NATSStoreDir,
			MaxFileStore:   cfg.NATSMaxFile,
			MaxMemoryStore: cfg.NATSMaxMemory,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to start embedded NATS")
		}
		defer natsServer.Shutdown()

		nc, err := natsServer.Connect()
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to embedded NATS")
		}
		defer nc.Drain()

		js, err = nc.JetStream()
		if err != nil {
			log.Fatal().Err(err).Msg("failed to get JetStream context")
		}
		if err := jetstream.EnsureRecordingStream(js, cfg.RecordMaxAge); err != nil {
			log.Fatal().Err(err).Msg("failed to create recording stream")
		}
	}

	var pool *pgxpool.Pool
	var journal processor.Journal
	if cfg.DatabaseURL != "" {
		pool, err = storage.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer pool.Close()

		if err := storage.RunMigrations(ctx, pool); err != nil {
			log.Fatal().Err(err).Msg("failed to run migrations")
		}
		writer := storage.NewBatchWriter(pool, cfg.WriterBufferSize, cfg.WriterBatchSize, cfg.WriterFlushMs)
		defer writer.Shutdown()
		journal = storage.NewJournal(writer)
	}

	store, err := openFlagStore(cfg, js, pool)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open flag store")
	}

	streamCtx, cancelStream := context.WithCancel(ctx)
	defer cancelStream()

	src, err := openSource(streamCtx, cfg, js, sourceArgs{file: *file, replay: *replay, path: *path, body: *body})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open stream")
	}
	defer src.Close()

	sessionID := cfg.SessionID
	if sessionID == "" {
		sessionID = defaultSessionID()
	}
	if *messageID == "" {
		*messageID = uuid.NewSHA1(uuid.NameSpaceURL, []byte(src.name+"\x00"+*body)).String()
	}

	vis := typewriter.NewVisibility()
	out := newRenderer(os.Stdout)
	engine := typewriter.New(typewriter.Options{
		SessionID:  sessionID,
		MessageID:  *messageID,
		Interval:   cfg.TickInterval(),
		Store:      store,
		Visibility: vis,
		OnRender:   out.Render,
	})
	if err := engine.Mount(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to mount typewriter")
	}
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		log.Debug().Msg("stdout is not a terminal, printing without typing")
		engine.Stop()
	}

	info := processor.StreamInfo{
		ID:        src.id,
		SessionID: sessionID,
		MessageID: *messageID,
		Format:    src.format,
		Source:    src.name,
	}
	consumer := stream.NewConsumer(src.reader, stream.NewDecoder[stream.Packet](src.format, cfg.SSEDataPrefix))
	proc := processor.New(engine, journal)

	done := make(chan error, 1)
	go func() {
		_, err := proc.ProcessStream(streamCtx, info, consumer)
		done <- err
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM, syscall.SIGUSR1, syscall.SIGUSR2)

	log.Info().
		Str("source", src.name).
		Str("format", string(src.format)).
		Str("key", engine.Key()).
		Msg("streamtype started")

	var streamErr error
loop:
	for {
		select {
		case sig := <-sigs:
			switch sig {
			case syscall.SIGUSR1:
				vis.Set(false)
			case syscall.SIGUSR2:
				vis.Set(true)
			case os.Interrupt:
				log.Info().Msg("stop requested, cancelling generation")
				engine.Stop()
				cancelStream()
			case syscall.SIGTERM:
				log.Info().Msg("shutting down...")
				unmount(engine)
				cancelStream()
			}
		case streamErr = <-done:
			break loop
		}
	}

	unmount(engine)
	fmt.Fprintln(os.Stdout)
	if streamErr != nil && !errors.Is(streamErr, context.Canceled) {
		log.Error().Err(streamErr).Msg("stream failed")
	}
	src.Close()
	if err := src.waitRecording(); err != nil {
		log.Error().Err(err).Msg("recording failed")
	}
	log.Info().Msg("shutdown complete")
}

func unmount(engine *typewriter.Engine) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := engine.Unmount(ctx); err != nil {
		log.Error().Err(err).Msg("failed to persist interrupt flag")
	}
}

func openFlagStore(cfg *config.Config, js nats.JetStreamContext, pool *pgxpool.Pool) (typewriter.FlagStore, error) {
	switch cfg.FlagStore {
	case "nats":
		store, err := jetstream.NewFlagStore(js, cfg.NATSFlagBucket)
		if err != nil {
			return nil, err
		}
		return store, nil
	case "postgres":
		return storage.NewFlagRepo(pool), nil
	}
	return typewriter.NewMemoryStore(), nil
}

// defaultSessionID is stable per host so interrupt flags match across runs.
func defaultSessionID() string {
	host, err := os.Hostname()
	if err != nil {
		host = "localhost"
	}
	return uuid.NewSHA1(uuid.NameSpaceDNS, []byte(host)).String()
}

type sourceArgs struct {
	file, replay, path, body string
}

type source struct {
	id     uuid.UUID
	name   string
	format stream.Format
	reader stream.Reader
	closer io.Closer
	recErr chan error
	rec    *stream.RecordingBody
}

func (s *source) Close() {
	if s.closer != nil {
		s.closer.Close()
		s.closer = nil
	}
}

func (s *source) waitRecording() error {
	if s.recErr == nil {
		return nil
	}
	err := <-s.recErr
	s.recErr = nil
	if err == nil {
		log.Info().Str("recording_id", s.id.String()).Int64("bytes", s.rec.Bytes()).Msg("recording saved")
	}
	return err
}

func openSource(ctx context.Context, cfg *config.Config, js nats.JetStreamContext, args sourceArgs) (*source, error) {
	src := &source{id: uuid.New()}
	var detected stream.Format
	var body io.ReadCloser

	switch {
	case args.replay != "":
		r, err := jetstream.NewChunkReader(js, args.replay)
		if err != nil {
			return nil, err
		}
		fctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		recorded, err := r.Format(fctx)
		cancel()
		if err != nil {
			_ = r.Close()
			return nil, fmt.Errorf("recording %s: %w", args.replay, err)
		}
		if recorded == "" {
			recorded = stream.FormatNDJSON
		}
		src.name = "replay:" + args.replay
		src.reader = r
		src.closer = closerFunc(r.Close)
		src.format = resolveFormat(cfg.StreamFormat, recorded)
		return src, nil
	case args.file == "-":
		src.name = "stdin"
		body = io.NopCloser(os.Stdin)
		detected = stream.FormatNDJSON
	case args.file != "":
		f, err := os.Open(args.file)
		if err != nil {
			return nil, err
		}
		src.name = "file:" + args.file
		body = f
		detected = stream.FormatNDJSON
	case cfg.UpstreamURL != "":
		resp, err := upstream.NewClient(cfg.UpstreamURL, cfg.UpstreamAPIKey).Open(ctx, upstream.Request{
			Path: args.path,
			Body: []byte(args.body),
		})
		if err != nil {
			return nil, err
		}
		src.name = cfg.UpstreamURL + args.path
		body = resp.Body
		detected = resp.Format
	default:
		return nil, errors.New("nothing to read: set UPSTREAM_URL or pass -file or -replay")
	}

	src.format = resolveFormat(cfg.StreamFormat, detected)
	if cfg.RecordStreams {
		rec, pr := stream.Record(body)
		recorder := jetstream.NewRecorder(js)
		src.recErr = make(chan error, 1)
		go func() { src.recErr <- recorder.Record(src.id.String(), src.format, pr) }()
		src.rec = rec
		body = rec
		log.Info().Str("recording_id", src.id.String()).Msg("recording stream")
	}
	src.reader = stream.NewBodyReader(body, cfg.ReadBufferSize)
	src.closer = body
	return src, nil
}

func resolveFormat(configured string, detected stream.Format) stream.Format {
	if configured == "" || configured == "auto" {
		return detected
	}
	f, err := stream.ParseFormat(configured)
	if err != nil {
		return detected
	}
	return f
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }
