package jetstream

import (
	"fmt"
	"time"

	server "github.com/nats-io/nats-server/v2/server"
	nats "github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ServerOptions sizes the embedded server. Zero limits leave the server's
// own defaults in place.
type ServerOptions struct {
	StoreDir       string
	MaxFileStore   int64
	MaxMemoryStore int64
	ReadyTimeout   time.Duration
}

// Server is an in-process NATS server with JetStream enabled for recordings
// and typing flags. It never opens a network listener; clients connect
// through InProcessServer.
type Server struct{ ns *server.Server }

func NewServer(opts ServerOptions) (*Server, error) {
	ns, err := server.NewServer(&server.Options{
		ServerName:         "streamtype",
		DontListen:         true,
		JetStream:          true,
		StoreDir:           opts.StoreDir,
		JetStreamMaxStore:  opts.MaxFileStore,
		JetStreamMaxMemory: opts.MaxMemoryStore,
		NoSigs:             true,
	})
	if err != nil {
		return nil, fmt.Errorf("create nats server: %w", err)
	}
	ns.SetLoggerV2(newServerLogger(log.Logger), zerolog.GlobalLevel() <= zerolog.DebugLevel, false, false)

	ready := opts.ReadyTimeout
	if ready <= 0 {
		ready = 5 * time.Second
	}
	go ns.Start()
	if !ns.ReadyForConnections(ready) {
		ns.Shutdown()
		return nil, fmt.Errorf("nats server in %s not ready after %s", opts.StoreDir, ready)
	}
	return &Server{ns: ns}, nil
}

func (s *Server) Connect() (*nats.Conn, error) {
	return nats.Connect(s.ns.ClientURL(), nats.InProcessServer(s.ns), nats.Name("streamtype"))
}

func (s *Server) Shutdown() {
	s.ns.Shutdown()
	s.ns.WaitForShutdown()
}

// serverLogger routes the embedded server's log lines into zerolog.
type serverLogger struct{ log zerolog.Logger }

func newServerLogger(l zerolog.Logger) *serverLogger {
	return &serverLogger{log: l.With().Str("component", "nats").Logger()}
}

func (l *serverLogger) Noticef(format string, v ...any) { l.log.Info().Msgf(format, v...) }
func (l *serverLogger) Warnf(format string, v ...any) { l.log.Warn().Msgf(format, v...) }
func (l *serverLogger) Errorf(format string, v ...any) { l.log.Error().Msgf(format, v...) }
func (l *serverLogger) Debugf(format string, v ...any) { l.log.Debug().Msgf(format, v...) }
func (l *serverLogger) Tracef(format string, v ...any) { l.log.Trace().Msgf(format, v...) }

// Fatalf is logged at error level. Exiting is left to the caller of NewServer.
func (l *serverLogger) Fatalf(format string, v ...any) { l.log.Error().Bool("fatal", true).Msgf(format, v...) }
