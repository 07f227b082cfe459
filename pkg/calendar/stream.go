package calendar

import (
	"context"
	"net/http"
	"sync"
	"time"

	"calreach/pkg/constants"

	"github.com/coder/websocket"
	"github.com/sirupsen/logrus"
)

// PushHandler receives one raw push payload from the provider stream.
type PushHandler func(ctx context.Context, payload []byte)

// Stream subscribes to the provider's websocket push channel and forwards
// each payload to the handler. The stream reconnects with backoff; payloads
// that fail handling are the handler's problem, the stream never blocks on
// them beyond the handler returning.
type Stream struct {
	url     string
	apiKey  string
	handler PushHandler
	logger  *logrus.Logger

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	mu      sync.Mutex
}

func NewStream(url, apiKey string, handler PushHandler, logger *logrus.Logger) *Stream {
	return &Stream{
		url:     url,
		apiKey:  apiKey,
		handler: handler,
		logger:  logger,
	}
}

// Start begins consuming the push stream in the background.
func (s *Stream) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	s.running = true

	s.wg.Add(1)
	go s.readLoop()

	s.logger.WithField("url", s.url).Info("Provider push stream started")
	return nil
}

// Stop closes the stream and waits for the read loop to exit.
func (s *Stream) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}

	s.cancel()
	s.wg.Wait()
	s.running = false
	s.logger.Info("Provider push stream stopped")
}

func (s *Stream) readLoop() {
	defer s.wg.Done()

	backoff := constants.DefaultStreamReconnectSec * time.Second
	maxBackoff := constants.DefaultStreamMaxBackoffSec * time.Second

	for {
		if s.ctx.Err() != nil {
			return
		}

		conn, err := s.dial()
		if err != nil {
			s.logger.WithError(err).WithField("backoff", backoff).Warn("Push stream connect failed, retrying")
			select {
			case <-s.ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}

		// Connected; reset backoff and consume until the connection drops.
		backoff = constants.DefaultStreamReconnectSec * time.Second
		s.consume(conn)
	}
}

func (s *Stream) dial() (*websocket.Conn, error) {
	dialCtx, cancel := context.WithTimeout(s.ctx, constants.DefaultHTTPTimeoutSec*time.Second)
	defer cancel()

	header := http.Header{}
	header.Set("Authorization", "Bearer "+s.apiKey)

	conn, _, err := websocket.Dial(dialCtx, s.url, &websocket.DialOptions{
		HTTPHeader: header,
	})
	return conn, err
}

func (s *Stream) consume(conn *websocket.Conn) {
	defer func() {
		_ = conn.Close(websocket.StatusNormalClosure, "shutting down")
	}()

	for {
		msgType, payload, err := conn.Read(s.ctx)
		if err != nil {
			if s.ctx.Err() != nil {
				return
			}
			s.logger.WithError(err).Warn("Push stream read failed, reconnecting")
			return
		}

		if msgType != websocket.MessageText {
			continue
		}

		s.handler(s.ctx, payload)
	}
}
