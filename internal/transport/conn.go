package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"

	"github.com/MrWong99/rehearse/internal/interview"
)

const writeTimeout = 10 * time.Second

// ErrPlaybackFailed is returned by Play and SpeakLocal when the client
// reports that it could not play.
var ErrPlaybackFailed = errors.New("transport: client playback failed")

// Conn is one interview connection. It is the machine's [interview.Player]
// and [interview.Observer].
type Conn struct {
	ws  *websocket.Conn
	log *slog.Logger

	// ctx is cancelled when the connection goes away.
	ctx context.Context

	mu      sync.Mutex
	pending map[string]chan error
	silence interview.SilenceLevel
}

var (
	_ interview.Player   = (*Conn)(nil)
	_ interview.Observer = (*Conn)(nil)
)

func newConn(ctx context.Context, ws *websocket.Conn, log *slog.Logger) *Conn {
	return &Conn{
		ws:      ws,
		log:     log,
		ctx:     ctx,
		pending: make(map[string]chan error),
	}
}

// Play implements [interview.Player].
func (c *Conn) Play(ctx context.Context, p interview.Playback) error {
	return c.await(ctx, serverMessage{
		Type:     msgPlayAudio,
		Audio:    p.Audio,
		Format:   string(p.Format),
		Model:    p.Model,
		Degraded: p.Degraded,
	})
}

// SpeakLocal implements [interview.Player].
func (c *Conn) SpeakLocal(ctx context.Context, text string) error {
	return c.await(ctx, serverMessage{Type: msgSpeakLocal, Text: text})
}

// await sends msg under a fresh playback id and waits for the client's
// report.
func (c *Conn) await(ctx context.Context, msg serverMessage) error {
	msg.PlaybackID = uuid.NewString()
	done := make(chan error, 1)

	c.mu.Lock()
	c.pending[msg.PlaybackID] = done
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, msg.PlaybackID)
		c.mu.Unlock()
	}()

	if err := c.write(msg); err != nil {
		return err
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-c.ctx.Done():
		return c.ctx.Err()
	}
}

// settle resolves a pending playback. Unknown ids are ignored.
func (c *Conn) settle(id string, err error) {
	c.mu.Lock()
	done, ok := c.pending[id]
	c.mu.Unlock()
	if !ok {
		c.log.Debug("playback report for unknown id", "playback_id", id)
		return
	}
	select {
	case done <- err:
	default:
	}
}

// OnState implements [interview.Observer].
func (c *Conn) OnState(s interview.State) {
	c.send(serverMessage{Type: msgState, State: &s})

	c.mu.Lock()
	changed := s.Silence != c.silence
	c.silence = s.Silence
	c.mu.Unlock()
	if changed && s.Silence != interview.SilenceNone {
		c.send(serverMessage{Type: msgSilence, Level: string(s.Silence)})
	}
}

// OnNotice implements [interview.Observer].
func (c *Conn) OnNotice(text string) {
	c.send(serverMessage{Type: msgNotice, Text: text})
}

// OnThinking implements [interview.Observer].
func (c *Conn) OnThinking(text string) {
	c.send(serverMessage{Type: msgThinking, Text: text})
}

// OnForceStop implements [interview.Observer].
func (c *Conn) OnForceStop() {
	c.send(serverMessage{Type: msgForceStopRecording})
}

// send writes msg and logs failures; observers cannot return errors.
func (c *Conn) send(msg serverMessage) {
	if err := c.write(msg); err != nil && c.ctx.Err() == nil {
		c.log.Debug("websocket write failed", "type", msg.Type, "err", err)
	}
}

func (c *Conn) write(msg serverMessage) error {
	ctx, cancel := context.WithTimeout(c.ctx, writeTimeout)
	defer cancel()
	if err := wsjson.Write(ctx, c.ws, msg); err != nil {
		return fmt.Errorf("transport: write %s: %w", msg.Type, err)
	}
	return nil
}

// readLoop feeds client messages to m until the connection closes or m
// stops.
func (c *Conn) readLoop(m *interview.Machine) {
	for {
		var msg clientMessage
		if err := wsjson.Read(c.ctx, c.ws, &msg); err != nil {
			if websocket.CloseStatus(err) != -1 || c.ctx.Err() != nil {
				c.log.Debug("websocket closed", "err", err)
			} else {
				c.log.Warn("websocket read failed", "err", err)
			}
			return
		}

		switch msg.Type {
		case msgPlaybackEnded:
			c.settle(msg.PlaybackID, nil)
			continue
		case msgPlaybackFailed:
			c.settle(msg.PlaybackID, fmt.Errorf("%w: %s", ErrPlaybackFailed, msg.Reason))
			continue
		}

		ev, err := toEvent(msg)
		if err != nil {
			c.log.Warn("bad client message", "err", err)
			c.OnNotice("That request could not be understood.")
			continue
		}
		if !m.Send(ev) {
			return
		}
	}
}
