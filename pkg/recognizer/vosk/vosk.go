// Package vosk provides a recognizer backend speaking the Vosk WebSocket
// server protocol. It implements the recognizer.Provider interface.
//
// Grammar constraint is enforced server-side: the instance sends the grammar
// word list (plus the out-of-vocabulary sentinel) as the phrase_list of the
// initial config frame, so the server only ever hypothesises over those words.
package vosk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/lexidrill/lexidrill/pkg/recognizer"
)

const defaultSampleRate = 16000

// Option is a functional option for configuring the vosk Provider.
type Option func(*Provider)

// WithDialTimeout bounds how long a single Start call may spend connecting.
// The default is 10 seconds.
func WithDialTimeout(d time.Duration) Option {
	return func(p *Provider) {
		if d > 0 {
			p.dialTimeout = d
		}
	}
}

// Provider implements recognizer.Provider backed by a Vosk WebSocket server.
type Provider struct {
	serverURL   string
	dialTimeout time.Duration
}

// New creates a vosk Provider for the server at serverURL
// (e.g., "ws://localhost:2700"). serverURL must be non-empty.
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("vosk: serverURL must not be empty")
	}
	p := &Provider{
		serverURL:   serverURL,
		dialTimeout: 10 * time.Second,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Start opens a connection to the Vosk server, sends the grammar as the
// recognition phrase list, and returns a live instance.
func (p *Provider) Start(ctx context.Context, grammar recognizer.Grammar, cfg recognizer.StreamConfig) (recognizer.Instance, error) {
	dialCtx, cancel := context.WithTimeout(ctx, p.dialTimeout)
	defer cancel()

	conn, _, err := websocket.Dial(dialCtx, p.serverURL, nil)
	if err != nil {
		return nil, fmt.Errorf("vosk: dial %s: %w", p.serverURL, err)
	}

	frame, err := configFrame(grammar, cfg)
	if err != nil {
		conn.Close(websocket.StatusInternalError, "config encode failed")
		return nil, fmt.Errorf("vosk: encode config: %w", err)
	}
	if err := conn.Write(ctx, websocket.MessageText, frame); err != nil {
		conn.Close(websocket.StatusInternalError, "config send failed")
		return nil, fmt.Errorf("vosk: send config: %w", err)
	}

	inst := &instance{
		conn:     conn,
		partials: make(chan recognizer.Result, 64),
		results:  make(chan recognizer.Result, 4),
		audio:    make(chan []byte, 256),
		done:     make(chan struct{}),
	}

	inst.wg.Add(2)
	go inst.readLoop(ctx)
	go inst.writeLoop(ctx)

	return inst, nil
}

// configFrame builds the initial JSON config message for the server. The
// phrase list is the grammar plus the out-of-vocabulary sentinel so that
// utterances outside the grammar surface as [unk] instead of being forced
// onto the nearest grammar word.
func configFrame(grammar recognizer.Grammar, cfg recognizer.StreamConfig) ([]byte, error) {
	rate := cfg.SampleRate
	if rate == 0 {
		rate = defaultSampleRate
	}
	phrases := append(grammar.Words(), recognizer.Unknown)
	return json.Marshal(map[string]any{
		"config": map[string]any{
			"sample_rate": rate,
			"phrase_list": phrases,
			"words":       0,
		},
	})
}

// ---- instance ----

// voskEvent is the JSON structure of a server response. Partial results carry
// the "partial" field; terminal results carry "text".
type voskEvent struct {
	Partial *string `json:"partial"`
	Text    *string `json:"text"`
}

// instance is a live Vosk recognition session. It implements
// recognizer.Instance.
type instance struct {
	conn     *websocket.Conn
	partials chan recognizer.Result
	results  chan recognizer.Result
	audio    chan []byte

	done chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

// SendAudio queues a PCM chunk for delivery to the server.
func (i *instance) SendAudio(chunk []byte) error {
	select {
	case <-i.done:
		return errors.New("vosk: instance is closed")
	default:
	}
	select {
	case i.audio <- chunk:
		return nil
	case <-i.done:
		return errors.New("vosk: instance is closed")
	}
}

// Partials returns the channel of interim results.
func (i *instance) Partials() <-chan recognizer.Result { return i.partials }

// Results returns the channel of terminal results.
func (i *instance) Results() <-chan recognizer.Result { return i.results }

// Close terminates the instance. The write loop flushes any queued audio and
// sends the eof frame, which tells the server to emit the terminal result for
// everything buffered; Close waits for that result before closing the
// connection.
func (i *instance) Close() error {
	i.once.Do(func() {
		close(i.done)
		i.wg.Wait()
		i.conn.Close(websocket.StatusNormalClosure, "instance closed")
	})
	return nil
}

// writeLoop reads from the audio channel and sends binary messages to the
// server. On shutdown it flushes the queue first so the eof frame always
// trails the last audio chunk.
func (i *instance) writeLoop(ctx context.Context) {
	defer i.wg.Done()
	for {
		select {
		case chunk, ok := <-i.audio:
			if !ok {
				return
			}
			if err := i.conn.Write(ctx, websocket.MessageBinary, chunk); err != nil {
				return
			}
		case <-i.done:
			for {
				select {
				case chunk, ok := <-i.audio:
					if !ok {
						return
					}
					_ = i.conn.Write(ctx, websocket.MessageBinary, chunk)
				default:
					_ = i.conn.Write(ctx, websocket.MessageText, []byte(`{"eof" : 1}`))
					return
				}
			}
		}
	}
}

// readLoop receives JSON events from the server and dispatches them to the
// partials and results channels. It exits after the first terminal result;
// each utterance produces at most one.
func (i *instance) readLoop(ctx context.Context) {
	defer i.wg.Done()
	defer close(i.partials)
	defer close(i.results)

	for {
		_, msg, err := i.conn.Read(ctx)
		if err != nil {
			// Connection closed or context cancelled. A close without a
			// terminal result is the consumer's cue to treat the utterance
			// as unknown.
			return
		}

		res, terminal, ok := parseEvent(msg)
		if !ok {
			continue
		}

		if terminal {
			// Unconditional send: the channel is buffered, this loop is the
			// only sender, and each utterance carries at most one terminal
			// result. The terminal for a Close-triggered flush arrives after
			// done is closed and must still be delivered.
			i.results <- res
			return
		}
		select {
		case i.partials <- res:
		case <-i.done:
		}
	}
}

// parseEvent parses a raw server message. It returns the result, whether it
// is terminal, and whether the message should be delivered at all. Empty
// partials (the server's silence heartbeat) are dropped; empty terminal text
// maps to the unknown sentinel.
func parseEvent(data []byte) (res recognizer.Result, terminal, ok bool) {
	var ev voskEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return recognizer.Result{}, false, false
	}

	switch {
	case ev.Text != nil:
		text := strings.TrimSpace(*ev.Text)
		if text == "" {
			text = recognizer.Unknown
		}
		return recognizer.Result{Text: text, Final: true}, true, true
	case ev.Partial != nil:
		text := strings.TrimSpace(*ev.Partial)
		if text == "" {
			return recognizer.Result{}, false, false
		}
		return recognizer.Result{Text: text}, false, true
	default:
		return recognizer.Result{}, false, false
	}
}

var _ recognizer.Provider = (*Provider)(nil)
var _ recognizer.Instance = (*instance)(nil)
