package transcriber

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var defaultRetryDelays = []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}

// DeepgramAdapter implements StreamingAdapter for Deepgram real-time
// transcription over WebSocket.
type DeepgramAdapter struct {
	endpoint  string
	apiKey    string
	model     string
	language  string
	conn      *websocket.Conn
	resultsCh chan Result
	mu        sync.Mutex
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	started   bool

	maxRetries  int
	retryDelays []time.Duration

	finalizeDone chan struct{}
}

type deepgramCloseStream struct {
	Type string `json:"type"`
}

type deepgramWSResponse struct {
	Type        string           `json:"type"`
	Channel     *deepgramChannel `json:"channel,omitempty"`
	Error       *deepgramError   `json:"error,omitempty"`
	Duration    float64          `json:"duration,omitempty"`
	Start       float64          `json:"start,omitempty"`
	IsFinal     bool             `json:"is_final,omitempty"`
	SpeechFinal bool             `json:"speech_final,omitempty"`
}

type deepgramChannel struct {
	Alternatives []deepgramAlternative `json:"alternatives,omitempty"`
}

type deepgramAlternative struct {
	Transcript string            `json:"transcript"`
	Confidence float64           `json:"confidence"`
	Words      []deepgramWordRef `json:"words,omitempty"`
}

type deepgramWordRef struct {
	Word    string `json:"word"`
	Speaker *int   `json:"speaker,omitempty"`
}

type deepgramError struct {
	Type        string `json:"type"`
	Message     string `json:"message"`
	Description string `json:"description,omitempty"`
}

func NewDeepgramAdapter(config Config) *DeepgramAdapter {
	endpoint := config.Endpoint
	if endpoint == "" {
		endpoint = DefaultConfig().Endpoint
	}
	return &DeepgramAdapter{
		endpoint:     endpoint,
		apiKey:       config.APIKey,
		model:        config.Model,
		language:     config.Language,
		resultsCh:    make(chan Result, 100),
		maxRetries:   3,
		retryDelays:  defaultRetryDelays,
		finalizeDone: make(chan struct{}, 1),
	}
}

// Start initiates the WebSocket connection to Deepgram.
func (a *DeepgramAdapter) Start(ctx context.Context, language string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.started {
		return fmt.Errorf("adapter already started")
	}
	if language != "" {
		a.language = language
	}

	a.ctx, a.cancel = context.WithCancel(ctx)

	if err := a.connectLocked(); err != nil {
		a.cancel()
		return err
	}
	a.started = true

	a.wg.Add(1)
	go a.readLoop()

	log.Printf("deepgram: connected, model=%s, language=%s", a.model, a.language)
	return nil
}

// connectLocked establishes the WebSocket connection. Must be called with
// mu held.
func (a *DeepgramAdapter) connectLocked() error {
	wsURL, err := a.buildURL()
	if err != nil {
		return fmt.Errorf("build websocket url: %w", err)
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+a.apiKey)

	conn, resp, err := websocket.DefaultDialer.DialContext(a.ctx, wsURL, headers)
	if err != nil {
		if resp != nil {
			log.Printf("deepgram: dial failed with status %d", resp.StatusCode)
		}
		return fmt.Errorf("websocket dial: %w", err)
	}
	a.conn = conn
	return nil
}

// reconnect attempts to re-establish the connection with backoff.
func (a *DeepgramAdapter) reconnect() bool {
	for attempt := 0; attempt < a.maxRetries; attempt++ {
		select {
		case <-a.ctx.Done():
			return false
		default:
		}

		if attempt > 0 {
			delay := a.retryDelays[min(attempt-1, len(a.retryDelays)-1)]
			log.Printf("deepgram: reconnect attempt %d/%d after %v", attempt+1, a.maxRetries, delay)
			select {
			case <-a.ctx.Done():
				return false
			case <-time.After(delay):
			}
		} else {
			log.Printf("deepgram: reconnect attempt %d/%d", attempt+1, a.maxRetries)
		}

		a.mu.Lock()
		if a.conn != nil {
			a.conn.Close()
			a.conn = nil
		}
		err := a.connectLocked()
		a.mu.Unlock()

		if err == nil {
			log.Printf("deepgram: reconnected successfully")
			select {
			case a.resultsCh <- Result{Error: fmt.Errorf("connection interrupted, reconnected")}:
			default:
			}
			return true
		}
		log.Printf("deepgram: reconnect failed: %v", err)
	}
	return false
}

func (a *DeepgramAdapter) buildURL() (string, error) {
	u, err := url.Parse(a.endpoint)
	if err != nil {
		return "", fmt.Errorf("parse endpoint url: %w", err)
	}

	q := u.Query()
	q.Set("model", a.model)
	q.Set("encoding", "linear16")
	q.Set("sample_rate", "16000")
	q.Set("channels", "1")
	q.Set("interim_results", "true")
	q.Set("smart_format", "true")
	q.Set("punctuate", "true")
	q.Set("diarize", "true")
	if a.language != "" {
		q.Set("language", a.language)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// readLoop reads messages from the WebSocket and forwards results.
func (a *DeepgramAdapter) readLoop() {
	defer a.wg.Done()
	defer close(a.resultsCh)

	for {
		select {
		case <-a.ctx.Done():
			return
		default:
		}

		a.mu.Lock()
		conn := a.conn
		a.mu.Unlock()

		if conn == nil {
			if !a.reconnect() {
				a.resultsCh <- Result{Error: fmt.Errorf("connection lost, reconnection failed after %d attempts", a.maxRetries)}
				return
			}
			continue
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-a.ctx.Done():
				return
			default:
			}

			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				// Deliberate close from our side, not a failure.
				a.resultsCh <- Result{Error: NewFatalStreamError(err)}
				return
			}

			log.Printf("deepgram: read error: %v, attempting reconnection", err)
			if !a.reconnect() {
				a.resultsCh <- Result{Error: fmt.Errorf("websocket read: %w, reconnection failed", err)}
				return
			}
			continue
		}

		var resp deepgramWSResponse
		if err := json.Unmarshal(message, &resp); err != nil {
			log.Printf("deepgram: parse error: %v", err)
			continue
		}

		switch resp.Type {
		case "Metadata":
			log.Printf("deepgram: session metadata received")

		case "Results":
			if resp.Channel != nil && len(resp.Channel.Alternatives) > 0 {
				alt := resp.Channel.Alternatives[0]
				if alt.Transcript != "" {
					isFinal := resp.IsFinal || resp.SpeechFinal
					if isFinal {
						select {
						case a.finalizeDone <- struct{}{}:
						default:
						}
					}
					start := time.Duration(resp.Start * float64(time.Second))
					a.resultsCh <- Result{
						Text:    alt.Transcript,
						Speaker: speakerLabel(alt.Words),
						Start:   start,
						End:     start + time.Duration(resp.Duration*float64(time.Second)),
						IsFinal: isFinal,
					}
				}
			}

		case "Error":
			if resp.Error != nil {
				errMsg := resp.Error.Message
				if resp.Error.Description != "" {
					errMsg = fmt.Sprintf("%s: %s", errMsg, resp.Error.Description)
				}
				log.Printf("deepgram: error: %s", errMsg)
				a.resultsCh <- Result{Error: fmt.Errorf("deepgram: %s", errMsg)}
			}

		case "UtteranceEnd", "SpeechStarted":
			// informational only

		default:
			log.Printf("deepgram: unknown message type: %s", resp.Type)
		}
	}
}

// speakerLabel derives a speaker name from diarized word metadata.
func speakerLabel(words []deepgramWordRef) string {
	for _, w := range words {
		if w.Speaker != nil {
			return "Speaker " + strconv.Itoa(*w.Speaker+1)
		}
	}
	return ""
}

// SendChunk sends raw binary audio to the WebSocket.
func (a *DeepgramAdapter) SendChunk(audio []byte) error {
	a.mu.Lock()
	if !a.started {
		a.mu.Unlock()
		return fmt.Errorf("adapter not started")
	}
	a.mu.Unlock()

	select {
	case <-a.ctx.Done():
		return a.ctx.Err()
	default:
	}

	err := a.writeMessage(websocket.BinaryMessage, audio)
	if err != nil {
		log.Printf("deepgram: write error: %v, attempting reconnection", err)
		if a.reconnect() {
			if err = a.writeMessage(websocket.BinaryMessage, audio); err == nil {
				return nil
			}
		}
		return fmt.Errorf("websocket write: %w", err)
	}
	return nil
}

var errNoConnection = errors.New("no connection")

// writeMessage writes one frame to the current connection. The nil check
// and the write share one critical section: Close may drop the
// connection at any moment while buffers are still in flight.
func (a *DeepgramAdapter) writeMessage(messageType int, data []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.conn == nil {
		return errNoConnection
	}
	return a.conn.WriteMessage(messageType, data)
}

func (a *DeepgramAdapter) writeJSON(v any) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.conn == nil {
		return errNoConnection
	}
	return a.conn.WriteJSON(v)
}

// Results returns the channel for receiving transcription results.
func (a *DeepgramAdapter) Results() <-chan Result {
	return a.resultsCh
}

// Finalize sends a CloseStream message and waits for a final result.
func (a *DeepgramAdapter) Finalize(ctx context.Context) error {
	a.mu.Lock()
	if !a.started {
		a.mu.Unlock()
		return nil
	}
	a.mu.Unlock()

	// drain any previous finalize signal
	select {
	case <-a.finalizeDone:
	default:
	}

	if err := a.writeJSON(deepgramCloseStream{Type: "CloseStream"}); err != nil {
		if errors.Is(err, errNoConnection) {
			return nil
		}
		return fmt.Errorf("send close stream: %w", err)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-a.finalizeDone:
		return nil
	}
}

// Close cancels the reader and tears down the connection.
func (a *DeepgramAdapter) Close() error {
	a.mu.Lock()
	if !a.started {
		a.mu.Unlock()
		return nil
	}
	a.started = false
	cancel := a.cancel
	conn := a.conn
	a.conn = nil
	a.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		conn.Close()
	}
	a.wg.Wait()
	return nil
}
