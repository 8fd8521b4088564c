// Package simulator drives a running server with synthetic two-user
// conversations: it registers participant pairs, keeps a websocket open
// for each of them, and issues a randomized mix of mutations while
// reconciling pushed events into a per-participant cache.
package simulator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"

	"bayou-chat/internal/chat"
	"bayou-chat/internal/client"
	"bayou-chat/internal/models"

	"github.com/google/uuid"
	ws "github.com/gorilla/websocket"
)

type SimConfig struct {
	ServerURL      string
	NumPairs       int
	SimulationTime time.Duration

	// SendFrequency is messages per participant per minute. Edit, delete
	// and read rates are fractions of actions diverted to that mutation.
	SendFrequency float64
	EditRate      float64
	DeleteRate    float64
	ReadRate      float64
}

type SimulationStats struct {
	mu sync.Mutex

	TotalRequests  int64
	FailedRequests int64
	Sent           int64
	Replied        int64
	Edited         int64
	Deleted        int64
	Read           int64
	PushedApplied  int64
	PushErrors     int64
}

func (s *SimulationStats) record(counter *int64) {
	s.mu.Lock()
	*counter++
	s.TotalRequests++
	s.mu.Unlock()
}

func (s *SimulationStats) fail() {
	s.mu.Lock()
	s.FailedRequests++
	s.TotalRequests++
	s.mu.Unlock()
}

func (s *SimulationStats) pushed(err error) {
	s.mu.Lock()
	if err != nil {
		s.PushErrors++
	} else {
		s.PushedApplied++
	}
	s.mu.Unlock()
}

// Snapshot returns a copy safe to read after the run ends.
func (s *SimulationStats) Snapshot() SimulationStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SimulationStats{
		TotalRequests:  s.TotalRequests,
		FailedRequests: s.FailedRequests,
		Sent:           s.Sent,
		Replied:        s.Replied,
		Edited:         s.Edited,
		Deleted:        s.Deleted,
		Read:           s.Read,
		PushedApplied:  s.PushedApplied,
		PushErrors:     s.PushErrors,
	}
}

// participant is one registered user with a live websocket and a local
// cache of the selected conversation.
type participant struct {
	user  *models.User
	token string
	peer  *participant

	conn  *ws.Conn
	cache *client.ConversationCache

	mu   sync.Mutex
	sent []uuid.UUID // ids of own messages, candidates for edit/delete
	seen []uuid.UUID // ids of peer messages, candidates for markRead
}

type Simulator struct {
	config SimConfig
	stats  *SimulationStats
	log    *slog.Logger
	client *http.Client
	pairs  [][2]*participant
}

func New(config SimConfig, log *slog.Logger) *Simulator {
	return &Simulator{
		config: config,
		stats:  &SimulationStats{},
		log:    log,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (s *Simulator) Stats() SimulationStats {
	return s.stats.Snapshot()
}

// Run registers all participants, opens their websockets and lets every
// participant mutate its conversation until the context expires.
func (s *Simulator) Run(ctx context.Context) error {
	if err := s.initialize(ctx); err != nil {
		s.closeConnections()
		return fmt.Errorf("initialization failed: %w", err)
	}

	// Closing the connections unblocks every read pump when the run ends.
	go func() {
		<-ctx.Done()
		s.closeConnections()
	}()

	var wg sync.WaitGroup
	for _, pair := range s.pairs {
		for _, p := range pair {
			wg.Add(1)
			go func(p *participant) {
				defer wg.Done()
				s.readPushes(ctx, p)
			}(p)

			wg.Add(1)
			go func(p *participant) {
				defer wg.Done()
				s.runActivities(ctx, p)
			}(p)
		}
	}
	wg.Wait()
	return nil
}

func (s *Simulator) initialize(ctx context.Context) error {
	s.log.Info("registering participants", "pairs", s.config.NumPairs)

	for i := 0; i < s.config.NumPairs; i++ {
		a, err := s.register(ctx, fmt.Sprintf("sim_user_%d_a", i))
		if err != nil {
			return err
		}
		b, err := s.register(ctx, fmt.Sprintf("sim_user_%d_b", i))
		if err != nil {
			return err
		}
		a.peer, b.peer = b, a

		for _, p := range []*participant{a, b} {
			if err := s.connect(p); err != nil {
				return err
			}
			if err := p.cache.Select(ctx, p.peer.user.ID, s.fetcher(p)); err != nil {
				return err
			}
		}
		s.pairs = append(s.pairs, [2]*participant{a, b})
	}
	return nil
}

func (s *Simulator) register(ctx context.Context, username string) (*participant, error) {
	suffix := uuid.NewString()[:8]
	body := map[string]string{
		"username": username,
		"email":    fmt.Sprintf("%s_%s@simulated.local", username, suffix),
		"password": "simulated-" + suffix,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.ServerURL+"/auth/register", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to register %s: %w", username, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		raw, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("failed to register %s: status %d: %s", username, resp.StatusCode, raw)
	}

	var registered struct {
		Token string       `json:"token"`
		User  *models.User `json:"user"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&registered); err != nil {
		return nil, err
	}

	return &participant{
		user:  registered.User,
		token: registered.Token,
		cache: client.NewConversationCache(registered.User.ID),
	}, nil
}

func (s *Simulator) connect(p *participant) error {
	wsURL := "ws" + strings.TrimPrefix(s.config.ServerURL, "http") + "/ws?token=" + p.token
	conn, _, err := ws.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		return fmt.Errorf("failed to connect websocket for %s: %w", p.user.Username, err)
	}
	p.conn = conn
	return nil
}

func (s *Simulator) closeConnections() {
	for _, pair := range s.pairs {
		for _, p := range pair {
			if p.conn != nil {
				p.conn.Close()
			}
		}
	}
}

// readPushes applies every pushed frame to the participant's cache until
// the connection drops or the run ends.
func (s *Simulator) readPushes(ctx context.Context, p *participant) {
	for {
		_, payload, err := p.conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				s.log.Debug("websocket closed", "user", p.user.Username, "error", err)
			}
			return
		}

		applyErr := p.cache.ApplyPushed(payload)
		s.stats.pushed(applyErr)
		if applyErr != nil {
			s.log.Warn("failed to apply pushed event", "user", p.user.Username, "error", applyErr)
			continue
		}

		// Track peer messages so the activity loop can mark them read.
		var envelope struct {
			Event string          `json:"event"`
			Data  json.RawMessage `json:"data"`
		}
		if json.Unmarshal(payload, &envelope) == nil && envelope.Event == chat.EventNewMessage {
			var msg models.Message
			if json.Unmarshal(envelope.Data, &msg) == nil {
				p.mu.Lock()
				p.seen = append(p.seen, msg.ID)
				p.mu.Unlock()
			}
		}
	}
}

func (s *Simulator) fetcher(p *participant) client.Fetcher {
	return func(ctx context.Context, peerID uuid.UUID) ([]*models.Message, error) {
		var conversation []*models.Message
		err := s.doJSON(ctx, p, http.MethodGet, "/messages/"+peerID.String(), nil, &conversation)
		return conversation, err
	}
}

func (s *Simulator) doJSON(ctx context.Context, p *participant, method, path string, body, out any) error {
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.config.ServerURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.token)

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, raw)
	}
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func randomDelay(perMinute float64) time.Duration {
	if perMinute <= 0 {
		perMinute = 1
	}
	mean := time.Duration(float64(time.Minute) / perMinute)
	// Exponential inter-arrival times around the configured mean.
	return time.Duration(rand.ExpFloat64() * float64(mean))
}
