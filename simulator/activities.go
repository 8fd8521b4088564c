package simulator

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"bayou-chat/internal/models"

	"github.com/google/uuid"
)

// runActivities issues mutations for one participant until the context
// expires. Each iteration waits an exponential inter-arrival delay and
// picks one action weighted by the configured rates; anything left over
// is a plain send.
func (s *Simulator) runActivities(ctx context.Context, p *participant) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(randomDelay(s.config.SendFrequency)):
		}

		roll := rand.Float64()
		var err error
		switch {
		case roll < s.config.EditRate:
			err = s.editRandom(ctx, p)
		case roll < s.config.EditRate+s.config.DeleteRate:
			err = s.deleteRandom(ctx, p)
		case roll < s.config.EditRate+s.config.DeleteRate+s.config.ReadRate:
			err = s.readRandom(ctx, p)
		default:
			err = s.send(ctx, p)
		}
		if err != nil && ctx.Err() == nil {
			s.stats.fail()
			s.log.Warn("action failed", "user", p.user.Username, "error", err)
		}
	}
}

func (s *Simulator) send(ctx context.Context, p *participant) error {
	// Occasionally reply to the latest peer message instead of starting
	// a fresh one.
	p.mu.Lock()
	var replyTo uuid.UUID
	if len(p.seen) > 0 && rand.Float64() < 0.25 {
		replyTo = p.seen[len(p.seen)-1]
	}
	p.mu.Unlock()

	body := map[string]string{
		"text": fmt.Sprintf("simulated message %s", uuid.NewString()[:8]),
	}

	var sent models.Message
	if replyTo != uuid.Nil {
		if err := s.doJSON(ctx, p, "POST", "/messages/reply/"+replyTo.String(), body, &sent); err != nil {
			return err
		}
		s.stats.record(&s.stats.Replied)
	} else {
		if err := s.doJSON(ctx, p, "POST", "/messages/send/"+p.peer.user.ID.String(), body, &sent); err != nil {
			return err
		}
		s.stats.record(&s.stats.Sent)
	}

	p.cache.ApplyResult(&sent)
	p.mu.Lock()
	p.sent = append(p.sent, sent.ID)
	p.mu.Unlock()
	return nil
}

func (s *Simulator) editRandom(ctx context.Context, p *participant) error {
	id, ok := p.randomOwn()
	if !ok {
		return s.send(ctx, p)
	}

	body := map[string]string{
		"text": fmt.Sprintf("edited at %s", time.Now().UTC().Format(time.RFC3339Nano)),
	}
	var edited models.Message
	if err := s.doJSON(ctx, p, "PUT", "/messages/edit/"+id.String(), body, &edited); err != nil {
		return err
	}
	s.stats.record(&s.stats.Edited)
	p.cache.ApplyResult(&edited)
	return nil
}

func (s *Simulator) deleteRandom(ctx context.Context, p *participant) error {
	id, ok := p.randomOwn()
	if !ok {
		return s.send(ctx, p)
	}

	var deleted models.Message
	if err := s.doJSON(ctx, p, "DELETE", "/messages/delete/"+id.String(), nil, &deleted); err != nil {
		return err
	}
	s.stats.record(&s.stats.Deleted)
	p.cache.ApplyResult(&deleted)
	p.forgetOwn(id)
	return nil
}

func (s *Simulator) readRandom(ctx context.Context, p *participant) error {
	p.mu.Lock()
	if len(p.seen) == 0 {
		p.mu.Unlock()
		return s.send(ctx, p)
	}
	id := p.seen[rand.Intn(len(p.seen))]
	p.mu.Unlock()

	var read models.Message
	if err := s.doJSON(ctx, p, "PUT", "/messages/read/"+id.String(), nil, &read); err != nil {
		return err
	}
	s.stats.record(&s.stats.Read)
	p.cache.ApplyResult(&read)
	return nil
}

// forgetOwn drops a deleted message from the edit/delete candidates so
// later actions do not target a tombstone.
func (p *participant) forgetOwn(id uuid.UUID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, candidate := range p.sent {
		if candidate == id {
			p.sent = append(p.sent[:i], p.sent[i+1:]...)
			return
		}
	}
}

func (p *participant) randomOwn() (uuid.UUID, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.sent) == 0 {
		return uuid.Nil, false
	}
	return p.sent[rand.Intn(len(p.sent))], true
}
