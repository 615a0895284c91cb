package classify

import (
	"fmt"
	"math/rand/v2"
	"regexp"
	"strings"
	"time"

	"github.com/licitahub/atendechat/internal/logging"
)

// Source identifies which stage of the chain produced an outcome.
type Source string

const (
	SourceRule       Source = "rule"
	SourceContextual Source = "contextual"
	SourceEscalation Source = "escalation"
)

// Outcome is the chain's decision for one inbound message.
type Outcome struct {
	Reply    string
	Category string
	Source   Source

	// Escalate means the session must be queued for a human immediately.
	Escalate bool
	// EscalateAfter, when positive, schedules escalation after matching a
	// requires-human rule; the scripted reply is still shown first.
	EscalateAfter time.Duration
}

type compiledRule struct {
	rule     Rule
	patterns []*regexp.Regexp
}

// Responder is a contextual fallback. It returns ok=false when it has
// nothing to say. A panicking responder is treated the same as ok=false.
type Responder func(normalizedText string) (reply, category string, ok bool)

// Chain applies the ordered classification stages: scripted rules first,
// contextual responders second, default escalation last.
type Chain struct {
	rules         []compiledRule
	responders    []Responder
	handoffReply  string
	escalateDelay time.Duration
	pick          func(n int) int
	log           *logging.Logger
}

// NewChain compiles the rule set and builds the chain. handoffReply is the
// system text shown on default escalation; escalateDelay applies to
// requires-human rules.
func NewChain(rs RuleSet, handoffReply string, escalateDelay time.Duration, log *logging.Logger) (*Chain, error) {
	if err := rs.Validate(); err != nil {
		return nil, fmt.Errorf("invalid rule set: %w", err)
	}

	c := &Chain{
		handoffReply:  handoffReply,
		escalateDelay: escalateDelay,
		pick:          rand.IntN,
		log:           log.Sub("classify"),
	}

	for _, r := range rs.Rules {
		cr := compiledRule{rule: r}
		for _, p := range r.Patterns {
			cr.patterns = append(cr.patterns, regexp.MustCompile("(?i)"+p))
		}
		c.rules = append(c.rules, cr)
	}

	for _, tp := range rs.Topics {
		c.responders = append(c.responders, topicResponder(tp))
	}
	return c, nil
}

// AddResponder appends a contextual fallback after the topic responders.
func (c *Chain) AddResponder(r Responder) {
	c.responders = append(c.responders, r)
}

// Classify runs the chain over one user message. First match wins; a
// responder failure degrades to the next stage, never to an error.
func (c *Chain) Classify(text string) Outcome {
	normalized := normalize(text)

	for _, cr := range c.rules {
		for _, p := range cr.patterns {
			if !p.MatchString(normalized) {
				continue
			}
			out := Outcome{
				Reply:    cr.rule.Replies[c.pick(len(cr.rule.Replies))],
				Category: cr.rule.Category,
				Source:   SourceRule,
			}
			if cr.rule.RequiresHuman {
				out.EscalateAfter = c.escalateDelay
			}
			c.log.Debug().Str("category", out.Category).Msg("rule matched")
			return out
		}
	}

	for _, responder := range c.responders {
		reply, category, ok := c.safeRespond(responder, normalized)
		if ok {
			c.log.Debug().Str("category", category).Msg("contextual match")
			return Outcome{Reply: reply, Category: category, Source: SourceContextual}
		}
	}

	c.log.Debug().Msg("no match, escalating to human queue")
	return Outcome{
		Reply:    c.handoffReply,
		Category: "atendimento_humano",
		Source:   SourceEscalation,
		Escalate: true,
	}
}

// safeRespond shields the chain from a misbehaving responder: a panic is
// logged and treated as "no response produced".
func (c *Chain) safeRespond(r Responder, text string) (reply, category string, ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			c.log.Error().Any("panic", rec).Msg("responder panicked")
			reply, category, ok = "", "", false
		}
	}()
	return r(text)
}

func topicResponder(tp Topic) Responder {
	return func(text string) (string, string, bool) {
		for _, kw := range tp.Keywords {
			if strings.Contains(text, kw) {
				return tp.Reply, tp.Category, true
			}
		}
		return "", "", false
	}
}
