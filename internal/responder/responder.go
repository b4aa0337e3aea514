// Package responder produces the downstream "agent" reply for a sanitized
// input. It only ever sees text that has already been through the engine.
package responder

import (
	"context"
	"math/rand/v2"
	"sync"
)

// Responder answers a sanitized input.
type Responder interface {
	Respond(ctx context.Context, sanitized string) (string, error)
}

var cannedReplies = [...]string{
	"I understand you need help with workflow automation. Here are some recommendations: implement chatbots for common queries, set up automated ticket routing, create template responses, and integrate with your CRM system.",
	"Based on your request, I can suggest several automation strategies: use workflow management tools, implement automated data processing, set up notification systems, and create custom integrations.",
	"For your automation needs, consider: API integrations for data synchronization, automated report generation, scheduled task execution, and real-time monitoring systems.",
	"I recommend these automation approaches: process optimization through AI, automated quality assurance checks, intelligent data routing, and predictive analytics implementation.",
	"To improve your workflow efficiency: implement robotic process automation (RPA), set up intelligent document processing, create automated approval workflows, and deploy chatbot assistants.",
}

// CannedReplies returns the fixed replies Canned picks from.
func CannedReplies() []string {
	out := cannedReplies
	return out[:]
}

// Canned picks one of a fixed set of automation-advice replies at random.
type Canned struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

// NewCanned seeds from the runtime source. Use NewCannedWithSource in tests.
func NewCanned() *Canned {
	return &Canned{}
}

// NewCannedWithSource makes the choice sequence reproducible.
func NewCannedWithSource(src rand.Source) *Canned {
	return &Canned{rnd: rand.New(src)}
}

func (c *Canned) Respond(_ context.Context, _ string) (string, error) {
	return cannedReplies[c.pick(len(cannedReplies))], nil
}

func (c *Canned) Name() string { return "canned" }

func (c *Canned) pick(n int) int {
	if c.rnd == nil {
		return rand.IntN(n)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rnd.IntN(n)
}
