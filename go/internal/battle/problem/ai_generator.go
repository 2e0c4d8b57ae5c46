package problem

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mcdev12/dsarena/go/clients/openrouter_client"
)

// Completer is the part of the chat client the generator needs.
type Completer interface {
	Complete(ctx context.Context, messages []openrouter_client.Message) (string, error)
}

// AIGenerator asks a chat completion model for a problem with hidden tests.
type AIGenerator struct {
	client Completer
}

func NewAIGenerator(client Completer) *AIGenerator {
	return &AIGenerator{client: client}
}

func (g *AIGenerator) Generate(ctx context.Context, language string) (Problem, error) {
	reply, err := g.client.Complete(ctx, []openrouter_client.Message{
		{Role: "system", Content: "You are a DSA problem setter. Reply with JSON only."},
		{Role: "user", Content: buildPrompt(language)},
	})
	if err != nil {
		return Problem{}, fmt.Errorf("generate problem: %w", err)
	}
	return ParseProblem(reply)
}

func buildPrompt(language string) string {
	return fmt.Sprintf(`Give 1 EASY DSA coding question solvable in %s by a single function.
The function receives whitespace separated tokens (numbers become integers) and returns a value;
lists are printed space separated.
Reply exactly as JSON: {"question": "...", "tests": [{"input": "1 2 3", "output": "3 2 1"}]} with 3 tests.`, language)
}

// ParseProblem extracts the problem JSON from a model reply, tolerating code fences
// and prose around the object.
func ParseProblem(reply string) (Problem, error) {
	body := strings.TrimSpace(reply)
	if start := strings.Index(body, "{"); start >= 0 {
		if end := strings.LastIndex(body, "}"); end > start {
			body = body[start : end+1]
		}
	}

	var p Problem
	if err := json.Unmarshal([]byte(body), &p); err != nil {
		return Problem{}, fmt.Errorf("%w: %v", ErrMalformedProblem, err)
	}
	p.Question = strings.TrimSpace(p.Question)
	for i := range p.Tests {
		p.Tests[i].Input = strings.TrimSpace(p.Tests[i].Input)
		p.Tests[i].Output = strings.TrimSpace(p.Tests[i].Output)
	}
	if err := p.Validate(); err != nil {
		return Problem{}, err
	}
	return p, nil
}
