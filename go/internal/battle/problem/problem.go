package problem

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
)

// ErrMalformedProblem is returned when a generator produces a problem that cannot be judged.
var ErrMalformedProblem = errors.New("malformed problem")

// TestCase is one hidden {input, expected output} pair.
type TestCase struct {
	Input  string `json:"input"`
	Output string `json:"output"`
}

// Problem is a statement plus its hidden tests.
type Problem struct {
	Question string     `json:"question"`
	Tests    []TestCase `json:"tests"`
}

// Validate checks that the problem can be used for a battle.
func (p Problem) Validate() error {
	if strings.TrimSpace(p.Question) == "" {
		return fmt.Errorf("%w: empty question", ErrMalformedProblem)
	}
	if len(p.Tests) == 0 {
		return fmt.Errorf("%w: no tests", ErrMalformedProblem)
	}
	return nil
}

// Generator produces a problem for a language track.
type Generator interface {
	Generate(ctx context.Context, language string) (Problem, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, language string) (Problem, error)

func (f GeneratorFunc) Generate(ctx context.Context, language string) (Problem, error) {
	return f(ctx, language)
}

// Fallback is the deterministic problem used whenever generation fails.
func Fallback() Problem {
	return Problem{
		Question: "Given a list of integers, return the list in reverse order.",
		Tests: []TestCase{
			{Input: "1 2 3", Output: "3 2 1"},
			{Input: "5 4 9 1", Output: "1 9 4 5"},
			{Input: "42", Output: "42"},
		},
	}
}

// FallbackGenerator never fails: generator errors and malformed problems are
// replaced by Fallback().
type FallbackGenerator struct {
	next Generator
}

func NewFallbackGenerator(next Generator) *FallbackGenerator {
	return &FallbackGenerator{next: next}
}

func (g *FallbackGenerator) Generate(ctx context.Context, language string) (Problem, error) {
	if g.next == nil {
		return Fallback(), nil
	}

	p, err := g.next.Generate(ctx, language)
	if err == nil {
		err = p.Validate()
	}
	if err != nil {
		log.Warn().
			Err(err).
			Str("language", language).
			Msg("problem generation failed, using fallback problem")
		return Fallback(), nil
	}
	return p, nil
}
