package problem

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/mcdev12/dsarena/go/clients/openrouter_client"
)

type memoryCache struct {
	mu       sync.Mutex
	problems map[string]Problem
}

func newMemoryCache() *memoryCache {
	return &memoryCache{problems: make(map[string]Problem)}
}

func (c *memoryCache) Get(_ context.Context, language string) (Problem, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.problems[language]
	if !ok {
		return Problem{}, ErrCacheMiss
	}
	return p, nil
}

func (c *memoryCache) Set(_ context.Context, language string, p Problem) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.problems[language] = p
	return nil
}

func failing(err error) Generator {
	return GeneratorFunc(func(context.Context, string) (Problem, error) {
		return Problem{}, err
	})
}

func fixed(p Problem) Generator {
	return GeneratorFunc(func(context.Context, string) (Problem, error) {
		return p, nil
	})
}

func TestFallbackIsValidAndDeterministic(t *testing.T) {
	a, b := Fallback(), Fallback()
	if err := a.Validate(); err != nil {
		t.Fatalf("fallback must be valid: %v", err)
	}
	if a.Question != b.Question || len(a.Tests) != len(b.Tests) {
		t.Fatal("fallback must be deterministic")
	}
	for i := range a.Tests {
		if a.Tests[i] != b.Tests[i] {
			t.Fatalf("test %d differs", i)
		}
	}
}

func TestFallbackGeneratorSubstitutesOnError(t *testing.T) {
	g := NewFallbackGenerator(failing(errors.New("upstream down")))
	p, err := g.Generate(context.Background(), "python")
	if err != nil {
		t.Fatalf("fallback generator must not fail: %v", err)
	}
	if p.Question != Fallback().Question {
		t.Fatalf("expected fallback problem, got %q", p.Question)
	}
}

func TestFallbackGeneratorSubstitutesOnMalformed(t *testing.T) {
	g := NewFallbackGenerator(fixed(Problem{Question: "no tests"}))
	p, err := g.Generate(context.Background(), "python")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(p.Tests) == 0 {
		t.Fatal("fallback must carry tests")
	}
}

func TestFallbackGeneratorPassesThroughGoodProblem(t *testing.T) {
	want := Problem{Question: "sum", Tests: []TestCase{{Input: "1 2", Output: "3"}}}
	p, err := NewFallbackGenerator(fixed(want)).Generate(context.Background(), "python")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Question != "sum" {
		t.Fatalf("expected generated problem, got %q", p.Question)
	}
}

func TestParseProblem(t *testing.T) {
	reply := "Here you go:\n```json\n{\"question\": \" Reverse it \", \"tests\": [{\"input\": \"1 2 3\", \"output\": \"3 2 1 \"}]}\n```"
	p, err := ParseProblem(reply)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if p.Question != "Reverse it" {
		t.Fatalf("question not trimmed: %q", p.Question)
	}
	if p.Tests[0].Output != "3 2 1" {
		t.Fatalf("output not trimmed: %q", p.Tests[0].Output)
	}
}

func TestParseProblemRejectsGarbage(t *testing.T) {
	for _, reply := range []string{"", "no json here", `{"question": "x", "tests": []}`, `{"tests": [{"input": "1", "output": "1"}]}`} {
		if _, err := ParseProblem(reply); !errors.Is(err, ErrMalformedProblem) {
			t.Errorf("reply %q: expected ErrMalformedProblem, got %v", reply, err)
		}
	}
}

func TestAIGeneratorAgainstChatAPI(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if r.URL.Path != openrouter_client.ChatCompletionsEndpoint {
			http.NotFound(w, r)
			return
		}
		var req openrouter_client.ChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if !strings.Contains(req.Messages[len(req.Messages)-1].Content, "python") {
			http.Error(w, "prompt must name the language", http.StatusBadRequest)
			return
		}
		content := `{"question": "Double each number", "tests": [{"input": "1 2", "output": "2 4"}]}`
		json.NewEncoder(w).Encode(openrouter_client.ChatResponse{
			Choices: []openrouter_client.Choice{{Message: openrouter_client.Message{Role: "assistant", Content: content}}},
		})
	}))
	defer server.Close()

	client := openrouter_client.NewOpenRouterClientWithURL(server.URL, "secret", "")
	p, err := NewAIGenerator(client).Generate(context.Background(), "python")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if gotAuth != "Bearer secret" {
		t.Fatalf("unexpected auth header %q", gotAuth)
	}
	if p.Question != "Double each number" || len(p.Tests) != 1 {
		t.Fatalf("unexpected problem %+v", p)
	}
}

func TestAIGeneratorSurfacesHTTPErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := openrouter_client.NewOpenRouterClientWithURL(server.URL, "k", "")
	if _, err := NewAIGenerator(client).Generate(context.Background(), "python"); err == nil {
		t.Fatal("expected an error for a 429 response")
	}
}

func TestCachingGeneratorStoresAndReplays(t *testing.T) {
	cache := newMemoryCache()
	good := Problem{Question: "sum", Tests: []TestCase{{Input: "1 2", Output: "3"}}}

	if _, err := NewCachingGenerator(fixed(good), cache).Generate(context.Background(), "python"); err != nil {
		t.Fatalf("generate: %v", err)
	}

	p, err := NewCachingGenerator(failing(errors.New("down")), cache).Generate(context.Background(), "python")
	if err != nil {
		t.Fatalf("expected cached problem, got error %v", err)
	}
	if p.Question != "sum" {
		t.Fatalf("expected cached problem, got %q", p.Question)
	}
}

func TestCachingGeneratorMissReturnsBothErrors(t *testing.T) {
	down := errors.New("down")
	_, err := NewCachingGenerator(failing(down), newMemoryCache()).Generate(context.Background(), "python")
	if !errors.Is(err, down) || !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected joined error, got %v", err)
	}
}
