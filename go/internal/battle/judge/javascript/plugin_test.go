package javascript

import (
	"context"
	"os/exec"
	"testing"
	"time"

	"github.com/mcdev12/dsarena/go/internal/battle/judge"
	"github.com/mcdev12/dsarena/go/internal/battle/problem"
)

func TestEntryPoint(t *testing.T) {
	tests := []struct {
		name string
		code string
		want string
		ok   bool
	}{
		{"declaration", "function reverse(nums) {\n  return nums.reverse();\n}", "reverse", true},
		{"arrow", "const solve = (nums) => nums;", "solve", true},
		{"function expression", "let run = function (a) { return a; };", "run", true},
		{"earliest wins", "const first = x => x;\nfunction second(y) { return y; }", "first", true},
		{"plain value", "const limit = 10;\nconsole.log(limit);", "", false},
	}
	p := New()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := p.EntryPoint(tt.code)
			if got != tt.want || ok != tt.ok {
				t.Fatalf("EntryPoint() = %q, %v, want %q, %v", got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestRegistered(t *testing.T) {
	if _, err := judge.GetLanguage(Key); err != nil {
		t.Fatalf("javascript not registered: %v", err)
	}
}

func TestJudgeReverse(t *testing.T) {
	if _, err := exec.LookPath(DefaultNode); err != nil {
		t.Skip("node not installed")
	}
	e := judge.NewExecutor(judge.NewProcessSandbox(), 2*time.Second)
	code := "function reverse(nums) {\n  return nums.slice().reverse();\n}\n"

	score := e.Run(context.Background(), Key, code, problem.Fallback().Tests)
	if score.Passed != 3 {
		t.Fatalf("passed = %d (%+v), want 3", score.Passed, score.Cases)
	}
}
