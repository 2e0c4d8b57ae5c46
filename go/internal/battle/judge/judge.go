package judge

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/mcdev12/dsarena/go/internal/battle/problem"
	"github.com/rs/zerolog/log"
)

// ErrNoEntryPoint is reported when no callable could be located in a submission.
var ErrNoEntryPoint = errors.New("no entry point found")

const DefaultTimeout = 5 * time.Second

// Verdict is the outcome of one test.
type Verdict string

const (
	VerdictAccepted     Verdict = "accepted"
	VerdictWrongAnswer  Verdict = "wrong_answer"
	VerdictTimeLimit    Verdict = "time_limit_exceeded"
	VerdictRuntimeError Verdict = "runtime_error"
	VerdictSystemError  Verdict = "system_error"
)

// CaseResult is the verdict of a single test.
type CaseResult struct {
	Verdict  Verdict
	Duration time.Duration
}

// Score is the number of tests whose output matched, out of Total.
type Score struct {
	Passed int
	Total  int
	Cases  []CaseResult
	Err    error // why nothing was executed, if so
}

// Executor scores submitted code against hidden tests, one sandboxed process per test.
type Executor struct {
	sandbox Sandbox
	timeout time.Duration
}

func NewExecutor(sandbox Sandbox, timeout time.Duration) *Executor {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Executor{
		sandbox: sandbox,
		timeout: timeout,
	}
}

// Run returns how many tests the code passes. It never fails: every problem with
// the language, the code or a single run only lowers the score.
func (e *Executor) Run(ctx context.Context, language, code string, tests []problem.TestCase) (score Score) {
	score.Total = len(tests)

	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Interface("panic", r).
				Str("language", language).
				Msg("judge panicked, remaining tests score 0")
		}
	}()

	lang, err := GetLanguage(language)
	if err != nil {
		score.Err = err
		return score
	}

	entry, ok := lang.EntryPoint(code)
	if !ok {
		score.Err = ErrNoEntryPoint
		return score
	}

	for _, tc := range tests {
		result := e.runCase(ctx, lang, code, entry, tc)
		score.Cases = append(score.Cases, result)
		if result.Verdict == VerdictAccepted {
			score.Passed++
		}
	}

	log.Debug().
		Str("language", language).
		Str("entry_point", entry).
		Int("passed", score.Passed).
		Int("total", score.Total).
		Msg("submission judged")

	return score
}

func (e *Executor) runCase(ctx context.Context, lang Language, code, entry string, tc problem.TestCase) CaseResult {
	prog := lang.Program(code, entry)
	prog.Stdin = tc.Input

	runCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	out, err := e.sandbox.Execute(runCtx, prog)
	result := CaseResult{Duration: out.Duration}

	switch {
	case errors.Is(err, ErrTimeout):
		result.Verdict = VerdictTimeLimit
	case errors.Is(err, ErrNonZeroExit):
		result.Verdict = VerdictRuntimeError
	case err != nil:
		log.Warn().Err(err).Msg("sandbox failed to execute test")
		result.Verdict = VerdictSystemError
	case strings.TrimSpace(out.Stdout) == strings.TrimSpace(tc.Output):
		result.Verdict = VerdictAccepted
	default:
		result.Verdict = VerdictWrongAnswer
	}
	return result
}
