package python

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/mcdev12/dsarena/go/internal/battle/judge"
)

const (
	Key                = "python"
	DefaultInterpreter = "python3"
	filename           = "main.py"
)

// top-level def only; methods need an instance the harness cannot build
var defPattern = regexp.MustCompile(`(?m)^(?:async\s+)?def\s+([A-Za-z_][A-Za-z0-9_]*)\s*\(`)

// PythonPlugin implements judge.Language for Python 3.
type PythonPlugin struct {
	interpreter string
}

// init registers the Python plugin with the judge registry.
func init() {
	if err := judge.RegisterLanguage(Key, New()); err != nil {
		panic(fmt.Sprintf("Failed to register python plugin: %v", err))
	}
}

func New() *PythonPlugin {
	return &PythonPlugin{interpreter: DefaultInterpreter}
}

func (p *PythonPlugin) Init(settings map[string]interface{}) error {
	interpreter, err := judge.StringSetting(settings, "interpreter", DefaultInterpreter)
	if err != nil {
		return err
	}
	p.interpreter = interpreter
	return nil
}

func (p *PythonPlugin) EntryPoint(code string) (string, bool) {
	m := defPattern.FindStringSubmatch(code)
	if m == nil {
		return "", false
	}
	return m[1], true
}

func (p *PythonPlugin) Program(code, entry string) judge.Program {
	return judge.Program{
		Filename: filename,
		Source:   harness(code, entry),
		Command:  []string{p.interpreter, "-I", "-B", filename},
	}
}

func harness(code, entry string) string {
	var b strings.Builder
	b.WriteString(code)
	b.WriteString("\n\n")
	b.WriteString(strings.ReplaceAll(harnessTemplate, "__ENTRY__", entry))
	return b.String()
}

const harnessTemplate = `import sys as _battle_sys
import inspect as _battle_inspect


def _battle_token(tok):
    try:
        return int(tok)
    except ValueError:
        pass
    try:
        return float(tok)
    except ValueError:
        return tok


def _battle_format(value):
    if isinstance(value, bool):
        return "true" if value else "false"
    if isinstance(value, (list, tuple)):
        return " ".join(_battle_format(v) for v in value)
    if value is None:
        return ""
    return str(value)


def _battle_main():
    args = [_battle_token(t) for t in _battle_sys.stdin.read().split()]
    fn = __ENTRY__
    try:
        params = [
            p for p in _battle_inspect.signature(fn).parameters.values()
            if p.kind in (p.POSITIONAL_ONLY, p.POSITIONAL_OR_KEYWORD)
        ]
        arity = len(params)
    except (TypeError, ValueError):
        arity = 1
    if arity == 0:
        result = fn()
    elif arity == 1 or arity != len(args):
        result = fn(args)
    else:
        result = fn(*args)
    print(_battle_format(result))


if __name__ == "__main__":
    _battle_main()
`
