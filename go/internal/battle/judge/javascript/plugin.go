package javascript

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/mcdev12/dsarena/go/internal/battle/judge"
)

const (
	Key         = "javascript"
	DefaultNode = "node"
	filename    = "main.js"
)

var (
	functionDecl = regexp.MustCompile(`(?m)^[ \t]*(?:export\s+)?(?:async\s+)?function\s*\*?\s*([A-Za-z_$][\w$]*)\s*\(`)
	arrowDecl    = regexp.MustCompile(`(?m)^[ \t]*(?:export\s+)?(?:const|let|var)\s+([A-Za-z_$][\w$]*)\s*=\s*(?:async\s*)?(?:function\b|\([^)]*\)\s*=>|[A-Za-z_$][\w$]*\s*=>)`)
)

// JavaScriptPlugin implements judge.Language for Node.js.
type JavaScriptPlugin struct {
	node string
}

func init() {
	if err := judge.RegisterLanguage(Key, New()); err != nil {
		panic(fmt.Sprintf("Failed to register javascript plugin: %v", err))
	}
}

func New() *JavaScriptPlugin {
	return &JavaScriptPlugin{node: DefaultNode}
}

func (p *JavaScriptPlugin) Init(settings map[string]interface{}) error {
	node, err := judge.StringSetting(settings, "interpreter", DefaultNode)
	if err != nil {
		return err
	}
	p.node = node
	return nil
}

// EntryPoint returns whichever declaration appears first in the source.
func (p *JavaScriptPlugin) EntryPoint(code string) (string, bool) {
	best, name := -1, ""
	for _, re := range []*regexp.Regexp{functionDecl, arrowDecl} {
		loc := re.FindStringSubmatchIndex(code)
		if loc == nil {
			continue
		}
		if best == -1 || loc[0] < best {
			best, name = loc[0], code[loc[2]:loc[3]]
		}
	}
	return name, best >= 0
}

func (p *JavaScriptPlugin) Program(code, entry string) judge.Program {
	return judge.Program{
		Filename: filename,
		Source:   code + "\n\n" + strings.ReplaceAll(harnessTemplate, "__ENTRY__", entry),
		Command:  []string{p.node, filename},
	}
}

const harnessTemplate = `;(function () {
  const fn = __ENTRY__;
  const input = require("fs").readFileSync(0, "utf8");
  const args = input
    .split(/\s+/)
    .filter(Boolean)
    .map((t) => (isNaN(Number(t)) ? t : Number(t)));
  const format = (v) =>
    Array.isArray(v) ? v.map(format).join(" ") : v === null || v === undefined ? "" : String(v);
  let result;
  if (fn.length === 0) {
    result = fn();
  } else if (fn.length === 1 || fn.length !== args.length) {
    result = fn(args);
  } else {
    result = fn(...args);
  }
  console.log(format(result));
})();
`
