// Package xmltool recovers tool invocations embedded as inline markup in
// free text. It is the fallback path for engines that bypass structured tool
// streaming and instead print blocks of the form:
//
//	<tool_call>{"name": "search", "input": {"q": "weather"}}</tool_call>
//
// The primary structured path never goes through this package.
package xmltool

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
)

const (
	openTag  = "<tool_call>"
	closeTag = "</tool_call>"
)

// Call is one recovered tool invocation.
type Call struct {
	ID    string
	Name  string
	Input json.RawMessage
}

// payload is the JSON body inside a markup block. Both "input" and
// "arguments" are accepted; engines disagree on the field name.
type payload struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Input     json.RawMessage `json:"input"`
	Arguments json.RawMessage `json:"arguments"`
}

// Parse scans text for embedded invocation blocks. It returns the recovered
// calls in order of appearance and the text with those blocks removed.
// Blocks whose body is not a valid invocation are left in the text untouched.
func Parse(text string) ([]Call, string) {
	if !strings.Contains(text, openTag) {
		return nil, text
	}

	var calls []Call
	var out strings.Builder
	rest := text
	for {
		start := strings.Index(rest, openTag)
		if start < 0 {
			out.WriteString(rest)
			break
		}
		end := strings.Index(rest[start:], closeTag)
		if end < 0 {
			// Unterminated block: leave it as prose.
			out.WriteString(rest)
			break
		}
		body := rest[start+len(openTag) : start+end]
		call, ok := parseBody(body)
		if !ok {
			out.WriteString(rest[:start+end+len(closeTag)])
			rest = rest[start+end+len(closeTag):]
			continue
		}
		out.WriteString(rest[:start])
		rest = rest[start+end+len(closeTag):]
		calls = append(calls, call)
	}

	return calls, strings.TrimSpace(out.String())
}

func parseBody(body string) (Call, bool) {
	var p payload
	if err := json.Unmarshal([]byte(strings.TrimSpace(body)), &p); err != nil {
		return Call{}, false
	}
	if p.Name == "" {
		return Call{}, false
	}
	input := p.Input
	if len(input) == 0 {
		input = p.Arguments
	}
	if len(input) == 0 {
		input = json.RawMessage(`{}`)
	}
	id := p.ID
	if id == "" {
		id = deriveID(p.Name, input)
	}
	return Call{ID: id, Name: p.Name, Input: input}, true
}

// deriveID produces a deterministic identifier for invocations that carry
// none, so repeated parsing of the same text yields the same id and the
// downstream dedup rules apply.
func deriveID(name string, input json.RawMessage) string {
	h := sha256.Sum256(append([]byte(name+"\x00"), input...))
	return "xmltool_" + hex.EncodeToString(h[:8])
}
