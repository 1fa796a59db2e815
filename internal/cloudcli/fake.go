package cloudcli

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Call is one invocation seen by a Script.
type Call struct {
	Name string
	Args []string
}

// Line renders the call as a shell-like string.
func (c Call) Line() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// Response is a canned result for calls whose line starts with Prefix.
type Response struct {
	Prefix string
	Output string
	Err    error
}

// Script is a Runner that answers from canned responses and records every
// call. The first matching response wins; responses with Once set are
// consumed. Unmatched calls fail.
type Script struct {
	mu        sync.Mutex
	responses []scripted
	calls     []Call
}

type scripted struct {
	Response
	once bool
	used bool
}

// On adds a response used for every matching call.
func (s *Script) On(prefix, output string, err error) *Script {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses = append(s.responses, scripted{Response: Response{prefix, output, err}})
	return s
}

// Once adds a response consumed by the first matching call.
func (s *Script) Once(prefix, output string, err error) *Script {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses = append(s.responses, scripted{Response: Response{prefix, output, err}, once: true})
	return s
}

func (s *Script) Run(_ context.Context, name string, args ...string) ([]byte, error) {
	call := Call{Name: name, Args: append([]string(nil), args...)}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, call)
	line := call.Line()
	for i := range s.responses {
		r := &s.responses[i]
		if r.used || !strings.HasPrefix(line, r.Prefix) {
			continue
		}
		if r.once {
			r.used = true
		}
		return []byte(r.Output), r.Err
	}
	return nil, fmt.Errorf("unexpected command: %s", line)
}

// Calls returns the recorded calls in order.
func (s *Script) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// Count returns how many recorded calls start with prefix.
func (s *Script) Count(prefix string) int {
	n := 0
	for _, c := range s.Calls() {
		if strings.HasPrefix(c.Line(), prefix) {
			n++
		}
	}
	return n
}
