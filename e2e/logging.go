//go:build e2e

package e2e

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/testcontainers/testcontainers-go"
)

var ansiRegex = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)

func StripAnsi(s string) string {
	return ansiRegex.ReplaceAllString(s, "")
}

type LogSubscription struct {
	Node    string
	Regex   *regexp.Regexp
	MatchCh chan struct{}
}

func (s *LogSubscription) notifyIfMatch(content string) {
	if !s.Regex.MatchString(content) {
		return
	}
	select {
	case s.MatchCh <- struct{}{}:
	default:
	}
}

// LogManager collects container output per node and wakes up subscribers waiting for a pattern.
type LogManager struct {
	mu          sync.Mutex
	subscribers []*LogSubscription
	history     map[string]*strings.Builder
}

func NewLogManager() *LogManager {
	return &LogManager{history: make(map[string]*strings.Builder)}
}

func (m *LogManager) Accept(node string, content string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.history[node]; !ok {
		m.history[node] = &strings.Builder{}
	}
	m.history[node].WriteString(content)
	// lines may be split across chunks, so match the whole history
	full := m.history[node].String()
	for _, sub := range m.subscribers {
		if sub.Node == node {
			sub.notifyIfMatch(full)
		}
	}
}

// Subscribe registers pattern, a regular expression, and matches it against output already received.
func (m *LogManager) Subscribe(node string, pattern string) (*LogSubscription, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	sub := &LogSubscription{
		Node:    node,
		Regex:   re,
		MatchCh: make(chan struct{}, 1),
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribers = append(m.subscribers, sub)
	if b, ok := m.history[node]; ok {
		sub.notifyIfMatch(b.String())
	}
	return sub, nil
}

func (m *LogManager) Unsubscribe(sub *LogSubscription) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, s := range m.subscribers {
		if s == sub {
			m.subscribers = append(m.subscribers[:i], m.subscribers[i+1:]...)
			break
		}
	}
}

// History returns everything node has logged so far.
func (m *LogManager) History(node string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok := m.history[node]; ok {
		return b.String()
	}
	return ""
}

type UnifiedLogConsumer struct {
	Node    string
	Manager *LogManager
}

func (c *UnifiedLogConsumer) Accept(l testcontainers.Log) {
	content := StripAnsi(string(l.Content))
	fmt.Printf("[%s:%s] %s", c.Node, l.LogType, content)
	c.Manager.Accept(c.Node, content)
}
