package evql

import (
	"strings"
	"time"

	"github.com/errwatch/errwatch/internal/model"
)

// record is the evaluator's view of one event.
type record struct {
	ev *model.Event
}

// Match evaluates a parsed expression against an event. A nil node
// matches everything.
func Match(node Node, ev *model.Event) bool {
	if node == nil {
		return true
	}
	return node.eval(&record{ev: ev})
}

type binOp int

const (
	opAnd binOp = iota
	opOr
)

type binary struct {
	op    binOp
	left  Node
	right Node
}

func (b binary) eval(r *record) bool {
	if b.op == opAnd {
		return b.left.eval(r) && b.right.eval(r)
	}
	return b.left.eval(r) || b.right.eval(r)
}

type not struct {
	inner Node
}

func (n not) eval(r *record) bool {
	return !n.inner.eval(r)
}

type matchOp int

const (
	opEq matchOp = iota
	opNeq
	opContains
)

type match struct {
	key   string // empty for full-text
	op    matchOp
	value string
}

func (m match) eval(r *record) bool {
	if m.key == "" {
		return r.fullText(m.value)
	}
	field := r.field(m.key)
	switch m.op {
	case opEq:
		return strings.EqualFold(field, m.value)
	case opNeq:
		return !strings.EqualFold(field, m.value)
	default:
		return containsFold(field, m.value)
	}
}

func (r *record) field(key string) string {
	switch strings.ToLower(key) {
	case "host", "dest", "destination":
		return r.ev.Host
	case "connector", "server":
		return r.ev.Connector
	case "connection", "conn", "type":
		return r.ev.Connection
	case "url":
		return r.ev.URL
	case "date":
		return r.ev.Timestamp.Format(time.DateOnly)
	default:
		return ""
	}
}

func (r *record) fullText(needle string) bool {
	for _, f := range []string{r.ev.Host, r.ev.Connector, r.ev.Connection, r.ev.URL} {
		if containsFold(f, needle) {
			return true
		}
	}
	return false
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}
