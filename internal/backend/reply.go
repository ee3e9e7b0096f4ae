package backend

import (
	"fmt"
	"math/big"
	"sort"
	"strconv"
	"strings"
)

// Reply is one decoded backend reply: Null, Scalar, Bulk, Array, Map or
// ErrorReply.
type Reply interface {
	// Text renders the reply the way redis-cli prints it.
	Text() string
	reply()
}

type Null struct{}

// Scalar holds an int64, float64, bool or *big.Int.
type Scalar struct {
	Value any
}

type Bulk string

type Array []Reply

type Pair struct {
	Key   Reply
	Value Reply
}

type Map []Pair

// ErrorReply is an error element nested inside an aggregate reply.
type ErrorReply struct {
	Message string
}

func (Null) reply()       {}
func (Scalar) reply()     {}
func (Bulk) reply()       {}
func (Array) reply()      {}
func (Map) reply()        {}
func (ErrorReply) reply() {}

func (Null) Text() string { return "(nil)" }

func (s Scalar) Text() string {
	switch v := s.Value.(type) {
	case int64:
		return "(integer) " + strconv.FormatInt(v, 10)
	case float64:
		return "(double) " + strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		if v {
			return "(true)"
		}
		return "(false)"
	case *big.Int:
		return "(big number) " + v.String()
	default:
		return fmt.Sprint(v)
	}
}

func (b Bulk) Text() string { return string(b) }

func (a Array) Text() string {
	if len(a) == 0 {
		return "(empty array)"
	}
	var sb strings.Builder
	for i, e := range a {
		if i > 0 {
			sb.WriteByte('\n')
		}
		writeItem(&sb, fmt.Sprintf("%d) ", i+1), e.Text())
	}
	return sb.String()
}

func (m Map) Text() string {
	if len(m) == 0 {
		return "(empty hash)"
	}
	var sb strings.Builder
	for i, p := range m {
		if i > 0 {
			sb.WriteByte('\n')
		}
		writeItem(&sb, fmt.Sprintf("%d# ", i+1), p.Key.Text()+" => "+p.Value.Text())
	}
	return sb.String()
}

func (e ErrorReply) Text() string { return "(error) " + e.Message }

// writeItem writes body behind label, indenting continuation lines under it.
func writeItem(sb *strings.Builder, label, body string) {
	indent := strings.Repeat(" ", len(label))
	for i, line := range strings.Split(body, "\n") {
		if i == 0 {
			sb.WriteString(label)
		} else {
			sb.WriteByte('\n')
			sb.WriteString(indent)
		}
		sb.WriteString(line)
	}
}

// FromValue converts a value decoded by go-redis into a Reply.
func FromValue(v any) Reply {
	switch val := v.(type) {
	case nil:
		return Null{}
	case string:
		return Bulk(val)
	case []byte:
		return Bulk(val)
	case int64:
		return Scalar{Value: val}
	case int:
		return Scalar{Value: int64(val)}
	case float64:
		return Scalar{Value: val}
	case bool:
		return Scalar{Value: val}
	case *big.Int:
		return Scalar{Value: val}
	case error:
		return ErrorReply{Message: val.Error()}
	case []any:
		out := make(Array, len(val))
		for i, e := range val {
			out[i] = FromValue(e)
		}
		return out
	case map[any]any:
		out := make(Map, 0, len(val))
		for k, e := range val {
			out = append(out, Pair{Key: FromValue(k), Value: FromValue(e)})
		}
		sort.Slice(out, func(i, j int) bool { return out[i].Key.Text() < out[j].Key.Text() })
		return out
	case map[string]any:
		out := make(Map, 0, len(val))
		for k, e := range val {
			out = append(out, Pair{Key: Bulk(k), Value: FromValue(e)})
		}
		sort.Slice(out, func(i, j int) bool { return out[i].Key.Text() < out[j].Key.Text() })
		return out
	default:
		return Bulk(fmt.Sprint(val))
	}
}

// Display flattens r for JSON responses: arrays become a list of lines,
// anything else a single string.
func Display(r Reply) any {
	switch val := r.(type) {
	case Array:
		out := make([]string, len(val))
		for i, e := range val {
			out[i] = flatText(e)
		}
		return out
	case Map:
		out := make([]string, 0, 2*len(val))
		for _, p := range val {
			out = append(out, flatText(p.Key), flatText(p.Value))
		}
		return out
	case Scalar:
		return fmt.Sprint(val.Value)
	default:
		return r.Text()
	}
}

func flatText(r Reply) string {
	switch val := r.(type) {
	case Scalar:
		return fmt.Sprint(val.Value)
	case Array:
		parts := make([]string, len(val))
		for i, e := range val {
			parts[i] = flatText(e)
		}
		return strings.Join(parts, ",")
	default:
		return r.Text()
	}
}
