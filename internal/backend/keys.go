package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/redis/go-redis/v9"

	"kvconsole/internal/apperr"
	"kvconsole/internal/constants"
)

const scanCount = 1000

const (
	TypeString = "string"
	TypeList   = "list"
	TypeSet    = "set"
	TypeZSet   = "zset"
	TypeHash   = "hash"
)

// KeyValue is a key's content. Data is a string, []string, []ZMember or
// map[string]string depending on Type.
type KeyValue struct {
	Key  string `json:"key"`
	Type string `json:"type"`
	Data any    `json:"data"`
}

type ZMember struct {
	Member string  `json:"member"`
	Score  float64 `json:"score"`
}

// Keys lists the keys matching pattern, sorted. An empty pattern means "*".
func (c *Conn) Keys(ctx context.Context, pattern string) ([]string, error) {
	const op = "backend.Keys"
	if pattern == "" {
		pattern = "*"
	}

	seen := make(map[string]struct{})
	var cursor uint64
	for {
		batch, next, err := c.client.Scan(ctx, cursor, pattern, scanCount).Result()
		if err != nil {
			return nil, Classify(op, err)
		}
		for _, k := range batch {
			seen[k] = struct{}{}
		}
		if next == 0 {
			break
		}
		cursor = next
	}

	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func (c *Conn) ReadKey(ctx context.Context, key string) (*KeyValue, error) {
	const op = "backend.ReadKey"

	typ, err := c.client.Type(ctx, key).Result()
	if err != nil {
		return nil, Classify(op, err)
	}

	var data any
	switch typ {
	case "none":
		return nil, apperr.New(apperr.KindKeyNotFound, op, constants.MsgKeyNotFound)
	case TypeString:
		data, err = c.client.Get(ctx, key).Result()
	case TypeList:
		data, err = c.client.LRange(ctx, key, 0, -1).Result()
	case TypeSet:
		var members []string
		members, err = c.client.SMembers(ctx, key).Result()
		sort.Strings(members)
		data = members
	case TypeZSet:
		var zs []redis.Z
		zs, err = c.client.ZRangeWithScores(ctx, key, 0, -1).Result()
		members := make([]ZMember, 0, len(zs))
		for _, z := range zs {
			members = append(members, ZMember{Member: fmt.Sprint(z.Member), Score: z.Score})
		}
		data = members
	case TypeHash:
		data, err = c.client.HGetAll(ctx, key).Result()
	default:
		return nil, apperr.New(apperr.KindInvalidInput, op, "unsupported data type: "+typ)
	}

	if errors.Is(err, redis.Nil) {
		return nil, apperr.New(apperr.KindKeyNotFound, op, constants.MsgKeyNotFound)
	}
	if err != nil {
		return nil, Classify(op, err)
	}
	return &KeyValue{Key: key, Type: typ, Data: data}, nil
}

// WriteKey replaces the key's content. Aggregate types are rewritten inside
// one MULTI/EXEC so readers never see a half-written key.
func (c *Conn) WriteKey(ctx context.Context, key, typ string, raw json.RawMessage) error {
	const op = "backend.WriteKey"

	if typ == "" {
		return apperr.New(apperr.KindInvalidInput, op, "type is required")
	}
	if len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return apperr.New(apperr.KindInvalidInput, op, "data is required")
	}

	var err error
	switch typ {
	case TypeString:
		var value string
		if value, err = decodeString(raw); err != nil {
			return apperr.Wrap(apperr.KindInvalidInput, op, "invalid string data", err)
		}
		err = c.client.Set(ctx, key, value, 0).Err()

	case TypeList, TypeSet:
		var items []string
		if items, err = decodeList(raw); err != nil {
			return apperr.Wrap(apperr.KindInvalidInput, op, "invalid "+typ+" data", err)
		}
		_, err = c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			if len(items) == 0 {
				return nil
			}
			if typ == TypeList {
				pipe.RPush(ctx, key, toArgs(items)...)
			} else {
				pipe.SAdd(ctx, key, toArgs(items)...)
			}
			return nil
		})

	case TypeHash:
		var fields map[string]string
		if fields, err = decodeHash(raw); err != nil {
			return apperr.Wrap(apperr.KindInvalidInput, op, "invalid hash data", err)
		}
		_, err = c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			if len(fields) == 0 {
				return nil
			}
			args := make([]any, 0, 2*len(fields))
			for f, v := range fields {
				args = append(args, f, v)
			}
			pipe.HSet(ctx, key, args...)
			return nil
		})

	case TypeZSet:
		var members []ZMember
		if err = json.Unmarshal(raw, &members); err != nil {
			return apperr.Wrap(apperr.KindInvalidInput, op, "invalid zset data", err)
		}
		zs := make([]redis.Z, len(members))
		for i, m := range members {
			zs[i] = redis.Z{Score: m.Score, Member: m.Member}
		}
		_, err = c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			if len(zs) > 0 {
				pipe.ZAdd(ctx, key, zs...)
			}
			return nil
		})

	default:
		return apperr.New(apperr.KindInvalidInput, op, "unsupported data type: "+typ)
	}

	return Classify(op, err)
}

// DeleteKey removes key, failing with KeyNotFound when it does not exist.
func (c *Conn) DeleteKey(ctx context.Context, key string) error {
	const op = "backend.DeleteKey"

	n, err := c.client.Exists(ctx, key).Result()
	if err != nil {
		return Classify(op, err)
	}
	if n == 0 {
		return apperr.New(apperr.KindKeyNotFound, op, constants.MsgKeyNotFound)
	}
	return Classify(op, c.client.Del(ctx, key).Err())
}

func decodeString(raw json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var v any
	if err := decodeNumber(raw, &v); err != nil {
		return "", err
	}
	return stringify(v), nil
}

func decodeList(raw json.RawMessage) ([]string, error) {
	var vals []any
	if err := decodeNumber(raw, &vals); err != nil {
		return nil, err
	}
	out := make([]string, len(vals))
	for i, v := range vals {
		out[i] = stringify(v)
	}
	return out, nil
}

func decodeHash(raw json.RawMessage) (map[string]string, error) {
	var vals map[string]any
	if err := decodeNumber(raw, &vals); err != nil {
		return nil, err
	}
	out := make(map[string]string, len(vals))
	for k, v := range vals {
		out[k] = stringify(v)
	}
	return out, nil
}

func decodeNumber(raw json.RawMessage, v any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	return dec.Decode(v)
}

func stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case json.Number:
		return val.String()
	case bool:
		return strconv.FormatBool(val)
	default:
		b, _ := json.Marshal(val)
		return string(b)
	}
}

func toArgs(items []string) []any {
	out := make([]any, len(items))
	for i, s := range items {
		out[i] = s
	}
	return out
}
