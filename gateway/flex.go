package gateway

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/sugawarayuuta/sonnet"
)

// FlexFloat 兼容数字与数字字符串两种编码；null/空串视为未设置。
type FlexFloat struct {
	Value float64
	Set   bool
}

func (f *FlexFloat) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*f = FlexFloat{}
		return nil
	}
	s := string(b)
	if b[0] == '"' {
		unq, err := strconv.Unquote(s)
		if err != nil {
			return fmt.Errorf("flex float %s: %w", s, err)
		}
		s = strings.TrimSpace(unq)
		if s == "" {
			*f = FlexFloat{}
			return nil
		}
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("flex float %s: %w", s, err)
	}
	*f = FlexFloat{Value: v, Set: true}
	return nil
}

// firstSet 返回第一个已设置的值。
func firstSet(vals ...FlexFloat) float64 {
	for _, v := range vals {
		if v.Set {
			return v.Value
		}
	}
	return 0
}

// decodeOneOrMany data 字段可能是单个对象也可能是数组。
func decodeOneOrMany[T any](raw json.RawMessage) ([]T, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	if raw[0] == '[' {
		var out []T
		if err := sonnet.Unmarshal(raw, &out); err != nil {
			return nil, err
		}
		return out, nil
	}
	var one T
	if err := sonnet.Unmarshal(raw, &one); err != nil {
		return nil, err
	}
	return []T{one}, nil
}

func firstByte(raw []byte) byte {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return 0
	}
	return raw[0]
}
