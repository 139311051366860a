// Package ipc implements the JSON-RPC 2.0 method dispatch, length-prefixed
// framing, and named-pipe transport described in SPEC_FULL.md §4.7/§6.
//
// Params and its accessors mirror the reference codebase's remote-control
// parameter bag (fs/rc/params_test.go's observed contract: a generic
// map[string]interface{} with typed Get* helpers that distinguish "key
// absent" from "key present but the wrong type"), since only that test
// file survived in the retrieval pack.
package ipc

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"
)

// Params is a JSON-RPC parameter or result bag: keys are Go identifiers,
// values come from decoding request JSON (so numbers arrive as float64
// unless the accessor below converts them).
type Params map[string]interface{}

// ErrParamNotFound is returned by Params.Get when key is absent.
type ErrParamNotFound string

func (e ErrParamNotFound) Error() string {
	return fmt.Sprintf("Didn't find %s %q in input", "key", string(e))
}

// IsErrParamNotFound reports whether err is an ErrParamNotFound.
func IsErrParamNotFound(err error) bool {
	_, ok := err.(ErrParamNotFound)
	return ok
}

// NotErrParamNotFound reports whether err is non-nil and not an
// ErrParamNotFound — useful for "found but wrong type" checks.
func NotErrParamNotFound(err error) bool {
	return err != nil && !IsErrParamNotFound(err)
}

// ErrParamInvalid is returned when a key is present but of the wrong
// shape or fails to parse into the requested type.
type ErrParamInvalid struct{ error }

// IsErrParamInvalid reports whether err is an ErrParamInvalid.
func IsErrParamInvalid(err error) bool {
	_, ok := err.(ErrParamInvalid)
	return ok
}

// Get returns the raw value for key, or ErrParamNotFound if absent.
func (p Params) Get(key string) (interface{}, error) {
	v, ok := p[key]
	if !ok {
		return nil, ErrParamNotFound(key)
	}
	return v, nil
}

// GetString returns a string value for key.
func (p Params) GetString(key string) (string, error) {
	v, err := p.Get(key)
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		return "", ErrParamInvalid{fmt.Errorf("expecting string value for key %q (was %T)", key, v)}
	}
	return s, nil
}

// GetStringOrDefault returns the string value for key, or def if absent.
func (p Params) GetStringOrDefault(key, def string) string {
	s, err := p.GetString(key)
	if err != nil {
		return def
	}
	return s
}

// GetInt64 returns an integer value for key, parsing from string, int, or
// float64 sources (matching how JSON-decoded and CLI-supplied params both
// arrive).
func (p Params) GetInt64(key string) (int64, error) {
	v, err := p.Get(key)
	if err != nil {
		return 0, err
	}
	switch x := v.(type) {
	case string:
		i, err := strconv.ParseInt(x, 10, 64)
		if err != nil {
			return 0, ErrParamInvalid{fmt.Errorf("couldn't parse %q as int64: %w", key, err)}
		}
		return i, nil
	case int:
		return int64(x), nil
	case int64:
		return x, nil
	case float64:
		if x > 9.2e18 || x < -9.2e18 {
			return 0, ErrParamInvalid{fmt.Errorf("key %q overflows int64", key)}
		}
		return int64(x), nil
	default:
		return 0, ErrParamInvalid{fmt.Errorf("expecting number for key %q (was %T)", key, v)}
	}
}

// GetInt64OrDefault returns the int64 value for key, or def if absent.
func (p Params) GetInt64OrDefault(key string, def int64) int64 {
	i, err := p.GetInt64(key)
	if err != nil {
		return def
	}
	return i
}

// GetUint64 is GetInt64 narrowed to non-negative values.
func (p Params) GetUint64(key string) (uint64, error) {
	i, err := p.GetInt64(key)
	if err != nil {
		return 0, err
	}
	if i < 0 {
		return 0, ErrParamInvalid{fmt.Errorf("key %q must not be negative", key)}
	}
	return uint64(i), nil
}

// GetBool returns a bool value for key, parsing "true"/"false" strings and
// non-zero numbers as truthy.
func (p Params) GetBool(key string) (bool, error) {
	v, err := p.Get(key)
	if err != nil {
		return false, err
	}
	switch x := v.(type) {
	case bool:
		return x, nil
	case string:
		b, err := strconv.ParseBool(x)
		if err != nil {
			return false, ErrParamInvalid{fmt.Errorf("couldn't parse %q as bool: %w", key, err)}
		}
		return b, nil
	case int:
		return x != 0, nil
	case int64:
		return x != 0, nil
	case float64:
		return x != 0, nil
	default:
		return false, ErrParamInvalid{fmt.Errorf("expecting bool for key %q (was %T)", key, v)}
	}
}

// GetBoolOrDefault returns the bool value for key, or def if absent.
func (p Params) GetBoolOrDefault(key string, def bool) bool {
	b, err := p.GetBool(key)
	if err != nil {
		return def
	}
	return b
}

// GetDuration parses a duration string for key, accepting the bare
// "off" sentinel used elsewhere in the service to mean "unbounded".
func (p Params) GetDuration(key string) (time.Duration, error) {
	s, err := p.GetString(key)
	if err != nil {
		return 0, err
	}
	if s == "off" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, ErrParamInvalid{fmt.Errorf("couldn't parse duration %q for key %q: %w", s, key, err)}
	}
	return d, nil
}

// GetStringSlice returns a []string value for key, accepting either a
// native []string or a []interface{} of strings (the shape a JSON array
// decodes to).
func (p Params) GetStringSlice(key string) ([]string, error) {
	v, err := p.Get(key)
	if err != nil {
		return nil, err
	}
	switch x := v.(type) {
	case []string:
		return x, nil
	case []interface{}:
		out := make([]string, len(x))
		for i, item := range x {
			s, ok := item.(string)
			if !ok {
				return nil, ErrParamInvalid{fmt.Errorf("key %q: element %d is not a string", key, i)}
			}
			out[i] = s
		}
		return out, nil
	default:
		return nil, ErrParamInvalid{fmt.Errorf("expecting string array for key %q (was %T)", key, v)}
	}
}

// Reshape round-trips in into out via JSON, the same generic struct<->map
// conversion the reference Params type offers, used when a handler wants
// a typed struct instead of manual field-by-field extraction.
func Reshape(out, in interface{}) error {
	b, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("reshape: marshal: %w", err)
	}
	return json.Unmarshal(b, out)
}

// WriteJSON marshals params as indented JSON terminated with a newline.
func WriteJSON(w io.Writer, params Params) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "\t")
	return enc.Encode(params)
}
