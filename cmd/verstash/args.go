package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Jeffail/gabs/v2"

	"github.com/alignecoderepos/verstash/pkg/vstore"
)

type setRequest struct {
	key   string
	value any
	opts  []vstore.SetOption
}

// parseSetArgs parses "<key> <value> [EX <ms>] [VER <label>] [DEEP|SHALLOW]".
func parseSetArgs(args []string) (*setRequest, error) {
	if len(args) < 2 {
		return nil, fmt.Errorf("usage: set <key> <value> [options...]")
	}

	req := &setRequest{
		key:   args[0],
		value: parseValue(args[1]),
	}

	for i := 2; i < len(args); i++ {
		switch strings.ToUpper(args[i]) {
		case "EX":
			if i+1 >= len(args) {
				return nil, fmt.Errorf("EX requires a value")
			}
			ms, err := strconv.ParseInt(args[i+1], 10, 64)
			if err != nil || ms <= 0 {
				return nil, fmt.Errorf("invalid EX value: %s", args[i+1])
			}
			req.opts = append(req.opts, vstore.WithTTL(time.Duration(ms)*time.Millisecond))
			i++
		case "VER":
			if i+1 >= len(args) {
				return nil, fmt.Errorf("VER requires a value")
			}
			req.opts = append(req.opts, vstore.WithVersion(args[i+1]))
			i++
		case "DEEP":
			req.opts = append(req.opts, vstore.WithDeep(true))
		case "SHALLOW":
			req.opts = append(req.opts, vstore.WithDeep(false))
		default:
			return nil, fmt.Errorf("unknown option: %s", args[i])
		}
	}
	return req, nil
}

// parseValue reads s as JSON, falling back to the literal string.
func parseValue(s string) any {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return s
	}
	return v
}

// renderValue prints v as JSON, or the element at the dotted path inside it.
func renderValue(v any, path string) (string, error) {
	c := gabs.Wrap(v)
	if path != "" {
		if !c.ExistsP(path) {
			return "", fmt.Errorf("path %q not found", path)
		}
		c = c.Path(path)
	}
	return c.String(), nil
}
