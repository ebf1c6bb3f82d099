package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/cryguy/winter/internal/webapi"
)

// ErrNoSource is returned when no script was given by any means.
var ErrNoSource = errors.New("No path to JS file provided: either pass it as the first argument or set the JS_PATH environment variable")

// Source is the script body every worker loads, and where it came from.
type Source struct {
	Code   string
	Origin string
}

// LookupEnv matches os.LookupEnv.
type LookupEnv func(key string) (string, bool)

// ResolveSource finds the script: the JS_CODE variable holds literal code;
// otherwise the first argument or JS_PATH names a file. A file that imports
// other modules is bundled into a single script when bundle is set.
func ResolveSource(args []string, lookup LookupEnv, bundle bool) (*Source, error) {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	if code, ok := lookup("JS_CODE"); ok {
		return &Source{Code: code, Origin: "env:JS_CODE"}, nil
	}

	var path string
	if len(args) > 0 && args[0] != "" {
		path = args[0]
	} else if p, ok := lookup("JS_PATH"); ok && p != "" {
		path = p
	} else {
		return nil, ErrNoSource
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read js file at '%s': %w", path, err)
	}
	code := string(data)

	if bundle && webapi.NeedsBundling(code) {
		bundled, err := webapi.Bundle(path)
		if err != nil {
			return nil, err
		}
		return &Source{Code: bundled, Origin: "bundle:" + path}, nil
	}
	return &Source{Code: code, Origin: "file:" + path}, nil
}
