package webapi

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
)

// WrapESModule converts module syntax into a script that stores the
// module's exports on globalThis.__worker_module__, so `export default
// { fetch }` and `export function fetch` both become reachable from Go.
// Plain scripts pass through harmlessly. If esbuild rejects the source it
// is returned unchanged so the engine reports the syntax error itself.
func WrapESModule(source string) string {
	result := api.Transform(source, api.TransformOptions{
		Format:     api.FormatIIFE,
		GlobalName: "globalThis.__worker_module__",
		Target:     api.ES2020,
	})
	if len(result.Errors) > 0 {
		return source
	}
	code := string(result.Code)
	code += "if(globalThis.__worker_module__&&globalThis.__worker_module__.default)globalThis.__worker_module__=globalThis.__worker_module__.default;\n"
	return code
}

// NeedsBundling reports whether source contains import statements that
// have to be resolved before the script can be loaded.
func NeedsBundling(source string) bool {
	return strings.Contains(source, "import ") ||
		strings.Contains(source, "import{") ||
		strings.Contains(source, "import(")
}

// Bundle resolves the imports of the script at entryPoint into a single
// ES module.
func Bundle(entryPoint string) (string, error) {
	abs, err := filepath.Abs(entryPoint)
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", entryPoint, err)
	}
	result := api.Build(api.BuildOptions{
		EntryPoints:   []string{abs},
		AbsWorkingDir: filepath.Dir(abs),
		Bundle:        true,
		Format:        api.FormatESModule,
		Write:         false,
		Platform:      api.PlatformBrowser,
		Target:        api.ES2020,
		LogLevel:      api.LogLevelSilent,
	})
	if len(result.Errors) > 0 {
		msgs := make([]string, 0, len(result.Errors))
		for _, e := range result.Errors {
			msgs = append(msgs, e.Text)
		}
		return "", fmt.Errorf("bundling %s: %s", entryPoint, strings.Join(msgs, "; "))
	}
	if len(result.OutputFiles) == 0 {
		return "", fmt.Errorf("bundling %s produced no output", entryPoint)
	}
	return string(result.OutputFiles[0].Contents), nil
}
