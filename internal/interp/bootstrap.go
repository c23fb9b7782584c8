package interp

import (
	"embed"
	"fmt"
	"os"
	"strconv"
	"strings"
)

//go:embed bootstrap.py
var bootstrapFS embed.FS

const preludeMarker = "# prelude"

// renderBootstrap substitutes prelude verbatim at the fixed marker line in
// the embedded bootstrap script.
func renderBootstrap(prelude string) (string, error) {
	data, err := bootstrapFS.ReadFile("bootstrap.py")
	if err != nil {
		return "", fmt.Errorf("interp: reading embedded bootstrap script: %w", err)
	}
	rendered := strings.Replace(string(data), preludeMarker, prelude, 1)
	return rendered, nil
}

// writeBootstrapScript renders the bootstrap script with prelude substituted
// and publishes it at path, replacing any previous version.
func writeBootstrapScript(path, prelude string) error {
	rendered, err := renderBootstrap(prelude)
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(rendered), 0o644); err != nil {
		return fmt.Errorf("interp: writing bootstrap script: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("interp: publishing bootstrap script: %w", err)
	}
	return nil
}

// quotePythonLiteral renders s as a Python double-quoted string literal
// using Go's escaping, which agrees with Python's for the backslash,
// quote, and control-character escapes the control channel ever needs.
func quotePythonLiteral(s string) string {
	return strconv.Quote(s)
}
