// Package schema keeps tenant databases in line with the bundled schema script.
package schema

import (
	"embed"
	"fmt"
	"os"
	"strings"
	"sync"
)

//go:embed sql/schema.sql
var embedded embed.FS

const embeddedScriptPath = "sql/schema.sql"

// Script is a parsed, immutable schema script shared by all tenants.
type Script struct {
	name       string
	statements []string
}

// Name identifies where the script came from.
func (s *Script) Name() string { return s.name }

// Statements returns a copy of the executable statements in order.
func (s *Script) Statements() []string {
	out := make([]string, len(s.statements))
	copy(out, s.statements)
	return out
}

// Len returns the number of statements.
func (s *Script) Len() int { return len(s.statements) }

// ParseScript splits source into statements. Blank and comment-only
// statements are dropped.
func ParseScript(name string, source []byte) (*Script, error) {
	stmts := SplitStatements(string(source))
	if len(stmts) == 0 {
		return nil, fmt.Errorf("%s: %w", name, ErrEmptyScript)
	}
	return &Script{name: name, statements: stmts}, nil
}

// LoadScript reads and parses a script file.
func LoadScript(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema script: %w", err)
	}
	return ParseScript(path, data)
}

var defaultScript = sync.OnceValues(func() (*Script, error) {
	data, err := embedded.ReadFile(embeddedScriptPath)
	if err != nil {
		return nil, err
	}
	return ParseScript("embedded:"+embeddedScriptPath, data)
})

// DefaultScript returns the script bundled with the binary. It is parsed once.
func DefaultScript() (*Script, error) {
	return defaultScript()
}

// ResolveScript loads path, or the bundled script when path is empty.
func ResolveScript(path string) (*Script, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultScript()
	}
	return LoadScript(path)
}

// ResolveVendorScripts loads one override script per vendor.
func ResolveVendorScripts(paths map[string]string) (map[string]*Script, error) {
	if len(paths) == 0 {
		return nil, nil
	}
	scripts := make(map[string]*Script, len(paths))
	for vendor, path := range paths {
		s, err := LoadScript(path)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", vendor, err)
		}
		scripts[vendor] = s
	}
	return scripts, nil
}
