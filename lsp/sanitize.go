package lsp

import (
	"fmt"
	"strings"
)

// shellMetacharacters blocks the characters that would let a configured
// server command smuggle a second command into the spawned argv. The
// command and args are never passed through a shell, but a config file
// written by hand is easy to get wrong, and a clear rejection here beats a
// Command.Run() that behaves unexpectedly.
const shellMetacharacters = ";|&$`\n"

func sanitizeArgs(args []string) error {
	for _, a := range args {
		if strings.ContainsAny(a, shellMetacharacters) {
			return fmt.Errorf("lsp: argument contains disallowed shell metacharacter: %q", a)
		}
	}
	return nil
}

func sanitizeCommand(command string) error {
	if command == "" {
		return fmt.Errorf("lsp: empty command")
	}
	if strings.ContainsAny(command, shellMetacharacters) {
		return fmt.Errorf("lsp: command contains disallowed shell metacharacter: %q", command)
	}
	return nil
}
