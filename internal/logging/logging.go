package logging

import (
	"io"
	"log"
	"os"
	"path/filepath"
)

// Init sets up dual logging to stdout and a log file. An empty path keeps
// logging on stdout only, which is what the sshd AuthorizedKeysCommand
// deployment wants (sshd captures stderr/stdout of the command).
func Init(path string) {
	if path == "" {
		return
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		log.Printf("WARNING: cannot create log directory: %v", err)
		return
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		log.Printf("WARNING: cannot open log file %s: %v", path, err)
		return
	}

	log.SetOutput(io.MultiWriter(os.Stdout, f))
}
