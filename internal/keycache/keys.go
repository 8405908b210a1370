package keycache

import (
	"fmt"
	"log"
	"os"
	"strings"

	"golang.org/x/crypto/ssh"
)

// AcceptKey reports whether fetched exec output looks like a public key
// line. Acceptance is deliberately shallow — the line must start with an
// "ssh" key-type token, nothing more. The units own their key material;
// verifying it is not this tool's job. Malformed or empty output is dropped
// without being treated as an error.
func AcceptKey(text string) (string, bool) {
	line := strings.TrimSpace(text)
	if !strings.HasPrefix(line, "ssh") {
		return "", false
	}
	return line, true
}

// fingerprint returns the SHA256 fingerprint when the line parses as an
// authorized_keys entry, for log readability only. A line that does not
// parse is still accepted upstream on the prefix check alone.
func fingerprint(line string) string {
	pub, _, _, _, err := ssh.ParseAuthorizedKey([]byte(line))
	if err != nil {
		return ""
	}
	return ssh.FingerprintSHA256(pub)
}

// WriteAuthorizedKeys persists accepted keys to the cache file read by
// sshd's AuthorizedKeysCommand. Incremental runs append so consumers never
// observe a state missing previously valid keys; a full rebuild truncates
// first, which is the explicit opt-in invalidation path.
func WriteAuthorizedKeys(path string, keys []string, truncate bool) error {
	flags := os.O_CREATE | os.O_WRONLY | os.O_APPEND
	if truncate {
		flags = os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	}

	f, err := os.OpenFile(path, flags, 0644)
	if err != nil {
		return fmt.Errorf("open authorized keys cache: %w", err)
	}
	defer f.Close()

	for _, key := range keys {
		if _, err := fmt.Fprintln(f, key); err != nil {
			return fmt.Errorf("write authorized keys cache: %w", err)
		}
		if fp := fingerprint(key); fp != "" {
			log.Printf("Cached key %s", fp)
		}
	}
	return nil
}
