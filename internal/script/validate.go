package script

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"

	"github.com/kballard/go-shellquote"
)

// MaxSize is the largest script accepted, in bytes.
const MaxSize = 64 * 1024

// Result is the outcome of validating a script.
type Result struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
	Hash     string   `json:"hash"`
	Size     int      `json:"size"`
}

type signature struct {
	re   *regexp.Regexp
	desc string
}

var dangerous = []signature{
	{regexp.MustCompile(`\brm\s+(-[-\w]+\s+)*/\*?(\s|;|&|\||$)`), "deletes the root filesystem"},
	{regexp.MustCompile(`--no-preserve-root`), "deletes the root filesystem"},
	{regexp.MustCompile(`\b(curl|wget)\b[^|]*\|\s*(sudo\s+)?(ba|z|k|da)?sh\b`), "pipes a download into a shell"},
	{regexp.MustCompile(`\beval\s+.*\$`), "evaluates an expanded variable"},
	{regexp.MustCompile(`\b(python[23]?|perl|ruby|php|node)\s+(-\w+\s+)*-[ce]\s+.*(os\.system|subprocess|popen|child_process|system\s*\(|exec\s*\(|spawn)`), "shells out from an interpreter"},
	{regexp.MustCompile(`/dev/(tcp|udp)/`), "opens a raw network socket (reverse shell)"},
	{regexp.MustCompile(`\b(nc|ncat|netcat)\b.*\s-[a-zA-Z]*[le]`), "runs a netcat listener"},
	{regexp.MustCompile(`\bsocat\b.*\bexec:`), "binds a shell to a socket"},
	{regexp.MustCompile(`\bchmod\s+(-\S+\s+)*([0-7]?[0-7]{2}[2367]\b|\S*\b[ugo]*[oa][ugo]*[+=][rwxXst]*w)`), "makes files world-writable"},
	{regexp.MustCompile(`\bdd\b.*\bif=/dev/(zero|u?random)\b`), "fills the disk with dd"},
	{regexp.MustCompile(`\bdd\b.*\bof=/dev/(sd|nvme|vd|xvd|hd)`), "overwrites a block device"},
	{regexp.MustCompile(`:\(\)\s*\{\s*:\s*\|\s*:\s*&\s*\}\s*;\s*:`), "fork bomb"},
}

var suspicious = []signature{
	{regexp.MustCompile(`\bsudo\b`), "uses sudo; the container does not grant privilege escalation"},
	{regexp.MustCompile(`\bdocker\b|/var/run/docker\.sock`), "references Docker from inside the container"},
	{regexp.MustCompile(`\b(apt|apt-get|yum|dnf|apk)\s+(-\S+\s+)*(install|add)\b`), "installs system packages at startup"},
	{regexp.MustCompile(`\b(pip3?|npm|gem)\s+install\b`), "installs language packages at startup"},
}

var (
	strictMode = regexp.MustCompile(`^\s*set\s+(-[a-zA-Z]*e|-o\s+errexit)`)
	execLine   = regexp.MustCompile(`^\s*exec\s+\S`)
)

// Hash returns the hex SHA-256 digest of content.
func Hash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// Validate checks a startup script against the size limit, the required
// structure, and the signature tables. Signatures are matched per logical
// line, both as written and unquoted. Comment lines are not matched.
func Validate(content string) Result {
	r := Result{
		Errors:   []string{},
		Warnings: []string{},
		Hash:     Hash(content),
		Size:     len(content),
	}

	if r.Size > MaxSize {
		r.Errors = append(r.Errors, fmt.Sprintf("script is %d bytes, maximum is %d", r.Size, MaxSize))
	}

	var hasStrict, hasExec bool
	for _, cmd := range commands(content) {
		if strictMode.MatchString(cmd.text) {
			hasStrict = true
		}
		if execLine.MatchString(cmd.text) {
			hasExec = true
		}
		forms := cmd.forms()
		for _, sig := range dangerous {
			if sig.matchAny(forms) {
				r.Errors = append(r.Errors, fmt.Sprintf("line %d: %s", cmd.line, sig.desc))
			}
		}
		for _, sig := range suspicious {
			if sig.matchAny(forms) {
				r.Warnings = append(r.Warnings, fmt.Sprintf("line %d: %s", cmd.line, sig.desc))
			}
		}
	}

	if !hasStrict {
		r.Errors = append(r.Errors, "missing strict mode (add `set -euo pipefail`)")
	}
	if !hasExec {
		r.Errors = append(r.Errors, "missing foreground launch (start the server with `exec`)")
	}

	r.Valid = len(r.Errors) == 0
	return r
}

func (sig signature) matchAny(forms []string) bool {
	for _, f := range forms {
		if sig.re.MatchString(f) {
			return true
		}
	}
	return false
}

// command is one logical line of a script: physical lines ending in a
// backslash are joined with the next. line is where it starts.
type command struct {
	line int
	text string
}

// commands splits content into logical lines, dropping blanks and
// comments.
func commands(content string) []command {
	var cmds []command
	var cur strings.Builder
	start := 0
	for i, line := range strings.Split(content, "\n") {
		if cur.Len() == 0 {
			start = i + 1
		}
		if continued(line) {
			cur.WriteString(line[:len(line)-1])
			cur.WriteByte(' ')
			continue
		}
		cur.WriteString(line)
		text := cur.String()
		cur.Reset()

		trimmed := strings.TrimSpace(text)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		cmds = append(cmds, command{line: start, text: text})
	}
	if trimmed := strings.TrimSpace(cur.String()); trimmed != "" && !strings.HasPrefix(trimmed, "#") {
		cmds = append(cmds, command{line: start, text: cur.String()})
	}
	return cmds
}

// continued reports whether line ends in an unescaped backslash.
func continued(line string) bool {
	n := 0
	for i := len(line) - 1; i >= 0 && line[i] == '\\'; i-- {
		n++
	}
	return n%2 == 1
}

// forms returns the command as written and, when it tokenizes, with its
// shell quoting removed, so `rm -rf "/"` is seen as `rm -rf /`.
func (c command) forms() []string {
	words, err := shellquote.Split(c.text)
	if err != nil {
		return []string{c.text}
	}
	return []string{c.text, strings.Join(words, " ")}
}

// Sanitize normalizes line endings to LF and strips NUL bytes.
func Sanitize(content string) string {
	content = strings.ReplaceAll(content, "\x00", "")
	content = strings.ReplaceAll(content, "\r\n", "\n")
	return strings.ReplaceAll(content, "\r", "\n")
}
