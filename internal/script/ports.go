package script

import (
	"strconv"
	"strings"

	"github.com/kballard/go-shellquote"

	"github.com/firefly-engineering/hearth/internal/store"
)

// ExtractPorts suggests port specs from PORT=, *_PORT=, --port and -port
// assignments. A line mentioning udp yields a udp spec. Results keep first
// appearance order without duplicates.
func ExtractPorts(content string) []store.PortSpec {
	var specs []store.PortSpec
	seen := make(map[store.PortSpec]bool)

	add := func(value, proto string) {
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil || n < 1 || n > 65535 {
			return
		}
		spec := store.PortSpec{ContainerPort: n, Protocol: proto}
		if !seen[spec] {
			seen[spec] = true
			specs = append(specs, spec)
		}
	}

	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}

		words, err := shellquote.Split(trimmed)
		if err != nil {
			words = strings.Fields(trimmed)
		}

		proto := "tcp"
		if strings.Contains(strings.ToLower(trimmed), "udp") {
			proto = "udp"
		}

		for i, w := range words {
			if name, value, ok := strings.Cut(w, "="); ok {
				switch {
				case name == "PORT" || strings.HasSuffix(name, "_PORT"):
					add(value, proto)
				case name == "--port" || name == "-port":
					add(value, proto)
				}
				continue
			}
			if (w == "--port" || w == "-port") && i+1 < len(words) {
				add(words[i+1], proto)
			}
		}
	}
	return specs
}
