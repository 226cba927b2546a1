// Package config provides configuration types and loading for hearth.
//
// # Configuration File
//
// Host-level settings are read from /etc/hearth/config.toml (override with
// --config). A missing file yields defaults:
//
//	state_dir = "/var/lib/hearth"
//	compensate_failed_create = true
//
//	[ports]
//	from = 30000
//	to   = 40000
//
//	[worker]
//	concurrency = 5
//	poll_interval = "1s"
//	visibility_timeout = "30m"
//
//	[queue]
//	keep_completed = 100
//	keep_failed    = 100
//	max_attempts   = 1
//
//	[runtime]
//	docker_host    = ""       # empty uses DOCKER_HOST / the default socket
//	stop_grace     = "15s"
//	delete_grace   = "10s"
//	restart_policy = "unless-stopped"
//
//	[[games]]
//	key   = "factorio"
//	image = "factoriotools/factorio:stable"
//	ports = ["34197/udp", "27015/tcp"]
//
// data_dir and database default to paths under state_dir.
//
// # Paths
//
// Per-server directories are derived with ServerDataDir and
// ServerScriptDir. Both resolve the server id inside their base directory
// with filepath-securejoin, so an id can never point outside it.
//
// # Validation
//
// Load and Parse validate after decoding and reject unknown keys.
package config
