// Package store is the job ledger: durable Server, Job and CustomScript
// records plus the host-port reservation table, kept in SQLite.
//
// # Tables
//
//	servers            one row per game server
//	server_ports       ordered port mappings, written once CREATE succeeds
//	jobs               lifecycle operations and their outcome
//	custom_scripts     validated startup scripts for custom servers
//	port_reservations  host_port PRIMARY KEY; the cross-process claim
//	                   taken by the port allocator before a port is used
//
// # Job timestamps
//
// startedAt is set once a job leaves PENDING and finishedAt once it reaches
// SUCCESS or FAILED. MarkJobFailed stamps startedAt as well, so a job that
// fails its pre-run checks still satisfies both.
//
// # Ownership
//
// Jobs belong to their server and disappear with it. Job rows carry no
// foreign key, because a job may be enqueued for a server id that does not
// exist; DeleteServer removes them in the same transaction as the server.
// Port mappings, scripts and reservations cascade through foreign keys.
//
// # Usage
//
//	db, err := database.Open(cfg.Database)
//	st, err := store.New(ctx, db)
//	job, err := st.CreateJob(ctx, serverID, store.JobStart)
package store
