// Package config loads the veloxd server configuration from defaults, an
// optional YAML file, a .env file and VELOXDB_* environment variables.
//
// Example file:
//
//	listen_addr: ":8080"
//	data_dir: /var/lib/veloxdb
//	log_format: text
//	rate_limit_rps: 200
//	archive:
//	  backend: s3
//	  bucket: my-snapshots
//	  prefix: prod/
//	  codec: zstd
//	  dynamodb_table: veloxdb-snapshots
//
// The same settings come from the environment as VELOXDB_LISTEN_ADDR,
// VELOXDB_ARCHIVE_BUCKET and so on.
package config
