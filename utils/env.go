package utils

import "os"

var (
	CRDB_DSN = os.Getenv("CRDB_DSN")

	NODE_NAME  = os.Getenv("NODE_NAME")
	RING_NODES = GetEnvOrDefault("RING_NODES", "localhost")
	RING_NVAL  = GetEnvOrDefaultInt("RING_NVAL", 3)

	QUERY_MAX_QUANTA_SPAN = GetEnvOrDefaultInt("QUERY_MAX_QUANTA_SPAN", 5000)
	SUB_QUERY_TIMEOUT_MS  = GetEnvOrDefaultInt("SUB_QUERY_TIMEOUT_MS", 10_000)
	ACTIVATION_WAIT_SEC   = GetEnvOrDefaultInt("ACTIVATION_WAIT_SEC", 30)
	FETCH_RETRIES         = GetEnvOrDefaultInt("FETCH_RETRIES", 10)
	QUERY_QUEUE_DEPTH     = GetEnvOrDefaultInt("QUERY_QUEUE_DEPTH", 128)
	QUERY_WORKERS         = GetEnvOrDefaultInt("QUERY_WORKERS", 4)
)
