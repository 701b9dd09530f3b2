// Package infra contains technical adapters: the MQTT intake and feed
// client, the Redis score cache, metrics exporters and error reporting.
// These packages depend only on interfaces defined under core.
package infra
