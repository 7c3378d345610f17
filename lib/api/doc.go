// Package api exposes a store.IStore over HTTP.
//
// Routes:
//
//	GET    /kv/{key}         value as application/octet-stream, 404 if missing or expired
//	HEAD   /kv/{key}         200 if the key exists (expired keys included), 404 otherwise
//	PUT    /kv/{key}         store the request body; query: expire-in, delete-in, if-unset
//	DELETE /kv/{key}         delete the key
//	POST   /kv/{key}/expire  drop the value, keep the key
//	GET    /kv               JSON listing of live pairs; query: limit
//	GET    /info             database info as JSON, or YAML with ?format=yaml
//	GET    /metrics          Prometheus text exposition
//
// Store errors are mapped to status codes by their store.RetCode. When the
// server runs with Debug set every request is logged at debug level.
package api
