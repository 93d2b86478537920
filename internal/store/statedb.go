package store

// RouteTable is the state-DB table name holding the warm-restart bucket
// checkpoint, keyed by prefix, matching the original's warm-restart route
// table.
const RouteTable = "FG_ROUTE_TABLE"

// StateDB is the persistent key-value state database used for warm-restart
// checkpointing (SPEC_FULL.md §6). One row exists per active (non-interface)
// fine-grained prefix; the row's fields are "str(bucket index)" ->
// "str(nh)" (I6). Implementations live under internal/statedb.
type StateDB interface {
	// SetField writes a single field of a row, creating the row if absent.
	SetField(table, key, field, value string) error
	// DelField removes a single field from a row.
	DelField(table, key, field string) error
	// DelRow removes an entire row.
	DelRow(table, key string) error
	// Row reads every field of a row. ok is false if the row doesn't exist.
	Row(table, key string) (fields map[string]string, ok bool, err error)
	// Keys lists every row key currently stored in table.
	Keys(table string) ([]string, error)
}
