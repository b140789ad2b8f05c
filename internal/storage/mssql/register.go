package mssql

import "primesquare/internal/storage"

func init() {
	// registers the sink backend factory
	storage.Register("mssql", New)
}
