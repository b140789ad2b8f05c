// Package all registers every storage backend. Blank-import it from a main
// package to make all kinds available to storage.New; import individual
// backend packages instead to keep binaries smaller.
package all

import (
	_ "primesquare/internal/storage/mssql"
	_ "primesquare/internal/storage/oracle"
	_ "primesquare/internal/storage/postgres"
	_ "primesquare/internal/storage/sqlite"
)
