package cmd

// Storage backends register themselves with the database package by URL scheme.
import (
	_ "github.com/kozaktomas/face-id/internal/database/badgerdb"
	_ "github.com/kozaktomas/face-id/internal/database/mariadb"
	_ "github.com/kozaktomas/face-id/internal/database/memory"
	_ "github.com/kozaktomas/face-id/internal/database/postgres"
	_ "github.com/kozaktomas/face-id/internal/database/sqlite"
)
