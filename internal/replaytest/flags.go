package replaytest

import "flag"

var (
	cacheDirFlag        = flag.String("archive-cache-dir", "", "directory relative archive cache paths resolve against")
	forbidMigrationFlag = flag.Bool("archive-cache-forbid-migration", false, "fail on archives with an older export version instead of migrating them")
	configActionFlag    = flag.String("testing-config-action", "read", "what to do when mock code is not configured: read, generate or require")
)
