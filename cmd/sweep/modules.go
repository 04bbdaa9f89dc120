package main

// Compiled-in modules. Each package registers itself in init.
import (
	_ "github.com/flemzord/sweep/internal/cleanup"
	_ "github.com/flemzord/sweep/internal/gateway"
	_ "github.com/flemzord/sweep/internal/maindom"
	_ "github.com/flemzord/sweep/internal/scheduler"
	_ "github.com/flemzord/sweep/internal/telemetry"
	_ "github.com/flemzord/sweep/modules/versions/sqlite"
)
