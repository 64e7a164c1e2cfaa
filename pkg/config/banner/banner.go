package banner

import (
	"fmt"

	"meowstore/pkg/config"
)

const banner = `
███╗   ███╗███████╗ ██████╗ ██╗    ██╗███████╗████████╗ ██████╗ ██████╗ ███████╗
████╗ ████║██╔════╝██╔═══██╗██║    ██║██╔════╝╚══██╔══╝██╔═══██╗██╔══██╗██╔════╝
██╔████╔██║█████╗  ██║   ██║██║ █╗ ██║███████╗   ██║   ██║   ██║██████╔╝█████╗
██║╚██╔╝██║██╔══╝  ██║   ██║██║███╗██║╚════██║   ██║   ██║   ██║██╔══██╗██╔══╝
██║ ╚═╝ ██║███████╗╚██████╔╝╚███╔███╔╝███████║   ██║   ╚██████╔╝██║  ██║███████╗
╚═╝     ╚═╝╚══════╝ ╚═════╝  ╚══╝╚══╝ ╚══════╝   ╚═╝    ╚═════╝ ╚═╝  ╚═╝╚══════╝
`

// Print writes the startup banner with the effective deployment settings.
func Print(cfg *config.RunConfig, create *config.CreateConfig, root, mode, version string) {
	fmt.Print(banner)
	fmt.Println("== Config =====================================================")
	fmt.Printf("Listen:     %s\n", cfg.Addr())
	fmt.Printf("Deployment: %s (%s)\n", root, mode)
	fmt.Printf("Search:     %s\n", cfg.Search.Endpoint)
	if version != "" {
		fmt.Printf("Version:    %s\n", version)
	}

	fmt.Println("\n== Access =====================================================")
	ra := create.Store.RequireAuth
	fmt.Printf("- Read:   %s\n", gate(ra.Read))
	fmt.Printf("- Write:  %s\n", gate(ra.Write))
	fmt.Printf("- Remove: %s\n", gate(ra.Remove))

	if cfg.Maintenance.Enabled {
		fmt.Printf("- Compaction: enabled (cron=%s)\n", cfg.Maintenance.Cron)
	} else {
		fmt.Println("- Compaction: disabled")
	}
	fmt.Println()
}

func gate(required bool) string {
	if required {
		return "key required"
	}
	return "open"
}
