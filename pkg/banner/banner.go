package banner

import (
	"fmt"

	"github.com/dmaluka/lornews/pkg/config"
)

const banner = `
██╗      ██████╗ ██████╗ ██████╗
██║     ██╔═══██╗██╔══██╗██╔══██╗
██║     ██║   ██║██████╔╝██║  ██║
██║     ██║   ██║██╔══██╗██║  ██║
███████╗╚██████╔╝██║  ██║██████╔╝
╚══════╝ ╚═════╝ ╚═╝  ╚═╝╚═════╝
`

// Print shows the startup summary of lord.
func Print(port int, root, metrics string) {
	fmt.Print(banner)
	fmt.Println("== Config =====================================================")
	fmt.Printf("NNTP port:  %d\n", port)
	fmt.Printf("Store root: %s\n", root)
	if metrics != "" {
		fmt.Printf("Metrics:    http://%s/metrics\n", metrics)
	}
	fmt.Printf("Version:    %s\n", config.Version)
	fmt.Println("\nPoint a newsreader at this port and read the forum as news.")
}
