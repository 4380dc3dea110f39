// Command kadmin is the offline principal-database setup tool. It never
// runs against a live AS/TGS connection; it writes principal records
// directly to the configured store.
package main

import (
	"fmt"
	"os"

	"github.com/kerb4/kerb4/cmd/kadmin/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "kadmin:", err)
		os.Exit(1)
	}
}
