// Command ddnscf keeps a Cloudflare AAAA record pointed at this host's most stable global IPv6 address.
package main

import (
	"context"
	"os"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
