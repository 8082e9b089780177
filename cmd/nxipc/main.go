// Command nxipc hosts the service manager and the demo service on the
// loopback kernel, calls them, and dissects raw IPC messages.
package main

import "os"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
