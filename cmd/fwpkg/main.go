// Command fwpkg builds firmware update packages for embedded devices.
package main

import "github.com/oshokin/fwpkg/cmd/fwpkg/cmd"

func main() {
	cmd.Execute()
}
