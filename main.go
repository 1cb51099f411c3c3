// Command novelmirror mirrors web-serialized novels into a local store.
package main

import (
	"github.com/JakeFAU/novelmirror/cmd"
)

func main() {
	cmd.Execute()
}
