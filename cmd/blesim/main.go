// Command blesim runs the BLE connected-piconet discrete-event simulator.
package main

import "github.com/dantte-lp/blesim/cmd/blesim/commands"

func main() {
	commands.Execute()
}
