// atomvm - node runner: loads atomvm.toml, brings up the process runtime,
// and keeps the node alive until interrupted. Bytecode modules and drivers
// are attached by embedders through the vm package API.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/arpunk/AtomVM/config"
	"github.com/arpunk/AtomVM/vm"
)

func main() {
	configDir := flag.String("C", ".", "Directory containing atomvm.toml")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: atomvm [options]\n\n")
		fmt.Fprintf(os.Stderr, "Starts a runtime node configured from atomvm.toml.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  atomvm              # node with ./atomvm.toml (or defaults)\n")
		fmt.Fprintf(os.Stderr, "  atomvm -C /etc/avm  # node with /etc/avm/atomvm.toml\n")
	}
	flag.Parse()

	cfg, err := config.Load(*configDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	glb := vm.NewGlobalContextFromConfig(cfg)
	defer glb.Close()

	fmt.Printf("atomvm node %s up (%d scheduler(s))\n", glb.NodeID(), glb.SchedulerCount())

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	fmt.Println("atomvm node shutting down")
}
