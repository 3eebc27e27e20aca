// Command kademlia runs a single DHT node with a line-oriented REPL front
// end reading commands from stdin.
package main

import (
	"flag"
	"log"
	"os"

	"kadnode/cli"
	"kadnode/kademlia"
	"kadnode/node"
)

func main() {
	name := flag.String("name", "", "log prefix for this node (defaults to a short id)")
	listen := flag.String("listen", "127.0.0.1:9000", "UDP address to bind")
	bootstrap := flag.String("bootstrap", "", "address of a known peer to seed the routing table from")
	idHex := flag.String("id", "", "fix the node's identifier (base32, as printed by a running node); random if unset")
	flag.Parse()

	builder := node.NewBuilder().Name(*name).Listen(*listen)
	if *idHex != "" {
		id, err := kademlia.ParseId(*idHex)
		if err != nil {
			log.Fatalf("invalid -id: %v", err)
		}
		builder = builder.Id(id)
	}

	n, err := builder.Build()
	if err != nil {
		log.Fatalf("build node: %v", err)
	}

	go func() {
		if err := n.Run(); err != nil {
			log.Fatalf("node died: %v", err)
		}
	}()

	if *bootstrap != "" {
		if err := n.Bootstrap(*bootstrap); err != nil {
			log.Fatalf("bootstrap: %v", err)
		}
	}

	if err := cli.Run(n, os.Stdin, os.Stdout); err != nil {
		log.Fatalf("cli: %v", err)
	}
}
