// Package cli implements the line-oriented REPL front end: store/get/status
// commands read from stdin, dispatched to the event loop over a
// node.Node's operator channel.
package cli

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"kadnode/kademlia"
)

// Commander is the subset of Node the REPL needs. It is an interface so
// tests can drive the REPL without a live UDP socket.
type Commander interface {
	Store(key, value string) bool
	Get(key string) (string, bool)
	ID() kademlia.Id
	AddrString() string
	Snapshot() []kademlia.BucketStat
}

// Run reads whitespace-split commands from in until EOF or a read error,
// writing results to out. Recognized commands are "store <key> <value>",
// "get <key>", and "status".
func Run(c Commander, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		dispatch(c, fields, out)
	}
	return scanner.Err()
}

func dispatch(c Commander, fields []string, out io.Writer) {
	switch {
	case fields[0] == "store" && len(fields) == 3:
		ok := c.Store(fields[1], fields[2])
		fmt.Fprintf(out, "store %s: ok=%v\n", fields[1], ok)
	case fields[0] == "get" && len(fields) == 2:
		value, found := c.Get(fields[1])
		if found {
			fmt.Fprintf(out, "get %s: %s\n", fields[1], value)
		} else {
			fmt.Fprintf(out, "get %s: not found\n", fields[1])
		}
	case fields[0] == "status" && len(fields) == 1:
		printStatus(c, out)
	default:
		fmt.Fprintln(out, "unknown command")
	}
}

func printStatus(c Commander, out io.Writer) {
	fmt.Fprintf(out, "id=%s addr=%s\n", c.ID(), c.AddrString())
	for _, stat := range c.Snapshot() {
		fmt.Fprintf(out, "  bucket[%d]: %d peer(s)\n", stat.Index, stat.Size)
	}
}
