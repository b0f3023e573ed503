package main

import (
	"fmt"
	"log"
	"net/rpc"
	"os"

	"github.com/arkimet/dsengine/arkidrpc"
)

func usage() {
	fmt.Fprintf(os.Stderr, "usage:\n")
	fmt.Fprintf(os.Stderr, "  arkictl -addr <host:port> query <matcher-expr>\n")
	fmt.Fprintf(os.Stderr, "  arkictl -addr <host:port> summary <matcher-expr>\n")
	os.Exit(1)
}

func main() {
	args := os.Args[1:]
	addr := "localhost:7337"
	for len(args) > 0 && args[0] == "-addr" {
		if len(args) < 2 {
			usage()
		}
		addr = args[1]
		args = args[2:]
	}

	if len(args) < 2 {
		usage()
	}
	action, expr := args[0], args[1]

	client, err := rpc.Dial("tcp", addr)
	if err != nil {
		log.Fatalf("failed to dial rpc: %v", err)
	}
	defer client.Close()

	switch action {
	case "query":
		var reply arkidrpc.QueryReply
		err := client.Call("Dataset.QueryData", &arkidrpc.QueryArgs{Expr: expr, WithData: false}, &reply)
		if err != nil {
			log.Fatalf("query failed: %v", err)
		}
		for _, res := range reply.Results {
			fmt.Println(res.Record.Source.String())
		}

	case "summary":
		var reply arkidrpc.QuerySummaryReply
		err := client.Call("Dataset.QuerySummary", &arkidrpc.QueryArgs{Expr: expr}, &reply)
		if err != nil {
			log.Fatalf("summary failed: %v", err)
		}
		fmt.Printf("count=%d size=%d\n", reply.Count, reply.Size)

	default:
		fmt.Fprintf(os.Stderr, "unknown action %q\n", action)
		usage()
	}
}
