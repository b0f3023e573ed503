// Package arkidrpc provides a net/rpc wrapper around one dataset's Writer
// and Reader, the transport cmd/arkid and cmd/arkictl speak. Grounded on
// the teacher's cmd/remote package, which does the same job for core.DB.
package arkidrpc

import (
	"log"
	"net"
	"net/rpc"

	"github.com/arkimet/dsengine/dataset"
	"github.com/arkimet/dsengine/matcher"
	"github.com/arkimet/dsengine/metadata"
	"github.com/arkimet/dsengine/summary"
)

// AcquireArgs carries one record plus its raw bytes across the wire.
type AcquireArgs struct {
	Record *metadata.Record
	Data   []byte
	USN    int64
}

// AcquireReply reports the writer's outcome for one Acquire call.
type AcquireReply struct {
	Result string
}

// QueryArgs selects records by matcher expression (parsed server-side,
// since matcher.Matcher itself is not a clean gob value - it holds
// compiled atoms rather than its source text).
type QueryArgs struct {
	Expr     string
	WithData bool
}

// QueryReply is every record + optional data matched by a QueryArgs call,
// collected into memory. Real streaming RPC is out of scope for this
// wrapper; query_bytes on a live connection is better served directly
// against the dataset package in-process.
type QueryReply struct {
	Results []dataset.Result
}

// SummaryEntry is one (items, stats) pair of a query_summary result,
// gob-friendly unlike summary.Summary itself (whose internal grouping map
// holds an unexported value type).
type SummaryEntry struct {
	Items []metadata.Item
	Stats summary.Stats
}

// QuerySummaryReply carries a query_summary result across the wire.
type QuerySummaryReply struct {
	Entries []SummaryEntry
	Count   int64
	Size    int64
}

// Service is the RPC-exposed object registered under the name "Dataset".
type Service struct {
	w *dataset.Writer
	r *dataset.Reader
}

// Acquire ingests one record into the dataset.
func (s *Service) Acquire(args *AcquireArgs, reply *AcquireReply) error {
	res, err := s.w.Append(args.Record, args.Data, args.USN)
	if err != nil {
		return err
	}
	reply.Result = res.String()
	if err := s.w.Commit(); err != nil {
		return err
	}
	return nil
}

// QueryData runs query_data for a parsed matcher expression.
func (s *Service) QueryData(args *QueryArgs, reply *QueryReply) error {
	m, err := matcher.Parse(args.Expr, matcher.NewAliasTable())
	if err != nil {
		return err
	}
	return s.r.QueryData(m, args.WithData, nil, func(res dataset.Result) bool {
		reply.Results = append(reply.Results, res)
		return true
	})
}

// QuerySummary runs query_summary for a parsed matcher expression.
func (s *Service) QuerySummary(args *QueryArgs, reply *QuerySummaryReply) error {
	m, err := matcher.Parse(args.Expr, matcher.NewAliasTable())
	if err != nil {
		return err
	}
	sum, err := s.r.QuerySummary(m)
	if err != nil {
		return err
	}
	for _, e := range sum.Entries() {
		reply.Entries = append(reply.Entries, SummaryEntry{Items: e.Items, Stats: e.Stats})
	}
	reply.Count = sum.Count()
	reply.Size = sum.Size()
	return nil
}

// StartRPC registers a Service wrapping w and r under "Dataset", listens
// on addr, and serves in the background. It returns the bound address and
// a cleanup func that stops the listener and closes both w and r.
func StartRPC(w *dataset.Writer, r *dataset.Reader, addr string) (string, func(), error) {
	svc := &Service{w: w, r: r}

	server := rpc.NewServer()
	if err := server.RegisterName("Dataset", svc); err != nil {
		return "", nil, err
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return "", nil, err
	}

	go server.Accept(listener)

	cleanup := func() {
		_ = listener.Close()
		if err := w.Close(); err != nil {
			log.Printf("writer close: %v", err)
		}
		if err := r.Close(); err != nil {
			log.Printf("reader close: %v", err)
		}
	}
	return listener.Addr().String(), cleanup, nil
}
