package pgroup

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// frame is the wire message between a participant and the coordinator.
type frame struct {
	Op     string   `cbor:"op"`
	Rank   int      `cbor:"rank"`
	Size   int      `cbor:"size,omitempty"`
	Values []int    `cbor:"values,omitempty"`
	Data   []byte   `cbor:"data,omitempty"`
	Table  [][]int  `cbor:"table,omitempty"`
	Datas  [][]byte `cbor:"datas,omitempty"`
	Err    string   `cbor:"err,omitempty"`
}

const (
	opHello = "hello"
	opAbort = "abort"
	opError = "error"
)

var encMode cbor.EncMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("pgroup: CBOR encoder initialization failed: " + err.Error())
	}
}

// peer is one framed connection.
type peer struct {
	conn net.Conn
	enc  *cbor.Encoder
	dec  *cbor.Decoder
}

func newPeer(conn net.Conn) *peer {
	return &peer{conn: conn, enc: encMode.NewEncoder(conn), dec: cbor.NewDecoder(conn)}
}

func (p *peer) send(f frame) error { return p.enc.Encode(f) }

func (p *peer) recv() (frame, error) {
	var f frame
	err := p.dec.Decode(&f)
	return f, err
}

// bind applies ctx's deadline and cancellation to the connection for the
// duration of one collective.
func (p *peer) bind(ctx context.Context) func() {
	deadline, _ := ctx.Deadline()
	p.conn.SetDeadline(deadline)
	stop := context.AfterFunc(ctx, func() { p.conn.SetDeadline(time.Now()) })
	return func() {
		stop()
		p.conn.SetDeadline(time.Time{})
	}
}

// TCP is a participant of a group whose members are joined over TCP in a
// star: rank 0 coordinates every round, the others dial it.
type TCP struct {
	rank int
	size int

	mu      sync.Mutex
	peers   []*peer // rank 0 only, indexed by rank; peers[0] is nil
	coord   *peer   // ranks > 0 only
	aborted bool
}

// Listen makes the caller rank 0 of a group of size participants and blocks
// until the other size-1 participants have dialed lis.
func Listen(ctx context.Context, lis net.Listener, size int) (*TCP, error) {
	g := &TCP{rank: 0, size: size, peers: make([]*peer, size)}
	stop := context.AfterFunc(ctx, func() { lis.Close() })
	defer stop()

	for joined := 1; joined < size; {
		conn, err := lis.Accept()
		if err != nil {
			g.Close()
			return nil, fmt.Errorf("failed to accept participant: %w", err)
		}
		p := newPeer(conn)
		hello, err := p.recv()
		if err != nil || hello.Op != opHello {
			conn.Close()
			continue
		}
		if hello.Rank <= 0 || hello.Rank >= size || hello.Size != size || g.peers[hello.Rank] != nil {
			p.send(frame{Op: opError, Err: fmt.Sprintf("rank %d of %d rejected", hello.Rank, hello.Size)})
			conn.Close()
			continue
		}
		g.peers[hello.Rank] = p
		joined++
	}
	for r := 1; r < size; r++ {
		if err := g.peers[r].send(frame{Op: opHello, Rank: r, Size: size}); err != nil {
			g.Close()
			return nil, fmt.Errorf("failed to welcome rank %d: %w", r, err)
		}
	}
	return g, nil
}

// Dial joins the group coordinated at addr as participant rank.
func Dial(ctx context.Context, addr string, rank, size int) (*TCP, error) {
	if rank <= 0 || rank >= size {
		return nil, fmt.Errorf("rank %d out of range for %d participants", rank, size)
	}
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to dial coordinator %s: %w", addr, err)
	}
	p := newPeer(conn)
	release := p.bind(ctx)
	defer release()
	if err := p.send(frame{Op: opHello, Rank: rank, Size: size}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to join group: %w", err)
	}
	welcome, err := p.recv()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to join group: %w", err)
	}
	if welcome.Op != opHello {
		conn.Close()
		return nil, fmt.Errorf("coordinator refused rank %d: %s", rank, welcome.Err)
	}
	return &TCP{rank: rank, size: size, coord: p}, nil
}

func (g *TCP) Rank() int { return g.rank }
func (g *TCP) Size() int { return g.size }

func (g *TCP) exchange(ctx context.Context, rd round) (outcome, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.aborted {
		return outcome{}, ErrAborted
	}
	if g.rank == 0 {
		return g.coordinate(ctx, rd)
	}

	release := g.coord.bind(ctx)
	defer release()
	if err := g.coord.send(frame{Op: rd.op, Rank: g.rank, Values: rd.values, Data: rd.data}); err != nil {
		return outcome{}, fmt.Errorf("failed to send %s: %w", rd.op, err)
	}
	reply, err := g.coord.recv()
	if err != nil {
		return outcome{}, fmt.Errorf("failed to receive %s: %w", rd.op, err)
	}
	switch reply.Op {
	case opAbort:
		g.aborted = true
		return outcome{}, ErrAborted
	case opError:
		return outcome{}, fmt.Errorf("%w: %s", ErrMismatch, reply.Err)
	}
	return outcome{values: reply.Table, data: reply.Datas}, nil
}

// coordinate runs one round on rank 0.
func (g *TCP) coordinate(ctx context.Context, rd round) (outcome, error) {
	rounds := make([]round, g.size)
	rounds[0] = rd
	for r := 1; r < g.size; r++ {
		p := g.peers[r]
		release := p.bind(ctx)
		f, err := p.recv()
		release()
		if err != nil {
			return outcome{}, fmt.Errorf("failed to receive %s from rank %d: %w", rd.op, r, err)
		}
		if f.Op == opAbort {
			g.abortLocked()
			return outcome{}, ErrAborted
		}
		rounds[r] = round{op: f.Op, values: f.Values, data: f.Data}
	}

	reply := frame{Op: rd.op}
	result := outcome{}
	mismatch := checkRound(rounds)
	if mismatch != nil {
		reply = frame{Op: opError, Err: mismatch.Error()}
	} else {
		result = collect(rounds)
		reply.Table, reply.Datas = result.values, result.data
	}
	var errs []error
	for r := 1; r < g.size; r++ {
		if err := g.peers[r].send(reply); err != nil {
			errs = append(errs, fmt.Errorf("failed to reply to rank %d: %w", r, err))
		}
	}
	if mismatch != nil {
		return outcome{}, mismatch
	}
	return result, errors.Join(errs...)
}

func (g *TCP) AllGather(ctx context.Context, values []int) ([][]int, error) {
	out, err := g.exchange(ctx, round{op: "allgather", values: values})
	if err != nil {
		return nil, err
	}
	table := make([][]int, g.size)
	for r := range table {
		if r < len(out.values) {
			table[r] = out.values[r]
		}
	}
	return table, nil
}

func (g *TCP) Broadcast(ctx context.Context, root int, data []byte) ([]byte, error) {
	if err := checkRoot(root, g.size); err != nil {
		return nil, err
	}
	rd := round{op: "broadcast"}
	if g.rank == root {
		rd.data = data
	}
	out, err := g.exchange(ctx, rd)
	if err != nil {
		return nil, err
	}
	if root >= len(out.data) {
		return nil, nil
	}
	return out.data[root], nil
}

func (g *TCP) Barrier(ctx context.Context) error {
	_, err := g.exchange(ctx, round{op: "barrier"})
	return err
}

// Abort tells the other participants to fail their pending and future
// collectives. It does not wait for them.
func (g *TCP) Abort(int) {
	if !g.mu.TryLock() {
		// A collective is in flight on this participant; write straight
		// to the sockets, which unblocks it with an error.
		g.notifyAbort()
		return
	}
	defer g.mu.Unlock()
	g.abortLocked()
}

func (g *TCP) abortLocked() {
	g.aborted = true
	g.notifyAbort()
}

// notifyAbort may race an in-flight collective, so it bypasses the stream
// encoders and issues one Write per connection.
func (g *TCP) notifyAbort() {
	msg, err := encMode.Marshal(frame{Op: opAbort, Rank: g.rank})
	if err != nil {
		return
	}
	if g.coord != nil {
		g.coord.conn.Write(msg)
	}
	for _, p := range g.peers {
		if p != nil {
			p.conn.Write(msg)
		}
	}
}

// Close releases the connections of this participant.
func (g *TCP) Close() error {
	var errs []error
	if g.coord != nil {
		errs = append(errs, g.coord.conn.Close())
	}
	for _, p := range g.peers {
		if p != nil {
			errs = append(errs, p.conn.Close())
		}
	}
	return errors.Join(errs...)
}
