package realtime

import (
	"context"
	"sync"

	"parley/parley/utils/logging"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Emitter sends one outbound event to a connection.
type Emitter interface {
	Emit(event string, data interface{})
}

const defaultPeerBuffer = 64

// Peer is the server side of one connection. Emit queues frames for a single
// writer goroutine so events reach the client in the order they were emitted.
type Peer struct {
	ID     string
	UserID string

	out       chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func NewPeer(userID string) *Peer {
	return &Peer{
		ID:     uuid.New().String(),
		UserID: userID,
		out:    make(chan []byte, defaultPeerBuffer),
		done:   make(chan struct{}),
	}
}

// Emit blocks while the queue is full and drops the event once the peer is closed.
func (p *Peer) Emit(event string, data interface{}) {
	frame, err := Encode(event, data)
	if err != nil {
		logging.ErrorLogger.Error("encoding event",
			zap.String("event", event), zap.String("peer_id", p.ID), zap.Error(err))
		return
	}
	select {
	case <-p.done:
		return
	default:
	}
	select {
	case p.out <- frame:
	case <-p.done:
	}
}

// WriteLoop hands queued frames to write until ctx ends, the peer closes, or a
// write fails. A failed write closes the peer.
func (p *Peer) WriteLoop(ctx context.Context, write func(context.Context, []byte) error) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.done:
			return nil
		case frame := <-p.out:
			if err := write(ctx, frame); err != nil {
				p.Close()
				return err
			}
		}
	}
}

func (p *Peer) Close() {
	p.closeOnce.Do(func() { close(p.done) })
}

func (p *Peer) Done() <-chan struct{} {
	return p.done
}
