package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"parley/parley/client"
	"parley/parley/realtime"
	"parley/parley/utils/color"
)

const awaitTimeout = 2 * time.Minute

type update struct {
	env   realtime.Envelope
	state client.State
}

// session is one connected client plus the stream of events it applied.
type session struct {
	*client.Client
	updates chan update
	cancel  context.CancelFunc
	done    chan error
}

func openSession(ctx context.Context, opts *options) (*session, error) {
	id := opts.DeviceID
	if id == "" {
		path, err := defaultDevicePath()
		if err != nil {
			return nil, err
		}
		if id, err = deviceID(path); err != nil {
			return nil, fmt.Errorf("loading device id: %w", err)
		}
	}

	identity := client.Identity{DeviceID: id}
	tok, err := client.RequestToken(ctx, opts.Server, id)
	if err != nil {
		fmt.Println(color.ColorWarning("could not register device: " + err.Error()))
	} else {
		identity.Token = tok.Token
	}

	c, err := client.Dial(ctx, opts.Server, identity)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", opts.Server, err)
	}
	runCtx, cancel := context.WithCancel(context.Background())
	s := &session{Client: c, updates: make(chan update, 1024), cancel: cancel, done: make(chan error, 1)}
	c.OnEvent = func(env realtime.Envelope, st client.State) {
		select {
		case s.updates <- update{env: env, state: st}:
		case <-runCtx.Done():
		}
	}
	go func() { s.done <- c.Run(runCtx) }()
	return s, nil
}

func (s *session) Close() {
	s.Client.Close()
	s.cancel()
}

// await returns the first update whose event is one of events. An error
// event always ends the wait. onUpdate, if set, sees every update on the way.
func (s *session) await(events []string, onUpdate func(update)) (update, error) {
	timeout := time.After(awaitTimeout)
	for {
		select {
		case u := <-s.updates:
			if onUpdate != nil {
				onUpdate(u)
			}
			for _, e := range events {
				if u.env.Event == e {
					return u, nil
				}
			}
			if u.env.Event == realtime.EventError {
				return u, errors.New(u.state.Err)
			}
		case err := <-s.done:
			return update{}, fmt.Errorf("connection closed: %w", err)
		case <-timeout:
			return update{}, errors.New("timed out waiting for the server")
		}
	}
}
