package tcp

import (
	"context"
	"errors"
	"log"
	"net"
	"sync"
)

// Handler runs one accepted connection to completion.
type Handler func(ctx context.Context, raw net.Conn)

// Serve accepts connections until the context is cancelled and runs
// each handler on its own goroutine. It returns after every handler
// has finished. Accept errors other than shutdown are returned.
func Serve(ctx context.Context, ln net.Listener, logger *log.Logger, handle Handler) error {
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		raw, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			logger.Printf("accept: %v", err)
			return err
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			handle(ctx, raw)
		}()
	}
}
