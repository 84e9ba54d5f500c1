package verification

import (
	"context"
	"sync"
)

// Camera is the selfie camera the wizard drives. Start may fail, for example when
// the agent denied permission; the wizard then stays on its step and offers a retry.
type Camera interface {
	Start(ctx context.Context) error
	Stop()
}

// CameraLease tracks whether the browser should hold the camera. The portal reads
// Active to decide whether to open or release the stream.
type CameraLease struct {
	mu     sync.Mutex
	active bool
	starts int
	denied error
}

func (c *CameraLease) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.denied != nil {
		err := c.denied
		c.denied = nil
		return err
	}
	c.active = true
	c.starts++
	return nil
}

func (c *CameraLease) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.active = false
}

// Deny makes the next Start fail with err, mirroring a browser permission denial.
func (c *CameraLease) Deny(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.denied = err
}

func (c *CameraLease) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Starts counts successful acquisitions.
func (c *CameraLease) Starts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.starts
}
