// Package cast provides implementations of the CastController capability.
package cast

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vishen/go-chromecast/application"
	castdns "github.com/vishen/go-chromecast/dns"
	"go.uber.org/zap"

	"github.com/mpaik/google-assistant-helper/domain/repositories"
)

const discoveryTimeout = 10 * time.Second

// Chromecast implements the CastController interface using mDNS discovery
// and the chromecast application protocol. Receiver addresses are cached
// per friendly name after the first discovery.
type Chromecast struct {
	logger *zap.Logger

	mu    sync.Mutex
	known map[string]receiverAddr
}

type receiverAddr struct {
	addr string
	port int
}

var _ repositories.CastController = (*Chromecast)(nil)

// NewChromecast creates a chromecast controller.
func NewChromecast(logger *zap.Logger) *Chromecast {
	return &Chromecast{
		logger: logger,
		known:  make(map[string]receiverAddr),
	}
}

// Cast loads mediaURL on the named receiver.
func (c *Chromecast) Cast(ctx context.Context, target, mediaURL, mediaType string) error {
	app, err := c.connect(ctx, target)
	if err != nil {
		return err
	}
	defer app.Close(false)

	c.logger.Info("Casting media",
		zap.String("target", target),
		zap.String("mediaURL", mediaURL),
		zap.String("mediaType", mediaType))

	if err := app.Load(mediaURL, 0, mediaType, false, true, false); err != nil {
		return fmt.Errorf("failed to load media on %s: %w", target, err)
	}
	return nil
}

// Control applies a transport command to the named receiver.
func (c *Chromecast) Control(ctx context.Context, target string, cmd repositories.CastCommand) error {
	if err := cmd.Validate(); err != nil {
		return err
	}

	app, err := c.connect(ctx, target)
	if err != nil {
		return err
	}
	defer app.Close(false)

	c.logger.Info("Controlling cast receiver",
		zap.String("target", target),
		zap.String("command", string(cmd.Type)))

	switch cmd.Type {
	case repositories.CastPlay:
		err = app.Unpause()
	case repositories.CastPause:
		err = app.Pause()
	case repositories.CastStop:
		err = app.StopMedia()
	case repositories.CastSeek:
		err = app.SeekToTime(float32(cmd.CurrentTime))
	}
	if err != nil {
		return fmt.Errorf("failed to %s on %s: %w", cmd.Type, target, err)
	}
	return nil
}

// connect resolves the receiver's address and opens an application channel.
func (c *Chromecast) connect(ctx context.Context, target string) (*application.Application, error) {
	addr, err := c.resolve(ctx, target)
	if err != nil {
		return nil, err
	}

	app := application.NewApplication()
	if err := app.Start(addr.addr, addr.port); err != nil {
		// The cached address may be stale; forget it so the next
		// attempt re-discovers.
		c.mu.Lock()
		delete(c.known, target)
		c.mu.Unlock()
		return nil, fmt.Errorf("failed to connect to %s: %w", target, err)
	}
	return app, nil
}

func (c *Chromecast) resolve(ctx context.Context, target string) (receiverAddr, error) {
	c.mu.Lock()
	if addr, ok := c.known[target]; ok {
		c.mu.Unlock()
		return addr, nil
	}
	c.mu.Unlock()

	discoverCtx, cancel := context.WithTimeout(ctx, discoveryTimeout)
	defer cancel()

	entries, err := castdns.DiscoverCastDNSEntries(discoverCtx, nil)
	if err != nil {
		return receiverAddr{}, fmt.Errorf("cast discovery failed: %w", err)
	}

	for entry := range entries {
		if entry.DeviceName != target {
			continue
		}
		addr := receiverAddr{addr: entry.AddrV4.String(), port: entry.Port}
		c.mu.Lock()
		c.known[target] = addr
		c.mu.Unlock()
		c.logger.Info("Discovered cast receiver",
			zap.String("target", target),
			zap.String("addr", addr.addr),
			zap.Int("port", addr.port))
		return addr, nil
	}

	return receiverAddr{}, fmt.Errorf("%w: %s", repositories.ErrUnknownTarget, target)
}
