// Package watch makes sure every friend's direct channel is watched, so that
// messages arrive even when the conversation is not open.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/msniranjan18/chhavinity/pkg/models"
	"github.com/msniranjan18/chhavinity/pkg/transport"
	"golang.org/x/sync/singleflight"
)

type FriendSource interface {
	GetFriends(ctx context.Context) ([]models.Friend, error)
}

// ChannelID is the id of the direct channel between two users: both ids
// sorted and joined with "-".
func ChannelID(a, b string) string {
	ids := []string{a, b}
	sort.Strings(ids)
	return strings.Join(ids, "-")
}

type Bootstrapper struct {
	friends FriendSource
	logger  *slog.Logger
	flights singleflight.Group

	mu          sync.Mutex
	watched     map[string]bool
	initialized bool
	inProgress  bool
	// generation changes on Reset; work started under an older generation
	// does not record anything.
	generation uint64
}

func NewBootstrapper(friends FriendSource, logger *slog.Logger) *Bootstrapper {
	return &Bootstrapper{
		friends: friends,
		logger:  logger,
		watched: make(map[string]bool),
	}
}

// Initialize watches the channel of every current friend. It does nothing
// once initialized or while another Initialize runs. A failed friends fetch
// leaves the bootstrapper uninitialized so a later call retries.
func (b *Bootstrapper) Initialize(ctx context.Context, client transport.Client, selfID string) error {
	b.mu.Lock()
	if b.initialized || b.inProgress {
		b.mu.Unlock()
		return nil
	}
	b.inProgress = true
	gen := b.generation
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		if gen == b.generation {
			b.inProgress = false
		}
		b.mu.Unlock()
	}()

	b.logger.Info("Initializing channel watching for all friends")
	friends, err := b.friends.GetFriends(ctx)
	if err != nil {
		return fmt.Errorf("fetch friends: %w", err)
	}
	b.logger.Info("Found friends to watch channels for", "friends", len(friends))

	for _, f := range friends {
		if err := b.watch(ctx, client, selfID, f.ID, gen); err != nil {
			b.logger.Warn("Error watching friend channel", "friend_id", f.ID, "error", err)
		}
	}

	b.mu.Lock()
	if gen == b.generation {
		b.initialized = true
	}
	b.mu.Unlock()
	b.logger.Info("All friend channels are being watched")
	return nil
}

// WatchFriendChannel watches the channel shared with friendID unless it is
// already watched. Concurrent calls for one channel subscribe once.
func (b *Bootstrapper) WatchFriendChannel(ctx context.Context, client transport.Client, selfID, friendID string) error {
	b.mu.Lock()
	gen := b.generation
	b.mu.Unlock()
	return b.watch(ctx, client, selfID, friendID, gen)
}

// WatchNewChannel is WatchFriendChannel for a friend added after bootstrap.
func (b *Bootstrapper) WatchNewChannel(ctx context.Context, client transport.Client, selfID, friendID string) error {
	return b.WatchFriendChannel(ctx, client, selfID, friendID)
}

func (b *Bootstrapper) watch(ctx context.Context, client transport.Client, selfID, friendID string, gen uint64) error {
	channelID := ChannelID(selfID, friendID)
	if b.isWatched(channelID) {
		return nil
	}

	key := fmt.Sprintf("%d/%s", gen, channelID)
	_, err, _ := b.flights.Do(key, func() (any, error) {
		if b.isWatched(channelID) {
			return nil, nil
		}
		b.logger.Debug("Watching channel", "channel_id", channelID, "friend_id", friendID)
		if err := client.Watch(ctx, channelID, []string{selfID, friendID}); err != nil {
			return nil, err
		}

		b.mu.Lock()
		if gen == b.generation {
			b.watched[channelID] = true
		}
		b.mu.Unlock()
		b.logger.Debug("Now watching channel", "channel_id", channelID)
		return nil, nil
	})
	return err
}

func (b *Bootstrapper) isWatched(channelID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.watched[channelID]
}

// Reset forgets every watched channel. Work in flight when Reset runs is
// discarded.
func (b *Bootstrapper) Reset() {
	b.mu.Lock()
	b.watched = make(map[string]bool)
	b.initialized = false
	b.inProgress = false
	b.generation++
	b.mu.Unlock()
	b.logger.Info("Channel watch state reset")
}

// Watched returns the watched channel ids, sorted.
func (b *Bootstrapper) Watched() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	ids := make([]string, 0, len(b.watched))
	for id := range b.watched {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (b *Bootstrapper) Initialized() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.initialized
}
