package comwechat

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	rcron "github.com/robfig/cron/v3"

	"github.com/honus/comwechat/internal/channel"
	"github.com/honus/comwechat/internal/hook"
)

// Directory caches contact names, chat listings and group rosters. Entries are
// overwritten on refresh but never removed, so stale names survive until the
// next successful refresh replaces them.
type Directory struct {
	client hook.Client
	logger *slog.Logger

	mu           sync.RWMutex
	contacts     map[string]string
	friends      []channel.Chat
	groups       []channel.Chat
	groupMembers map[string]map[string]string
	refreshedAt  time.Time
}

func NewDirectory(log *slog.Logger, client hook.Client) *Directory {
	if log == nil {
		log = slog.Default()
	}
	return &Directory{
		client:       client,
		logger:       log,
		contacts:     map[string]string{},
		friends:      []channel.Chat{},
		groups:       []channel.Chat{},
		groupMembers: map[string]map[string]string{},
	}
}

// Refresh reloads contacts and group rosters. Hook queries run without the lock held.
func (d *Directory) Refresh(ctx context.Context) error {
	members, membersErr := hook.GroupMembers(ctx, d.client)
	if membersErr != nil {
		d.logger.Warn("refresh group members failed", slog.Any("error", membersErr))
	}
	contacts, err := hook.ContactList(ctx, d.client)
	if err != nil {
		return fmt.Errorf("refresh contacts: %w", err)
	}

	friends := make([]channel.Chat, 0)
	groups := make([]channel.Chat, 0)
	names := make(map[string]string, len(contacts))
	for wxid, c := range contacts {
		name := c.DisplayName()
		names[wxid] = name
		if !c.Listed() {
			continue
		}
		if c.IsGroup() {
			groups = append(groups, channel.Chat{ID: wxid, Type: channel.ConversationGroup, Name: name})
			continue
		}
		friends = append(friends, channel.Chat{
			ID:       wxid,
			Type:     channel.ConversationPrivate,
			Name:     name,
			Official: strings.HasPrefix(wxid, "gh_"),
		})
	}
	sortChats(friends)
	sortChats(groups)

	d.mu.Lock()
	for wxid, name := range names {
		d.contacts[wxid] = name
	}
	d.friends = friends
	d.groups = groups
	if membersErr == nil {
		d.groupMembers = members
	}
	d.refreshedAt = time.Now().UTC()
	d.mu.Unlock()

	d.logger.Info("directory refreshed", slog.Int("contacts", len(names)), slog.Int("friends", len(friends)), slog.Int("groups", len(groups)))
	return nil
}

func sortChats(items []channel.Chat) {
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
}

// Schedule runs Refresh on the given interval until the returned stop function is called.
func (d *Directory) Schedule(ctx context.Context, interval time.Duration) (func(), error) {
	if interval <= 0 {
		interval = 30 * time.Minute
	}
	c := rcron.New()
	_, err := c.AddFunc(fmt.Sprintf("@every %s", interval), func() {
		if err := d.Refresh(ctx); err != nil {
			d.logger.Warn("scheduled refresh failed", slog.Any("error", err))
		}
	})
	if err != nil {
		return nil, err
	}
	c.Start()
	return func() {
		stopCtx := c.Stop()
		select {
		case <-stopCtx.Done():
		case <-time.After(5 * time.Second):
			d.logger.Warn("refresh stop timeout waiting for running job")
		}
	}, nil
}

// Contact returns the cached display name for wxid.
func (d *Directory) Contact(wxid string) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	name, ok := d.contacts[wxid]
	return name, ok
}

// Name resolves a display name: cache first, then a single contact query, then wxid itself.
func (d *Directory) Name(ctx context.Context, wxid string) string {
	if name, ok := d.Contact(wxid); ok {
		if name == "" {
			return wxid
		}
		return name
	}
	contact, ok, err := hook.ContactByWxid(ctx, d.client, wxid)
	if err != nil {
		d.logger.Debug("contact lookup failed", slog.String("wxid", wxid), slog.Any("error", err))
		return wxid
	}
	if !ok || contact.Nickname == "" {
		return wxid
	}
	return contact.Nickname
}

// MemberAlias returns the group nickname of wxid inside group, if any.
func (d *Directory) MemberAlias(group, wxid string) string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.groupMembers[group][wxid]
}

// SearchHit is a contact whose name matched a search.
type SearchHit struct {
	Wxid string
	Name string
}

// Search returns the contacts whose display name contains keyword, sorted by wxid.
func (d *Directory) Search(keyword string) []SearchHit {
	d.mu.RLock()
	hits := make([]SearchHit, 0)
	for wxid, name := range d.contacts {
		if strings.Contains(name, keyword) {
			hits = append(hits, SearchHit{Wxid: wxid, Name: name})
		}
	}
	d.mu.RUnlock()
	sort.Slice(hits, func(i, j int) bool { return hits[i].Wxid < hits[j].Wxid })
	return hits
}

// Chats returns groups followed by friends.
func (d *Directory) Chats() []channel.Chat {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]channel.Chat, 0, len(d.groups)+len(d.friends))
	out = append(out, d.groups...)
	out = append(out, d.friends...)
	return out
}

// Loaded reports whether at least one refresh has completed.
func (d *Directory) Loaded() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return !d.refreshedAt.IsZero()
}

const (
	snapshotFriends      = "friends"
	snapshotGroups       = "groups"
	snapshotGroupMembers = "group_members"
	snapshotContacts     = "contacts"
)

// Snapshot dumps one of the cached collections as JSON. ok is false for unknown names.
func (d *Directory) Snapshot(name string) (string, bool) {
	d.mu.RLock()
	var v any
	switch name {
	case snapshotFriends:
		v = d.friends
	case snapshotGroups:
		v = d.groups
	case snapshotGroupMembers:
		v = d.groupMembers
	case snapshotContacts:
		v = d.contacts
	default:
		d.mu.RUnlock()
		return "", false
	}
	data, err := json.Marshal(v)
	d.mu.RUnlock()
	if err != nil {
		return "", false
	}
	return string(data), true
}
