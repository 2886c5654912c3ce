package client

import (
	"context"

	"github.com/parley-im/parley-go/chat"
	"github.com/parley-im/parley-go/services"
)

// GetUser resolves one profile. Partial or stale records trigger a server
// fetch; when the fetch fails and a stale copy exists, the stale copy wins
// over an error.
func (c *Client) GetUser(ctx context.Context, userID string) (*chat.User, error) {
	if u, ok := c.userCache.Get(userID); ok && !u.IsPartial {
		return u, nil
	}
	local, err := c.store.Users.Get(ctx, c.userID, userID)
	if err != nil {
		return nil, err
	}
	if local != nil && !local.IsPartial && !c.userExpired(local) {
		c.userCache.Set(userID, local)
		return local, nil
	}

	remote, err := c.service.GetProfile(ctx, userID)
	if err != nil {
		if local != nil {
			return local, nil
		}
		return nil, err
	}
	remote.IsPartial = false
	return c.mergeUser(ctx, userID, remote)
}

// SetUserRemark renames the user for this account only.
func (c *Client) SetUserRemark(ctx context.Context, userID, remark string) error {
	if err := c.service.UpdateRelation(ctx, userID, &services.RelationFields{Remark: &remark}); err != nil {
		return err
	}
	return c.updateUserLocal(ctx, userID, func(u *chat.User) {
		u.Remark = remark
	})
}

// SetUserStar stars or unstars the user.
func (c *Client) SetUserStar(ctx context.Context, userID string, star bool) error {
	if err := c.service.UpdateRelation(ctx, userID, &services.RelationFields{Star: &star}); err != nil {
		return err
	}
	return c.updateUserLocal(ctx, userID, func(u *chat.User) {
		u.IsStar = star
	})
}

// SetUserBlock blocks or unblocks the user.
func (c *Client) SetUserBlock(ctx context.Context, userID string, block bool) error {
	if err := c.service.UpdateRelation(ctx, userID, &services.RelationFields{Block: &block}); err != nil {
		return err
	}
	return c.updateUserLocal(ctx, userID, func(u *chat.User) {
		u.IsBlocked = block
	})
}

// mergeUser folds an incoming profile into the stored record: non-empty
// fields replace, relation flags always adopt the newer value.
func (c *Client) mergeUser(ctx context.Context, userID string, incoming *chat.User) (*chat.User, error) {
	if userID == "" {
		userID = incoming.UserID
	}
	if userID == "" {
		return nil, nil
	}

	c.userMu.Lock()
	defer c.userMu.Unlock()
	local, err := c.store.Users.Get(ctx, c.userID, userID)
	if err != nil {
		return nil, err
	}

	merged := mergeUserRecord(local, incoming)
	merged.UserID = userID
	merged.CachedAt = chat.NowMillis()
	if err := c.store.Users.Set(ctx, c.userID, userID, merged); err != nil {
		return nil, err
	}
	c.userCache.Set(userID, merged)
	return merged, nil
}

// updateUserLocal applies one local mutation, synthesizing a partial record
// when the profile was never stored.
func (c *Client) updateUserLocal(ctx context.Context, userID string, apply func(*chat.User)) error {
	c.userMu.Lock()
	defer c.userMu.Unlock()
	u, err := c.store.Users.Get(ctx, c.userID, userID)
	if err != nil {
		return err
	}
	if u == nil {
		u = &chat.User{UserID: userID, IsPartial: true}
	}
	apply(u)
	u.CachedAt = chat.NowMillis()
	if err := c.store.Users.Set(ctx, c.userID, userID, u); err != nil {
		return err
	}
	c.userCache.Set(userID, u)
	return nil
}

func (c *Client) userExpired(u *chat.User) bool {
	return chat.NowMillis()-u.CachedAt > int64(c.config.UserCacheExpireSecs)*1000
}

func mergeUserRecord(local, incoming *chat.User) *chat.User {
	if local == nil {
		merged := *incoming
		return &merged
	}
	merged := *local
	if incoming.Name != "" {
		merged.Name = incoming.Name
	}
	if incoming.Avatar != "" {
		merged.Avatar = incoming.Avatar
	}
	if incoming.PublicKey != "" {
		merged.PublicKey = incoming.PublicKey
	}
	if incoming.Remark != "" {
		merged.Remark = incoming.Remark
	}
	if incoming.Locale != "" {
		merged.Locale = incoming.Locale
	}
	if incoming.City != "" {
		merged.City = incoming.City
	}
	if incoming.Country != "" {
		merged.Country = incoming.Country
	}
	if incoming.Source != "" {
		merged.Source = incoming.Source
	}
	if incoming.CreatedAt != "" {
		merged.CreatedAt = incoming.CreatedAt
	}
	if incoming.Gender != "" {
		merged.Gender = incoming.Gender
	}
	merged.IsContact = incoming.IsContact
	merged.IsStar = incoming.IsStar
	merged.IsBlocked = incoming.IsBlocked
	merged.IsPartial = incoming.IsPartial
	return &merged
}
