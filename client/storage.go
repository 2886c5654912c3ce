package client

import (
	"context"

	"github.com/pkg/errors"

	"github.com/parley-im/parley-go/chat"
	"github.com/parley-im/parley-go/store"
	"github.com/parley-im/parley-go/store/db"
	"github.com/parley-im/parley-go/store/db/memory"
)

// authDBName is the shared store holding encrypted credentials for every
// account under one root path.
const authDBName = "auth"

func memoryDriver() store.Driver {
	return memory.New()
}

// SaveAuthInfo persists a login for later LoadAuthInfo. The token is
// encrypted with a key derived from the user id and endpoint, so the file
// alone does not leak a usable credential.
func SaveAuthInfo(ctx context.Context, rootPath string, info *chat.AuthInfo) error {
	if info == nil || info.UserID == "" || info.Endpoint == "" {
		return errors.New("auth info needs an endpoint and a user id")
	}
	if rootPath == "" {
		return errors.New("auth storage needs a root path")
	}

	driver, _ := db.Open(rootPath, authDBName)
	s := store.New(driver)
	defer s.Close()

	sealed := *info
	if info.Token != "" {
		key, err := store.DeriveKey(info.UserID, info.Endpoint)
		if err != nil {
			return err
		}
		encrypted, err := store.EncryptToken(key, info.Token)
		if err != nil {
			return err
		}
		sealed.Token = encrypted
	}
	return s.Credentials.Set(ctx, info.Endpoint, info.UserID, &sealed)
}

// LoadAuthInfo retrieves a previously saved login. A missing record
// surfaces as a NotFoundError.
func LoadAuthInfo(ctx context.Context, rootPath, endpoint, userID string) (*chat.AuthInfo, error) {
	if rootPath == "" {
		return nil, errors.New("auth storage needs a root path")
	}

	driver, _ := db.Open(rootPath, authDBName)
	s := store.New(driver)
	defer s.Close()

	info, err := s.Credentials.Get(ctx, endpoint, userID)
	if err != nil {
		return nil, err
	}
	if info == nil {
		return nil, &chat.NotFoundError{Kind: "user", ID: userID}
	}
	if info.Token != "" {
		key, err := store.DeriveKey(userID, endpoint)
		if err != nil {
			return nil, err
		}
		token, err := store.DecryptToken(key, info.Token)
		if err != nil {
			return nil, errors.Wrap(err, "failed to decrypt stored token")
		}
		info.Token = token
	}
	return info, nil
}

// ForgetAuthInfo removes a saved login.
func ForgetAuthInfo(ctx context.Context, rootPath, endpoint, userID string) error {
	if rootPath == "" {
		return errors.New("auth storage needs a root path")
	}

	driver, _ := db.Open(rootPath, authDBName)
	s := store.New(driver)
	defer s.Close()
	return s.Credentials.Remove(ctx, endpoint, userID)
}
