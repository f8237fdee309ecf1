package directory

import (
	"encoding/json"
	"errors"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/quackamole-dev/quackamole-relay/types"
	"github.com/tidwall/buntdb"
)

const (
	userKeyPrefix   = "user:"
	secretKeyPrefix = "secret:"

	displayNameMinLen = 3
	displayNameMaxLen = 16
)

var ErrUserNotFound = errors.New("user not found")

// ValidationError carries a wire-level error code for a violated name rule.
type ValidationError struct {
	Code string
}

func (e *ValidationError) Error() string { return e.Code }

// Directory owns the user identity records and the secret -> userId index.
// Both live in an in-memory buntdb, so every start begins with an empty
// directory. Secrets are only ever resolvable through the index, never listed.
type Directory struct {
	db *buntdb.DB
}

func NewDirectory() (*Directory, error) {
	db, err := buntdb.Open(":memory:")
	if err != nil {
		return nil, err
	}
	return &Directory{db: db}, nil
}

func (d *Directory) Close() error {
	return d.db.Close()
}

// ValidateDisplayName returns every violated rule, not just the first one.
// An empty name violates both the missing and the too-short rule. The length
// bounds are in characters, not bytes.
func ValidateDisplayName(name string) []string {
	var codes []string
	if name == "" {
		codes = append(codes, types.ErrCodeMissingDisplayName)
	}
	length := utf8.RuneCountInString(name)
	if length < displayNameMinLen {
		codes = append(codes, types.ErrCodeDisplayNameTooShort)
	}
	if length > displayNameMaxLen {
		codes = append(codes, types.ErrCodeDisplayNameTooLong)
	}
	return codes
}

// Register validates the display name, allocates a fresh user and a fresh
// secret and stores both. The secret is returned exactly once here; it is
// never invalidated, repeat logins with it keep succeeding.
func (d *Directory) Register(displayName string) (*types.User, string, []string) {
	if codes := ValidateDisplayName(displayName); len(codes) > 0 {
		return nil, "", codes
	}
	user := &types.User{
		Id:          uuid.NewString(),
		DisplayName: displayName,
		Status:      types.UserStatusOnline,
		LastSeen:    time.Now(),
	}
	secret := uuid.NewString()
	raw, err := json.Marshal(user)
	if err != nil {
		return nil, "", []string{types.ErrCodeBadRequest}
	}
	err = d.db.Update(func(tx *buntdb.Tx) error {
		if _, _, err := tx.Set(userKeyPrefix+user.Id, string(raw), nil); err != nil {
			return err
		}
		_, _, err := tx.Set(secretKeyPrefix+secret, user.Id, nil)
		return err
	})
	if err != nil {
		return nil, "", []string{types.ErrCodeBadRequest}
	}
	return user, secret, nil
}

// GetBySecret resolves a secret to its user without touching presence. Used
// by the HTTP bearer check.
func (d *Directory) GetBySecret(secret string) (*types.User, error) {
	var userId string
	err := d.db.View(func(tx *buntdb.Tx) error {
		id, err := tx.Get(secretKeyPrefix + secret)
		if err != nil {
			return err
		}
		userId = id
		return nil
	})
	if err == buntdb.ErrNotFound {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return d.GetById(userId)
}

// Login resolves a secret to its user and marks it online. Unknown secrets
// yield ErrUserNotFound. Logging in never invalidates the secret.
func (d *Directory) Login(secret string) (*types.User, error) {
	user, err := d.GetBySecret(secret)
	if err != nil {
		return nil, err
	}
	user.Status = types.UserStatusOnline
	user.LastSeen = time.Now()
	if err := d.store(user); err != nil {
		return nil, err
	}
	return user, nil
}

func (d *Directory) GetById(id string) (*types.User, error) {
	user := &types.User{}
	err := d.db.View(func(tx *buntdb.Tx) error {
		raw, err := tx.Get(userKeyPrefix + id)
		if err != nil {
			return err
		}
		return json.Unmarshal([]byte(raw), user)
	})
	if err == buntdb.ErrNotFound {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

// GetManyById hydrates a list of users, silently skipping unknown ids. Used
// for member lists where stale ids are expected.
func (d *Directory) GetManyById(ids []string) []*types.User {
	users := make([]*types.User, 0, len(ids))
	for _, id := range ids {
		user, err := d.GetById(id)
		if err != nil {
			continue
		}
		users = append(users, user)
	}
	return users
}

// UpdateDisplayName applies the same length rules as Register but aborts on
// the first violated one without mutating anything.
func (d *Directory) UpdateDisplayName(id, newName string) (*types.User, error) {
	if codes := ValidateDisplayName(newName); len(codes) > 0 {
		return nil, &ValidationError{Code: codes[0]}
	}
	user, err := d.GetById(id)
	if err != nil {
		return nil, err
	}
	user.DisplayName = newName
	if err := d.store(user); err != nil {
		return nil, err
	}
	return user, nil
}

// SetStatus updates a user's presence and stamps lastSeen. Unknown ids are a
// silent no-op, the caller may race with a user that never registered.
func (d *Directory) SetStatus(id, status string) {
	user, err := d.GetById(id)
	if err != nil {
		return
	}
	user.Status = status
	user.LastSeen = time.Now()
	_ = d.store(user)
}

func (d *Directory) store(user *types.User) error {
	raw, err := json.Marshal(user)
	if err != nil {
		return err
	}
	return d.db.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(userKeyPrefix+user.Id, string(raw), nil)
		return err
	})
}
