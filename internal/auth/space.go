// Package auth holds the user profile and the spaces a user may keep
// queries in.
package auth

import "regexp"

// DefaultSpaceName is the private space used when no space is known.
const DefaultSpaceName = "myspace"

// Permissions are a user's rights in one space.
type Permissions struct {
	CanCreate bool `json:"canCreate"`
	CanRead   bool `json:"canRead"`
	CanWrite  bool `json:"canWrite"`
	CanDelete bool `json:"canDelete"`
}

// Space is a named area queries are saved in.
type Space struct {
	Name        string      `json:"name"`
	IsPrivate   bool        `json:"isPrivate"`
	Permissions Permissions `json:"permissions"`
}

// DefaultPrivateSpace returns a private space with every permission.
func DefaultPrivateSpace() Space {
	return Space{
		Name:      DefaultSpaceName,
		IsPrivate: true,
		Permissions: Permissions{
			CanCreate: true,
			CanRead:   true,
			CanWrite:  true,
			CanDelete: true,
		},
	}
}

// spaceList implements the space lookups shared by Store and Static.
type spaceList []Space

func (l spaceList) private() *Space {
	for i := range l {
		if l[i].IsPrivate {
			s := l[i]
			return &s
		}
	}
	return nil
}

func (l spaceList) byName(name string) *Space {
	for i := range l {
		if l[i].Name == name {
			s := l[i]
			return &s
		}
	}
	return nil
}

func (l spaceList) shared() []Space {
	var out []Space
	for _, s := range l {
		if !s.IsPrivate {
			out = append(out, s)
		}
	}
	return out
}

func (l spaceList) sharedCreatable() []Space {
	var out []Space
	for _, s := range l.shared() {
		if s.Permissions.CanCreate {
			out = append(out, s)
		}
	}
	return out
}

// Profile keys of the user document.
const (
	keyNativeID    = "https://schema.hbp.eu/users/nativeId"
	keyUsername    = "http://schema.org/alternateName"
	keyEmail       = "http://schema.org/email"
	keyDisplayName = "http://schema.org/name"
	keyGivenName   = "http://schema.org/givenName"
	keyFamilyName  = "http://schema.org/familyName"
	keyPicture     = "https://schema.hbp.eu/users/picture"
)

// User is the profile of the signed-in user.
type User struct {
	ID          string `json:"id,omitempty"`
	Username    string `json:"username,omitempty"`
	Email       string `json:"email,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
	GivenName   string `json:"givenName,omitempty"`
	FamilyName  string `json:"familyName,omitempty"`
	Picture     string `json:"picture,omitempty"`
}

// UserFromProfile maps a profile document to a User. Missing or
// non-string values are left empty.
func UserFromProfile(doc map[string]any) *User {
	str := func(key string) string {
		s, _ := doc[key].(string)
		return s
	}
	return &User{
		ID:          str(keyNativeID),
		Username:    str(keyUsername),
		Email:       str(keyEmail),
		DisplayName: str(keyDisplayName),
		GivenName:   str(keyGivenName),
		FamilyName:  str(keyFamilyName),
		Picture:     str(keyPicture),
	}
}

var firstNamePattern = regexp.MustCompile(`^([^ ]+) .*$`)

// FirstName returns the given name, else the first word of the display
// name, else the username.
func (u *User) FirstName() string {
	if u == nil {
		return ""
	}
	if u.GivenName != "" {
		return u.GivenName
	}
	if u.DisplayName != "" {
		if m := firstNamePattern.FindStringSubmatch(u.DisplayName); m != nil {
			return m[1]
		}
		return u.DisplayName
	}
	return u.Username
}

// Profile returns the user as a profile document, the inverse of
// UserFromProfile. Empty values are omitted.
func (u *User) Profile() map[string]any {
	doc := make(map[string]any)
	put := func(key, value string) {
		if value != "" {
			doc[key] = value
		}
	}
	put(keyNativeID, u.ID)
	put(keyUsername, u.Username)
	put(keyEmail, u.Email)
	put(keyDisplayName, u.DisplayName)
	put(keyGivenName, u.GivenName)
	put(keyFamilyName, u.FamilyName)
	put(keyPicture, u.Picture)
	return doc
}
