package core

import "time"

// User is an account holder. The password field carries the salted hash,
// never the clear text, and is excluded from every outward view. The
// transactions slice lists the ids of owned transactions in insertion
// order; membership defines ownership.
type User struct {
	Meta
	FirstName    string
	LastName     string
	Email        string
	Username     string
	Password     string
	Transactions []string
}

// NewUser creates a fresh user with a generated id and both timestamps set
// to now. The password must already be hashed by the caller.
func NewUser(now time.Time, firstName, lastName, email, username, passwordHash string) *User {
	return &User{
		Meta:      NewMeta(now),
		FirstName: firstName,
		LastName:  lastName,
		Email:     email,
		Username:  username,
		Password:  passwordHash,
	}
}

// UserFromDocument rehydrates a user from a stored document or a view.
// All fields, including id and timestamps, are taken verbatim.
func UserFromDocument(doc map[string]any) (*User, error) {
	meta, err := metaFromDocument(doc)
	if err != nil {
		return nil, err
	}
	return &User{
		Meta:         meta,
		FirstName:    stringField(doc, "first_name"),
		LastName:     stringField(doc, "last_name"),
		Email:        stringField(doc, "email"),
		Username:     stringField(doc, "username"),
		Password:     stringField(doc, "password"),
		Transactions: stringSliceField(doc, "transactions"),
	}, nil
}

func (u *User) EntityKind() Kind { return KindUser }

func (u *User) View() map[string]any {
	v := u.view()
	v["first_name"] = u.FirstName
	v["last_name"] = u.LastName
	v["email"] = u.Email
	v["username"] = u.Username
	v["transactions"] = u.ownedIDs()
	v[FieldKind] = string(KindUser)
	return v
}

// Owns reports whether the transaction id is in the user's owned list.
func (u *User) Owns(txnID string) bool {
	for _, id := range u.Transactions {
		if id == txnID {
			return true
		}
	}
	return false
}

func (u *User) ownedIDs() []string {
	if u.Transactions == nil {
		return []string{}
	}
	return u.Transactions
}
