// Package auth supplies the credential checkers a control session
// consults for USER/PASS.
package auth

import (
	"errors"
)

// ErrBadCredentials reports a rejected USER or PASS.
var ErrBadCredentials = errors.New("invalid username or password")

// Checker validates FTP logins. CheckUser may refuse a user name before
// a password is ever seen; CheckPassword settles the login.
type Checker interface {
	CheckUser(username string) error
	CheckPassword(username, password string) error
}

// StaticChecker validates against a fixed username → password map.
// The anonymous user, when listed in Users, is accepted with any password.
type StaticChecker struct {
	Users map[string]string
}

func (s *StaticChecker) CheckUser(username string) error {
	if _, ok := s.Users[username]; !ok {
		return ErrBadCredentials
	}
	return nil
}

func (s *StaticChecker) CheckPassword(username, password string) error {
	v, ok := s.Users[username]
	if !ok {
		return ErrBadCredentials
	}
	if username == "anonymous" || password == v {
		return nil
	}
	return ErrBadCredentials
}
