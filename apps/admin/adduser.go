package main

import (
	"context"

	"github.com/trezcool/fomu/core/user"
)

// addUser creates a user.User; validation (incl. the password policy)
// happens in the service.
func (cli *commandLine) addUser(name, uname, email, pwd string, isStaff bool) error {
	usr, err := cli.usrSvc.Create(context.Background(), user.NewUser{
		Name:     name,
		Username: uname,
		Email:    email,
		Password: pwd,
		IsStaff:  isStaff,
	})
	if err != nil {
		return err
	}
	logger.Printf("created user %q (%s)", usr.Username, usr.ID)
	return nil
}
