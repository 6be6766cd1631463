package main

import (
	"context"

	"github.com/pkg/errors"

	"github.com/trezcool/coachdiary/core"
	"github.com/trezcool/coachdiary/core/user"
)

// addUser updates or creates a coach account, and activates it.
func (cli *commandLine) addUser(name, email, pwd string, isStaff bool) (user.User, error) {
	ctx := context.Background()
	name = core.CleanString(name)
	email = core.CleanString(email, true /* lower */)
	now := core.NowFunc().UTC()

	usr, err := cli.usrRepo.GetUser(ctx, user.GetFilter{Email: email})
	exists := err == nil
	if err != nil {
		if !core.IsNotFound(err) {
			return user.User{}, err
		}
		usr = user.User{Email: email, CreatedAt: now}
	}
	if name != "" {
		usr.Name = name
	}
	if usr.Name == "" {
		usr.Name = email
	}
	usr.IsStaff = isStaff
	usr.IsActive = true
	usr.UpdatedAt = now
	if err = usr.SetPassword(pwd); err != nil {
		return user.User{}, errors.Wrap(err, "setting password")
	}

	if exists {
		usr, err = cli.usrRepo.UpdateUser(ctx, usr)
	} else {
		usr, err = cli.usrRepo.CreateUser(ctx, usr)
	}
	if err != nil {
		return user.User{}, errors.Wrap(err, "saving user")
	}
	return usr, nil
}
