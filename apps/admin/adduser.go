package main

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/prsonline/core"
	"github.com/trezcool/prsonline/core/user"
)

// addUser updates or creates a user.User
func (cli *commandLine) addUser(uname, email, pwd string, isAdmin bool) error {
	in := user.UsernamePasswordInput{Username: uname, Email: email, Password: pwd}
	in.Clean()
	if err := cli.validate.Struct(in); err != nil {
		var vErrs validator.ValidationErrors
		if errors.As(err, &vErrs) {
			return core.NewValidationError(nil, core.TranslateValidationErrors(vErrs, cli.translator)...)
		}
		return err
	}

	ctx := context.Background()
	now := time.Now().UTC()
	roleID := user.RoleUser
	if isAdmin {
		roleID = user.RoleAdmin
	}

	usr, err := cli.usrRepo.GetUser(ctx, user.GetFilter{Username: in.Username})
	if errors.Is(err, user.ErrNotFound) {
		usr, err = cli.usrRepo.GetUser(ctx, user.GetFilter{Email: in.Email})
	}
	switch {
	case errors.Is(err, user.ErrNotFound):
		usr = user.User{Username: in.Username, Email: in.Email, RoleID: roleID, CreatedAt: now, UpdatedAt: now}
		if err := usr.SetPassword(in.Password); err != nil {
			return err
		}
		if _, err := cli.usrRepo.CreateUser(ctx, usr); err != nil {
			return err
		}
		cli.logger.Info("user created", map[string]interface{}{"username": usr.Username, "role_id": roleID})
		return nil
	case err != nil:
		return err
	}

	usr.Username, usr.Email, usr.RoleID, usr.UpdatedAt = in.Username, in.Email, roleID, now
	if err := usr.SetPassword(in.Password); err != nil {
		return err
	}
	if _, err := cli.usrRepo.UpdateUser(ctx, usr); err != nil {
		return err
	}
	cli.logger.Info("user updated", map[string]interface{}{"username": usr.Username, "role_id": roleID})
	return nil
}
