package main

import (
	"context"
	"strings"

	"github.com/trezcool/prsonline/core/user"
)

// resetPassword sets the password of the user found by username or email.
func (cli *commandLine) resetPassword(uname, pwd string) error {
	ctx := context.Background()

	var usr user.User
	var err error
	if strings.Contains(uname, "@") {
		usr, err = cli.usrSvc.GetByEmail(ctx, uname)
	} else {
		usr, err = cli.usrSvc.GetByUsername(ctx, uname)
	}
	if err != nil {
		return err
	}
	if _, err := cli.usrSvc.SetPassword(ctx, usr, pwd); err != nil {
		return err
	}
	cli.logger.Info("password reset", map[string]interface{}{"username": usr.Username})
	return nil
}
