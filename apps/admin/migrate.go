package main

import "github.com/pkg/errors"

func (cli *commandLine) migrate(args []string) error {
	if cli.db == nil {
		return errors.New("migrate: no database connection")
	}
	return gooseRunFunc(cli.db, args[0], args[1:]...)
}
