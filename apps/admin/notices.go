package main

import (
	"context"
	"fmt"
	"time"
)

func (cli *commandLine) seedCountries() error {
	n, err := cli.countries.Seed(context.Background())
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "%d countries seeded\n", n)
	return nil
}

func (cli *commandLine) scheduleNotices(from, to time.Time) error {
	n, err := cli.notices.Schedule(context.Background(), from, to)
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "%d notices scheduled from %s to %s\n", n, from.Format(dateLayout), to.Format(dateLayout))
	return nil
}
