package main

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/trezcool/prsonline/core/notice"
	"github.com/trezcool/prsonline/core/user"
	testutil "github.com/trezcool/prsonline/tests"
)

func setup(t *testing.T) (*commandLine, *testutil.Env, *bytes.Buffer) {
	env := testutil.NewEnv(t)
	out := new(bytes.Buffer)

	// start CLI
	return &commandLine{
		db:         new(sql.DB),
		usrRepo:    env.UserRepo,
		usrSvc:     env.Users,
		countries:  env.Countries,
		notices:    env.Notices,
		validate:   env.Validate,
		translator: env.Translator,
		logger:     env.Logger,
		out:        out,
	}, env, out
}

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
	extra      interface{}
}

func (tt cliTest) check(t *testing.T, err error) bool {
	t.Helper()
	switch {
	case err == nil && (tt.wantErr != nil || tt.wantErrStr != ""):
		t.Errorf("cli.run() error = nil, wantErr %v%s", tt.wantErr, tt.wantErrStr)
	case err == nil:
		return true
	case tt.wantErr != nil:
		if err != tt.wantErr {
			t.Errorf("cli.run() error = %v, wantErr %v", err, tt.wantErr)
		}
	case tt.wantErrStr != "":
		if err.Error() != tt.wantErrStr {
			t.Errorf("cli.run() error.Error() = %s, wantErrStr %s", err.Error(), tt.wantErrStr)
		}
	default:
		t.Errorf("cli.run() unexpected error = %v", err)
	}
	return false
}

func mockPassword(pwd string) {
	readPasswordFunc = func(fd int) ([]byte, error) {
		return []byte(pwd), nil
	}
}

func Test_commandLine_migrate(t *testing.T) {
	cli, _, _ := setup(t)

	gooseRunFunc = func(db *sql.DB, command string, args ...string) error {
		switch command {
		case "up", "up-by-one", "down", "fix", "redo", "reset", "status", "version": // pass
		case "up-to", "down-to":
			if len(args) == 0 {
				return fmt.Errorf("%s must be of form: goose [OPTIONS] DRIVER DBSTRING %s VERSION", command, command)
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		case "create":
			if len(args) == 0 {
				return fmt.Errorf("create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]")
			}
		default:
			return fmt.Errorf("%q: no such command", command)
		}
		return nil
	}

	tests := []cliTest{
		{name: "no subcommand", args: []string{"migrate"}, wantErr: errHelp},
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: "\"lol\": no such command"},
		{name: "up-to: no args", args: []string{"migrate", "up-to"}, wantErrStr: "up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION"},
		{name: "up-to: non-int arg", args: []string{"migrate", "up-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "create: no args", args: []string{"migrate", "create"}, wantErrStr: "create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]"},
		{name: "down-to: no args", args: []string{"migrate", "down-to"}, wantErrStr: "down-to must be of form: goose [OPTIONS] DRIVER DBSTRING down-to VERSION"},
		{name: "down-to: non-int arg", args: []string{"migrate", "down-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "up-by-one", args: []string{"migrate", "up-by-one"}},
		{name: "up-to", args: []string{"migrate", "up-to", "2"}},
		{name: "down", args: []string{"migrate", "down"}},
		{name: "down-to", args: []string{"migrate", "down-to", "1"}},
		{name: "redo", args: []string{"migrate", "redo"}},
		{name: "reset", args: []string{"migrate", "reset"}},
		{name: "status", args: []string{"migrate", "status"}},
		{name: "version", args: []string{"migrate", "version"}},
		{name: "create", args: []string{"migrate", "create", "firms", "sql"}},
		{name: "fix", args: []string{"migrate", "fix"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, cli.run(args))
		})
	}
}

func Test_commandLine_addUser(t *testing.T) {
	cli, env, _ := setup(t)
	existing := testutil.CreateUser(t, env.UserRepo, "awe", "awe@test.cd", "mdr", user.RoleUser)

	type extra struct {
		pwd       string
		wantRole  int
		wantEmail string
	}
	tests := []cliTest{
		{name: "no args", args: []string{"adduser"}, wantErr: errHelp},
		{name: "no email", args: []string{"adduser", "-username", "jane"}, wantErr: errHelp},
		{name: "no password", args: []string{"adduser", "-username", "jane", "-email", "jane@test.cd"}, wantErr: errHelp},
		{name: "help", args: []string{"adduser", "-h"}, wantErr: errHelp},
		{
			name:       "invalid username",
			args:       []string{"adduser", "-username", "ja", "-email", "jane@test.cd"},
			extra:      extra{pwd: "secret"},
			wantErrStr: "username: length must be greater than 2",
		},
		{
			name:       "short password",
			args:       []string{"adduser", "-username", "jane", "-email", "jane@test.cd"},
			extra:      extra{pwd: "abc"},
			wantErrStr: "password: length must be greater than 3",
		},
		{
			name:  "create admin",
			args:  []string{"adduser", "-username", "jane", "-email", " Jane@Test.cd ", "-admin"},
			extra: extra{pwd: "secret", wantRole: user.RoleAdmin, wantEmail: "jane@test.cd"},
		},
		{
			name:  "update existing by username",
			args:  []string{"adduser", "-username", existing.Username, "-email", "new@test.cd"},
			extra: extra{pwd: "secret", wantRole: user.RoleUser, wantEmail: "new@test.cd"},
		},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)
		ex, _ := tt.extra.(extra)
		mockPassword(ex.pwd)

		t.Run(tt.name, func(t *testing.T) {
			if !tt.check(t, cli.run(args)) {
				return
			}
			usr, err := env.UserRepo.GetUser(context.Background(), user.GetFilter{Email: ex.wantEmail})
			if err != nil {
				t.Fatalf("GetUser() failed, %v", err)
			}
			if usr.RoleID != ex.wantRole {
				t.Errorf("RoleID = %d, want %d", usr.RoleID, ex.wantRole)
			}
			if err := usr.CheckPassword(ex.pwd); err != nil {
				t.Errorf("CheckPassword() failed, %v", err)
			}
		})
	}
}

func Test_commandLine_resetPassword(t *testing.T) {
	cli, env, _ := setup(t)

	usr := testutil.CreateUser(t, env.UserRepo, "awe", "awe@test.cd", "mdr", user.RoleUser)

	type extra struct {
		pwd string
	}
	tests := []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
		{name: "no args", args: []string{"resetpassword"}, wantErr: errHelp},
		{name: "username but no password", args: []string{"resetpassword", "-username", "lol"}, wantErr: errHelp},
		{name: "user not found", args: []string{"resetpassword", "-username", "lol"}, extra: extra{pwd: "lol"}, wantErr: user.ErrNotFound},
		{name: "reset with username", args: []string{"resetpassword", "-username", usr.Username}, extra: extra{pwd: "lol"}},
		{name: "reset with email", args: []string{"resetpassword", "-username", strings.ToUpper(usr.Email)}, extra: extra{pwd: "lmao"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)
		ex, _ := tt.extra.(extra)
		mockPassword(ex.pwd)

		t.Run(tt.name, func(t *testing.T) {
			if !tt.check(t, cli.run(args)) {
				return
			}
			refreshedUsr, err := env.UserRepo.GetUser(context.Background(), user.GetFilter{ID: usr.ID})
			if err != nil {
				t.Fatalf("GetUser() failed, %v", err)
			}
			if err := refreshedUsr.CheckPassword(ex.pwd); err != nil {
				t.Error("failed to update new password")
			}
		})
	}
}

func Test_commandLine_seedCountries(t *testing.T) {
	cli, env, out := setup(t)

	if err := cli.run([]string{"admin", "seedcountries"}); err != nil {
		t.Fatalf("cli.run() unexpected error = %v", err)
	}
	if !strings.HasSuffix(out.String(), "countries seeded\n") {
		t.Errorf("output = %q", out.String())
	}
	c, err := env.Countries.GetByCode(context.Background(), "CD")
	if err != nil {
		t.Fatalf("GetByCode() failed, %v", err)
	}
	if c.ID == 0 {
		t.Error("country not stored")
	}
}

func Test_commandLine_scheduleNotices(t *testing.T) {
	cli, env, out := setup(t)

	firm := env.NoticeRepo.CreateFirm("Acme LLP")
	for i, day := range []int{3, 10, 20} {
		env.NoticeRepo.CreatePracticeReview(notice.PracticeReview{
			PRNumber:  "PR-" + strconv.Itoa(i),
			StartDate: time.Date(2026, 11, day, 0, 0, 0, 0, time.UTC),
			Firm:      firm,
		})
	}

	tests := []cliTest{
		{name: "no args", args: []string{"schedulenotices"}, wantErr: errHelp},
		{name: "invalid from", args: []string{"schedulenotices", "-from", "lol", "-to", "2026-11-15"}, wantErrStr: `invalid -from date "lol"`},
		{name: "invalid to", args: []string{"schedulenotices", "-from", "2026-11-01", "-to", "15/11"}, wantErrStr: `invalid -to date "15/11"`},
		{name: "from after to", args: []string{"schedulenotices", "-from", "2026-11-15", "-to", "2026-11-01"}, wantErrStr: "must be after from"},
		{name: "schedule", args: []string{"schedulenotices", "-from", "2026-11-01", "-to", "2026-11-15"}, extra: 2},
		{name: "already scheduled", args: []string{"schedulenotices", "-from", "2026-11-01", "-to", "2026-11-15"}, extra: 0},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			out.Reset()
			if !tt.check(t, cli.run(args)) {
				return
			}
			want := fmt.Sprintf("%d notices scheduled from 2026-11-01 to 2026-11-15\n", tt.extra)
			if out.String() != want {
				t.Errorf("output = %q, want %q", out.String(), want)
			}
		})
	}

	notices, err := env.NoticeRepo.QueryNotices(context.Background(), notice.QueryFilter{Stage: notice.StageGenerate})
	if err != nil {
		t.Fatalf("QueryNotices() failed, %v", err)
	}
	if len(notices) != 2 {
		t.Errorf("len(notices) = %d, want 2", len(notices))
	}
}
