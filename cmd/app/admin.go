// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"codeberg.org/truepet/adopet/internal/apperr"
	"codeberg.org/truepet/adopet/internal/config"
	"codeberg.org/truepet/adopet/internal/database"
	"codeberg.org/truepet/adopet/internal/i18n"
	"codeberg.org/truepet/adopet/internal/repository"
	"codeberg.org/truepet/adopet/internal/server"
	"codeberg.org/truepet/adopet/internal/services/audit"
	authsvc "codeberg.org/truepet/adopet/internal/services/auth"
	"codeberg.org/truepet/adopet/internal/services/totp"
	"github.com/urfave/cli/v3"
	"github.com/vinovest/sqlx"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/term"
)

// readPassword is swapped in tests to avoid touching the terminal.
var readPassword = term.ReadPassword

var errPasswordMismatch = errors.New("passwords do not match")

func createAdminCommand() *cli.Command {
	return &cli.Command{
		Name:  "create-admin",
		Usage: "Create an administrator account, or promote an existing one",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "email", Usage: "Administrator email", Required: true},
			&cli.StringFlag{Name: "name", Usage: "Display name", Value: "Administrador"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg := config.NewFromCLI(cmd)
			server.SetupLogger(cfg.Log.Level, cfg.Log.Format)

			password, err := promptPassword(os.Stdin, os.Stderr)
			if err != nil {
				return err
			}

			db, err := database.Open(cfg.Database.DSN)
			if err != nil {
				return fmt.Errorf("failed to open database: %w", err)
			}
			defer db.Close()

			return createAdmin(ctx, os.Stdout, db, cfg, cmd.String("name"), cmd.String("email"), password)
		},
	}
}

func createAdmin(ctx context.Context, w io.Writer, db *sqlx.DB, cfg *config.Config, name, email, password string) error {
	repo := repository.New(db, repository.WithQueryTimeout(cfg.Database.QueryTimeout))
	// Account creation never issues session tokens, so no issuer is wired.
	svc := authsvc.NewService(repo, &cfg.Auth, authsvc.NewHasher(bcrypt.DefaultCost),
		totp.New(cfg.Auth.TOTPIssuer), nil, audit.NewRecorder(repo))

	user, created, err := svc.CreateAdmin(ctx, name, email, password)
	if err != nil {
		if e, ok := apperr.As(err); ok && e.Kind == apperr.KindValidation {
			return fmt.Errorf("%s: %s", e.Field, i18n.T(ctx, e.Message))
		}
		return err
	}

	if created {
		fmt.Fprintf(w, "Administrator %s created (id %d)\n", user.Email, user.ID)
	} else {
		fmt.Fprintf(w, "Existing account %s promoted to administrator (id %d)\n", user.Email, user.ID)
	}

	admins, err := svc.CountAdmins(ctx)
	if err != nil {
		return fmt.Errorf("failed to count administrators: %w", err)
	}
	fmt.Fprintf(w, "%d administrator account(s) configured\n", admins)
	return nil
}

// promptPassword reads the password twice without echo. When stdin is not
// a terminal a single line is read instead, for scripted setups.
func promptPassword(in *os.File, w io.Writer) (string, error) {
	fd := int(in.Fd())
	if !term.IsTerminal(fd) {
		line, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return "", err
		}
		return strings.TrimRight(line, "\r\n"), nil
	}

	first, err := readSecret(fd, w, "Password: ")
	if err != nil {
		return "", err
	}
	second, err := readSecret(fd, w, "Repeat password: ")
	if err != nil {
		return "", err
	}
	if first != second {
		return "", errPasswordMismatch
	}
	return first, nil
}

func readSecret(fd int, w io.Writer, prompt string) (string, error) {
	fmt.Fprint(w, prompt)
	pw, err := readPassword(fd)
	fmt.Fprintln(w)
	if err != nil {
		return "", err
	}
	return string(pw), nil
}
