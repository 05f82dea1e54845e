// Package admin implements the operator commands run by cmd/admin.
package admin

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/flagx"
	"github.com/dmitrijs2005/gophauth/internal/server/models"
	"github.com/dmitrijs2005/gophauth/internal/server/services"
	"github.com/go-playground/validator/v10"
	"golang.org/x/term"
)

const CommandCreateAdmin = "create-admin"

var (
	ErrUnknownCommand   = errors.New("unknown command")
	ErrPasswordMismatch = errors.New("passwords do not match")
)

// readPassword is a test seam for term.ReadPassword.
var readPassword = term.ReadPassword

// UserCreator is the part of services.UserService the commands need.
type UserCreator interface {
	Create(ctx context.Context, in services.CreateUserInput) (*models.User, error)
}

// CreateAdminOptions are the flags of create-admin.
type CreateAdminOptions struct {
	Email string `validate:"required,email"`
	Name  string `validate:"required"`
}

// ParseCreateAdmin reads -email and -name from args. Flags meant for the
// server configuration are ignored.
func ParseCreateAdmin(args []string) (CreateAdminOptions, error) {
	var opts CreateAdminOptions

	fs := flag.NewFlagSet(CommandCreateAdmin, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&opts.Email, "email", "", "admin email address")
	fs.StringVar(&opts.Name, "name", "", "admin display name")

	if err := fs.Parse(flagx.FilterArgs(args, []string{"-email", "-name"})); err != nil {
		return opts, err
	}
	opts.Email = strings.TrimSpace(opts.Email)
	opts.Name = strings.TrimSpace(opts.Name)

	if err := validator.New().Struct(opts); err != nil {
		return opts, fmt.Errorf("invalid options: %w", err)
	}
	return opts, nil
}

func prompt(w io.Writer, label string) ([]byte, error) {
	if _, err := fmt.Fprint(w, label); err != nil {
		return nil, err
	}
	pw, err := readPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(w)
	return pw, err
}

// ReadNewPassword asks for a password twice without echo and checks it the
// same way the API does.
func ReadNewPassword(w io.Writer) (string, error) {
	pw, err := prompt(w, "Enter password: ")
	if err != nil {
		return "", err
	}
	confirm, err := prompt(w, "Confirm password: ")
	if err != nil {
		return "", err
	}
	if !bytes.Equal(pw, confirm) {
		return "", ErrPasswordMismatch
	}

	if err := validator.New().Var(string(pw), "required,min=4,max=20"); err != nil {
		return "", fmt.Errorf("password must be 4 to 20 characters: %w", err)
	}
	return string(pw), nil
}

// CreateAdmin creates a verified admin account.
func CreateAdmin(ctx context.Context, users UserCreator, opts CreateAdminOptions, password string) (*models.User, error) {
	return users.Create(ctx, services.CreateUserInput{
		Name:     opts.Name,
		Email:    opts.Email,
		Password: password,
		Role:     common.RoleAdmin,
		Verified: true,
	})
}

// Run dispatches args[0] and reports to w.
func Run(ctx context.Context, users UserCreator, args []string, w io.Writer) error {
	if len(args) == 0 || args[0] != CommandCreateAdmin {
		return fmt.Errorf("%w: usage: admin %s -email <email> -name <name>", ErrUnknownCommand, CommandCreateAdmin)
	}

	opts, err := ParseCreateAdmin(args[1:])
	if err != nil {
		return err
	}
	password, err := ReadNewPassword(w)
	if err != nil {
		return err
	}

	u, err := CreateAdmin(ctx, users, opts, password)
	if err != nil {
		var ae *common.AppError
		if errors.As(err, &ae) {
			return errors.New(ae.Message)
		}
		return err
	}

	fmt.Fprintf(w, "Admin %s created with id %s\n", u.Email, u.ID)
	return nil
}
