package telegram

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"syscall"

	"golang.org/x/term"

	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/tg"
)

// promptAuthenticator answers the gotd login flow from a terminal. The
// first sign-in of a channel source asks for the code Telegram sends and,
// when enabled, the 2FA password.
type promptAuthenticator struct {
	phone        string
	in           *bufio.Reader
	out          io.Writer
	readPassword func() ([]byte, error)
}

var _ auth.UserAuthenticator = (*promptAuthenticator)(nil)

func newTerminalAuthenticator(phone string) *promptAuthenticator {
	return &promptAuthenticator{
		phone: phone,
		in:    bufio.NewReader(os.Stdin),
		out:   os.Stdout,
		readPassword: func() ([]byte, error) {
			return term.ReadPassword(int(syscall.Stdin))
		},
	}
}

func (*promptAuthenticator) SignUp(ctx context.Context) (auth.UserInfo, error) {
	return auth.UserInfo{}, errors.New("telegram account sign-up is not supported, register with an official client first")
}

func (*promptAuthenticator) AcceptTermsOfService(ctx context.Context, tos tg.HelpTermsOfService) error {
	return &auth.SignUpRequired{TermsOfService: tos}
}

func (a *promptAuthenticator) Code(ctx context.Context, sentCode *tg.AuthSentCode) (string, error) {
	fmt.Fprintln(a.out)
	fmt.Fprintln(a.out, "Telegram sent a login code to your account so announcements can be read from channels.")
	return a.ask("Enter code: ")
}

func (a *promptAuthenticator) Phone(_ context.Context) (string, error) {
	if a.phone != "" {
		return a.phone, nil
	}
	return a.ask("Enter phone in international format (e.g. +1234567890): ")
}

func (a *promptAuthenticator) Password(_ context.Context) (string, error) {
	fmt.Fprint(a.out, "Enter 2FA password: ")
	pwd, err := a.readPassword()
	if err != nil {
		return "", fmt.Errorf("failed to read password with %w", err)
	}
	fmt.Fprintln(a.out)
	return strings.TrimSpace(string(pwd)), nil
}

func (a *promptAuthenticator) ask(prompt string) (string, error) {
	fmt.Fprint(a.out, prompt)
	line, err := a.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("failed to read answer with %w", err)
	}
	return strings.TrimSpace(line), nil
}
