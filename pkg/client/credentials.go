package client

import (
	"context"
	"fmt"
	"io"
	"os"

	"golang.org/x/term"
)

// Credentials is what a CredentialSource hands to New. When Token is set the
// client never logs in; Password is only carried so that New can warn about
// the conflict.
type Credentials struct {
	Token    string
	Password string
}

// CredentialSource produces the credentials used to authenticate a Client.
type CredentialSource interface {
	Credentials(ctx context.Context) (Credentials, error)
}

// CredentialSourceFunc adapts a function to CredentialSource.
type CredentialSourceFunc func(ctx context.Context) (Credentials, error)

// Credentials calls f.
func (f CredentialSourceFunc) Credentials(ctx context.Context) (Credentials, error) {
	return f(ctx)
}

type staticCredentials Credentials

func (s staticCredentials) Credentials(context.Context) (Credentials, error) {
	return Credentials(s), nil
}

// StaticToken supplies a pre-obtained bearer token. password may be empty; a
// non-empty password is ignored with a warning.
func StaticToken(token, password string) CredentialSource {
	return staticCredentials{Token: token, Password: password}
}

// StaticPassword supplies a fixed password for the login call.
func StaticPassword(password string) CredentialSource {
	return staticCredentials{Password: password}
}

// Prompt reads the password from a terminal with echo disabled.
type Prompt struct {
	In      *os.File  // defaults to os.Stdin
	Out     io.Writer // defaults to os.Stderr
	Message string    // defaults to "Mender Server Password: "
}

// Credentials prompts for the password. It refuses to read from anything that
// is not a terminal so that the password is never echoed.
func (p Prompt) Credentials(context.Context) (Credentials, error) {
	in, out, msg := p.In, p.Out, p.Message
	if in == nil {
		in = os.Stdin
	}
	if out == nil {
		out = os.Stderr
	}
	if msg == "" {
		msg = "Mender Server Password: "
	}

	fd := int(in.Fd())
	if !term.IsTerminal(fd) {
		return Credentials{}, ErrNoTerminal
	}

	fmt.Fprint(out, msg)
	password, err := term.ReadPassword(fd)
	fmt.Fprintln(out)
	if err != nil {
		return Credentials{}, fmt.Errorf("read password: %w", err)
	}
	return Credentials{Password: string(password)}, nil
}

// ResolveSource picks the credential source for the given inputs: a token
// wins over everything, then an explicit password, then prompt.
func ResolveSource(token, password string, prompt CredentialSource) CredentialSource {
	switch {
	case token != "":
		return StaticToken(token, password)
	case password != "":
		return StaticPassword(password)
	case prompt != nil:
		return prompt
	default:
		return Prompt{}
	}
}
