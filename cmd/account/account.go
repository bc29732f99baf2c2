package account

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github/chapool/wallet-broker/internal/api"
	"github/chapool/wallet-broker/internal/config"
	"github/chapool/wallet-broker/internal/util/command"
	"golang.org/x/term"
)

const (
	nameFlag   = "name"
	familyFlag = "family"
)

func New() *cobra.Command {
	return command.NewSubcommandGroup("account",
		newGenerate(),
		newImport(),
		newList(),
		newDerive(),
	)
}

// withServer runs fn against a server on the configured storage.
func withServer(cmd *cobra.Command, fn func(ctx context.Context, s *api.Server) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	return command.WithServer(ctx, config.DefaultServiceConfigFromEnv(), fn)
}

// prompter reads secrets from the terminal without echo, or line by line from piped input.
type prompter struct {
	in  *os.File
	out io.Writer
	r   *bufio.Reader
}

func newPrompter(cmd *cobra.Command) *prompter {
	return &prompter{in: os.Stdin, out: cmd.ErrOrStderr(), r: bufio.NewReader(os.Stdin)}
}

func (p *prompter) secret(prompt string) (string, error) {
	fmt.Fprint(p.out, prompt)

	if term.IsTerminal(int(p.in.Fd())) {
		b, err := term.ReadPassword(int(p.in.Fd()))
		fmt.Fprintln(p.out)
		if err != nil {
			return "", errors.Wrap(err, "failed to read from terminal")
		}

		return strings.TrimSpace(string(b)), nil
	}

	line, err := p.r.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", errors.Wrap(err, "failed to read from stdin")
	}

	return strings.TrimSpace(line), nil
}

// newPassword asks for a password twice.
func (p *prompter) newPassword() (string, error) {
	password, err := p.secret("Password: ")
	if err != nil {
		return "", err
	}
	if password == "" {
		return "", errors.New("password must not be empty")
	}

	repeated, err := p.secret("Repeat password: ")
	if err != nil {
		return "", err
	}
	if repeated != password {
		return "", errors.New("passwords do not match")
	}

	return password, nil
}
