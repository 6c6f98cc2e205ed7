package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"domu/internal/api"
	"domu/internal/collection"
	"domu/internal/form"
)

func parseID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", arg)
	}
	return id, nil
}

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

// readLine prints prompt and reads one trimmed line from r.
func readLine(r *bufio.Reader, w io.Writer, prompt string) (string, error) {
	fmt.Fprint(w, prompt)
	line, err := r.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// readPassword reads a secret without echo when stdin is a terminal and
// falls back to readLine for piped input.
func readPassword(stdin io.Reader, r *bufio.Reader, w io.Writer, prompt string) (string, error) {
	f, ok := stdin.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return readLine(r, w, prompt)
	}
	fmt.Fprint(w, prompt)
	secret, err := term.ReadPassword(int(f.Fd()))
	fmt.Fprintln(w)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(secret)), nil
}

// confirmer returns the approval source for irreversible operations:
// automatic with --yes, otherwise an interactive y/N prompt.
func confirmer(cmd *cobra.Command, yes bool) collection.Confirmer {
	if yes {
		return collection.AlwaysConfirm
	}
	in := bufio.NewReader(cmd.InOrStdin())
	return collection.ConfirmFunc(func(_ context.Context, prompt string) (bool, error) {
		answer, err := readLine(in, cmd.OutOrStdout(), prompt+" [y/N]: ")
		if errors.Is(err, io.EOF) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		switch strings.ToLower(answer) {
		case "y", "yes":
			return true, nil
		default:
			return false, nil
		}
	})
}

// userError turns an operation error into what the user should read.
func userError(err error) error {
	var verr *form.ValidationError
	switch {
	case errors.As(err, &verr):
		return verr
	case errors.Is(err, collection.ErrNotConfirmed):
		return errors.New("cancelled")
	default:
		return errors.New(api.UserMessage(err))
	}
}
