// Command signin signs a shopper in, or up with -signup, through the same
// direct/relay race the storefront uses and prints the resulting user. It is
// used to smoke-test a deployed relay.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jrsteele09/storefront-auth/auth"
	"github.com/jrsteele09/storefront-auth/internal/config"
	"github.com/jrsteele09/storefront-auth/internal/logging"
	"github.com/jrsteele09/storefront-auth/storefront"
	"github.com/rs/zerolog/log"
	"golang.org/x/term"
)

func main() {
	c, err := config.New()
	if err != nil {
		log.Fatal().Err(err).Msg("config.New")
	}
	logging.Setup(c.GetEnv(), c.GetLogLevel())

	if err := run(context.Background(), c, os.Args[1:], os.Stdin, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, c config.Config, args []string, stdin io.Reader, stdout io.Writer) error {
	fs := flag.NewFlagSet("signin", flag.ContinueOnError)
	email := fs.String("email", "", "shopper email address")
	signUp := fs.Bool("signup", false, "create the account instead of signing in")
	name := fs.String("name", "", "display name for -signup")
	whatsapp := fs.String("whatsapp", "", "contact number for -signup")
	captcha := fs.String("captcha", "", "captcha token, when sign-in requires one")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *email == "" {
		return errors.New("-email is required")
	}

	password, err := readPassword(stdin, os.Stderr)
	if err != nil {
		return fmt.Errorf("read password: %w", err)
	}

	stack := storefront.New(c)
	defer stack.Close()

	cred := auth.Credential{Email: *email, Password: password, CaptchaToken: *captcha}
	var res *auth.Result
	if *signUp {
		res, err = stack.Auth.SignUp(ctx, auth.SignUpRequest{Credential: cred, Name: *name, Whatsapp: *whatsapp})
	} else {
		res, err = stack.Auth.SignIn(ctx, cred)
	}
	if err != nil {
		return fmt.Errorf("%s (%w)", auth.KindOf(err).UserMessage(), err)
	}

	out := map[string]any{"channel": res.Channel, "confirmed": res.Session != nil}
	if u, ok := stack.Users.User(); ok {
		out["user"] = u
	} else if res.User != nil {
		out["user_id"] = res.User.ID
	}
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// readPassword prompts without echo on a terminal and otherwise reads one
// line, so the password can be piped in.
func readPassword(in io.Reader, prompt io.Writer) (string, error) {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(prompt, "Password: ")
		raw, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(prompt)
		return string(raw), err
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
