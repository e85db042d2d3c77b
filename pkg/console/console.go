// Package console provides the ishell backed operator console.
package console

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"strings"

	"github.com/abiosoft/ishell"

	"github.com/robotalks/controlboard/pkg/app"
)

const consoleKey = "$console"

var (
	evalOnly   bool
	outputJSON bool

	errUsage = errors.New("invalid arguments")
)

func init() {
	flag.BoolVar(&evalOnly, "e", evalOnly, "Evaluation only, no interactive shell.")
	flag.BoolVar(&outputJSON, "json", outputJSON, "Print output in JSON.")
}

// Console is the interactive operator console.
type Console struct {
	Interactive bool
	OutputJSON  bool
	// MirrorURL is displayed by the nt command, empty if mirroring is off.
	MirrorURL string

	Handler *app.Handler
	Shell   *ishell.Shell
}

// New creates a console for the handler.
func New(h *app.Handler) *Console {
	c := &Console{
		Interactive: !evalOnly,
		OutputJSON:  outputJSON,
		Handler:     h,
		Shell:       ishell.New(),
	}
	c.Shell.Set(consoleKey, c)
	for _, cmd := range commands {
		c.Shell.AddCmd(cmd.ishellCmd())
	}
	c.updatePrompt()
	return c
}

// ConsoleFrom gets Console from ishell context.
func ConsoleFrom(c *ishell.Context) *Console {
	return c.Get(consoleKey).(*Console)
}

// Exec runs a command by name and returns its output.
func (c *Console) Exec(name string, args ...string) (string, error) {
	for _, cmd := range commands {
		if cmd.matches(name) {
			return cmd.exec(c, args)
		}
	}
	return "", fmt.Errorf("unknown command %q", name)
}

func (c *Console) updatePrompt() {
	if c.Shell == nil {
		return
	}
	typ := c.Handler.Status().Type
	if typ == "" {
		typ = "none"
	}
	c.Shell.SetPrompt(fmt.Sprintf("[%s] > ", typ))
}

func (c *Console) format(v interface{}, text string) (string, error) {
	if !c.OutputJSON {
		return text, nil
	}
	out, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// Run runs the shell, or a single command when args are present.
func (c *Console) Run(args ...string) {
	if len(args) > 0 {
		if err := c.Shell.Process(args...); err != nil {
			log.Fatalln(err)
		}
		return
	}
	if c.Interactive {
		c.Shell.Run()
		return
	}
	log.Fatalln("command expected")
}

type command struct {
	name    string
	aliases []string
	help    string
	args    int
	run     func(c *Console, args []string) (string, error)
}

func (cmd command) matches(name string) bool {
	if name == cmd.name {
		return true
	}
	for _, alias := range cmd.aliases {
		if name == alias {
			return true
		}
	}
	return false
}

func (cmd command) exec(c *Console, args []string) (string, error) {
	if len(args) < cmd.args {
		return "", fmt.Errorf("%w, usage: %s %s", errUsage, cmd.name, cmd.help)
	}
	return cmd.run(c, args)
}

func (cmd command) ishellCmd() *ishell.Cmd {
	return &ishell.Cmd{
		Name:    cmd.name,
		Aliases: cmd.aliases,
		Help:    cmd.help,
		Func: func(ctx *ishell.Context) {
			out, err := cmd.exec(ConsoleFrom(ctx), ctx.Args)
			if err != nil {
				ctx.Err(err)
				return
			}
			if out != "" {
				ctx.Println(strings.TrimRight(out, "\n"))
			}
		},
	}
}
