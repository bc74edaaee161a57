// ryokuchat is a line-oriented debug client for the libtea session
// core: it lists the address book, adds and removes peers, and runs a
// per-peer chat loop.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/trendcreate/libtea"
)

func main() {
	app := &cli.App{
		Name:  "ryokuchat",
		Usage: "P2P chat over hidden services",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "dir",
				Value: defaultDataDir(),
				Usage: "data directory",
			},
			&cli.IntFlag{
				Name:  "port",
				Value: 4545,
				Usage: "chat listener port (the SOCKS5 proxy is expected on port+1)",
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "enable debug logging",
			},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "RYOKUCHAT"
	}
	return filepath.Join(home, ".config", "RYOKUCHAT")
}

func run(c *cli.Context) error {
	if c.Bool("verbose") {
		log.SetLevel(log.DebugLevel)
	} else {
		log.SetLevel(log.WarnLevel)
	}

	fmt.Println("starting session, waiting for the overlay to publish our hostname...")
	session, err := libtea.New(c.String("dir"), c.Int("port"))
	if err != nil {
		return err
	}
	defer session.Close()

	notify := make(chan libtea.Message, 64)
	session.SetNotify(notify)

	console := newConsole()
	console.Printf("Your address is: %s\n\n", session.MyAddress())
	mainMenu(console, session, notify)
	return nil
}

func mainMenu(console *console, session *libtea.Session, notify <-chan libtea.Message) {
	for {
		users, err := session.GetUsers()
		if err != nil {
			console.Printf("list users: %v\n", err)
			return
		}
		console.Printf("/help for commands; input the index of a friend to chat.\n")
		for i, u := range users {
			if u.Username != "" {
				console.Printf("%d. %s\n", i, u.Username)
			} else {
				console.Printf("%d. no_name (%s)\n", i, u.Address())
			}
		}

		line, ok := console.Ask("MAINMENU> ")
		if !ok {
			return
		}
		line = strings.TrimSpace(line)

		switch {
		case line == "":
		case line == "/help":
			printHelp(console)
		case line == "/exit":
			return
		case strings.HasPrefix(line, "/add"):
			arg, ok := argOf(line)
			if !ok {
				console.Printf("usage: /add <address>\n")
				continue
			}
			report(console, session.AddUser(arg))
		case strings.HasPrefix(line, "/del"):
			arg, _ := argOf(line)
			u, ok := userAt(console, users, arg)
			if !ok {
				continue
			}
			report(console, session.DelUser(u.ID))
		case strings.HasPrefix(line, "/name"):
			rest, ok := argOf(line)
			if !ok {
				console.Printf("usage: /name <index> <name>\n")
				continue
			}
			idx, name, ok := strings.Cut(rest, " ")
			if !ok {
				console.Printf("usage: /name <index> <name>\n")
				continue
			}
			u, found := userAt(console, users, idx)
			if !found {
				continue
			}
			report(console, session.SetUsername(u.ID, strings.TrimSpace(name)))
		default:
			u, found := userAt(console, users, line)
			if !found {
				continue
			}
			chatSession(console, session, u, notify)
		}
		console.Printf("\n")
	}
}

func chatSession(console *console, session *libtea.Session, user *libtea.User, notify <-chan libtea.Message) {
	done := make(chan struct{})
	defer close(done)

	go func() {
		for {
			select {
			case <-done:
				return
			case m := <-notify:
				dm, ok := m.(libtea.DirectMsg)
				if !ok {
					continue
				}
				if dm.From == user.ID {
					console.Printf("> %s\n", dm.Text)
				} else {
					console.Printf("[message from %s received outside this chat, not shown]\n", dm.From)
				}
			}
		}
	}()

	for {
		line, ok := console.Ask("CHAT> ")
		if !ok {
			return
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == "/exit" {
			return
		}
		if line == "/help" {
			printHelp(console)
			continue
		}
		if err := session.SendDM(user.ID, line); err != nil {
			console.Printf("error while sending: %v\n", err)
		}
	}
}

func printHelp(console *console) {
	console.Printf("/help: display this message\n")
	console.Printf("/add <address>: add a friend to your address book\n")
	console.Printf("/del <index>: delete a friend from your address book\n")
	console.Printf("/name <index> <name>: set a friend's display name\n")
	console.Printf("/exit: leave this screen\n")
}

// argOf returns everything after the command word.
func argOf(line string) (string, bool) {
	_, rest, ok := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)
	return rest, ok && rest != ""
}

func userAt(console *console, users []*libtea.User, arg string) (*libtea.User, bool) {
	idx, err := strconv.Atoi(strings.TrimSpace(arg))
	if err != nil || idx < 0 || idx >= len(users) {
		console.Printf("no such entry\n")
		return nil, false
	}
	return users[idx], true
}

func report(console *console, err error) {
	if err != nil {
		console.Printf("command failed: %v\n", err)
		return
	}
	console.Printf("command successful\n")
}
