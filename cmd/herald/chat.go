package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"golang.org/x/term"

	"github.com/herald-crm/herald/pkg/runtime"
)

// ChatCmd is an interactive loop against one agent at a time.
type ChatCmd struct {
	Agent string `help:"Agent to talk to (sales, strategy, expert, market)." default:"sales"`
	Watch bool   `help:"Watch the config file and hot-reload the retrieval settings."`
}

func (c *ChatCmd) Run(cli *CLI) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	core, err := runtime.New(ctx, cli.options())
	if err != nil {
		return err
	}
	defer core.Close()

	if c.Watch {
		go func() {
			if err := core.Watch(ctx); err != nil && ctx.Err() == nil {
				fmt.Fprintf(os.Stderr, "config watch stopped: %v\n", err)
			}
		}()
	}

	current := c.Agent
	if _, ok := core.Hub().Get(current); !ok {
		return fmt.Errorf("unknown agent %q (available: %s)", current, strings.Join(core.Hub().Agents(), ", "))
	}

	interactive := term.IsTerminal(int(os.Stdin.Fd()))
	if interactive {
		fmt.Printf("Talking to %s. Commands: /agent <id>, /agents, /quit\n", current)
	}

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for {
		if interactive {
			fmt.Print("you> ")
		}
		if !scanner.Scan() {
			break
		}
		if ctx.Err() != nil {
			break
		}

		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}

		if strings.HasPrefix(input, "/") {
			switch {
			case input == "/quit" || input == "/exit":
				return nil
			case input == "/agents":
				fmt.Println(strings.Join(core.Hub().Agents(), ", "))
			case strings.HasPrefix(input, "/agent "):
				id := strings.TrimSpace(strings.TrimPrefix(input, "/agent "))
				if _, ok := core.Hub().Get(id); !ok {
					fmt.Printf("unknown agent %q\n", id)
					continue
				}
				current = id
				fmt.Printf("switched to %s\n", current)
			default:
				fmt.Printf("unknown command %s\n", input)
			}
			continue
		}

		resp, err := core.Send(ctx, current, input)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			continue
		}

		fmt.Printf("%s> %s\n", current, resp.Content)
		if len(resp.NextActions) > 0 {
			fmt.Printf("    next: %s\n", strings.Join(resp.NextActions, "；"))
		}
		fmt.Printf("    confidence %.2f\n", resp.Confidence)
	}
	return scanner.Err()
}
