package cli

import (
	"bufio"
	"os"
	"os/signal"
	"strings"

	"github.com/c-bata/go-prompt"
	"github.com/mattn/go-isatty"
	"golang.org/x/sys/unix"
)

// MainLoop runs interactive prompt on terminal, otherwise executes stdin line by line.
func MainLoop(tag string, exec func(line string), complete func(d prompt.Document) []prompt.Suggest) {
	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, unix.SIGHUP, unix.SIGINT, unix.SIGTERM, unix.SIGQUIT)
	go func() {
		for range signalCh {
			os.Exit(1)
		}
	}()

	if isatty.IsTerminal(os.Stdin.Fd()) {
		prompt.New(exec, complete,
			prompt.OptionTitle(tag),
			prompt.OptionPrefix(tag+"> "),
		).Run()
		return
	}

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		exec(strings.TrimSpace(scanner.Text()))
	}
}
