package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	prompt "github.com/c-bata/go-prompt"
	"github.com/juju/errors"
	"github.com/temoto/rfgate/gateway"
	"github.com/temoto/rfgate/helpers"
	"github.com/temoto/rfgate/helpers/cli"
	"github.com/temoto/rfgate/log2"
	"github.com/temoto/rfgate/protocol"
	"github.com/temoto/rfgate/router"
	"github.com/temoto/rfgate/state"
)

const usage = `syntax: commands separated by whitespace
(main)
- @XX...   decode sensor frame from hex XX..., show records and backend ids
- from=N   set sender node address for following frames (default 2)
- route    print routing table

(meta)
- log=yes  enable debug logging
- log=no   disable debug logging
- help     this text
`

var log = log2.NewStderr(log2.LDebug)

func main() {
	cmdline := flag.NewFlagSet(os.Args[0], flag.ExitOnError)
	configPath := cmdline.String("config", "", "read routes and probe order from rfgate config")
	_ = cmdline.Parse(os.Args[1:])

	log.SetFlags(log2.LInteractiveFlags)

	s := &session{
		decoder: protocol.DefaultDecoder(),
		router:  router.MustNewTable(router.ReferenceRoutes()),
		localID: router.ReferenceLocalID,
		from:    2,
		log:     log,
		w:       os.Stdout,
	}
	if *configPath != "" {
		config := state.MustReadConfig(log, state.NewOsFullReader(), *configPath)
		g := state.NewGlobal(log)
		g.MustInit(config)
		s.decoder = g.Decoder()
		s.router = g.Router()
		s.localID = config.LocalID()
	}

	cli.MainLoop("rfgate-cli", s.exec, newCompleter())
}

type session struct {
	decoder *protocol.Decoder
	router  *router.Table
	localID string
	from    uint8
	log     *log2.Log
	w       io.Writer
}

func newCompleter() func(d prompt.Document) []prompt.Suggest {
	suggests := []prompt.Suggest{
		{Text: "@XX", Description: "decode frame, show records"},
		{Text: "from=N", Description: "set sender node"},
		{Text: "route", Description: "print routing table"},
		{Text: "log=yes", Description: "enable debug logging"},
		{Text: "log=no", Description: "disable debug logging"},
		{Text: "help", Description: "show usage"},
	}

	return func(d prompt.Document) []prompt.Suggest {
		return prompt.FilterFuzzy(suggests, d.GetWordBeforeCursor(), true)
	}
}

func (self *session) exec(line string) {
	if err := self.execLine(line); err != nil {
		self.log.Error(errors.ErrorStack(err))
	}
}

// execLine stops at first failed command.
func (self *session) execLine(line string) error {
	words := strings.Fields(line)
	for i := 0; i < len(words); i++ {
		w := words[i]
		// hex may be written with spaces: @07 00 0000bc41
		if strings.HasPrefix(w, "@") {
			j := i + 1
			for j < len(words) && isHexWord(words[j]) {
				j++
			}
			w = strings.Join(words[i:j], " ")
			i = j - 1
		}
		if err := self.execWord(w); err != nil {
			return errors.Annotatef(err, "word=%s", w)
		}
	}
	return nil
}

func (self *session) execWord(w string) error {
	switch {
	case w == "help":
		_, err := io.WriteString(self.w, usage)
		return err
	case w == "log=yes":
		self.log.SetLevel(log2.LDebug)
		return nil
	case w == "log=no":
		self.log.SetLevel(log2.LError)
		return nil
	case w == "route":
		return self.printRoutes()
	case strings.HasPrefix(w, "from="):
		n, err := strconv.ParseUint(w[5:], 10, 8)
		if err != nil {
			return errors.NotValidf("from=%s", w[5:])
		}
		self.from = uint8(n)
		return nil
	case strings.HasPrefix(w, "@"):
		b, err := helpers.ParseHex(w[1:])
		if err != nil {
			return errors.Annotate(err, "parse hex")
		}
		return self.decode(b)
	}
	return errors.NotSupportedf("command %s, try help", w)
}

func (self *session) decode(b []byte) error {
	if len(b) > protocol.MaxPacketLen {
		return errors.NotValidf("frame len=%d max=%d", len(b), protocol.MaxPacketLen)
	}
	p, err := self.decoder.Decode(b)
	if err != nil {
		return err
	}
	self.log.Debugf("seq=%d records=%d skipped=%d trailing=%d", p.Seq, len(p.Records), p.Skipped, p.Trailing)
	fmt.Fprintln(self.w, gateway.FormatFrameLine(self.from, &p))
	for _, r := range p.Records {
		id, err := self.router.Lookup(self.from, r.Tag)
		if err != nil {
			id = "(no route)"
		}
		fmt.Fprintf(self.w, "  %-12s %12.6f -> %s\n", r.Tag.String(), r.Value, id)
	}
	return nil
}

func (self *session) printRoutes() error {
	for _, r := range self.router.Routes() {
		if _, err := fmt.Fprintf(self.w, "node=%d sensor=%-12s id=%s\n", r.Node, r.Tag.String(), r.ID); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(self.w, "local id=%s\n", self.localID)
	return err
}

func isHexWord(w string) bool {
	_, err := helpers.ParseHex(w)
	return err == nil && w != ""
}
