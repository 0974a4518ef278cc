// Command p1150cli is an interactive line-oriented sender used to drive the
// serial engine by hand. Each line is shell-tokenized; "send <hex bytes>"
// COBS-encodes the payload and pushes it to the outbound queue, "quit"
// exits.
package main

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/google/shlex"

	"p1150serial/cobs"
	"p1150serial/config"
	"p1150serial/obslog"
	"p1150serial/queue"
	"p1150serial/transport"
)

func main() {
	log := obslog.New("p1150cli")

	if len(os.Args) < 2 {
		log.Fatal().Msg("usage: p1150cli <config.toml>")
	}
	settings, err := config.Load(os.Args[1])
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	inbound := queue.NewUnbounded()
	outbound := queue.NewUnbounded()
	mgr := transport.NewManager(settings.TransportConfig(), inbound, outbound, log)
	if err := mgr.Start(); err != nil {
		log.Fatal().Err(err).Msg("failed to start serial manager")
	}
	defer mgr.Shutdown()

	fmt.Println("p1150cli ready; commands: send <hex>, quit")
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		tokens, err := shlex.Split(scanner.Text())
		if err != nil || len(tokens) == 0 {
			continue
		}
		switch tokens[0] {
		case "quit", "exit":
			return
		case "send":
			if len(tokens) < 2 {
				fmt.Println("usage: send <hex bytes>")
				continue
			}
			raw, err := hex.DecodeString(tokens[1])
			if err != nil {
				fmt.Println("bad hex:", err)
				continue
			}
			outbound.Push(cobs.EncodeAppend(raw))
		default:
			fmt.Println("unknown command:", tokens[0])
		}
	}
}
