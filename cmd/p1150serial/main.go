// Command p1150serial is the composition root wiring configuration,
// logging, the serial transport, and the log-frame decoder into a running
// process. It is a thin external collaborator over the engine packages,
// not part of their tested surface.
package main

import (
	"encoding/binary"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"p1150serial/config"
	"p1150serial/errcode"
	"p1150serial/logsym"
	"p1150serial/obslog"
	"p1150serial/queue"
	"p1150serial/transport"
)

func main() {
	log := obslog.New("p1150serial")

	if len(os.Args) < 2 {
		log.Fatal().Msg("usage: p1150serial <config.toml>")
	}

	settings, err := config.Load(os.Args[1])
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if settings.Transport.Port == "" {
		log.Fatal().Msg("config: transport.port must be set")
	}

	var dataset *logsym.Dataset
	if settings.LogSym.SymbolTablePath != "" {
		dataset, err = logsym.Load(settings.LogSym.SymbolTablePath)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to load symbol table")
		}
	}

	inbound := queue.NewUnbounded()
	outbound := queue.NewUnbounded()

	mgr := transport.NewManager(settings.TransportConfig(), inbound, outbound, log)
	if err := mgr.Start(); err != nil {
		log.Fatal().Err(err).Msg("failed to start serial manager")
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	stop := make(chan struct{})
	done := make(chan struct{})
	go pumpInbound(log, dataset, inbound, stop, done)

	<-sig
	close(stop)
	<-done
	mgr.Shutdown()
}

// pumpInbound decodes and logs every delivered frame until stop is closed.
// Frames are assumed to carry the demo wire sub-format [target byte][address
// uint32 LE][payload...]; a real instrument driver would replace this with
// its own CBOR telemetry dispatch.
func pumpInbound(log zerolog.Logger, dataset *logsym.Dataset, inbound queue.Queue, stop, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-stop:
			return
		default:
		}
		frame, ok := inbound.PopTimeout(200 * time.Millisecond)
		if !ok {
			continue
		}
		if dataset == nil || len(frame) < 5 {
			log.Debug().Hex("frame", frame).Msg("undecoded inbound frame")
			continue
		}
		target := int(frame[0])
		address := binary.LittleEndian.Uint32(frame[1:5])
		rec := dataset.Decode(target, address, frame[5:])
		entry := log.Info()
		if rec.Level == "RAW" {
			entry = entry.Err(errcode.DecodeUnsupported)
		}
		entry.
			Uint64("count", rec.Count).
			Dur("ts", rec.Ts).
			Str("level", rec.Level).
			Str("file", rec.File).
			Int32("line", rec.Line).
			Msg(rec.Text)
	}
}
