// Command mongomem is a local REPL around the one programmatic entry point
// internal/dispatch exposes: it reads newline-delimited JSON command
// documents from stdin and writes newline-delimited JSON responses to
// stdout. It is not a MongoDB wire-protocol listener — there is no
// OP_MSG codec and no TCP accept loop here, just a convenience harness
// for driving the engine interactively or from a test script.
package main

import (
	"bufio"
	"fmt"
	"log"
	"os"

	"github.com/kinfkong/modern-mgo/bson"
	"github.com/kinfkong/modern-mgo/internal/config"
	"github.com/kinfkong/modern-mgo/internal/dispatch"
	"github.com/kinfkong/modern-mgo/internal/logging"
	"github.com/kinfkong/modern-mgo/internal/store"
	"github.com/urfave/cli/v2"
)

func main() {
	loggingCfg := new(config.Logging)
	engineCfg := new(config.Engine)

	app := &cli.App{
		Name:  "mongomem",
		Usage: "in-memory MongoDB-compatible engine, driven by JSON commands over stdin/stdout",
		Flags: append(loggingCfg.Flags(), engineCfg.Flags()...),
		Action: func(*cli.Context) error {
			logger := logging.Zero(logging.LevelFromString(loggingCfg.Level))
			d := dispatch.New(store.NewEngineStore(), engineCfg, logger)
			return repl(os.Stdin, os.Stdout, d, logger)
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// repl reads one JSON command document per line from in, dispatches it,
// and writes the JSON response document as one line to out. A line that
// fails to parse produces an {"ok":0,"errmsg":...} response rather than
// stopping the loop, so a bad line in a scripted session doesn't kill the
// rest of it.
func repl(in *os.File, out *os.File, d *dispatch.Dispatcher, logger logging.Logger) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	writer := bufio.NewWriter(out)
	defer writer.Flush()

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		cmd := bson.NewDocument()
		if err := cmd.UnmarshalJSON(line); err != nil {
			logger.Warn("discarding unparseable command line: %v", err)
			fmt.Fprintf(writer, "{\"ok\":0,\"errmsg\":%q}\n", err.Error())
			writer.Flush()
			continue
		}

		resp := d.Dispatch(cmd)
		respJSON, err := resp.MarshalJSON()
		if err != nil {
			logger.Warn("discarding unmarshalable response: %v", err)
			continue
		}
		writer.Write(respJSON)
		writer.WriteByte('\n')
		writer.Flush()
	}
	return scanner.Err()
}
