package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/brikk/livefeed/internal/connection"
)

// printMessage returns a listener writing one line per message to w.
func printMessage(w io.Writer, verbose bool) connection.Handler {
	return func(msg connection.Message) {
		ts := msg.ReceivedAt.Format("15:04:05.000")
		if !verbose {
			fmt.Fprintf(w, "[%s] %s (%d bytes)\n", ts, msg.Topic, len(msg.Data))
			return
		}

		var buf bytes.Buffer
		if err := json.Indent(&buf, msg.Data, "", "  "); err != nil {
			fmt.Fprintf(w, "[%s] %s %s\n", ts, msg.Topic, msg.Data)
			return
		}
		fmt.Fprintf(w, "[%s] %s %s\n", ts, msg.Topic, buf.String())
	}
}
