package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// output writes command results as indented JSON or as text lines.
type output struct {
	format string
	writer io.Writer
}

func newOutput(opts *RootOptions, cmd *cobra.Command) *output {
	return &output{format: opts.Format, writer: cmd.OutOrStdout()}
}

type printer struct {
	w   io.Writer
	err error
}

func (p *printer) Linef(format string, args ...any) {
	if p.err != nil {
		return
	}
	_, p.err = fmt.Fprintf(p.w, format+"\n", args...)
}

// Print emits v as JSON, or calls text when the format is text.
func (o *output) Print(v any, text func(p *printer)) error {
	if o.format == "json" {
		enc := json.NewEncoder(o.writer)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	p := &printer{w: o.writer}
	text(p)
	return p.err
}
