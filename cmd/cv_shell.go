// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/trackside/pkg/dcc"
	"github.com/Thermoquad/trackside/pkg/servicemode"
)

const cvShellHelp = `Commands:
  <cv>    read CV, then optionally write
  id      identify the decoder
  ?       show this help
  q       quit`

var cvWriteOnly bool

var cvCmd = &cobra.Command{
	Use:   "cv",
	Short: "Interactive CV shell on the programming track",
	Long: `Read and write single CVs of the decoder on the programming track.

Enter a CV number to read it, then a new value to write it, or an empty
line to keep the value. Reading CV8 offers a factory reset instead. With
--write-only nothing is read back and writes are not verified, for decoders
that cannot acknowledge.

` + cvShellHelp,
	Args: cobra.NoArgs,
	RunE: runCVShell,
}

func init() {
	rootCmd.AddCommand(cvCmd)
	cvCmd.Flags().BoolVar(&cvWriteOnly, "write-only", false, "Never read; send writes once without verification")
}

func runCVShell(cmd *cobra.Command, args []string) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "CV> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "q",
	})
	if err != nil {
		return fmt.Errorf("failed to create readline: %w", err)
	}
	defer rl.Close()

	return withSession(cvWriteOnly, func(ctx context.Context, s *servicemode.Session) error {
		shell := &cvShell{rl: rl, out: rl.Stdout(), session: s}
		return shell.run(ctx)
	})
}

// cvShell prompts for CVs on one open programming session
type cvShell struct {
	rl      *readline.Instance
	out     io.Writer
	session *servicemode.Session
}

func (c *cvShell) run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		line, err := c.prompt("CV> ")
		if err != nil {
			return nil
		}

		switch strings.ToLower(line) {
		case "":
			continue
		case "q", "quit":
			return nil
		case "?", "help":
			fmt.Fprintln(c.out, cvShellHelp)
			continue
		case "id":
			id, err := c.session.Identify(ctx)
			if err := reportRecoverable(err); err != nil {
				return err
			}
			if err == nil {
				fmt.Fprintln(c.out, id)
			}
			continue
		}

		cv, err := strconv.Atoi(line)
		if err != nil || !dcc.ValidCV(cv) {
			fmt.Fprintf(c.out, "not a CV number: %q\n", line)
			continue
		}
		if err := c.access(ctx, cv); err != nil {
			return err
		}
	}
}

// access reads cv and offers to write it. Only fatal errors are returned.
func (c *cvShell) access(ctx context.Context, cv int) error {
	label := fmt.Sprintf("CV %d", cv)
	if !cvWriteOnly {
		v, err := c.session.Read(ctx, cv, false)
		if err != nil {
			return reportRecoverable(err)
		}
		if !v.Known {
			fmt.Fprintf(c.out, "%s = ? (no acknowledgment)\n", label)
			return nil
		}
		fmt.Fprintf(c.out, "%s = %d\n", label, v.Byte)
		if cv == dcc.CVConfig {
			fmt.Fprint(c.out, dcc.DecodeCV29(v.Byte).Report())
		}
		if cv == dcc.CVManufacturer {
			fmt.Fprintf(c.out, "Manufacturer: %s\n", dcc.ManufacturerName(v.Byte))
		}
	}

	if cv == dcc.CVManufacturer {
		answer, err := c.prompt("Factory reset? (y/n) ")
		if err != nil || !strings.HasPrefix(strings.ToLower(answer), "y") {
			return nil
		}
		if err := c.session.FactoryReset(ctx); err != nil {
			return reportRecoverable(err)
		}
		fmt.Fprintln(c.out, "Factory reset done")
		return nil
	}

	answer, err := c.prompt(label + " new value: ")
	if err != nil || answer == "" {
		return nil
	}
	value, err := strconv.Atoi(answer)
	if err != nil || !dcc.ValidValue(value) {
		fmt.Fprintf(c.out, "not a CV value: %q\n", answer)
		return nil
	}

	if err := c.session.Write(ctx, cv, uint8(value)); err != nil {
		return reportRecoverable(err)
	}
	fmt.Fprintf(c.out, "%s := %d\n", label, value)
	return nil
}

// prompt reads one trimmed line. Ctrl+C on an empty line ends the shell.
func (c *cvShell) prompt(p string) (string, error) {
	c.rl.SetPrompt(p)
	line, err := c.rl.Readline()
	if errors.Is(err, readline.ErrInterrupt) && line == "" {
		return "", io.EOF
	}
	if err != nil && !errors.Is(err, readline.ErrInterrupt) {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
