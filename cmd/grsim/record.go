package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sarchlab/grengine/gpusim"
	"github.com/sarchlab/grengine/hw"
	"github.com/sarchlab/grengine/recording"
)

func newRecordCmd(o *options) *cobra.Command {
	var (
		out       string
		channels  int
		class     string
		registers bool
		notify    bool
	)

	recordCmd := &cobra.Command{
		Use:   "record",
		Short: "Record a boot into a SQLite database.",
		Long: "`record --out boot --channels 2` records the register " +
			"accesses, FECS methods, interrupts and engine events of a boot " +
			"followed by two channel opens into boot.sqlite3.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cls, err := parseClass(class)
			if err != nil {
				return err
			}

			p, err := o.platform()
			if err != nil {
				return err
			}

			r, err := recording.MakeBuilder().
				WithPath(out).
				WithRegisterAccesses(registers).
				Build()
			if err != nil {
				return err
			}
			defer r.Close()

			r.Attach(p.Bus, p.Engine.Submitter(), p.Engine)

			ctx := cmd.Context()
			if err := p.Boot(ctx); err != nil {
				return err
			}

			chs, err := p.OpenChannels(ctx, channels, cls)
			if err != nil {
				return err
			}

			for _, ch := range chs {
				if notify {
					p.Interrupt(gpusim.Trap{
						Intr:  hw.GrIntrNotify,
						Class: cls,
						Ctx:   gpusim.ChannelCtx(ch),
					})
				}

				p.CloseChannel(ctx, ch)
			}

			if err := r.Close(); err != nil {
				return err
			}

			rd, err := recording.Open(r.Filename())
			if err != nil {
				return err
			}
			defer rd.Close()

			s, err := rd.Summary()
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "recorded into %s\n", r.Filename())
			fmt.Fprintf(w, "register accesses: %d\n", s.Accesses)
			fmt.Fprintf(w, "fecs methods: %d\n", s.Commands)
			fmt.Fprintf(w, "interrupts: %d\n", s.Interrupts)
			fmt.Fprintf(w, "engine events: %d\n", s.Events)

			return nil
		},
	}

	f := recordCmd.Flags()
	f.StringVar(&out, "out", "", "database path without extension, random when empty")
	f.IntVar(&channels, "channels", 1, "channels to open")
	f.StringVar(&class, "class", "kepler-c", "object class of the channels")
	f.BoolVar(&registers, "registers", true, "record register accesses")
	f.BoolVar(&notify, "notify", false, "raise a notify interrupt on every channel")

	return recordCmd
}
