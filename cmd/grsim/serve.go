package main

import (
	"fmt"
	"os"
	"os/signal"

	"github.com/pkg/browser"
	"github.com/spf13/cobra"

	"github.com/sarchlab/grengine/monitoring"
)

func newServeCmd(o *options) *cobra.Command {
	var (
		port     int
		channels int
		class    string
		open     bool
	)

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Boot the engine and serve its state over HTTP.",
		Long: "`serve --channels 4 --open` boots the engine, opens four " +
			"channels and serves the monitoring page until interrupted.",
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

			m := monitoring.NewMonitor()
			if port != 0 {
				m.WithPortNumber(port)
			}

			m.RegisterEngine(p.Engine, p.Fifo)
			m.RegisterComponent(p.Memory.Name(), p.Memory)
			m.RegisterComponent(platformName+".Fifo", p.Fifo)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			actualPort := m.StartServer()
			if open {
				url := fmt.Sprintf("http://localhost:%d", actualPort)
				if err := browser.OpenURL(url); err != nil {
					fmt.Fprintf(os.Stderr, "cannot open %s: %v\n", url, err)
				}
			}

			if err := p.Boot(ctx); err != nil {
				return err
			}

			bar := m.CreateProgressBar("Open channels", uint64(channels))
			for i := 0; i < channels; i++ {
				bar.Start(1)

				if _, err := p.OpenChannel(ctx, cls, false); err != nil {
					bar.Fail(1)
					return err
				}

				bar.Finish(1)
			}
			m.CompleteProgressBar(bar)

			<-ctx.Done()

			return nil
		},
	}

	f := serveCmd.Flags()
	f.IntVar(&port, "port", 0, "port to listen on, random when 0")
	f.IntVar(&channels, "channels", 1, "channels to open")
	f.StringVar(&class, "class", "kepler-c", "object class of the channels")
	f.BoolVar(&open, "open", false, "open the page in a browser")

	return serveCmd
}
