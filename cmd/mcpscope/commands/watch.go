package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch every registered scope file and print external changes",
	Long: `Watch observes the scope files of all registered clients and prints
one line per external change. Edits performed through mcpscope itself
are suppressed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := newEngine(true)
		if err != nil {
			return err
		}
		defer eng.Close()

		if _, polling := eng.Watching(); polling {
			fmt.Fprintln(os.Stderr, "native file notification unavailable, polling")
		}

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		for {
			select {
			case <-quit:
				return nil
			case ev, ok := <-eng.Changes():
				if !ok {
					return nil
				}
				fmt.Printf("%s  %-9s  %s\n", ev.Timestamp.Format("15:04:05.000"), ev.Kind, ev.Path)
			}
		}
	},
}
