package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func NewBrokersCommand(engineVersion string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "brokers",
		Short: "Inspect the loaded broker catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			return listBrokers(engineVersion)
		},
	}
	return cmd
}

func listBrokers(engineVersion string) error {
	app, err := OpenApp(engineVersion)
	if err != nil {
		return err
	}
	defer app.Close()

	defs := app.Registry.All()
	fmt.Printf("Loaded %d broker definitions:\n", len(defs))
	for _, def := range defs {
		fmt.Printf("  %-24s %-20s search=%-12s removal=%s\n",
			def.ID, def.Category, def.Search.Kind, def.Removal.Kind)
	}
	return nil
}
