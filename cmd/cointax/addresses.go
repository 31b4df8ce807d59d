package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vadiminshakov/cointax/internal/domain"
	"github.com/vadiminshakov/cointax/internal/setup"
	"github.com/vadiminshakov/cointax/internal/storage/addresses"
)

var addressesCmd = &cobra.Command{
	Use:     "addresses",
	Aliases: []string{"addr"},
	Short:   "Manage tracked wallet addresses",
}

func openAddressBook() (*addresses.Store, error) {
	return addresses.NewStore(g.cfg.AddressBookPath)
}

var addressesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tracked addresses",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openAddressBook()
		if err != nil {
			return err
		}
		book, err := store.Load()
		if err != nil {
			return err
		}

		t := newTable("Asset", "Address", "Explorer")
		for _, asset := range domain.Assets {
			for _, address := range book[asset] {
				t.Row(asset.String(), address, asset.AddressURL(address))
			}
		}
		fmt.Fprintln(cmd.OutOrStdout(), t.String())
		fmt.Fprintf(cmd.OutOrStdout(), "stored in %s\n", store.Path())
		return nil
	},
}

var addressesAddCmd = &cobra.Command{
	Use:   "add ASSET ADDRESS",
	Short: fmt.Sprintf("Track an address, at most %d per asset", domain.MaxAddressesPerAsset),
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		asset, err := domain.ParseAsset(args[0])
		if err != nil {
			return err
		}
		store, err := openAddressBook()
		if err != nil {
			return err
		}

		canonical, err := store.Add(asset, args[1])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render(fmt.Sprintf("✓ tracking %s %s", asset, canonical)))
		return nil
	},
}

var addressesRemoveCmd = &cobra.Command{
	Use:     "remove ASSET ADDRESS",
	Aliases: []string{"rm"},
	Short:   "Stop tracking an address",
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		asset, err := domain.ParseAsset(args[0])
		if err != nil {
			return err
		}
		store, err := openAddressBook()
		if err != nil {
			return err
		}

		if err := store.Remove(asset, args[1]); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render(fmt.Sprintf("✓ removed %s %s", asset, args[1])))
		return nil
	},
}

var addressesClearCmd = &cobra.Command{
	Use:   "clear ASSET",
	Short: "Stop tracking every address of an asset",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		asset, err := domain.ParseAsset(args[0])
		if err != nil {
			return err
		}
		store, err := openAddressBook()
		if err != nil {
			return err
		}

		if err := store.Clear(asset); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render(fmt.Sprintf("✓ cleared %s", asset)))
		return nil
	},
}

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Interactive wizard for addresses, tax inputs and the dashboard",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return setup.RunTUI(g.configPath, g.cfg)
	},
}

func init() {
	addressesCmd.AddCommand(addressesListCmd, addressesAddCmd, addressesRemoveCmd, addressesClearCmd)
}
