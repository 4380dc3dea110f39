package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/kerb4/kerb4/pkg/principal"
)

var (
	serviceName   string
	serviceRealm  string
	serviceSecret string
	serviceAddr   string
)

var serviceCmd = &cobra.Command{
	Use:   "service",
	Short: "Manage application server principals",
}

var serviceAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add an application server principal",
	RunE:  runServiceAdd,
}

var serviceListCmd = &cobra.Command{
	Use:   "list",
	Short: "List application server principals",
	RunE:  runServiceList,
}

func init() {
	serviceAddCmd.Flags().StringVar(&serviceName, "name", "", "service principal name (required)")
	serviceAddCmd.Flags().StringVar(&serviceRealm, "realm", "KERB4", "realm")
	serviceAddCmd.Flags().StringVar(&serviceSecret, "secret", "", "long-term secret (required)")
	serviceAddCmd.Flags().StringVar(&serviceAddr, "addr", "", "listen address, e.g. :7000 (required)")
	_ = serviceAddCmd.MarkFlagRequired("name")
	_ = serviceAddCmd.MarkFlagRequired("secret")
	_ = serviceAddCmd.MarkFlagRequired("addr")

	serviceCmd.AddCommand(serviceAddCmd)
	serviceCmd.AddCommand(serviceListCmd)
}

func runServiceAdd(_ *cobra.Command, _ []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}

	p := principal.Principal{
		Name:    principal.Name{Primary: serviceName, Realm: serviceRealm},
		Kind:    principal.KindService,
		Secret:  serviceSecret,
		Address: serviceAddr,
	}
	if err := store.Put(context.Background(), p); err != nil {
		return fmt.Errorf("add service principal: %w", err)
	}

	fmt.Printf("service principal %s added, listening at %s\n", p.Name.String(), p.Address)
	return nil
}

func runServiceList(_ *cobra.Command, _ []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}

	principals, err := store.List(context.Background(), principal.KindService)
	if err != nil {
		return fmt.Errorf("list service principals: %w", err)
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Name", "Realm", "Address"})
	table.SetBorder(false)
	for _, p := range principals {
		table.Append([]string{p.Name.Primary, p.Name.Realm, p.Address})
	}
	table.Render()
	return nil
}
